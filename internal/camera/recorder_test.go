package camera

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T, w *fakeWriter) *Recorder {
	t.Helper()
	dir := t.TempDir()
	r := NewRecorder(func(filename string) (string, error) {
		return filepath.Join(dir, filename), nil
	})
	r.newWriter = fakeWriterFactory(w)
	r.verify = nil
	return r
}

func TestRecorderFirstFrameUnconditionalThenPaced(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(t, w)
	r.UpdateSettings(Settings{Width: 640, Height: 480, FPS: 25}) // 40ms interval

	if _, err := r.StartRecording(nil); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	f := testFrame(640, 480)
	r.WriteFrame(f)
	if got := w.frameCount(); got != 1 {
		t.Fatalf("first frame not accepted: wrote %d", got)
	}

	// Immediately again: sooner than 1/fps, must be dropped
	r.WriteFrame(f)
	if got := w.frameCount(); got != 1 {
		t.Errorf("early frame was not dropped: wrote %d", got)
	}

	time.Sleep(50 * time.Millisecond)
	r.WriteFrame(f)
	if got := w.frameCount(); got != 2 {
		t.Errorf("on-time frame was dropped: wrote %d", got)
	}
}

func TestRecorderZeroFrameStop(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(t, w)
	r.UpdateSettings(Settings{Width: 640, Height: 480, FPS: 25})

	path, err := r.StartRecording(nil)
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	stopped, err := r.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording with zero frames: %v", err)
	}
	if stopped != path {
		t.Errorf("StopRecording returned %q, want %q", stopped, path)
	}
	if !w.closed {
		t.Error("writer was not closed")
	}
	if r.IsRecording() {
		t.Error("still recording after stop")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestRecorderRejectsNonThreeChannel(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(t, w)
	r.UpdateSettings(Settings{Width: 640, Height: 480, FPS: 25})

	if _, err := r.StartRecording(nil); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	f := testFrame(640, 480)
	f.Channels = 4
	r.WriteFrame(f)
	if got := w.frameCount(); got != 0 {
		t.Errorf("4-channel frame was written (%d frames)", got)
	}
}

func TestRecorderWriteFrameInactiveNoop(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(t, w)
	r.UpdateSettings(Settings{Width: 640, Height: 480, FPS: 25})

	r.WriteFrame(testFrame(640, 480))
	if got := w.frameCount(); got != 0 {
		t.Errorf("frame written without an active session (%d frames)", got)
	}
}

func TestRecorderRefusesWithoutConfiguration(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(t, w)

	// No settings, no initial frame: must refuse, no file left behind
	if _, err := r.StartRecording(nil); err == nil {
		t.Fatal("StartRecording succeeded without any frame size")
	}
	if r.IsRecording() {
		t.Error("recorder claims to be recording after a refused start")
	}
	if w.opened {
		t.Error("writer was opened for a refused session")
	}
}

func TestRecorderInitialFrameShapeWins(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(t, w)
	r.UpdateSettings(Settings{Width: 640, Height: 480, FPS: 25})

	f := testFrame(1280, 720)
	if _, err := r.StartRecording(&f); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if r.width != 1280 || r.height != 720 {
		t.Errorf("session size %dx%d, want the initial frame's 1280x720", r.width, r.height)
	}
}

func TestRecorderDoubleStartRefused(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(t, w)
	r.UpdateSettings(Settings{Width: 640, Height: 480, FPS: 25})

	if _, err := r.StartRecording(nil); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := r.StartRecording(nil); err == nil {
		t.Error("second StartRecording succeeded during an active session")
	}
}

func TestRecorderSettingsFallbackFPS(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRecorder(t, w)
	r.UpdateSettings(Settings{Width: 640, Height: 480, FPS: 0})
	if r.fps != defaultRecordFPS {
		t.Errorf("fps %v after zero-fps settings, want fallback %v", r.fps, defaultRecordFPS)
	}
}
