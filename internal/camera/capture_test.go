package camera

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitForState(t *testing.T, c *Capture, want CaptureState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("capture never reached %v, stuck in %v", want, c.State())
}

func TestCaptureOpenFailureSingleFatal(t *testing.T) {
	var fatals atomic.Int32
	var lastMsg string
	initialized := false

	c := newCapture(5, nil, failingOpen, CaptureSinks{
		OnInitialized: func(Settings) { initialized = true },
		OnFatal: func(msg string) {
			fatals.Add(1)
			lastMsg = msg
		},
	})
	c.Start()
	waitForState(t, c, StateErrored, 2*time.Second)
	<-c.done

	if n := fatals.Load(); n != 1 {
		t.Errorf("expected exactly one fatal notification, got %d", n)
	}
	if !strings.Contains(lastMsg, "could not open") {
		t.Errorf("fatal message %q should mention the open failure", lastMsg)
	}
	if initialized {
		t.Error("device-initialized callback fired for a device that never opened")
	}
}

func TestCaptureWarmupPlaceholderReachesStreaming(t *testing.T) {
	// Opens fine but never yields a readable frame: warm-up must fall
	// back to a placeholder instead of failing the session.
	src := newFakeSource(0, 0)
	open := func(int, Backend) (frameSource, error) { return src, nil }

	var mu sync.Mutex
	var recorded []Frame
	var fatals atomic.Int32

	c := newCapture(0, nil, open, CaptureSinks{
		OnRecord: func(f Frame) {
			mu.Lock()
			recorded = append(recorded, f)
			mu.Unlock()
		},
		OnFatal: func(string) { fatals.Add(1) },
	})
	c.Start()
	waitForState(t, c, StateStreaming, 3*time.Second)
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(recorded) == 0 {
		t.Fatal("no placeholder frame was delivered")
	}
	first := recorded[0]
	if first.Width != 640 || first.Height != 480 || first.Channels != 3 {
		t.Errorf("placeholder shape %dx%dx%d, want 640x480x3", first.Width, first.Height, first.Channels)
	}
	for i, b := range first.Data {
		if b != 0 {
			t.Errorf("placeholder byte %d = %d, want 0", i, b)
			break
		}
	}
}

func TestCaptureErrorBudgetExhausted(t *testing.T) {
	// Three good frames, then permanent read failure: the loop must
	// retry up to the budget, then emit one fatal and stop.
	src := newFakeSource(3, 128)
	open := func(int, Backend) (frameSource, error) { return src, nil }

	var fatals atomic.Int32
	var lastMsg string

	c := newCapture(0, nil, open, CaptureSinks{
		OnFatal: func(msg string) {
			fatals.Add(1)
			lastMsg = msg
		},
	})
	c.Start()
	waitForState(t, c, StateErrored, 5*time.Second)
	<-c.done

	if n := fatals.Load(); n != 1 {
		t.Errorf("expected exactly one fatal notification, got %d", n)
	}
	if !strings.Contains(lastMsg, "disconnected") {
		t.Errorf("fatal message %q should mention disconnection", lastMsg)
	}
	if src.reads < maxReadErrors {
		t.Errorf("only %d reads before giving up, budget is %d", src.reads, maxReadErrors)
	}
}

func TestCaptureStopReleasesDevice(t *testing.T) {
	src := newFakeSource(-1, 128)
	open := func(int, Backend) (frameSource, error) { return src, nil }

	c := newCapture(0, nil, open, CaptureSinks{})
	c.Start()
	waitForState(t, c, StateStreaming, 3*time.Second)

	if _, ok := c.LastFrame(); !ok {
		t.Error("no frame available while streaming")
	}
	if s, ok := c.Settings(); !ok || !s.Valid() {
		t.Errorf("settings invalid after initialization: %+v (ok=%v)", s, ok)
	}

	c.Stop()
	if got := c.State(); got != StateStopped {
		t.Errorf("state after stop = %v, want %v", got, StateStopped)
	}
	src.mu.Lock()
	closed := src.closed
	src.mu.Unlock()
	if !closed {
		t.Error("device handle was not released on stop")
	}
}
