package camera

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/reemio/endoapp/internal/files"
	"github.com/reemio/endoapp/internal/logging"
)

// videoCodec is the fourcc written into the AVI container. XVID plays
// everywhere the report UI runs without extra codec packs.
const videoCodec = "XVID"

// defaultRecordFPS is used when no device settings arrived before a
// recording starts.
const defaultRecordFPS = 25.0

// videoWriter is the slice of *gocv.VideoWriter the recorder uses.
type videoWriter interface {
	IsOpened() bool
	Write(img gocv.Mat) error
	Close() error
}

// writerFactory opens an output container. Tests substitute an in-memory
// writer here.
type writerFactory func(path string, fps float64, width, height int) (videoWriter, error)

func newFileWriter(path string, fps float64, width, height int) (videoWriter, error) {
	return gocv.VideoWriterFile(path, videoCodec, fps, width, height, true)
}

// pathResolver maps a generated filename to its destination in the data
// tree.
type pathResolver func(filename string) (string, error)

// Recorder owns one output file at a time and paces incoming frames down
// to the negotiated rate. WriteFrame runs on the capture goroutine and
// never blocks on anything slower than a single encoded write.
type Recorder struct {
	mu sync.Mutex

	resolvePath pathResolver
	newWriter   writerFactory
	verify      func(path string)

	fps      float64
	interval time.Duration
	width    int
	height   int

	recording  bool
	writer     videoWriter
	videoPath  string
	startTime  time.Time
	lastAccept time.Time
	frameCount int
}

// NewRecorder builds a recorder writing files at the paths resolve
// produces.
func NewRecorder(resolve pathResolver) *Recorder {
	r := &Recorder{
		resolvePath: resolve,
		newWriter:   newFileWriter,
		fps:         defaultRecordFPS,
	}
	r.verify = r.verifyFile
	return r
}

// UpdateSettings reconfigures target pacing and frame size. Takes effect
// for the next session; an active session keeps its negotiated shape.
func (r *Recorder) UpdateSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		logging.Warning("Recorder settings update ignored while recording is active")
		return
	}
	r.fps = clampFPS(s.FPS, defaultRecordFPS)
	r.width = s.Width
	r.height = s.Height
	logging.Trace("Recorder configured for %dx%d @ %.1f fps", r.width, r.height, r.fps)
}

// IsRecording reports whether a session is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// VideoPath returns the output path of the active session.
func (r *Recorder) VideoPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.videoPath
}

// Duration returns how long the active session has been running.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return 0
	}
	return time.Since(r.startTime)
}

// FrameCount returns the number of frames accepted so far.
func (r *Recorder) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}

// StartRecording opens a new timestamped output file and returns its
// path. When initial is a valid 3-channel frame its shape takes
// precedence over the configured settings. Invalid fps or frame size
// refuses the session; no partial file is left behind.
func (r *Recorder) StartRecording(initial *Frame) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return "", fmt.Errorf("recording already in progress")
	}

	width, height := r.width, r.height
	if initial != nil && !initial.Empty() && initial.Channels == 3 {
		width, height = initial.Width, initial.Height
	}
	if width <= 0 || height <= 0 || r.fps <= 0 {
		return "", fmt.Errorf("recorder not configured: %dx%d @ %.1f fps", width, height, r.fps)
	}

	filename := timestampedVideoName()
	path, err := r.resolvePath(filename)
	if err != nil {
		return "", fmt.Errorf("failed to resolve video path: %w", err)
	}

	writer, err := r.newWriter(path, r.fps, width, height)
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to open video writer for %s: %w", path, err)
	}
	if !writer.IsOpened() {
		writer.Close()
		os.Remove(path)
		return "", fmt.Errorf("video writer did not open for %s", path)
	}

	r.writer = writer
	r.videoPath = path
	r.width = width
	r.height = height
	r.interval = time.Duration(float64(time.Second) / r.fps)
	r.startTime = time.Now()
	r.lastAccept = time.Time{}
	r.frameCount = 0
	r.recording = true

	logging.Info("Recording started: %s (%dx%d @ %.1f fps)", path, width, height, r.fps)
	return path, nil
}

// WriteFrame encodes one frame into the active session. No-op when
// inactive. Frames arriving sooner than 1/fps after the last accepted
// frame are dropped; the first frame of a session is always accepted.
// Mismatched sizes are resized, non-3-channel frames are skipped.
func (r *Recorder) WriteFrame(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording || r.writer == nil || !r.writer.IsOpened() {
		return
	}
	if f.Empty() {
		return
	}
	if f.Channels != 3 {
		logging.Trace("Recorder skipping %d-channel frame", f.Channels)
		return
	}

	now := time.Now()
	if !r.lastAccept.IsZero() && now.Sub(r.lastAccept) < r.interval {
		return
	}

	mat, err := f.toMat()
	if err != nil {
		logging.Warning("Recorder could not rebuild frame: %v", err)
		return
	}
	defer mat.Close()

	if f.Width != r.width || f.Height != r.height {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(r.width, r.height), 0, 0, gocv.InterpolationLinear)
		if err := r.writer.Write(resized); err != nil {
			logging.Warning("Recorder write failed: %v", err)
			return
		}
	} else if err := r.writer.Write(mat); err != nil {
		logging.Warning("Recorder write failed: %v", err)
		return
	}

	r.lastAccept = now
	r.frameCount++
	if r.frameCount%60 == 0 {
		logging.Trace("Recording: %d frames, %.1fs", r.frameCount, time.Since(r.startTime).Seconds())
	}
}

// StopRecording closes the writer, logs the achieved rate, verifies the
// file re-opens as a readable container, and returns the output path. A
// session with zero accepted frames still closes cleanly.
func (r *Recorder) StopRecording() (string, error) {
	r.mu.Lock()

	if !r.recording {
		r.mu.Unlock()
		return "", fmt.Errorf("no recording in progress")
	}

	r.recording = false
	path := r.videoPath
	count := r.frameCount
	elapsed := time.Since(r.startTime)
	if count == 0 {
		elapsed = 0
	}

	if err := r.writer.Close(); err != nil {
		logging.Warning("Error closing video writer: %v", err)
	}
	r.writer = nil
	r.videoPath = ""
	r.mu.Unlock()

	achieved := 0.0
	if elapsed > 0 {
		achieved = float64(count) / elapsed.Seconds()
	}
	logging.Info("Recording stopped: %s (%d frames in %.1fs, %.1f fps achieved)",
		path, count, elapsed.Seconds(), achieved)

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("video file was not created: %s", path)
	}
	if r.verify != nil {
		r.verify(path)
	}
	return path, nil
}

func timestampedVideoName() string {
	return files.TimestampedName("vid", "avi", true)
}

// verifyFile re-opens the finished container to confirm it is readable.
// Failures are diagnostic only.
func (r *Recorder) verifyFile(path string) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		logging.Warning("Could not verify video file %s: %v", path, err)
		return
	}
	defer vc.Close()
	frames := vc.Get(gocv.VideoCaptureFrameCount)
	logging.Trace("Verified video file %s: %.0f frames", path, frames)
}
