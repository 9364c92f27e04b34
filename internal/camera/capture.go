package camera

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/reemio/endoapp/internal/logging"
)

// CaptureState tracks where the capture goroutine is in its lifecycle.
type CaptureState int32

const (
	StateIdle CaptureState = iota
	StateOpening
	StateWarmingUp
	StateStreaming
	StateStopping
	StateStopped
	StateErrored
)

func (s CaptureState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateWarmingUp:
		return "warming-up"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

const (
	// maxReadErrors is the consecutive read-failure budget before the
	// stream is declared fatal.
	maxReadErrors = 10
	// stopTimeout bounds the join when stopping the capture goroutine.
	stopTimeout = 3 * time.Second
	// readRetryDelay is the pause after a failed read.
	readRetryDelay = 100 * time.Millisecond
	// brightnessFloor is the mean-pixel threshold separating a real
	// frame from the black/blank output many devices produce while
	// settling.
	brightnessFloor = 1.0
)

// CaptureSinks receives the capture goroutine's output. All callbacks run
// on the capture goroutine and must not block; nil callbacks are skipped.
type CaptureSinks struct {
	// OnInitialized fires once after a successful open with the
	// negotiated settings.
	OnInitialized func(Settings)
	// OnDisplay receives an RGBA copy of each frame for the preview.
	OnDisplay func(image.Image)
	// OnRecord receives the raw BGR frame by value.
	OnRecord func(Frame)
	// OnFatal fires at most once, when the stream cannot continue.
	OnFatal func(msg string)
}

// Capture owns one device handle and streams frames from it on a
// dedicated goroutine.
type Capture struct {
	deviceID  int
	preferred []Backend
	open      openFunc
	sinks     CaptureSinks

	state atomic.Int32

	// mu guards source and running across state transitions. The
	// blocking Read in the stream loop runs without it.
	mu      sync.Mutex
	source  frameSource
	running bool
	stopped bool

	backend     Backend
	settings    Settings
	haveSet     bool
	lastFrame   Frame
	fatalIssued bool

	done chan struct{}
}

// newCapture builds a capture worker for a device. preferred, when
// non-nil, is tried before the platform backend order.
func newCapture(deviceID int, preferred []Backend, open openFunc, sinks CaptureSinks) *Capture {
	if open == nil {
		open = openDevice
	}
	return &Capture{
		deviceID:  deviceID,
		preferred: preferred,
		open:      open,
		sinks:     sinks,
		done:      make(chan struct{}),
	}
}

// Start launches the capture goroutine. Call once.
func (c *Capture) Start() {
	go c.run()
}

// State returns the current lifecycle state.
func (c *Capture) State() CaptureState {
	return CaptureState(c.state.Load())
}

// Settings returns the negotiated settings once the device has opened.
func (c *Capture) Settings() (Settings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings, c.haveSet
}

// UsedBackend reports which backend actually opened the device.
func (c *Capture) UsedBackend() (Backend, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend, c.haveSet
}

// LastFrame returns a copy of the most recently streamed frame.
func (c *Capture) LastFrame() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastFrame.Empty() {
		return Frame{}, false
	}
	return c.lastFrame.Clone(), true
}

// Stop clears the running flag, waits up to stopTimeout for the goroutine
// to exit, and releases the device handle regardless.
func (c *Capture) Stop() {
	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	c.stopped = true
	c.mu.Unlock()

	if wasRunning || c.State() == StateOpening || c.State() == StateWarmingUp {
		c.state.Store(int32(StateStopping))
	}

	select {
	case <-c.done:
	case <-time.After(stopTimeout):
		logging.Warning("Camera %d: capture loop did not stop within %s, releasing device anyway", c.deviceID, stopTimeout)
	}
	c.releaseSource()
}

func (c *Capture) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Capture) releaseSource() {
	c.mu.Lock()
	src := c.source
	c.source = nil
	c.mu.Unlock()
	if src != nil {
		src.Close()
	}
}

// fatal reports an unrecoverable stream failure, at most once.
func (c *Capture) fatal(msg string) {
	if c.fatalIssued {
		return
	}
	c.fatalIssued = true
	c.state.Store(int32(StateErrored))
	logging.Error("Camera %d: %s", c.deviceID, msg)
	if c.sinks.OnFatal != nil {
		c.sinks.OnFatal(msg)
	}
}

func (c *Capture) run() {
	defer close(c.done)
	defer c.releaseSource()

	src := c.openSource()
	if src == nil {
		c.fatal(fmt.Sprintf("could not open camera device %d", c.deviceID))
		return
	}

	settings := c.negotiate(src)
	c.mu.Lock()
	c.settings = settings
	c.haveSet = true
	c.running = !c.stopped
	c.mu.Unlock()

	logging.Info("Camera %d: opened via %s at %dx%d @ %.1f fps (capture device: %v)",
		c.deviceID, c.backend, settings.Width, settings.Height, settings.FPS, settings.IsCaptureDevice)
	if c.sinks.OnInitialized != nil {
		c.sinks.OnInitialized(settings)
	}

	mat := gocv.NewMat()
	defer mat.Close()

	c.warmUp(src, settings, &mat)
	if !c.isRunning() {
		c.state.Store(int32(StateStopped))
		return
	}

	c.state.Store(int32(StateStreaming))
	c.stream(src, settings, &mat)

	if c.State() != StateErrored {
		c.state.Store(int32(StateStopped))
	}
}

// openSource walks the backend priority list and keeps the first backend
// that both opens and reports the device as opened.
func (c *Capture) openSource() frameSource {
	c.state.Store(int32(StateOpening))
	for _, backend := range openBackends(c.preferred) {
		src, err := c.open(c.deviceID, backend)
		if err != nil {
			logging.Trace("Camera %d: %s open failed: %v", c.deviceID, backend, err)
			continue
		}
		if !src.IsOpened() {
			src.Close()
			logging.Trace("Camera %d: %s opened but device not ready", c.deviceID, backend)
			continue
		}
		c.mu.Lock()
		c.source = src
		c.backend = backend
		c.mu.Unlock()
		return src
	}
	return nil
}

// negotiate reads back what the device actually granted. Devices that
// report fps == 0 are treated as capture cards.
func (c *Capture) negotiate(src frameSource) Settings {
	src.Set(gocv.VideoCaptureBufferSize, 1)

	width := int(src.Get(gocv.VideoCaptureFrameWidth))
	height := int(src.Get(gocv.VideoCaptureFrameHeight))
	reported := src.Get(gocv.VideoCaptureFPS)

	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return Settings{
		Width:           width,
		Height:          height,
		FPS:             clampFPS(reported, maxFPS),
		IsCaptureDevice: reported == 0,
	}
}

// warmUp waits for the first non-blank frame. Capture cards need longer:
// HDMI sources can take seconds to sync. If nothing usable shows up the
// session continues on a synthesized black placeholder.
func (c *Capture) warmUp(src frameSource, settings Settings, mat *gocv.Mat) {
	c.state.Store(int32(StateWarmingUp))

	tries, timeout := 10, time.Second
	if settings.IsCaptureDevice {
		tries, timeout = 30, 3*time.Second
	}

	deadline := time.Now().Add(timeout)
	for i := 0; i < tries && time.Now().Before(deadline) && c.isRunning(); i++ {
		if src.Read(mat) && !mat.Empty() {
			mean := mat.Mean()
			if (mean.Val1+mean.Val2+mean.Val3)/3 > brightnessFloor {
				logging.Trace("Camera %d: first usable frame after %d warm-up reads", c.deviceID, i+1)
				c.deliver(*mat)
				return
			}
		}
		time.Sleep(readRetryDelay)
	}

	if !c.isRunning() {
		return
	}
	logging.Warning("Camera %d: no usable frame during warm-up, continuing with a blank placeholder", c.deviceID)
	c.deliverFrame(blackFrame(settings.Width, settings.Height))
}

// stream is the paced read loop: never read faster than 1/fps, retry
// transient failures, and give up once the error budget is spent.
func (c *Capture) stream(src frameSource, settings Settings, mat *gocv.Mat) {
	interval := time.Duration(float64(time.Second) / settings.FPS)
	var lastRead time.Time
	errorCount := 0

	for c.isRunning() {
		if !src.IsOpened() {
			c.fatal(fmt.Sprintf("camera device %d disconnected", c.deviceID))
			return
		}

		if since := time.Since(lastRead); since < interval {
			time.Sleep(interval - since)
			continue
		}

		if !src.Read(mat) || mat.Empty() {
			errorCount++
			logging.Trace("Camera %d: read failure %d/%d", c.deviceID, errorCount, maxReadErrors)
			if errorCount >= maxReadErrors {
				c.fatal(fmt.Sprintf("camera device %d disconnected or failing (%d consecutive read errors)", c.deviceID, errorCount))
				return
			}
			time.Sleep(readRetryDelay)
			continue
		}

		errorCount = 0
		lastRead = time.Now()
		c.deliver(*mat)
	}
}

// deliver copies the read mat out and fans the copy to both consumers.
func (c *Capture) deliver(mat gocv.Mat) {
	c.deliverFrame(frameFromMat(mat))
}

func (c *Capture) deliverFrame(frame Frame) {
	c.mu.Lock()
	c.lastFrame = frame.Clone()
	c.mu.Unlock()

	if c.sinks.OnRecord != nil {
		c.sinks.OnRecord(frame.Clone())
	}
	if c.sinks.OnDisplay != nil {
		if img := frame.toDisplayImage(); img != nil {
			c.sinks.OnDisplay(img)
		}
	}
}

// toDisplayImage converts a BGR frame into an image.RGBA for the UI.
func (f Frame) toDisplayImage() image.Image {
	if f.Empty() || f.Channels != 3 {
		return nil
	}
	src, err := f.toMat()
	if err != nil {
		return nil
	}
	defer src.Close()

	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(src, &rgba, gocv.ColorBGRToRGBA)

	return &image.RGBA{
		Pix:    rgba.ToBytes(),
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
