package camera

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/reemio/endoapp/internal/logging"
)

// Probe loop bounds: a full probe stops after this many frames or this
// much wall time, whichever comes first.
const (
	probeMaxFrames = 30
	probeTimeout   = 5 * time.Second
	probeMinFrames = 10

	quickDefaultFPS = 25.0
	fullDefaultFPS  = 10.0
)

// ProbeResult is one measured (resolution, fps) attempt on a device.
type ProbeResult struct {
	Label      string        `json:"label"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FPS        float64       `json:"fps"`
	FrameCount int           `json:"frameCount"`
	Elapsed    time.Duration `json:"elapsed"`
	Backend    Backend       `json:"backend"`
	OK         bool          `json:"ok"`
}

// Capabilities summarizes the best working mode found for a device.
type Capabilities struct {
	DeviceID      int           `json:"deviceId"`
	OptimalWidth  int           `json:"optimalWidth"`
	OptimalHeight int           `json:"optimalHeight"`
	OptimalFPS    float64       `json:"optimalFps"`
	Results       []ProbeResult `json:"results"`
}

// Prober measures what frame rates a device can actually sustain at
// conventional resolutions. Open failures are swallowed and reported as
// zero-fps results, never as errors.
type Prober struct {
	open openFunc
}

func NewProber() *Prober {
	return &Prober{open: openDevice}
}

// probeModes are the conventional resolutions tried by TestCapabilities,
// highest first.
var probeModes = []struct {
	label  string
	width  int
	height int
}{
	{"1080p", 1920, 1080},
	{"720p", 1280, 720},
	{"VGA", 640, 480},
}

// TestCapabilities runs a quick single-frame check per mode and returns
// the best mode that produced a frame. Falls back to VGA defaults when
// nothing works at all.
func (p *Prober) TestCapabilities(deviceID int) Capabilities {
	caps := Capabilities{DeviceID: deviceID}
	for _, mode := range probeModes {
		r := p.ProbeResolution(deviceID, mode.width, mode.height, mode.label, true)
		caps.Results = append(caps.Results, r)
		if r.OK && caps.OptimalWidth == 0 {
			caps.OptimalWidth = r.Width
			caps.OptimalHeight = r.Height
			caps.OptimalFPS = r.FPS
		}
	}
	if caps.OptimalWidth == 0 {
		logging.Warning("Device %d: no probe mode produced a frame, assuming VGA defaults", deviceID)
		caps.OptimalWidth = 640
		caps.OptimalHeight = 480
		caps.OptimalFPS = quickDefaultFPS
	}
	return caps
}

// ProbeResolution opens the device under the platform backend list (first
// that opens wins), requests the given mode, and measures fps. In quick
// mode a single read decides success and the fps is the safe quick
// default either way. In full mode up to probeMaxFrames reads (bounded by
// probeTimeout) are timed; fewer than probeMinFrames is reported as a
// zero-fps failure for the mode.
func (p *Prober) ProbeResolution(deviceID, width, height int, label string, quick bool) ProbeResult {
	result := ProbeResult{Label: label, Width: width, Height: height}

	var src frameSource
	for _, backend := range scanBackends() {
		s, err := p.open(deviceID, backend)
		if err != nil {
			continue
		}
		if !s.IsOpened() {
			s.Close()
			continue
		}
		src = s
		result.Backend = backend
		break
	}
	if src == nil {
		logging.Trace("Probe %s on device %d: no backend opened", label, deviceID)
		return result
	}
	defer src.Close()

	src.Set(gocv.VideoCaptureFrameWidth, float64(width))
	src.Set(gocv.VideoCaptureFrameHeight, float64(height))
	src.Set(gocv.VideoCaptureFPS, maxFPS)
	src.Set(gocv.VideoCaptureBufferSize, 1)

	if w := int(src.Get(gocv.VideoCaptureFrameWidth)); w > 0 {
		result.Width = w
	}
	if h := int(src.Get(gocv.VideoCaptureFrameHeight)); h > 0 {
		result.Height = h
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if quick {
		ok := src.Read(&mat) && !mat.Empty()
		result.OK = ok
		result.FPS = quickDefaultFPS
		if ok {
			result.FrameCount = 1
		}
		return result
	}

	start := time.Now()
	deadline := start.Add(probeTimeout)
	failures := 0
	for result.FrameCount < probeMaxFrames && time.Now().Before(deadline) {
		if src.Read(&mat) && !mat.Empty() {
			result.FrameCount++
			failures = 0
			continue
		}
		failures++
		if failures >= maxReadErrors {
			break
		}
		time.Sleep(readRetryDelay)
	}
	result.Elapsed = time.Since(start)

	if result.FrameCount < probeMinFrames {
		logging.Trace("Probe %s on device %d: only %d frames, rejecting mode", label, deviceID, result.FrameCount)
		result.FPS = 0
		return result
	}

	if result.Elapsed <= 0 {
		result.FPS = fullDefaultFPS
	} else {
		result.FPS = clampFPS(float64(result.FrameCount)/result.Elapsed.Seconds(), fullDefaultFPS)
	}
	result.OK = true
	return result
}
