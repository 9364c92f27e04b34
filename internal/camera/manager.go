package camera

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/reemio/endoapp/internal/config"
	"github.com/reemio/endoapp/internal/files"
	"github.com/reemio/endoapp/internal/logging"
	"github.com/reemio/endoapp/internal/state"
	"github.com/reemio/endoapp/internal/status"
)

// Scan bounds: per (index, backend) pair up to scanReads timed reads
// decide whether the pair works; scanning stops early once
// scanFailureLimit consecutive indices found nothing, but the first
// scanMinIndices indices are always tried.
const (
	scanReads        = 5
	scanFailureLimit = 4
	scanMinIndices   = 3
)

// DeviceInfo describes one discovered camera.
type DeviceInfo struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Backend Backend `json:"backend"`
}

// Manager owns the active capture worker and the recorder, discovers
// devices, and applies the one-level fallback policy on fatal errors.
type Manager struct {
	cfg      *config.Config
	filesMgr *files.Manager
	recorder *Recorder
	open     openFunc

	// OnDisplayFrame receives preview images; set before Initialize.
	OnDisplayFrame func(image.Image)
	// OnCamerasDiscovered fires when an asynchronous scan finishes.
	OnCamerasDiscovered func([]DeviceInfo)

	mu            sync.Mutex
	capture       *Capture
	currentID     int
	backends      map[int]Backend // remembered working backend per index
	settings      Settings
	haveSettings  bool
	devices       []DeviceInfo
	fallbackTried bool
	closed        bool
}

// NewManager wires the capture pipeline against the configuration and the
// data tree.
func NewManager(cfg *config.Config, filesMgr *files.Manager) *Manager {
	m := &Manager{
		cfg:       cfg,
		filesMgr:  filesMgr,
		open:      openDevice,
		currentID: -1,
		backends:  make(map[int]Backend),
	}
	m.recorder = NewRecorder(func(filename string) (string, error) {
		hospital, name, id := state.Patient()
		if hospital == "" {
			hospital = cfg.Hospital
		}
		return filesMgr.GetFilePath(files.KindVideo, filename, hospital, name, id)
	})
	return m
}

// Initialize starts the camera pipeline. With PREFERRED_CAMERA_ID set,
// discovery is skipped and that index opens directly under the primary
// backend; otherwise discovery runs on its own goroutine and the first
// working device starts afterwards. DISABLE_CAMERA suppresses everything.
func (m *Manager) Initialize() {
	if m.cfg.DisableCamera {
		logging.Info("Camera initialization disabled")
		status.Send(status.Error, "Camera disabled")
		return
	}

	if m.cfg.PreferredCameraID >= 0 {
		id := m.cfg.PreferredCameraID
		logging.Info("Skipping discovery, opening camera %d directly", id)
		m.mu.Lock()
		m.backends[id] = primaryBackend()
		m.mu.Unlock()
		m.startCapture(id)
		return
	}

	status.Send(status.Initializing, "Scanning for cameras")
	go func() {
		devices := m.ScanCameras()
		if m.OnCamerasDiscovered != nil {
			m.OnCamerasDiscovered(devices)
		}

		id := devices[0].ID
		for _, d := range devices {
			if d.ID == m.cfg.Camera.PreferredDevice {
				id = d.ID
				break
			}
		}
		m.startCapture(id)
	}()
}

// AvailableCameras returns the result of the last scan.
func (m *Manager) AvailableCameras() []DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeviceInfo(nil), m.devices...)
}

// CurrentCamera returns the active device id, or -1.
func (m *Manager) CurrentCamera() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

// Settings returns the negotiated settings of the active device.
func (m *Manager) Settings() (Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, m.haveSettings
}

// IsRecording reports whether a recording session is active.
func (m *Manager) IsRecording() bool {
	return m.recorder.IsRecording()
}

// RecordingDuration returns the elapsed time of the active session.
func (m *Manager) RecordingDuration() time.Duration {
	return m.recorder.Duration()
}

// ScanCameras probes a bounded index range against the platform backend
// list. The first backend yielding a non-empty frame is remembered as the
// device's working backend. Always returns at least a synthetic default
// entry.
func (m *Manager) ScanCameras() []DeviceInfo {
	maxDevices := m.cfg.Camera.MaxDevices
	if maxDevices <= 0 {
		maxDevices = 10
	}

	var found []DeviceInfo
	consecutiveFailures := 0

	for idx := 0; idx < maxDevices; idx++ {
		info, ok := m.probeIndex(idx)
		if !ok {
			consecutiveFailures++
			if consecutiveFailures >= scanFailureLimit && idx >= scanMinIndices {
				logging.Trace("Scan stopping at index %d after %d consecutive failures", idx, consecutiveFailures)
				break
			}
			continue
		}
		consecutiveFailures = 0
		found = append(found, info)
	}

	if len(found) == 0 {
		logging.Warning("No cameras found during scan, falling back to default device entry")
		found = []DeviceInfo{{ID: 0, Name: "Default Camera", Backend: BackendAny}}
	}

	m.mu.Lock()
	m.devices = found
	for _, d := range found {
		m.backends[d.ID] = d.Backend
	}
	m.mu.Unlock()

	logging.Info("Camera scan found %d device(s)", len(found))
	return found
}

// probeIndex tries each backend on one index until a frame comes out.
func (m *Manager) probeIndex(idx int) (DeviceInfo, bool) {
	for _, backend := range scanBackends() {
		src, err := m.open(idx, backend)
		if err != nil || !src.IsOpened() {
			if src != nil {
				src.Close()
			}
			continue
		}

		src.Set(gocv.VideoCaptureBufferSize, 1)
		mat := gocv.NewMat()
		got := false
		for read := 0; read < scanReads; read++ {
			if src.Read(&mat) && !mat.Empty() {
				got = true
				break
			}
			time.Sleep(readRetryDelay)
		}

		width := int(src.Get(gocv.VideoCaptureFrameWidth))
		height := int(src.Get(gocv.VideoCaptureFrameHeight))
		mat.Close()
		src.Close()

		if !got {
			continue
		}

		name := fmt.Sprintf("Camera %d (%dx%d)", idx, width, height)
		if width >= 1280 || height >= 720 {
			name = fmt.Sprintf("Capture Device %d (%dx%d)", idx, width, height)
		}
		logging.Trace("Scan: device %d works via %s", idx, backend)
		return DeviceInfo{ID: idx, Name: name, Backend: backend}, true
	}
	return DeviceInfo{}, false
}

// SelectCamera switches the pipeline to another device: any active
// recording stops first, then the old capture worker is torn down before
// the new device opens. The choice is persisted as the preferred device.
func (m *Manager) SelectCamera(id int) error {
	m.mu.Lock()
	current := m.currentID
	m.mu.Unlock()
	if id == current {
		return nil
	}

	logging.Info("Switching camera %d -> %d", current, id)
	if m.recorder.IsRecording() {
		if _, err := m.StopRecording(); err != nil {
			logging.Warning("Stopping recording before camera switch: %v", err)
		}
	}
	m.stopCapture()

	if err := m.cfg.UpdatePreferredCamera(id); err != nil {
		logging.Warning("Could not persist preferred camera: %v", err)
	}

	m.mu.Lock()
	m.fallbackTried = false
	m.mu.Unlock()

	m.startCapture(id)
	return nil
}

// StartRecording validates negotiated settings and opens a session seeded
// with the latest streamed frame.
func (m *Manager) StartRecording() (string, error) {
	m.mu.Lock()
	settings := m.settings
	ready := m.haveSettings
	capture := m.capture
	m.mu.Unlock()

	if !ready || !settings.Valid() {
		status.Send(status.Error, "Camera not ready")
		return "", fmt.Errorf("camera not ready: no valid device settings")
	}

	m.recorder.UpdateSettings(settings)

	var initial *Frame
	if capture != nil {
		if f, ok := capture.LastFrame(); ok {
			initial = &f
		}
	}

	path, err := m.recorder.StartRecording(initial)
	if err != nil {
		status.Send(status.Error, fmt.Sprintf("Failed to start recording: %v", err))
		return "", err
	}

	raisePriority()
	status.Send(status.Recording, "Recording")
	return path, nil
}

// StopRecording finalizes the active session and returns the output path.
func (m *Manager) StopRecording() (string, error) {
	if !m.recorder.IsRecording() {
		return "", fmt.Errorf("no recording in progress")
	}

	path, err := m.recorder.StopRecording()
	restorePriority()
	if err != nil {
		status.Send(status.Error, fmt.Sprintf("Failed to stop recording: %v", err))
		return "", err
	}
	status.Send(status.Done, path)
	return path, nil
}

// CaptureImage saves the latest streamed frame as a JPEG in the patient
// tree and returns its path.
func (m *Manager) CaptureImage() (string, error) {
	m.mu.Lock()
	capture := m.capture
	m.mu.Unlock()

	if capture == nil || capture.State() != StateStreaming {
		status.Send(status.Error, "Camera not ready")
		return "", fmt.Errorf("camera not streaming")
	}
	frame, ok := capture.LastFrame()
	if !ok {
		return "", fmt.Errorf("no frame available")
	}

	mat, err := frame.toMat()
	if err != nil {
		return "", fmt.Errorf("failed to rebuild frame: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	hospital, name, id := state.Patient()
	if hospital == "" {
		hospital = m.cfg.Hospital
	}
	filename := files.TimestampedName("img", "jpg", true)
	path, err := m.filesMgr.SaveCapturedImage(buf.GetBytes(), filename, hospital, name, id)
	if err != nil {
		return "", err
	}
	status.Send(status.Done, path)
	return path, nil
}

// Close stops recording and tears down the capture worker.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	if m.recorder.IsRecording() {
		if _, err := m.recorder.StopRecording(); err != nil {
			logging.Warning("Stopping recording on close: %v", err)
		}
		restorePriority()
	}
	m.stopCapture()
}

func (m *Manager) startCapture(id int) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.currentID = id
	m.haveSettings = false
	var preferred []Backend
	if b, ok := m.backends[id]; ok {
		preferred = []Backend{b}
	}
	m.mu.Unlock()

	status.Send(status.Initializing, fmt.Sprintf("Opening camera %d", id))

	capture := newCapture(id, preferred, m.open, CaptureSinks{
		OnInitialized: func(s Settings) { m.handleInitialized(id, s) },
		OnDisplay: func(img image.Image) {
			if m.OnDisplayFrame != nil {
				m.OnDisplayFrame(img)
			}
		},
		OnRecord: func(f Frame) {
			if m.recorder.IsRecording() {
				m.recorder.WriteFrame(f)
			}
		},
		OnFatal: func(msg string) { m.handleFatal(id, msg) },
	})

	m.mu.Lock()
	m.capture = capture
	m.mu.Unlock()
	capture.Start()
}

func (m *Manager) stopCapture() {
	m.mu.Lock()
	capture := m.capture
	m.capture = nil
	m.haveSettings = false
	m.mu.Unlock()
	if capture != nil {
		capture.Stop()
	}
}

func (m *Manager) handleInitialized(id int, s Settings) {
	m.mu.Lock()
	m.settings = s
	m.haveSettings = true
	m.fallbackTried = false
	if capture := m.capture; capture != nil {
		if b, ok := capture.UsedBackend(); ok {
			m.backends[id] = b
		}
	}
	m.mu.Unlock()

	m.recorder.UpdateSettings(s)
	status.Send(status.Ready, fmt.Sprintf("Camera %d ready (%dx%d @ %.0f fps)", id, s.Width, s.Height, s.FPS))
}

// handleFatal applies the fallback policy: for open/disconnect failures
// exactly one other device id is tried before the error stands.
func (m *Manager) handleFatal(id int, msg string) {
	status.Send(status.Error, msg)

	if !strings.Contains(msg, "could not open") && !strings.Contains(msg, "disconnected") {
		return
	}

	m.mu.Lock()
	if m.fallbackTried || m.closed {
		m.mu.Unlock()
		return
	}
	m.fallbackTried = true
	m.mu.Unlock()

	go func() {
		m.stopCapture()

		fallback := -1
		for _, d := range m.ScanCameras() {
			if d.ID != id {
				fallback = d.ID
				break
			}
		}
		if fallback < 0 {
			logging.Error("Camera %d failed and no fallback device is available", id)
			return
		}

		logging.Info("Camera %d failed, falling back to device %d", id, fallback)
		m.startCapture(fallback)
	}()
}
