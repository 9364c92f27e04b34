package camera

import (
	"fmt"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// fakeSource simulates a device. goodReads is the number of successful
// reads to serve (-1 for unlimited); brightness is the pixel value of
// served frames.
type fakeSource struct {
	mu         sync.Mutex
	opened     bool
	closed     bool
	goodReads  int
	brightness float64
	width      int
	height     int
	fps        float64
	reads      int
}

func newFakeSource(goodReads int, brightness float64) *fakeSource {
	return &fakeSource{
		opened:     true,
		goodReads:  goodReads,
		brightness: brightness,
		width:      640,
		height:     480,
		fps:        25,
	}
}

func (f *fakeSource) IsOpened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened && !f.closed
}

func (f *fakeSource) Read(dst *gocv.Mat) bool {
	f.mu.Lock()
	f.reads++
	if f.goodReads == 0 {
		f.mu.Unlock()
		return false
	}
	if f.goodReads > 0 {
		f.goodReads--
	}
	v := f.brightness
	rows, cols := f.height, f.width
	f.mu.Unlock()

	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), rows, cols, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(dst)
	return true
}

func (f *fakeSource) Set(prop gocv.VideoCaptureProperties, value float64) {}

func (f *fakeSource) Get(prop gocv.VideoCaptureProperties) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch prop {
	case gocv.VideoCaptureFrameWidth:
		return float64(f.width)
	case gocv.VideoCaptureFrameHeight:
		return float64(f.height)
	case gocv.VideoCaptureFPS:
		return f.fps
	}
	return 0
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// fakeWriter counts frames instead of encoding them.
type fakeWriter struct {
	mu     sync.Mutex
	opened bool
	closed bool
	frames int
}

func (w *fakeWriter) IsOpened() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opened && !w.closed
}

func (w *fakeWriter) Write(img gocv.Mat) error {
	w.mu.Lock()
	w.frames++
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) frameCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// fakeWriterFactory creates the output file (as a real writer would) and
// hands back a counting writer.
func fakeWriterFactory(w *fakeWriter) writerFactory {
	return func(path string, fps float64, width, height int) (videoWriter, error) {
		if err := os.WriteFile(path, []byte("avi"), 0644); err != nil {
			return nil, err
		}
		w.opened = true
		return w, nil
	}
}

// testFrame builds a mid-gray 3-channel frame.
func testFrame(width, height int) Frame {
	f := blackFrame(width, height)
	for i := range f.Data {
		f.Data[i] = 128
	}
	return f
}

func failingOpen(deviceID int, backend Backend) (frameSource, error) {
	return nil, fmt.Errorf("no device at index %d", deviceID)
}
