package camera

import (
	"gocv.io/x/gocv"
)

// frameSource is the slice of *gocv.VideoCapture the pipeline relies on.
// Tests substitute simulated devices here.
type frameSource interface {
	IsOpened() bool
	Read(dst *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, value float64)
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// openFunc opens a device index under a specific backend.
type openFunc func(deviceID int, backend Backend) (frameSource, error)

// openDevice is the production openFunc.
func openDevice(deviceID int, backend Backend) (frameSource, error) {
	cap, err := gocv.OpenVideoCaptureWithAPI(deviceID, gocv.VideoCaptureAPI(backend))
	if err != nil {
		return nil, err
	}
	return cap, nil
}
