package camera

import (
	"fmt"
	"runtime"

	"gocv.io/x/gocv"
)

// Backend identifies the OS-level capture API a device is opened through.
type Backend gocv.VideoCaptureAPI

const (
	BackendAny   = Backend(gocv.VideoCaptureAny)
	BackendDShow = Backend(gocv.VideoCaptureDshow)
	BackendMSMF  = Backend(gocv.VideoCaptureMSMF)
	BackendV4L2  = Backend(gocv.VideoCaptureV4L2)
)

func (b Backend) String() string {
	switch b {
	case BackendDShow:
		return "DirectShow"
	case BackendMSMF:
		return "MSMF"
	case BackendV4L2:
		return "V4L2"
	case BackendAny:
		return "Auto"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// scanBackends returns the platform-ordered backend list used during
// device discovery. USB capture cards on Windows often only work with
// DirectShow, so it goes first there.
func scanBackends() []Backend {
	if runtime.GOOS == "windows" {
		return []Backend{BackendDShow, BackendMSMF, BackendAny}
	}
	return []Backend{BackendV4L2, BackendAny}
}

// primaryBackend is the backend assumed when discovery is skipped
// (PREFERRED_CAMERA_ID fast path).
func primaryBackend() Backend {
	return scanBackends()[0]
}

// openBackends returns the open-priority list for a device: the remembered
// backend first, then the platform fallback order, de-duplicated.
func openBackends(preferred []Backend) []Backend {
	order := append([]Backend{}, preferred...)
	order = append(order, scanBackends()...)

	seen := make(map[Backend]bool, len(order))
	var out []Backend
	for _, b := range order {
		if !seen[b] {
			out = append(out, b)
			seen[b] = true
		}
	}
	return out
}
