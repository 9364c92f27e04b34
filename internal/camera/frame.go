package camera

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is a value-copied pixel buffer. The capture loop hands an
// independent Frame to each consumer, so nothing downstream shares a
// mutable buffer with the device read loop.
type Frame struct {
	Width      int
	Height     int
	Channels   int
	Data       []byte
	CapturedAt time.Time
}

// Empty reports whether the frame carries no pixel data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := f
	out.Data = append([]byte(nil), f.Data...)
	return out
}

// frameFromMat copies a BGR mat out into an owned buffer.
func frameFromMat(m gocv.Mat) Frame {
	return Frame{
		Width:      m.Cols(),
		Height:     m.Rows(),
		Channels:   m.Channels(),
		Data:       m.ToBytes(),
		CapturedAt: time.Now(),
	}
}

// toMat rebuilds a 3-channel mat from the frame buffer. The caller owns
// the returned mat and must close it.
func (f Frame) toMat() (gocv.Mat, error) {
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
}

// blackFrame synthesizes an all-zero placeholder of the given size, used
// when warm-up never produced a usable frame.
func blackFrame(width, height int) Frame {
	return Frame{
		Width:      width,
		Height:     height,
		Channels:   3,
		Data:       make([]byte, width*height*3),
		CapturedAt: time.Now(),
	}
}
