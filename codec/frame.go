package codec

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/vpe/vpi"
)

// HostFrame is a host-side buffer whose memory backs a hardware picture descriptor.
type HostFrame interface {
	Picture() vpi.Picture
	Free()
}

// FrameAllocator allocates host frames from the hardware frames pool.
type FrameAllocator interface {
	AllocFrame(ctx context.Context) (HostFrame, error)
}

type FrameAllocatorFunc func(ctx context.Context) (HostFrame, error)

func (fn FrameAllocatorFunc) AllocFrame(ctx context.Context) (HostFrame, error) {
	return fn(ctx)
}

// Frame is a decoded frame. It owns HostFrame: call Free when done.
type Frame struct {
	HostFrame           HostFrame
	HardwareFrames      *HardwareFrames
	LineSizes           [3]int
	KeyFrame            bool
	PTS                 int64
	DTS                 int64
	BestEffortTimestamp int64
	Width               int
	Height              int
}

func (f *Frame) Picture() vpi.Picture {
	if f.HostFrame == nil {
		return nil
	}
	return f.HostFrame.Picture()
}

func (f *Frame) Free() {
	if f.HostFrame == nil {
		return
	}
	f.HostFrame.Free()
	f.HostFrame = nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame(%dx%d; pts:%d; dts:%d; key:%t; linesizes:%v)", f.Width, f.Height, f.PTS, f.DTS, f.KeyFrame, f.LineSizes)
}
