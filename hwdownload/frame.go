package hwdownload

import (
	"fmt"

	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/vpi"
)

// Frame is a decoded picture in host memory. Planes are luma and
// interleaved chroma; their memory belongs to the hardware until Free.
type Frame struct {
	Planes    [2]*buffer.Ref
	LineSizes [2]int
	Format    vpi.RawFormat
	Width     int
	Height    int
	PTS       int64
	DTS       int64
	KeyFrame  bool
}

func (f *Frame) Plane(idx int) []byte {
	if f.Planes[idx] == nil {
		return nil
	}
	return f.Planes[idx].Data()
}

// Free returns the planes to the hardware.
func (f *Frame) Free() {
	for idx, plane := range f.Planes {
		if plane != nil {
			plane.Unref()
			f.Planes[idx] = nil
		}
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("hwdownload.Frame(%dx%d; %s; pts:%d; linesizes:%v)", f.Width, f.Height, f.Format, f.PTS, f.LineSizes)
}
