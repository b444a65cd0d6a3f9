package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/vpe/codec"
	"github.com/xaionaro-go/vpe/hwdownload"
	"github.com/xaionaro-go/vpe/logger"
)

// FrameToAVFrame copies a downloaded frame into a new *astiav.Frame from
// FramePool. The caller owns the result and should return it to FramePool.
func FrameToAVFrame(
	ctx context.Context,
	in *hwdownload.Frame,
) (_ret *astiav.Frame, _err error) {
	logger.Tracef(ctx, "FrameToAVFrame: %v", in)
	defer func() { logger.Tracef(ctx, "/FrameToAVFrame: %v", _err) }()

	pixFmt := codec.PixelFormatFromRaw(in.Format)
	if pixFmt == astiav.PixelFormatNone {
		return nil, fmt.Errorf("unsupported format %s", in.Format)
	}

	f := FramePool.Get()
	f.SetWidth(in.Width)
	f.SetHeight(in.Height)
	f.SetPixelFormat(pixFmt)
	f.SetPts(in.PTS)
	if in.KeyFrame {
		f.SetFlags(f.Flags().Add(astiav.FrameFlagKey))
	}
	if err := f.AllocBuffer(0); err != nil {
		FramePool.Put(f)
		return nil, fmt.Errorf("unable to allocate a frame buffer: %w", err)
	}

	packed, err := PackPlanes(in)
	if err != nil {
		FramePool.Put(f)
		return nil, err
	}
	if err := f.Data().SetBytes(packed, 1); err != nil {
		FramePool.Put(f)
		return nil, fmt.Errorf("unable to copy the planes: %w", err)
	}
	return f, nil
}

// PackPlanes returns the planes of a semi-planar frame without the
// line paddings, luma first.
func PackPlanes(in *hwdownload.Frame) ([]byte, error) {
	rowSize := in.Width * in.Format.BytesPerSample()
	heights := [2]int{in.Height, (in.Height + 1) / 2}

	result := make([]byte, 0, rowSize*(heights[0]+heights[1]))
	for idx, height := range heights {
		plane := in.Plane(idx)
		stride := in.LineSizes[idx]
		if stride < rowSize {
			return nil, fmt.Errorf("plane #%d: line size %d is less than the row size %d", idx, stride, rowSize)
		}
		if len(plane) < stride*(height-1)+rowSize {
			return nil, fmt.Errorf("plane #%d is too short: %d < %d", idx, len(plane), stride*(height-1)+rowSize)
		}
		for y := range height {
			result = append(result, plane[y*stride:y*stride+rowSize]...)
		}
	}
	return result, nil
}
