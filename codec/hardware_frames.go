package codec

import (
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/vpe/vpi"
)

// StreamParams is what a decoder needs to know about the stream upfront.
type StreamParams struct {
	Width            int
	Height           int
	BitsPerRawSample int
	PixelFormat      astiav.PixelFormat
	FrameRate        astiav.Rational
}

func StreamParamsFromCodecParameters(cp *astiav.CodecParameters) StreamParams {
	return StreamParams{
		Width:            cp.Width(),
		Height:           cp.Height(),
		BitsPerRawSample: cp.BitsPerRawSample(),
		PixelFormat:      cp.PixelFormat(),
		FrameRate:        cp.FrameRate(),
	}
}

// HardwareFrames describes the pool the decoded pictures live in. Frames
// are downloadable only by a downloader configured with the same HardwareFrames.
type HardwareFrames struct {
	Device   vpi.Device
	Width    int
	Height   int
	SWFormat vpi.RawFormat
}

func NewHardwareFrames(
	device vpi.Device,
	params StreamParams,
) (*HardwareFrames, error) {
	if device == nil {
		return nil, fmt.Errorf("no hardware device available")
	}
	return &HardwareFrames{
		Device:   device,
		Width:    params.Width,
		Height:   params.Height,
		SWFormat: SWFormatFor(params.BitsPerRawSample, params.PixelFormat),
	}, nil
}

// SWFormatFor returns the layout of the decoded pictures in host memory.
func SWFormatFor(
	bitsPerRawSample int,
	pixelFormat astiav.PixelFormat,
) vpi.RawFormat {
	if bitsPerRawSample == 10 || pixelFormat == astiav.PixelFormatYuv420P10Le {
		return vpi.RawFormatP010LE
	}
	return vpi.RawFormatNV12
}

func PixelFormatFromRaw(f vpi.RawFormat) astiav.PixelFormat {
	switch f {
	case vpi.RawFormatNV12:
		return astiav.PixelFormatNv12
	case vpi.RawFormatP010LE:
		return astiav.PixelFormatP010Le
	}
	return astiav.PixelFormatNone
}

func (f *HardwareFrames) String() string {
	return fmt.Sprintf("HardwareFrames(%dx%d; %s)", f.Width, f.Height, f.SWFormat)
}
