package vpi

import (
	"fmt"
)

// Settings is the closed set of the Init payloads.
type Settings interface {
	fmt.Stringer
	isSettings()
}

type RawFormat int

const (
	RawFormatUndefined = RawFormat(iota)
	RawFormatNV12
	RawFormatP010LE
)

func (f RawFormat) String() string {
	switch f {
	case RawFormatUndefined:
		return "undefined"
	case RawFormatNV12:
		return "nv12"
	case RawFormatP010LE:
		return "p010le"
	}
	return fmt.Sprintf("unknown_raw_format_%d", int(f))
}

// BytesPerSample returns the size of a luma sample.
func (f RawFormat) BytesPerSample() int {
	if f == RawFormatP010LE {
		return 2
	}
	return 1
}

type DecoderSettings struct {
	// PPSetting is the low-resolution (down-scale) outputs descriptor,
	// passed to the hardware verbatim.
	PPSetting string
	Transcode bool

	SWFormat     RawFormat
	SrcWidth     int
	SrcHeight    int
	FrameRateNum int
	FrameRateDen int
}

func (*DecoderSettings) isSettings() {}

func (s *DecoderSettings) String() string {
	return fmt.Sprintf("DecoderSettings(pp:'%s'; transcode:%t; %s %dx%d@%d/%d)",
		s.PPSetting, s.Transcode, s.SWFormat, s.SrcWidth, s.SrcHeight, s.FrameRateNum, s.FrameRateDen)
}

type HWDownloadSettings struct {
	Format RawFormat
}

func (*HWDownloadSettings) isSettings() {}

func (s *HWDownloadSettings) String() string {
	return fmt.Sprintf("HWDownloadSettings(%s)", s.Format)
}

// RawFrame is a picture in host memory, as produced by the hwdownload plugin.
// Planes are NV12/P010 style: luma and interleaved chroma.
type RawFrame struct {
	Planes    [2][]byte
	LineSizes [2]int
	Format    RawFormat
	Width     int
	Height    int
}
