package vpilib

// The layouts below mirror vpi_types.h of the VPE SDK (64-bit targets).
// Only the leading fields the driver touches are declared; the structures
// are always allocated by the library or with pictureInfoSize bytes.

type vpiCmd int32

const (
	cmdDecInitOption         = vpiCmd(0x100)
	cmdDecGetStreamBufferPkt = vpiCmd(0x101)
	cmdDecStreamBufferCount  = vpiCmd(0x102)
	cmdDecFrameBufferRequest = vpiCmd(0x103)
	cmdDecSetFrameBuffer     = vpiCmd(0x104)
	cmdDecGetUsedStreamMem   = vpiCmd(0x105)
	cmdDecPictureConsume     = vpiCmd(0x106)
	cmdDecClearFrameBuffer   = vpiCmd(0x107)
	cmdHWDownloadFreeBuffer  = vpiCmd(0x300)
)

const (
	vpiPluginH264Decoder = int32(0)
	vpiPluginHEVCDecoder = int32(1)
	vpiPluginVP9Decoder  = int32(2)
	vpiPluginHWDownload  = int32(6)
)

const (
	vpiRawFormatNV12   = int32(0)
	vpiRawFormatP010LE = int32(1)
)

// decode_get_frame results
const (
	frameResultNotReady    = int32(0)
	frameResultReady       = int32(1)
	frameResultEndOfStream = int32(2)
)

// pictureInfoSize is the size of the host memory backing a VpiFrame.
const pictureInfoSize = 4096

type vpiCtrlCmdParam struct {
	Cmd  vpiCmd
	_    [4]byte
	Data uintptr
}

type vpiPacket struct {
	Size     int32
	_        [4]byte
	Data     uintptr
	PTS      int64
	PktDTS   int64
	Duration int64
	Opaque   uintptr
}

type vpiFrame struct {
	TaskID    int32
	SrcWidth  int32
	SrcHeight int32
	Width     int32
	Height    int32
	LineSize  [4]int32
	KeyFrame  int32
	PTS       int64
	PktDTS    int64
	Data      [4]uintptr
	Locked    int32
	RawFormat int32
}

type vpiDecOption struct {
	PPSetting uintptr
	Transcode int32
	_         [4]byte
	Frame     uintptr
	SrcWidth  int32
	SrcHeight int32
	FrmRateN  int32
	FrmRateD  int32
}

// vpiAPI is the table of entry points returned by vpi_create.
type vpiAPI struct {
	Init            uintptr
	Decode          uintptr
	Encode          uintptr
	DecodePutPacket uintptr
	DecodeGetFrame  uintptr
	EncodePutFrame  uintptr
	EncodeGetPacket uintptr
	Control         uintptr
	Process         uintptr
	Close           uintptr
}
