//go:build linux

package vpilib

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
)

// submission is a packet copied into C memory; the library refers to it
// by id (the Opaque field of VpiPacket) until it hands it back.
type submission struct {
	ref   *buffer.Ref
	cData uintptr
	size  int
}

// Context is a plugin instance created by vpi_create.
type Context struct {
	device *Device
	plugin vpi.Plugin
	handle uintptr

	fnInit            func(ctx uintptr, cfg uintptr) int32
	fnDecodePutPacket func(ctx uintptr, pkt uintptr) int32
	fnDecodeGetFrame  func(ctx uintptr, out unsafe.Pointer) int32
	fnControl         func(ctx uintptr, param unsafe.Pointer, out unsafe.Pointer) int32
	fnProcess         func(ctx uintptr, in uintptr, out unsafe.Pointer) int32
	fnClose           func(ctx uintptr) int32

	// owned by the library, released with free() on Close
	cDecOption uintptr
	cPacket    uintptr
	cPPSetting uintptr

	packet     vpi.Packet
	submitted  map[uintptr]*submission
	current    *submission
	currentID  uintptr
	nextID     uintptr
	downloadTo vpi.RawFormat
}

var _ vpi.Context = (*Context)(nil)

func (c *Context) bind(api vpiAPI) {
	registerFunc(&c.fnInit, api.Init)
	registerFunc(&c.fnDecodePutPacket, api.DecodePutPacket)
	registerFunc(&c.fnDecodeGetFrame, api.DecodeGetFrame)
	registerFunc(&c.fnControl, api.Control)
	registerFunc(&c.fnProcess, api.Process)
	registerFunc(&c.fnClose, api.Close)
}

func (c *Context) String() string {
	return fmt.Sprintf("vpilib.Context(%s; 0x%x)", c.plugin, c.handle)
}

func (c *Context) Init(ctx context.Context, settings vpi.Settings) error {
	if c.fnInit == nil {
		return vpi.StatusNotSupported
	}
	switch settings := settings.(type) {
	case *vpi.DecoderSettings:
		if c.cDecOption == 0 {
			return fmt.Errorf("%s: the decoder options were not fetched: %w", c, vpi.StatusInvalidState)
		}
		if err := c.writeDecOption(settings); err != nil {
			return err
		}
		return vpi.StatusToError(int(c.fnInit(c.handle, c.cDecOption)))
	case *vpi.HWDownloadSettings:
		c.downloadTo = settings.Format
		return vpi.StatusToError(int(c.fnInit(c.handle, 0)))
	default:
		return fmt.Errorf("unexpected settings type %T: %w", settings, vpi.StatusInvalidParam)
	}
}

func (c *Context) writeDecOption(settings *vpi.DecoderSettings) error {
	opt := (*vpiDecOption)(unsafe.Pointer(c.cDecOption))
	if c.cPPSetting != 0 {
		cFree(c.cPPSetting)
		c.cPPSetting = 0
	}
	if settings.PPSetting != "" {
		c.cPPSetting = cString(settings.PPSetting)
		if c.cPPSetting == 0 {
			return vpi.StatusMalloc
		}
	}
	opt.PPSetting = c.cPPSetting
	opt.Transcode = boolToInt32(settings.Transcode)
	opt.SrcWidth = int32(settings.SrcWidth)
	opt.SrcHeight = int32(settings.SrcHeight)
	opt.FrmRateN = int32(settings.FrameRateNum)
	opt.FrmRateD = int32(settings.FrameRateDen)
	return nil
}

func (c *Context) control(cmd vpiCmd, data uintptr, out unsafe.Pointer) error {
	if c.fnControl == nil {
		return vpi.StatusNotSupported
	}
	param := vpiCtrlCmdParam{Cmd: cmd, Data: data}
	return vpi.StatusToError(int(c.fnControl(c.handle, unsafe.Pointer(&param), out)))
}

func (c *Context) Control(ctx context.Context, cmd vpi.Command) error {
	logger.Tracef(ctx, "Control: %s", cmd)
	switch cmd := cmd.(type) {
	case *vpi.CmdDecInitOption:
		var opt uintptr
		if err := c.control(cmdDecInitOption, 0, unsafe.Pointer(&opt)); err != nil {
			return err
		}
		if opt == 0 {
			cmd.Settings = nil
			return nil
		}
		c.cDecOption = opt
		cmd.Settings = &vpi.DecoderSettings{}
		return nil
	case *vpi.CmdDecGetStreamBufferPacket:
		var pkt uintptr
		if err := c.control(cmdDecGetStreamBufferPkt, 0, unsafe.Pointer(&pkt)); err != nil {
			return err
		}
		if pkt == 0 {
			cmd.Packet = nil
			return nil
		}
		c.cPacket = pkt
		cmd.Packet = &c.packet
		return nil
	case *vpi.CmdDecStreamBufferCount:
		var count int32
		if err := c.control(cmdDecStreamBufferCount, 0, unsafe.Pointer(&count)); err != nil {
			return err
		}
		cmd.Count = int(count)
		return nil
	case *vpi.CmdDecFrameBufferRequest:
		var required int32
		if err := c.control(cmdDecFrameBufferRequest, 0, unsafe.Pointer(&required)); err != nil {
			return err
		}
		cmd.Required = required != 0
		return nil
	case *vpi.CmdDecSetFrameBuffer:
		pic, err := asPicture(cmd.Picture)
		if err != nil {
			return err
		}
		return c.control(cmdDecSetFrameBuffer, pic.addr, nil)
	case *vpi.CmdDecGetUsedStreamMem:
		var id uintptr
		if err := c.control(cmdDecGetUsedStreamMem, 0, unsafe.Pointer(&id)); err != nil {
			return err
		}
		ref, err := c.retire(ctx, id)
		if err != nil {
			return err
		}
		cmd.Ref = ref
		return nil
	case *vpi.CmdDecPictureConsume:
		pic, err := asPicture(cmd.Picture)
		if err != nil {
			return err
		}
		return c.control(cmdDecPictureConsume, pic.addr, nil)
	case *vpi.CmdDecClearFrameBuffer:
		return c.control(cmdDecClearFrameBuffer, 0, nil)
	case *vpi.CmdHWDownloadFreeBuffer:
		if len(cmd.Data) == 0 {
			return nil
		}
		return c.control(cmdHWDownloadFreeBuffer, uintptr(unsafe.Pointer(unsafe.SliceData(cmd.Data))), nil)
	default:
		return fmt.Errorf("unexpected command %T: %w", cmd, vpi.StatusNotSupported)
	}
}

func asPicture(p vpi.Picture) (*Picture, error) {
	pic, ok := p.(*Picture)
	if !ok || pic == nil {
		return nil, fmt.Errorf("unexpected picture %T: %w", p, vpi.StatusInvalidParam)
	}
	return pic, nil
}

// retire returns the packet reference the library is done with and frees
// the C copy of its payload.
func (c *Context) retire(ctx context.Context, id uintptr) (*buffer.Ref, error) {
	if id == 0 {
		return nil, nil
	}
	s, ok := c.submitted[id]
	if !ok {
		logger.Errorf(ctx, "the library returned an unknown stream buffer id %d", id)
		return nil, fmt.Errorf("unknown stream buffer id %d: %w", id, vpi.StatusInvalidState)
	}
	delete(c.submitted, id)
	if s == c.current {
		c.current, c.currentID = nil, 0
	}
	cFree(s.cData)
	return s.ref, nil
}

func (c *Context) DecodePutPacket(ctx context.Context, pkt *vpi.Packet) (int, error) {
	if c.fnDecodePutPacket == nil || c.cPacket == 0 {
		return 0, vpi.StatusInvalidState
	}
	cPkt := (*vpiPacket)(unsafe.Pointer(c.cPacket))
	if pkt.Size <= 0 {
		*cPkt = vpiPacket{}
		ret := c.fnDecodePutPacket(c.handle, c.cPacket)
		if ret < 0 {
			return 0, vpi.StatusToError(int(ret))
		}
		return int(ret), nil
	}

	if c.current == nil || pkt.Opaque == nil || c.current.ref != pkt.Opaque {
		s, err := c.submit(pkt)
		if err != nil {
			return 0, err
		}
		c.nextID++
		c.current, c.currentID = s, c.nextID
		c.submitted[c.currentID] = s
	}

	offset := c.current.size - pkt.Size
	if offset < 0 {
		return 0, fmt.Errorf("the packet grew between submissions: %w", vpi.StatusInvalidParam)
	}
	*cPkt = vpiPacket{
		Size:     int32(pkt.Size),
		Data:     c.current.cData + uintptr(offset),
		PTS:      pkt.PTS,
		PktDTS:   pkt.DTS,
		Duration: pkt.Duration,
		Opaque:   c.currentID,
	}
	ret := c.fnDecodePutPacket(c.handle, c.cPacket)
	if ret < 0 {
		return 0, vpi.StatusToError(int(ret))
	}
	if int(ret) >= pkt.Size {
		c.current, c.currentID = nil, 0
	}
	return int(ret), nil
}

func (c *Context) submit(pkt *vpi.Packet) (*submission, error) {
	size := pkt.Size
	if size > len(pkt.Data) {
		size = len(pkt.Data)
	}
	cData := cMalloc(uintptr(size))
	if cData == 0 {
		return nil, vpi.StatusMalloc
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(cData)), size), pkt.Data[:size])
	pkt.Size = size
	return &submission{ref: pkt.Opaque, cData: cData, size: size}, nil
}

func (c *Context) DecodeGetFrame(ctx context.Context) (vpi.FrameStatus, vpi.Picture, error) {
	if c.fnDecodeGetFrame == nil {
		return vpi.FrameStatusNotReady, nil, vpi.StatusNotSupported
	}
	var addr uintptr
	switch ret := c.fnDecodeGetFrame(c.handle, unsafe.Pointer(&addr)); ret {
	case frameResultReady:
		if addr == 0 {
			return vpi.FrameStatusNotReady, nil, vpi.StatusInvalidState
		}
		return vpi.FrameStatusReady, c.device.pictureAt(ctx, addr), nil
	case frameResultEndOfStream:
		return vpi.FrameStatusEndOfStream, nil, nil
	default:
		if ret < 0 {
			logger.Debugf(ctx, "decode_get_frame: %v", vpi.Status(ret))
		}
		return vpi.FrameStatusNotReady, nil, nil
	}
}

func (c *Context) Process(ctx context.Context, in vpi.Picture, out *vpi.RawFrame) error {
	if c.fnProcess == nil {
		return vpi.StatusNotSupported
	}
	pic, err := asPicture(in)
	if err != nil {
		return err
	}
	var f vpiFrame
	if ret := c.fnProcess(c.handle, pic.addr, unsafe.Pointer(&f)); ret != 0 {
		return vpi.StatusToError(int(ret))
	}

	height := int(f.Height)
	if height <= 0 {
		height = pic.Height()
	}
	width := int(f.Width)
	if width <= 0 {
		width = pic.Width()
	}
	*out = vpi.RawFrame{
		LineSizes: [2]int{int(f.LineSize[0]), int(f.LineSize[1])},
		Format:    c.rawFormat(f.RawFormat),
		Width:     width,
		Height:    height,
	}
	planeHeights := [2]int{height, (height + 1) / 2}
	for idx := range out.Planes {
		if f.Data[idx] == 0 {
			continue
		}
		size := out.LineSizes[idx] * planeHeights[idx]
		out.Planes[idx] = unsafe.Slice((*byte)(unsafe.Pointer(f.Data[idx])), size)
	}
	return nil
}

func (c *Context) rawFormat(code int32) vpi.RawFormat {
	switch code {
	case vpiRawFormatNV12:
		return vpi.RawFormatNV12
	case vpiRawFormatP010LE:
		return vpi.RawFormatP010LE
	}
	return c.downloadTo
}

// Close releases the library side of the plugin; the stream buffers the
// library did not return yet are dropped without unref'ing (the caller
// owns those references).
func (c *Context) Close(ctx context.Context) error {
	var err error
	if c.fnClose != nil && c.handle != 0 {
		err = vpi.StatusToError(int(c.fnClose(c.handle)))
	}
	for id, s := range c.submitted {
		cFree(s.cData)
		delete(c.submitted, id)
	}
	c.current, c.currentID = nil, 0
	for _, ptr := range []*uintptr{&c.cPPSetting, &c.cDecOption, &c.cPacket} {
		if *ptr != 0 {
			cFree(*ptr)
			*ptr = 0
		}
	}
	c.packet.Reset()
	return err
}

func cString(s string) uintptr {
	ptr := cCalloc(1, uintptr(len(s)+1))
	if ptr == 0 {
		return 0
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(s)), s)
	return ptr
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
