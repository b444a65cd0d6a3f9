package stub

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
)

// DefaultStreamBufferCount is the answer to DEC_STRM_BUF_COUNT once
// Context.StreamBufferCounts is exhausted.
const DefaultStreamBufferCount = 1

const (
	defaultWidth  = 64
	defaultHeight = 48
)

// Context is a plugin instance of the stub. Exported fields before the
// "state" section script its behavior and may be changed at any moment.
type Context struct {
	Plugin vpi.Plugin

	// StreamBufferCounts are the answers to the next DEC_STRM_BUF_COUNT
	// queries, in order (vpi.StreamBufferCountNoSpace means "no space").
	StreamBufferCounts []int

	// ConsumeLimit caps the amount of bytes consumed per DecodePutPacket;
	// zero means the whole packet.
	ConsumeLimit int

	// EmitOnPacket decides if a fully consumed packet (0-based index)
	// yields a picture. Nil means every packet does.
	EmitOnPacket func(packetIdx int) bool

	// HoldLocked keeps the emitted pictures locked after they are returned
	// by DecodeGetFrame, as reference pictures are.
	HoldLocked bool

	// HoldStreamMem makes the hardware keep all the packet buffers.
	HoldStreamMem bool

	ControlErrors map[string]error
	InitErr       error
	PutPacketErr  error
	GetFrameErr   error
	CloseErr      error
	ProcessErr    error

	// state

	Settings         vpi.Settings
	device           *Device
	packet           vpi.Packet
	bound            []*Picture
	known            []*Picture
	ready            []*Picture
	released         []*buffer.Ref
	packetIdx        int
	eos              bool
	closed           bool
	destroyed        bool
	ConsumedPictures []*Picture
	BoundPictures    []*Picture
	PutSizes         []int
	ConsumedBytes    int
	Calls            map[string]int
	PlanesAllocated  atomic.Int64
	PlanesFreed      atomic.Int64
}

var _ vpi.Context = (*Context)(nil)

func newContext(d *Device, plugin vpi.Plugin) *Context {
	return &Context{
		Plugin:        plugin,
		ControlErrors: map[string]error{},
		Calls:         map[string]int{},
		device:        d,
	}
}

func (c *Context) Init(
	ctx context.Context,
	settings vpi.Settings,
) error {
	c.Calls["init"]++
	if c.InitErr != nil {
		return c.InitErr
	}
	switch settings.(type) {
	case *vpi.DecoderSettings:
		if !c.Plugin.IsDecoder() {
			return fmt.Errorf("decoder settings for plugin %s: %w", c.Plugin, vpi.StatusInvalidParam)
		}
	case *vpi.HWDownloadSettings:
		if c.Plugin != vpi.PluginHWDownload {
			return fmt.Errorf("hwdownload settings for plugin %s: %w", c.Plugin, vpi.StatusInvalidParam)
		}
	default:
		return fmt.Errorf("unexpected settings %T: %w", settings, vpi.StatusInvalidParam)
	}
	c.Settings = settings
	return nil
}

func (c *Context) Control(
	ctx context.Context,
	cmd vpi.Command,
) error {
	name := cmd.String()
	c.Calls[name]++
	if err := c.ControlErrors[name]; err != nil {
		return err
	}
	if c.closed {
		return vpi.StatusInvalidState
	}

	switch cmd := cmd.(type) {
	case *vpi.CmdDecInitOption:
		cmd.Settings = &vpi.DecoderSettings{}
	case *vpi.CmdDecGetStreamBufferPacket:
		cmd.Packet = &c.packet
	case *vpi.CmdDecStreamBufferCount:
		cmd.Count = DefaultStreamBufferCount
		if len(c.StreamBufferCounts) > 0 {
			cmd.Count = c.StreamBufferCounts[0]
			c.StreamBufferCounts = c.StreamBufferCounts[1:]
		}
	case *vpi.CmdDecFrameBufferRequest:
		cmd.Required = len(c.bound) == 0 && !c.eos
	case *vpi.CmdDecSetFrameBuffer:
		pic, ok := cmd.Picture.(*Picture)
		if !ok {
			return fmt.Errorf("foreign picture %T: %w", cmd.Picture, vpi.StatusInvalidParam)
		}
		for _, known := range c.bound {
			if known == pic {
				return fmt.Errorf("picture %v is already bound: %w", pic, vpi.StatusInvalidState)
			}
		}
		pic.Locked = true
		c.bound = append(c.bound, pic)
		c.known = append(c.known, pic)
		c.BoundPictures = append(c.BoundPictures, pic)
	case *vpi.CmdDecGetUsedStreamMem:
		cmd.Ref = nil
		if len(c.released) > 0 {
			cmd.Ref = c.released[0]
			c.released = c.released[1:]
		}
	case *vpi.CmdDecPictureConsume:
		pic, ok := cmd.Picture.(*Picture)
		if !ok {
			return fmt.Errorf("foreign picture %T: %w", cmd.Picture, vpi.StatusInvalidParam)
		}
		c.ConsumedPictures = append(c.ConsumedPictures, pic)
	case *vpi.CmdDecClearFrameBuffer:
		for _, pic := range c.known {
			pic.Locked = false
		}
		c.bound = nil
		c.ready = nil
	case *vpi.CmdHWDownloadFreeBuffer:
		c.PlanesFreed.Inc()
	default:
		return fmt.Errorf("unexpected command %s: %w", name, vpi.StatusNotSupported)
	}
	return nil
}

func (c *Context) DecodePutPacket(
	ctx context.Context,
	pkt *vpi.Packet,
) (int, error) {
	c.Calls["decode_put_packet"]++
	if c.PutPacketErr != nil {
		return 0, c.PutPacketErr
	}
	if c.closed {
		return 0, vpi.StatusInvalidState
	}
	if pkt.Size <= 0 {
		logger.Debugf(ctx, "stub: flush")
		c.eos = true
		return 0, nil
	}
	if c.eos {
		return 0, vpi.StatusEndOfStream
	}

	n := pkt.Size
	if c.ConsumeLimit > 0 && n > c.ConsumeLimit {
		n = c.ConsumeLimit
	}
	c.PutSizes = append(c.PutSizes, n)
	c.ConsumedBytes += n
	if n < pkt.Size {
		return n, nil
	}

	idx := c.packetIdx
	c.packetIdx++
	if !c.HoldStreamMem && pkt.Opaque != nil {
		c.released = append(c.released, pkt.Opaque)
	}
	if c.EmitOnPacket != nil && !c.EmitOnPacket(idx) {
		return n, nil
	}
	if len(c.bound) == 0 {
		logger.Warnf(ctx, "stub: no frame buffer bound, dropping the output of packet #%d", idx)
		return n, nil
	}
	pic := c.bound[0]
	c.bound = c.bound[1:]
	w, h := c.frameSize()
	*pic = Picture{
		ID:       pic.ID,
		Locked:   true,
		Lines:    [3]int{w, w, 0},
		KeyFrame: idx == 0,
		Pts:      pkt.PTS,
		Dts:      pkt.DTS,
		W:        w,
		H:        h,
	}
	c.ready = append(c.ready, pic)
	return n, nil
}

func (c *Context) DecodeGetFrame(
	ctx context.Context,
) (vpi.FrameStatus, vpi.Picture, error) {
	c.Calls["decode_get_frame"]++
	if c.GetFrameErr != nil {
		return vpi.FrameStatusNotReady, nil, c.GetFrameErr
	}
	if c.closed {
		return vpi.FrameStatusNotReady, nil, vpi.StatusInvalidState
	}
	if len(c.ready) > 0 {
		pic := c.ready[0]
		c.ready = c.ready[1:]
		if !c.HoldLocked {
			pic.Locked = false
		}
		return vpi.FrameStatusReady, pic, nil
	}
	if c.eos {
		return vpi.FrameStatusEndOfStream, nil, nil
	}
	return vpi.FrameStatusNotReady, nil, nil
}

func (c *Context) Process(
	ctx context.Context,
	in vpi.Picture,
	out *vpi.RawFrame,
) error {
	c.Calls["process"]++
	if c.ProcessErr != nil {
		return c.ProcessErr
	}
	settings, ok := c.Settings.(*vpi.HWDownloadSettings)
	if !ok {
		return fmt.Errorf("the hwdownload plugin is not initialized: %w", vpi.StatusInvalidState)
	}
	pic, ok := in.(*Picture)
	if !ok {
		return fmt.Errorf("foreign picture %T: %w", in, vpi.StatusInvalidParam)
	}

	stride := pic.W * settings.Format.BytesPerSample()
	*out = vpi.RawFrame{
		Planes: [2][]byte{
			fillPlane(stride*pic.H, byte(pic.ID)),
			fillPlane(stride*pic.H/2, byte(pic.ID)+0x80),
		},
		LineSizes: [2]int{stride, stride},
		Format:    settings.Format,
		Width:     pic.W,
		Height:    pic.H,
	}
	c.PlanesAllocated.Add(2)
	return nil
}

func fillPlane(size int, v byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = v
	}
	return b
}

func (c *Context) Close(ctx context.Context) error {
	c.Calls["close"]++
	c.closed = true
	return c.CloseErr
}

func (c *Context) frameSize() (int, int) {
	if s, ok := c.Settings.(*vpi.DecoderSettings); ok && s.SrcWidth > 0 && s.SrcHeight > 0 {
		return s.SrcWidth, s.SrcHeight
	}
	return defaultWidth, defaultHeight
}

// InjectReadyPicture makes the next DecodeGetFrame return pic.
func (c *Context) InjectReadyPicture(pic *Picture) {
	c.ready = append(c.ready, pic)
}

// InjectReleasedRef makes the next DEC_GET_USED_STRM_MEM return ref.
func (c *Context) InjectReleasedRef(ref *buffer.Ref) {
	c.released = append(c.released, ref)
}

// LockAll marks every picture ever bound as locked by the hardware.
func (c *Context) LockAll() {
	for _, pic := range c.known {
		pic.Locked = true
	}
}

// UnlockAll marks every picture ever bound as not locked by the hardware.
func (c *Context) UnlockAll() {
	for _, pic := range c.known {
		pic.Locked = false
	}
}

func (c *Context) BoundCount() int {
	return len(c.bound)
}

func (c *Context) IsClosed() bool {
	return c.closed
}

func (c *Context) IsDestroyed() bool {
	return c.destroyed
}
