package vpi

import (
	"fmt"

	"github.com/xaionaro-go/vpe/buffer"
)

// Command is a typed Control request. Commands with results carry
// the result fields in the struct, so they are passed by pointer.
type Command interface {
	fmt.Stringer
	isCommand()
}

// StreamBufferCountNoSpace is reported by CmdDecStreamBufferCount when the
// decoder cannot accept more input until an output is drained.
const StreamBufferCountNoSpace = -1

// CmdDecInitOption fetches the default decoder settings.
type CmdDecInitOption struct {
	Settings *DecoderSettings
}

// CmdDecGetStreamBufferPacket fetches the stream buffer record that is used
// to submit packets.
type CmdDecGetStreamBufferPacket struct {
	Packet *Packet
}

// CmdDecStreamBufferCount queries the input capacity.
type CmdDecStreamBufferCount struct {
	Count int
}

func (c *CmdDecStreamBufferCount) NoSpace() bool {
	return c.Count == StreamBufferCountNoSpace
}

// CmdDecFrameBufferRequest asks if a fresh destination buffer must be bound.
type CmdDecFrameBufferRequest struct {
	Required bool
}

// CmdDecSetFrameBuffer binds a destination buffer.
type CmdDecSetFrameBuffer struct {
	Picture Picture
}

// CmdDecGetUsedStreamMem returns the packet buffer the hardware is done with
// (if any). The ownership of the reference is returned to the caller.
type CmdDecGetUsedStreamMem struct {
	Ref *buffer.Ref
}

// CmdDecPictureConsume notifies the hardware the picture is not used by the
// host anymore, so the DPB slot may be recycled.
type CmdDecPictureConsume struct {
	Picture Picture
}

// CmdDecClearFrameBuffer makes the hardware drop all the bound destination buffers.
type CmdDecClearFrameBuffer struct{}

// CmdHWDownloadFreeBuffer releases a plane returned by Process.
type CmdHWDownloadFreeBuffer struct {
	Data []byte
}

func (*CmdDecInitOption) isCommand()            {}
func (*CmdDecGetStreamBufferPacket) isCommand() {}
func (*CmdDecStreamBufferCount) isCommand()     {}
func (*CmdDecFrameBufferRequest) isCommand()    {}
func (*CmdDecSetFrameBuffer) isCommand()        {}
func (*CmdDecGetUsedStreamMem) isCommand()      {}
func (*CmdDecPictureConsume) isCommand()        {}
func (*CmdDecClearFrameBuffer) isCommand()      {}
func (*CmdHWDownloadFreeBuffer) isCommand()     {}

func (*CmdDecInitOption) String() string            { return "DEC_INIT_OPTION" }
func (*CmdDecGetStreamBufferPacket) String() string { return "DEC_GET_STRM_BUF_PKT" }
func (*CmdDecStreamBufferCount) String() string     { return "DEC_STRM_BUF_COUNT" }
func (*CmdDecFrameBufferRequest) String() string    { return "DEC_GET_FRAME_BUFFER_REQUEST" }
func (*CmdDecSetFrameBuffer) String() string        { return "DEC_SET_FRAME_BUFFER" }
func (*CmdDecGetUsedStreamMem) String() string      { return "DEC_GET_USED_STRM_MEM" }
func (*CmdDecPictureConsume) String() string        { return "DEC_PIC_CONSUME" }
func (*CmdDecClearFrameBuffer) String() string      { return "DEC_CLEAR_FRAME_BUFFER" }
func (*CmdHWDownloadFreeBuffer) String() string     { return "HWDW_FREE_BUF" }
