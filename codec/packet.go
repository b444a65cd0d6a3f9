package codec

import (
	"context"

	"github.com/xaionaro-go/vpe/buffer"
)

// Packet is a compressed packet. If Buf is set, Data must point into its memory.
type Packet struct {
	Data     []byte
	Buf      *buffer.Ref
	PTS      int64
	DTS      int64
	Duration int64
}

// Release drops the packet's own buffer reference.
func (p *Packet) Release() {
	if p.Buf != nil {
		p.Buf.Unref()
		p.Buf = nil
	}
	p.Data = nil
}

// PacketSource is the upstream of a decoder. NextPacket returns io.EOF at
// the end of input and ErrTryAgain if nothing is available at the moment.
// The returned packet is owned by the caller.
type PacketSource interface {
	NextPacket(ctx context.Context) (*Packet, error)
}
