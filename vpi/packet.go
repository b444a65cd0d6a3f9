package vpi

import (
	"fmt"

	"github.com/xaionaro-go/vpe/buffer"
)

// Packet is the stream buffer record the decoder is being fed with.
// It is obtained once per session with CmdDecGetStreamBufferPacket and
// then refilled for every input packet.
type Packet struct {
	Data     []byte
	Size     int
	PTS      int64
	DTS      int64
	Duration int64

	// Opaque is the reference the hardware hands back via
	// CmdDecGetUsedStreamMem once it does not need Data anymore.
	Opaque *buffer.Ref
}

func (p *Packet) String() string {
	if p == nil {
		return "Packet(nil)"
	}
	return fmt.Sprintf("Packet(size:%d; pts:%d; dts:%d; dur:%d; opaque:%p)", p.Size, p.PTS, p.DTS, p.Duration, p.Opaque)
}

// Consume marks the first n bytes as submitted.
func (p *Packet) Consume(n int) {
	if n > p.Size {
		n = p.Size
	}
	p.Size -= n
	if n <= len(p.Data) {
		p.Data = p.Data[n:]
	} else {
		p.Data = nil
	}
}

func (p *Packet) Reset() {
	*p = Packet{}
}
