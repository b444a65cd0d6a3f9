package libav

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/codec"
	"github.com/xaionaro-go/vpe/logger"
)

// PacketSource feeds a decoder with the packets of one stream of an Input.
// The packets of the other streams are dropped.
type PacketSource struct {
	Input       *Input
	StreamIndex int
}

var _ codec.PacketSource = (*PacketSource)(nil)

func NewPacketSource(input *Input, stream *astiav.Stream) *PacketSource {
	return &PacketSource{
		Input:       input,
		StreamIndex: stream.Index(),
	}
}

func (s *PacketSource) NextPacket(ctx context.Context) (_ret *codec.Packet, _err error) {
	logger.Tracef(ctx, "NextPacket")
	defer func() { logger.Tracef(ctx, "/NextPacket: %v", _err) }()

	for {
		pkt := PacketPool.Get()
		err := s.Input.readIntoPacket(pkt)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			PacketPool.Put(pkt)
			return nil, io.EOF
		case errors.Is(err, astiav.ErrEagain):
			PacketPool.Put(pkt)
			return nil, codec.ErrTryAgain
		default:
			PacketPool.Put(pkt)
			return nil, fmt.Errorf("unable to read a packet: %w", err)
		}

		if pkt.StreamIndex() != s.StreamIndex {
			PacketPool.Put(pkt)
			continue
		}
		return PacketFromAstiav(pkt), nil
	}
}

// PacketFromAstiav takes the ownership of pkt; it is returned to
// PacketPool once the last reference to the buffer is released.
func PacketFromAstiav(pkt *astiav.Packet) *codec.Packet {
	buf := buffer.New(pkt.Data(), func([]byte) {
		PacketPool.Put(pkt)
	})
	return &codec.Packet{
		Data:     buf.Data(),
		Buf:      buf,
		PTS:      pkt.Pts(),
		DTS:      pkt.Dts(),
		Duration: pkt.Duration(),
	}
}
