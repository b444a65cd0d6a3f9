package codec

import (
	"context"
	"io"
	"testing"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
	"github.com/xaionaro-go/vpe/vpi/stub"
)

func testContext(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelDebug)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.SetDefault(func() logger.Logger {
		return l
	})
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

func stubAllocator(a *stub.FrameAllocator) FrameAllocator {
	return FrameAllocatorFunc(func(ctx context.Context) (HostFrame, error) {
		f, err := a.AllocFrame(ctx)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

// slicePacketSource returns the given packets and then io.EOF. Every packet
// comes with its own buffer, so the tests may check its release.
type slicePacketSource struct {
	packets [][]byte
	buffers []*buffer.Ref
	freed   int
	next    int

	// tryAgainAt makes the source return ErrTryAgain once before the
	// packet of the given index.
	tryAgainAt map[int]bool
}

func newSlicePacketSource(sizes ...int) *slicePacketSource {
	s := &slicePacketSource{}
	for _, size := range sizes {
		s.packets = append(s.packets, make([]byte, size))
	}
	return s
}

func (s *slicePacketSource) NextPacket(ctx context.Context) (*Packet, error) {
	if s.tryAgainAt[s.next] {
		delete(s.tryAgainAt, s.next)
		return nil, ErrTryAgain
	}
	if s.next >= len(s.packets) {
		return nil, io.EOF
	}
	idx := s.next
	s.next++
	buf := buffer.New(s.packets[idx], func([]byte) { s.freed++ })
	s.buffers = append(s.buffers, buf)
	return &Packet{
		Data: buf.Data(),
		Buf:  buf,
		PTS:  int64(idx * 1000),
		DTS:  int64(idx * 1000),
	}, nil
}

type decoderFixture struct {
	device    *stub.Device
	allocator *stub.FrameAllocator
	source    *slicePacketSource
	decoder   *DecoderLocked
}

func (f *decoderFixture) hw() *stub.Context {
	return f.device.LastContext()
}

func newDecoderFixture(
	t *testing.T,
	ctx context.Context,
	source *slicePacketSource,
	cfg DecoderConfig,
	prepare func(*stub.Context),
) *decoderFixture {
	f := &decoderFixture{
		device:    stub.NewDevice(),
		allocator: &stub.FrameAllocator{},
		source:    source,
	}
	f.device.Prepare = prepare
	d, err := newDecoderLocked(ctx, DecoderInput{
		Device:         f.device,
		Plugin:         vpi.PluginHEVCDecoder,
		PacketSource:   source,
		FrameAllocator: stubAllocator(f.allocator),
		Config:         cfg,
		StreamParams: StreamParams{
			Width:  320,
			Height: 240,
		},
	})
	require.NoError(t, err)
	f.decoder = d
	return f
}
