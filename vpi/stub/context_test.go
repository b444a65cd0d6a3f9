package stub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/vpi"
)

func TestContextDecodeFlow(t *testing.T) {
	ctx := context.Background()
	device := NewDevice()
	vpiCtx, err := device.Create(ctx, vpi.PluginH264Decoder)
	require.NoError(t, err)
	c := device.LastContext()
	c.ConsumeLimit = 6

	var req vpi.CmdDecFrameBufferRequest
	require.NoError(t, vpiCtx.Control(ctx, &req))
	require.True(t, req.Required)

	allocator := &FrameAllocator{}
	hostFrame, err := allocator.AllocFrame(ctx)
	require.NoError(t, err)
	require.NoError(t, vpiCtx.Control(ctx, &vpi.CmdDecSetFrameBuffer{Picture: hostFrame.Picture()}))
	require.True(t, hostFrame.StubPicture().Locked)

	ref := buffer.New(make([]byte, 10), nil)
	pkt := &vpi.Packet{Data: ref.Data(), Size: 10, PTS: 5, Opaque: ref}
	n, err := vpiCtx.DecodePutPacket(ctx, pkt)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	pkt.Consume(n)

	status, _, err := vpiCtx.DecodeGetFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, vpi.FrameStatusNotReady, status)

	n, err = vpiCtx.DecodePutPacket(ctx, pkt)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []int{6, 4}, c.PutSizes)

	var used vpi.CmdDecGetUsedStreamMem
	require.NoError(t, vpiCtx.Control(ctx, &used))
	require.Same(t, ref, used.Ref)

	status, pic, err := vpiCtx.DecodeGetFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, vpi.FrameStatusReady, status)
	require.Equal(t, hostFrame.Picture(), pic)
	require.False(t, pic.IsLocked())
	require.True(t, pic.IsKeyFrame())
	require.Equal(t, int64(5), pic.PTS())
	require.Equal(t, defaultWidth, pic.Width())

	_, err = vpiCtx.DecodePutPacket(ctx, &vpi.Packet{})
	require.NoError(t, err)
	status, _, err = vpiCtx.DecodeGetFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, vpi.FrameStatusEndOfStream, status)

	require.NoError(t, vpiCtx.Close(ctx))
	require.ErrorIs(t, vpiCtx.Control(ctx, &req), vpi.StatusInvalidState)
	require.NoError(t, device.Destroy(ctx, vpiCtx))
	require.True(t, c.IsDestroyed())
}

func TestContextStreamBufferCounts(t *testing.T) {
	ctx := context.Background()
	device := NewDevice()
	vpiCtx, err := device.Create(ctx, vpi.PluginVP9Decoder)
	require.NoError(t, err)
	device.LastContext().StreamBufferCounts = []int{vpi.StreamBufferCountNoSpace}

	var count vpi.CmdDecStreamBufferCount
	require.NoError(t, vpiCtx.Control(ctx, &count))
	require.True(t, count.NoSpace())
	require.NoError(t, vpiCtx.Control(ctx, &count))
	require.Equal(t, DefaultStreamBufferCount, count.Count)
}

func TestFrameAllocatorFailAfter(t *testing.T) {
	ctx := context.Background()
	a := &FrameAllocator{FailAfter: 1}
	f, err := a.AllocFrame(ctx)
	require.NoError(t, err)
	_, err = a.AllocFrame(ctx)
	require.ErrorIs(t, err, vpi.StatusMalloc)
	require.Equal(t, 1, a.Outstanding())
	f.Free()
	f.Free()
	require.Zero(t, a.Outstanding())
	require.Equal(t, 1, a.DoubleFrees)
}
