package codec

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/vpe/vpi"
	"github.com/xaionaro-go/vpe/vpi/stub"
)

func TestDecoderEndToEnd(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(100, 50), DecoderConfig{}, func(c *stub.Context) {
		c.EmitOnPacket = func(idx int) bool { return idx == 1 }
	})
	d := f.decoder

	var frame Frame
	err := d.ReceiveFrame(ctx, &frame)
	require.ErrorIs(t, err, ErrTryAgain)
	require.Nil(t, frame.HostFrame)
	require.Equal(t, []int{100}, f.hw().PutSizes)

	err = d.ReceiveFrame(ctx, &frame)
	require.NoError(t, err)
	require.Equal(t, []int{100, 50}, f.hw().PutSizes)
	require.NotNil(t, frame.HostFrame)
	require.Equal(t, int64(1000), frame.PTS)
	require.Equal(t, int64(1000), frame.DTS)
	require.Equal(t, frame.PTS, frame.BestEffortTimestamp)
	require.False(t, frame.KeyFrame)
	require.Equal(t, 320, frame.Width)
	require.Equal(t, 240, frame.Height)
	require.Equal(t, [3]int{320, 320, 0}, frame.LineSizes)
	require.Same(t, d.HardwareFrames, frame.HardwareFrames)

	stats := d.GetStats()
	require.Equal(t, uint64(2), stats.PacketsReceived.Count)
	require.Equal(t, uint64(150), stats.BytesSubmitted.Bytes)
	require.Equal(t, uint64(1), stats.FramesOutput.Count)

	var eosFrame Frame
	err = d.ReceiveFrame(ctx, &eosFrame)
	require.ErrorIs(t, err, ErrEndOfStream)
	require.ErrorIs(t, err, io.EOF)
	require.Nil(t, eosFrame.HostFrame)

	// every packet buffer went back to the source
	require.Equal(t, 2, f.source.freed)
	require.Zero(t, d.PendingPackets())

	// drained decoders keep reporting the end of stream
	require.ErrorIs(t, d.ReceiveFrame(ctx, &eosFrame), ErrEndOfStream)

	frame.Free()
	require.NoError(t, d.Close(ctx))
	require.Zero(t, f.allocator.Outstanding())
	require.Zero(t, f.allocator.DoubleFrees)
}

func TestDecoderBackpressure(t *testing.T) {
	const noSpaceCount = 3

	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(100), DecoderConfig{}, func(c *stub.Context) {
		for range noSpaceCount {
			c.StreamBufferCounts = append(c.StreamBufferCounts, vpi.StreamBufferCountNoSpace)
		}
	})
	d := f.decoder

	var frame Frame
	require.NoError(t, d.ReceiveFrame(ctx, &frame))
	defer frame.Free()

	require.Equal(t, uint64(noSpaceCount), d.GetStats().BackpressurePolls.Count)
	// the first poll, a poll per "no space", and the poll after the feed
	require.Equal(t, noSpaceCount+2, f.hw().Calls["decode_get_frame"])
	require.Equal(t, []int{100}, f.hw().PutSizes)
	require.NoError(t, d.Close(ctx))
}

func TestDecoderPartialConsumption(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(100), DecoderConfig{}, func(c *stub.Context) {
		c.ConsumeLimit = 30
	})
	d := f.decoder

	var frame Frame
	require.NoError(t, d.ReceiveFrame(ctx, &frame))
	defer frame.Free()
	require.Equal(t, []int{30, 30, 30, 10}, f.hw().PutSizes)
	require.Equal(t, 100, f.hw().ConsumedBytes)
	require.Equal(t, uint64(1), d.GetStats().PacketsReceived.Count)
	require.True(t, frame.KeyFrame)
	require.NoError(t, d.Close(ctx))
}

func TestDecoderHandleMismatch(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(10), DecoderConfig{}, nil)
	d := f.decoder

	f.hw().InjectReadyPicture(&stub.Picture{ID: 999})

	var frame Frame
	err := d.ReceiveFrame(ctx, &frame)
	var desync ErrProtocolDesync
	require.True(t, errors.As(err, &desync), err)
	require.Equal(t, DesyncNotFound, desync.Kind)
	require.Nil(t, frame.HostFrame)
	require.NoError(t, d.Close(ctx))
}

func TestDecoderDoubleOutputIsDesync(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(10), DecoderConfig{}, func(c *stub.Context) {
		c.HoldLocked = true
	})
	d := f.decoder

	var frame Frame
	require.NoError(t, d.ReceiveFrame(ctx, &frame))
	defer frame.Free()

	f.hw().InjectReadyPicture(frame.Picture().(*stub.Picture))
	var again Frame
	err := d.ReceiveFrame(ctx, &again)
	var desync ErrProtocolDesync
	require.True(t, errors.As(err, &desync), err)
	require.Equal(t, DesyncInvalidState, desync.Kind)
	require.NoError(t, d.Close(ctx))
}

func TestDecoderUnknownReleasedBuffer(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(10), DecoderConfig{}, nil)
	d := f.decoder

	src := newSlicePacketSource(1)
	pkt, err := src.NextPacket(ctx)
	require.NoError(t, err)
	f.hw().InjectReleasedRef(pkt.Buf)

	var frame Frame
	err = d.ReceiveFrame(ctx, &frame)
	var desync ErrProtocolDesync
	require.True(t, errors.As(err, &desync), err)
	require.Equal(t, DesyncInvalidState, desync.Kind)
	pkt.Release()
	require.NoError(t, d.Close(ctx))
}

func TestDecoderWaitListExhausted(t *testing.T) {
	ctx := testContext(t)
	cfg := DecoderConfig{WaitDepth: typing.Opt(2)}
	f := newDecoderFixture(t, ctx, newSlicePacketSource(10, 10, 10), cfg, func(c *stub.Context) {
		c.HoldStreamMem = true
		c.EmitOnPacket = func(int) bool { return false }
	})
	d := f.decoder

	var frame Frame
	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrTryAgain)
	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrTryAgain)
	require.Equal(t, 2, d.PendingPackets())

	err := d.ReceiveFrame(ctx, &frame)
	var exhausted ErrResourceExhausted
	require.True(t, errors.As(err, &exhausted), err)
	require.Equal(t, 2, exhausted.Depth)

	// the rejected packet is not leaked
	require.Equal(t, 1, f.source.freed)

	require.NoError(t, d.Close(ctx))
	require.Equal(t, 3, f.source.freed)
}

func TestDecoderSourceTryAgain(t *testing.T) {
	ctx := testContext(t)
	source := newSlicePacketSource(10, 10)
	source.tryAgainAt = map[int]bool{1: true}
	f := newDecoderFixture(t, ctx, source, DecoderConfig{}, func(c *stub.Context) {
		c.EmitOnPacket = func(int) bool { return false }
	})
	d := f.decoder

	var frame Frame
	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrTryAgain)
	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrTryAgain)
	require.Equal(t, []int{10}, f.hw().PutSizes)
	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrTryAgain)
	require.Equal(t, []int{10, 10}, f.hw().PutSizes)
	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrEndOfStream)
	require.NoError(t, d.Close(ctx))
}

func TestDecoderSkipsEmptyPackets(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(0, 10), DecoderConfig{}, nil)
	d := f.decoder

	var frame Frame
	require.NoError(t, d.ReceiveFrame(ctx, &frame))
	defer frame.Free()
	require.Equal(t, []int{10}, f.hw().PutSizes)
	require.Equal(t, int64(1000), frame.PTS)
	require.Equal(t, 1, f.source.freed)
	require.NoError(t, d.Close(ctx))
}

func TestDecoderExternalFailure(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(10), DecoderConfig{}, func(c *stub.Context) {
		c.PutPacketErr = vpi.StatusDevice
	})
	d := f.decoder

	var frame Frame
	err := d.ReceiveFrame(ctx, &frame)
	var external ErrExternal
	require.True(t, errors.As(err, &external), err)
	require.Equal(t, "decode_put_packet", external.Op)
	require.ErrorIs(t, err, vpi.StatusDevice)

	f.hw().ControlErrors[(&vpi.CmdDecStreamBufferCount{}).String()] = vpi.StatusTimeout
	f.hw().PutPacketErr = nil
	err = d.ReceiveFrame(ctx, &frame)
	require.True(t, errors.As(err, &external), err)
	require.Equal(t, "DEC_STRM_BUF_COUNT", external.Op)

	require.NoError(t, d.Close(ctx))
	require.Equal(t, 1, f.source.freed)
}

func TestDecoderReferencePicturesGrowThePool(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(10, 10, 10, 10), DecoderConfig{}, func(c *stub.Context) {
		c.HoldLocked = true
	})
	d := f.decoder

	var frames []Frame
	for range 4 {
		var frame Frame
		require.NoError(t, d.ReceiveFrame(ctx, &frame))
		frames = append(frames, frame)
	}
	total, inUse := d.FramePoolSize()
	require.Equal(t, 4, total)
	require.Equal(t, 4, inUse)

	f.hw().UnlockAll()
	var eos Frame
	require.ErrorIs(t, d.ReceiveFrame(ctx, &eos), ErrEndOfStream)
	total, inUse = d.FramePoolSize()
	require.Equal(t, 4, total)
	require.Zero(t, inUse)
	require.Len(t, f.hw().ConsumedPictures, 4)

	for idx := range frames {
		frames[idx].Free()
	}
	require.NoError(t, d.Close(ctx))
	require.Zero(t, f.allocator.Outstanding())
}

func TestDecoderCloseIdempotent(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(10, 10, 10), DecoderConfig{}, func(c *stub.Context) {
		c.HoldStreamMem = true
	})
	d := f.decoder

	var frame Frame
	require.NoError(t, d.ReceiveFrame(ctx, &frame))
	require.Equal(t, 1, d.PendingPackets())
	hw := f.hw()

	require.NoError(t, d.Close(ctx))
	require.True(t, hw.IsClosed())
	require.True(t, hw.IsDestroyed())
	require.Equal(t, 1, hw.Calls["DEC_CLEAR_FRAME_BUFFER"])
	require.Equal(t, 1, f.source.freed)
	require.Len(t, hw.ConsumedPictures, 1)

	require.NoError(t, d.Close(ctx))
	require.Equal(t, 1, f.device.DestroyCount)
	require.Equal(t, 1, hw.Calls["close"])
	require.Equal(t, 1, f.source.freed)
	for _, buf := range f.source.buffers {
		require.True(t, buf.IsReleased())
	}

	// the output frame is owned by the caller and survives the decoder
	require.Equal(t, 1, f.allocator.Outstanding())
	frame.Free()
	require.Zero(t, f.allocator.Outstanding())
	require.Zero(t, f.allocator.DoubleFrees)

	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrClosed)
}

func TestDecoderCloseContinuesOnErrors(t *testing.T) {
	ctx := testContext(t)
	f := newDecoderFixture(t, ctx, newSlicePacketSource(10, 10), DecoderConfig{}, func(c *stub.Context) {
		c.HoldStreamMem = true
		c.EmitOnPacket = func(int) bool { return false }
	})
	d := f.decoder

	var frame Frame
	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrTryAgain)

	hw := f.hw()
	hw.ControlErrors["DEC_CLEAR_FRAME_BUFFER"] = vpi.StatusDevice
	hw.CloseErr = vpi.StatusTimeout
	f.device.DestroyErr = vpi.StatusUnknown

	err := d.Close(ctx)
	var external ErrExternal
	require.True(t, errors.As(err, &external), err)
	require.Equal(t, "DEC_CLEAR_FRAME_BUFFER", external.Op)
	require.ErrorIs(t, err, vpi.StatusDevice)

	require.True(t, hw.IsClosed())
	require.True(t, hw.IsDestroyed())
	require.Equal(t, 1, f.source.freed)
	require.Zero(t, f.allocator.Outstanding())

	require.NoError(t, d.Close(ctx))
}

func TestNewDecoderFailures(t *testing.T) {
	ctx := testContext(t)

	newInput := func(device *stub.Device) DecoderInput {
		return DecoderInput{
			Device:         device,
			Plugin:         vpi.PluginH264Decoder,
			PacketSource:   newSlicePacketSource(),
			FrameAllocator: stubAllocator(&stub.FrameAllocator{}),
		}
	}

	t.Run("create", func(t *testing.T) {
		device := stub.NewDevice()
		device.CreateErr = vpi.StatusHWUnavailable
		_, err := NewDecoder(ctx, newInput(device))
		var external ErrExternal
		require.True(t, errors.As(err, &external), err)
		require.ErrorIs(t, err, vpi.StatusHWUnavailable)
	})

	t.Run("init_option", func(t *testing.T) {
		device := stub.NewDevice()
		device.Prepare = func(c *stub.Context) {
			c.ControlErrors["DEC_INIT_OPTION"] = vpi.StatusMalloc
		}
		_, err := NewDecoder(ctx, newInput(device))
		var oom ErrOutOfMemory
		require.True(t, errors.As(err, &oom), err)
		require.Equal(t, 1, device.DestroyCount)
	})

	t.Run("init", func(t *testing.T) {
		device := stub.NewDevice()
		device.Prepare = func(c *stub.Context) {
			c.InitErr = vpi.StatusNotSupported
		}
		_, err := NewDecoder(ctx, newInput(device))
		var external ErrExternal
		require.True(t, errors.As(err, &external), err)
		require.Equal(t, "init", external.Op)
		require.True(t, device.LastContext().IsClosed())
		require.Equal(t, 1, device.DestroyCount)
	})

	t.Run("stream_buffer_packet", func(t *testing.T) {
		device := stub.NewDevice()
		device.Prepare = func(c *stub.Context) {
			c.ControlErrors["DEC_GET_STRM_BUF_PKT"] = vpi.StatusMalloc
		}
		_, err := NewDecoder(ctx, newInput(device))
		var oom ErrOutOfMemory
		require.True(t, errors.As(err, &oom), err)
		require.Equal(t, 1, device.DestroyCount)
	})

	t.Run("not_a_decoder", func(t *testing.T) {
		input := newInput(stub.NewDevice())
		input.Plugin = vpi.PluginHWDownload
		_, err := NewDecoder(ctx, input)
		require.Error(t, err)
	})

	t.Run("bad_wait_depth", func(t *testing.T) {
		input := newInput(stub.NewDevice())
		input.Config.WaitDepth = typing.Opt(0)
		_, err := NewDecoder(ctx, input)
		require.Error(t, err)
	})
}

func TestNewDecoderSettings(t *testing.T) {
	ctx := testContext(t)
	device := stub.NewDevice()
	d, err := NewDecoder(ctx, DecoderInput{
		Device:         device,
		Plugin:         vpi.PluginHEVCDecoder,
		PacketSource:   newSlicePacketSource(),
		FrameAllocator: stubAllocator(&stub.FrameAllocator{}),
		Config: DecoderConfig{
			LowRes:    "(d2)",
			Transcode: true,
		},
		StreamParams: StreamParams{
			Width:            1920,
			Height:           1080,
			BitsPerRawSample: 10,
		},
	})
	require.NoError(t, err)

	settings, ok := device.LastContext().Settings.(*vpi.DecoderSettings)
	require.True(t, ok)
	require.Equal(t, "(d2)", settings.PPSetting)
	require.True(t, settings.Transcode)
	require.Equal(t, vpi.RawFormatP010LE, settings.SWFormat)
	require.Equal(t, 1920, settings.SrcWidth)
	require.Equal(t, 1080, settings.SrcHeight)
	require.Equal(t, vpi.RawFormatP010LE, d.HardwareFrames().SWFormat)

	var frame Frame
	require.ErrorIs(t, d.ReceiveFrame(ctx, &frame), ErrEndOfStream)
	require.NoError(t, d.Close(ctx))
	require.True(t, d.IsClosed(ctx))
	require.NoError(t, d.Close(ctx))
}
