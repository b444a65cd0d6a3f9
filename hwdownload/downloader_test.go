package hwdownload

import (
	"context"
	"errors"
	"testing"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/vpe/codec"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
	"github.com/xaionaro-go/vpe/vpi/stub"
)

func testContext(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelDebug)
	ctx := logger.CtxWithLogger(context.Background(), l)
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

func newFrames(device vpi.Device, format vpi.RawFormat) *codec.HardwareFrames {
	return &codec.HardwareFrames{
		Device:   device,
		Width:    32,
		Height:   16,
		SWFormat: format,
	}
}

func newInputFrame(
	ctx context.Context,
	t *testing.T,
	frames *codec.HardwareFrames,
	allocator *stub.FrameAllocator,
) *codec.Frame {
	hostFrame, err := allocator.AllocFrame(ctx)
	require.NoError(t, err)
	pic := hostFrame.StubPicture()
	pic.W, pic.H = 32, 16
	return &codec.Frame{
		HostFrame:      hostFrame,
		HardwareFrames: frames,
		KeyFrame:       true,
		PTS:            42,
		DTS:            41,
		Width:          32,
		Height:         16,
	}
}

func TestDownload(t *testing.T) {
	ctx := testContext(t)
	device := stub.NewDevice()
	frames := newFrames(device, vpi.RawFormatP010LE)

	d, err := New(ctx, frames, Config{})
	require.NoError(t, err)
	hw := device.LastContext()
	require.Equal(t, vpi.PluginHWDownload, hw.Plugin)
	require.Equal(t, &vpi.HWDownloadSettings{Format: vpi.RawFormatP010LE}, hw.Settings)

	allocator := &stub.FrameAllocator{}
	in := newInputFrame(ctx, t, frames, allocator)
	defer in.Free()

	out, err := d.Download(ctx, in)
	require.NoError(t, err)
	require.Equal(t, vpi.RawFormatP010LE, out.Format)
	require.Equal(t, 32, out.Width)
	require.Equal(t, 16, out.Height)
	require.Equal(t, int64(42), out.PTS)
	require.Equal(t, int64(41), out.DTS)
	require.True(t, out.KeyFrame)
	require.Equal(t, [2]int{64, 64}, out.LineSizes)
	require.Len(t, out.Plane(0), 64*16)
	require.Len(t, out.Plane(1), 64*8)

	stats := d.GetStats(ctx)
	require.Equal(t, uint64(1), stats.FramesDownloaded.Count)
	require.Equal(t, uint64(64*16+64*8), stats.FramesDownloaded.Bytes)

	require.Zero(t, hw.PlanesFreed.Load())
	out.Free()
	require.Equal(t, int64(2), hw.PlanesFreed.Load())
	require.Equal(t, uint64(2), d.GetStats(ctx).PlanesReleased.Count)

	// freeing twice does not release the planes twice
	out.Free()
	require.Equal(t, int64(2), hw.PlanesFreed.Load())

	require.NoError(t, d.Close(ctx))
	require.True(t, hw.IsClosed())
	require.True(t, hw.IsDestroyed())
	require.NoError(t, d.Close(ctx))
	require.Equal(t, 1, device.DestroyCount)
}

func TestDownloadForeignFrame(t *testing.T) {
	ctx := testContext(t)
	device := stub.NewDevice()
	frames := newFrames(device, vpi.RawFormatNV12)

	d, err := New(ctx, frames, Config{Format: vpi.RawFormatNV12})
	require.NoError(t, err)
	defer d.Close(ctx)

	other := newFrames(device, vpi.RawFormatNV12)
	in := newInputFrame(ctx, t, other, &stub.FrameAllocator{})
	_, err = d.Download(ctx, in)
	require.ErrorIs(t, err, ErrForeignFrame)
	require.Zero(t, device.Contexts[0].Calls["process"])
}

func TestDownloadInvalidFormat(t *testing.T) {
	ctx := testContext(t)
	device := stub.NewDevice()

	_, err := New(ctx, newFrames(device, vpi.RawFormatNV12), Config{Format: vpi.RawFormat(100)})
	var invalid ErrInvalidOutputFormat
	require.True(t, errors.As(err, &invalid), err)
	require.Empty(t, device.Contexts)
}

func TestDownloadHardwareFailures(t *testing.T) {
	ctx := testContext(t)

	t.Run("init", func(t *testing.T) {
		device := stub.NewDevice()
		device.Prepare = func(c *stub.Context) {
			c.InitErr = vpi.StatusNotSupported
		}
		_, err := New(ctx, newFrames(device, vpi.RawFormatNV12), Config{})
		require.ErrorIs(t, err, vpi.StatusNotSupported)
		require.Equal(t, 1, device.DestroyCount)
	})

	t.Run("process", func(t *testing.T) {
		device := stub.NewDevice()
		frames := newFrames(device, vpi.RawFormatNV12)
		d, err := New(ctx, frames, Config{})
		require.NoError(t, err)
		defer d.Close(ctx)

		device.LastContext().ProcessErr = vpi.StatusDevice
		_, err = d.Download(ctx, newInputFrame(ctx, t, frames, &stub.FrameAllocator{}))
		var external codec.ErrExternal
		require.True(t, errors.As(err, &external), err)
		require.Equal(t, "process", external.Op)
	})

	t.Run("closed", func(t *testing.T) {
		device := stub.NewDevice()
		frames := newFrames(device, vpi.RawFormatNV12)
		d, err := New(ctx, frames, Config{})
		require.NoError(t, err)
		require.NoError(t, d.Close(ctx))
		_, err = d.Download(ctx, newInputFrame(ctx, t, frames, &stub.FrameAllocator{}))
		require.ErrorIs(t, err, codec.ErrClosed)
	})
}

func TestDownloadCloseBeforeFree(t *testing.T) {
	ctx := testContext(t)
	device := stub.NewDevice()
	frames := newFrames(device, vpi.RawFormatNV12)

	d, err := New(ctx, frames, Config{})
	require.NoError(t, err)
	hw := device.LastContext()

	in := newInputFrame(ctx, t, frames, &stub.FrameAllocator{})
	defer in.Free()
	out, err := d.Download(ctx, in)
	require.NoError(t, err)

	require.NoError(t, d.Close(ctx))
	require.False(t, hw.IsClosed())
	require.Zero(t, device.DestroyCount)

	_, err = d.Download(ctx, in)
	require.ErrorIs(t, err, codec.ErrClosed)

	out.Free()
	require.Equal(t, int64(2), hw.PlanesFreed.Load())
	require.True(t, hw.IsClosed())
	require.True(t, hw.IsDestroyed())
	require.Equal(t, 1, device.DestroyCount)

	require.NoError(t, d.Close(ctx))
	require.Equal(t, 1, device.DestroyCount)
}
