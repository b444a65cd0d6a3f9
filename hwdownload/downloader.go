// Package hwdownload transfers decoded pictures from the VPE hardware
// frames pool into host memory.
package hwdownload

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/codec"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/types"
	"github.com/xaionaro-go/vpe/vpi"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

var ErrForeignFrame = errors.New("the frame does not belong to the hardware frames of the downloader")

type ErrInvalidOutputFormat struct {
	Format vpi.RawFormat
}

func (e ErrInvalidOutputFormat) Error() string {
	return fmt.Sprintf("output format %s is not supported; supported formats: nv12, p010le", e.Format)
}

type Config struct {
	// Format is the output pixel format; the format of the hardware
	// frames is used if not set.
	Format vpi.RawFormat
}

type Downloader struct {
	locker xsync.Mutex
	locked *DownloaderLocked
}

// DownloaderLocked is the not thread-safe version of Downloader.
type DownloaderLocked struct {
	Config         Config
	HardwareFrames *codec.HardwareFrames

	vpiCtx   vpi.Context
	counters types.DownloadCounters

	// the planes handed out and not freed yet; the plugin outlives Close
	// until the last of them is freed
	outstandingPlanes atomic.Int64
	closed            atomic.Bool
	released          atomic.Bool
}

func New(
	ctx context.Context,
	frames *codec.HardwareFrames,
	cfg Config,
) (_ret *Downloader, _err error) {
	ctx = belt.WithField(ctx, "vpe_plugin", vpi.PluginHWDownload.String())
	logger.Tracef(ctx, "New")
	defer func() { logger.Tracef(ctx, "/New: %v", _err) }()

	if frames == nil || frames.Device == nil {
		return nil, fmt.Errorf("no hardware frames provided")
	}
	if cfg.Format == vpi.RawFormatUndefined {
		cfg.Format = frames.SWFormat
	}
	switch cfg.Format {
	case vpi.RawFormatNV12, vpi.RawFormatP010LE:
	default:
		return nil, ErrInvalidOutputFormat{Format: cfg.Format}
	}

	vpiCtx, err := frames.Device.Create(ctx, vpi.PluginHWDownload)
	if err != nil {
		return nil, codec.ErrExternal{Op: "create", Err: err}
	}
	if err := vpiCtx.Init(ctx, &vpi.HWDownloadSettings{Format: cfg.Format}); err != nil {
		if err := vpiCtx.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the hwdownload context: %v", err)
		}
		if err := frames.Device.Destroy(ctx, vpiCtx); err != nil {
			logger.Errorf(ctx, "unable to destroy the hwdownload context: %v", err)
		}
		return nil, codec.ErrExternal{Op: "init", Err: err}
	}

	logger.Debugf(ctx, "initialized the downloader: %s -> %s", frames, cfg.Format)
	return &Downloader{
		locked: &DownloaderLocked{
			Config:         cfg,
			HardwareFrames: frames,
			vpiCtx:         vpiCtx,
		},
	}, nil
}

func (d *Downloader) Download(
	ctx context.Context,
	in *codec.Frame,
) (*Frame, error) {
	return xsync.DoA2R2(xsync.WithNoLogging(ctx, true), &d.locker, d.locked.download, ctx, in)
}

func (d *DownloaderLocked) download(
	ctx context.Context,
	in *codec.Frame,
) (_ret *Frame, _err error) {
	logger.Tracef(ctx, "Download: %v", in)
	defer func() { logger.Tracef(ctx, "/Download: %v %v", _ret, _err) }()

	if d.vpiCtx == nil {
		return nil, codec.ErrClosed
	}
	if in == nil || in.HardwareFrames != d.HardwareFrames {
		return nil, ErrForeignFrame
	}
	picture := in.Picture()
	if picture == nil {
		return nil, fmt.Errorf("the frame carries no hardware picture")
	}

	var raw vpi.RawFrame
	if err := d.vpiCtx.Process(ctx, picture, &raw); err != nil {
		return nil, codec.ErrExternal{Op: "process", Err: err}
	}

	out := &Frame{
		LineSizes: raw.LineSizes,
		Format:    d.Config.Format,
		Width:     in.Width,
		Height:    in.Height,
		PTS:       in.PTS,
		DTS:       in.DTS,
		KeyFrame:  in.KeyFrame,
	}
	if raw.Width > 0 && raw.Height > 0 {
		out.Width, out.Height = raw.Width, raw.Height
	}
	var size uint64
	for idx, plane := range raw.Planes {
		d.outstandingPlanes.Inc()
		out.Planes[idx] = buffer.New(plane, d.planeFreer(ctx))
		size += uint64(len(plane))
	}
	d.counters.FramesDownloaded.Increment(size)
	return out, nil
}

func (d *DownloaderLocked) planeFreer(ctx context.Context) func([]byte) {
	vpiCtx := d.vpiCtx
	return func(data []byte) {
		d.counters.PlanesReleased.Increment(uint64(len(data)))
		if err := vpiCtx.Control(ctx, &vpi.CmdHWDownloadFreeBuffer{Data: data}); err != nil {
			logger.Errorf(ctx, "unable to free a downloaded plane: %v", err)
		}
		if d.outstandingPlanes.Dec() == 0 && d.closed.Load() {
			logger.Debugf(ctx, "the last downloaded plane is freed, releasing the plugin")
			if err := d.release(ctx, vpiCtx); err != nil {
				logger.Errorf(ctx, "unable to release the hwdownload plugin: %v", err)
			}
		}
	}
}

func (d *Downloader) GetStats(ctx context.Context) types.DownloadStatistics {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &d.locker, d.locked.counters.ToStats)
}

func (d *Downloader) Close(ctx context.Context) error {
	return xsync.DoA1R1(xsync.WithNoLogging(ctx, true), &d.locker, d.locked.close, ctx)
}

// close stops accepting downloads. The plugin is released right away if
// no downloaded plane is alive, otherwise by the free of the last plane.
func (d *DownloaderLocked) close(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "close")
	defer func() { logger.Tracef(ctx, "/close: %v", _err) }()
	if d.vpiCtx == nil {
		return nil
	}
	vpiCtx := d.vpiCtx
	d.vpiCtx = nil
	d.closed.Store(true)
	if planes := d.outstandingPlanes.Load(); planes > 0 {
		logger.Debugf(ctx, "%d downloaded planes are not freed yet, postponing the release of the plugin", planes)
		return nil
	}
	return d.release(ctx, vpiCtx)
}

func (d *DownloaderLocked) release(ctx context.Context, vpiCtx vpi.Context) error {
	if !d.released.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if err := vpiCtx.Close(ctx); err != nil {
		errs = append(errs, codec.ErrExternal{Op: "close", Err: err})
	}
	if err := d.HardwareFrames.Device.Destroy(ctx, vpiCtx); err != nil {
		errs = append(errs, codec.ErrExternal{Op: "destroy", Err: err})
	}
	return errors.Join(errs...)
}
