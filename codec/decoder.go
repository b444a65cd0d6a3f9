package codec

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/types"
	"github.com/xaionaro-go/vpe/vpi"
	"github.com/xaionaro-go/xsync"
)

type Decoder struct {
	locker xsync.Mutex
	locked *DecoderLocked
}

type DecoderInput struct {
	Device         vpi.Device
	Plugin         vpi.Plugin
	PacketSource   PacketSource
	FrameAllocator FrameAllocator
	Config         DecoderConfig
	StreamParams   StreamParams
}

func NewDecoder(
	ctx context.Context,
	input DecoderInput,
) (_ret *Decoder, _err error) {
	ctx = belt.WithField(ctx, "vpe_plugin", input.Plugin.String())
	logger.Tracef(ctx, "NewDecoder")
	defer func() { logger.Tracef(ctx, "/NewDecoder: %v", _err) }()

	d, err := newDecoderLocked(ctx, input)
	if err != nil {
		return nil, err
	}
	return &Decoder{locked: d}, nil
}

func newDecoderLocked(
	ctx context.Context,
	input DecoderInput,
) (_ret *DecoderLocked, _err error) {
	switch {
	case input.Device == nil:
		return nil, fmt.Errorf("no VPE device provided")
	case !input.Plugin.IsDecoder():
		return nil, fmt.Errorf("plugin %s is not a decoder", input.Plugin)
	case input.PacketSource == nil:
		return nil, fmt.Errorf("no packet source provided")
	case input.FrameAllocator == nil:
		return nil, fmt.Errorf("no frame allocator provided")
	}
	if err := input.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	hwFrames, err := NewHardwareFrames(input.Device, input.StreamParams)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the hardware frames parameters: %w", err)
	}

	vpiCtx, err := input.Device.Create(ctx, input.Plugin)
	if err != nil {
		return nil, ErrExternal{Op: "create", Err: err}
	}

	d := &DecoderLocked{
		Config:         input.Config,
		Plugin:         input.Plugin,
		HardwareFrames: hwFrames,
		device:         input.Device,
		vpiCtx:         vpiCtx,
		packetSource:   input.PacketSource,
		framePool:      newFramePool(vpiCtx, input.FrameAllocator),
		waitList:       newPacketWaitList(input.Config.waitDepth()),
	}
	defer func() {
		if _err == nil {
			return
		}
		if err := d.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the partially initialized decoder: %v", err)
		}
	}()

	initOpt := &vpi.CmdDecInitOption{}
	if err := vpiCtx.Control(ctx, initOpt); err != nil {
		return nil, ErrOutOfMemory{Err: fmt.Errorf("unable to get the decoder settings: %w", err)}
	}
	if initOpt.Settings == nil {
		return nil, ErrOutOfMemory{Err: fmt.Errorf("the hardware returned no decoder settings")}
	}
	d.settings = initOpt.Settings

	d.settings.PPSetting = input.Config.LowRes
	d.settings.Transcode = input.Config.Transcode
	d.settings.SWFormat = hwFrames.SWFormat
	d.settings.SrcWidth = input.StreamParams.Width
	d.settings.SrcHeight = input.StreamParams.Height
	d.settings.FrameRateNum = input.StreamParams.FrameRate.Num()
	d.settings.FrameRateDen = input.StreamParams.FrameRate.Den()
	if logger.TraceEnabled {
		logger.Tracef(ctx, "decoder settings: %s", spew.Sdump(d.settings))
	}

	if err := vpiCtx.Init(ctx, d.settings); err != nil {
		return nil, ErrExternal{Op: "init", Err: err}
	}

	pktCmd := &vpi.CmdDecGetStreamBufferPacket{}
	if err := vpiCtx.Control(ctx, pktCmd); err != nil {
		return nil, ErrOutOfMemory{Err: fmt.Errorf("unable to get the stream buffer packet: %w", err)}
	}
	if pktCmd.Packet == nil {
		return nil, ErrOutOfMemory{Err: fmt.Errorf("the hardware returned no stream buffer packet")}
	}
	d.bufferedPacket = pktCmd.Packet
	d.bufferedPacket.Reset()

	logger.Debugf(ctx, "initialized %s: %s; %s; wait depth: %d", d, d.settings, hwFrames, d.waitList.Depth())
	return d, nil
}

func (d *Decoder) String() string {
	return d.locked.String()
}

func (d *Decoder) ReceiveFrame(
	ctx context.Context,
	out *Frame,
) error {
	return xsync.DoA2R1(xsync.WithNoLogging(ctx, true), &d.locker, d.locked.ReceiveFrame, ctx, out)
}

func (d *Decoder) Close(ctx context.Context) error {
	return xsync.DoA1R1(xsync.WithNoLogging(ctx, true), &d.locker, d.locked.Close, ctx)
}

func (d *Decoder) GetStats(ctx context.Context) types.DecoderStatistics {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &d.locker, d.locked.GetStats)
}

func (d *Decoder) HardwareFrames() *HardwareFrames {
	return d.locked.HardwareFrames
}

func (d *Decoder) IsClosed(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &d.locker, d.locked.IsClosed)
}

// UnsafeGetLocked returns the underlying decoder without taking the lock.
func (d *Decoder) UnsafeGetLocked() *DecoderLocked {
	return d.locked
}
