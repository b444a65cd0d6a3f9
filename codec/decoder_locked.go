package codec

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/types"
	"github.com/xaionaro-go/vpe/vpi"
)

// DecoderLocked is a decoding session on a VPE device. It is not safe for
// concurrent use; see Decoder for the serialized version.
type DecoderLocked struct {
	Config         DecoderConfig
	Plugin         vpi.Plugin
	HardwareFrames *HardwareFrames

	device         vpi.Device
	vpiCtx         vpi.Context
	settings       *vpi.DecoderSettings
	bufferedPacket *vpi.Packet
	packetSource   PacketSource
	framePool      *framePool
	waitList       *packetWaitList
	counters       types.DecoderCounters
}

func (d *DecoderLocked) String() string {
	return fmt.Sprintf("Decoder(vpe:%s)", d.Plugin)
}

func (d *DecoderLocked) IsClosed() bool {
	return d.vpiCtx == nil
}

// ReceiveFrame produces the next decoded frame into out (which must be empty).
// It pulls as many packets from the PacketSource as needed, and returns
// ErrTryAgain if no frame could be produced yet, or ErrEndOfStream once
// the decoder is drained.
func (d *DecoderLocked) ReceiveFrame(
	ctx context.Context,
	out *Frame,
) (_err error) {
	logger.Tracef(ctx, "ReceiveFrame")
	defer func() { logger.Tracef(ctx, "/ReceiveFrame: %v", _err) }()
	if d.IsClosed() {
		return ErrClosed
	}

	if err := d.releaseStreamMem(ctx); err != nil {
		return err
	}

	err := d.receive(ctx, out)
	if !errors.Is(err, ErrTryAgain) {
		return err
	}

	for {
		var bufCount vpi.CmdDecStreamBufferCount
		if err := d.control(ctx, &bufCount); err != nil {
			return err
		}
		if bufCount.NoSpace() {
			// the only way to get input space is to drain an output
			d.counters.BackpressurePolls.Increment(0)
			err := d.receive(ctx, out)
			if !errors.Is(err, ErrTryAgain) {
				return err
			}
			continue
		}

		if err := d.releaseStreamMem(ctx); err != nil {
			return err
		}

		if d.bufferedPacket.Size <= 0 {
			pkt, err := d.packetSource.NextPacket(ctx)
			switch {
			case err == nil:
				if err := d.stagePacket(ctx, pkt); err != nil {
					return err
				}
			case errors.Is(err, io.EOF):
				return d.sendFlush(ctx, out)
			case errors.Is(err, ErrTryAgain):
				return d.receive(ctx, out)
			default:
				return fmt.Errorf("unable to get the next packet: %w", err)
			}
		}

		if err := d.bindFrameBufferIfRequested(ctx); err != nil {
			return err
		}

		if d.bufferedPacket.Size <= 0 {
			continue
		}

		n, err := d.vpiCtx.DecodePutPacket(ctx, d.bufferedPacket)
		if err != nil {
			return ErrExternal{Op: "decode_put_packet", Err: err}
		}
		if n <= 0 {
			return ErrExternal{Op: "decode_put_packet", Err: fmt.Errorf("consumed %d bytes of %d", n, d.bufferedPacket.Size)}
		}
		logger.Tracef(ctx, "the hardware consumed %d bytes of %d", n, d.bufferedPacket.Size)
		d.bufferedPacket.Consume(n)
		d.counters.BytesSubmitted.Increment(uint64(n))
		if d.bufferedPacket.Size > 0 {
			continue
		}
		return d.receive(ctx, out)
	}
}

// receive polls the hardware for a decoded picture.
func (d *DecoderLocked) receive(
	ctx context.Context,
	out *Frame,
) error {
	d.framePool.reclaimUnused(ctx)

	status, picture, err := d.vpiCtx.DecodeGetFrame(ctx)
	if err != nil {
		return ErrExternal{Op: "decode_get_frame", Err: err}
	}
	logger.Tracef(ctx, "decode_get_frame: %s", status)
	switch status {
	case vpi.FrameStatusReady:
		return d.outputFrame(ctx, picture, out)
	case vpi.FrameStatusEndOfStream:
		return ErrEndOfStream
	default:
		return ErrTryAgain
	}
}

func (d *DecoderLocked) outputFrame(
	ctx context.Context,
	picture vpi.Picture,
	out *Frame,
) error {
	slot, err := d.framePool.matchByPicture(picture)
	if err != nil {
		logger.Errorf(ctx, "unable to find the matching frame in the pool: %v", err)
		return err
	}
	if slot.hostFrame == nil {
		return ErrProtocolDesync{
			Kind:    DesyncInvalidState,
			Details: fmt.Sprintf("picture %v was already output and not yet consumed", picture),
		}
	}

	// the slot stays in use until the hardware unlocks the picture
	hostFrame := slot.hostFrame
	slot.hostFrame = nil

	*out = Frame{
		HostFrame:           hostFrame,
		HardwareFrames:      d.HardwareFrames,
		LineSizes:           picture.LineSizes(),
		KeyFrame:            picture.IsKeyFrame(),
		PTS:                 picture.PTS(),
		DTS:                 picture.DTS(),
		BestEffortTimestamp: picture.PTS(),
		Width:               picture.Width(),
		Height:              picture.Height(),
	}
	d.counters.FramesOutput.Increment(0)
	return nil
}

// releaseStreamMem retires the packet buffers the hardware is done with.
func (d *DecoderLocked) releaseStreamMem(ctx context.Context) error {
	for {
		var cmd vpi.CmdDecGetUsedStreamMem
		if err := d.control(ctx, &cmd); err != nil {
			return err
		}
		if cmd.Ref == nil {
			return nil
		}
		size := cmd.Ref.Size()
		if err := d.waitList.retire(ctx, cmd.Ref); err != nil {
			logger.Errorf(ctx, "unable to retire packet buffer %v: %v", cmd.Ref, err)
			return err
		}
		d.counters.PacketsRetired.Increment(uint64(size))
	}
}

// stagePacket makes pkt the packet being fed to the hardware. The packet
// buffer is kept alive by the wait-list until the hardware releases it.
func (d *DecoderLocked) stagePacket(
	ctx context.Context,
	pkt *Packet,
) error {
	defer pkt.Release()
	logger.Tracef(ctx, "staging packet: size:%d pts:%d dts:%d", len(pkt.Data), pkt.PTS, pkt.DTS)
	if len(pkt.Data) == 0 {
		logger.Debugf(ctx, "skipping an empty packet")
		return nil
	}

	var ref *buffer.Ref
	if pkt.Buf != nil {
		var err error
		ref, err = pkt.Buf.Ref()
		if err != nil {
			return ErrOutOfMemory{Err: fmt.Errorf("unable to reference the packet buffer: %w", err)}
		}
	} else {
		ref = buffer.New(pkt.Data, nil)
	}

	if err := d.waitList.admit(ref); err != nil {
		ref.Unref()
		logger.Errorf(ctx, "unable to admit the packet buffer to the wait-list: %v", err)
		return err
	}

	*d.bufferedPacket = vpi.Packet{
		Data:     pkt.Data,
		Size:     len(pkt.Data),
		PTS:      pkt.PTS,
		DTS:      pkt.DTS,
		Duration: pkt.Duration,
		Opaque:   ref,
	}
	d.counters.PacketsReceived.Increment(uint64(len(pkt.Data)))
	return nil
}

func (d *DecoderLocked) bindFrameBufferIfRequested(ctx context.Context) error {
	var req vpi.CmdDecFrameBufferRequest
	if err := d.control(ctx, &req); err != nil {
		return err
	}
	if !req.Required {
		return nil
	}

	picture, err := d.framePool.acquire(ctx)
	if err != nil {
		return err
	}
	if err := d.control(ctx, &vpi.CmdDecSetFrameBuffer{Picture: picture}); err != nil {
		return err
	}
	d.counters.FrameBuffersBound.Increment(0)
	return nil
}

// sendFlush pushes the empty packet signaling the end of input, and polls
// for what it might have drained.
func (d *DecoderLocked) sendFlush(
	ctx context.Context,
	out *Frame,
) error {
	logger.Debugf(ctx, "end of input, flushing the decoder")
	*d.bufferedPacket = vpi.Packet{}
	if _, err := d.vpiCtx.DecodePutPacket(ctx, d.bufferedPacket); err != nil {
		return ErrExternal{Op: "decode_put_packet(flush)", Err: err}
	}
	return d.receive(ctx, out)
}

func (d *DecoderLocked) control(
	ctx context.Context,
	cmd vpi.Command,
) error {
	if err := d.vpiCtx.Control(ctx, cmd); err != nil {
		return ErrExternal{Op: cmd.String(), Err: err}
	}
	return nil
}

func (d *DecoderLocked) GetStats() types.DecoderStatistics {
	return d.counters.ToStats()
}

// FramePoolSize returns the amount of slots in the frame pool and how many
// of them are in use.
func (d *DecoderLocked) FramePoolSize() (total, inUse int) {
	if d.framePool == nil {
		return 0, 0
	}
	return d.framePool.Len(), d.framePool.InUseCount()
}

func (d *DecoderLocked) PendingPackets() int {
	if d.waitList == nil {
		return 0
	}
	return d.waitList.PendingCount()
}
