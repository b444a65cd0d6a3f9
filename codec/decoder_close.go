package codec

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
)

// Close tears the decoding session down. It may be called at any moment,
// including after a failed ReceiveFrame or a partially completed init.
// Calling Close again is a no-op.
func (d *DecoderLocked) Close(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Close")
	defer func() { logger.Tracef(ctx, "/Close: %v", _err) }()

	if d.vpiCtx == nil {
		return nil
	}

	var firstErr error
	setErr := func(err error) {
		if err == nil {
			return
		}
		logger.Errorf(ctx, "teardown of %s: %v", d, err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if d.framePool != nil {
		setErr(d.control(ctx, &vpi.CmdDecClearFrameBuffer{}))
		d.framePool.reclaimUnused(ctx)
	}

	// everything below must run regardless of the errors above

	if err := d.vpiCtx.Close(ctx); err != nil {
		setErr(ErrExternal{Op: "close", Err: err})
	}

	if d.waitList != nil {
		if count := d.waitList.flushAll(); count > 0 {
			logger.Debugf(ctx, "released %d packet buffers the hardware has never returned", count)
		}
	}

	if d.framePool != nil {
		d.framePool.releaseAll(ctx)
	}

	d.settings = nil
	if d.bufferedPacket != nil {
		d.bufferedPacket.Reset()
		d.bufferedPacket = nil
	}

	if d.device != nil {
		if err := d.device.Destroy(ctx, d.vpiCtx); err != nil {
			setErr(ErrExternal{Op: "destroy", Err: err})
		}
	}
	d.vpiCtx = nil

	if firstErr != nil {
		return fmt.Errorf("unable to cleanly close %s: %w", d, firstErr)
	}
	return nil
}
