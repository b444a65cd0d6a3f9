// Package stub is a scripted, deterministic VPE hardware model.
//
// It implements just enough of the decoder and hwdownload plugins to drive
// the decode pipeline: it consumes packet bytes, emits pictures into the
// bound frame buffers, hands back the packet buffers, and signals end of
// stream after a flush. Every aspect is scriptable through Context fields.
package stub

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
)

type Device struct {
	CreateErr  error
	DestroyErr error

	// Prepare (if set) is called on every newly created context before
	// it is returned, to script it.
	Prepare func(*Context)

	Contexts     []*Context
	DestroyCount int
}

var _ vpi.Device = (*Device)(nil)

func NewDevice() *Device {
	return &Device{}
}

func (d *Device) Create(
	ctx context.Context,
	plugin vpi.Plugin,
) (vpi.Context, error) {
	logger.Debugf(ctx, "stub: create %s", plugin)
	if d.CreateErr != nil {
		return nil, d.CreateErr
	}
	c := newContext(d, plugin)
	if d.Prepare != nil {
		d.Prepare(c)
	}
	d.Contexts = append(d.Contexts, c)
	return c, nil
}

func (d *Device) Destroy(
	ctx context.Context,
	vpiCtx vpi.Context,
) error {
	logger.Debugf(ctx, "stub: destroy")
	c, ok := vpiCtx.(*Context)
	if !ok || c.device != d {
		return fmt.Errorf("the context %T does not belong to this device: %w", vpiCtx, vpi.StatusInvalidParam)
	}
	d.DestroyCount++
	c.destroyed = true
	return d.DestroyErr
}

// LastContext returns the most recently created context.
func (d *Device) LastContext() *Context {
	if len(d.Contexts) == 0 {
		return nil
	}
	return d.Contexts[len(d.Contexts)-1]
}
