package codec

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
)

type frameSlot struct {
	hostFrame HostFrame

	// picture is only meaningful while inUse.
	picture vpi.Picture
	inUse   bool
}

// framePool is the set of the output frames handed to the hardware as
// destination buffers. It grows on demand and never shrinks: a slot is
// reused (first-fit, in allocation order) once the hardware reports its
// picture is not locked anymore.
type framePool struct {
	vpiCtx    vpi.Context
	allocator FrameAllocator
	slots     []*frameSlot
}

func newFramePool(vpiCtx vpi.Context, allocator FrameAllocator) *framePool {
	return &framePool{
		vpiCtx:    vpiCtx,
		allocator: allocator,
	}
}

// reclaimUnused returns to the pool every slot whose picture the hardware
// does not lock anymore, and lets the hardware recycle the DPB entry.
func (p *framePool) reclaimUnused(ctx context.Context) {
	for idx, slot := range p.slots {
		if !slot.inUse || slot.picture.IsLocked() {
			continue
		}
		logger.Tracef(ctx, "reclaiming frame slot #%d", idx)
		if err := p.vpiCtx.Control(ctx, &vpi.CmdDecPictureConsume{Picture: slot.picture}); err != nil {
			logger.Errorf(ctx, "unable to notify the hardware that picture %v is consumed: %v", slot.picture, err)
		}
		slot.picture = nil
		slot.inUse = false
	}
}

// acquire binds a fresh host frame to a free (or a new) slot and returns its
// hardware picture.
func (p *framePool) acquire(ctx context.Context) (_ret vpi.Picture, _err error) {
	logger.Tracef(ctx, "acquire")
	defer func() { logger.Tracef(ctx, "/acquire: %v %v", _ret, _err) }()

	p.reclaimUnused(ctx)

	for _, slot := range p.slots {
		if slot.inUse {
			continue
		}
		if err := p.allocInto(ctx, slot); err != nil {
			return nil, err
		}
		return slot.picture, nil
	}

	slot := &frameSlot{}
	p.slots = append(p.slots, slot)
	logger.Debugf(ctx, "the frame pool grew to %d slots", len(p.slots))
	if err := p.allocInto(ctx, slot); err != nil {
		return nil, err
	}
	return slot.picture, nil
}

func (p *framePool) allocInto(
	ctx context.Context,
	slot *frameSlot,
) error {
	if slot.hostFrame != nil {
		// was never output: the hardware dropped it
		slot.hostFrame.Free()
		slot.hostFrame = nil
	}

	hostFrame, err := p.allocator.AllocFrame(ctx)
	if err != nil {
		return ErrOutOfMemory{Err: fmt.Errorf("unable to allocate a host frame: %w", err)}
	}
	picture := hostFrame.Picture()
	if picture == nil {
		hostFrame.Free()
		return ErrOutOfMemory{Err: fmt.Errorf("the allocated host frame has no picture descriptor")}
	}
	for _, other := range p.slots {
		if other.inUse && other.picture == picture {
			hostFrame.Free()
			return ErrProtocolDesync{
				Kind:    DesyncInvalidState,
				Details: fmt.Sprintf("the allocator returned picture %v, which is still in use", picture),
			}
		}
	}

	slot.hostFrame = hostFrame
	slot.picture = picture
	slot.inUse = true
	return nil
}

func (p *framePool) matchByPicture(picture vpi.Picture) (*frameSlot, error) {
	for _, slot := range p.slots {
		if slot.inUse && slot.picture == picture {
			return slot, nil
		}
	}
	return nil, ErrProtocolDesync{
		Kind:    DesyncNotFound,
		Details: fmt.Sprintf("picture %v does not belong to the frame pool", picture),
	}
}

// releaseAll frees every host frame still owned by the pool and empties it.
// It must be called only after the hardware session is closed.
func (p *framePool) releaseAll(ctx context.Context) {
	logger.Debugf(ctx, "releasing %d frame slots", len(p.slots))
	for _, slot := range p.slots {
		if slot.hostFrame != nil {
			slot.hostFrame.Free()
			slot.hostFrame = nil
		}
		slot.picture = nil
		slot.inUse = false
	}
	p.slots = nil
}

func (p *framePool) Len() int {
	return len(p.slots)
}

func (p *framePool) InUseCount() int {
	count := 0
	for _, slot := range p.slots {
		if slot.inUse {
			count++
		}
	}
	return count
}
