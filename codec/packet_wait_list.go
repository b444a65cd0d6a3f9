package codec

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/vpe/buffer"
	"github.com/xaionaro-go/vpe/logger"
)

type waitEntryState int

const (
	waitEntryStateFree = waitEntryState(iota)
	waitEntryStatePending
)

type waitEntry struct {
	state waitEntryState
	ref   *buffer.Ref
}

// packetWaitList keeps the packet buffers alive while the hardware may
// still read them. Each admitted reference is unref'ed exactly once: either
// by retire (the hardware is done with it) or by flushAll (teardown).
type packetWaitList struct {
	entries []waitEntry
}

func newPacketWaitList(depth int) *packetWaitList {
	return &packetWaitList{
		entries: make([]waitEntry, depth),
	}
}

// admit takes the ownership of ref.
func (l *packetWaitList) admit(ref *buffer.Ref) error {
	if ref == nil {
		return fmt.Errorf("nil buffer reference")
	}
	for idx := range l.entries {
		entry := &l.entries[idx]
		if entry.state != waitEntryStateFree {
			continue
		}
		entry.state = waitEntryStatePending
		entry.ref = ref
		return nil
	}
	return ErrResourceExhausted{Depth: len(l.entries)}
}

func (l *packetWaitList) retire(ctx context.Context, ref *buffer.Ref) error {
	for idx := range l.entries {
		entry := &l.entries[idx]
		if entry.state != waitEntryStatePending || entry.ref != ref {
			continue
		}
		logger.Tracef(ctx, "retiring packet buffer %v from wait-list entry #%d", ref, idx)
		entry.ref.Unref()
		entry.ref = nil
		entry.state = waitEntryStateFree
		return nil
	}
	return ErrProtocolDesync{
		Kind:    DesyncInvalidState,
		Details: fmt.Sprintf("buffer reference %p is not pending", ref),
	}
}

// flushAll releases every pending reference and returns how many there were.
func (l *packetWaitList) flushAll() int {
	count := 0
	for idx := range l.entries {
		entry := &l.entries[idx]
		if entry.state != waitEntryStatePending {
			continue
		}
		if entry.ref != nil {
			entry.ref.Unref()
			entry.ref = nil
		}
		entry.state = waitEntryStateFree
		count++
	}
	return count
}

func (l *packetWaitList) PendingCount() int {
	count := 0
	for _, entry := range l.entries {
		if entry.state == waitEntryStatePending {
			count++
		}
	}
	return count
}

func (l *packetWaitList) Depth() int {
	return len(l.entries)
}
