// Package buffer provides reference-counted byte buffers.
//
// A Buffer is shared by any number of Ref handles. Every handle is a distinct
// pointer, so a handle can be used as an identity key while the memory it
// points to is shared. The memory is released when the last handle is unref'ed.
package buffer

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"
)

var ErrReleased = errors.New("the buffer reference is already released")

type Buffer struct {
	data     []byte
	refCount atomic.Int64
	freeFunc func([]byte)
}

type Ref struct {
	buffer   *Buffer
	released atomic.Bool
}

// New wraps data into a new Buffer and returns the first reference to it.
// freeFunc (if not nil) is called once the last reference is released.
func New(data []byte, freeFunc func([]byte)) *Ref {
	b := &Buffer{
		data:     data,
		freeFunc: freeFunc,
	}
	b.refCount.Store(1)
	return &Ref{buffer: b}
}

// Ref returns a new handle to the same memory.
func (r *Ref) Ref() (*Ref, error) {
	if r == nil {
		return nil, fmt.Errorf("nil reference")
	}
	if r.released.Load() {
		return nil, ErrReleased
	}
	r.buffer.refCount.Inc()
	return &Ref{buffer: r.buffer}, nil
}

// Unref releases the handle. Returns false if the handle was already released.
func (r *Ref) Unref() bool {
	if r == nil {
		return false
	}
	if !r.released.CompareAndSwap(false, true) {
		return false
	}
	if r.buffer.refCount.Dec() == 0 {
		if r.buffer.freeFunc != nil {
			r.buffer.freeFunc(r.buffer.data)
		}
		r.buffer.data = nil
	}
	return true
}

func (r *Ref) IsReleased() bool {
	return r.released.Load()
}

func (r *Ref) Data() []byte {
	if r.released.Load() {
		return nil
	}
	return r.buffer.data
}

func (r *Ref) Size() int {
	return len(r.Data())
}

// RefCount returns the amount of live handles of the underlying buffer.
func (r *Ref) RefCount() int64 {
	return r.buffer.refCount.Load()
}

func (r *Ref) String() string {
	return fmt.Sprintf("buffer.Ref(%p; size:%d; refs:%d)", r, r.Size(), r.RefCount())
}
