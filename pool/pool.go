// Package pool recycles libav objects between packets and frames.
package pool

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"
)

// ReuseMemory disables recycling when false (useful to find use-after-put bugs).
var ReuseMemory = true

type Pool[T any] struct {
	sync.Pool
	ResetFunc func(*T)

	allocated atomic.Uint64
	gets      atomic.Uint64
	puts      atomic.Uint64
}

// NewPool returns a pool that allocates with allocFunc, resets returned
// items with resetFunc, and frees the items dropped by sync.Pool with freeFunc.
func NewPool[T any](
	allocFunc func() *T,
	resetFunc func(*T),
	freeFunc func(*T),
) *Pool[T] {
	p := &Pool[T]{
		ResetFunc: resetFunc,
	}
	p.Pool.New = func() any {
		v := allocFunc()
		p.allocated.Inc()
		if freeFunc != nil {
			runtime.SetFinalizer(v, freeFunc)
		}
		return v
	}
	return p
}

func (p *Pool[T]) Get() *T {
	p.gets.Inc()
	return p.Pool.Get().(*T)
}

func (p *Pool[T]) Put(items ...*T) {
	for _, item := range items {
		if item == nil {
			continue
		}
		p.puts.Inc()
		if !ReuseMemory {
			continue
		}
		if p.ResetFunc != nil {
			p.ResetFunc(item)
		}
		p.Pool.Put(item)
	}
}

type Statistics struct {
	Allocated uint64
	Gets      uint64
	Puts      uint64
}

// Outstanding is the amount of items taken and not returned yet.
func (s Statistics) Outstanding() int64 {
	return int64(s.Gets) - int64(s.Puts)
}

func (p *Pool[T]) GetStats() Statistics {
	return Statistics{
		Allocated: p.allocated.Load(),
		Gets:      p.gets.Load(),
		Puts:      p.puts.Load(),
	}
}
