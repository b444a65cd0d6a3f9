package codec

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrTryAgain means no output is available right now: more input
	// (or more output capacity) is needed, call again later.
	ErrTryAgain = errors.New("resource temporarily unavailable, try again")

	// ErrEndOfStream means the decoder is fully drained.
	ErrEndOfStream = io.EOF

	// ErrClosed is returned by a decoder after Close.
	ErrClosed = io.ErrClosedPipe
)

type ErrOutOfMemory struct {
	Err error
}

func (e ErrOutOfMemory) Error() string {
	return fmt.Sprintf("out of memory: %v", e.Err)
}

func (e ErrOutOfMemory) Unwrap() error {
	return e.Err
}

// ErrResourceExhausted is returned when all the packet wait-list entries are
// pending: the hardware does not release the packet buffers as fast as expected.
type ErrResourceExhausted struct {
	Depth int
}

func (e ErrResourceExhausted) Error() string {
	return fmt.Sprintf("all %d packet wait-list entries are pending", e.Depth)
}

// ErrExternal is an unexpected status from the hardware.
type ErrExternal struct {
	Op  string
	Err error
}

func (e ErrExternal) Error() string {
	return fmt.Sprintf("external failure in '%s': %v", e.Op, e.Err)
}

func (e ErrExternal) Unwrap() error {
	return e.Err
}

type DesyncKind int

const (
	DesyncUndefined = DesyncKind(iota)
	DesyncNotFound
	DesyncInvalidState
)

func (k DesyncKind) String() string {
	switch k {
	case DesyncNotFound:
		return "not_found"
	case DesyncInvalidState:
		return "invalid_state"
	}
	return fmt.Sprintf("unknown_%d", int(k))
}

// ErrProtocolDesync means a handle or a buffer reference reported by the
// hardware does not match the decoder's bookkeeping. It is always a bug:
// either here or in the hardware.
type ErrProtocolDesync struct {
	Kind    DesyncKind
	Details string
}

func (e ErrProtocolDesync) Error() string {
	return fmt.Sprintf("protocol desync (%s): %s", e.Kind, e.Details)
}
