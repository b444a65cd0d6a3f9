package vpi

import (
	"fmt"
)

// Status is a non-zero status code returned by the vendor interface.
type Status int

const (
	StatusOK            = Status(0)
	StatusUnknown       = Status(-1)
	StatusMalloc        = Status(-2)
	StatusInvalidParam  = Status(-3)
	StatusNotSupported  = Status(-4)
	StatusDevice        = Status(-5)
	StatusTimeout       = Status(-6)
	StatusNotReady      = Status(-7)
	StatusEndOfStream   = Status(-8)
	StatusInvalidState  = Status(-9)
	StatusHWUnavailable = Status(-10)
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnknown:
		return "unknown error"
	case StatusMalloc:
		return "memory allocation failed"
	case StatusInvalidParam:
		return "invalid parameter"
	case StatusNotSupported:
		return "not supported"
	case StatusDevice:
		return "device error"
	case StatusTimeout:
		return "timeout"
	case StatusNotReady:
		return "not ready"
	case StatusEndOfStream:
		return "end of stream"
	case StatusInvalidState:
		return "invalid state"
	case StatusHWUnavailable:
		return "hardware is unavailable"
	}
	return fmt.Sprintf("unknown status %d", int(s))
}

func (s Status) Error() string {
	return fmt.Sprintf("vpi: %s (%d)", s.String(), int(s))
}

// StatusToError returns nil for StatusOK, and the status itself otherwise.
func StatusToError(code int) error {
	if code == 0 {
		return nil
	}
	return Status(code)
}
