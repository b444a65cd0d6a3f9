//go:build !debug_trace
// +build !debug_trace

// Tracing is compiled out unless the debug_trace build tag is set: the decode
// loop calls Tracef on every step and the formatting is not free.

package logger

import (
	"context"
)

// TraceEnabled guards trace-only work whose arguments are expensive to build.
const TraceEnabled = false

func Tracef(ctx context.Context, format string, args ...any) {}
