package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/vpe/logger"
)

// SetFinalizerFree makes the garbage collector call Free on objects
// (usually libav ones) nobody has freed explicitly.
func SetFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	runtime.SetFinalizer(freer, func(freer T) {
		logger.Debugf(ctx, "freeing %T", freer)
		freer.Free()
	})
}
