// Package astiav converts the module's plain types to go-astiav objects.
package astiav

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/vpe/internal"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/types"
)

func DictionaryItemsToAstiav(
	ctx context.Context,
	s types.DictionaryItems,
) *astiav.Dictionary {
	if s == nil {
		return nil
	}

	result := astiav.NewDictionary()
	internal.SetFinalizerFree(ctx, result)
	for _, opt := range s.Deduplicate() {
		logger.Tracef(ctx, "setting custom option: %s=%s", opt.Key, opt.Value)
		if err := result.Set(opt.Key, opt.Value, 0); err != nil {
			logger.Errorf(ctx, "unable to set option %s=%s: %v", opt.Key, opt.Value, err)
		}
	}
	return result
}
