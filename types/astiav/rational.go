package astiav

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/vpe/types"
)

func FrameRateToAstiav(r types.FrameRate) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}
