package types

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// FrameRate is a frame rate as a fraction. It implements pflag.Value.
type FrameRate struct {
	Num int
	Den int
}

func (r FrameRate) IsSet() bool {
	return r.Num > 0 && r.Den > 0
}

func (r FrameRate) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r FrameRate) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func (r *FrameRate) Set(s string) error {
	v, err := FrameRateFromString(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func (r *FrameRate) Type() string {
	return "frame-rate"
}

func (r FrameRate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *FrameRate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unable to unmarshal FrameRate from JSON '%s': %w", b, err)
	}
	return r.Set(s)
}

// ntscFrameRate returns N*1000/1001 if fps is close to it.
func ntscFrameRate(fps float64) (FrameRate, bool) {
	r := FrameRate{Num: int(math.Ceil(fps)) * 1000, Den: 1001}
	if math.Abs(fps-r.Float64()) < 1e-2 {
		return r, true
	}
	return FrameRate{}, false
}

// FrameRateFromApproxFloat64 snaps fps to an integer or an NTSC rate
// when possible, and falls back to a micro-precision fraction.
func FrameRateFromApproxFloat64(fps float64) FrameRate {
	if float64(int(fps)) == fps {
		return FrameRate{Num: int(fps), Den: 1}
	}
	if r, ok := ntscFrameRate(fps); ok {
		return r
	}
	rat := big.NewRat(int64(math.Round(fps*1000000)), 1000000)
	return FrameRate{Num: int(rat.Num().Int64()), Den: int(rat.Denom().Int64())}
}

// FrameRateFromString parses "30", "30000/1001", "29.97" (exact decimal)
// or "~29.97" (approximate, see FrameRateFromApproxFloat64).
func FrameRateFromString(s string) (FrameRate, error) {
	var r FrameRate
	switch {
	case len(s) == 0:
		return FrameRate{}, fmt.Errorf("unable to parse a frame rate from an empty string")
	case strings.Contains(s, "/"):
		if _, err := fmt.Sscanf(s, "%d/%d", &r.Num, &r.Den); err != nil {
			return FrameRate{}, fmt.Errorf("unable to parse a frame rate from %q: %w", s, err)
		}
	case s[0] == '~':
		fps, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return FrameRate{}, fmt.Errorf("unable to parse a frame rate from %q: %w", s, err)
		}
		r = FrameRateFromApproxFloat64(fps)
	default:
		rat, ok := new(big.Rat).SetString(s)
		if !ok {
			return FrameRate{}, fmt.Errorf("unable to parse a frame rate from %q", s)
		}
		r = FrameRate{Num: int(rat.Num().Int64()), Den: int(rat.Denom().Int64())}
	}
	if r.Den == 0 {
		return FrameRate{}, fmt.Errorf("denominator cannot be zero")
	}
	return r, nil
}
