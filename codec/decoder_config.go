package codec

import (
	"fmt"
	"strconv"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/typing"
)

// DefaultMaxWaitDepth is the default amount of packet buffers the hardware
// may hold at once.
const DefaultMaxWaitDepth = 32

const (
	OptionLowRes    = "low_res"
	OptionTranscode = "transcode"
	OptionWaitDepth = "wait_depth"
)

type DecoderConfig struct {
	// LowRes is the output number and at most four output down-scale
	// configurations; passed to the hardware verbatim.
	LowRes string

	// Transcode enables the transcoding mode of the hardware.
	Transcode bool

	WaitDepth typing.Optional[int]
}

func (cfg DecoderConfig) waitDepth() int {
	if cfg.WaitDepth.IsSet() {
		return cfg.WaitDepth.Get()
	}
	return DefaultMaxWaitDepth
}

func (cfg DecoderConfig) Validate() error {
	if cfg.WaitDepth.IsSet() && cfg.WaitDepth.Get() <= 0 {
		return fmt.Errorf("wait depth must be positive, got %d", cfg.WaitDepth.Get())
	}
	return nil
}

// ParseDecoderConfig reads the decoder options from a libav options dictionary.
// Unknown keys are ignored.
func ParseDecoderConfig(opts *astiav.Dictionary) (DecoderConfig, error) {
	var cfg DecoderConfig
	if opts == nil {
		return cfg, nil
	}

	if v := opts.Get(OptionLowRes, nil, 0); v != nil {
		cfg.LowRes = v.Value()
	}
	if v := opts.Get(OptionTranscode, nil, 0); v != nil {
		transcode, err := strconv.ParseBool(v.Value())
		if err != nil {
			return cfg, fmt.Errorf("unable to parse option '%s' value '%s' as a bool: %w", OptionTranscode, v.Value(), err)
		}
		cfg.Transcode = transcode
	}
	if v := opts.Get(OptionWaitDepth, nil, 0); v != nil {
		depth, err := strconv.ParseInt(v.Value(), 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("unable to parse option '%s' value '%s' as int: %w", OptionWaitDepth, v.Value(), err)
		}
		cfg.WaitDepth = typing.Opt(int(depth))
	}
	return cfg, cfg.Validate()
}
