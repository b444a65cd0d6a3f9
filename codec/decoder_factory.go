package codec

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
	"github.com/xaionaro-go/xsync"
)

type DecoderFactory interface {
	fmt.Stringer

	NewDecoder(ctx context.Context, stream *astiav.Stream, source PacketSource) (*Decoder, error)
}

// NaiveDecoderFactory creates a VPE decoder for every video stream it is
// asked for, all on the same device.
type NaiveDecoderFactory struct {
	NaiveDecoderFactoryParams
	Locker   xsync.Mutex
	Decoders []*Decoder
}

var _ DecoderFactory = (*NaiveDecoderFactory)(nil)

type NaiveDecoderFactoryParams struct {
	Device         vpi.Device
	FrameAllocator FrameAllocator
	Options        *astiav.Dictionary
	PostInitFunc   func(context.Context, *Decoder)
}

func NewNaiveDecoderFactory(
	ctx context.Context,
	params NaiveDecoderFactoryParams,
) *NaiveDecoderFactory {
	return &NaiveDecoderFactory{
		NaiveDecoderFactoryParams: params,
	}
}

func (f *NaiveDecoderFactory) NewDecoder(
	ctx context.Context,
	stream *astiav.Stream,
	source PacketSource,
) (_ret *Decoder, _err error) {
	logger.Tracef(ctx, "NewDecoder: stream #%d", stream.Index())
	defer func() { logger.Tracef(ctx, "/NewDecoder: stream #%d: %v %v", stream.Index(), _ret, _err) }()
	return xsync.DoA3R2(ctx, &f.Locker, f.newDecoder, ctx, stream, source)
}

func (f *NaiveDecoderFactory) newDecoder(
	ctx context.Context,
	stream *astiav.Stream,
	source PacketSource,
) (_ret *Decoder, _err error) {
	if fn := f.PostInitFunc; fn != nil {
		defer func() {
			if _err != nil {
				return
			}
			fn(ctx, _ret)
		}()
	}

	codecParameters := stream.CodecParameters()
	if codecParameters.MediaType() != astiav.MediaTypeVideo {
		return nil, fmt.Errorf("only video tracks are supported by NaiveDecoderFactory, got %s", codecParameters.MediaType())
	}

	plugin, err := PluginForCodecID(codecParameters.CodecID())
	if err != nil {
		return nil, err
	}

	cfg, err := ParseDecoderConfig(f.Options)
	if err != nil {
		return nil, fmt.Errorf("unable to parse the decoder options: %w", err)
	}

	params := StreamParamsFromCodecParameters(codecParameters)
	if fps := stream.AvgFrameRate(); fps.Num() > 0 && fps.Den() > 0 {
		params.FrameRate = fps
	}

	d, err := NewDecoder(ctx, DecoderInput{
		Device:         f.Device,
		Plugin:         plugin,
		PacketSource:   source,
		FrameAllocator: f.FrameAllocator,
		Config:         cfg,
		StreamParams:   params,
	})
	if err != nil {
		return nil, err
	}
	f.Decoders = append(f.Decoders, d)
	return d, nil
}

func (f *NaiveDecoderFactory) String() string {
	return "NaiveDecoderFactory"
}

// PluginForCodecID returns the VPE decoder plugin able to decode the codec.
func PluginForCodecID(codecID astiav.CodecID) (vpi.Plugin, error) {
	switch codecID {
	case astiav.CodecIDH264:
		return vpi.PluginH264Decoder, nil
	case astiav.CodecIDHevc:
		return vpi.PluginHEVCDecoder, nil
	case astiav.CodecIDVp9:
		return vpi.PluginVP9Decoder, nil
	}
	return vpi.PluginUndefined, fmt.Errorf("codec %s is not supported by VPE", codecID)
}
