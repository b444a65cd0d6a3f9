package libav

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/types"
	typesastiav "github.com/xaionaro-go/vpe/types/astiav"
)

type InputConfig struct {
	CustomOptions types.DictionaryItems
}

// Input is an opened demuxer.
type Input struct {
	*astiav.FormatContext
	URL string
}

func NewInputFromURL(
	ctx context.Context,
	url string,
	cfg InputConfig,
) (_ret *Input, _err error) {
	logger.Tracef(ctx, "NewInputFromURL: '%s'", url)
	defer func() { logger.Tracef(ctx, "/NewInputFromURL: '%s': %v", url, _err) }()
	if url == "" {
		return nil, fmt.Errorf("the provided URL is empty")
	}

	var inputFormat *astiav.InputFormat
	var options types.DictionaryItems
	for _, opt := range cfg.CustomOptions {
		if opt.Key == "f" {
			inputFormat = astiav.FindInputFormat(opt.Value)
			if inputFormat == nil {
				return nil, fmt.Errorf("unable to find input format by name '%s'", opt.Value)
			}
			continue
		}
		options = append(options, opt)
	}

	fmtCtx := astiav.AllocFormatContext()
	if fmtCtx == nil {
		return nil, fmt.Errorf("unable to allocate a format context")
	}
	dict := typesastiav.DictionaryItemsToAstiav(ctx, options)
	if err := fmtCtx.OpenInput(url, inputFormat, dict); err != nil {
		fmtCtx.Free()
		return nil, fmt.Errorf("unable to open input by URL '%s': %w", url, err)
	}
	if err := fmtCtx.FindStreamInfo(nil); err != nil {
		fmtCtx.CloseInput()
		fmtCtx.Free()
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}
	for _, stream := range fmtCtx.Streams() {
		cp := stream.CodecParameters()
		logger.Debugf(ctx, "input stream #%d: %s %s %dx%d", stream.Index(), cp.MediaType(), cp.CodecID(), cp.Width(), cp.Height())
	}
	return &Input{
		FormatContext: fmtCtx,
		URL:           url,
	}, nil
}

// FirstVideoStream returns the first video stream of the input.
func (i *Input) FirstVideoStream() *astiav.Stream {
	for _, stream := range i.Streams() {
		if stream.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			return stream
		}
	}
	return nil
}

func (i *Input) readIntoPacket(pkt *astiav.Packet) error {
	err := i.FormatContext.ReadFrame(pkt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEio):
		return io.EOF
	default:
		return err
	}
}

func (i *Input) Close() error {
	if i == nil || i.FormatContext == nil {
		return nil
	}
	i.FormatContext.CloseInput()
	i.FormatContext.Free()
	i.FormatContext = nil
	return nil
}
