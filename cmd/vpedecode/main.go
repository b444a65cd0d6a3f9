package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/vpe/codec"
	"github.com/xaionaro-go/vpe/hwdownload"
	"github.com/xaionaro-go/vpe/libav"
	"github.com/xaionaro-go/vpe/types"
	typesastiav "github.com/xaionaro-go/vpe/types/astiav"
	"github.com/xaionaro-go/vpe/vpi"
	"github.com/xaionaro-go/vpe/vpi/stub"
	"github.com/xaionaro-go/vpe/vpi/vpilib"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [options] <URL-from>\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	deviceName := types.DefaultHardwareDeviceName
	pflag.Var(&deviceName, "device", "the VPE device to decode on")
	useStub := pflag.Bool("stub", false, "use the built-in emulated device instead of libvpi")
	lowRes := pflag.String("low-res", "", "the down-scaled outputs of the hardware (passed verbatim)")
	transcode := pflag.Bool("transcode", false, "enable the transcoding mode of the hardware")
	waitDepth := pflag.Int("wait-depth", 0, "how many packets the hardware may hold at once (0 means the default)")
	var frameRate types.FrameRate
	pflag.Var(&frameRate, "frame-rate", "override the frame rate reported to the hardware (e.g. 30000/1001)")
	inputOptions := pflag.StringArray("input-option", nil, "a demuxer option 'key=value' (e.g. 'f=hevc')")
	outputPath := pflag.StringP("output", "o", "", "where to write the raw video ('-' is stdout; nothing is written if empty)")
	maxFrames := pflag.Int("max-frames", 0, "stop after decoding this amount of frames (0 means no limit)")
	statsInterval := pflag.Duration("stats-interval", 0, "print the statistics periodically")
	pflag.Parse()
	if len(pflag.Args()) != 1 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	libav.RedirectLogs(l)

	closer := astikit.NewCloser()
	defer func() {
		if err := closer.Close(); err != nil {
			l.Errorf("unable to close: %v", err)
		}
	}()

	var inputCfg libav.InputConfig
	for _, s := range *inputOptions {
		opt, err := types.DictionaryItemFromString(s)
		if err != nil {
			l.Fatal(err)
		}
		inputCfg.CustomOptions = append(inputCfg.CustomOptions, opt)
	}

	fromURL := pflag.Arg(0)
	l.Debugf("opening '%s' as the input...", fromURL)
	input, err := libav.NewInputFromURL(ctx, fromURL, inputCfg)
	if err != nil {
		l.Fatal(err)
	}
	closer.AddWithError(input.Close)

	stream := input.FirstVideoStream()
	if stream == nil {
		l.Fatalf("no video stream in '%s'", fromURL)
	}

	device, allocator, err := openDevice(ctx, deviceName, *useStub, closer)
	if err != nil {
		l.Fatal(err)
	}

	var decoderOptions types.DictionaryItems
	if *lowRes != "" {
		decoderOptions = append(decoderOptions, types.DictionaryItem{Key: codec.OptionLowRes, Value: *lowRes})
	}
	if *transcode {
		decoderOptions = append(decoderOptions, types.DictionaryItem{Key: codec.OptionTranscode, Value: "true"})
	}
	if *waitDepth > 0 {
		decoderOptions = append(decoderOptions, types.DictionaryItem{Key: codec.OptionWaitDepth, Value: strconv.Itoa(*waitDepth)})
	}

	factory := codec.NewNaiveDecoderFactory(ctx, codec.NaiveDecoderFactoryParams{
		Device:         device,
		FrameAllocator: allocator,
		Options:        typesastiav.DictionaryItemsToAstiav(ctx, decoderOptions),
		PostInitFunc: func(ctx context.Context, d *codec.Decoder) {
			l.Debugf("initialized %s", d)
		},
	})
	if frameRate.IsSet() {
		stream.SetAvgFrameRate(typesastiav.FrameRateToAstiav(frameRate))
	}
	decoder, err := factory.NewDecoder(ctx, stream, libav.NewPacketSource(input, stream))
	if err != nil {
		l.Fatal(err)
	}
	addCloser(ctx, closer, decoder)

	downloader, err := hwdownload.New(ctx, decoder.HardwareFrames(), hwdownload.Config{})
	if err != nil {
		l.Fatal(err)
	}
	addCloser(ctx, closer, downloader)

	out, err := openOutput(*outputPath, closer)
	if err != nil {
		l.Fatal(err)
	}

	if *statsInterval > 0 {
		observability.Go(ctx, func() {
			t := time.NewTicker(*statsInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					printStats(ctx, decoder, downloader)
				}
			}
		})
	}

	count, err := decodeLoop(ctx, decoder, downloader, out, *maxFrames)
	if err != nil {
		l.Errorf("decoding stopped after %d frames: %v", count, err)
	}
	printStats(ctx, decoder, downloader)
}

func openDevice(
	ctx context.Context,
	name types.HardwareDeviceName,
	useStub bool,
	closer *astikit.Closer,
) (vpi.Device, codec.FrameAllocator, error) {
	if useStub {
		allocator := &stub.FrameAllocator{}
		return stub.NewDevice(), codec.FrameAllocatorFunc(func(ctx context.Context) (codec.HostFrame, error) {
			f, err := allocator.AllocFrame(ctx)
			if err != nil {
				return nil, err
			}
			return f, nil
		}), nil
	}

	device, err := vpilib.Open(ctx, string(name))
	if err != nil {
		return nil, nil, err
	}
	addCloser(ctx, closer, device)
	return device, codec.FrameAllocatorFunc(func(ctx context.Context) (codec.HostFrame, error) {
		f, err := device.AllocFrame(ctx)
		if err != nil {
			return nil, err
		}
		return f, nil
	}), nil
}

type closerWithContext interface {
	Close(context.Context) error
}

func addCloser(ctx context.Context, closer *astikit.Closer, c closerWithContext) {
	closer.AddWithError(func() error {
		return c.Close(ctx)
	})
}

func openOutput(path string, closer *astikit.Closer) (io.Writer, error) {
	switch path {
	case "":
		return io.Discard, nil
	case "-":
		return os.Stdout, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create '%s': %w", path, err)
	}
	closer.AddWithError(f.Close)
	return f, nil
}

func decodeLoop(
	ctx context.Context,
	decoder *codec.Decoder,
	downloader *hwdownload.Downloader,
	out io.Writer,
	maxFrames int,
) (int, error) {
	var count int
	for maxFrames <= 0 || count < maxFrames {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		var frame codec.Frame
		err := receiveFrame(ctx, decoder, &frame, tryAgainDelay)
		switch {
		case err == nil:
		case errors.Is(err, codec.ErrEndOfStream):
			return count, nil
		default:
			return count, err
		}

		err = writeFrame(ctx, downloader, &frame, out)
		frame.Free()
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// tryAgainDelay is the pause before asking the decoder again when it has
// no frame and no input to consume.
const tryAgainDelay = 5 * time.Millisecond

type frameReceiver interface {
	ReceiveFrame(ctx context.Context, out *codec.Frame) error
}

// receiveFrame returns once the decoder outputs a frame or fails with
// anything but ErrTryAgain.
func receiveFrame(
	ctx context.Context,
	decoder frameReceiver,
	frame *codec.Frame,
	delay time.Duration,
) error {
	for {
		err := decoder.ReceiveFrame(ctx, frame)
		if !errors.Is(err, codec.ErrTryAgain) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func writeFrame(
	ctx context.Context,
	downloader *hwdownload.Downloader,
	frame *codec.Frame,
	out io.Writer,
) error {
	raw, err := downloader.Download(ctx, frame)
	if err != nil {
		return fmt.Errorf("unable to download %s: %w", frame, err)
	}
	defer raw.Free()

	avFrame, err := libav.FrameToAVFrame(ctx, raw)
	if err != nil {
		return err
	}
	defer libav.FramePool.Put(avFrame)

	b, err := avFrame.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("unable to get the frame bytes: %w", err)
	}
	if _, err := out.Write(b); err != nil {
		return fmt.Errorf("unable to write the frame: %w", err)
	}
	return nil
}

func printStats(
	ctx context.Context,
	decoder *codec.Decoder,
	downloader *hwdownload.Downloader,
) {
	dec := decoder.GetStats(ctx)
	dl := downloader.GetStats(ctx)
	fmt.Fprintf(os.Stderr,
		"packets: %s (%s submitted); frames: %s decoded, %s downloaded (%s); backpressure polls: %s\n",
		humanize.Comma(int64(dec.PacketsReceived.Count)),
		humanize.Bytes(dec.BytesSubmitted.Bytes),
		humanize.Comma(int64(dec.FramesOutput.Count)),
		humanize.Comma(int64(dl.FramesDownloaded.Count)),
		humanize.Bytes(dl.FramesDownloaded.Bytes),
		humanize.Comma(int64(dec.BackpressurePolls.Count)),
	)
	logger.Debugf(ctx, "packet pool: %+v; frame pool: %+v", libav.PacketPool.GetStats(), libav.FramePool.GetStats())
}
