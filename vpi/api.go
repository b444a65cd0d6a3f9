// Package vpi describes the VPE hardware capability (the "VPI" vendor
// interface) as Go interfaces.
//
// The vendor interface is an opaque handle plus a handful of entry points;
// everything else goes through Control with a command. Here each command is
// a typed struct (see Command), so payload types are checked by the compiler.
package vpi

import (
	"context"
	"fmt"
)

type Plugin int

const (
	PluginUndefined = Plugin(iota)
	PluginH264Decoder
	PluginHEVCDecoder
	PluginVP9Decoder
	PluginHWDownload
	endOfPlugin
)

func (p Plugin) String() string {
	switch p {
	case PluginUndefined:
		return "undefined"
	case PluginH264Decoder:
		return "h264_dec"
	case PluginHEVCDecoder:
		return "hevc_dec"
	case PluginVP9Decoder:
		return "vp9_dec"
	case PluginHWDownload:
		return "hwdownload"
	}
	return fmt.Sprintf("unknown_plugin_%d", int(p))
}

func PluginFromString(s string) (Plugin, error) {
	for p := PluginUndefined + 1; p < endOfPlugin; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	switch s {
	case "h264":
		return PluginH264Decoder, nil
	case "hevc", "h265":
		return PluginHEVCDecoder, nil
	case "vp9":
		return PluginVP9Decoder, nil
	}
	return PluginUndefined, fmt.Errorf("unknown plugin '%s'", s)
}

func (p Plugin) IsDecoder() bool {
	switch p {
	case PluginH264Decoder, PluginHEVCDecoder, PluginVP9Decoder:
		return true
	}
	return false
}

// Device is an opened VPE device: the owner of the plugin contexts.
type Device interface {
	Create(ctx context.Context, plugin Plugin) (Context, error)
	Destroy(ctx context.Context, vpiCtx Context) error
}

// Context is a single plugin instance created on a Device.
//
// Implementations are not safe for concurrent use.
type Context interface {
	Init(ctx context.Context, settings Settings) error
	Control(ctx context.Context, cmd Command) error

	// DecodePutPacket submits the bytes of the packet and returns how
	// many of them were consumed. An empty packet requests a flush.
	DecodePutPacket(ctx context.Context, pkt *Packet) (int, error)
	DecodeGetFrame(ctx context.Context) (FrameStatus, Picture, error)

	// Process is the entry point of the hwdownload plugin.
	Process(ctx context.Context, in Picture, out *RawFrame) error

	Close(ctx context.Context) error
}

type FrameStatus int

const (
	FrameStatusNotReady = FrameStatus(iota)
	FrameStatusReady
	FrameStatusEndOfStream
)

func (s FrameStatus) String() string {
	switch s {
	case FrameStatusNotReady:
		return "not_ready"
	case FrameStatusReady:
		return "ready"
	case FrameStatusEndOfStream:
		return "end_of_stream"
	}
	return fmt.Sprintf("unknown_frame_status_%d", int(s))
}

// Picture is a hardware picture descriptor. It lives in the memory of a host
// frame allocated from the hardware frames pool; two Picture values are the
// same picture iff they are equal (==).
type Picture interface {
	IsLocked() bool
	LineSizes() [3]int
	IsKeyFrame() bool
	PTS() int64
	DTS() int64
	Width() int
	Height() int
}
