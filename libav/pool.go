// Package libav connects the VPE decoder to go-astiav: it feeds the decoder
// from a demuxer and converts the downloaded frames to *astiav.Frame.
package libav

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/vpe/pool"
)

var PacketPool = pool.NewPool(
	astiav.AllocPacket,
	func(p *astiav.Packet) { p.Unref() },
	func(p *astiav.Packet) { p.Free() },
)

var FramePool = pool.NewPool(
	astiav.AllocFrame,
	func(f *astiav.Frame) { f.Unref() },
	func(f *astiav.Frame) { f.Free() },
)
