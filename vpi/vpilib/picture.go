//go:build linux

package vpilib

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
)

// Picture is a VpiFrame living in host memory allocated with pictureInfoSize
// bytes. A Picture is registered in its Device for as long as the memory is
// alive, so the addresses returned by the library map back to the same value.
type Picture struct {
	addr uintptr
}

var _ vpi.Picture = (*Picture)(nil)

func (p *Picture) frame() *vpiFrame {
	return (*vpiFrame)(unsafe.Pointer(p.addr))
}

func (p *Picture) IsLocked() bool {
	return p.frame().Locked != 0
}

func (p *Picture) LineSizes() [3]int {
	f := p.frame()
	return [3]int{int(f.LineSize[0]), int(f.LineSize[1]), int(f.LineSize[2])}
}

func (p *Picture) IsKeyFrame() bool {
	return p.frame().KeyFrame != 0
}

func (p *Picture) PTS() int64 {
	return p.frame().PTS
}

func (p *Picture) DTS() int64 {
	return p.frame().PktDTS
}

func (p *Picture) Width() int {
	return int(p.frame().Width)
}

func (p *Picture) Height() int {
	return int(p.frame().Height)
}

func (p *Picture) String() string {
	return fmt.Sprintf("vpilib.Picture(0x%x)", p.addr)
}

// HostFrame holds a Picture taken from the Device. Free returns the picture
// to the Device (not to the C heap); it is handed out again once the
// hardware unlocks it.
type HostFrame struct {
	device  *Device
	picture *Picture
}

func (f *HostFrame) Picture() vpi.Picture {
	if f.picture == nil {
		return nil
	}
	return f.picture
}

func (f *HostFrame) Free() {
	if f.picture == nil {
		return
	}
	f.device.putPicture(f.picture)
	f.picture = nil
}

// AllocFrame returns a zeroed picture descriptor.
func (d *Device) AllocFrame(ctx context.Context) (*HostFrame, error) {
	var pic *Picture
	d.locker.Do(ctx, func() {
		for idx, candidate := range d.freePictures {
			if candidate.IsLocked() {
				continue
			}
			d.freePictures = append(d.freePictures[:idx], d.freePictures[idx+1:]...)
			pic = candidate
			return
		}
	})
	if pic != nil {
		clear(unsafe.Slice((*byte)(unsafe.Pointer(pic.addr)), pictureInfoSize))
		logger.Tracef(ctx, "reused %s", pic)
		return &HostFrame{device: d, picture: pic}, nil
	}

	addr := cCalloc(1, pictureInfoSize)
	if addr == 0 {
		return nil, vpi.StatusMalloc
	}
	pic = &Picture{addr: addr}
	d.locker.Do(ctx, func() {
		d.pictures[addr] = pic
	})
	logger.Tracef(ctx, "allocated %s", pic)
	return &HostFrame{device: d, picture: pic}, nil
}

func (d *Device) pictureAt(ctx context.Context, addr uintptr) *Picture {
	var pic *Picture
	d.locker.Do(ctx, func() {
		pic = d.pictures[addr]
	})
	if pic == nil {
		logger.Warnf(ctx, "the library returned an unknown picture 0x%x", addr)
		pic = &Picture{addr: addr}
	}
	return pic
}

func (d *Device) putPicture(pic *Picture) {
	d.locker.Do(context.Background(), func() {
		d.freePictures = append(d.freePictures, pic)
	})
}

// releasePictures returns the memory of all the pictures to the C heap.
func (d *Device) releasePictures(ctx context.Context) {
	d.locker.Do(ctx, func() {
		for addr := range d.pictures {
			cFree(addr)
		}
		d.pictures = map[uintptr]*Picture{}
		d.freePictures = nil
	})
}
