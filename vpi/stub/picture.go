package stub

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/vpe/vpi"
)

// Picture is the hardware picture descriptor of the stub.
type Picture struct {
	ID       int
	Locked   bool
	Lines    [3]int
	KeyFrame bool
	Pts      int64
	Dts      int64
	W        int
	H        int
}

var _ vpi.Picture = (*Picture)(nil)

func (p *Picture) IsLocked() bool    { return p.Locked }
func (p *Picture) LineSizes() [3]int { return p.Lines }
func (p *Picture) IsKeyFrame() bool  { return p.KeyFrame }
func (p *Picture) PTS() int64        { return p.Pts }
func (p *Picture) DTS() int64        { return p.Dts }
func (p *Picture) Width() int        { return p.W }
func (p *Picture) Height() int       { return p.H }

func (p *Picture) String() string {
	return fmt.Sprintf("stub.Picture(#%d; locked:%t; pts:%d)", p.ID, p.Locked, p.Pts)
}

// FrameAllocator allocates host frames each carrying a distinct Picture.
// See codec.FrameAllocatorFunc to use it as a codec.FrameAllocator.
type FrameAllocator struct {
	// FailAfter makes every allocation after the first FailAfter ones fail.
	// Zero means never fail.
	FailAfter int

	Allocated   int
	Freed       int
	DoubleFrees int

	nextID int
}

func (a *FrameAllocator) AllocFrame(ctx context.Context) (*HostFrame, error) {
	if a.FailAfter > 0 && a.Allocated >= a.FailAfter {
		return nil, vpi.StatusMalloc
	}
	a.nextID++
	a.Allocated++
	return &HostFrame{
		allocator: a,
		picture:   &Picture{ID: a.nextID},
	}, nil
}

// Outstanding returns the amount of allocated and not yet freed host frames.
func (a *FrameAllocator) Outstanding() int {
	return a.Allocated - a.Freed
}

type HostFrame struct {
	allocator *FrameAllocator
	picture   *Picture
	freed     bool
}

func (f *HostFrame) Picture() vpi.Picture {
	return f.picture
}

func (f *HostFrame) StubPicture() *Picture {
	return f.picture
}

func (f *HostFrame) Free() {
	if f.freed {
		f.allocator.DoubleFrees++
		return
	}
	f.freed = true
	f.allocator.Freed++
}

func (f *HostFrame) IsFreed() bool {
	return f.freed
}
