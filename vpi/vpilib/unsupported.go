//go:build !linux

package vpilib

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/xaionaro-go/vpe/vpi"
)

var ErrUnsupportedPlatform = fmt.Errorf("libvpi is not available on %s", runtime.GOOS)

type Device struct {
	Name string
}

type HostFrame struct{}

func (*HostFrame) Picture() vpi.Picture { return nil }
func (*HostFrame) Free()                {}

func Open(ctx context.Context, name string) (*Device, error) {
	return nil, ErrUnsupportedPlatform
}

func (d *Device) Create(ctx context.Context, plugin vpi.Plugin) (vpi.Context, error) {
	return nil, ErrUnsupportedPlatform
}

func (d *Device) Destroy(ctx context.Context, vpiCtx vpi.Context) error {
	return ErrUnsupportedPlatform
}

func (d *Device) AllocFrame(ctx context.Context) (*HostFrame, error) {
	return nil, errors.Join(ErrUnsupportedPlatform, vpi.StatusNotSupported)
}

func (d *Device) Close(ctx context.Context) error {
	return nil
}

func LibraryPath() string {
	return ""
}
