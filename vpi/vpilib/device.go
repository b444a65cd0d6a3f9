//go:build linux

package vpilib

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/xaionaro-go/vpe/logger"
	"github.com/xaionaro-go/vpe/vpi"
	"github.com/xaionaro-go/xsync"
	"golang.org/x/sys/unix"
)

// Device is an opened VPE device node (e.g. "/dev/transcoder0").
type Device struct {
	Name string

	fd           int32
	locker       xsync.Mutex
	pictures     map[uintptr]*Picture
	freePictures []*Picture
}

var _ vpi.Device = (*Device)(nil)

// Open loads libvpi (if not loaded yet) and opens the device.
func Open(ctx context.Context, name string) (*Device, error) {
	if err := checkDeviceNode(name); err != nil {
		return nil, err
	}
	if err := load(); err != nil {
		return nil, err
	}
	fd := vpiOpenHWDevice(name)
	if fd < 0 {
		return nil, fmt.Errorf("unable to open the VPE device '%s': %w", name, vpi.StatusDevice)
	}
	logger.Debugf(ctx, "opened VPE device '%s' (fd:%d) using %s", name, fd, libraryPath)
	return &Device{
		Name:     name,
		fd:       fd,
		pictures: map[uintptr]*Picture{},
	}, nil
}

func checkDeviceNode(name string) error {
	var st unix.Stat_t
	if err := unix.Stat(name, &st); err != nil {
		return fmt.Errorf("unable to stat '%s': %w", name, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return fmt.Errorf("'%s' is not a character device: %w", name, vpi.StatusDevice)
	}
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("vpilib.Device(%s)", d.Name)
}

func pluginCode(plugin vpi.Plugin) (int32, error) {
	switch plugin {
	case vpi.PluginH264Decoder:
		return vpiPluginH264Decoder, nil
	case vpi.PluginHEVCDecoder:
		return vpiPluginHEVCDecoder, nil
	case vpi.PluginVP9Decoder:
		return vpiPluginVP9Decoder, nil
	case vpi.PluginHWDownload:
		return vpiPluginHWDownload, nil
	}
	return 0, fmt.Errorf("plugin %s is not supported: %w", plugin, vpi.StatusNotSupported)
}

func (d *Device) Create(
	ctx context.Context,
	plugin vpi.Plugin,
) (_ret vpi.Context, _err error) {
	logger.Tracef(ctx, "Create: %s", plugin)
	defer func() { logger.Tracef(ctx, "/Create: %s: %v", plugin, _err) }()

	code, err := pluginCode(plugin)
	if err != nil {
		return nil, err
	}

	var handle, apiPtr uintptr
	if ret := vpiCreate(unsafe.Pointer(&handle), unsafe.Pointer(&apiPtr), d.fd, code); ret != 0 {
		return nil, vpi.StatusToError(int(ret))
	}
	if handle == 0 || apiPtr == 0 {
		return nil, vpi.StatusUnknown
	}

	c := &Context{
		device:    d,
		plugin:    plugin,
		handle:    handle,
		submitted: map[uintptr]*submission{},
	}
	c.bind(*(*vpiAPI)(unsafe.Pointer(apiPtr)))
	return c, nil
}

func (d *Device) Destroy(ctx context.Context, vpiCtx vpi.Context) error {
	c, ok := vpiCtx.(*Context)
	if !ok || c.device != d {
		return fmt.Errorf("the context %v does not belong to %s", vpiCtx, d)
	}
	if c.handle == 0 {
		return nil
	}
	ret := vpiDestroy(c.handle, d.fd)
	c.handle = 0
	return vpi.StatusToError(int(ret))
}

// Close closes the device; all the contexts must be destroyed and all the
// host frames must be freed by then.
func (d *Device) Close(ctx context.Context) error {
	if d.fd < 0 {
		return nil
	}
	d.releasePictures(ctx)
	ret := vpiCloseHWDevice(d.fd)
	d.fd = -1
	return vpi.StatusToError(int(ret))
}

func registerFunc(fptr any, cfn uintptr) {
	if cfn == 0 {
		return
	}
	purego.RegisterFunc(fptr, cfn)
}
