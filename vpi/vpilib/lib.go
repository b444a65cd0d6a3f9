//go:build linux

// Package vpilib binds vpi.Device to the VPE SDK shared library (libvpi.so),
// loaded at runtime with purego; no cgo is required.
//
// Library locations checked (in order):
//   - VPI_LIB_PATH environment variable
//   - System library paths
package vpilib

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	loadOnce    sync.Once
	loadErr     error
	libHandle   uintptr
	libcHandle  uintptr
	libraryPath string
)

// library entry points
var (
	vpiOpenHWDevice  func(name string) int32
	vpiCloseHWDevice func(fd int32) int32
	vpiCreate        func(ctx unsafe.Pointer, api unsafe.Pointer, fd int32, plugin int32) int32
	vpiDestroy       func(ctx uintptr, fd int32) int32
	vpiErrorStr      func(code int32) string

	cMalloc func(size uintptr) uintptr
	cCalloc func(count, size uintptr) uintptr
	cFree   func(ptr uintptr)
)

func load() error {
	loadOnce.Do(func() {
		loadErr = loadLib()
	})
	return loadErr
}

func loadLib() error {
	var lastErr error
	for _, path := range libPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		libHandle = handle
		libraryPath = path
		break
	}
	if libHandle == 0 {
		if lastErr != nil {
			return fmt.Errorf("unable to load libvpi: %w", lastErr)
		}
		return errors.New("libvpi not found in any standard location")
	}

	handle, err := purego.Dlopen("libc.so.6", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("unable to load libc: %w", err)
	}
	libcHandle = handle

	purego.RegisterLibFunc(&vpiOpenHWDevice, libHandle, "vpi_open_hwdevice")
	purego.RegisterLibFunc(&vpiCloseHWDevice, libHandle, "vpi_close_hwdevice")
	purego.RegisterLibFunc(&vpiCreate, libHandle, "vpi_create")
	purego.RegisterLibFunc(&vpiDestroy, libHandle, "vpi_destroy")
	purego.RegisterLibFunc(&vpiErrorStr, libHandle, "vpi_error_str")
	purego.RegisterLibFunc(&cMalloc, libcHandle, "malloc")
	purego.RegisterLibFunc(&cCalloc, libcHandle, "calloc")
	purego.RegisterLibFunc(&cFree, libcHandle, "free")
	return nil
}

func libPaths() []string {
	var paths []string
	if envPath := os.Getenv("VPI_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	return append(paths,
		"libvpi.so",
		"/usr/local/lib/libvpi.so",
		"/usr/lib/libvpi.so",
		"/usr/lib/x86_64-linux-gnu/libvpi.so",
	)
}

// LibraryPath returns the path libvpi was loaded from.
func LibraryPath() string {
	return libraryPath
}
