// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

//go:build windows

package ioctl

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32       = windows.NewLazySystemDLL("kernel32.dll")
	procGetFileSizeEx = modkernel32.NewProc("GetFileSizeEx")
)

// File is an open device or file handle.
type File struct {
	Path string

	h windows.Handle
}

// Open opens an existing device for I/O control, unbuffered and write-through.
func Open(path string, write bool) (*File, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}

	access := uint32(windows.GENERIC_READ)

	if write {
		access |= windows.GENERIC_WRITE
	}

	h, err := windows.CreateFile(p, access, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_NO_BUFFERING|windows.FILE_FLAG_WRITE_THROUGH, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &File{Path: path, h: h}, nil
}

func (f *File) Control(code uint32, in, out []byte) (uint32, error) {
	var (
		inp, outp *byte
		returned  uint32
	)

	if len(in) > 0 {
		inp = &in[0]
	}

	if len(out) > 0 {
		outp = &out[0]
	}

	err := windows.DeviceIoControl(f.h, code, inp, uint32(len(in)), outp, uint32(len(out)), &returned, nil)

	return returned, err
}

// FileSize returns the size reported by GetFileSizeEx.
func (f *File) FileSize() (int64, error) {
	var size int64

	r1, _, e1 := procGetFileSizeEx.Call(uintptr(f.h), uintptr(unsafe.Pointer(&size)))
	if r1 == 0 {
		return 0, e1
	}

	return size, nil
}

func (f *File) Close() error {
	return windows.CloseHandle(f.h)
}
