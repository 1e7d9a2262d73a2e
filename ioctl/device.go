// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package ioctl moves NVMe and SCSI commands to storage devices through Windows DeviceIoControl
// requests. Request buffers are laid out portably; only opening a device is OS specific.
package ioctl

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotSupported = errors.New("device I/O control is not supported on this platform")

// Device issues I/O control requests against an open handle. in and out may alias the same
// buffer. Control returns the number of bytes written to out.
type Device interface {
	Control(code uint32, in, out []byte) (uint32, error)
	Close() error
}

// Opener opens a device path, read/write when write is set.
type Opener func(path string, write bool) (Device, error)

// OpenDevice is an Opener backed by Open.
func OpenDevice(path string, write bool) (Device, error) {
	f, err := Open(path, write)
	if err != nil {
		return nil, err
	}

	return f, nil
}

// IsDevicePath reports whether path names a device in the Win32 device namespace (\\.\...).
func IsDevicePath(path string) bool {
	return strings.HasPrefix(path, `\\.\`) || strings.HasPrefix(path, `\\?\`)
}

// PhysicalDrivePath returns the device path of disk number n.
func PhysicalDrivePath(n int) string {
	return fmt.Sprintf(`\\.\PhysicalDrive%d`, n)
}

// VolumePath returns the device path of a drive letter such as "C:".
func VolumePath(drive string) string {
	return `\\.\` + strings.TrimRight(drive, `\`)
}

// controlError wraps a failed request with its code, keeping the OS error for errors.Is/As.
func controlError(op string, code uint32, err error) error {
	return fmt.Errorf("%s (ioctl %#x): %w", op, code, err)
}
