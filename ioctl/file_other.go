// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

//go:build !windows

package ioctl

// File is an open device or file handle. It cannot be opened on this platform.
type File struct {
	Path string
}

func Open(path string, write bool) (*File, error) {
	return nil, ErrNotSupported
}

func (f *File) Control(code uint32, in, out []byte) (uint32, error) {
	return 0, ErrNotSupported
}

func (f *File) FileSize() (int64, error) {
	return 0, ErrNotSupported
}

func (f *File) Close() error {
	return nil
}
