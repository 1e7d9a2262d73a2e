// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

//go:build !windows

package devtree

import "github.com/dswarbrick/nvmectl/ioctl"

func NewSystemTree() (Tree, error) {
	return nil, ioctl.ErrNotSupported
}

func logicalDriveStrings() ([]string, error) {
	return nil, ioctl.ErrNotSupported
}
