// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

import (
	"fmt"
	"unicode/utf16"

	"github.com/go-logr/logr"

	"github.com/dswarbrick/nvmectl/ioctl"
)

// SystemVolumes resolves drive letters of the running system by opening each volume and asking
// for its disk extents.
type SystemVolumes struct {
	Opener ioctl.Opener
	Log    logr.Logger
}

func NewSystemVolumes(log logr.Logger) *SystemVolumes {
	return &SystemVolumes{Opener: ioctl.OpenDevice, Log: log}
}

func (v *SystemVolumes) LogicalDrives() ([]string, error) {
	return logicalDriveStrings()
}

func (v *SystemVolumes) DiskNumber(drive string) (uint32, error) {
	dev, err := v.Opener(ioctl.VolumePath(drive), false)
	if err != nil {
		return 0, err
	}
	defer dev.Close()

	extents, err := ioctl.NewStorageDevice(dev, v.Log).DiskExtents()
	if err != nil {
		return 0, err
	}

	if len(extents) == 0 {
		return 0, fmt.Errorf("volume %s has no extents: %w", drive, ErrNotFound)
	}

	return extents[0].DiskNumber, nil
}

// splitMultiSz splits a UTF-16 list of NUL terminated strings ending in an empty string.
func splitMultiSz(buf []uint16) []string {
	var (
		list  []string
		start int
	)

	for i, c := range buf {
		if c != 0 {
			continue
		}

		if i == start {
			break
		}

		list = append(list, string(utf16.Decode(buf[start:i])))
		start = i + 1
	}

	return list
}
