// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

import (
	"github.com/go-logr/logr"

	"github.com/dswarbrick/nvmectl/ioctl"
)

// Controller is an NVMe controller node and the disks attached to it.
type Controller struct {
	Node

	InstanceID    string
	InterfacePath string
	Location      PciLocation
	Disks         []*PhysicalDisk

	open ioctl.Opener
	log  logr.Logger
}

// Open opens the controller's storage port interface for NVMe pass-through.
func (c *Controller) Open() (*ioctl.StorageDevice, error) {
	dev, err := c.open(c.InterfacePath, true)
	if err != nil {
		return nil, err
	}

	return ioctl.NewStorageDevice(dev, c.log), nil
}

// ByNum returns the controller's disk with disk number n.
func (c *Controller) ByNum(n int) (*PhysicalDisk, bool) {
	for _, d := range c.Disks {
		if d.Number == n {
			return d, true
		}
	}

	return nil, false
}

func (c *Controller) String() string {
	return "controller " + c.Location.String()
}
