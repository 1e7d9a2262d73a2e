// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/utils/set"

	"github.com/dswarbrick/nvmectl/ioctl"
)

// PhysicalDisk is a disk device node below a controller. Number and NSID are -1 when they could
// not be resolved.
type PhysicalDisk struct {
	Node

	InstanceID    string
	InterfacePath string
	DevicePath    string
	Number        int
	NSID          int
	Drives        set.Set[string]

	open ioctl.Opener
	log  logr.Logger
}

// newPhysicalDisk resolves as much of the disk's identity as the system allows. Failures are
// logged and leave the corresponding fields unset. The namespace id only needs the instance id,
// so it is resolved first and survives a failed interface lookup; the disk number and drive
// letters follow from the interface path.
func newPhysicalDisk(node Node, opts Options) *PhysicalDisk {
	d := &PhysicalDisk{
		Node:   node,
		Number: -1,
		NSID:   -1,
		Drives: set.New[string](),
		open:   opts.Opener,
		log:    opts.Log.WithValues("devinst", node.Inst),
	}

	if err := d.inspect(opts.Drives); err != nil {
		d.log.V(1).Info("disk inspection incomplete", "err", err)
	}

	return d
}

func (d *PhysicalDisk) inspect(drives *LogicalDriveCache) error {
	id, err := d.Node.InstanceID()
	if err != nil {
		return fmt.Errorf("instance id: %w", err)
	}
	d.InstanceID = id
	d.NSID = namespaceID(id)

	iface, err := d.tree.DiskInterface(id)
	if err != nil {
		return fmt.Errorf("disk interface: %w", err)
	}
	d.InterfacePath = iface

	dev, err := d.open(iface, false)
	if err != nil {
		return fmt.Errorf("open %s: %w", iface, err)
	}
	defer dev.Close()

	dn, err := ioctl.NewStorageDevice(dev, d.log).DeviceNumber()
	if err != nil {
		return err
	}

	d.Number = int(dn.DeviceNumber)
	d.DevicePath = ioctl.PhysicalDrivePath(d.Number)

	if drives != nil {
		d.Drives = drives.DiskDrives(dn.DeviceNumber)
	}

	return nil
}

// namespaceID derives a namespace id from the last '&'-separated field of a disk instance id,
// which holds the zero based namespace index.
func namespaceID(instanceID string) int {
	i := strings.LastIndexByte(instanceID, '&')
	if i < 0 {
		return -1
	}

	n, err := strconv.Atoi(instanceID[i+1:])
	if err != nil || n < 0 {
		return -1
	}

	return n + 1
}

// Open opens the disk's device path.
func (d *PhysicalDisk) Open(write bool) (*ioctl.StorageDevice, error) {
	if d.DevicePath == "" {
		return nil, fmt.Errorf("disk %d: %w", d.Inst, ErrNotFound)
	}

	dev, err := d.open(d.DevicePath, write)
	if err != nil {
		return nil, err
	}

	return ioctl.NewStorageDevice(dev, d.log), nil
}

func (d *PhysicalDisk) String() string {
	if d.Number < 0 {
		return fmt.Sprintf("disk (devinst %d)", d.Inst)
	}

	return fmt.Sprintf("disk %d", d.Number)
}
