// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"

	"github.com/dswarbrick/nvmectl/ioctl"
)

// Miniport service of the inbox NVMe driver
const DEFAULT_SERVICE = "stornvme"

type Options struct {
	// Service is the driver service a storage port must be bound to, DEFAULT_SERVICE if empty.
	Service string
	// Opener opens device paths, ioctl.OpenDevice if nil.
	Opener ioctl.Opener
	// Drives resolves drive letters of disks. Disks have no drives if nil.
	Drives *LogicalDriveCache
	Log    logr.Logger
}

func (o *Options) defaults() {
	if o.Service == "" {
		o.Service = DEFAULT_SERVICE
	}

	if o.Opener == nil {
		o.Opener = ioctl.OpenDevice
	}

	if o.Log.GetSink() == nil {
		o.Log = logr.Discard()
	}
}

// Enumerate builds a registry of every NVMe controller in tree. Controllers that cannot be
// resolved are logged and skipped, and a failure to list storage ports yields an empty registry.
// The returned registry is never nil.
func Enumerate(tree Tree, opts Options) (*Registry, error) {
	opts.defaults()

	r := &Registry{}

	ports, err := tree.StoragePorts()
	if err != nil {
		opts.Log.Error(err, "cannot list storage port interfaces")
		return r, nil
	}

	for _, iface := range ports {
		c, err := newController(tree, iface, opts)
		if err != nil {
			opts.Log.V(1).Info("skipping storage port", "interface", iface, "err", err)
			continue
		}

		r.controllers = append(r.controllers, c)
	}

	slices.SortStableFunc(r.controllers, func(a, b *Controller) int {
		return a.Location.Compare(b.Location)
	})

	opts.Log.V(1).Info("enumerated controllers", "count", len(r.controllers))

	return r, nil
}

func newController(tree Tree, iface string, opts Options) (*Controller, error) {
	id, err := tree.InterfaceInstanceID(iface)
	if err != nil {
		return nil, fmt.Errorf("instance id: %w", err)
	}

	inst, err := tree.Locate(id)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", id, err)
	}

	node, err := NewNode(tree, inst)
	if err != nil {
		return nil, err
	}

	service, err := node.Service()
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	if !strings.EqualFold(service, opts.Service) {
		return nil, fmt.Errorf("service %q is not %q: %w", service, opts.Service, ErrNotFound)
	}

	c := &Controller{
		Node:          node,
		InstanceID:    id,
		InterfacePath: iface,
		open:          opts.Opener,
	}

	if info, err := node.LocationInfo(); err == nil {
		c.Location = ParseLocation(info)
	}

	c.log = opts.Log.WithValues("controller", c.Location.String())

	if !c.Location.Known {
		c.log.V(1).Info("unknown PCI location", "instance", id)
	}

	children, err := node.Children()
	if err != nil {
		c.log.V(1).Info("incomplete disk list", "err", err)
	}

	for _, child := range children {
		c.Disks = append(c.Disks, newPhysicalDisk(child, opts))
	}

	return c, nil
}
