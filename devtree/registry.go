// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

// Registry holds the controllers found by Enumerate, ordered by PCI location. It is not updated by
// lifecycle operations; enumerate again to observe their effect.
type Registry struct {
	controllers []*Controller
}

// NewRegistry returns a registry of the given controllers, in the order given.
func NewRegistry(controllers ...*Controller) *Registry {
	return &Registry{controllers: controllers}
}

func (r *Registry) Len() int {
	return len(r.controllers)
}

func (r *Registry) Controllers() []*Controller {
	return r.controllers
}

// ByNum returns the disk with disk number n together with its controller.
func (r *Registry) ByNum(n int) (*Controller, *PhysicalDisk, bool) {
	for _, c := range r.controllers {
		if d, ok := c.ByNum(n); ok {
			return c, d, true
		}
	}

	return nil, nil, false
}

// ByBus returns the controller at device 0, function 0 of PCI bus b.
func (r *Registry) ByBus(b int) (*Controller, bool) {
	want := PciLocation{Bus: b, Known: true}

	for _, c := range r.controllers {
		if c.Location == want {
			return c, true
		}
	}

	return nil, false
}

// Disk is ByNum without the controller.
func (r *Registry) Disk(n int) (*PhysicalDisk, bool) {
	_, d, ok := r.ByNum(n)
	return d, ok
}
