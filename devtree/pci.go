// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

import (
	"cmp"
	"fmt"
)

// PciLocation is a PCI segment / bus / device / function address. Known is false when the
// location could not be determined.
type PciLocation struct {
	Segment  int
	Bus      int
	Device   int
	Function int
	Known    bool
}

// ParseLocation parses a device's LocationInfo property, e.g. "PCI bus 3, device 0, function 0".
// The segment is always 0.
func ParseLocation(info string) PciLocation {
	var l PciLocation

	n, err := fmt.Sscanf(info, "PCI bus %d, device %d, function %d", &l.Bus, &l.Device, &l.Function)
	if err != nil || n != 3 || l.Bus < 0 || l.Device < 0 || l.Function < 0 {
		return PciLocation{}
	}

	l.Known = true

	return l
}

// LocationInfo renders the location in the form ParseLocation accepts.
func (l PciLocation) LocationInfo() string {
	return fmt.Sprintf("PCI bus %d, device %d, function %d", l.Bus, l.Device, l.Function)
}

func (l PciLocation) String() string {
	if !l.Known {
		return "unknown"
	}

	return fmt.Sprintf("%04X:%02X:%02X:%02X", l.Segment, l.Bus, l.Device, l.Function)
}

// Compare orders locations by segment, bus, device and function. Unknown locations sort after
// all known ones.
func (l PciLocation) Compare(o PciLocation) int {
	switch {
	case l.Known != o.Known:
		if l.Known {
			return -1
		}
		return 1
	case !l.Known:
		return 0
	}

	if c := cmp.Compare(l.Segment, o.Segment); c != 0 {
		return c
	}

	if c := cmp.Compare(l.Bus, o.Bus); c != 0 {
		return c
	}

	if c := cmp.Compare(l.Device, o.Device); c != 0 {
		return c
	}

	return cmp.Compare(l.Function, o.Function)
}
