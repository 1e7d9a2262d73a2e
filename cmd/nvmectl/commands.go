// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dswarbrick/nvmectl"
	"github.com/dswarbrick/nvmectl/devtree"
	"github.com/dswarbrick/nvmectl/nvme"
)

type env struct {
	sys  *nvmectl.System
	reg  *devtree.Registry
	opts *options
	out  io.Writer
}

// disk returns the disk selected with --disk and its controller.
func (e *env) disk() (*devtree.Controller, *devtree.PhysicalDisk, error) {
	if e.opts.disk < 0 {
		return nil, nil, fmt.Errorf("--disk is required")
	}

	c, d, ok := e.reg.ByNum(e.opts.disk)
	if !ok {
		return nil, nil, fmt.Errorf("disk %d: %w", e.opts.disk, devtree.ErrNotFound)
	}

	return c, d, nil
}

// controller returns the controller selected with --bus, or the controller of the disk selected
// with --disk.
func (e *env) controller() (*devtree.Controller, error) {
	if e.opts.bus >= 0 {
		c, ok := e.reg.ByBus(e.opts.bus)
		if !ok {
			return nil, fmt.Errorf("controller on bus %d: %w", e.opts.bus, devtree.ErrNotFound)
		}

		return c, nil
	}

	if e.opts.disk >= 0 {
		c, _, err := e.disk()
		return c, err
	}

	return nil, fmt.Errorf("--bus or --disk is required")
}

// handle opens the selected disk, or the selected controller if no disk is selected.
func (e *env) handle() (*nvmectl.Handle, error) {
	if e.opts.disk >= 0 {
		_, d, err := e.disk()
		if err != nil {
			return nil, err
		}

		return e.sys.OpenDisk(d)
	}

	c, err := e.controller()
	if err != nil {
		return nil, err
	}

	return e.sys.OpenController(c)
}

// withHandle runs f against the selected device and closes it afterwards.
func (e *env) withHandle(f func(h *nvmectl.Handle) error) error {
	h, err := e.handle()
	if err != nil {
		return err
	}
	defer h.Close()

	return f(h)
}

type command struct {
	name string
	help string
	run  func(ctx context.Context, e *env) error
}

var commands []command

func init() {
	commands = []command{
		{"list", "List controllers and their disks", cmdList},
		{"list-ns", "List namespace ids (--all for allocated namespaces)", cmdListNamespaces},
		{"id-ctrl", "Print Identify Controller data", cmdIdentifyController},
		{"id-ns", "Print Identify Namespace data for --nsid", cmdIdentifyNamespace},
		{"get-log", "Dump log page --lid", cmdGetLog},
		{"smart-log", "Print the SMART / health information log", cmdHealthLog},
		{"error-log", "Print the error information log", cmdErrorLog},
		{"fw-log", "Print the firmware slot information log", cmdFirmwareLog},
		{"get-feature", "Print feature --fid (--sel selects which value)", cmdGetFeature},
		{"set-feature", "Set feature --fid to --value (--save to persist)", cmdSetFeature},
		{"disk-info", "Print capacity and cache information of --disk", cmdDiskInfo},
		{"discovery0", "Dump the TCG Level 0 Discovery response of --disk", cmdDiscovery0},
		{"create", "Remove the controller and rescan its PCI bus", lifecycle((*devtree.Lifecycle).Rescan)},
		{"delete", "Remove the controller and its disks", lifecycle((*devtree.Lifecycle).Remove)},
		{"restart", "Remove the controller and start it again", lifecycle((*devtree.Lifecycle).Restart)},
		{"attach", "Enable the controller and its disks, or only --disk", cmdAttach},
		{"detach", "Disable the disks and then the controller, or only --disk", cmdDetach},
		{"refresh", "Enumerate the device tree again", cmdRefresh},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}

	return command{}, false
}

func cmdList(ctx context.Context, e *env) error {
	reg := e.reg

	if e.opts.bus >= 0 || e.opts.disk >= 0 {
		c, err := e.controller()
		if err != nil {
			return err
		}

		reg = devtree.NewRegistry(c)
	}

	sums, err := e.sys.Identify(ctx, reg)
	if err != nil {
		return err
	}

	printSummaries(e.out, sums)

	return nil
}

func cmdListNamespaces(ctx context.Context, e *env) error {
	return e.withHandle(func(h *nvmectl.Handle) error {
		var (
			ids []uint32
			err error
		)

		if e.opts.disk >= 0 {
			// Disk handles only carry the Identify property query
			cns := uint8(nvme.CNS_ACTIVE_NAMESPACES)
			if e.opts.all {
				cns = nvme.CNS_ALLOCATED_NAMESPACE_LIST
			}

			var buf []byte
			if buf, err = h.Identify(cns, 0); err == nil {
				ids = nvme.DecodeNamespaceList(buf)
			}
		} else {
			ids, err = h.NamespaceList(0, e.opts.all)
		}

		if err != nil {
			return err
		}

		for _, id := range ids {
			fmt.Fprintf(e.out, "[%4d]: %#x\n", id, id)
		}

		return nil
	})
}

func cmdIdentifyController(ctx context.Context, e *env) error {
	return e.withHandle(func(h *nvmectl.Handle) error {
		id := h.Identity
		if id == nil {
			var err error
			if id, err = h.IdentifyController(); err != nil {
				return err
			}
		}

		printIdentifyController(e.out, id, h.Model)

		return nil
	})
}

func cmdIdentifyNamespace(ctx context.Context, e *env) error {
	return e.withHandle(func(h *nvmectl.Handle) error {
		ns, err := h.IdentifyNamespace(e.opts.nsid)
		if err != nil {
			return err
		}

		printIdentifyNamespace(e.out, e.opts.nsid, ns)

		return nil
	})
}

func cmdGetLog(ctx context.Context, e *env) error {
	lid, err := parseNumber("lid", e.opts.lid, 8)
	if err != nil {
		return err
	}

	return e.withHandle(func(h *nvmectl.Handle) error {
		buf, err := h.GetLogPage(uint8(lid), 0)
		if err != nil {
			return err
		}

		fmt.Fprintf(e.out, "Log page %#02x (%d bytes):\n%s", lid, len(buf), hex.Dump(buf))

		return nil
	})
}

func cmdHealthLog(ctx context.Context, e *env) error {
	return e.withHandle(func(h *nvmectl.Handle) error {
		sl, err := h.HealthLog()
		if err != nil {
			return err
		}

		printHealthLog(e.out, sl)

		return nil
	})
}

func cmdErrorLog(ctx context.Context, e *env) error {
	return e.withHandle(func(h *nvmectl.Handle) error {
		entries, err := h.ErrorLog()
		if err != nil {
			return err
		}

		printErrorLog(e.out, entries)

		return nil
	})
}

func cmdFirmwareLog(ctx context.Context, e *env) error {
	return e.withHandle(func(h *nvmectl.Handle) error {
		fw, err := h.FirmwareSlotLog()
		if err != nil {
			return err
		}

		printFirmwareSlotLog(e.out, fw)

		return nil
	})
}

func cmdGetFeature(ctx context.Context, e *env) error {
	fid, err := parseNumber("fid", e.opts.fid, 8)
	if err != nil {
		return err
	}

	return e.withHandle(func(h *nvmectl.Handle) error {
		v, err := h.GetFeature(uint8(fid), e.opts.sel)
		if err != nil {
			return err
		}

		fmt.Fprintln(e.out, nvme.DecodeFeature(uint8(fid), v))

		return nil
	})
}

func cmdSetFeature(ctx context.Context, e *env) error {
	fid, err := parseNumber("fid", e.opts.fid, 8)
	if err != nil {
		return err
	}

	value, err := parseNumber("value", e.opts.value, 32)
	if err != nil {
		return err
	}

	return e.withHandle(func(h *nvmectl.Handle) error {
		v, err := h.SetFeature(uint8(fid), uint32(value), e.opts.save)
		if err != nil {
			return err
		}

		fmt.Fprintf(e.out, "set-feature %#02x: %#08x\n", fid, v)

		return nil
	})
}

func cmdDiskInfo(ctx context.Context, e *env) error {
	_, d, err := e.disk()
	if err != nil {
		return err
	}

	disk, sd, err := e.sys.OpenSCSIDisk(d)
	if err != nil {
		return err
	}
	defer sd.Close()

	printDiskInfo(e.out, d, disk, sd)

	return nil
}

func cmdDiscovery0(ctx context.Context, e *env) error {
	_, d, err := e.disk()
	if err != nil {
		return err
	}

	disk, sd, err := e.sys.OpenSCSIDisk(d)
	if err != nil {
		return err
	}
	defer sd.Close()

	buf, err := disk.Discovery0()
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "Level 0 Discovery (%d bytes):\n%s", len(buf), hex.Dump(buf))

	return nil
}

// lifecycle adapts a controller lifecycle operation to a command.
func lifecycle(op func(*devtree.Lifecycle, context.Context, *devtree.Controller) error) func(context.Context, *env) error {
	return func(ctx context.Context, e *env) error {
		c, err := e.controller()
		if err != nil {
			return err
		}

		return op(e.sys.Lifecycle, ctx, c)
	}
}

func cmdAttach(ctx context.Context, e *env) error {
	if e.opts.disk >= 0 {
		_, d, err := e.disk()
		if err != nil {
			return err
		}

		return e.sys.Lifecycle.EnableDisk(ctx, d)
	}

	return lifecycle((*devtree.Lifecycle).Enable)(ctx, e)
}

func cmdDetach(ctx context.Context, e *env) error {
	if e.opts.disk >= 0 {
		_, d, err := e.disk()
		if err != nil {
			return err
		}

		return e.sys.Lifecycle.DisableDisk(ctx, d)
	}

	return lifecycle((*devtree.Lifecycle).Disable)(ctx, e)
}

func cmdRefresh(ctx context.Context, e *env) error {
	return e.sys.Lifecycle.Refresh()
}
