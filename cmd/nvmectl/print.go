// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/dswarbrick/nvmectl"
	"github.com/dswarbrick/nvmectl/devtree"
	"github.com/dswarbrick/nvmectl/drivedb"
	"github.com/dswarbrick/nvmectl/ioctl"
	"github.com/dswarbrick/nvmectl/nvme"
	"github.com/dswarbrick/nvmectl/scsi"
	"github.com/dswarbrick/nvmectl/utils"
)

func printSummaries(w io.Writer, sums []nvmectl.Summary) {
	for _, s := range sums {
		c := s.Controller
		state := "started"
		if c.Disabled() {
			state = "disabled"
		} else if !c.Started() {
			state = "stopped"
		}

		fmt.Fprintf(w, "%s  %s  [%s]\n", c.Location, c.InstanceID, state)

		if s.Err != nil {
			fmt.Fprintf(w, "  identify failed: %v\n", s.Err)
		} else {
			id := s.Identity
			fmt.Fprintf(w, "  %s  SN %s  FW %s  NVMe %s\n", id.Model(), id.Serial(), id.Revision(), id.Version())

			if s.Model.WarningMsg != "" {
				fmt.Fprintf(w, "  WARNING: %s\n", s.Model.WarningMsg)
			}
		}

		for _, d := range c.Disks {
			drives := "-"
			if d.Drives != nil && d.Drives.Len() > 0 {
				drives = strings.Join(d.Drives.SortedList(), " ")
			}

			fmt.Fprintf(w, "  %-24s nsid %-3d %s\n", d, d.NSID, drives)
		}
	}
}

func printIdentifyController(w io.Writer, id *nvme.IdentifyController, model drivedb.DriveModel) {
	fmt.Fprintln(w, "NVMe Identify Controller:")
	fmt.Fprintf(w, "Vendor ID ........: %#04x (OUI %#06x)\n", id.VendorID, id.OUI())
	fmt.Fprintf(w, "Model number .....: %s\n", id.Model())
	fmt.Fprintf(w, "Serial number ....: %s\n", id.Serial())
	fmt.Fprintf(w, "Firmware version .: %s\n", id.Revision())
	fmt.Fprintf(w, "NVMe version .....: %s\n", id.Version())
	fmt.Fprintf(w, "Model family .....: %s\n", model.Family)
	fmt.Fprintf(w, "Total capacity ...: %s\n", utils.FormatBigBytes(id.TotalCapacity()))
	fmt.Fprintf(w, "Namespaces .......: %d\n", id.Nn)
	fmt.Fprintf(w, "Firmware slots ...: %d\n", id.FirmwareSlots())
	fmt.Fprintf(w, "Write cache ......: %v\n", id.VolatileWriteCachePresent())

	if mdts := id.MaxTransferPages(); mdts > 0 {
		fmt.Fprintf(w, "Max transfer .....: %d pages\n", mdts)
	} else {
		fmt.Fprintln(w, "Max transfer .....: unlimited")
	}

	if t := id.CompositeTempWarning(); t != 0 {
		fmt.Fprintf(w, "Warning temp .....: %d Celsius\n", t)
	}
	if t := id.CompositeTempCritical(); t != 0 {
		fmt.Fprintf(w, "Critical temp ....: %d Celsius\n", t)
	}

	printFlags(w, "Admin commands", id.AdminCommands())
	printFlags(w, "NVM commands", id.NVMCommands())

	fmt.Fprintln(w, "\nSupported power states:")
	fmt.Fprintln(w, "St Op     Max   Active     Idle   RL RT WL WT")

	for i, ps := range id.PowerStates() {
		op := "+"
		if ps.NonOperational() {
			op = "-"
		}

		fmt.Fprintf(w, "%2d %2s %6.2fW %7d %8d %4d %2d %2d %2d\n", i, op, ps.MaxPowerWatts(),
			ps.ActivePower, ps.IdlePower, ps.RelativeReadLatency(), ps.RelativeReadThroughput(),
			ps.RelativeWriteLatency(), ps.RelativeWriteThroughput())
	}

	if model.WarningMsg != "" {
		fmt.Fprintf(w, "\nWARNING: %s\n", model.WarningMsg)
	}
}

// printFlags prints the names of the set fields in a decoded bitfield, in name order.
func printFlags(w io.Writer, title string, m map[string]uint32) {
	var names []string

	for k, v := range m {
		if v != 0 {
			names = append(names, k)
		}
	}

	slices.Sort(names)
	fmt.Fprintf(w, "%s: %s\n", title, strings.Join(names, " "))
}

func printIdentifyNamespace(w io.Writer, nsid uint32, ns *nvme.IdentifyNamespace) {
	fmt.Fprintf(w, "NVMe Identify Namespace %d:\n", nsid)
	fmt.Fprintf(w, "Size .............: %s\n", utils.FormatBytes(ns.SizeBytes()))
	fmt.Fprintf(w, "Utilization ......: %s\n", utils.FormatBytes(ns.UsedBytes()))
	fmt.Fprintf(w, "Shared ...........: %v\n", ns.Shared())
	fmt.Fprintf(w, "Write protected ..: %v\n", ns.WriteProtected())

	if pct, ok := ns.FormatProgress(); ok {
		fmt.Fprintf(w, "Format remaining .: %d%%\n", pct)
	}

	fmt.Fprintln(w, "\nLBA formats:")
	inUse := nvme.FLBASLayout.Get(uint32(ns.Flbas), "Index")

	for i, f := range ns.LBAFormats() {
		mark := ""
		if uint32(i) == inUse {
			mark = " (in use)"
		}

		fmt.Fprintf(w, "%2d  data %5d  metadata %3d  rp %d%s\n", i, f.BlockSize(), f.Ms, f.RelativePerformance(), mark)
	}
}

func printHealthLog(w io.Writer, sl *nvme.HealthLog) {
	fmt.Fprintln(w, "SMART / Health Information (NVMe Log 0x02):")

	if cw := sl.CriticalWarnings(); len(cw) > 0 {
		fmt.Fprintf(w, "Critical warning .: %s\n", strings.Join(cw, ", "))
	} else {
		fmt.Fprintln(w, "Critical warning .: none")
	}

	fmt.Fprintf(w, "Temperature ......: %d Celsius\n", sl.TemperatureCelsius())

	sensors := sl.SensorCelsius()
	for _, i := range slices.Sorted(maps.Keys(sensors)) {
		fmt.Fprintf(w, "Sensor %d .........: %d Celsius\n", i, sensors[i])
	}

	fmt.Fprintf(w, "Avail. spare .....: %d%%\n", sl.AvailSpare)
	fmt.Fprintf(w, "Spare threshold ..: %d%%\n", sl.SpareThresh)
	fmt.Fprintf(w, "Percentage used ..: %d%%\n", sl.PercentUsed)
	fmt.Fprintf(w, "Data read ........: %s\n", utils.FormatBigBytes(sl.BytesRead()))
	fmt.Fprintf(w, "Data written .....: %s\n", utils.FormatBigBytes(sl.BytesWritten()))

	for _, c := range sl.Counters() {
		fmt.Fprintf(w, "%-30s %d\n", c.Name, c.Value)
	}
}

func printErrorLog(w io.Writer, entries []nvme.ErrorInfoEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No error log entries")
		return
	}

	fmt.Fprintln(w, "Error Information (NVMe Log 0x01):")
	fmt.Fprintln(w, "   Count  SQID  CmdID  NSID        LBA  Status")

	for _, e := range entries {
		fmt.Fprintf(w, "%8d  %4d  %#04x  %4d  %9d  %s\n", e.ErrorCount, e.SQID, e.CmdID, e.NSID, e.LBA,
			e.CompletionStatus().Description())
	}
}

func printFirmwareSlotLog(w io.Writer, fw *nvme.FirmwareSlotLog) {
	fmt.Fprintln(w, "Firmware Slot Information (NVMe Log 0x03):")
	fmt.Fprintf(w, "Active slot ......: %d\n", fw.ActiveSlot())

	if s := fw.PendingSlot(); s != 0 {
		fmt.Fprintf(w, "Next reset slot ..: %d\n", s)
	}

	revs := fw.Revisions()
	for _, slot := range slices.Sorted(maps.Keys(revs)) {
		fmt.Fprintf(w, "Slot %d ...........: %s\n", slot, revs[slot])
	}
}

func printDiskInfo(w io.Writer, d *devtree.PhysicalDisk, disk *scsi.Disk, sd *ioctl.StorageDevice) {
	fmt.Fprintf(w, "%s (%s, nsid %d)\n", d, d.DevicePath, d.NSID)

	if inq, err := disk.Inquiry(); err == nil {
		fmt.Fprintf(w, "Inquiry ..........: %s\n", inq)
	} else {
		fmt.Fprintf(w, "Inquiry ..........: %v\n", err)
	}

	if size, err := sd.Size(); err == nil {
		fmt.Fprintf(w, "Size .............: %s\n", utils.FormatBytes(uint64(size)))
	}

	if g, err := sd.Geometry(); err == nil {
		fmt.Fprintf(w, "Sector size ......: %d bytes\n", g.BytesPerSector)
	}

	if c, err := disk.ReadCapacity(); err == nil {
		fmt.Fprintf(w, "Logical blocks ...: %d x %d bytes\n", c.Blocks(), c.BlockLength)
		if c.ProtectionType != 0 {
			fmt.Fprintf(w, "Protection .......: type %d\n", c.ProtectionType)
		}
	}

	if a, err := sd.SCSIAddress(); err == nil {
		fmt.Fprintf(w, "SCSI address .....: port %d path %d target %d lun %d\n", a.PortNumber, a.PathId, a.TargetId, a.Lun)
	}

	if ci, err := sd.CacheInformation(); err == nil {
		fmt.Fprintf(w, "Read cache .......: %v\n", ci.ReadCacheEnabled)
		fmt.Fprintf(w, "Write cache ......: %v\n", ci.WriteCacheEnabled)
	}
}
