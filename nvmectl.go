// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package nvmectl ties device tree enumeration, NVMe admin commands, SCSI pass-through and the
// drive database together for the nvmectl command.
package nvmectl

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/set"

	"github.com/dswarbrick/nvmectl/config"
	"github.com/dswarbrick/nvmectl/devtree"
	"github.com/dswarbrick/nvmectl/drivedb"
	"github.com/dswarbrick/nvmectl/ioctl"
	"github.com/dswarbrick/nvmectl/nvme"
	"github.com/dswarbrick/nvmectl/scsi"
)

// Number of controllers identified concurrently
const IDENTIFY_CONCURRENCY = 4

type System struct {
	Tree      devtree.Tree
	Drives    *devtree.LogicalDriveCache
	Lifecycle *devtree.Lifecycle
	DriveDb   drivedb.DriveDb
	Options   devtree.Options

	log logr.Logger
}

func NewSystem(cfg *config.Config, tree devtree.Tree, volumes devtree.Volumes, db drivedb.DriveDb, log logr.Logger) *System {
	drives := devtree.NewLogicalDriveCache(volumes, log.WithName("drives"))

	lc := devtree.NewLifecycle(tree, drives, log.WithName("lifecycle"))
	lc.Settle = cfg.DevtreeSettle()
	lc.Protected = set.New(cfg.Protected...)

	return &System{
		Tree:      tree,
		Drives:    drives,
		Lifecycle: lc,
		DriveDb:   db,
		Options: devtree.Options{
			Service: cfg.Service,
			Opener:  ioctl.OpenDevice,
			Drives:  drives,
			Log:     log.WithName("devtree"),
		},
		log: log,
	}
}

func (s *System) Enumerate() (*devtree.Registry, error) {
	return devtree.Enumerate(s.Tree, s.Options)
}

// Handle is an open NVMe device together with its identity and drive database entry.
type Handle struct {
	*nvme.Device

	Storage  *ioctl.StorageDevice
	Identity *nvme.IdentifyController
	Model    drivedb.DriveModel
}

func (h *Handle) Close() error {
	return h.Storage.Close()
}

// newHandle identifies the device behind sd and applies the quirks of its drive database entry.
// A device that cannot be identified is still usable, without quirks.
func (s *System) newHandle(name string, sd *ioctl.StorageDevice) *Handle {
	log := s.log.WithValues("device", name)
	h := &Handle{Storage: sd, Device: nvme.NewDevice(name, sd, nvme.WithLogger(log))}

	id, err := h.IdentifyController()
	if err != nil {
		log.V(1).Info("identify controller failed", "err", err)
		return h
	}

	h.Identity = id
	h.Model = s.DriveDb.LookupDrive(id.Model(), id.Revision())

	if q := h.Model.NVMeQuirks(); q != (nvme.Quirks{}) {
		log.V(1).Info("applying quirks", "family", h.Model.Family, "quirks", h.Model.Quirks)
		h.Device = nvme.NewDevice(name, sd, nvme.WithLogger(log), nvme.WithQuirks(q))
	}

	return h
}

// OpenController opens the storage port of c for NVMe admin commands.
func (s *System) OpenController(c *devtree.Controller) (*Handle, error) {
	sd, err := c.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c, err)
	}

	return s.newHandle(c.Location.String(), sd), nil
}

// OpenDisk opens d for NVMe admin commands.
func (s *System) OpenDisk(d *devtree.PhysicalDisk) (*Handle, error) {
	sd, err := d.Open(true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d, err)
	}

	return s.newHandle(d.DevicePath, sd), nil
}

// OpenSCSIDisk opens d for SCSI pass-through. Writes use FUA when the disk reports an enabled
// write cache.
func (s *System) OpenSCSIDisk(d *devtree.PhysicalDisk) (*scsi.Disk, *ioctl.StorageDevice, error) {
	sd, err := d.Open(true)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", d, err)
	}

	wc, err := sd.WriteCacheProperty()
	if err != nil {
		s.log.V(1).Info("write cache property unavailable", "disk", d.String(), "err", err)
	}

	disk := scsi.NewDisk(sd, scsi.WithFUA(err == nil && wc.Enabled()),
		scsi.WithDiskLogger(s.log.WithValues("device", d.DevicePath)))

	return disk, sd, nil
}

// Summary is the identity of one controller. Err is set if it could not be identified.
type Summary struct {
	Controller *devtree.Controller
	Identity   *nvme.IdentifyController
	Model      drivedb.DriveModel
	Err        error
}

// Identify identifies every controller in r concurrently, one handle per controller. Failures of
// individual controllers are reported in their Summary.
func (s *System) Identify(ctx context.Context, r *devtree.Registry) ([]Summary, error) {
	controllers := r.Controllers()
	summaries := make([]Summary, len(controllers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(IDENTIFY_CONCURRENCY)

	for i, c := range controllers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			summaries[i] = s.identify(c)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (s *System) identify(c *devtree.Controller) Summary {
	sum := Summary{Controller: c}

	sd, err := c.Open()
	if err != nil {
		sum.Err = err
		return sum
	}
	defer sd.Close()

	id, err := nvme.NewDevice(c.Location.String(), sd, nvme.WithLogger(s.log)).IdentifyController()
	if err != nil {
		sum.Err = err
		return sum
	}

	sum.Identity = id
	sum.Model = s.DriveDb.LookupDrive(id.Model(), id.Revision())

	return sum
}
