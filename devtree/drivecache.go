// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

import (
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/utils/set"
)

// Volumes resolves the host's mounted drive letters.
type Volumes interface {
	// LogicalDrives returns the root of every logical drive, e.g. "C:\".
	LogicalDrives() ([]string, error)
	// DiskNumber returns the number of the disk holding the first extent of a drive ("C:").
	DiskNumber(drive string) (uint32, error)
}

// LogicalDriveCache maps drive letters to disk numbers. It is built on first use and rebuilt on the
// first use after Refresh.
type LogicalDriveCache struct {
	volumes Volumes
	log     logr.Logger

	mu     sync.Mutex
	loaded bool
	disks  map[string]uint32
}

func NewLogicalDriveCache(v Volumes, log logr.Logger) *LogicalDriveCache {
	return &LogicalDriveCache{volumes: v, log: log}
}

// DiskDrives returns the drive letters whose volume starts on disk n.
func (c *LogicalDriveCache) DiskDrives(n uint32) set.Set[string] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load()

	drives := set.New[string]()
	for d, num := range c.disks {
		if num == n {
			drives.Insert(d)
		}
	}

	return drives
}

// Refresh discards the cached drive table.
func (c *LogicalDriveCache) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = false
	c.disks = nil
}

func (c *LogicalDriveCache) load() {
	if c.loaded {
		return
	}

	c.loaded = true
	c.disks = make(map[string]uint32)

	if c.volumes == nil {
		return
	}

	roots, err := c.volumes.LogicalDrives()
	if err != nil {
		c.log.Error(err, "cannot list logical drives")
		return
	}

	for _, root := range roots {
		drive := strings.TrimRight(root, `\`)
		if drive == "" {
			continue
		}

		n, err := c.volumes.DiskNumber(drive)
		if err != nil {
			c.log.V(1).Info("skipping drive", "drive", drive, "err", err)
			continue
		}

		c.disks[drive] = n
	}

	c.log.V(2).Info("logical drives loaded", "drives", len(c.disks))
}
