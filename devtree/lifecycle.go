// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
	"k8s.io/utils/set"
)

// Settle holds the time allowed for the system to act on each lifecycle step. A step waits for
// at most its delay, or until the node reaches the expected state when Poll is non-zero.
type Settle struct {
	Enable  time.Duration
	Disable time.Duration
	Remove  time.Duration
	Restart time.Duration
	Rescan  time.Duration
	Poll    time.Duration
}

var DefaultSettle = Settle{
	Enable:  500 * time.Millisecond,
	Disable: time.Second,
	Remove:  time.Second,
	Restart: 500 * time.Millisecond,
	Rescan:  time.Second,
	Poll:    100 * time.Millisecond,
}

// Lifecycle sequences enable, disable, remove and rescan across a controller and its disks.
// Controllers and disks passed to it are stale afterwards; enumerate again to observe the result.
type Lifecycle struct {
	Tree   Tree
	Settle Settle
	Clock  clock.WithTicker
	// Disks holding any of these drives are never disabled.
	Protected set.Set[string]
	// Refreshed after every operation that changes the tree, if set.
	Drives *LogicalDriveCache
	Log    logr.Logger
}

func NewLifecycle(tree Tree, drives *LogicalDriveCache, log logr.Logger) *Lifecycle {
	return &Lifecycle{
		Tree:      tree,
		Settle:    DefaultSettle,
		Clock:     clock.RealClock{},
		Protected: set.New("C:"),
		Drives:    drives,
		Log:       log,
	}
}

// DisableDisk disables a single disk, refusing with ErrNotDisableable if it holds a protected drive.
func (l *Lifecycle) DisableDisk(ctx context.Context, d *PhysicalDisk) error {
	if err := l.checkProtected(d); err != nil {
		return err
	}

	defer l.refreshDrives()

	if err := d.Disable(); err != nil {
		return err
	}

	return l.wait(ctx, l.Settle.Disable, d.Node, Node.Disabled)
}

func (l *Lifecycle) EnableDisk(ctx context.Context, d *PhysicalDisk) error {
	defer l.refreshDrives()

	if err := d.Enable(); err != nil {
		return err
	}

	return l.wait(ctx, l.Settle.Enable, d.Node, Node.Started)
}

// Disable disables every disk of c and then c itself. Nothing is touched if any disk holds a
// protected drive, and c is left enabled if any disk fails to disable.
func (l *Lifecycle) Disable(ctx context.Context, c *Controller) error {
	for _, d := range c.Disks {
		if err := l.checkProtected(d); err != nil {
			return err
		}
	}

	defer l.refreshDrives()

	var errs []error

	for _, d := range c.Disks {
		if err := d.Disable(); err != nil {
			errs = append(errs, err)
			continue
		}

		if err := l.wait(ctx, l.Settle.Disable, d.Node, Node.Disabled); err != nil {
			return err
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s left enabled: %w", c, err)
	}

	return c.Disable()
}

// Enable enables c and then each of its disks. It returns the error of the last disk that failed.
func (l *Lifecycle) Enable(ctx context.Context, c *Controller) error {
	defer l.refreshDrives()

	if err := c.Enable(); err != nil {
		return err
	}

	var last error

	for _, d := range c.Disks {
		if err := d.Enable(); err != nil {
			l.Log.V(1).Info("enable failed", "disk", d.String(), "err", err)
			last = err
			continue
		}

		if err := l.wait(ctx, l.Settle.Enable, d.Node, Node.Started); err != nil {
			return err
		}
	}

	return last
}

// Remove removes every disk of c, ignoring failures, and then c itself.
func (l *Lifecycle) Remove(ctx context.Context, c *Controller) error {
	defer l.refreshDrives()

	return l.remove(ctx, c)
}

func (l *Lifecycle) remove(ctx context.Context, c *Controller) error {
	for _, d := range c.Disks {
		if err := d.Remove(); err != nil {
			l.Log.V(1).Info("remove failed", "disk", d.String(), "err", err)
		}

		if err := l.wait(ctx, l.Settle.Remove, d.Node, nil); err != nil {
			return err
		}
	}

	return c.Remove()
}

// removeForRecovery removes c ahead of bringing it back. A failed removal is logged and the caller
// carries on; only cancellation stops it.
func (l *Lifecycle) removeForRecovery(ctx context.Context, c *Controller) error {
	if err := l.remove(ctx, c); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.Log.V(1).Info("remove failed, continuing", "controller", c.String(), "err", err)
	}

	return nil
}

// Restart removes c and its disks and brings c back up. The controller is set up again even if
// it could not be removed.
func (l *Lifecycle) Restart(ctx context.Context, c *Controller) error {
	defer l.refreshDrives()

	if err := l.removeForRecovery(ctx, c); err != nil {
		return err
	}

	if err := c.Setup(); err != nil {
		return err
	}

	return l.wait(ctx, l.Settle.Restart, c.Node, Node.Started)
}

// Rescan removes c and its disks and then bounces the PCI bridge above it, forcing the bus to be
// scanned again. The bridge is bounced even if c could not be removed. A controller without a
// parent is only removed.
func (l *Lifecycle) Rescan(ctx context.Context, c *Controller) error {
	defer l.refreshDrives()

	if err := l.removeForRecovery(ctx, c); err != nil {
		return err
	}

	parent, err := c.Parent()
	if err != nil {
		l.Log.V(1).Info("no parent to rescan", "controller", c.String(), "err", err)
		return nil
	}

	if err := parent.Disable(); err != nil {
		return err
	}

	if err := l.wait(ctx, l.Settle.Rescan, parent, nil); err != nil {
		return err
	}

	err = parent.Enable()

	if werr := l.wait(ctx, l.Settle.Rescan, parent, nil); err == nil {
		err = werr
	}

	return err
}

// Refresh asks the system to enumerate the device tree again from the root.
func (l *Lifecycle) Refresh() error {
	defer l.refreshDrives()

	inst, err := l.Tree.Locate("")
	if err != nil {
		return fmt.Errorf("locate root: %w", err)
	}

	root := Node{Inst: inst, tree: l.Tree}

	return root.Reenumerate()
}

func (l *Lifecycle) checkProtected(d *PhysicalDisk) error {
	if d.Drives != nil && d.Drives.HasAny(l.Protected.UnsortedList()...) {
		return fmt.Errorf("%s holds %v: %w", d, d.Drives.SortedList(), ErrNotDisableable)
	}

	return nil
}

func (l *Lifecycle) refreshDrives() {
	if l.Drives != nil {
		l.Drives.Refresh()
	}
}

// wait blocks for at most d. With a non-zero poll interval and a state predicate, it returns as
// soon as a fresh snapshot of n satisfies it.
func (l *Lifecycle) wait(ctx context.Context, d time.Duration, n Node, done func(Node) bool) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := l.Clock.NewTimer(d)
	defer timer.Stop()

	var poll <-chan time.Time

	if l.Settle.Poll > 0 && done != nil {
		ticker := l.Clock.NewTicker(l.Settle.Poll)
		defer ticker.Stop()
		poll = ticker.C()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C():
			return nil
		case <-poll:
			if s, err := n.Refresh(); err == nil && done(s) {
				return nil
			}
		}
	}
}
