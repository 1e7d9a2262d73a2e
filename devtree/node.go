// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package devtree enumerates NVMe controllers and their disks from the Windows device tree and
// sequences enable, disable, remove and rescan operations on them.
package devtree

import (
	"errors"
	"fmt"
)

// CONFIGRET values returned by the configuration manager
const (
	CR_SUCCESS                  = 0x00
	CR_OUT_OF_MEMORY            = 0x02
	CR_INVALID_POINTER          = 0x03
	CR_INVALID_FLAG             = 0x04
	CR_INVALID_DEVNODE          = 0x05
	CR_NO_SUCH_DEVNODE          = 0x0d
	CR_FAILURE                  = 0x13
	CR_REMOVE_VETOED            = 0x17
	CR_BUFFER_SMALL             = 0x1a
	CR_INVALID_DATA             = 0x1f
	CR_NO_SUCH_VALUE            = 0x25
	CR_NOT_DISABLEABLE          = 0x28
	CR_ACCESS_DENIED            = 0x33
	CR_NO_SUCH_DEVICE_INTERFACE = 0x37
)

// Device node status flags and problem codes
const (
	DN_STARTED     = 0x00000008
	DN_HAS_PROBLEM = 0x00000400
	DN_DISABLEABLE = 0x00002000

	CM_PROB_DISABLED = 0x00000016
)

var configRetNames = map[ConfigRet]string{
	CR_OUT_OF_MEMORY:            "out of memory",
	CR_INVALID_POINTER:          "invalid pointer",
	CR_INVALID_FLAG:             "invalid flag",
	CR_INVALID_DEVNODE:          "invalid device node",
	CR_NO_SUCH_DEVNODE:          "no such device node",
	CR_FAILURE:                  "failure",
	CR_REMOVE_VETOED:            "removal vetoed",
	CR_INVALID_DATA:             "invalid data",
	CR_BUFFER_SMALL:             "buffer too small",
	CR_NO_SUCH_VALUE:            "no such value",
	CR_NOT_DISABLEABLE:          "not disableable",
	CR_ACCESS_DENIED:            "access denied",
	CR_NO_SUCH_DEVICE_INTERFACE: "no such device interface",
}

// ConfigRet is a configuration manager result code. CR_SUCCESS is never returned as an error.
type ConfigRet uint32

func (c ConfigRet) Error() string {
	if s, ok := configRetNames[c]; ok {
		return fmt.Sprintf("configuration manager: %s (CONFIGRET %#02x)", s, uint32(c))
	}

	return fmt.Sprintf("configuration manager: CONFIGRET %#02x", uint32(c))
}

// Err returns nil for CR_SUCCESS and c otherwise.
func (c ConfigRet) Err() error {
	if c == CR_SUCCESS {
		return nil
	}

	return c
}

var (
	// ErrNotDisableable is returned when disabling a disk that holds a protected volume.
	ErrNotDisableable error = ConfigRet(CR_NOT_DISABLEABLE)

	ErrNotFound = errors.New("device not found")
)

// DevInst is a device instance handle. It is only meaningful to the Tree that returned it.
type DevInst uint32

// Property selects a device node property.
type Property int

const (
	PropertyService Property = iota
	PropertyLocationInfo
	PropertyInstanceID
)

func (p Property) String() string {
	switch p {
	case PropertyService:
		return "Service"
	case PropertyLocationInfo:
		return "LocationInfo"
	case PropertyInstanceID:
		return "InstanceId"
	}

	return fmt.Sprintf("Property(%d)", int(p))
}

// Tree is the set of device tree primitives the enumerator and lifecycle operations are built on.
// Failures are reported as ConfigRet values, possibly wrapped.
type Tree interface {
	// StoragePorts lists the interface paths of every storage port, present or not.
	StoragePorts() ([]string, error)
	// InterfaceInstanceID returns the instance id of the device exposing an interface path.
	InterfaceInstanceID(iface string) (string, error)
	// DiskInterface returns the present disk interface path of a device instance id.
	DiskInterface(instanceID string) (string, error)

	// Locate finds a device node by instance id. An empty id locates the root of the tree.
	Locate(instanceID string) (DevInst, error)
	Status(inst DevInst) (status, problem uint32, err error)
	Property(inst DevInst, p Property) (string, error)

	Parent(inst DevInst) (DevInst, error)
	Child(inst DevInst) (DevInst, error)
	Sibling(inst DevInst) (DevInst, error)

	Enable(inst DevInst) error
	Disable(inst DevInst) error
	Remove(inst DevInst) error
	// Setup transitions a removed node to ready.
	Setup(inst DevInst) error
	Reenumerate(inst DevInst) error
}

// Node is a handle to a device node. Status and Problem are a snapshot taken when the node was
// resolved and are stale after any operation that changes the tree; use Refresh to reread them.
type Node struct {
	Inst    DevInst
	Status  uint32
	Problem uint32

	tree Tree
}

// NewNode resolves the status of inst.
func NewNode(tree Tree, inst DevInst) (Node, error) {
	n := Node{Inst: inst, tree: tree}

	status, problem, err := tree.Status(inst)
	if err != nil {
		return n, fmt.Errorf("node %d status: %w", inst, err)
	}

	n.Status, n.Problem = status, problem

	return n, nil
}

// Refresh returns a new snapshot of the node.
func (n Node) Refresh() (Node, error) {
	return NewNode(n.tree, n.Inst)
}

func (n Node) Started() bool {
	return n.Status&DN_STARTED != 0
}

func (n Node) Disabled() bool {
	return n.Status&DN_HAS_PROBLEM != 0 && n.Problem == CM_PROB_DISABLED
}

func (n Node) Service() (string, error) {
	return n.tree.Property(n.Inst, PropertyService)
}

func (n Node) LocationInfo() (string, error) {
	return n.tree.Property(n.Inst, PropertyLocationInfo)
}

func (n Node) InstanceID() (string, error) {
	return n.tree.Property(n.Inst, PropertyInstanceID)
}

func (n Node) Parent() (Node, error) {
	inst, err := n.tree.Parent(n.Inst)
	if err != nil {
		return Node{}, err
	}

	return NewNode(n.tree, inst)
}

// Children returns the node's child nodes in device tree order.
func (n Node) Children() ([]Node, error) {
	var nodes []Node

	inst, err := n.tree.Child(n.Inst)
	for ; err == nil; inst, err = n.tree.Sibling(inst) {
		c, nerr := NewNode(n.tree, inst)
		if nerr != nil {
			return nodes, nerr
		}
		nodes = append(nodes, c)
	}

	if isNoSuchNode(err) {
		return nodes, nil
	}

	return nodes, err
}

func (n Node) Enable() error      { return n.op("enable", n.tree.Enable) }
func (n Node) Disable() error     { return n.op("disable", n.tree.Disable) }
func (n Node) Remove() error      { return n.op("remove", n.tree.Remove) }
func (n Node) Setup() error       { return n.op("setup", n.tree.Setup) }
func (n Node) Reenumerate() error { return n.op("reenumerate", n.tree.Reenumerate) }

func (n Node) op(name string, f func(DevInst) error) error {
	if err := f(n.Inst); err != nil {
		return fmt.Errorf("%s node %d: %w", name, n.Inst, err)
	}

	return nil
}

func isNoSuchNode(err error) bool {
	var cr ConfigRet
	return errors.As(err, &cr) && (cr == CR_NO_SUCH_DEVNODE || cr == CR_INVALID_DEVNODE)
}
