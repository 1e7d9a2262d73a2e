// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package devtree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dswarbrick/nvmectl/ioctl"
)

type fakeNode struct {
	status   uint32
	problem  uint32
	props    map[Property]string
	parent   DevInst
	children []DevInst
	disk     string
	// sticky nodes ignore state changes
	sticky   bool
}

// fakeTree is an in-memory device tree. Every mutating call is recorded in ops.
type fakeTree struct {
	nodes    map[DevInst]*fakeNode
	ports    []string
	portIDs  map[string]string
	portsErr error
	fail     map[string]error
	ops      []string
	next     DevInst
}

const fakeRoot DevInst = 1

func newFakeTree() *fakeTree {
	return &fakeTree{
		nodes:   map[DevInst]*fakeNode{fakeRoot: {status: DN_STARTED, props: map[Property]string{PropertyInstanceID: `HTREE\ROOT\0`}}},
		portIDs: make(map[string]string),
		fail:    make(map[string]error),
		next:    fakeRoot + 1,
	}
}

func (f *fakeTree) add(parent DevInst, props map[Property]string) DevInst {
	inst := f.next
	f.next++

	f.nodes[inst] = &fakeNode{status: DN_STARTED, props: props, parent: parent}
	f.nodes[parent].children = append(f.nodes[parent].children, inst)

	return inst
}

// addController adds a PCI bridge and a controller below it exposing a storage port, with one disk
// per entry of disks. It returns the controller and disk instances.
func (f *fakeTree) addController(service, location string, disks ...uint32) (DevInst, []DevInst) {
	bridge := f.add(fakeRoot, map[Property]string{PropertyService: "pci"})

	id := fmt.Sprintf(`PCI\VEN_144D&DEV_A808\%d`, f.next)
	c := f.add(bridge, map[Property]string{
		PropertyService:      service,
		PropertyLocationInfo: location,
		PropertyInstanceID:   id,
	})

	iface := fmt.Sprintf(`\\?\port#%d`, c)
	f.ports = append(f.ports, iface)
	f.portIDs[iface] = id

	var insts []DevInst
	for i, n := range disks {
		d := f.add(c, map[Property]string{
			PropertyService:    "disk",
			PropertyInstanceID: fmt.Sprintf(`SCSI\DISK&VEN_NVME&PROD_SAMSUNG\5&%X&0&%06d`, c, i),
		})
		f.nodes[d].disk = fmt.Sprintf(`\\?\disk#%d`, n)
		insts = append(insts, d)
	}

	return c, insts
}

func (f *fakeTree) node(inst DevInst) (*fakeNode, error) {
	n, ok := f.nodes[inst]
	if !ok {
		return nil, ConfigRet(CR_NO_SUCH_DEVNODE)
	}

	return n, nil
}

func (f *fakeTree) StoragePorts() ([]string, error) {
	return f.ports, f.portsErr
}

func (f *fakeTree) InterfaceInstanceID(iface string) (string, error) {
	id, ok := f.portIDs[iface]
	if !ok {
		return "", ConfigRet(CR_NO_SUCH_DEVICE_INTERFACE)
	}

	return id, nil
}

func (f *fakeTree) DiskInterface(instanceID string) (string, error) {
	for _, n := range f.nodes {
		if n.props[PropertyInstanceID] == instanceID && n.disk != "" {
			return n.disk, nil
		}
	}

	return "", ConfigRet(CR_NO_SUCH_DEVICE_INTERFACE)
}

func (f *fakeTree) Locate(instanceID string) (DevInst, error) {
	if instanceID == "" {
		return fakeRoot, nil
	}

	for inst, n := range f.nodes {
		if n.props[PropertyInstanceID] == instanceID {
			return inst, nil
		}
	}

	return 0, ConfigRet(CR_NO_SUCH_DEVNODE)
}

func (f *fakeTree) Status(inst DevInst) (uint32, uint32, error) {
	n, err := f.node(inst)
	if err != nil {
		return 0, 0, err
	}

	return n.status, n.problem, nil
}

func (f *fakeTree) Property(inst DevInst, p Property) (string, error) {
	n, err := f.node(inst)
	if err != nil {
		return "", err
	}

	v, ok := n.props[p]
	if !ok {
		return "", ConfigRet(CR_NO_SUCH_VALUE)
	}

	return v, nil
}

func (f *fakeTree) Parent(inst DevInst) (DevInst, error) {
	n, err := f.node(inst)
	if err != nil || n.parent == 0 {
		return 0, ConfigRet(CR_NO_SUCH_DEVNODE)
	}

	return n.parent, nil
}

func (f *fakeTree) Child(inst DevInst) (DevInst, error) {
	n, err := f.node(inst)
	if err != nil || len(n.children) == 0 {
		return 0, ConfigRet(CR_NO_SUCH_DEVNODE)
	}

	return n.children[0], nil
}

func (f *fakeTree) Sibling(inst DevInst) (DevInst, error) {
	n, err := f.node(inst)
	if err != nil {
		return 0, err
	}

	siblings := f.nodes[n.parent].children
	for i, s := range siblings {
		if s == inst && i+1 < len(siblings) {
			return siblings[i+1], nil
		}
	}

	return 0, ConfigRet(CR_NO_SUCH_DEVNODE)
}

func (f *fakeTree) mutate(op string, inst DevInst, status, problem uint32) error {
	key := fmt.Sprintf("%s %d", op, inst)
	f.ops = append(f.ops, key)

	if err := f.fail[key]; err != nil {
		return err
	}

	n, err := f.node(inst)
	if err != nil {
		return err
	}

	if !n.sticky {
		n.status, n.problem = status, problem
	}

	return nil
}

func (f *fakeTree) Enable(inst DevInst) error {
	return f.mutate("enable", inst, DN_STARTED, 0)
}

func (f *fakeTree) Disable(inst DevInst) error {
	return f.mutate("disable", inst, DN_HAS_PROBLEM, CM_PROB_DISABLED)
}

func (f *fakeTree) Remove(inst DevInst) error {
	return f.mutate("remove", inst, 0, 0)
}

func (f *fakeTree) Setup(inst DevInst) error {
	return f.mutate("setup", inst, DN_STARTED, 0)
}

func (f *fakeTree) Reenumerate(inst DevInst) error {
	return f.mutate("reenumerate", inst, DN_STARTED, 0)
}

// fakeDevice answers device number and volume extent requests with a fixed disk number.
type fakeDevice struct {
	number uint32
}

func (f fakeDevice) Control(code uint32, in, out []byte) (uint32, error) {
	switch code {
	case ioctl.IOCTL_STORAGE_GET_DEVICE_NUMBER:
		binary.Encode(out, binary.LittleEndian, ioctl.DeviceNumber{DeviceType: 7, DeviceNumber: f.number})
	case ioctl.IOCTL_VOLUME_GET_VOLUME_DISK_EXTENTS:
		binary.LittleEndian.PutUint32(out, 1)
		binary.Encode(out[8:], binary.LittleEndian, ioctl.DiskExtent{DiskNumber: f.number, ExtentLength: 1 << 30})
	default:
		return 0, ioctl.ErrNotSupported
	}

	return uint32(len(out)), nil
}

func (f fakeDevice) Close() error { return nil }

// fakeOpener opens paths ending in "#N" or "PhysicalDriveN" as disk N.
func fakeOpener(path string, write bool) (ioctl.Device, error) {
	i := strings.LastIndexAny(path, "#e")
	if i < 0 {
		return nil, ConfigRet(CR_ACCESS_DENIED)
	}

	var n uint32
	if _, err := fmt.Sscanf(path[i+1:], "%d", &n); err != nil {
		return nil, err
	}

	return fakeDevice{number: n}, nil
}

type fakeVolumes struct {
	drives map[string]uint32
	calls  int
}

func (f *fakeVolumes) LogicalDrives() ([]string, error) {
	f.calls++

	var roots []string
	for d := range f.drives {
		roots = append(roots, d+`\`)
	}
	roots = append(roots, `Z:\`)

	return roots, nil
}

func (f *fakeVolumes) DiskNumber(drive string) (uint32, error) {
	n, ok := f.drives[drive]
	if !ok {
		return 0, ConfigRet(CR_NO_SUCH_VALUE)
	}

	return n, nil
}

func testOptions(drives map[string]uint32) Options {
	return Options{
		Opener: fakeOpener,
		Drives: NewLogicalDriveCache(&fakeVolumes{drives: drives}, logr.Discard()),
	}
}

func TestParseLocation(t *testing.T) {
	assert := assert.New(t)

	l := ParseLocation("PCI bus 3, device 0, function 0")
	assert.Equal(PciLocation{Bus: 3, Known: true}, l)
	assert.Equal("0000:03:00:00", l.String())

	l = ParseLocation("PCI bus 110, device 31, function 7")
	assert.Equal("0000:6E:1F:07", l.String())

	for _, s := range []string{"", "PCI bus x", "Port_#0001.Hub_#0002", "PCI bus -1, device 0, function 0"} {
		l = ParseLocation(s)
		assert.False(l.Known, s)
		assert.Equal("unknown", l.String())
	}
}

func TestLocationRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		want := PciLocation{
			Bus:      rapid.IntRange(0, 255).Draw(t, "bus"),
			Device:   rapid.IntRange(0, 31).Draw(t, "device"),
			Function: rapid.IntRange(0, 7).Draw(t, "function"),
			Known:    true,
		}

		if got := ParseLocation(want.LocationInfo()); got != want {
			t.Fatalf("parse(%q) = %+v, want %+v", want.LocationInfo(), got, want)
		}
	})
}

func drawLocation(t *rapid.T, label string) PciLocation {
	if !rapid.Bool().Draw(t, label+".known") {
		return PciLocation{}
	}

	return PciLocation{
		Segment:  rapid.IntRange(0, 1).Draw(t, label+".segment"),
		Bus:      rapid.IntRange(0, 3).Draw(t, label+".bus"),
		Device:   rapid.IntRange(0, 3).Draw(t, label+".device"),
		Function: rapid.IntRange(0, 1).Draw(t, label+".function"),
		Known:    true,
	}
}

func TestLocationOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a, b, c := drawLocation(t, "a"), drawLocation(t, "b"), drawLocation(t, "c")

		if a.Compare(b) != -b.Compare(a) {
			t.Fatalf("compare not antisymmetric for %v, %v", a, b)
		}

		if (a.Compare(b) == 0) != (a == b) {
			t.Fatalf("compare(%v, %v) = %d", a, b, a.Compare(b))
		}

		if a.Compare(b) < 0 && b.Compare(c) < 0 && a.Compare(c) >= 0 {
			t.Fatalf("compare not transitive for %v < %v < %v", a, b, c)
		}

		if a.Known && !b.Known && a.Compare(b) >= 0 {
			t.Fatalf("known %v does not sort before unknown", a)
		}
	})
}

func TestNamespaceID(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1, namespaceID(`SCSI\DISK&VEN_NVME&PROD_X\5&1A2B3C&0&000000`))
	assert.Equal(3, namespaceID(`SCSI\DISK&VEN_NVME&PROD_X\5&1A2B3C&0&000002`))
	assert.Equal(-1, namespaceID(`SCSI\DISK\0`))
	assert.Equal(-1, namespaceID(`SCSI\DISK&X&`))
}

func TestConfigRet(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(ConfigRet(CR_SUCCESS).Err())
	assert.Equal("configuration manager: not disableable (CONFIGRET 0x28)", ConfigRet(CR_NOT_DISABLEABLE).Error())
	assert.Equal("configuration manager: CONFIGRET 0x99", ConfigRet(0x99).Error())

	err := fmt.Errorf("disk 1: %w", ConfigRet(CR_NOT_DISABLEABLE))
	assert.ErrorIs(err, ErrNotDisableable)

	var cr ConfigRet
	require.True(t, errors.As(err, &cr))
	assert.Equal(ConfigRet(CR_NOT_DISABLEABLE), cr)
}

func TestSplitMultiSz(t *testing.T) {
	assert := assert.New(t)

	buf := utf16.Encode([]rune("C:\\\x00D:\\\x00\x00"))
	assert.Equal([]string{`C:\`, `D:\`}, splitMultiSz(buf))
	assert.Empty(splitMultiSz([]uint16{0}))
	assert.Empty(splitMultiSz(nil))
}

func TestEnumerateEmpty(t *testing.T) {
	assert := assert.New(t)

	tree := newFakeTree()
	tree.portsErr = ConfigRet(CR_FAILURE)

	for _, tr := range []*fakeTree{tree, newFakeTree()} {
		r, err := Enumerate(tr, testOptions(nil))
		require.NoError(t, err)
		require.NotNil(t, r)

		assert.Zero(r.Len())
		assert.Empty(r.Controllers())

		_, _, ok := r.ByNum(0)
		assert.False(ok)
		_, ok = r.ByBus(0)
		assert.False(ok)
		_, ok = r.Disk(1)
		assert.False(ok)
	}
}

func TestEnumerate(t *testing.T) {
	assert := assert.New(t)

	tree := newFakeTree()
	tree.addController("stornvme", "PCI bus 5, device 0, function 0", 2, 3)
	tree.addController("stornvme", "somewhere else", 4)
	tree.addController("iaStorAC", "PCI bus 1, device 0, function 0", 9)
	c2, _ := tree.addController("StorNVMe", "PCI bus 2, device 0, function 0", 0)

	r, err := Enumerate(tree, testOptions(map[string]uint32{"C:": 0, "D:": 3, "E:": 3}))
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	cs := r.Controllers()
	assert.Equal(c2, cs[0].Inst)
	assert.Equal("0000:05:00:00", cs[1].Location.String())
	assert.False(cs[2].Location.Known)

	c, ok := r.ByBus(5)
	require.True(t, ok)
	require.Len(t, c.Disks, 2)

	d := c.Disks[1]
	assert.Equal(3, d.Number)
	assert.Equal(2, d.NSID)
	assert.Equal(`\\.\PhysicalDrive3`, d.DevicePath)
	assert.Equal(`\\?\disk#3`, d.InterfacePath)
	assert.Equal([]string{"D:", "E:"}, d.Drives.SortedList())
	assert.True(d.Started())

	c, d, ok = r.ByNum(0)
	require.True(t, ok)
	assert.Equal(c2, c.Inst)
	assert.True(d.Drives.Has("C:"))

	_, ok = r.ByBus(1)
	assert.False(ok)
	_, _, ok = r.ByNum(9)
	assert.False(ok)
}

func TestDiskInspectionFailure(t *testing.T) {
	assert := assert.New(t)

	tree := newFakeTree()
	_, disks := tree.addController("stornvme", "PCI bus 1, device 0, function 0", 1)
	tree.nodes[disks[0]].disk = ""

	r, err := Enumerate(tree, testOptions(nil))
	require.NoError(t, err)

	d := r.Controllers()[0].Disks[0]
	assert.Equal(-1, d.Number)
	assert.Equal(1, d.NSID)
	assert.Empty(d.DevicePath)
	assert.Zero(d.Drives.Len())

	_, err = d.Open(false)
	assert.ErrorIs(err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	tree := newFakeTree()
	tree.addController("stornvme", "PCI bus 1, device 0, function 0", 7)

	r, err := Enumerate(tree, testOptions(nil))
	require.NoError(t, err)

	dev, err := r.Controllers()[0].Disks[0].Open(false)
	require.NoError(t, err)

	dn, err := dev.DeviceNumber()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), dn.DeviceNumber)
}

func TestLogicalDriveCache(t *testing.T) {
	assert := assert.New(t)

	v := &fakeVolumes{drives: map[string]uint32{"C:": 0, "D:": 1}}
	c := NewLogicalDriveCache(v, logr.Discard())

	assert.Equal([]string{"C:"}, c.DiskDrives(0).SortedList())
	assert.Equal([]string{"D:"}, c.DiskDrives(1).SortedList())
	assert.Zero(c.DiskDrives(5).Len())
	assert.Equal(1, v.calls)

	v.drives["F:"] = 1
	assert.Equal([]string{"D:"}, c.DiskDrives(1).SortedList())

	c.Refresh()
	assert.Equal([]string{"D:", "F:"}, c.DiskDrives(1).SortedList())
	assert.Equal(2, v.calls)
}

func TestSystemVolumesDiskNumber(t *testing.T) {
	v := &SystemVolumes{
		Opener: func(path string, write bool) (ioctl.Device, error) {
			assert.Equal(t, `\\.\E:`, path)
			assert.False(t, write)
			return fakeDevice{number: 4}, nil
		},
		Log: logr.Discard(),
	}

	n, err := v.DiskNumber(`E:\`)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n)
}
