// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nvmectl

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/nvmectl/config"
	"github.com/dswarbrick/nvmectl/devtree"
	"github.com/dswarbrick/nvmectl/drivedb"
	"github.com/dswarbrick/nvmectl/ioctl"
	"github.com/dswarbrick/nvmectl/nvme"
)

// portTree is a device tree of controllers without disks, one per PCI bus.
type portTree struct {
	buses []int
}

func (p portTree) StoragePorts() ([]string, error) {
	var ports []string
	for _, b := range p.buses {
		ports = append(ports, fmt.Sprintf(`\\?\port#%d`, b))
	}

	return ports, nil
}

func (p portTree) InterfaceInstanceID(iface string) (string, error) {
	return strings.TrimPrefix(iface, `\\?\port#`), nil
}

func (p portTree) DiskInterface(string) (string, error) {
	return "", devtree.ConfigRet(devtree.CR_NO_SUCH_DEVICE_INTERFACE)
}

func (p portTree) Locate(id string) (devtree.DevInst, error) {
	var bus int
	if _, err := fmt.Sscanf(id, "%d", &bus); err != nil {
		return 0, devtree.ConfigRet(devtree.CR_NO_SUCH_DEVNODE)
	}

	return devtree.DevInst(bus + 100), nil
}

func (p portTree) Status(devtree.DevInst) (uint32, uint32, error) {
	return devtree.DN_STARTED, 0, nil
}

func (p portTree) Property(inst devtree.DevInst, prop devtree.Property) (string, error) {
	switch prop {
	case devtree.PropertyService:
		return "stornvme", nil
	case devtree.PropertyLocationInfo:
		return fmt.Sprintf("PCI bus %d, device 0, function 0", inst-100), nil
	}

	return fmt.Sprint(inst - 100), nil
}

func (p portTree) Parent(devtree.DevInst) (devtree.DevInst, error) {
	return 0, devtree.ConfigRet(devtree.CR_NO_SUCH_DEVNODE)
}

func (p portTree) Child(devtree.DevInst) (devtree.DevInst, error) {
	return 0, devtree.ConfigRet(devtree.CR_NO_SUCH_DEVNODE)
}

func (p portTree) Sibling(devtree.DevInst) (devtree.DevInst, error) {
	return 0, devtree.ConfigRet(devtree.CR_NO_SUCH_DEVNODE)
}

func (p portTree) Enable(devtree.DevInst) error      { return nil }
func (p portTree) Disable(devtree.DevInst) error     { return nil }
func (p portTree) Remove(devtree.DevInst) error      { return nil }
func (p portTree) Setup(devtree.DevInst) error       { return nil }
func (p portTree) Reenumerate(devtree.DevInst) error { return nil }

// identifyDevice answers protocol specific property queries with an Identify Controller page and
// counts protocol commands.
type identifyDevice struct {
	model    string
	commands *int
}

func (d identifyDevice) Control(code uint32, in, out []byte) (uint32, error) {
	switch code {
	case ioctl.IOCTL_STORAGE_QUERY_PROPERTY:
		page := make([]byte, nvme.NVME_IDENTIFY_SIZE)
		copy(page[4:], "S123")
		copy(page[24:], d.model)
		copy(page[64:], "FW1")

		binary.LittleEndian.PutUint32(out[0:], ioctl.STORAGE_PROTOCOL_DATA_DESCRIPTOR_LEN)
		binary.LittleEndian.PutUint32(out[4:], ioctl.STORAGE_PROTOCOL_DATA_DESCRIPTOR_LEN)
		binary.LittleEndian.PutUint32(out[8+16:], ioctl.STORAGE_PROTOCOL_SPECIFIC_DATA_LEN)
		binary.LittleEndian.PutUint32(out[8+20:], uint32(copy(out[48:], page)))
	case ioctl.IOCTL_STORAGE_PROTOCOL_COMMAND:
		*d.commands++
	default:
		return 0, ioctl.ErrNotSupported
	}

	return uint32(len(out)), nil
}

func (d identifyDevice) Close() error { return nil }

const testDb = `
drives:
- family: Samsung 970 EVO Plus
  model_regex: Samsung SSD 970 EVO Plus .*
- family: Intel 600p
  model_regex: INTEL SSDPEKKW.*
  quirks: [no_vendor_passthrough]
`

func newTestSystem(t *testing.T, buses []int, models map[string]string, commands *int) *System {
	db, err := drivedb.ParseDriveDb(strings.NewReader(testDb))
	require.NoError(t, err)

	s := NewSystem(config.Default(), portTree{buses: buses}, nil, db, logr.Discard())
	s.Options.Opener = func(path string, write bool) (ioctl.Device, error) {
		m, ok := models[path]
		if !ok {
			return nil, devtree.ConfigRet(devtree.CR_ACCESS_DENIED)
		}

		return identifyDevice{model: m, commands: commands}, nil
	}

	return s
}

func TestIdentify(t *testing.T) {
	assert := assert.New(t)

	s := newTestSystem(t, []int{7, 2, 5}, map[string]string{
		`\\?\port#2`: "Samsung SSD 970 EVO Plus 1TB",
		`\\?\port#5`: "Unknown Drive",
	}, new(int))

	r, err := s.Enumerate()
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	sums, err := s.Identify(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, sums, 3)

	assert.Equal(2, sums[0].Controller.Location.Bus)
	require.NoError(t, sums[0].Err)
	assert.Equal("Samsung SSD 970 EVO Plus 1TB", sums[0].Identity.Model())
	assert.Equal("Samsung 970 EVO Plus", sums[0].Model.Family)

	require.NoError(t, sums[1].Err)
	assert.Empty(sums[1].Model.Family)

	assert.Equal(7, sums[2].Controller.Location.Bus)
	assert.ErrorIs(sums[2].Err, devtree.ConfigRet(devtree.CR_ACCESS_DENIED))
	assert.Nil(sums[2].Identity)
}

func TestIdentifyCanceled(t *testing.T) {
	s := newTestSystem(t, []int{1}, nil, new(int))

	r, err := s.Enumerate()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Identify(ctx, r)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenControllerQuirks(t *testing.T) {
	assert := assert.New(t)

	commands := 0
	s := newTestSystem(t, []int{1}, map[string]string{`\\?\port#1`: "INTEL SSDPEKKW256G7"}, &commands)

	r, err := s.Enumerate()
	require.NoError(t, err)

	c, ok := r.ByBus(1)
	require.True(t, ok)

	h, err := s.OpenController(c)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal("Intel 600p", h.Model.Family)
	assert.Equal("FW1", h.Identity.Revision())

	_, err = h.NamespaceList(0, true)
	assert.ErrorIs(err, nvme.ErrNotSupported)
	assert.Zero(commands)
}

func TestNewSystemConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := config.Default()
	cfg.Settle.Disable = 3 * time.Second
	cfg.Protected = []string{"C:", "E:"}

	s := NewSystem(cfg, portTree{}, nil, drivedb.DriveDb{}, logr.Discard())

	assert.Equal(3*time.Second, s.Lifecycle.Settle.Disable)
	assert.True(s.Lifecycle.Protected.Has("E:"))
	assert.Equal("stornvme", s.Options.Service)

	r, err := s.Enumerate()
	require.NoError(t, err)
	assert.Zero(r.Len())
}
