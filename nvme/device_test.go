// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nvme

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type query struct {
	set                                         bool
	propertyID, dataType, value, subValue, size uint32
}

type passthru struct {
	direction uint8
	cmd       Command
	dataLen   int
	param     []byte
}

// fakeTransport records every request and answers from canned responses.
type fakeTransport struct {
	queries  []query
	commands []passthru

	fixed    uint32
	data     []byte
	err      error
	statuses []uint16
	fill     []byte
}

func (f *fakeTransport) ProtocolCommand(direction uint8, cmd []byte, data []byte) (uint32, uint16, error) {
	c, err := ParseCommand(cmd)
	if err != nil {
		return 0, 0, err
	}

	p := passthru{direction: direction, cmd: c, dataLen: len(data)}
	if direction == DIRECTION_TO_DEVICE {
		p.param = append([]byte(nil), data...)
	}
	f.commands = append(f.commands, p)

	if direction == DIRECTION_FROM_DEVICE {
		copy(data, f.fill)
	}

	var status uint16
	if len(f.statuses) > 0 {
		status, f.statuses = f.statuses[0], f.statuses[1:]
	}

	return 0x55, status, f.err
}

func (f *fakeTransport) QueryProtocolData(propertyID, dataType, value, subValue, length uint32) (uint32, []byte, error) {
	f.queries = append(f.queries, query{false, propertyID, dataType, value, subValue, length})
	return f.fixed, f.data, f.err
}

func (f *fakeTransport) SetProtocolData(propertyID, dataType, value, subValue, length uint32) (uint32, []byte, error) {
	f.queries = append(f.queries, query{true, propertyID, dataType, value, subValue, length})
	return f.fixed, f.data, f.err
}

func TestDeviceIdentify(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, NVME_IDENTIFY_SIZE)
	copy(buf[24:], "WDC WDS500G2B0C")
	ft := &fakeTransport{data: buf}
	d := NewDevice("test", ft)

	c, err := d.IdentifyController()
	require.NoError(t, err)
	assert.Equal("WDC WDS500G2B0C", c.Model())

	_, err = d.IdentifyNamespace(1)
	require.NoError(t, err)

	assert.Equal([]query{
		{false, STORAGE_ADAPTER_PROTOCOL_SPECIFIC_PROPERTY, NVME_DATA_TYPE_IDENTIFY, CNS_CONTROLLER, 0, 4096},
		{false, STORAGE_ADAPTER_PROTOCOL_SPECIFIC_PROPERTY, NVME_DATA_TYPE_IDENTIFY, CNS_NAMESPACE, 1, 4096},
	}, ft.queries)

	ft.err = errors.New("device gone")
	_, err = d.IdentifyController()
	assert.ErrorIs(err, ft.err)
}

func TestDeviceFeatures(t *testing.T) {
	assert := assert.New(t)

	ft := &fakeTransport{fixed: 0x001f003f}
	d := NewDevice("test", ft)

	v, err := d.GetFeature(FEATURE_NUMBER_OF_QUEUES, FEATURE_SEL_CURRENT)
	require.NoError(t, err)
	assert.Equal(uint32(0x001f003f), v)

	_, err = d.SetFeature(FEATURE_VOLATILE_WRITE_CACHE, 0xff, false)
	require.NoError(t, err)

	assert.Equal([]query{
		{false, STORAGE_DEVICE_PROTOCOL_SPECIFIC_PROPERTY, NVME_DATA_TYPE_FEATURE, 0x07, 0, 0},
		{true, STORAGE_ADAPTER_PROTOCOL_SPECIFIC_PROPERTY, NVME_DATA_TYPE_FEATURE, 0x06, 1, 4096},
	}, ft.queries)

	_, err = d.GetFeature(FEATURE_TIMESTAMP, 0)
	assert.ErrorIs(err, ErrNotSupported)
	_, err = d.SetFeature(0x80, 1, false)
	assert.ErrorIs(err, ErrNotSupported)
	assert.Len(ft.queries, 2)
}

func TestDeviceLogPages(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, 4096)
	binary.LittleEndian.PutUint16(buf[1:], 300)
	ft := &fakeTransport{data: buf}
	d := NewDevice("test", ft)

	sl, err := d.HealthLog()
	require.NoError(t, err)
	assert.Equal(27, sl.TemperatureCelsius())

	_, err = d.GetLogPage(0xfe, 1)
	require.NoError(t, err)

	assert.Equal(query{false, STORAGE_DEVICE_PROTOCOL_SPECIFIC_PROPERTY, NVME_DATA_TYPE_LOG_PAGE, LOG_HEALTH_INFO, 0, 4096}, ft.queries[0])
	assert.Equal(query{false, STORAGE_DEVICE_PROTOCOL_SPECIFIC_PROPERTY, NVME_DATA_TYPE_LOG_PAGE, 0xfe, 1, 4096}, ft.queries[1])

	ft.data = buf[:100]
	_, err = d.FirmwareSlotLog()
	assert.Error(err)
}

func TestPassthroughStatus(t *testing.T) {
	assert := assert.New(t)

	ft := &fakeTransport{statuses: []uint16{uint16(MakeStatus(STATUS_TYPE_GENERIC, 0x02))}}
	d := NewDevice("test", ft)

	dw0, err := d.Passthrough(DIRECTION_NONE, NewCommand(NVME_ADMIN_ABORT, 0, Abort{}), nil)
	assert.Equal(uint32(0x55), dw0)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(uint8(NVME_ADMIN_ABORT), se.Opcode)
	assert.Equal("invalid field in command", se.Status.Description())
}

func TestVendorNamespaceList(t *testing.T) {
	assert := assert.New(t)

	list := make([]byte, 4096)
	binary.LittleEndian.PutUint32(list[0:], 1)
	binary.LittleEndian.PutUint32(list[4:], 3)

	ft := &fakeTransport{fill: list}
	d := NewDevice("test", ft)

	ids, err := d.NamespaceList(0, true)
	require.NoError(t, err)
	assert.Equal([]uint32{1, 3}, ids)

	require.Len(t, ft.commands, 2)

	param := ft.commands[0]
	assert.Equal(uint8(DIRECTION_TO_DEVICE), param.direction)
	assert.Equal(uint8(NVME_ADMIN_VS_PARAM), param.cmd.Opcode())
	assert.Equal(uint32(VS_PARAM_BUFFER_SIZE/4), param.cmd.CDW10)
	assert.Equal(uint32(VS_STD_NVME_CMD_TYPE_READ), param.cmd.CDW12)
	require.Len(t, param.param, VS_PARAM_BUFFER_SIZE)

	// The wrapped Identify command sits at the start of the parameter buffer
	inner, err := ParseCommand(param.param)
	require.NoError(t, err)
	assert.Equal(uint8(NVME_ADMIN_IDENTIFY), inner.Opcode())
	assert.Equal(Identify{CNS: CNS_ALLOCATED_NAMESPACE_LIST}, DecodeSpecific(inner, true))

	data := ft.commands[1]
	assert.Equal(uint8(DIRECTION_FROM_DEVICE), data.direction)
	assert.Equal(uint8(NVME_ADMIN_VS_DATA|DIRECTION_FROM_DEVICE), data.cmd.Opcode())
	assert.Equal(uint32(1024), data.cmd.CDW10)
	assert.Equal(uint32(VS_STD_NVME_CMD_TYPE_READ), data.cmd.CDW12)
	assert.Equal(uint32(1), data.cmd.CDW14)
	assert.Equal(4096, data.dataLen)
}

func TestVendorParamFailureSkipsDataPhase(t *testing.T) {
	assert := assert.New(t)

	ft := &fakeTransport{statuses: []uint16{uint16(MakeStatus(STATUS_TYPE_GENERIC, 0x01))}}
	d := NewDevice("test", ft)

	_, err := d.NamespaceList(0, false)
	assert.Error(err)
	assert.Len(ft.commands, 1)
}

func TestVendorNonDataCommand(t *testing.T) {
	assert := assert.New(t)

	ft := &fakeTransport{}
	d := NewDevice("test", ft)

	_, err := d.VendorAdminCommand(NewCommand(NVME_ADMIN_IDENTIFY, 0, Identify{CNS: CNS_CONTROLLER}), nil)
	require.NoError(t, err)

	require.Len(t, ft.commands, 1)
	assert.Equal(uint32(VS_STD_NVME_CMD_TYPE_NON_DATA), ft.commands[0].cmd.CDW12)

	_, err = d.VendorAdminCommand(NewCommand(0x03, 0, nil), make([]byte, 16))
	assert.ErrorIs(err, ErrNotSupported)
}

func TestNamespaceListQuirk(t *testing.T) {
	assert := assert.New(t)

	list := make([]byte, 4096)
	binary.LittleEndian.PutUint32(list[0:], 1)

	ft := &fakeTransport{data: list}
	d := NewDevice("test", ft, WithQuirks(Quirks{NoVendorPassthrough: true}))

	ids, err := d.NamespaceList(0, false)
	require.NoError(t, err)
	assert.Equal([]uint32{1}, ids)
	assert.Empty(ft.commands)
	assert.Equal(uint32(CNS_ACTIVE_NAMESPACES), ft.queries[0].value)

	_, err = d.NamespaceList(0, true)
	assert.ErrorIs(err, ErrNotSupported)
}
