// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nvme

import (
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNVMe(t *testing.T) {
	assert := assert.New(t)

	// Test that various structs are the size they should be
	assert.Equal(uintptr(64), unsafe.Sizeof(Command{}))
	assert.Equal(uintptr(32), unsafe.Sizeof(PowerStateDescriptor{}))
	assert.Equal(uintptr(4096), unsafe.Sizeof(IdentifyController{}))
	assert.Equal(uintptr(4), unsafe.Sizeof(LBAFormat{}))
	assert.Equal(uintptr(4096), unsafe.Sizeof(IdentifyNamespace{}))
	assert.Equal(uintptr(512), unsafe.Sizeof(HealthLog{}))
	assert.Equal(uintptr(64), unsafe.Sizeof(ErrorInfoEntry{}))
	assert.Equal(uintptr(512), unsafe.Sizeof(FirmwareSlotLog{}))

	// Offsets that binary.Read relies on matching the wire layout
	assert.Equal(uintptr(256), unsafe.Offsetof(IdentifyController{}.Oacs))
	assert.Equal(uintptr(328), unsafe.Offsetof(IdentifyController{}.Sanicap))
	assert.Equal(uintptr(512), unsafe.Offsetof(IdentifyController{}.Sqes))
	assert.Equal(uintptr(768), unsafe.Offsetof(IdentifyController{}.Subnqn))
	assert.Equal(uintptr(2048), unsafe.Offsetof(IdentifyController{}.Psd))
	assert.Equal(uintptr(92), unsafe.Offsetof(IdentifyNamespace{}.Anagrpid))
	assert.Equal(uintptr(128), unsafe.Offsetof(IdentifyNamespace{}.Lbaf))
	assert.Equal(uintptr(192), unsafe.Offsetof(HealthLog{}.WarningTempTime))
}

func TestParseIdentifyController(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, NVME_IDENTIFY_SIZE)
	binary.LittleEndian.PutUint16(buf[0:], 0x144d)
	copy(buf[4:], "S4EWNX0R123456      ")
	copy(buf[24:], "Samsung SSD 970 EVO Plus 1TB            ")
	copy(buf[64:], "2B2QEXM7")
	buf[73], buf[74], buf[75] = 0x38, 0x25, 0x00
	buf[77] = 9
	binary.LittleEndian.PutUint32(buf[80:], 0x00010300)
	binary.LittleEndian.PutUint16(buf[256:], 0x0017)
	buf[263] = 4
	binary.LittleEndian.PutUint16(buf[266:], 358)
	buf[280] = 0x00
	buf[281] = 0x10
	binary.LittleEndian.PutUint32(buf[516:], 1)
	buf[525] = 1
	binary.LittleEndian.PutUint16(buf[2048:], 755)
	binary.LittleEndian.PutUint16(buf[2048+32:], 30)
	buf[2048+32+3] = 0x01

	c, err := ParseIdentifyController(buf)
	require.NoError(t, err)

	assert.Equal(uint16(0x144d), c.VendorID)
	assert.Equal("S4EWNX0R123456", c.Serial())
	assert.Equal("Samsung SSD 970 EVO Plus 1TB", c.Model())
	assert.Equal("2B2QEXM7", c.Revision())
	assert.Equal(uint32(0x002538), c.OUI())
	assert.Equal(uint64(512), c.MaxTransferPages())
	assert.Equal("1.3.0", c.Version())
	assert.Equal(uint32(1), c.AdminCommands()["SecurityCommands"])
	assert.Equal(uint32(1), c.AdminCommands()["DeviceSelfTest"])
	assert.Equal(uint32(0), c.AdminCommands()["Directives"])
	assert.Equal(85, c.CompositeTempWarning())
	assert.Equal(int64(4096), c.TotalCapacity().Int64())
	assert.Equal(uint32(1), c.Nn)
	assert.True(c.VolatileWriteCachePresent())
	assert.Len(c.PowerStates(), 5)
	assert.InDelta(7.55, c.PowerStates()[0].MaxPowerWatts(), 0.0001)
	assert.InDelta(0.003, c.PowerStates()[1].MaxPowerWatts(), 0.0001)

	_, err = ParseIdentifyController(buf[:100])
	assert.Error(err)
}

func TestParseIdentifyNamespace(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, NVME_IDENTIFY_SIZE)
	binary.LittleEndian.PutUint64(buf[0:], 1953525168)
	binary.LittleEndian.PutUint64(buf[16:], 1000)
	buf[25] = 1 // two formats
	buf[26] = 1 // format 1 in use
	buf[128+2] = 9
	buf[132+2] = 12
	buf[132+3] = 0x02

	ns, err := ParseIdentifyNamespace(buf)
	require.NoError(t, err)

	assert.Len(ns.LBAFormats(), 2)
	assert.Equal(uint64(512), ns.LBAFormats()[0].BlockSize())
	assert.Equal(uint64(4096), ns.FormattedLBA().BlockSize())
	assert.Equal(uint8(2), ns.FormattedLBA().RelativePerformance())
	assert.Equal(uint64(1953525168*4096), ns.SizeBytes())
	assert.Equal(uint64(4096000), ns.UsedBytes())
}

func TestDecodeNamespaceList(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, NVME_IDENTIFY_SIZE)
	for i, id := range []uint32{1, 2, 5} {
		binary.LittleEndian.PutUint32(buf[i*4:], id)
	}
	// Entries after the terminator are ignored
	binary.LittleEndian.PutUint32(buf[16:], 9)

	assert.Equal([]uint32{1, 2, 5}, DecodeNamespaceList(buf))
	assert.Empty(DecodeNamespaceList(make([]byte, NVME_IDENTIFY_SIZE)))
	assert.Empty(DecodeNamespaceList(nil))
}

func TestHealthLog(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, 512)
	buf[0] = 0x05
	binary.LittleEndian.PutUint16(buf[1:], 310)
	buf[3] = 100
	buf[5] = 3
	buf[32] = 0x10   // data units read
	buf[48+1] = 0x01 // data units written = 256
	buf[128] = 42    // power on hours
	binary.LittleEndian.PutUint16(buf[200:], 305)

	sl, err := ParseHealthLog(buf)
	require.NoError(t, err)

	assert.Equal(37, sl.TemperatureCelsius())
	assert.Equal(map[int]int{1: 32}, sl.SensorCelsius())
	assert.Equal([]string{"AvailableSpaceLow", "ReliabilityDegraded"}, sl.CriticalWarnings())
	assert.Equal(int64(16*512000), sl.BytesRead().Int64())
	assert.Equal(int64(256*512000), sl.BytesWritten().Int64())
	assert.Equal("Power On Hours", sl.Counters()[6].Name)
	assert.Equal(int64(42), sl.Counters()[6].Value.Int64())
}

func TestErrorLog(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, 4096)
	binary.LittleEndian.PutUint64(buf[0:], 7)
	binary.LittleEndian.PutUint16(buf[8:], 0)
	binary.LittleEndian.PutUint16(buf[10:], 0x1234)
	binary.LittleEndian.PutUint16(buf[12:], uint16(MakeStatus(STATUS_TYPE_MEDIA_ERROR, 0x81)))
	binary.LittleEndian.PutUint16(buf[14:], 0x0228)
	binary.LittleEndian.PutUint64(buf[16:], 0xdeadbeef)
	binary.LittleEndian.PutUint32(buf[24:], 1)

	entries, err := ParseErrorLog(buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(uint64(7), e.ErrorCount)
	assert.Equal(uint16(0x1234), e.CmdID)
	assert.Equal("unrecovered read error", e.CompletionStatus().Description())
	assert.Equal(uint16(0x28), e.ParamErrorByte())
	assert.Equal(uint8(2), e.ParamErrorBit())
	assert.Equal(uint64(0xdeadbeef), e.LBA)
}

func TestFirmwareSlotLog(t *testing.T) {
	assert := assert.New(t)

	buf := make([]byte, 512)
	buf[0] = 0x21
	copy(buf[8:], "1B2QEXM7")
	copy(buf[16:], "2B2QEXM7")

	fw, err := ParseFirmwareSlotLog(buf)
	require.NoError(t, err)

	assert.Equal(uint8(1), fw.ActiveSlot())
	assert.Equal(uint8(2), fw.PendingSlot())
	assert.Equal(map[int]string{1: "1B2QEXM7", 2: "2B2QEXM7"}, fw.Revisions())
}

func TestStatus(t *testing.T) {
	assert := assert.New(t)

	s := Status(0x0000)
	assert.True(s.Success())
	assert.NoError(s.Err())
	assert.Equal(uint8(STATUS_TYPE_GENERIC), s.Type())
	assert.Equal(uint8(0), s.Code())

	// Phase tag alone does not make a failure
	assert.True(Status(0x0001).Success())

	s = MakeStatus(STATUS_TYPE_MEDIA_ERROR, 0x81)
	assert.Equal(Status(0x0502), s)
	assert.False(s.Success())
	assert.Equal("unrecovered read error", s.Description())
	assert.Equal("media and data integrity error", s.TypeName())

	var se *StatusError
	require.True(t, errors.As(s.Err(), &se))
	assert.Equal(s, se.Status)

	s = Status(0x8000 | uint16(MakeStatus(STATUS_TYPE_COMMAND_SPECIFIC, 0x0d)))
	assert.True(s.DoNotRetry())
	assert.Equal("feature id not saveable", s.Description())
	assert.Contains(s.Err().Error(), "do not retry")

	assert.Equal("unknown status 0x7e", MakeStatus(STATUS_TYPE_GENERIC, 0x7e).Description())
	assert.Equal("vendor specific status 0x1", MakeStatus(STATUS_TYPE_VENDOR_SPECIFIC, 1).Description())
}
