// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package nvme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allLayouts = []Layout{
	Dword0Layout, StatusLayout, AsyncEventDW0Layout,
	CDW10IdentifyLayout, CDW11IdentifyLayout, CDW10GetFeaturesLayout, CDW10SetFeaturesLayout,
	CDW10GetLogPageLayout, CDW11GetLogPageLayout, CDW14GetLogPageLayout, CDW10AbortLayout,
	CDW10CreateIOQueueLayout, CDW10DeleteIOQueueLayout, CDW11CreateIOCQLayout, CDW11CreateIOSQLayout,
	CDW10SecurityLayout, CDW10FirmwareCommitLayout, CDW10FormatNVMLayout, CDW10SanitizeLayout,
	CDW12ReadWriteLayout, CDW13ReadWriteLayout, CDW15ReadWriteLayout,
	CDW10DatasetManagementLayout, CDW11DatasetManagementLayout,
	OACSLayout, ONCSLayout, FRMWLayout, LPALayout, VWCLayout, SANICAPLayout, QueueEntrySizeLayout,
	FLBASLayout, DPSLayout, CriticalWarningLayout, FirmwareAFILayout,
}

func init() {
	for _, l := range FeatureLayouts {
		allLayouts = append(allLayouts, l)
	}
}

func TestLayoutsDoNotOverlap(t *testing.T) {
	for _, l := range allLayouts {
		var used uint64

		for _, f := range l.Fields {
			assert.LessOrEqual(t, f.Offset+f.Width, uint(32), "%s.%s", l.Name, f.Name)

			m := ((uint64(1) << f.Width) - 1) << f.Offset
			assert.Zero(t, used&m, "%s.%s overlaps", l.Name, f.Name)
			used |= m
		}
	}
}

func TestLayoutRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := rapid.SampledFrom(allLayouts).Draw(t, "layout")
		f := rapid.SampledFrom(l.Fields).Draw(t, "field")
		x := rapid.Uint32().Draw(t, "x")
		base := rapid.Uint32().Draw(t, "base")

		v := l.Set(base, f.Name, x)
		want := x & f.mask()

		if got := l.Get(v, f.Name); got != want {
			t.Fatalf("%s.%s: set %#x, got %#x", l.Name, f.Name, x, got)
		}

		// Other bits are left alone
		if v&^(f.mask()<<f.Offset) != base&^(f.mask()<<f.Offset) {
			t.Fatalf("%s.%s: set clobbered neighbouring bits", l.Name, f.Name)
		}

		decoded := l.Decode(l.Encode(map[string]uint32{f.Name: x}))
		if decoded[f.Name] != want {
			t.Fatalf("%s.%s: decode(encode(%#x)) = %#x", l.Name, f.Name, x, decoded[f.Name])
		}
	})
}

func TestLayoutReserved(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint32(0x3000), StatusLayout.Reserved(0xffff)&0xffff)
	assert.Panics(func() { StatusLayout.Get(0, "nope") })
	assert.Panics(func() { StatusLayout.Set(0, "nope", 1) })
	assert.Panics(func() { StatusLayout.Flag(0, "nope") })
	assert.Panics(func() { StatusLayout.Encode(map[string]uint32{"nope": 1}) })
}

func TestCommandBytes(t *testing.T) {
	assert := assert.New(t)

	c := NewCommand(NVME_ADMIN_GET_LOG_PAGE, NVME_NSID_ALL, GetLogPage{LID: LOG_HEALTH_INFO, Length: 512})
	c.SetCommandID(0xbeef)
	c.PRP1 = 0x1122334455667788

	b := c.Bytes()
	require.Len(t, b, NVME_COMMAND_SIZE)

	assert.Equal([]byte{0x02, 0x00, 0xef, 0xbe}, b[0:4])
	assert.Equal([]byte{0xff, 0xff, 0xff, 0xff}, b[4:8])
	assert.Equal([]byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, b[24:32])
	// NUMDL = 127, LID = 2
	assert.Equal([]byte{0x02, 0x00, 0x7f, 0x00}, b[40:44])

	parsed, err := ParseCommand(b)
	require.NoError(t, err)
	assert.Equal(c, parsed)
	assert.Equal(uint16(0xbeef), parsed.CommandID())

	_, err = ParseCommand(b[:10])
	assert.Error(err)
}

func TestDecodeSpecific(t *testing.T) {
	assert := assert.New(t)

	variants := []struct {
		opcode uint8
		admin  bool
		d      CommandDwords
	}{
		{NVME_ADMIN_IDENTIFY, true, Identify{CNS: CNS_ACTIVE_NAMESPACES, CNTID: 3, NVMSetID: 2, CSI: CSI_ZNS}},
		{NVME_ADMIN_GET_FEATURES, true, GetFeatures{FID: FEATURE_NUMBER_OF_QUEUES, SEL: FEATURE_SEL_SAVED, Value: 9}},
		{NVME_ADMIN_SET_FEATURES, true, SetFeatures{FID: FEATURE_ARBITRATION, Save: true, Value: 0x03020106, Extra: [4]uint32{1, 2, 3, 4}}},
		{NVME_ADMIN_GET_LOG_PAGE, true, GetLogPage{LID: 0x0d, LSP: 1, RAE: true, Length: 0x40000 * 4, LSI: 7, Offset: 1 << 33, UUIDIndex: 5, CSI: 1}},
		{NVME_ADMIN_CREATE_IO_CQ, true, CreateIOCQ{QID: 1, QSize: 1023, PhysContig: true, IntEnable: true, IntVector: 4}},
		{NVME_ADMIN_CREATE_IO_SQ, true, CreateIOSQ{QID: 1, QSize: 1023, PhysContig: true, Priority: 2, CQID: 1}},
		{NVME_ADMIN_DELETE_IO_SQ, true, DeleteQueue{QID: 7}},
		{NVME_ADMIN_ABORT, true, Abort{SQID: 1, CID: 0x1234}},
		{NVME_ADMIN_SECURITY_SEND, true, SecuritySend{Protocol: 1, SPSpecific: 0x0001, Length: 2048}},
		{NVME_ADMIN_SECURITY_RECEIVE, true, SecurityReceive{Protocol: 1, SPSpecific: 0x0001, Length: 4096}},
		{NVME_ADMIN_FIRMWARE_DOWNLOAD, true, FirmwareDownload{Length: 4096, Offset: 8192}},
		{NVME_ADMIN_FIRMWARE_COMMIT, true, FirmwareCommit{Slot: 2, Action: 3}},
		{NVME_ADMIN_FORMAT_NVM, true, FormatNVM{LBAF: 1, PI: 1, SES: 2}},
		{NVME_ADMIN_SANITIZE, true, Sanitize{Action: 4, OverwritePass: 3, InvertPattern: true, Pattern: 0xa5a5a5a5}},
		{0xc3, true, General{1, 2, 3, 4, 5, 6}},
		{NVME_NVM_READ, false, ReadWrite{SLBA: 0x123456789, NLB: 7, FUA: true, DSM: 3, ILBRT: 9, LBAT: 1, LBATM: 0xffff}},
		{NVME_NVM_DATASET_MANAGEMENT, false, DatasetManagement{Ranges: 3, Deallocate: true}},
	}

	for _, v := range variants {
		c := NewCommand(v.opcode, 1, v.d)
		assert.Equal(v.d, DecodeSpecific(c, v.admin), "opcode %#02x", v.opcode)
	}
}

func TestGetLogPageValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(GetLogPage{Length: 4}.Validate())
	assert.NoError(GetLogPage{Length: 4096}.Validate())
	assert.Error(GetLogPage{Length: 0}.Validate())
	assert.Error(GetLogPage{Length: 6}.Validate())
}

func TestFeatures(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint32(0x0206), GetFeatureCDW10(FEATURE_VOLATILE_WRITE_CACHE, FEATURE_SEL_SAVED))
	assert.Equal(uint32(0x80000006), SetFeatureCDW10(FEATURE_VOLATILE_WRITE_CACHE, true))

	// Any non-zero value enables the cache, and only the WCE bit is ever set
	assert.Equal(uint32(1), EncodeSetFeatureValue(FEATURE_VOLATILE_WRITE_CACHE, 0xfffffffe))
	assert.Equal(uint32(0), EncodeSetFeatureValue(FEATURE_VOLATILE_WRITE_CACHE, 0))
	assert.Equal(uint32(0xfffffffe), EncodeSetFeatureValue(FEATURE_NUMBER_OF_QUEUES, 0xfffffffe))

	assert.True(FeatureSupported(FEATURE_ARBITRATION))
	assert.True(FeatureSupported(FEATURE_AUTONOMOUS_POWER_STATE_TRANSITION))
	assert.True(FeatureSupported(FEATURE_HOST_CONTROLLED_THERMAL_MANAGEMENT))
	assert.False(FeatureSupported(FEATURE_HOST_MEMORY_BUFFER))
	assert.False(FeatureSupported(0))

	arb := Arbitration{Burst: 7, LowPriorityWeight: 1, MediumPriorityWeight: 2, HighPriorityWeight: 3}
	assert.Equal(uint32(0x03020107), arb.Encode())
	assert.Equal(arb, DecodeArbitration(arb.Encode()))

	q := NumberOfQueues{Submission: 63, Completion: 31}
	assert.Equal(q, DecodeNumberOfQueues(q.Encode()))

	th := TemperatureThreshold{Threshold: 358, Sensor: 1, Type: 1}
	assert.Equal(th, DecodeTemperatureThreshold(th.Encode()))

	assert.True(VolatileWriteCacheEnabled(1))
	assert.False(VolatileWriteCacheEnabled(2))

	aec := AsyncEventConfig(0x0800_01ff)
	assert.True(aec["NsAttributeNotices"])
	assert.True(aec["ZoneDescriptorNotices"])
	assert.False(aec["FwActivationNotices"])

	fv := DecodeFeature(FEATURE_NUMBER_OF_QUEUES, 0x001f003f)
	assert.Equal("Number of Queues", fv.Name)
	v, ok := fv.Field("NCQ")
	assert.True(ok)
	assert.Equal(uint32(31), v)
	assert.Contains(fv.String(), "NSQ=63")

	assert.Equal("Feature 0xee", DecodeFeature(0xee, 0).Name)
	assert.Empty(DecodeFeature(0xee, 0).Fields)
}
