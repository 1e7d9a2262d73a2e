// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Declarative sub-dword bitfield layouts.

package nvme

import (
	"fmt"
)

// Field describes a run of Width bits starting at bit Offset (LSB = 0) of a dword.
type Field struct {
	Name   string
	Offset uint
	Width  uint
}

func (f Field) mask() uint32 {
	if f.Width >= 32 {
		return 0xffffffff
	}

	return (uint32(1) << f.Width) - 1
}

// Get extracts the field from v.
func (f Field) Get(v uint32) uint32 {
	return (v >> f.Offset) & f.mask()
}

// Set returns v with the field replaced by x. Bits of x wider than the field are dropped.
func (f Field) Set(v, x uint32) uint32 {
	m := f.mask() << f.Offset
	return (v &^ m) | ((x << f.Offset) & m)
}

// Layout is an ordered table of the named fields of one register. Bits not covered by any field
// are reserved and always encode as zero. Get, Set, Flag and Encode panic when given a name the
// layout does not define, as that can only be a programming error.
type Layout struct {
	Name   string
	Fields []Field
}

func (l Layout) field(name string) Field {
	for _, f := range l.Fields {
		if f.Name == name {
			return f
		}
	}

	panic(fmt.Sprintf("nvme: layout %s has no field %q", l.Name, name))
}

// Get returns the named field of v.
func (l Layout) Get(v uint32, name string) uint32 {
	return l.field(name).Get(v)
}

// Set returns v with the named field set to x.
func (l Layout) Set(v uint32, name string, x uint32) uint32 {
	return l.field(name).Set(v, x)
}

// Flag returns the named single-bit field of v as a bool.
func (l Layout) Flag(v uint32, name string) bool {
	return l.field(name).Get(v) != 0
}

// Encode packs the named values into a dword. Unnamed fields are zero.
func (l Layout) Encode(values map[string]uint32) uint32 {
	var v uint32

	for name, x := range values {
		v = l.field(name).Set(v, x)
	}

	return v
}

// Decode unpacks every field of v.
func (l Layout) Decode(v uint32) map[string]uint32 {
	m := make(map[string]uint32, len(l.Fields))

	for _, f := range l.Fields {
		m[f.Name] = f.Get(v)
	}

	return m
}

// Reserved returns the bits of v that are not covered by any field.
func (l Layout) Reserved(v uint32) uint32 {
	var used uint32

	for _, f := range l.Fields {
		used |= f.mask() << f.Offset
	}

	return v &^ used
}

func b(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// Command and completion dwords
var (
	Dword0Layout = Layout{"CDW0", []Field{
		{"OPC", 0, 8}, {"FUSE", 8, 2}, {"PSDT", 15, 1}, {"CID", 16, 16},
	}}

	StatusLayout = Layout{"Status", []Field{
		{"P", 0, 1}, {"SC", 1, 8}, {"SCT", 9, 3}, {"M", 14, 1}, {"DNR", 15, 1},
	}}

	AsyncEventDW0Layout = Layout{"AsyncEventDW0", []Field{
		{"Type", 0, 3}, {"Info", 8, 8}, {"LogPage", 16, 8},
	}}
)

// Admin command dwords
var (
	CDW10IdentifyLayout = Layout{"CDW10.Identify", []Field{
		{"CNS", 0, 8}, {"CNTID", 16, 16},
	}}

	CDW11IdentifyLayout = Layout{"CDW11.Identify", []Field{
		{"CNSSID", 0, 16}, {"CSI", 24, 8},
	}}

	CDW10GetFeaturesLayout = Layout{"CDW10.GetFeatures", []Field{
		{"FID", 0, 8}, {"SEL", 8, 3},
	}}

	CDW10SetFeaturesLayout = Layout{"CDW10.SetFeatures", []Field{
		{"FID", 0, 8}, {"SV", 31, 1},
	}}

	CDW10GetLogPageLayout = Layout{"CDW10.GetLogPage", []Field{
		{"LID", 0, 8}, {"LSP", 8, 4}, {"RAE", 15, 1}, {"NUMDL", 16, 16},
	}}

	CDW11GetLogPageLayout = Layout{"CDW11.GetLogPage", []Field{
		{"NUMDU", 0, 16}, {"LSI", 16, 16},
	}}

	CDW14GetLogPageLayout = Layout{"CDW14.GetLogPage", []Field{
		{"UUID", 0, 7}, {"CSI", 24, 8},
	}}

	CDW10AbortLayout = Layout{"CDW10.Abort", []Field{
		{"SQID", 0, 8}, {"CID", 8, 16},
	}}

	CDW10CreateIOQueueLayout = Layout{"CDW10.CreateIOQueue", []Field{
		{"QID", 0, 16}, {"QSIZE", 16, 16},
	}}

	CDW10DeleteIOQueueLayout = Layout{"CDW10.DeleteIOQueue", []Field{
		{"QID", 0, 16},
	}}

	CDW11CreateIOCQLayout = Layout{"CDW11.CreateIOCQ", []Field{
		{"PC", 0, 1}, {"IEN", 1, 1}, {"IV", 16, 16},
	}}

	CDW11CreateIOSQLayout = Layout{"CDW11.CreateIOSQ", []Field{
		{"PC", 0, 1}, {"QPRIO", 1, 2}, {"CQID", 16, 16},
	}}

	CDW10SecurityLayout = Layout{"CDW10.Security", []Field{
		{"NSSF", 0, 8}, {"SPSP", 8, 16}, {"SECP", 24, 8},
	}}

	CDW10FirmwareCommitLayout = Layout{"CDW10.FirmwareCommit", []Field{
		{"FS", 0, 3}, {"CA", 3, 2},
	}}

	CDW10FormatNVMLayout = Layout{"CDW10.FormatNVM", []Field{
		{"LBAF", 0, 4}, {"MS", 4, 1}, {"PI", 5, 3}, {"PIL", 8, 1}, {"SES", 9, 3}, {"ZF", 12, 2},
	}}

	CDW10SanitizeLayout = Layout{"CDW10.Sanitize", []Field{
		{"SANACT", 0, 3}, {"AUSE", 3, 1}, {"OWPASS", 4, 4}, {"OIPBP", 8, 1}, {"NDAS", 9, 1},
	}}
)

// NVM command dwords
var (
	CDW12ReadWriteLayout = Layout{"CDW12.ReadWrite", []Field{
		{"NLB", 0, 16}, {"DTYPE", 20, 4}, {"PRINFO", 26, 4}, {"FUA", 30, 1}, {"LR", 31, 1},
	}}

	CDW13ReadWriteLayout = Layout{"CDW13.ReadWrite", []Field{
		{"DSM", 0, 8}, {"DSPEC", 16, 16},
	}}

	CDW15ReadWriteLayout = Layout{"CDW15.ReadWrite", []Field{
		{"ELBAT", 0, 16}, {"ELBATM", 16, 16},
	}}

	CDW10DatasetManagementLayout = Layout{"CDW10.DatasetManagement", []Field{
		{"NR", 0, 8},
	}}

	CDW11DatasetManagementLayout = Layout{"CDW11.DatasetManagement", []Field{
		{"IDR", 0, 1}, {"IDW", 1, 1}, {"AD", 2, 1},
	}}
)

// Feature dword 11 layouts, by feature identifier.
var FeatureLayouts = map[uint8]Layout{
	FEATURE_ARBITRATION: {"Arbitration", []Field{
		{"AB", 0, 3}, {"LPW", 8, 8}, {"MPW", 16, 8}, {"HPW", 24, 8},
	}},
	FEATURE_POWER_MANAGEMENT: {"PowerManagement", []Field{
		{"PS", 0, 5},
	}},
	FEATURE_LBA_RANGE_TYPE: {"LBARangeType", []Field{
		{"NUM", 0, 6},
	}},
	FEATURE_TEMPERATURE_THRESHOLD: {"TemperatureThreshold", []Field{
		{"TMPTH", 0, 16}, {"TMPSEL", 16, 4}, {"THSEL", 20, 2},
	}},
	FEATURE_ERROR_RECOVERY: {"ErrorRecovery", []Field{
		{"TLER", 0, 16}, {"DULBE", 16, 1},
	}},
	FEATURE_VOLATILE_WRITE_CACHE: {"VolatileWriteCache", []Field{
		{"WCE", 0, 1},
	}},
	FEATURE_NUMBER_OF_QUEUES: {"NumberOfQueues", []Field{
		{"NSQ", 0, 16}, {"NCQ", 16, 16},
	}},
	FEATURE_INTERRUPT_COALESCING: {"InterruptCoalescing", []Field{
		{"THR", 0, 8}, {"TIME", 8, 8},
	}},
	FEATURE_INTERRUPT_VECTOR_CONFIG: {"InterruptVectorConfig", []Field{
		{"IV", 0, 16}, {"CD", 16, 1},
	}},
	FEATURE_WRITE_ATOMICITY: {"WriteAtomicity", []Field{
		{"DN", 0, 1},
	}},
	FEATURE_ASYNC_EVENT_CONFIG: {"AsyncEventConfig", []Field{
		{"CriticalWarnings", 0, 8},
		{"NsAttributeNotices", 8, 1},
		{"FwActivationNotices", 9, 1},
		{"TelemetryLogNotices", 10, 1},
		{"ANAChangeNotices", 11, 1},
		{"PredictableLogChangeNotices", 12, 1},
		{"LBAStatusNotices", 13, 1},
		{"EnduranceEventNotices", 14, 1},
		{"ZoneDescriptorNotices", 27, 1},
	}},
	FEATURE_AUTONOMOUS_POWER_STATE_TRANSITION: {"AutonomousPowerStateTransition", []Field{
		{"APSTE", 0, 1},
	}},
	FEATURE_HOST_MEMORY_BUFFER: {"HostMemoryBuffer", []Field{
		{"EHM", 0, 1}, {"MR", 1, 1},
	}},
	FEATURE_KEEP_ALIVE: {"KeepAliveTimer", []Field{
		{"KATO", 0, 32},
	}},
	FEATURE_HOST_CONTROLLED_THERMAL_MANAGEMENT: {"HostControlledThermalManagement", []Field{
		{"TMT2", 0, 16}, {"TMT1", 16, 16},
	}},
	FEATURE_NONOPERATIONAL_POWER_STATE: {"NonOperationalPowerStateConfig", []Field{
		{"NOPPME", 0, 1},
	}},
}

// Identify data capability registers, decoded for display.
var (
	OACSLayout = Layout{"OACS", []Field{
		{"SecurityCommands", 0, 1}, {"FormatNVM", 1, 1}, {"FirmwareCommands", 2, 1},
		{"NamespaceCommands", 3, 1}, {"DeviceSelfTest", 4, 1}, {"Directives", 5, 1},
		{"NVMeMICommands", 6, 1}, {"VirtualizationMgmt", 7, 1}, {"DoorBellBufferConfig", 8, 1},
		{"GetLBAStatus", 9, 1},
	}}

	ONCSLayout = Layout{"ONCS", []Field{
		{"Compare", 0, 1}, {"WriteUncorrectable", 1, 1}, {"DatasetManagement", 2, 1},
		{"WriteZeroes", 3, 1}, {"FeatureField", 4, 1}, {"Reservations", 5, 1},
		{"Timestamp", 6, 1}, {"Verify", 7, 1},
	}}

	FRMWLayout = Layout{"FRMW", []Field{
		{"Slot1ReadOnly", 0, 1}, {"SlotCount", 1, 3}, {"ActivationWithoutReset", 4, 1},
	}}

	LPALayout = Layout{"LPA", []Field{
		{"SmartPagePerNamespace", 0, 1}, {"CommandEffectsLog", 1, 1},
		{"LogPageExtendedData", 2, 1}, {"TelemetrySupport", 3, 1},
		{"PersistentEventLog", 4, 1}, {"TelemetryDataArea4", 6, 1},
	}}

	VWCLayout = Layout{"VWC", []Field{
		{"Present", 0, 1}, {"FlushBehavior", 1, 2},
	}}

	SANICAPLayout = Layout{"SANICAP", []Field{
		{"CryptoErase", 0, 1}, {"BlockErase", 1, 1}, {"Overwrite", 2, 1},
		{"NDI", 29, 1}, {"NODMMAS", 30, 2},
	}}

	QueueEntrySizeLayout = Layout{"QES", []Field{
		{"Required", 0, 4}, {"Max", 4, 4},
	}}

	FLBASLayout = Layout{"FLBAS", []Field{
		{"Index", 0, 4}, {"Extended", 4, 1},
	}}

	DPSLayout = Layout{"DPS", []Field{
		{"PIT", 0, 3}, {"PIP", 3, 1},
	}}

	CriticalWarningLayout = Layout{"CriticalWarning", []Field{
		{"AvailableSpaceLow", 0, 1}, {"TemperatureThreshold", 1, 1},
		{"ReliabilityDegraded", 2, 1}, {"ReadOnly", 3, 1},
		{"VolatileMemoryBackupFailed", 4, 1},
	}}

	FirmwareAFILayout = Layout{"AFI", []Field{
		{"ActiveSlot", 0, 3}, {"PendingSlot", 4, 3},
	}}
)
