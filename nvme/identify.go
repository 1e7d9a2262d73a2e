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

// NVMe Identify data structures.

package nvme

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/dswarbrick/nvmectl/utils"
)

type PowerStateDescriptor struct {
	MaxPower        uint16 // Centiwatts, or 0.0001 W units when MPS is set
	Rsvd2           uint8
	Flags           uint8  // Bit 0 MPS, bit 1 NOPS
	EntryLat        uint32 // Microseconds
	ExitLat         uint32 // Microseconds
	ReadTput        uint8  // Relative Read Throughput
	ReadLat         uint8  // Relative Read Latency
	WriteTput       uint8  // Relative Write Throughput
	WriteLat        uint8  // Relative Write Latency
	IdlePower       uint16
	IdleScale       uint8 // Bits 7:6
	Rsvd19          uint8
	ActivePower     uint16
	ActiveWorkScale uint8 // Bits 2:0 APW, bits 7:6 APS
	Rsvd23          [9]byte
} // 32 bytes

// MaxPowerWatts returns the maximum power draw of the state, honouring the power scale bit.
func (p PowerStateDescriptor) MaxPowerWatts() float64 {
	if p.Flags&1 != 0 {
		return float64(p.MaxPower) * 0.0001
	}

	return float64(p.MaxPower) * 0.01
}

func (p PowerStateDescriptor) NonOperational() bool { return p.Flags&2 != 0 }

func (p PowerStateDescriptor) RelativeReadThroughput() uint8  { return p.ReadTput & 0x1f }
func (p PowerStateDescriptor) RelativeReadLatency() uint8     { return p.ReadLat & 0x1f }
func (p PowerStateDescriptor) RelativeWriteThroughput() uint8 { return p.WriteTput & 0x1f }
func (p PowerStateDescriptor) RelativeWriteLatency() uint8    { return p.WriteLat & 0x1f }
func (p PowerStateDescriptor) IdlePowerScale() uint8          { return p.IdleScale >> 6 }
func (p PowerStateDescriptor) ActivePowerWorkload() uint8     { return p.ActiveWorkScale & 0x7 }
func (p PowerStateDescriptor) ActivePowerScale() uint8        { return p.ActiveWorkScale >> 6 }

type IdentifyController struct {
	VendorID     uint16   // PCI Vendor ID
	Ssvid        uint16   // PCI Subsystem Vendor ID
	SerialNumber [20]byte // Serial Number
	ModelNumber  [40]byte // Model Number
	Firmware     [8]byte  // Firmware Revision
	Rab          uint8    // Recommended Arbitration Burst
	IEEE         [3]byte  // IEEE OUI Identifier
	Cmic         uint8    // Controller Multi-Path I/O and Namespace Sharing Capabilities
	Mdts         uint8    // Maximum Data Transfer Size
	Cntlid       uint16   // Controller ID
	Ver          uint32   // Version
	Rtd3r        uint32   // RTD3 Resume Latency
	Rtd3e        uint32   // RTD3 Entry Latency
	Oaes         uint32   // Optional Asynchronous Events Supported
	Ctratt       uint32   // Controller Attributes
	Rrls         uint16   // Read Recovery Levels Supported
	Rsvd102      [9]byte  // ...
	Cntrltype    uint8    // Controller Type
	Fguid        [16]byte // FRU Globally Unique Identifier
	Crdt1        uint16   // Command Retry Delay Time 1
	Crdt2        uint16   // Command Retry Delay Time 2
	Crdt3        uint16   // Command Retry Delay Time 3
	Rsvd134      [106]byte
	Rsvd240      [16]byte // NVMe Management Interface
	Oacs         uint16   // Optional Admin Command Support
	Acl          uint8    // Abort Command Limit
	Aerl         uint8    // Asynchronous Event Request Limit
	Frmw         uint8    // Firmware Updates
	Lpa          uint8    // Log Page Attributes
	Elpe         uint8    // Error Log Page Entries
	Npss         uint8    // Number of Power States Support
	Avscc        uint8    // Admin Vendor Specific Command Configuration
	Apsta        uint8    // Autonomous Power State Transition Attributes
	Wctemp       uint16   // Warning Composite Temperature Threshold
	Cctemp       uint16   // Critical Composite Temperature Threshold
	Mtfa         uint16   // Maximum Time for Firmware Activation
	Hmpre        uint32   // Host Memory Buffer Preferred Size
	Hmmin        uint32   // Host Memory Buffer Minimum Size
	Tnvmcap      [16]byte // Total NVM Capacity
	Unvmcap      [16]byte // Unallocated NVM Capacity
	Rpmbs        uint32   // Replay Protected Memory Block Support
	Edstt        uint16   // Extended Device Self-test Time
	Dsto         uint8    // Device Self-test Options
	Fwug         uint8    // Firmware Update Granularity
	Kas          uint16   // Keep Alive Support
	Hctma        uint16   // Host Controlled Thermal Management Attributes
	Mntmt        uint16   // Minimum Thermal Management Temperature
	Mxtmt        uint16   // Maximum Thermal Management Temperature
	Sanicap      uint32   // Sanitize Capabilities
	Hmminds      uint32   // Host Memory Buffer Minimum Descriptor Entry Size
	Hmmaxd       uint16   // Host Memory Maximum Descriptors Entries
	Nsetidmax    uint16   // NVM Set Identifier Maximum
	Endgidmax    uint16   // Endurance Group Identifier Maximum
	Anatt        uint8    // ANA Transition Time
	Anacap       uint8    // Asymmetric Namespace Access Capabilities
	Anagrpmax    uint32   // ANA Group Identifier Maximum
	Nanagrpid    uint32   // Number of ANA Group Identifiers
	Pels         uint32   // Persistent Event Log Size
	Rsvd356      [156]byte
	Sqes         uint8  // Submission Queue Entry Size
	Cqes         uint8  // Completion Queue Entry Size
	Maxcmd       uint16 // Maximum Outstanding Commands
	Nn           uint32 // Number of Namespaces
	Oncs         uint16 // Optional NVM Command Support
	Fuses        uint16 // Fused Operation Support
	Fna          uint8  // Format NVM Attributes
	Vwc          uint8  // Volatile Write Cache
	Awun         uint16 // Atomic Write Unit Normal
	Awupf        uint16 // Atomic Write Unit Power Fail
	Nvscc        uint8  // NVM Vendor Specific Command Configuration
	Nwpc         uint8  // Namespace Write Protection Capabilities
	Acwu         uint16 // Atomic Compare & Write Unit
	Rsvd534      [2]byte
	Sgls         uint32 // SGL Support
	Mnan         uint32 // Maximum Number of Allowed Namespaces
	Rsvd544      [224]byte
	Subnqn       [256]byte // NVM Subsystem NVMe Qualified Name
	Rsvd1024     [768]byte
	Rsvd1792     [256]byte               // NVMe over Fabrics
	Psd          [32]PowerStateDescriptor // Power State Descriptors
	Vs           [1024]byte              // Vendor Specific
} // 4096 bytes

func (c *IdentifyController) Serial() string   { return utils.TrimASCII(c.SerialNumber[:]) }
func (c *IdentifyController) Model() string    { return utils.TrimASCII(c.ModelNumber[:]) }
func (c *IdentifyController) Revision() string { return utils.TrimASCII(c.Firmware[:]) }
func (c *IdentifyController) NQN() string      { return utils.TrimASCII(c.Subnqn[:]) }

// Version renders VER as "major.minor.tertiary". Controllers older than 1.2 report zero.
func (c *IdentifyController) Version() string {
	if c.Ver == 0 {
		return "unknown"
	}

	return fmt.Sprintf("%d.%d.%d", c.Ver>>16, (c.Ver>>8)&0xff, c.Ver&0xff)
}

// OUI returns the IEEE OUI in its conventional most-significant-first order.
func (c *IdentifyController) OUI() uint32 {
	return uint32(c.IEEE[2])<<16 | uint32(c.IEEE[1])<<8 | uint32(c.IEEE[0])
}

func (c *IdentifyController) TotalCapacity() *big.Int {
	return utils.Le128ToBigInt(c.Tnvmcap)
}

func (c *IdentifyController) UnallocatedCapacity() *big.Int {
	return utils.Le128ToBigInt(c.Unvmcap)
}

// MaxTransferPages returns the maximum data transfer size in units of the minimum memory page
// size, or 0 when the controller reports no limit.
func (c *IdentifyController) MaxTransferPages() uint64 {
	if c.Mdts == 0 {
		return 0
	}

	return 1 << c.Mdts
}

// PowerStates returns the NPSS+1 supported power state descriptors.
func (c *IdentifyController) PowerStates() []PowerStateDescriptor {
	n := int(c.Npss) + 1
	if n > len(c.Psd) {
		n = len(c.Psd)
	}

	return c.Psd[:n]
}

func (c *IdentifyController) AdminCommands() map[string]uint32 { return OACSLayout.Decode(uint32(c.Oacs)) }
func (c *IdentifyController) NVMCommands() map[string]uint32   { return ONCSLayout.Decode(uint32(c.Oncs)) }
func (c *IdentifyController) SanitizeCaps() map[string]uint32  { return SANICAPLayout.Decode(c.Sanicap) }

func (c *IdentifyController) FirmwareSlots() uint8 {
	return uint8(FRMWLayout.Get(uint32(c.Frmw), "SlotCount"))
}

func (c *IdentifyController) VolatileWriteCachePresent() bool {
	return VWCLayout.Flag(uint32(c.Vwc), "Present")
}

// CompositeTempWarning returns WCTEMP in degrees Celsius.
func (c *IdentifyController) CompositeTempWarning() int {
	return kelvinToCelsius(c.Wctemp)
}

// CompositeTempCritical returns CCTEMP in degrees Celsius.
func (c *IdentifyController) CompositeTempCritical() int {
	return kelvinToCelsius(c.Cctemp)
}

type LBAFormat struct {
	Ms    uint16 // Metadata Size
	Lbads uint8  // LBA Data Size, as a power of two
	Rp    uint8  // Relative Performance, bits 1:0
} // 4 bytes

// BlockSize returns the LBA data size in bytes, or 0 when the format is not in use.
func (f LBAFormat) BlockSize() uint64 {
	if f.Lbads < 9 {
		return 0
	}

	return 1 << f.Lbads
}

func (f LBAFormat) RelativePerformance() uint8 { return f.Rp & 3 }

type IdentifyNamespace struct {
	Nsze     uint64   // Namespace Size
	Ncap     uint64   // Namespace Capacity
	Nuse     uint64   // Namespace Utilization
	Nsfeat   uint8    // Namespace Features
	Nlbaf    uint8    // Number of LBA Formats
	Flbas    uint8    // Formatted LBA Size
	Mc       uint8    // Metadata Capabilities
	Dpc      uint8    // End-to-end Data Protection Capabilities
	Dps      uint8    // End-to-end Data Protection Type Settings
	Nmic     uint8    // Namespace Multi-path I/O and Namespace Sharing Capabilities
	Rescap   uint8    // Reservation Capabilities
	Fpi      uint8    // Format Progress Indicator
	Dlfeat   uint8    // Deallocate Logical Block Features
	Nawun    uint16   // Namespace Atomic Write Unit Normal
	Nawupf   uint16   // Namespace Atomic Write Unit Power Fail
	Nacwu    uint16   // Namespace Atomic Compare & Write Unit
	Nabsn    uint16   // Namespace Atomic Boundary Size Normal
	Nabo     uint16   // Namespace Atomic Boundary Offset
	Nabspf   uint16   // Namespace Atomic Boundary Size Power Fail
	Noiob    uint16   // Namespace Optimal IO Boundary
	Nvmcap   [16]byte // NVM Capacity
	Npwg     uint16   // Namespace Preferred Write Granularity
	Npwa     uint16   // Namespace Preferred Write Alignment
	Npdg     uint16   // Namespace Preferred Deallocate Granularity
	Npda     uint16   // Namespace Preferred Deallocate Alignment
	Nows     uint16   // Namespace Optimal Write Size
	Mssrl    uint16   // Maximum Single Source Range Length
	Mcl      uint32   // Maximum Copy Length
	Msrc     uint8    // Maximum Source Range Count
	Rsvd81   [11]byte
	Anagrpid uint32 // ANA Group Identifier
	Rsvd96   [3]byte
	Nsattr   uint8    // Namespace Attributes
	Nvmsetid uint16   // NVM Set Identifier
	Endgid   uint16   // Endurance Group Identifier
	Nguid    [16]byte // Namespace Globally Unique Identifier
	EUI64    [8]byte  // IEEE Extended Unique Identifier
	Lbaf     [16]LBAFormat
	Rsvd192  [192]byte
	Vs       [3712]byte
} // 4096 bytes

// FormattedLBA returns the LBA format currently in use.
func (ns *IdentifyNamespace) FormattedLBA() LBAFormat {
	return ns.Lbaf[FLBASLayout.Get(uint32(ns.Flbas), "Index")]
}

// LBAFormats returns the NLBAF+1 supported LBA formats.
func (ns *IdentifyNamespace) LBAFormats() []LBAFormat {
	n := int(ns.Nlbaf) + 1
	if n > len(ns.Lbaf) {
		n = len(ns.Lbaf)
	}

	return ns.Lbaf[:n]
}

// SizeBytes returns the namespace size in bytes using the formatted block size.
func (ns *IdentifyNamespace) SizeBytes() uint64 {
	return ns.Nsze * ns.FormattedLBA().BlockSize()
}

// UsedBytes returns the namespace utilisation in bytes.
func (ns *IdentifyNamespace) UsedBytes() uint64 {
	return ns.Nuse * ns.FormattedLBA().BlockSize()
}

func (ns *IdentifyNamespace) Capacity() *big.Int {
	return utils.Le128ToBigInt(ns.Nvmcap)
}

func (ns *IdentifyNamespace) Shared() bool        { return ns.Nmic&1 != 0 }
func (ns *IdentifyNamespace) WriteProtected() bool { return ns.Nsattr&1 != 0 }

// FormatProgress returns the percentage of the namespace remaining to be formatted, and whether
// the controller reports format progress at all.
func (ns *IdentifyNamespace) FormatProgress() (uint8, bool) {
	return ns.Fpi & 0x7f, ns.Fpi&0x80 != 0
}

// ParseIdentifyController decodes a 4096-byte Identify Controller data structure.
func ParseIdentifyController(buf []byte) (*IdentifyController, error) {
	var c IdentifyController

	if err := decodeLE(buf, NVME_IDENTIFY_SIZE, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

// ParseIdentifyNamespace decodes a 4096-byte Identify Namespace data structure.
func ParseIdentifyNamespace(buf []byte) (*IdentifyNamespace, error) {
	var ns IdentifyNamespace

	if err := decodeLE(buf, NVME_IDENTIFY_SIZE, &ns); err != nil {
		return nil, err
	}

	return &ns, nil
}

// DecodeNamespaceList decodes an Identify namespace list. Entries are little-endian namespace ids;
// the list ends at the first zero entry.
func DecodeNamespaceList(buf []byte) []uint32 {
	var list []uint32

	for i := 0; i+4 <= len(buf); i += 4 {
		nsid := binary.LittleEndian.Uint32(buf[i:])
		if nsid == 0 {
			break
		}
		list = append(list, nsid)
	}

	return list
}

func decodeLE(buf []byte, size int, v interface{}) error {
	if len(buf) < size {
		return fmt.Errorf("short buffer: got %d bytes, want %d", len(buf), size)
	}

	return binary.Read(bytes.NewReader(buf[:size]), binary.LittleEndian, v)
}

func kelvinToCelsius(k uint16) int {
	if k == 0 {
		return 0
	}

	return int(k) - 273
}
