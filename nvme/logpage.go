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

// NVMe log page structures.

package nvme

import (
	"math/big"

	"github.com/dswarbrick/nvmectl/utils"
)

// HealthLog is the SMART / Health Information log page (LID 0x02).
type HealthLog struct {
	CritWarning      uint8
	Temperature      [2]uint8 // Composite temperature, Kelvin
	AvailSpare       uint8
	SpareThresh      uint8
	PercentUsed      uint8
	EGCritWarning    uint8 // Endurance Group Critical Warning Summary
	Rsvd7            [25]byte
	DataUnitsRead    [16]byte
	DataUnitsWritten [16]byte
	HostReads        [16]byte
	HostWrites       [16]byte
	CtrlBusyTime     [16]byte
	PowerCycles      [16]byte
	PowerOnHours     [16]byte
	UnsafeShutdowns  [16]byte
	MediaErrors      [16]byte
	NumErrLogEntries [16]byte
	WarningTempTime  uint32
	CritCompTime     uint32
	TempSensor       [8]uint16
	Rsvd216          [296]byte
} // 512 bytes

// ParseHealthLog decodes the first 512 bytes of buf.
func ParseHealthLog(buf []byte) (*HealthLog, error) {
	var sl HealthLog

	if err := decodeLE(buf, 512, &sl); err != nil {
		return nil, err
	}

	return &sl, nil
}

// TemperatureCelsius returns the composite temperature in degrees Celsius.
func (sl *HealthLog) TemperatureCelsius() int {
	return kelvinToCelsius(uint16(sl.Temperature[1])<<8 | uint16(sl.Temperature[0]))
}

// SensorCelsius returns the readings of the implemented temperature sensors (1-8), in degrees
// Celsius. Unimplemented sensors report zero and are omitted.
func (sl *HealthLog) SensorCelsius() map[int]int {
	m := make(map[int]int)

	for i, k := range sl.TempSensor {
		if k != 0 {
			m[i+1] = kelvinToCelsius(k)
		}
	}

	return m
}

// CriticalWarnings returns the set critical warning bits by name.
func (sl *HealthLog) CriticalWarnings() []string {
	var w []string

	for _, f := range CriticalWarningLayout.Fields {
		if f.Get(uint32(sl.CritWarning)) != 0 {
			w = append(w, f.Name)
		}
	}

	return w
}

// BytesRead converts data units read (thousands of 512-byte units) to bytes.
func (sl *HealthLog) BytesRead() *big.Int {
	return dataUnitsToBytes(sl.DataUnitsRead)
}

// BytesWritten converts data units written (thousands of 512-byte units) to bytes.
func (sl *HealthLog) BytesWritten() *big.Int {
	return dataUnitsToBytes(sl.DataUnitsWritten)
}

// Counters returns the 128-bit counters by name, in log page order.
func (sl *HealthLog) Counters() []Counter {
	return []Counter{
		{"Data Units Read", utils.Le128ToBigInt(sl.DataUnitsRead)},
		{"Data Units Written", utils.Le128ToBigInt(sl.DataUnitsWritten)},
		{"Host Read Commands", utils.Le128ToBigInt(sl.HostReads)},
		{"Host Write Commands", utils.Le128ToBigInt(sl.HostWrites)},
		{"Controller Busy Time", utils.Le128ToBigInt(sl.CtrlBusyTime)},
		{"Power Cycles", utils.Le128ToBigInt(sl.PowerCycles)},
		{"Power On Hours", utils.Le128ToBigInt(sl.PowerOnHours)},
		{"Unsafe Shutdowns", utils.Le128ToBigInt(sl.UnsafeShutdowns)},
		{"Media and Data Integrity Errors", utils.Le128ToBigInt(sl.MediaErrors)},
		{"Error Information Log Entries", utils.Le128ToBigInt(sl.NumErrLogEntries)},
	}
}

type Counter struct {
	Name  string
	Value *big.Int
}

func dataUnitsToBytes(v [16]byte) *big.Int {
	return new(big.Int).Mul(utils.Le128ToBigInt(v), big.NewInt(512*1000))
}

// ErrorInfoEntry is one 64-byte entry of the Error Information log page (LID 0x01).
type ErrorInfoEntry struct {
	ErrorCount  uint64
	SQID        uint16
	CmdID       uint16
	Status      uint16 // Bit 0 phase tag, bits 15:1 status field
	ParamErrLoc uint16 // Bits 7:0 byte, bits 10:8 bit
	LBA         uint64
	NSID        uint32
	VSIA        uint8 // Vendor Specific Information Available
	Trtype      uint8
	Rsvd30      [2]byte
	CSI         uint64 // Command Specific Information
	TTSI        uint16 // Transport Type Specific Information
	Rsvd42      [22]byte
} // 64 bytes

// CompletionStatus returns the status field in the layout of a completion queue entry.
func (e ErrorInfoEntry) CompletionStatus() Status {
	return Status(e.Status)
}

func (e ErrorInfoEntry) ParamErrorByte() uint16 { return e.ParamErrLoc & 0xff }
func (e ErrorInfoEntry) ParamErrorBit() uint8   { return uint8(e.ParamErrLoc>>8) & 0x7 }

// ParseErrorLog decodes as many whole entries as buf holds, omitting entries with a zero error
// count.
func ParseErrorLog(buf []byte) ([]ErrorInfoEntry, error) {
	var entries []ErrorInfoEntry

	for off := 0; off+64 <= len(buf); off += 64 {
		var e ErrorInfoEntry

		if err := decodeLE(buf[off:], 64, &e); err != nil {
			return entries, err
		}

		if e.ErrorCount != 0 {
			entries = append(entries, e)
		}
	}

	return entries, nil
}

// FirmwareSlotLog is the Firmware Slot Information log page (LID 0x03).
type FirmwareSlotLog struct {
	AFI    uint8 // Active Firmware Info
	Rsvd1  [7]byte
	FRS    [7][8]byte // Firmware Revision for Slot 1 - 7
	Rsvd64 [448]byte
} // 512 bytes

func ParseFirmwareSlotLog(buf []byte) (*FirmwareSlotLog, error) {
	var fw FirmwareSlotLog

	if err := decodeLE(buf, 512, &fw); err != nil {
		return nil, err
	}

	return &fw, nil
}

func (fw *FirmwareSlotLog) ActiveSlot() uint8 {
	return uint8(FirmwareAFILayout.Get(uint32(fw.AFI), "ActiveSlot"))
}

// PendingSlot returns the slot to be activated at the next reset, or 0 if none.
func (fw *FirmwareSlotLog) PendingSlot() uint8 {
	return uint8(FirmwareAFILayout.Get(uint32(fw.AFI), "PendingSlot"))
}

// Revisions returns the firmware revision of each populated slot, keyed by slot number.
func (fw *FirmwareSlotLog) Revisions() map[int]string {
	m := make(map[int]string)

	for i, r := range fw.FRS {
		if s := utils.TrimASCII(r[:]); s != "" {
			m[i+1] = s
		}
	}

	return m
}
