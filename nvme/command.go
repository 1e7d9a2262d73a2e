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

// NVMe submission queue entry and its command specific dwords.

package nvme

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const NVME_COMMAND_SIZE = 64

// Command is a 64-byte NVMe submission queue entry.
type Command struct {
	CDW0  uint32    // Opcode, fused operation, PSDT, command identifier
	NSID  uint32    // Namespace Identifier
	Rsvd  [2]uint32 // ...
	MPTR  uint64    // Metadata Pointer
	PRP1  uint64    // Data Pointer, entry 1
	PRP2  uint64    // Data Pointer, entry 2
	CDW10 uint32
	CDW11 uint32
	CDW12 uint32
	CDW13 uint32
	CDW14 uint32
	CDW15 uint32
} // 64 bytes

// CommandDwords is the opcode specific shape of CDW10 through CDW15.
type CommandDwords interface {
	Dwords() [6]uint32
}

// NewCommand builds a command with the given opcode, namespace and command specific dwords.
func NewCommand(opcode uint8, nsid uint32, d CommandDwords) Command {
	var c Command

	c.SetOpcode(opcode)
	c.NSID = nsid

	if d != nil {
		c.SetSpecific(d)
	}

	return c
}

func (c *Command) Opcode() uint8     { return uint8(Dword0Layout.Get(c.CDW0, "OPC")) }
func (c *Command) Fuse() uint8       { return uint8(Dword0Layout.Get(c.CDW0, "FUSE")) }
func (c *Command) PSDT() uint8       { return uint8(Dword0Layout.Get(c.CDW0, "PSDT")) }
func (c *Command) CommandID() uint16 { return uint16(Dword0Layout.Get(c.CDW0, "CID")) }

func (c *Command) SetOpcode(opc uint8)    { c.CDW0 = Dword0Layout.Set(c.CDW0, "OPC", uint32(opc)) }
func (c *Command) SetFuse(f uint8)        { c.CDW0 = Dword0Layout.Set(c.CDW0, "FUSE", uint32(f)) }
func (c *Command) SetPSDT(p uint8)        { c.CDW0 = Dword0Layout.Set(c.CDW0, "PSDT", uint32(p)) }
func (c *Command) SetCommandID(id uint16) { c.CDW0 = Dword0Layout.Set(c.CDW0, "CID", uint32(id)) }

// Specific returns CDW10 through CDW15.
func (c *Command) Specific() [6]uint32 {
	return [6]uint32{c.CDW10, c.CDW11, c.CDW12, c.CDW13, c.CDW14, c.CDW15}
}

// SetSpecific replaces CDW10 through CDW15.
func (c *Command) SetSpecific(d CommandDwords) {
	dw := d.Dwords()
	c.CDW10, c.CDW11, c.CDW12, c.CDW13, c.CDW14, c.CDW15 = dw[0], dw[1], dw[2], dw[3], dw[4], dw[5]
}

// Bytes serialises the command in little-endian wire order.
func (c Command) Bytes() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(NVME_COMMAND_SIZE)

	// Writes to a bytes.Buffer cannot fail
	_ = binary.Write(buf, binary.LittleEndian, &c)

	return buf.Bytes()
}

// ParseCommand decodes a 64-byte little-endian submission queue entry.
func ParseCommand(b []byte) (Command, error) {
	var c Command

	if len(b) < NVME_COMMAND_SIZE {
		return c, fmt.Errorf("short NVMe command: %d bytes", len(b))
	}

	err := binary.Read(bytes.NewReader(b[:NVME_COMMAND_SIZE]), binary.LittleEndian, &c)

	return c, err
}

// DecodeSpecific interprets CDW10 through CDW15 according to the command's opcode. admin selects
// the admin or NVM command set opcode table. Unknown opcodes decode as General.
func DecodeSpecific(c Command, admin bool) CommandDwords {
	dw := c.Specific()

	if !admin {
		switch c.Opcode() {
		case NVME_NVM_READ, NVME_NVM_WRITE, NVME_NVM_COMPARE, NVME_NVM_WRITE_ZEROES,
			NVME_NVM_WRITE_UNCORRECTABLE, NVME_NVM_VERIFY:
			return decodeReadWrite(dw)
		case NVME_NVM_DATASET_MANAGEMENT:
			return DatasetManagement{
				Ranges:     uint8(CDW10DatasetManagementLayout.Get(dw[0], "NR")),
				Read:       CDW11DatasetManagementLayout.Flag(dw[1], "IDR"),
				Write:      CDW11DatasetManagementLayout.Flag(dw[1], "IDW"),
				Deallocate: CDW11DatasetManagementLayout.Flag(dw[1], "AD"),
			}
		}
		return General(dw)
	}

	switch c.Opcode() {
	case NVME_ADMIN_IDENTIFY:
		return Identify{
			CNS:      uint8(CDW10IdentifyLayout.Get(dw[0], "CNS")),
			CNTID:    uint16(CDW10IdentifyLayout.Get(dw[0], "CNTID")),
			NVMSetID: uint16(CDW11IdentifyLayout.Get(dw[1], "CNSSID")),
			CSI:      uint8(CDW11IdentifyLayout.Get(dw[1], "CSI")),
		}
	case NVME_ADMIN_GET_FEATURES:
		return GetFeatures{
			FID:   uint8(CDW10GetFeaturesLayout.Get(dw[0], "FID")),
			SEL:   uint8(CDW10GetFeaturesLayout.Get(dw[0], "SEL")),
			Value: dw[1],
		}
	case NVME_ADMIN_SET_FEATURES:
		return SetFeatures{
			FID:   uint8(CDW10SetFeaturesLayout.Get(dw[0], "FID")),
			Save:  CDW10SetFeaturesLayout.Flag(dw[0], "SV"),
			Value: dw[1],
			Extra: [4]uint32{dw[2], dw[3], dw[4], dw[5]},
		}
	case NVME_ADMIN_GET_LOG_PAGE:
		numd := CDW10GetLogPageLayout.Get(dw[0], "NUMDL") | CDW11GetLogPageLayout.Get(dw[1], "NUMDU")<<16
		return GetLogPage{
			LID:       uint8(CDW10GetLogPageLayout.Get(dw[0], "LID")),
			LSP:       uint8(CDW10GetLogPageLayout.Get(dw[0], "LSP")),
			RAE:       CDW10GetLogPageLayout.Flag(dw[0], "RAE"),
			Length:    (numd + 1) * 4,
			LSI:       uint16(CDW11GetLogPageLayout.Get(dw[1], "LSI")),
			Offset:    uint64(dw[3])<<32 | uint64(dw[2]),
			UUIDIndex: uint8(CDW14GetLogPageLayout.Get(dw[4], "UUID")),
			CSI:       uint8(CDW14GetLogPageLayout.Get(dw[4], "CSI")),
		}
	case NVME_ADMIN_CREATE_IO_CQ:
		return CreateIOCQ{
			QID:        uint16(CDW10CreateIOQueueLayout.Get(dw[0], "QID")),
			QSize:      uint16(CDW10CreateIOQueueLayout.Get(dw[0], "QSIZE")),
			PhysContig: CDW11CreateIOCQLayout.Flag(dw[1], "PC"),
			IntEnable:  CDW11CreateIOCQLayout.Flag(dw[1], "IEN"),
			IntVector:  uint16(CDW11CreateIOCQLayout.Get(dw[1], "IV")),
		}
	case NVME_ADMIN_CREATE_IO_SQ:
		return CreateIOSQ{
			QID:        uint16(CDW10CreateIOQueueLayout.Get(dw[0], "QID")),
			QSize:      uint16(CDW10CreateIOQueueLayout.Get(dw[0], "QSIZE")),
			PhysContig: CDW11CreateIOSQLayout.Flag(dw[1], "PC"),
			Priority:   uint8(CDW11CreateIOSQLayout.Get(dw[1], "QPRIO")),
			CQID:       uint16(CDW11CreateIOSQLayout.Get(dw[1], "CQID")),
		}
	case NVME_ADMIN_DELETE_IO_CQ, NVME_ADMIN_DELETE_IO_SQ:
		return DeleteQueue{QID: uint16(CDW10DeleteIOQueueLayout.Get(dw[0], "QID"))}
	case NVME_ADMIN_ABORT:
		return Abort{
			SQID: uint8(CDW10AbortLayout.Get(dw[0], "SQID")),
			CID:  uint16(CDW10AbortLayout.Get(dw[0], "CID")),
		}
	case NVME_ADMIN_SECURITY_SEND:
		return SecuritySend(decodeSecurity(dw))
	case NVME_ADMIN_SECURITY_RECEIVE:
		return SecurityReceive(decodeSecurity(dw))
	case NVME_ADMIN_FIRMWARE_DOWNLOAD:
		return FirmwareDownload{Length: (dw[0] + 1) * 4, Offset: dw[1] * 4}
	case NVME_ADMIN_FIRMWARE_COMMIT:
		return FirmwareCommit{
			Slot:   uint8(CDW10FirmwareCommitLayout.Get(dw[0], "FS")),
			Action: uint8(CDW10FirmwareCommitLayout.Get(dw[0], "CA")),
		}
	case NVME_ADMIN_FORMAT_NVM:
		return FormatNVM{
			LBAF:           uint8(CDW10FormatNVMLayout.Get(dw[0], "LBAF")),
			MetadataInline: CDW10FormatNVMLayout.Flag(dw[0], "MS"),
			PI:             uint8(CDW10FormatNVMLayout.Get(dw[0], "PI")),
			PIFirst:        CDW10FormatNVMLayout.Flag(dw[0], "PIL"),
			SES:            uint8(CDW10FormatNVMLayout.Get(dw[0], "SES")),
		}
	case NVME_ADMIN_SANITIZE:
		return Sanitize{
			Action:        uint8(CDW10SanitizeLayout.Get(dw[0], "SANACT")),
			AUSE:          CDW10SanitizeLayout.Flag(dw[0], "AUSE"),
			OverwritePass: uint8(CDW10SanitizeLayout.Get(dw[0], "OWPASS")),
			InvertPattern: CDW10SanitizeLayout.Flag(dw[0], "OIPBP"),
			NoDealloc:     CDW10SanitizeLayout.Flag(dw[0], "NDAS"),
			Pattern:       dw[1],
		}
	}

	return General(dw)
}

// General carries CDW10 through CDW15 verbatim.
type General [6]uint32

func (g General) Dwords() [6]uint32 { return g }

// Identify selects the data structure returned by the Identify command.
type Identify struct {
	CNS      uint8
	CNTID    uint16
	NVMSetID uint16
	CSI      uint8
}

func (i Identify) Dwords() [6]uint32 {
	return [6]uint32{
		CDW10IdentifyLayout.Encode(map[string]uint32{"CNS": uint32(i.CNS), "CNTID": uint32(i.CNTID)}),
		CDW11IdentifyLayout.Encode(map[string]uint32{"CNSSID": uint32(i.NVMSetID), "CSI": uint32(i.CSI)}),
	}
}

type GetFeatures struct {
	FID   uint8
	SEL   uint8
	Value uint32 // Feature specific CDW11
}

func (g GetFeatures) Dwords() [6]uint32 {
	return [6]uint32{GetFeatureCDW10(g.FID, g.SEL), g.Value}
}

type SetFeatures struct {
	FID   uint8
	Save  bool
	Value uint32    // Feature specific CDW11
	Extra [4]uint32 // CDW12 - CDW15
}

func (s SetFeatures) Dwords() [6]uint32 {
	return [6]uint32{SetFeatureCDW10(s.FID, s.Save), s.Value, s.Extra[0], s.Extra[1], s.Extra[2], s.Extra[3]}
}

// GetLogPage requests Length bytes of log page LID starting at byte Offset.
type GetLogPage struct {
	LID       uint8
	LSP       uint8
	RAE       bool
	Length    uint32 // Bytes; multiple of 4
	LSI       uint16
	Offset    uint64
	UUIDIndex uint8
	CSI       uint8
}

// Validate checks that Length can be expressed as a 0's based dword count.
func (g GetLogPage) Validate() error {
	if g.Length < 4 || g.Length%4 != 0 {
		return fmt.Errorf("invalid log page length %d", g.Length)
	}

	return nil
}

func (g GetLogPage) Dwords() [6]uint32 {
	var numd uint32
	if g.Length >= 4 {
		numd = g.Length/4 - 1
	}

	return [6]uint32{
		CDW10GetLogPageLayout.Encode(map[string]uint32{
			"LID": uint32(g.LID), "LSP": uint32(g.LSP), "RAE": b(g.RAE), "NUMDL": numd & 0xffff,
		}),
		CDW11GetLogPageLayout.Encode(map[string]uint32{"NUMDU": numd >> 16, "LSI": uint32(g.LSI)}),
		uint32(g.Offset),
		uint32(g.Offset >> 32),
		CDW14GetLogPageLayout.Encode(map[string]uint32{"UUID": uint32(g.UUIDIndex), "CSI": uint32(g.CSI)}),
	}
}

type CreateIOCQ struct {
	QID        uint16
	QSize      uint16 // 0's based
	PhysContig bool
	IntEnable  bool
	IntVector  uint16
}

func (q CreateIOCQ) Dwords() [6]uint32 {
	return [6]uint32{
		CDW10CreateIOQueueLayout.Encode(map[string]uint32{"QID": uint32(q.QID), "QSIZE": uint32(q.QSize)}),
		CDW11CreateIOCQLayout.Encode(map[string]uint32{
			"PC": b(q.PhysContig), "IEN": b(q.IntEnable), "IV": uint32(q.IntVector),
		}),
	}
}

type CreateIOSQ struct {
	QID        uint16
	QSize      uint16 // 0's based
	PhysContig bool
	Priority   uint8
	CQID       uint16
}

func (q CreateIOSQ) Dwords() [6]uint32 {
	return [6]uint32{
		CDW10CreateIOQueueLayout.Encode(map[string]uint32{"QID": uint32(q.QID), "QSIZE": uint32(q.QSize)}),
		CDW11CreateIOSQLayout.Encode(map[string]uint32{
			"PC": b(q.PhysContig), "QPRIO": uint32(q.Priority), "CQID": uint32(q.CQID),
		}),
	}
}

type DeleteQueue struct {
	QID uint16
}

func (q DeleteQueue) Dwords() [6]uint32 {
	return [6]uint32{CDW10DeleteIOQueueLayout.Encode(map[string]uint32{"QID": uint32(q.QID)})}
}

type Abort struct {
	SQID uint8
	CID  uint16
}

func (a Abort) Dwords() [6]uint32 {
	return [6]uint32{CDW10AbortLayout.Encode(map[string]uint32{"SQID": uint32(a.SQID), "CID": uint32(a.CID)})}
}

type DatasetManagement struct {
	Ranges     uint8 // 0's based
	Read       bool  // Integral dataset for read
	Write      bool  // Integral dataset for write
	Deallocate bool
}

func (d DatasetManagement) Dwords() [6]uint32 {
	return [6]uint32{
		CDW10DatasetManagementLayout.Encode(map[string]uint32{"NR": uint32(d.Ranges)}),
		CDW11DatasetManagementLayout.Encode(map[string]uint32{
			"IDR": b(d.Read), "IDW": b(d.Write), "AD": b(d.Deallocate),
		}),
	}
}

type security struct {
	Protocol   uint8
	SPSpecific uint16
	NSSF       uint8
	Length     uint32 // Transfer / allocation length in bytes
}

func (s security) Dwords() [6]uint32 {
	return [6]uint32{
		CDW10SecurityLayout.Encode(map[string]uint32{
			"NSSF": uint32(s.NSSF), "SPSP": uint32(s.SPSpecific), "SECP": uint32(s.Protocol),
		}),
		s.Length,
	}
}

func decodeSecurity(dw [6]uint32) security {
	return security{
		Protocol:   uint8(CDW10SecurityLayout.Get(dw[0], "SECP")),
		SPSpecific: uint16(CDW10SecurityLayout.Get(dw[0], "SPSP")),
		NSSF:       uint8(CDW10SecurityLayout.Get(dw[0], "NSSF")),
		Length:     dw[1],
	}
}

type SecuritySend security
type SecurityReceive security

func (s SecuritySend) Dwords() [6]uint32    { return security(s).Dwords() }
func (s SecurityReceive) Dwords() [6]uint32 { return security(s).Dwords() }

// FirmwareDownload transfers Length bytes of an image at byte Offset. Both must be dword aligned.
type FirmwareDownload struct {
	Length uint32
	Offset uint32
}

func (f FirmwareDownload) Dwords() [6]uint32 {
	var numd uint32
	if f.Length >= 4 {
		numd = f.Length/4 - 1
	}

	return [6]uint32{numd, f.Offset / 4}
}

type FirmwareCommit struct {
	Slot   uint8
	Action uint8
}

func (f FirmwareCommit) Dwords() [6]uint32 {
	return [6]uint32{CDW10FirmwareCommitLayout.Encode(map[string]uint32{
		"FS": uint32(f.Slot), "CA": uint32(f.Action),
	})}
}

type FormatNVM struct {
	LBAF           uint8
	MetadataInline bool
	PI             uint8
	PIFirst        bool
	SES            uint8
}

func (f FormatNVM) Dwords() [6]uint32 {
	return [6]uint32{CDW10FormatNVMLayout.Encode(map[string]uint32{
		"LBAF": uint32(f.LBAF), "MS": b(f.MetadataInline), "PI": uint32(f.PI),
		"PIL": b(f.PIFirst), "SES": uint32(f.SES),
	})}
}

type Sanitize struct {
	Action        uint8
	AUSE          bool
	OverwritePass uint8
	InvertPattern bool
	NoDealloc     bool
	Pattern       uint32
}

func (s Sanitize) Dwords() [6]uint32 {
	return [6]uint32{
		CDW10SanitizeLayout.Encode(map[string]uint32{
			"SANACT": uint32(s.Action), "AUSE": b(s.AUSE), "OWPASS": uint32(s.OverwritePass),
			"OIPBP": b(s.InvertPattern), "NDAS": b(s.NoDealloc),
		}),
		s.Pattern,
	}
}

// ReadWrite is the command specific region shared by the NVM read, write, compare and verify
// commands.
type ReadWrite struct {
	SLBA   uint64
	NLB    uint16 // 0's based
	DTYPE  uint8
	PRINFO uint8
	FUA    bool
	LR     bool
	DSM    uint8
	DSPEC  uint16
	ILBRT  uint32
	LBAT   uint16
	LBATM  uint16
}

func (r ReadWrite) Dwords() [6]uint32 {
	return [6]uint32{
		uint32(r.SLBA),
		uint32(r.SLBA >> 32),
		CDW12ReadWriteLayout.Encode(map[string]uint32{
			"NLB": uint32(r.NLB), "DTYPE": uint32(r.DTYPE), "PRINFO": uint32(r.PRINFO),
			"FUA": b(r.FUA), "LR": b(r.LR),
		}),
		CDW13ReadWriteLayout.Encode(map[string]uint32{"DSM": uint32(r.DSM), "DSPEC": uint32(r.DSPEC)}),
		r.ILBRT,
		CDW15ReadWriteLayout.Encode(map[string]uint32{"ELBAT": uint32(r.LBAT), "ELBATM": uint32(r.LBATM)}),
	}
}

func decodeReadWrite(dw [6]uint32) ReadWrite {
	return ReadWrite{
		SLBA:   uint64(dw[1])<<32 | uint64(dw[0]),
		NLB:    uint16(CDW12ReadWriteLayout.Get(dw[2], "NLB")),
		DTYPE:  uint8(CDW12ReadWriteLayout.Get(dw[2], "DTYPE")),
		PRINFO: uint8(CDW12ReadWriteLayout.Get(dw[2], "PRINFO")),
		FUA:    CDW12ReadWriteLayout.Flag(dw[2], "FUA"),
		LR:     CDW12ReadWriteLayout.Flag(dw[2], "LR"),
		DSM:    uint8(CDW13ReadWriteLayout.Get(dw[3], "DSM")),
		DSPEC:  uint16(CDW13ReadWriteLayout.Get(dw[3], "DSPEC")),
		ILBRT:  dw[4],
		LBAT:   uint16(CDW15ReadWriteLayout.Get(dw[5], "ELBAT")),
		LBATM:  uint16(CDW15ReadWriteLayout.Get(dw[5], "ELBATM")),
	}
}
