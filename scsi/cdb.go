// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Big-endian CDB encoding.

package scsi

import (
	"encoding/binary"
	"fmt"
)

// ReadWrite16 is the layout shared by READ (16) and WRITE (16).
type ReadWrite16 struct {
	Opcode  uint8
	Flags   uint8
	LBA     uint64
	Length  uint32 // Transfer length in blocks, as sent on the wire
	Group   uint8
	Control uint8
}

func (c ReadWrite16) CDB() CDB16 {
	var cdb CDB16

	cdb[0] = c.Opcode
	cdb[1] = c.Flags
	binary.BigEndian.PutUint64(cdb[2:], c.LBA)
	binary.BigEndian.PutUint32(cdb[10:], c.Length)
	cdb[14] = c.Group
	cdb[15] = c.Control

	return cdb
}

func DecodeReadWrite16(cdb CDB16) ReadWrite16 {
	return ReadWrite16{
		Opcode:  cdb[0],
		Flags:   cdb[1],
		LBA:     binary.BigEndian.Uint64(cdb[2:]),
		Length:  binary.BigEndian.Uint32(cdb[10:]),
		Group:   cdb[14],
		Control: cdb[15],
	}
}

// Security12 is the layout shared by SECURITY PROTOCOL IN and SECURITY PROTOCOL OUT.
type Security12 struct {
	Opcode     uint8
	Protocol   uint8
	SPSpecific uint16 // ComID for TCG protocols
	Length     uint32
	Control    uint8
}

func (c Security12) CDB() CDB12 {
	var cdb CDB12

	cdb[0] = c.Opcode
	cdb[1] = c.Protocol
	binary.BigEndian.PutUint16(cdb[2:], c.SPSpecific)
	// Bytes 4-5 reserved
	binary.BigEndian.PutUint32(cdb[6:], c.Length)
	// Byte 10 reserved
	cdb[11] = c.Control

	return cdb
}

func DecodeSecurity12(cdb CDB12) Security12 {
	return Security12{
		Opcode:     cdb[0],
		Protocol:   cdb[1],
		SPSpecific: binary.BigEndian.Uint16(cdb[2:]),
		Length:     binary.BigEndian.Uint32(cdb[6:]),
		Control:    cdb[11],
	}
}

// ReadCapacity16CDB builds SERVICE ACTION IN (16) / READ CAPACITY (16).
func ReadCapacity16CDB(allocLen uint32) CDB16 {
	var cdb CDB16

	cdb[0] = SCSI_SERVICE_ACTION_IN_16
	cdb[1] = SAI_READ_CAPACITY_16
	binary.BigEndian.PutUint32(cdb[10:], allocLen)

	return cdb
}

// Capacity is the READ CAPACITY (16) parameter data.
type Capacity struct {
	LastLBA           uint64
	BlockLength       uint32
	ProtectionType    uint8 // 0 when protection is disabled
	LogicalPerPhysExp uint8
	LowestAlignedLBA  uint16
}

// Blocks returns the number of logical blocks.
func (c Capacity) Blocks() uint64 { return c.LastLBA + 1 }

// Bytes returns the capacity in bytes.
func (c Capacity) Bytes() uint64 { return c.Blocks() * uint64(c.BlockLength) }

func DecodeReadCapacity16(buf []byte) (Capacity, error) {
	if len(buf) < READ_CAPACITY_16_LEN {
		return Capacity{}, fmt.Errorf("short READ CAPACITY (16) data: %d bytes", len(buf))
	}

	c := Capacity{
		LastLBA:           binary.BigEndian.Uint64(buf[0:]),
		BlockLength:       binary.BigEndian.Uint32(buf[8:]),
		LogicalPerPhysExp: buf[13] & 0x0f,
		LowestAlignedLBA:  binary.BigEndian.Uint16(buf[14:]) & 0x3fff,
	}

	if buf[12]&1 != 0 {
		c.ProtectionType = (buf[12]>>1)&0x7 + 1
	}

	return c, nil
}

// InquiryCDB builds a standard INQUIRY.
func InquiryCDB(allocLen uint16) CDB6 {
	var cdb CDB6

	cdb[0] = SCSI_INQUIRY
	binary.BigEndian.PutUint16(cdb[3:], allocLen)

	return cdb
}

// TestUnitReadyCDB builds TEST UNIT READY.
func TestUnitReadyCDB() CDB6 {
	return CDB6{SCSI_TEST_UNIT_READY}
}

// SectorLength rounds a byte count up to whole 512-byte sectors and returns the rounded length
// together with the transfer length field sent in the CDB (rounded blocks minus one). n must be
// non-zero.
func SectorLength(n int) (length int, blocks uint32) {
	length = n - 1
	length += SECTOR_SIZE - length%SECTOR_SIZE
	blocks = uint32(length>>SECTOR_SHIFT) - 1

	return length, blocks
}
