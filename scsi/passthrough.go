// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI pass-through request envelope and sense data.

package scsi

import (
	"fmt"
	"unsafe"
)

const (
	SCSI_IOCTL_DATA_OUT         = 0
	SCSI_IOCTL_DATA_IN          = 1
	SCSI_IOCTL_DATA_UNSPECIFIED = 2

	// Timeout in seconds
	DEFAULT_TIMEOUT = 10

	SENSE_BUF_LEN = 32

	// Data buffer alignment. The adapter's real alignment mask is not known, so use the largest
	// one any storage adapter reports.
	BUFFER_ALIGNMENT = 64

	// SCSI status codes
	SAM_STAT_GOOD            = 0x00
	SAM_STAT_CHECK_CONDITION = 0x02
	SAM_STAT_BUSY            = 0x08
)

// PassThrough issues one CDB with a caller supplied data buffer. dataIn is one of the
// SCSI_IOCTL_DATA_* directions. Sense data, if any, is copied into sense. It is implemented by the
// ioctl package.
type PassThrough interface {
	PassThroughDirect(cdb []byte, dataIn uint8, data []byte, sense []byte, timeout uint32) (transferred uint32, scsiStatus uint8, err error)
}

// SenseError is returned when a command completes with a non-good SCSI status.
type SenseError struct {
	ScsiStatus uint8
	Opcode     uint8
	Sense      [SENSE_BUF_LEN]byte
}

// SenseKey, ASC and ASCQ decode fixed (0x70/0x71) and descriptor (0x72/0x73) format sense data.
func (e SenseError) SenseKey() uint8 {
	switch e.Sense[0] & 0x7f {
	case 0x70, 0x71:
		return e.Sense[2] & 0x0f
	case 0x72, 0x73:
		return e.Sense[1] & 0x0f
	}

	return 0
}

func (e SenseError) ASC() (asc, ascq uint8) {
	switch e.Sense[0] & 0x7f {
	case 0x70, 0x71:
		return e.Sense[12], e.Sense[13]
	case 0x72, 0x73:
		return e.Sense[2], e.Sense[3]
	}

	return 0, 0
}

func (e SenseError) Error() string {
	asc, ascq := e.ASC()

	return fmt.Sprintf("SCSI opcode %#02x: SCSI status: %#02x, sense key: %#x, asc/ascq: %#02x/%#02x",
		e.Opcode, e.ScsiStatus, e.SenseKey(), asc, ascq)
}

// AlignedBuffer returns an n-byte slice whose first element is BUFFER_ALIGNMENT aligned.
func AlignedBuffer(n int) []byte {
	buf := make([]byte, n+BUFFER_ALIGNMENT)
	off := 0

	if rem := int(uintptr(unsafe.Pointer(&buf[0])) & (BUFFER_ALIGNMENT - 1)); rem != 0 {
		off = BUFFER_ALIGNMENT - rem
	}

	return buf[off : off+n : off+n]
}
