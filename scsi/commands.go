// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI command definitions.

package scsi

const (
	// SCSI commands used by this package
	SCSI_TEST_UNIT_READY       = 0x00
	SCSI_INQUIRY               = 0x12
	SCSI_READ_CAPACITY_10      = 0x25
	SCSI_READ_10               = 0x28
	SCSI_WRITE_10              = 0x2a
	SCSI_READ_16               = 0x88
	SCSI_WRITE_16              = 0x8a
	SCSI_SERVICE_ACTION_IN_16  = 0x9e
	SCSI_SECURITY_PROTOCOL_IN  = 0xa2
	SCSI_SECURITY_PROTOCOL_OUT = 0xb5

	// Service actions of SERVICE ACTION IN (16)
	SAI_READ_CAPACITY_16 = 0x10

	// Read / write CDB flags
	SCSI_FL_FUA_NV = 0x02
	SCSI_FL_FUA    = 0x08
	SCSI_FL_DPO    = 0x10

	// Minimum length of standard INQUIRY response
	INQ_REPLY_LEN = 36

	// READ CAPACITY (16) parameter data length
	READ_CAPACITY_16_LEN = 32

	// Security protocols
	SECURITY_PROTOCOL_INFO = 0x00
	SECURITY_PROTOCOL_TCG  = 0x01

	// Logical block size assumed for read / write length rounding
	SECTOR_SIZE  = 512
	SECTOR_SHIFT = 9
)

// SCSI CDB types
type CDB6 [6]byte
type CDB10 [10]byte
type CDB12 [12]byte
type CDB16 [16]byte
