// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Implementation of the Windows CTL_CODE macro (<winioctl.h>) and the control codes used by this
// package.

package ioctl

const (
	// Device types
	FILE_DEVICE_CONTROLLER   = 0x04
	FILE_DEVICE_DISK         = 0x07
	FILE_DEVICE_MASS_STORAGE = 0x2d
	IOCTL_VOLUME_BASE        = 0x56
	IOCTL_SCSI_BASE          = FILE_DEVICE_CONTROLLER
	IOCTL_DISK_BASE          = FILE_DEVICE_DISK
	IOCTL_STORAGE_BASE       = FILE_DEVICE_MASS_STORAGE

	// Transfer methods
	METHOD_BUFFERED   = 0
	METHOD_IN_DIRECT  = 1
	METHOD_OUT_DIRECT = 2
	METHOD_NEITHER    = 3

	// Required access
	FILE_ANY_ACCESS   = 0
	FILE_READ_ACCESS  = 1
	FILE_WRITE_ACCESS = 2
)

// CtlCode packs a device type, function, transfer method and access into an IOCTL code.
func CtlCode(deviceType, function, method, access uint32) uint32 {
	return deviceType<<16 | access<<14 | function<<2 | method
}

var (
	IOCTL_STORAGE_QUERY_PROPERTY         = CtlCode(IOCTL_STORAGE_BASE, 0x0500, METHOD_BUFFERED, FILE_ANY_ACCESS)                    // 0x2d1400
	IOCTL_STORAGE_SET_PROPERTY           = CtlCode(IOCTL_STORAGE_BASE, 0x0503, METHOD_BUFFERED, FILE_WRITE_ACCESS)                  // 0x2d940c
	IOCTL_STORAGE_PROTOCOL_COMMAND       = CtlCode(IOCTL_STORAGE_BASE, 0x04f0, METHOD_BUFFERED, FILE_READ_ACCESS|FILE_WRITE_ACCESS) // 0x2dd3c0
	IOCTL_STORAGE_GET_DEVICE_NUMBER      = CtlCode(IOCTL_STORAGE_BASE, 0x0420, METHOD_BUFFERED, FILE_ANY_ACCESS)                    // 0x2d1080
	IOCTL_SCSI_PASS_THROUGH_DIRECT       = CtlCode(IOCTL_SCSI_BASE, 0x0405, METHOD_BUFFERED, FILE_READ_ACCESS|FILE_WRITE_ACCESS)    // 0x4d014
	IOCTL_SCSI_GET_ADDRESS               = CtlCode(IOCTL_SCSI_BASE, 0x0406, METHOD_BUFFERED, FILE_ANY_ACCESS)                       // 0x41018
	IOCTL_VOLUME_GET_VOLUME_DISK_EXTENTS = CtlCode(IOCTL_VOLUME_BASE, 0, METHOD_BUFFERED, FILE_ANY_ACCESS)                          // 0x560000
	IOCTL_DISK_GET_DRIVE_GEOMETRY_EX     = CtlCode(IOCTL_DISK_BASE, 0x0028, METHOD_BUFFERED, FILE_ANY_ACCESS)                       // 0x700a0
	IOCTL_DISK_GET_CACHE_INFORMATION     = CtlCode(IOCTL_DISK_BASE, 0x0035, METHOD_BUFFERED, FILE_READ_ACCESS)                      // 0x740d4
)
