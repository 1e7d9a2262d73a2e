// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Disk and volume information requests.

package ioctl

import (
	"encoding/binary"
	"fmt"
)

const (
	// Extents requested per IOCTL_VOLUME_GET_VOLUME_DISK_EXTENTS call
	MAX_DISK_EXTENTS = 16

	// Enough for DISK_GEOMETRY_EX with partition and detection info
	DISK_GEOMETRY_EX_BUF_LEN = 256
)

// STORAGE_DEVICE_NUMBER
type DeviceNumber struct {
	DeviceType      uint32
	DeviceNumber    uint32
	PartitionNumber uint32
}

// DISK_EXTENT
type DiskExtent struct {
	DiskNumber     uint32
	_              uint32
	StartingOffset int64
	ExtentLength   int64
}

// DISK_GEOMETRY_EX, without the partition and detection info
type Geometry struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
	DiskSize          int64
}

// SCSI_ADDRESS
type SCSIAddress struct {
	Length     uint32
	PortNumber uint8
	PathId     uint8
	TargetId   uint8
	Lun        uint8
}

// Decoded DISK_CACHE_INFORMATION
type CacheInformation struct {
	ParametersSavable      bool
	ReadCacheEnabled       bool
	WriteCacheEnabled      bool
	ReadRetentionPriority  uint32
	WriteRetentionPriority uint32
	PrefetchScalar         bool
}

// STORAGE_WRITE_CACHE_PROPERTY
type WriteCacheProperty struct {
	Version                    uint32
	Size                       uint32
	WriteCacheType             uint32
	WriteCacheEnabled          uint32 // 0 unknown, 1 disabled, 2 enabled
	WriteCacheChangeable       uint32
	WriteThroughSupported      uint32
	FlushCacheSupported        bool
	UserDefinedPowerProtection bool
	NVCacheEnabled             bool
	_                          uint8
}

const (
	WRITE_CACHE_ENABLE_UNKNOWN = 0
	WRITE_CACHE_DISABLED       = 1
	WRITE_CACHE_ENABLED        = 2
)

// Enabled reports whether the write cache is known to be on.
func (w WriteCacheProperty) Enabled() bool {
	return w.WriteCacheEnabled == WRITE_CACHE_ENABLED
}

// query issues a request without input and decodes the little-endian result into v.
func (s *StorageDevice) query(op string, code uint32, out []byte, v any) error {
	if _, err := s.Control(code, nil, out); err != nil {
		return controlError(op, code, err)
	}

	if _, err := binary.Decode(out, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *StorageDevice) DeviceNumber() (DeviceNumber, error) {
	var dn DeviceNumber

	err := s.query("get device number", IOCTL_STORAGE_GET_DEVICE_NUMBER, make([]byte, binary.Size(dn)), &dn)

	return dn, err
}

// DiskExtents returns the disk extents of a volume handle.
func (s *StorageDevice) DiskExtents() ([]DiskExtent, error) {
	buf := make([]byte, 8+MAX_DISK_EXTENTS*binary.Size(DiskExtent{}))

	if _, err := s.Control(IOCTL_VOLUME_GET_VOLUME_DISK_EXTENTS, nil, buf); err != nil {
		return nil, controlError("get volume disk extents", IOCTL_VOLUME_GET_VOLUME_DISK_EXTENTS, err)
	}

	count := binary.LittleEndian.Uint32(buf)
	if count > MAX_DISK_EXTENTS {
		count = MAX_DISK_EXTENTS
	}

	extents := make([]DiskExtent, count)
	if _, err := binary.Decode(buf[8:], binary.LittleEndian, extents); err != nil {
		return nil, err
	}

	return extents, nil
}

func (s *StorageDevice) Geometry() (Geometry, error) {
	var g Geometry

	err := s.query("get drive geometry", IOCTL_DISK_GET_DRIVE_GEOMETRY_EX, make([]byte, DISK_GEOMETRY_EX_BUF_LEN), &g)

	return g, err
}

// Size returns the size of the device in bytes, from the file size when the device supports it
// and from the drive geometry otherwise.
func (s *StorageDevice) Size() (int64, error) {
	if fs, ok := s.Device.(interface{ FileSize() (int64, error) }); ok {
		n, err := fs.FileSize()
		if err == nil {
			return n, nil
		}

		s.log.V(1).Info("file size unavailable, using drive geometry", "err", err)
	}

	g, err := s.Geometry()
	if err != nil {
		return 0, err
	}

	return g.DiskSize, nil
}

func (s *StorageDevice) SCSIAddress() (SCSIAddress, error) {
	var a SCSIAddress

	err := s.query("get SCSI address", IOCTL_SCSI_GET_ADDRESS, make([]byte, binary.Size(a)), &a)

	return a, err
}

func (s *StorageDevice) CacheInformation() (CacheInformation, error) {
	buf := make([]byte, 24)

	if _, err := s.Control(IOCTL_DISK_GET_CACHE_INFORMATION, nil, buf); err != nil {
		return CacheInformation{}, controlError("get cache information", IOCTL_DISK_GET_CACHE_INFORMATION, err)
	}

	return CacheInformation{
		ParametersSavable:      buf[0] != 0,
		ReadCacheEnabled:       buf[1] != 0,
		WriteCacheEnabled:      buf[2] != 0,
		ReadRetentionPriority:  binary.LittleEndian.Uint32(buf[4:]),
		WriteRetentionPriority: binary.LittleEndian.Uint32(buf[8:]),
		PrefetchScalar:         buf[14] != 0,
	}, nil
}

// WriteCacheProperty queries StorageDeviceWriteCacheProperty.
func (s *StorageDevice) WriteCacheProperty() (WriteCacheProperty, error) {
	var w WriteCacheProperty

	in := make([]byte, 12)
	binary.LittleEndian.PutUint32(in, STORAGE_DEVICE_WRITE_CACHE_PROPERTY)
	binary.LittleEndian.PutUint32(in[4:], PROPERTY_STANDARD_QUERY)

	out := make([]byte, binary.Size(w))

	if _, err := s.Control(IOCTL_STORAGE_QUERY_PROPERTY, in, out); err != nil {
		return w, controlError("query write cache property", IOCTL_STORAGE_QUERY_PROPERTY, err)
	}

	if _, err := binary.Decode(out, binary.LittleEndian, &w); err != nil {
		return w, err
	}

	return w, nil
}
