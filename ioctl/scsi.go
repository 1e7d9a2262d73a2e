// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI pass-through direct.

package ioctl

import (
	"fmt"
	"runtime"
	"unsafe"
)

const (
	SENSE_BUF_LEN = 32
	MAX_CDB_LEN   = 16
)

// SCSI_PASS_THROUGH_DIRECT, laid out with native alignment
type scsiPassThroughDirect struct {
	Length             uint16
	ScsiStatus         uint8
	PathId             uint8
	TargetId           uint8
	Lun                uint8
	CdbLength          uint8
	SenseInfoLength    uint8
	DataIn             uint8
	DataTransferLength uint32
	TimeOutValue       uint32
	DataBuffer         uintptr
	SenseInfoOffset    uint32
	Cdb                [MAX_CDB_LEN]byte
} // 56 bytes on 64-bit platforms

type scsiPassThroughDirectWithBuffer struct {
	sptd     scsiPassThroughDirect
	_        uint32
	senseBuf [SENSE_BUF_LEN]byte
}

// PassThroughDirect issues a CDB with IOCTL_SCSI_PASS_THROUGH_DIRECT, transferring directly to or
// from data. The device's sense data is copied into sense whether or not the request succeeded. It
// returns the number of bytes the device transferred and the SCSI status.
func (s *StorageDevice) PassThroughDirect(cdb []byte, dataIn uint8, data []byte, sense []byte, timeout uint32) (uint32, uint8, error) {
	if len(cdb) == 0 || len(cdb) > MAX_CDB_LEN {
		return 0, 0, fmt.Errorf("SCSI pass-through: invalid CDB length %d", len(cdb))
	}

	var w scsiPassThroughDirectWithBuffer

	w.sptd.Length = uint16(unsafe.Sizeof(w.sptd))
	w.sptd.CdbLength = uint8(copy(w.sptd.Cdb[:], cdb))
	w.sptd.SenseInfoLength = SENSE_BUF_LEN
	w.sptd.SenseInfoOffset = uint32(unsafe.Offsetof(w.senseBuf))
	w.sptd.DataIn = dataIn
	w.sptd.TimeOutValue = timeout

	if len(data) > 0 {
		w.sptd.DataBuffer = uintptr(unsafe.Pointer(&data[0]))
		w.sptd.DataTransferLength = uint32(len(data))
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(&w)), unsafe.Sizeof(w))
	_, err := s.Control(IOCTL_SCSI_PASS_THROUGH_DIRECT, buf, buf)
	runtime.KeepAlive(data)

	copy(sense, w.senseBuf[:])

	if err != nil {
		return 0, 0, controlError("SCSI pass-through", IOCTL_SCSI_PASS_THROUGH_DIRECT, err)
	}

	return w.sptd.DataTransferLength, w.sptd.ScsiStatus, nil
}
