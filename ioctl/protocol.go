// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Storage protocol command and protocol specific property requests.

package ioctl

import (
	"encoding/binary"
	"fmt"

	"github.com/go-logr/logr"
)

const (
	STORAGE_PROTOCOL_STRUCTURE_VERSION = 1

	PROTOCOL_TYPE_NVME = 3

	STORAGE_PROTOCOL_COMMAND_FLAG_ADAPTER_REQUEST = 0x80000000
	STORAGE_PROTOCOL_COMMAND_LENGTH_NVME          = 64
	STORAGE_PROTOCOL_SPECIFIC_NVME_ADMIN_COMMAND  = 1
	STORAGE_PROTOCOL_STATUS_SUCCESS               = 1

	// Timeout in seconds
	PROTOCOL_COMMAND_TIMEOUT = 30

	// STORAGE_QUERY_TYPE / STORAGE_SET_TYPE
	PROPERTY_STANDARD_QUERY = 0
	PROPERTY_STANDARD_SET   = 0

	// STORAGE_PROPERTY_ID
	STORAGE_DEVICE_WRITE_CACHE_PROPERTY = 4

	// Structure sizes
	STORAGE_PROTOCOL_COMMAND_LEN           = 80
	STORAGE_PROPERTY_HEADER_LEN            = 8
	STORAGE_PROTOCOL_SPECIFIC_DATA_LEN     = 40
	STORAGE_PROTOCOL_SPECIFIC_DATA_EXT_LEN = 64
	STORAGE_PROTOCOL_DATA_DESCRIPTOR_LEN   = 48
)

// STORAGE_PROTOCOL_COMMAND header, followed in the request buffer by the command, error info and
// data regions.
type storageProtocolCommand struct {
	Version                      uint32
	Length                       uint32
	ProtocolType                 uint32
	Flags                        uint32
	ReturnStatus                 uint32
	ErrorCode                    uint32
	CommandLength                uint32
	ErrorInfoLength              uint32
	DataToDeviceTransferLength   uint32
	DataFromDeviceTransferLength uint32
	TimeOutValue                 uint32
	ErrorInfoOffset              uint32
	DataToDeviceBufferOffset     uint32
	DataFromDeviceBufferOffset   uint32
	CommandSpecific              uint32
	Reserved0                    uint32
	FixedProtocolReturnData      uint32
	Reserved1                    [3]uint32
} // 80 bytes

// STORAGE_PROPERTY_QUERY / STORAGE_PROPERTY_SET up to AdditionalParameters
type storagePropertyHeader struct {
	PropertyId uint32
	Type       uint32
} // 8 bytes

type storageProtocolSpecificData struct {
	ProtocolType                 uint32
	DataType                     uint32
	ProtocolDataRequestValue     uint32
	ProtocolDataRequestSubValue  uint32
	ProtocolDataOffset           uint32 // Relative to the start of this structure
	ProtocolDataLength           uint32
	FixedProtocolReturnData      uint32
	ProtocolDataRequestSubValue2 uint32
	ProtocolDataRequestSubValue3 uint32
	ProtocolDataRequestSubValue4 uint32
} // 40 bytes

type storageProtocolSpecificDataExt struct {
	ProtocolType            uint32
	DataType                uint32
	ProtocolDataValue       uint32
	ProtocolDataSubValue    uint32
	ProtocolDataOffset      uint32
	ProtocolDataLength      uint32
	FixedProtocolReturnData uint32
	ProtocolDataSubValue2   uint32
	ProtocolDataSubValue3   uint32
	ProtocolDataSubValue4   uint32
	ProtocolDataSubValue5   uint32
	Reserved                [5]uint32
} // 64 bytes

type storageProtocolDataDescriptor struct {
	Version              uint32
	Size                 uint32
	ProtocolSpecificData storageProtocolSpecificData
} // 48 bytes

// DescriptorError is returned when the protocol data descriptor returned by the driver has an
// unexpected version or size.
type DescriptorError struct {
	Version uint32
	Size    uint32
}

func (e DescriptorError) Error() string {
	return fmt.Sprintf("data descriptor header not valid: version %d, size %d", e.Version, e.Size)
}

// StorageDevice issues storage protocol requests on a Device. It satisfies the transport
// interfaces of the nvme and scsi packages.
type StorageDevice struct {
	Device

	log logr.Logger
}

func NewStorageDevice(dev Device, log logr.Logger) *StorageDevice {
	return &StorageDevice{Device: dev, log: log}
}

// ProtocolCommand issues a 64-byte NVMe admin command with IOCTL_STORAGE_PROTOCOL_COMMAND.
// direction 1 sends data to the device and direction 2 fills data from the device; any other
// direction transfers nothing. It returns the fixed protocol return data (completion dword 0) and
// the low 16 bits of the error code as the completion status.
func (s *StorageDevice) ProtocolCommand(direction uint8, cmd []byte, data []byte) (uint32, uint16, error) {
	if len(cmd) != STORAGE_PROTOCOL_COMMAND_LENGTH_NVME {
		return 0, 0, fmt.Errorf("protocol command: command is %d bytes, want %d", len(cmd),
			STORAGE_PROTOCOL_COMMAND_LENGTH_NVME)
	}

	hdr := newProtocolCommand(direction, len(data))
	buf := make([]byte, STORAGE_PROTOCOL_COMMAND_LEN+STORAGE_PROTOCOL_COMMAND_LENGTH_NVME+len(data))

	if _, err := binary.Encode(buf, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, err
	}

	copy(buf[STORAGE_PROTOCOL_COMMAND_LEN:], cmd)

	if direction == 1 {
		copy(buf[hdr.DataToDeviceBufferOffset:], data)
	}

	if _, err := s.Control(IOCTL_STORAGE_PROTOCOL_COMMAND, buf, buf); err != nil {
		return 0, 0, controlError("protocol command", IOCTL_STORAGE_PROTOCOL_COMMAND, err)
	}

	if _, err := binary.Decode(buf, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, err
	}

	if hdr.ReturnStatus != STORAGE_PROTOCOL_STATUS_SUCCESS {
		s.log.V(1).Info("protocol command returned status", "opcode", cmd[0],
			"returnStatus", hdr.ReturnStatus, "errorCode", hdr.ErrorCode)
	}

	if direction == 2 {
		start := int(hdr.DataFromDeviceBufferOffset)
		end := start + int(hdr.DataFromDeviceTransferLength)

		if end > len(buf) || start > end {
			return 0, 0, fmt.Errorf("protocol command: data region %d-%d outside %d-byte buffer",
				start, end, len(buf))
		}

		copy(data, buf[start:end])
	}

	return hdr.FixedProtocolReturnData, uint16(hdr.ErrorCode), nil
}

func newProtocolCommand(direction uint8, dataLen int) storageProtocolCommand {
	hdr := storageProtocolCommand{
		Version:         STORAGE_PROTOCOL_STRUCTURE_VERSION,
		Length:          STORAGE_PROTOCOL_COMMAND_LEN,
		ProtocolType:    PROTOCOL_TYPE_NVME,
		Flags:           STORAGE_PROTOCOL_COMMAND_FLAG_ADAPTER_REQUEST,
		CommandLength:   STORAGE_PROTOCOL_COMMAND_LENGTH_NVME,
		TimeOutValue:    PROTOCOL_COMMAND_TIMEOUT,
		ErrorInfoOffset: STORAGE_PROTOCOL_COMMAND_LEN + STORAGE_PROTOCOL_COMMAND_LENGTH_NVME,
		CommandSpecific: STORAGE_PROTOCOL_SPECIFIC_NVME_ADMIN_COMMAND,
	}

	switch direction {
	case 1:
		hdr.DataToDeviceTransferLength = uint32(dataLen)
	case 2:
		hdr.DataFromDeviceTransferLength = uint32(dataLen)
	}

	hdr.DataToDeviceBufferOffset = hdr.ErrorInfoOffset + hdr.ErrorInfoLength
	hdr.DataFromDeviceBufferOffset = hdr.DataToDeviceBufferOffset + hdr.DataToDeviceTransferLength

	return hdr
}

// QueryProtocolData issues IOCTL_STORAGE_QUERY_PROPERTY for a protocol specific property. It
// returns the fixed protocol return data and the returned protocol data, which is at most length
// bytes.
func (s *StorageDevice) QueryProtocolData(propertyID, dataType, value, subValue, length uint32) (uint32, []byte, error) {
	psd := storageProtocolSpecificData{
		ProtocolType:                PROTOCOL_TYPE_NVME,
		DataType:                    dataType,
		ProtocolDataRequestValue:    value,
		ProtocolDataRequestSubValue: subValue,
		ProtocolDataLength:          length,
	}

	if length > 0 {
		psd.ProtocolDataOffset = STORAGE_PROTOCOL_SPECIFIC_DATA_LEN
	}

	buf := make([]byte, STORAGE_PROPERTY_HEADER_LEN+STORAGE_PROTOCOL_SPECIFIC_DATA_LEN+int(length))
	hdr := storagePropertyHeader{PropertyId: propertyID, Type: PROPERTY_STANDARD_QUERY}

	n, err := binary.Encode(buf, binary.LittleEndian, &hdr)
	if err != nil {
		return 0, nil, err
	}

	if _, err := binary.Encode(buf[n:], binary.LittleEndian, &psd); err != nil {
		return 0, nil, err
	}

	if _, err := s.Control(IOCTL_STORAGE_QUERY_PROPERTY, buf, buf); err != nil {
		return 0, nil, controlError("query property", IOCTL_STORAGE_QUERY_PROPERTY, err)
	}

	return protocolData(buf)
}

// SetProtocolData issues IOCTL_STORAGE_SET_PROPERTY for a protocol specific property, with a
// length byte data region following the request.
func (s *StorageDevice) SetProtocolData(propertyID, dataType, value, subValue, length uint32) (uint32, []byte, error) {
	psd := storageProtocolSpecificDataExt{
		ProtocolType:         PROTOCOL_TYPE_NVME,
		DataType:             dataType,
		ProtocolDataValue:    value,
		ProtocolDataSubValue: subValue,
		ProtocolDataOffset:   STORAGE_PROTOCOL_SPECIFIC_DATA_EXT_LEN,
		ProtocolDataLength:   length,
	}

	buf := make([]byte, STORAGE_PROPERTY_HEADER_LEN+STORAGE_PROTOCOL_SPECIFIC_DATA_EXT_LEN+int(length))
	hdr := storagePropertyHeader{PropertyId: propertyID, Type: PROPERTY_STANDARD_SET}

	n, err := binary.Encode(buf, binary.LittleEndian, &hdr)
	if err != nil {
		return 0, nil, err
	}

	if _, err := binary.Encode(buf[n:], binary.LittleEndian, &psd); err != nil {
		return 0, nil, err
	}

	if _, err := s.Control(IOCTL_STORAGE_SET_PROPERTY, buf, buf); err != nil {
		return 0, nil, controlError("set property", IOCTL_STORAGE_SET_PROPERTY, err)
	}

	return protocolData(buf)
}

// protocolData validates the STORAGE_PROTOCOL_DATA_DESCRIPTOR at the start of buf and returns its
// fixed return data and data region.
func protocolData(buf []byte) (uint32, []byte, error) {
	var desc storageProtocolDataDescriptor

	if _, err := binary.Decode(buf, binary.LittleEndian, &desc); err != nil {
		return 0, nil, err
	}

	if desc.Version != STORAGE_PROTOCOL_DATA_DESCRIPTOR_LEN || desc.Size != STORAGE_PROTOCOL_DATA_DESCRIPTOR_LEN {
		return 0, nil, DescriptorError{Version: desc.Version, Size: desc.Size}
	}

	psd := desc.ProtocolSpecificData
	if psd.ProtocolDataLength == 0 {
		return psd.FixedProtocolReturnData, nil, nil
	}

	start := STORAGE_PROPERTY_HEADER_LEN + int(psd.ProtocolDataOffset)
	end := start + int(psd.ProtocolDataLength)

	if psd.ProtocolDataOffset < STORAGE_PROTOCOL_SPECIFIC_DATA_LEN || end > len(buf) {
		return 0, nil, fmt.Errorf("protocol data %d-%d outside %d-byte buffer", start, end, len(buf))
	}

	return psd.FixedProtocolReturnData, buf[start:end], nil
}
