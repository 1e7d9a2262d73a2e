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

// NVMe admin commands.

package nvme

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

const (
	// Storage property identifiers carrying protocol specific data
	STORAGE_ADAPTER_PROTOCOL_SPECIFIC_PROPERTY = 49
	STORAGE_DEVICE_PROTOCOL_SPECIFIC_PROPERTY  = 50

	// Protocol specific data types for NVMe
	NVME_DATA_TYPE_IDENTIFY = 1
	NVME_DATA_TYPE_LOG_PAGE = 2
	NVME_DATA_TYPE_FEATURE  = 3

	// Pass-through data transfer directions
	DIRECTION_NONE        = 0
	DIRECTION_TO_DEVICE   = 1
	DIRECTION_FROM_DEVICE = 2
)

var ErrNotSupported = errors.New("not supported")

// Transport carries NVMe admin commands and protocol specific property requests to a controller.
// It is implemented by the ioctl package.
type Transport interface {
	// ProtocolCommand issues a raw 64-byte admin command. direction 1 sends data to the device,
	// direction 2 fills data from the device. It returns completion dword 0 and the status field.
	ProtocolCommand(direction uint8, cmd []byte, data []byte) (dw0 uint32, status uint16, err error)

	// QueryProtocolData issues a protocol specific property query and returns the fixed return
	// data and up to length bytes of payload.
	QueryProtocolData(propertyID, dataType, value, subValue, length uint32) (fixed uint32, data []byte, err error)

	// SetProtocolData issues a protocol specific property set.
	SetProtocolData(propertyID, dataType, value, subValue, length uint32) (fixed uint32, data []byte, err error)
}

// Quirks disable code paths that particular controllers are known to mishandle.
type Quirks struct {
	NoVendorPassthrough bool
}

type Device struct {
	Name string

	t      Transport
	log    logr.Logger
	quirks Quirks
}

type Option func(*Device)

func WithLogger(log logr.Logger) Option {
	return func(d *Device) { d.log = log }
}

func WithQuirks(q Quirks) Option {
	return func(d *Device) { d.quirks = q }
}

func NewDevice(name string, t Transport, opts ...Option) *Device {
	d := &Device{Name: name, t: t, log: logr.Discard()}

	for _, opt := range opts {
		opt(d)
	}

	d.log = d.log.WithValues("device", name)

	return d
}

// Identify returns the 4096-byte Identify data structure selected by cns.
func (d *Device) Identify(cns uint8, nsid uint32) ([]byte, error) {
	_, data, err := d.t.QueryProtocolData(STORAGE_ADAPTER_PROTOCOL_SPECIFIC_PROPERTY,
		NVME_DATA_TYPE_IDENTIFY, uint32(cns), nsid, NVME_IDENTIFY_SIZE)
	if err != nil {
		return nil, fmt.Errorf("identify cns %#02x nsid %d: %w", cns, nsid, err)
	}

	d.log.V(2).Info("identify", "cns", cns, "nsid", nsid, "len", len(data))

	return data, nil
}

func (d *Device) IdentifyController() (*IdentifyController, error) {
	buf, err := d.Identify(CNS_CONTROLLER, 0)
	if err != nil {
		return nil, err
	}

	return ParseIdentifyController(buf)
}

func (d *Device) IdentifyNamespace(nsid uint32) (*IdentifyNamespace, error) {
	buf, err := d.Identify(CNS_NAMESPACE, nsid)
	if err != nil {
		return nil, err
	}

	return ParseIdentifyNamespace(buf)
}

// NamespaceList returns the active namespace ids greater than nsid, or every allocated namespace
// id when all is set. The list is fetched with an Identify admin command wrapped in the vendor
// specific pass-through; controllers with the NoVendorPassthrough quirk fall back to the Identify
// property query, which cannot report allocated namespaces.
func (d *Device) NamespaceList(nsid uint32, all bool) ([]uint32, error) {
	cns := uint8(CNS_ACTIVE_NAMESPACES)
	if all {
		cns = CNS_ALLOCATED_NAMESPACE_LIST
	}

	if d.quirks.NoVendorPassthrough {
		if all {
			return nil, fmt.Errorf("allocated namespace list: %w", ErrNotSupported)
		}

		buf, err := d.Identify(cns, nsid)
		if err != nil {
			return nil, err
		}

		return DecodeNamespaceList(buf), nil
	}

	buf := make([]byte, NVME_IDENTIFY_SIZE)
	cmd := NewCommand(NVME_ADMIN_IDENTIFY, nsid, Identify{CNS: cns})

	if _, err := d.VendorAdminCommand(cmd, buf); err != nil {
		return nil, fmt.Errorf("namespace list: %w", err)
	}

	return DecodeNamespaceList(buf), nil
}

// GetFeature returns the current, default, saved or supported value of feature fid.
func (d *Device) GetFeature(fid, sel uint8) (uint32, error) {
	if !FeatureSupported(fid) {
		return 0, fmt.Errorf("get feature %#02x: %w", fid, ErrNotSupported)
	}

	v, _, err := d.t.QueryProtocolData(STORAGE_DEVICE_PROTOCOL_SPECIFIC_PROPERTY,
		NVME_DATA_TYPE_FEATURE, GetFeatureCDW10(fid, sel), 0, 0)
	if err != nil {
		return 0, fmt.Errorf("get feature %#02x: %w", fid, err)
	}

	return v, nil
}

// SetFeature sets feature fid. value is converted with EncodeSetFeatureValue before it is sent.
// It returns completion dword 0.
func (d *Device) SetFeature(fid uint8, value uint32, save bool) (uint32, error) {
	if !FeatureSupported(fid) {
		return 0, fmt.Errorf("set feature %#02x: %w", fid, ErrNotSupported)
	}

	cdw11 := EncodeSetFeatureValue(fid, value)

	d.log.V(1).Info("set feature", "fid", fid, "cdw11", cdw11, "save", save)

	v, _, err := d.t.SetProtocolData(STORAGE_ADAPTER_PROTOCOL_SPECIFIC_PROPERTY,
		NVME_DATA_TYPE_FEATURE, SetFeatureCDW10(fid, save), cdw11, NVME_MAX_LOG_SIZE)
	if err != nil {
		return 0, fmt.Errorf("set feature %#02x: %w", fid, err)
	}

	return v, nil
}

// GetLogPage reads up to 4096 bytes of log page lid. The log identifier is passed to the
// controller unchecked.
func (d *Device) GetLogPage(lid uint8, cdw11 uint32) ([]byte, error) {
	_, data, err := d.t.QueryProtocolData(STORAGE_DEVICE_PROTOCOL_SPECIFIC_PROPERTY,
		NVME_DATA_TYPE_LOG_PAGE, uint32(lid), cdw11, NVME_MAX_LOG_SIZE)
	if err != nil {
		return nil, fmt.Errorf("get log page %#02x: %w", lid, err)
	}

	return data, nil
}

func (d *Device) HealthLog() (*HealthLog, error) {
	buf, err := d.GetLogPage(LOG_HEALTH_INFO, 0)
	if err != nil {
		return nil, err
	}

	return ParseHealthLog(buf)
}

func (d *Device) ErrorLog() ([]ErrorInfoEntry, error) {
	buf, err := d.GetLogPage(LOG_ERROR_INFO, 0)
	if err != nil {
		return nil, err
	}

	return ParseErrorLog(buf)
}

func (d *Device) FirmwareSlotLog() (*FirmwareSlotLog, error) {
	buf, err := d.GetLogPage(LOG_FIRMWARE_SLOT_INFO, 0)
	if err != nil {
		return nil, err
	}

	return ParseFirmwareSlotLog(buf)
}

// Passthrough issues an admin command through the protocol command interface and returns
// completion dword 0. A non-success completion is returned as *StatusError.
func (d *Device) Passthrough(direction uint8, cmd Command, data []byte) (uint32, error) {
	dw0, status, err := d.t.ProtocolCommand(direction, cmd.Bytes(), data)
	if err != nil {
		return 0, fmt.Errorf("admin command %#02x: %w", cmd.Opcode(), err)
	}

	s := Status(status)
	if !s.Success() {
		d.log.V(1).Info("command failed", "opcode", cmd.Opcode(), "status", s.String())
		return dw0, &StatusError{Status: s, Opcode: cmd.Opcode()}
	}

	return dw0, nil
}
