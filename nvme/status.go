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

// NVMe completion status decoding.

package nvme

import (
	"fmt"
)

const (
	STATUS_TYPE_GENERIC          = 0
	STATUS_TYPE_COMMAND_SPECIFIC = 1
	STATUS_TYPE_MEDIA_ERROR      = 2
	STATUS_TYPE_PATH             = 3
	STATUS_TYPE_VENDOR_SPECIFIC  = 7
)

var statusTypeNames = map[uint8]string{
	STATUS_TYPE_GENERIC:          "generic command status",
	STATUS_TYPE_COMMAND_SPECIFIC: "command specific status",
	STATUS_TYPE_MEDIA_ERROR:      "media and data integrity error",
	STATUS_TYPE_PATH:             "path related status",
	STATUS_TYPE_VENDOR_SPECIFIC:  "vendor specific",
}

var genericStatus = map[uint8]string{
	0x00: "successful completion",
	0x01: "invalid command opcode",
	0x02: "invalid field in command",
	0x03: "command id conflict",
	0x04: "data transfer error",
	0x05: "commands aborted due to power loss notification",
	0x06: "internal device error",
	0x07: "command abort requested",
	0x08: "command aborted due to sq deletion",
	0x09: "command aborted due to failed fused command",
	0x0a: "command aborted due to missing fused command",
	0x0b: "invalid namespace or format",
	0x0c: "command sequence error",
	0x0d: "invalid sgl last segment descriptor",
	0x0e: "invalid number of sgl descriptors",
	0x0f: "data sgl length invalid",
	0x10: "metadata sgl length invalid",
	0x11: "sgl descriptor type invalid",
	0x12: "invalid use of controller memory buffer",
	0x13: "prp offset invalid",
	0x14: "atomic write unit exceeded",
	0x15: "operation denied",
	0x16: "sgl offset invalid",
	0x17: "reserved",
	0x18: "host identifier inconsistent format",
	0x19: "keep alive timeout expired",
	0x1a: "keep alive timeout invalid",
	0x1b: "command aborted due to preempt and abort",
	0x1c: "sanitize failed",
	0x1d: "sanitize in progress",
	0x1e: "sgl data block granularity invalid",
	0x70: "directive type invalid",
	0x71: "directive id invalid",
	0x80: "lba out of range",
	0x81: "capacity exceeded",
	0x82: "namespace not ready",
	0x83: "reservation conflict",
	0x84: "format in progress",
}

var commandSpecificStatus = map[uint8]string{
	0x00: "completion queue invalid",
	0x01: "invalid queue identifier",
	0x02: "maximum queue size exceeded",
	0x03: "abort command limit exceeded",
	0x05: "asynchronous event request limit exceeded",
	0x06: "invalid firmware slot",
	0x07: "invalid firmware image",
	0x08: "invalid interrupt vector",
	0x09: "invalid log page",
	0x0a: "invalid format",
	0x0b: "firmware activation requires conventional reset",
	0x0c: "invalid queue deletion",
	0x0d: "feature id not saveable",
	0x0e: "feature not changeable",
	0x0f: "feature not namespace specific",
	0x10: "firmware activation requires nvm subsystem reset",
	0x11: "firmware activation requires reset",
	0x12: "firmware activation requires maximum time violation",
	0x13: "firmware activation prohibited",
	0x14: "overlapping range",
	0x15: "namespace insufficient capacity",
	0x16: "namespace identifier unavailable",
	0x18: "namespace already attached",
	0x19: "namespace is private",
	0x1a: "namespace not attached",
	0x1b: "thin provisioning not supported",
	0x1c: "controller list invalid",
	0x1d: "device self-test in progress",
	0x1e: "boot partition write prohibited",
	0x1f: "invalid controller identifier",
	0x20: "invalid secondary controller state",
	0x21: "invalid number of controller resources",
	0x22: "invalid resource identifier",
	0x23: "sanitize prohibited while persistent memory region is enabled",
	0x24: "ana group identifier invalid",
	0x25: "ana attach failed",
	0x29: "io command set not supported",
	0x2a: "io command set not enabled",
	0x2b: "io command set combination rejected",
	0x2c: "invalid io command set",
	0x7f: "stream resource allocation failed",
	0x80: "conflicting attributes",
	0x81: "invalid protection information",
	0x82: "attempted write to read only range",
	0x83: "command size limit exceeded",
	0xb8: "zoned boundary error",
	0xb9: "zone is full",
	0xba: "zone is read only",
	0xbb: "zone is offline",
	0xbc: "zone invalid write",
	0xbd: "too many active zones",
	0xbe: "too many open zones",
	0xbf: "invalid zone state transition",
}

var mediaErrorStatus = map[uint8]string{
	0x80: "write fault",
	0x81: "unrecovered read error",
	0x82: "end-to-end guard check error",
	0x83: "end-to-end application tag check error",
	0x84: "end-to-end reference tag check error",
	0x85: "compare failure",
	0x86: "access denied",
	0x87: "deallocated or unwritten logical block",
}

// Status is the 16-bit status field of a completion queue entry (dword 3 bits 31:16).
type Status uint16

func (s Status) Phase() bool      { return StatusLayout.Flag(uint32(s), "P") }
func (s Status) Code() uint8      { return uint8(StatusLayout.Get(uint32(s), "SC")) }
func (s Status) Type() uint8      { return uint8(StatusLayout.Get(uint32(s), "SCT")) }
func (s Status) More() bool       { return StatusLayout.Flag(uint32(s), "M") }
func (s Status) DoNotRetry() bool { return StatusLayout.Flag(uint32(s), "DNR") }
func (s Status) TypeName() string { return statusTypeNames[s.Type()] }

// Success reports whether the status is a generic successful completion. The phase tag is ignored.
func (s Status) Success() bool {
	return s.Type() == STATUS_TYPE_GENERIC && s.Code() == 0
}

// Err returns nil on success, otherwise a *StatusError.
func (s Status) Err() error {
	if s.Success() {
		return nil
	}

	return &StatusError{Status: s}
}

// MakeStatus composes a status word from its type and code.
func MakeStatus(sct, sc uint8) Status {
	return Status(StatusLayout.Encode(map[string]uint32{"SCT": uint32(sct), "SC": uint32(sc)}))
}

// Description returns the human readable meaning of the status code within its type table.
func (s Status) Description() string {
	var table map[uint8]string

	switch s.Type() {
	case STATUS_TYPE_GENERIC:
		table = genericStatus
	case STATUS_TYPE_COMMAND_SPECIFIC:
		table = commandSpecificStatus
	case STATUS_TYPE_MEDIA_ERROR:
		table = mediaErrorStatus
	case STATUS_TYPE_VENDOR_SPECIFIC:
		return fmt.Sprintf("vendor specific status %#x", s.Code())
	}

	if desc, ok := table[s.Code()]; ok {
		return desc
	}

	return fmt.Sprintf("unknown status %#02x", s.Code())
}

func (s Status) String() string {
	return fmt.Sprintf("SCT %#x SC %#02x (%s)", s.Type(), s.Code(), s.Description())
}

// StatusError is returned when a command completes with a non-success status.
type StatusError struct {
	Status Status
	Opcode uint8
}

func (e *StatusError) Error() string {
	dnr := ""
	if e.Status.DoNotRetry() {
		dnr = ", do not retry"
	}

	return fmt.Sprintf("NVMe opcode %#02x failed: %s, type %#x, code %#02x%s",
		e.Opcode, e.Status.Description(), e.Status.Type(), e.Status.Code(), dnr)
}
