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

// Vendor specific two-phase admin pass-through.

package nvme

import (
	"fmt"
)

const (
	VS_STD_NVME_CMD_TYPE_READ     = 0x83061400
	VS_STD_NVME_CMD_TYPE_WRITE    = 0x83061401
	VS_STD_NVME_CMD_TYPE_NON_DATA = 0x83061402

	VS_PARAM_BUFFER_SIZE = 4096
)

// VendorPassthrough sends param to the controller with the vendor specific parameter opcode, then,
// if direction is non-zero and the first phase succeeded, runs a data phase in that direction
// over data. It returns completion dword 0 of the last phase issued.
func (d *Device) VendorPassthrough(subOpcode uint32, direction uint8, param, data []byte, nsid uint32) (uint32, error) {
	cmd := NewCommand(NVME_ADMIN_VS_PARAM, nsid, General{
		uint32(len(param) / 4), 0, subOpcode,
	})

	dw0, err := d.Passthrough(DIRECTION_TO_DEVICE, cmd, param)
	if err != nil || direction == DIRECTION_NONE {
		return dw0, err
	}

	cmd.SetOpcode(NVME_ADMIN_VS_DATA | direction)
	cmd.SetSpecific(General{uint32(len(data) / 4), 0, subOpcode, 0, 1})

	d.log.V(2).Info("vendor data phase", "subOpcode", subOpcode, "direction", direction, "len", len(data))

	return d.Passthrough(direction, cmd, data)
}

// VendorAdminCommand wraps a standard admin command in the vendor specific pass-through. The data
// direction is taken from the low two bits of the opcode, and is none when data is empty.
func (d *Device) VendorAdminCommand(cmd Command, data []byte) (uint32, error) {
	direction := DataDirection(cmd.Opcode())
	if len(data) == 0 {
		direction = DIRECTION_NONE
	}

	var sub uint32

	switch direction {
	case DIRECTION_NONE:
		sub = VS_STD_NVME_CMD_TYPE_NON_DATA
	case DIRECTION_TO_DEVICE:
		sub = VS_STD_NVME_CMD_TYPE_WRITE
	case DIRECTION_FROM_DEVICE:
		sub = VS_STD_NVME_CMD_TYPE_READ
	default:
		return 0, fmt.Errorf("bidirectional opcode %#02x: %w", cmd.Opcode(), ErrNotSupported)
	}

	param := make([]byte, VS_PARAM_BUFFER_SIZE)
	copy(param, cmd.Bytes())

	return d.VendorPassthrough(sub, direction, param, data, 0)
}
