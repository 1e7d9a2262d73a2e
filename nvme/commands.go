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

// NVMe opcode, feature, CNS and log page identifiers.

package nvme

const (
	// Admin command set opcodes
	NVME_ADMIN_DELETE_IO_SQ           = 0x00
	NVME_ADMIN_CREATE_IO_SQ           = 0x01
	NVME_ADMIN_GET_LOG_PAGE           = 0x02
	NVME_ADMIN_DELETE_IO_CQ           = 0x04
	NVME_ADMIN_CREATE_IO_CQ           = 0x05
	NVME_ADMIN_IDENTIFY               = 0x06
	NVME_ADMIN_ABORT                  = 0x08
	NVME_ADMIN_SET_FEATURES           = 0x09
	NVME_ADMIN_GET_FEATURES           = 0x0a
	NVME_ADMIN_ASYNC_EVENT_REQUEST    = 0x0c
	NVME_ADMIN_NAMESPACE_MANAGEMENT   = 0x0d
	NVME_ADMIN_FIRMWARE_COMMIT        = 0x10
	NVME_ADMIN_FIRMWARE_DOWNLOAD      = 0x11
	NVME_ADMIN_DEVICE_SELF_TEST       = 0x14
	NVME_ADMIN_NAMESPACE_ATTACHMENT   = 0x15
	NVME_ADMIN_DIRECTIVE_SEND         = 0x19
	NVME_ADMIN_DIRECTIVE_RECEIVE      = 0x1a
	NVME_ADMIN_VIRTUALIZATION_MGMT    = 0x1c
	NVME_ADMIN_NVME_MI_SEND           = 0x1d
	NVME_ADMIN_NVME_MI_RECEIVE        = 0x1e
	NVME_ADMIN_DOORBELL_BUFFER_CONFIG = 0x7c
	NVME_ADMIN_FORMAT_NVM             = 0x80
	NVME_ADMIN_SECURITY_SEND          = 0x81
	NVME_ADMIN_SECURITY_RECEIVE       = 0x82
	NVME_ADMIN_SANITIZE               = 0x84
	NVME_ADMIN_GET_LBA_STATUS         = 0x86

	// NVM command set opcodes
	NVME_NVM_FLUSH               = 0x00
	NVME_NVM_WRITE               = 0x01
	NVME_NVM_READ                = 0x02
	NVME_NVM_WRITE_UNCORRECTABLE = 0x04
	NVME_NVM_COMPARE             = 0x05
	NVME_NVM_WRITE_ZEROES        = 0x08
	NVME_NVM_DATASET_MANAGEMENT  = 0x09
	NVME_NVM_VERIFY              = 0x0c
	NVME_NVM_RESERVATION_REG     = 0x0d
	NVME_NVM_RESERVATION_REPORT  = 0x0e
	NVME_NVM_RESERVATION_ACQUIRE = 0x11
	NVME_NVM_RESERVATION_RELEASE = 0x15

	// Vendor specific admin opcodes used for the two-phase pass-through
	NVME_ADMIN_VS_PARAM = 0xf1
	NVME_ADMIN_VS_DATA  = 0xf0
)

const (
	FEATURE_ARBITRATION                        = 0x01
	FEATURE_POWER_MANAGEMENT                   = 0x02
	FEATURE_LBA_RANGE_TYPE                     = 0x03
	FEATURE_TEMPERATURE_THRESHOLD              = 0x04
	FEATURE_ERROR_RECOVERY                     = 0x05
	FEATURE_VOLATILE_WRITE_CACHE               = 0x06
	FEATURE_NUMBER_OF_QUEUES                   = 0x07
	FEATURE_INTERRUPT_COALESCING               = 0x08
	FEATURE_INTERRUPT_VECTOR_CONFIG            = 0x09
	FEATURE_WRITE_ATOMICITY                    = 0x0a
	FEATURE_ASYNC_EVENT_CONFIG                 = 0x0b
	FEATURE_AUTONOMOUS_POWER_STATE_TRANSITION  = 0x0c
	FEATURE_HOST_MEMORY_BUFFER                 = 0x0d
	FEATURE_TIMESTAMP                          = 0x0e
	FEATURE_KEEP_ALIVE                         = 0x0f
	FEATURE_HOST_CONTROLLED_THERMAL_MANAGEMENT = 0x10
	FEATURE_NONOPERATIONAL_POWER_STATE         = 0x11
	FEATURE_READ_RECOVERY_LEVEL_CONFIG         = 0x12
	FEATURE_PREDICTABLE_LATENCY_MODE_CONFIG    = 0x13
	FEATURE_PREDICTABLE_LATENCY_MODE_WINDOW    = 0x14
	FEATURE_LBA_STATUS_INFO_REPORT_INTERVAL    = 0x15
	FEATURE_HOST_BEHAVIOR_SUPPORT              = 0x16
	FEATURE_SANITIZE_CONFIG                    = 0x17
	FEATURE_ENDURANCE_GROUP_EVENT_CONFIG       = 0x18
	FEATURE_IO_COMMAND_SET_PROFILE             = 0x19
	FEATURE_ENHANCED_CONTROLLER_METADATA       = 0x7d
	FEATURE_CONTROLLER_METADATA                = 0x7e
	FEATURE_NAMESPACE_METADATA                 = 0x7f
	FEATURE_SOFTWARE_PROGRESS_MARKER           = 0x80
	FEATURE_HOST_IDENTIFIER                    = 0x81
	FEATURE_RESERVATION_NOTIFICATION_MASK      = 0x82
	FEATURE_RESERVATION_PERSISTENCE            = 0x83
	FEATURE_NAMESPACE_WRITE_PROTECTION_CONFIG  = 0x84
	FEATURE_ERROR_INJECTION                    = 0xc0
	FEATURE_CLEAR_FW_UPDATE_HISTORY            = 0xc1
	FEATURE_READONLY_WRITETHROUGH_MODE         = 0xc2
	FEATURE_CLEAR_PCIE_CORRECTABLE_ERRORS      = 0xc3
	FEATURE_ENABLE_IEEE1667_SILO               = 0xc4
	FEATURE_PLP_HEALTH_MONITOR                 = 0xc5

	// Get Features select field
	FEATURE_SEL_CURRENT   = 0
	FEATURE_SEL_DEFAULT   = 1
	FEATURE_SEL_SAVED     = 2
	FEATURE_SEL_SUPPORTED = 3
)

const (
	CNS_NAMESPACE                          = 0x00
	CNS_CONTROLLER                         = 0x01
	CNS_ACTIVE_NAMESPACES                  = 0x02
	CNS_DESCRIPTOR_NAMESPACE               = 0x03
	CNS_NVM_SET                            = 0x04
	CNS_SPECIFIC_NAMESPACE_IO_COMMAND_SET  = 0x05
	CNS_SPECIFIC_CONTROLLER_IO_COMMAND_SET = 0x06
	CNS_ACTIVE_NAMESPACE_LIST_IO_COMMAND   = 0x07
	CNS_ALLOCATED_NAMESPACE_LIST           = 0x10
	CNS_ALLOCATED_NAMESPACE                = 0x11
	CNS_CONTROLLER_LIST_OF_NSID            = 0x12
	CNS_CONTROLLER_LIST_OF_NVM_SUBSYSTEM   = 0x13
	CNS_PRIMARY_CONTROLLER_CAPABILITIES    = 0x14
	CNS_SECONDARY_CONTROLLER_LIST          = 0x15
	CNS_NAMESPACE_GRANULARITY_LIST         = 0x16
	CNS_UUID_LIST                          = 0x17
	CNS_DOMAIN_LIST                        = 0x18
	CNS_ENDURANCE_GROUP_LIST               = 0x19
	CNS_ALLOCATED_NAMESPACE_LIST_IO        = 0x1a
	CNS_ALLOCATED_NAMESPACE_IO             = 0x1b
	CNS_IO_COMMAND_SET                     = 0x1c

	CSI_NVM = 0
	CSI_KV  = 1
	CSI_ZNS = 2
)

const (
	LOG_ERROR_INFO                       = 0x01
	LOG_HEALTH_INFO                      = 0x02
	LOG_FIRMWARE_SLOT_INFO               = 0x03
	LOG_CHANGED_NAMESPACE_LIST           = 0x04
	LOG_COMMAND_EFFECTS                  = 0x05
	LOG_DEVICE_SELF_TEST                 = 0x06
	LOG_TELEMETRY_HOST_INITIATED         = 0x07
	LOG_TELEMETRY_CTLR_INITIATED         = 0x08
	LOG_ENDURANCE_GROUP_INFO             = 0x09
	LOG_PREDICTABLE_LATENCY_NVM_SET      = 0x0a
	LOG_PREDICTABLE_LATENCY_AGGREGATE    = 0x0b
	LOG_ASYMMETRIC_NAMESPACE_ACCESS      = 0x0c
	LOG_PERSISTENT_EVENT_LOG             = 0x0d
	LOG_LBA_STATUS_INFO                  = 0x0e
	LOG_ENDURANCE_GROUP_EVENT_AGGREGATE  = 0x0f
	LOG_RESERVATION_NOTIFICATION         = 0x80
	LOG_SANITIZE_STATUS                  = 0x81
	LOG_CHANGED_ZONE_LIST                = 0xbf

	// Maximum payload returned by one protocol-specific query
	NVME_MAX_LOG_SIZE = 4096

	// Size of the Identify data structures
	NVME_IDENTIFY_SIZE = 4096

	// Namespace identifier addressing every namespace
	NVME_NSID_ALL = 0xffffffff
)

var logPageNames = map[uint8]string{
	LOG_ERROR_INFO:                      "Error Information",
	LOG_HEALTH_INFO:                     "SMART / Health Information",
	LOG_FIRMWARE_SLOT_INFO:              "Firmware Slot Information",
	LOG_CHANGED_NAMESPACE_LIST:          "Changed Namespace List",
	LOG_COMMAND_EFFECTS:                 "Commands Supported and Effects",
	LOG_DEVICE_SELF_TEST:                "Device Self-test",
	LOG_TELEMETRY_HOST_INITIATED:        "Telemetry Host-Initiated",
	LOG_TELEMETRY_CTLR_INITIATED:        "Telemetry Controller-Initiated",
	LOG_ENDURANCE_GROUP_INFO:            "Endurance Group Information",
	LOG_PREDICTABLE_LATENCY_NVM_SET:     "Predictable Latency Per NVM Set",
	LOG_PREDICTABLE_LATENCY_AGGREGATE:   "Predictable Latency Event Aggregate",
	LOG_ASYMMETRIC_NAMESPACE_ACCESS:     "Asymmetric Namespace Access",
	LOG_PERSISTENT_EVENT_LOG:            "Persistent Event Log",
	LOG_LBA_STATUS_INFO:                 "LBA Status Information",
	LOG_ENDURANCE_GROUP_EVENT_AGGREGATE: "Endurance Group Event Aggregate",
	LOG_RESERVATION_NOTIFICATION:        "Reservation Notification",
	LOG_SANITIZE_STATUS:                 "Sanitize Status",
	LOG_CHANGED_ZONE_LIST:               "Changed Zone List",
}

// LogPageName returns the name of a log page identifier, or "" when unknown.
func LogPageName(lid uint8) string {
	return logPageNames[lid]
}

var featureNames = map[uint8]string{
	FEATURE_ARBITRATION:                        "Arbitration",
	FEATURE_POWER_MANAGEMENT:                   "Power Management",
	FEATURE_LBA_RANGE_TYPE:                     "LBA Range Type",
	FEATURE_TEMPERATURE_THRESHOLD:              "Temperature Threshold",
	FEATURE_ERROR_RECOVERY:                     "Error Recovery",
	FEATURE_VOLATILE_WRITE_CACHE:               "Volatile Write Cache",
	FEATURE_NUMBER_OF_QUEUES:                   "Number of Queues",
	FEATURE_INTERRUPT_COALESCING:               "Interrupt Coalescing",
	FEATURE_INTERRUPT_VECTOR_CONFIG:            "Interrupt Vector Configuration",
	FEATURE_WRITE_ATOMICITY:                    "Write Atomicity Normal",
	FEATURE_ASYNC_EVENT_CONFIG:                 "Asynchronous Event Configuration",
	FEATURE_AUTONOMOUS_POWER_STATE_TRANSITION:  "Autonomous Power State Transition",
	FEATURE_HOST_MEMORY_BUFFER:                 "Host Memory Buffer",
	FEATURE_TIMESTAMP:                          "Timestamp",
	FEATURE_KEEP_ALIVE:                         "Keep Alive Timer",
	FEATURE_HOST_CONTROLLED_THERMAL_MANAGEMENT: "Host Controlled Thermal Management",
	FEATURE_NONOPERATIONAL_POWER_STATE:         "Non-Operational Power State Config",
	FEATURE_READ_RECOVERY_LEVEL_CONFIG:         "Read Recovery Level Config",
	FEATURE_PREDICTABLE_LATENCY_MODE_CONFIG:    "Predictable Latency Mode Config",
	FEATURE_PREDICTABLE_LATENCY_MODE_WINDOW:    "Predictable Latency Mode Window",
	FEATURE_LBA_STATUS_INFO_REPORT_INTERVAL:    "LBA Status Information Report Interval",
	FEATURE_HOST_BEHAVIOR_SUPPORT:              "Host Behavior Support",
	FEATURE_SANITIZE_CONFIG:                    "Sanitize Config",
	FEATURE_ENDURANCE_GROUP_EVENT_CONFIG:       "Endurance Group Event Configuration",
	FEATURE_IO_COMMAND_SET_PROFILE:             "I/O Command Set Profile",
	FEATURE_ENHANCED_CONTROLLER_METADATA:       "Enhanced Controller Metadata",
	FEATURE_CONTROLLER_METADATA:                "Controller Metadata",
	FEATURE_NAMESPACE_METADATA:                 "Namespace Metadata",
	FEATURE_SOFTWARE_PROGRESS_MARKER:           "Software Progress Marker",
	FEATURE_HOST_IDENTIFIER:                    "Host Identifier",
	FEATURE_RESERVATION_NOTIFICATION_MASK:      "Reservation Notification Mask",
	FEATURE_RESERVATION_PERSISTENCE:            "Reservation Persistence",
	FEATURE_NAMESPACE_WRITE_PROTECTION_CONFIG:  "Namespace Write Protection Config",
	FEATURE_ERROR_INJECTION:                    "Error Injection",
	FEATURE_CLEAR_FW_UPDATE_HISTORY:            "Clear Firmware Update History",
	FEATURE_READONLY_WRITETHROUGH_MODE:         "Read-only/Write-through Mode",
	FEATURE_CLEAR_PCIE_CORRECTABLE_ERRORS:      "Clear PCIe Correctable Error Counters",
	FEATURE_ENABLE_IEEE1667_SILO:               "Enable IEEE1667 Silo",
	FEATURE_PLP_HEALTH_MONITOR:                 "PLP Health Check Interval",
}

// FeatureName returns the name of a feature identifier, or "" when unknown.
func FeatureName(fid uint8) string {
	return featureNames[fid]
}

// DataDirection returns the data transfer direction encoded in the low two bits of an admin
// opcode: 0 none, 1 host to controller, 2 controller to host, 3 bidirectional.
func DataDirection(opcode uint8) uint8 {
	return opcode & 3
}
