// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

//go:build windows

package devtree

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	CM_GET_DEVICE_INTERFACE_LIST_PRESENT     = 0
	CM_GET_DEVICE_INTERFACE_LIST_ALL_DEVICES = 1

	CM_LOCATE_DEVNODE_NORMAL = 0

	CM_DISABLE_HARDWARE  = 0x2
	CM_DISABLE_UI_NOT_OK = 0x4

	CM_REMOVE_NO_RESTART = 0x2

	CM_SETUP_DEVNODE_READY = 0
	CM_REENUMERATE_NORMAL  = 0

	DEVPROP_TYPE_STRING = 0x12
)

var (
	GUID_DEVINTERFACE_DISK = windows.GUID{Data1: 0x53f56307, Data2: 0xb6bf, Data3: 0x11d0,
		Data4: [8]byte{0x94, 0xf2, 0x00, 0xa0, 0xc9, 0x1e, 0xfb, 0x8b}}
	GUID_DEVINTERFACE_STORAGEPORT = windows.GUID{Data1: 0x2accfe60, Data2: 0xc130, Data3: 0x11d2,
		Data4: [8]byte{0xb0, 0x82, 0x00, 0xa0, 0xc9, 0x1e, 0xfb, 0x8b}}
)

// DEVPROPKEY
type devPropKey struct {
	fmtid windows.GUID
	pid   uint32
}

var (
	devpkeyDeviceService = devPropKey{windows.GUID{Data1: 0xa45c254e, Data2: 0xdf1c, Data3: 0x4efd,
		Data4: [8]byte{0x80, 0x20, 0x67, 0xd1, 0x46, 0xa8, 0x50, 0xe0}}, 6}
	devpkeyDeviceLocationInfo = devPropKey{devpkeyDeviceService.fmtid, 15}
	devpkeyDeviceInstanceID   = devPropKey{windows.GUID{Data1: 0x78c34fc8, Data2: 0x104a, Data3: 0x4aca,
		Data4: [8]byte{0x9e, 0xa4, 0x52, 0x4d, 0x52, 0x99, 0x6e, 0x57}}, 256}

	propertyKeys = map[Property]*devPropKey{
		PropertyService:      &devpkeyDeviceService,
		PropertyLocationInfo: &devpkeyDeviceLocationInfo,
		PropertyInstanceID:   &devpkeyDeviceInstanceID,
	}
)

var (
	modcfgmgr32 = windows.NewLazySystemDLL("cfgmgr32.dll")

	procCM_Get_Device_Interface_List_SizeW = modcfgmgr32.NewProc("CM_Get_Device_Interface_List_SizeW")
	procCM_Get_Device_Interface_ListW      = modcfgmgr32.NewProc("CM_Get_Device_Interface_ListW")
	procCM_Get_Device_Interface_PropertyW  = modcfgmgr32.NewProc("CM_Get_Device_Interface_PropertyW")
	procCM_Locate_DevNodeW                 = modcfgmgr32.NewProc("CM_Locate_DevNodeW")
	procCM_Get_DevNode_Status              = modcfgmgr32.NewProc("CM_Get_DevNode_Status")
	procCM_Get_DevNode_PropertyW           = modcfgmgr32.NewProc("CM_Get_DevNode_PropertyW")
	procCM_Get_Parent                      = modcfgmgr32.NewProc("CM_Get_Parent")
	procCM_Get_Child                       = modcfgmgr32.NewProc("CM_Get_Child")
	procCM_Get_Sibling                     = modcfgmgr32.NewProc("CM_Get_Sibling")
	procCM_Enable_DevNode                  = modcfgmgr32.NewProc("CM_Enable_DevNode")
	procCM_Disable_DevNode                 = modcfgmgr32.NewProc("CM_Disable_DevNode")
	procCM_Query_And_Remove_SubTreeW       = modcfgmgr32.NewProc("CM_Query_And_Remove_SubTreeW")
	procCM_Setup_DevNode                   = modcfgmgr32.NewProc("CM_Setup_DevNode")
	procCM_Reenumerate_DevNode             = modcfgmgr32.NewProc("CM_Reenumerate_DevNode")
)

// SystemTree is the device tree of the running system, accessed through cfgmgr32.
type SystemTree struct{}

func NewSystemTree() (Tree, error) {
	if err := modcfgmgr32.Load(); err != nil {
		return nil, err
	}

	return SystemTree{}, nil
}

func configRet(r1 uintptr) error {
	return ConfigRet(r1).Err()
}

func utf16Ptr(s string) (*uint16, error) {
	if s == "" {
		return nil, nil
	}

	return windows.UTF16PtrFromString(s)
}

func interfaceList(class *windows.GUID, deviceID string, flags uint32) ([]string, error) {
	id, err := utf16Ptr(deviceID)
	if err != nil {
		return nil, err
	}

	for {
		var n uint32

		r1, _, _ := procCM_Get_Device_Interface_List_SizeW.Call(uintptr(unsafe.Pointer(&n)),
			uintptr(unsafe.Pointer(class)), uintptr(unsafe.Pointer(id)), uintptr(flags))
		if err := configRet(r1); err != nil {
			return nil, err
		}

		if n <= 1 {
			return nil, nil
		}

		buf := make([]uint16, n)

		r1, _, _ = procCM_Get_Device_Interface_ListW.Call(uintptr(unsafe.Pointer(class)),
			uintptr(unsafe.Pointer(id)), uintptr(unsafe.Pointer(&buf[0])), uintptr(n), uintptr(flags))

		// The list grew between the two calls
		if ConfigRet(r1) == CR_BUFFER_SMALL {
			continue
		}

		if err := configRet(r1); err != nil {
			return nil, err
		}

		return splitMultiSz(buf), nil
	}
}

// stringProperty fetches a string property with one of the CM_Get_*_PropertyW functions, which
// share their trailing arguments.
func stringProperty(proc *windows.LazyProc, target uintptr, key *devPropKey) (string, error) {
	var (
		typ  uint32
		size uint32
	)

	r1, _, _ := proc.Call(target, uintptr(unsafe.Pointer(key)), uintptr(unsafe.Pointer(&typ)), 0,
		uintptr(unsafe.Pointer(&size)), 0)
	if ConfigRet(r1) != CR_BUFFER_SMALL {
		if err := configRet(r1); err != nil {
			return "", err
		}

		return "", nil
	}

	buf := make([]uint16, (size+1)/2)

	r1, _, _ = proc.Call(target, uintptr(unsafe.Pointer(key)), uintptr(unsafe.Pointer(&typ)),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), 0)
	if err := configRet(r1); err != nil {
		return "", err
	}

	if typ != DEVPROP_TYPE_STRING {
		return "", fmt.Errorf("property type %#x is not a string: %w", typ, ConfigRet(CR_INVALID_DATA))
	}

	return windows.UTF16ToString(buf), nil
}

func (SystemTree) StoragePorts() ([]string, error) {
	return interfaceList(&GUID_DEVINTERFACE_STORAGEPORT, "", CM_GET_DEVICE_INTERFACE_LIST_ALL_DEVICES)
}

func (SystemTree) InterfaceInstanceID(iface string) (string, error) {
	p, err := windows.UTF16PtrFromString(iface)
	if err != nil {
		return "", err
	}

	return stringProperty(procCM_Get_Device_Interface_PropertyW, uintptr(unsafe.Pointer(p)), &devpkeyDeviceInstanceID)
}

func (SystemTree) DiskInterface(instanceID string) (string, error) {
	list, err := interfaceList(&GUID_DEVINTERFACE_DISK, instanceID, CM_GET_DEVICE_INTERFACE_LIST_PRESENT)
	if err != nil {
		return "", err
	}

	if len(list) == 0 {
		return "", ConfigRet(CR_NO_SUCH_DEVICE_INTERFACE)
	}

	return list[0], nil
}

func (SystemTree) Locate(instanceID string) (DevInst, error) {
	id, err := utf16Ptr(instanceID)
	if err != nil {
		return 0, err
	}

	var inst uint32

	r1, _, _ := procCM_Locate_DevNodeW.Call(uintptr(unsafe.Pointer(&inst)), uintptr(unsafe.Pointer(id)),
		CM_LOCATE_DEVNODE_NORMAL)

	return DevInst(inst), configRet(r1)
}

func (SystemTree) Status(inst DevInst) (uint32, uint32, error) {
	var status, problem uint32

	r1, _, _ := procCM_Get_DevNode_Status.Call(uintptr(unsafe.Pointer(&status)),
		uintptr(unsafe.Pointer(&problem)), uintptr(inst), 0)

	return status, problem, configRet(r1)
}

func (SystemTree) Property(inst DevInst, p Property) (string, error) {
	key, ok := propertyKeys[p]
	if !ok {
		return "", ConfigRet(CR_NO_SUCH_VALUE)
	}

	return stringProperty(procCM_Get_DevNode_PropertyW, uintptr(inst), key)
}

func relative(proc *windows.LazyProc, inst DevInst) (DevInst, error) {
	var out uint32

	r1, _, _ := proc.Call(uintptr(unsafe.Pointer(&out)), uintptr(inst), 0)

	return DevInst(out), configRet(r1)
}

func (SystemTree) Parent(inst DevInst) (DevInst, error)  { return relative(procCM_Get_Parent, inst) }
func (SystemTree) Child(inst DevInst) (DevInst, error)   { return relative(procCM_Get_Child, inst) }
func (SystemTree) Sibling(inst DevInst) (DevInst, error) { return relative(procCM_Get_Sibling, inst) }

func (SystemTree) Enable(inst DevInst) error {
	r1, _, _ := procCM_Enable_DevNode.Call(uintptr(inst), 0)
	return configRet(r1)
}

func (SystemTree) Disable(inst DevInst) error {
	r1, _, _ := procCM_Disable_DevNode.Call(uintptr(inst), CM_DISABLE_HARDWARE|CM_DISABLE_UI_NOT_OK)
	return configRet(r1)
}

func (SystemTree) Remove(inst DevInst) error {
	var (
		vetoType uint32
		vetoName [windows.MAX_PATH]uint16
	)

	r1, _, _ := procCM_Query_And_Remove_SubTreeW.Call(uintptr(inst), uintptr(unsafe.Pointer(&vetoType)),
		uintptr(unsafe.Pointer(&vetoName[0])), windows.MAX_PATH, CM_REMOVE_NO_RESTART)

	if ConfigRet(r1) == CR_REMOVE_VETOED {
		return fmt.Errorf("veto type %d by %s: %w", vetoType, windows.UTF16ToString(vetoName[:]), ConfigRet(r1))
	}

	return configRet(r1)
}

func (SystemTree) Setup(inst DevInst) error {
	r1, _, _ := procCM_Setup_DevNode.Call(uintptr(inst), CM_SETUP_DEVNODE_READY)
	return configRet(r1)
}

func (SystemTree) Reenumerate(inst DevInst) error {
	r1, _, _ := procCM_Reenumerate_DevNode.Call(uintptr(inst), CM_REENUMERATE_NORMAL)
	return configRet(r1)
}

func logicalDriveStrings() ([]string, error) {
	n, err := windows.GetLogicalDriveStrings(0, nil)
	if err != nil {
		return nil, err
	}

	buf := make([]uint16, n)

	n, err = windows.GetLogicalDriveStrings(uint32(len(buf)), &buf[0])
	if err != nil {
		return nil, err
	}

	return splitMultiSz(buf[:n]), nil
}
