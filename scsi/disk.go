// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Sector streaming and security protocol commands over SCSI pass-through.

package scsi

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/dswarbrick/nvmectl/utils"
)

const (
	// TCG ComID used for Level 0 Discovery
	TCG_COMID_DISCOVERY = 0x0001

	DISCOVERY0_LEN = 4096
)

// Disk streams whole sectors to and from a disk. Writes advance an internal cursor; reads are
// positioned explicitly.
type Disk struct {
	pt     PassThrough
	log    logr.Logger
	fua    bool
	offset uint64
}

type DiskOption func(*Disk)

func WithDiskLogger(log logr.Logger) DiskOption {
	return func(d *Disk) { d.log = log }
}

// WithFUA sets the force unit access bit on every write.
func WithFUA(fua bool) DiskOption {
	return func(d *Disk) { d.fua = fua }
}

func NewDisk(pt PassThrough, opts ...DiskOption) *Disk {
	d := &Disk{pt: pt, log: logr.Discard()}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Disk) execute(cdb []byte, dataIn uint8, buf []byte) (uint32, error) {
	var sense [SENSE_BUF_LEN]byte

	n, status, err := d.pt.PassThroughDirect(cdb, dataIn, buf, sense[:], DEFAULT_TIMEOUT)
	if err != nil {
		return 0, fmt.Errorf("SCSI opcode %#02x: %w", cdb[0], err)
	}

	if status != SAM_STAT_GOOD {
		e := SenseError{ScsiStatus: status, Opcode: cdb[0], Sense: sense}
		d.log.V(1).Info("command failed", "opcode", cdb[0], "status", status, "senseKey", e.SenseKey())

		return n, e
	}

	return n, nil
}

// Read reads buf from the disk starting at byte offset, which is truncated to a sector boundary.
// It returns the number of bytes transferred.
func (d *Disk) Read(offset uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	_, blocks := SectorLength(len(buf))
	cdb := ReadWrite16{Opcode: SCSI_READ_16, LBA: offset >> SECTOR_SHIFT, Length: blocks}.CDB()

	n, err := d.execute(cdb[:], SCSI_IOCTL_DATA_IN, buf)

	return int(n), err
}

// ReadAt implements io.ReaderAt.
func (d *Disk) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	return d.Read(uint64(off), p)
}

// Write writes buf at the cursor, which is then advanced by the number of bytes the device
// reports as transferred.
func (d *Disk) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	var flags uint8
	if d.fua {
		flags = SCSI_FL_FUA
	}

	_, blocks := SectorLength(len(buf))
	cdb := ReadWrite16{Opcode: SCSI_WRITE_16, Flags: flags, LBA: d.offset >> SECTOR_SHIFT, Length: blocks}.CDB()

	n, err := d.execute(cdb[:], SCSI_IOCTL_DATA_OUT, buf)
	if err != nil {
		return int(n), err
	}

	d.offset += uint64(n)

	return int(n), nil
}

// Seek moves the write cursor to byte offset.
func (d *Disk) Seek(offset uint64) { d.offset = offset }

func (d *Disk) Offset() uint64 { return d.offset }

func (d *Disk) SecurityReceive(protocol uint8, spSpecific uint16, buf []byte) (int, error) {
	cdb := Security12{
		Opcode:     SCSI_SECURITY_PROTOCOL_IN,
		Protocol:   protocol,
		SPSpecific: spSpecific,
		Length:     uint32(len(buf)),
	}.CDB()

	n, err := d.execute(cdb[:], SCSI_IOCTL_DATA_IN, buf)

	return int(n), err
}

func (d *Disk) SecuritySend(protocol uint8, spSpecific uint16, buf []byte) (int, error) {
	cdb := Security12{
		Opcode:     SCSI_SECURITY_PROTOCOL_OUT,
		Protocol:   protocol,
		SPSpecific: spSpecific,
		Length:     uint32(len(buf)),
	}.CDB()

	n, err := d.execute(cdb[:], SCSI_IOCTL_DATA_OUT, buf)

	return int(n), err
}

// Discovery0 returns the TCG Level 0 Discovery response.
func (d *Disk) Discovery0() ([]byte, error) {
	buf := AlignedBuffer(DISCOVERY0_LEN)

	if _, err := d.SecurityReceive(SECURITY_PROTOCOL_TCG, TCG_COMID_DISCOVERY, buf); err != nil {
		return nil, fmt.Errorf("level 0 discovery: %w", err)
	}

	return buf, nil
}

func (d *Disk) ReadCapacity() (Capacity, error) {
	buf := AlignedBuffer(READ_CAPACITY_16_LEN)
	cdb := ReadCapacity16CDB(READ_CAPACITY_16_LEN)

	if _, err := d.execute(cdb[:], SCSI_IOCTL_DATA_IN, buf); err != nil {
		return Capacity{}, err
	}

	return DecodeReadCapacity16(buf)
}

// InquiryData holds the identification fields of the standard INQUIRY response.
type InquiryData struct {
	PeripheralType uint8
	Version        uint8
	Vendor         string
	Product        string
	Revision       string
}

func (i InquiryData) String() string {
	return fmt.Sprintf("%s %s %s", i.Vendor, i.Product, i.Revision)
}

func DecodeInquiry(buf []byte) (InquiryData, error) {
	if len(buf) < INQ_REPLY_LEN {
		return InquiryData{}, fmt.Errorf("short INQUIRY data: %d bytes", len(buf))
	}

	return InquiryData{
		PeripheralType: buf[0] & 0x1f,
		Version:        buf[2],
		Vendor:         utils.TrimASCII(buf[8:16]),
		Product:        utils.TrimASCII(buf[16:32]),
		Revision:       utils.TrimASCII(buf[32:36]),
	}, nil
}

func (d *Disk) Inquiry() (InquiryData, error) {
	buf := AlignedBuffer(INQ_REPLY_LEN)
	cdb := InquiryCDB(INQ_REPLY_LEN)

	if _, err := d.execute(cdb[:], SCSI_IOCTL_DATA_IN, buf); err != nil {
		return InquiryData{}, err
	}

	return DecodeInquiry(buf)
}

func (d *Disk) TestUnitReady() error {
	cdb := TestUnitReadyCDB()
	_, err := d.execute(cdb[:], SCSI_IOCTL_DATA_UNSPECIFIED, nil)

	return err
}
