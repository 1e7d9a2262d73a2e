// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package drivedb matches NVMe controllers against a YAML database of known models, yielding a
// family name, an optional warning and controller quirks.
package drivedb

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/dswarbrick/nvmectl/nvme"
)

// Known quirk names
const (
	QUIRK_NO_VENDOR_PASSTHROUGH = "no_vendor_passthrough"
)

type DriveModel struct {
	Family        string   `yaml:"family,omitempty"`
	ModelRegex    string   `yaml:"model_regex,omitempty"`
	FirmwareRegex string   `yaml:"firmware_regex,omitempty"`
	WarningMsg    string   `yaml:"warning,omitempty"`
	Quirks        []string `yaml:"quirks,omitempty"`

	modelRe    *regexp.Regexp
	firmwareRe *regexp.Regexp
}

type DriveDb struct {
	Drives []DriveModel `yaml:"drives"`
}

// NVMeQuirks translates the model's quirk names.
func (m DriveModel) NVMeQuirks() nvme.Quirks {
	var q nvme.Quirks

	for _, name := range m.Quirks {
		if name == QUIRK_NO_VENDOR_PASSTHROUGH {
			q.NoVendorPassthrough = true
		}
	}

	return q
}

// LookupDrive returns the first entry matching an Identify Controller model number and firmware
// revision. An entry without a firmware regex matches every firmware. If nothing matches, the
// DEFAULT entry is returned, or the zero DriveModel if there is none.
func (db *DriveDb) LookupDrive(model, firmware string) DriveModel {
	var def DriveModel

	for _, d := range db.Drives {
		if d.Family == "DEFAULT" {
			def = d
			continue
		}

		if d.modelRe == nil || !d.modelRe.MatchString(model) {
			continue
		}

		if d.firmwareRe != nil && !d.firmwareRe.MatchString(firmware) {
			continue
		}

		return d
	}

	return def
}

// ParseDriveDb decodes a YAML drive database and compiles its regexes. Patterns must match the
// whole model or firmware string.
func ParseDriveDb(r io.Reader) (DriveDb, error) {
	var db DriveDb

	if err := yaml.NewDecoder(r).Decode(&db); err != nil && !errors.Is(err, io.EOF) {
		return db, err
	}

	for i, d := range db.Drives {
		var err error

		if db.Drives[i].modelRe, err = compile(d.ModelRegex); err != nil {
			return db, fmt.Errorf("drive %d (%s): model regex: %w", i, d.Family, err)
		}

		if db.Drives[i].firmwareRe, err = compile(d.FirmwareRegex); err != nil {
			return db, fmt.Errorf("drive %d (%s): firmware regex: %w", i, d.Family, err)
		}
	}

	return db, nil
}

func compile(expr string) (*regexp.Regexp, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	return regexp.Compile("^(?:" + expr + ")$")
}

// OpenDriveDb opens a YAML-formatted drive database. A missing file yields an empty database.
func OpenDriveDb(dbfile string) (DriveDb, error) {
	f, err := os.Open(dbfile)
	if errors.Is(err, fs.ErrNotExist) {
		return DriveDb{}, nil
	} else if err != nil {
		return DriveDb{}, err
	}

	defer f.Close()

	return ParseDriveDb(f)
}
