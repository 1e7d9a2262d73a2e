// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package main

import (
	"io"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/dswarbrick/nvmectl/drivedb"
)

// isNVMe reports whether a drivedb.h entry describes an NVMe device. smartmontools marks them
// with "NVMe" in the family name or an "-d nvme" preset.
func isNVMe(family, presets string) bool {
	return family == "DEFAULT" || strings.Contains(strings.ToLower(family), "nvme") ||
		strings.Contains(presets, "-d nvme")
}

// convert parses the entries of a smartmontools drivedb.h and keeps the NVMe ones. ATA attribute
// presets have no NVMe meaning and are dropped.
func convert(r io.Reader, name string) drivedb.DriveDb {
	var (
		s     scanner.Scanner
		prev  rune
		idx   int
		items = make([]string, 5)
		db    drivedb.DriveDb
	)

	s.Init(r)
	s.Filename = name

	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		if (prev == '{' || prev == ',') && tok == scanner.String {
			if idx < len(items) {
				items[idx] = strings.Trim(s.TokenText(), `"`)
			}
		} else if prev == scanner.String && tok == ',' {
			idx++
		} else if prev == scanner.String && tok == scanner.String {
			if idx < len(items) {
				items[idx] += strings.Trim(s.TokenText(), `"`)
			}
		} else if tok == '}' {
			var f [4]string

			for i := range f {
				if tmp, err := strconv.Unquote(`"` + items[i] + `"`); err == nil {
					f[i] = tmp
				}
			}

			if f[0] != "" && isNVMe(f[0], items[4]) {
				dm := drivedb.DriveModel{Family: f[0], ModelRegex: f[1], FirmwareRegex: f[2], WarningMsg: f[3]}
				if dm.Family == "DEFAULT" {
					dm.ModelRegex = ""
				}

				db.Drives = append(db.Drives, dm)
			}

			items = make([]string, 5)
			idx = 0
		}

		prev = tok
	}

	return db
}
