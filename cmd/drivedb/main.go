// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// drivedb converts the NVMe entries of a smartmontools drivedb.h to the YAML drive database used
// by nvmectl, and looks up models in such a database.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/dswarbrick/nvmectl/drivedb"
)

const defaultDrivedbURL = "https://www.smartmontools.org/export/HEAD/trunk/smartmontools/drivedb.h"

// openSource opens a local drivedb.h, or fetches it from url when no local file is given.
func openSource(path, url string, stdout io.Writer) (io.ReadCloser, string, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("cannot open source file: %w", err)
		}

		return f, path, nil
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("cannot fetch drivedb: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("cannot fetch drivedb: %s", resp.Status)
	}

	fmt.Fprintf(stdout, "Reading from fetched drivedb %s\n", url)

	return resp.Body, url, nil
}

func runConvert(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("convert", pflag.ContinueOnError)
	src := fs.StringP("input", "i", "", "Local drivedb.h file (fetched from --url if empty)")
	url := fs.String("url", defaultDrivedbURL, "drivedb.h URL")
	dest := fs.StringP("output", "o", "drivedb.yml", "Output .yml file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	input, name, err := openSource(*src, *url, stdout)
	if err != nil {
		return err
	}
	defer input.Close()

	t0 := time.Now()
	db := convert(input, name)

	out, err := yaml.Marshal(db)
	if err != nil {
		return fmt.Errorf("error encoding yaml: %w", err)
	}

	// Make sure the result loads before writing it
	if _, err := drivedb.ParseDriveDb(bytes.NewReader(out)); err != nil {
		return fmt.Errorf("converted database is invalid: %w", err)
	}

	if err := os.WriteFile(*dest, out, 0o644); err != nil {
		return fmt.Errorf("cannot write output: %w", err)
	}

	fmt.Fprintf(stdout, "Parsed %s in %v - %d NVMe entries\n", name, time.Since(t0), len(db.Drives))
	fmt.Fprintf(stdout, "Successfully wrote output to %s\n", *dest)

	return nil
}

func runLookup(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("lookup", pflag.ContinueOnError)
	dbfile := fs.String("drivedb", "drivedb.yml", "YAML drive database")
	firmware := fs.String("firmware", "", "Firmware revision")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return errors.New("usage: drivedb lookup [--drivedb file] [--firmware rev] <model>")
	}

	db, err := drivedb.OpenDriveDb(*dbfile)
	if err != nil {
		return err
	}

	m := db.LookupDrive(fs.Arg(0), *firmware)
	if m.Family == "" {
		fmt.Fprintln(stdout, "No match")
		return nil
	}

	fmt.Fprintf(stdout, "Family:  %s\n", m.Family)

	if m.WarningMsg != "" {
		fmt.Fprintf(stdout, "Warning: %s\n", m.WarningMsg)
	}

	if len(m.Quirks) > 0 {
		fmt.Fprintf(stdout, "Quirks:  %v\n", m.Quirks)
	}

	return nil
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: drivedb convert|lookup [flags]")
	}

	switch args[0] {
	case "convert":
		return runConvert(args[1:], stdout)
	case "lookup":
		return runLookup(args[1:], stdout)
	}

	return fmt.Errorf("unknown command %q", args[0])
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
