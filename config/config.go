// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package config loads nvmectl settings from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dswarbrick/nvmectl/devtree"
)

const DefaultConfigPath = `C:\ProgramData\nvmectl\config.yml`

// Settle overrides the delays of devtree.DefaultSettle. Unset fields keep their default.
type Settle struct {
	Enable  time.Duration `yaml:"enable,omitempty"`
	Disable time.Duration `yaml:"disable,omitempty"`
	Remove  time.Duration `yaml:"remove,omitempty"`
	Restart time.Duration `yaml:"restart,omitempty"`
	Rescan  time.Duration `yaml:"rescan,omitempty"`
	Poll    time.Duration `yaml:"poll,omitempty"`
}

type Config struct {
	// Driver service of NVMe storage ports
	Service   string `yaml:"service,omitempty"`
	DriveDb   string `yaml:"drivedb,omitempty"`
	Verbosity int    `yaml:"verbosity,omitempty"`
	Settle    Settle `yaml:"settle,omitempty"`
	// Drives whose disks are never disabled
	Protected []string `yaml:"protected,omitempty"`
}

func Default() *Config {
	return &Config{
		Service:   devtree.DEFAULT_SERVICE,
		DriveDb:   "drivedb.yml",
		Protected: []string{"C:"},
	}
}

// Load reads the config file at path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return c, nil
}

func (c *Config) Validate() error {
	if c.Service == "" {
		return errors.New("service must not be empty")
	}

	s := c.Settle
	for _, d := range []time.Duration{s.Enable, s.Disable, s.Remove, s.Restart, s.Rescan, s.Poll} {
		if d < 0 {
			return fmt.Errorf("negative settle delay %v", d)
		}
	}

	return nil
}

// DevtreeSettle merges the configured delays into devtree.DefaultSettle.
func (c *Config) DevtreeSettle() devtree.Settle {
	s := devtree.DefaultSettle

	merge := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}

	merge(&s.Enable, c.Settle.Enable)
	merge(&s.Disable, c.Settle.Disable)
	merge(&s.Remove, c.Settle.Remove)
	merge(&s.Restart, c.Settle.Restart)
	merge(&s.Rescan, c.Settle.Rescan)
	merge(&s.Poll, c.Settle.Poll)

	return s
}
