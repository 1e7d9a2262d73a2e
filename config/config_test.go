// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/nvmectl/devtree"
)

func write(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoadMissing(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, devtree.DefaultSettle, c.DevtreeSettle())
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	c, err := Load(write(t, `
drivedb: /etc/nvmectl/drivedb.yml
verbosity: 2
settle:
  disable: 2s
  poll: 50ms
protected: ["C:", "D:"]
`))
	require.NoError(t, err)

	assert.Equal("stornvme", c.Service)
	assert.Equal("/etc/nvmectl/drivedb.yml", c.DriveDb)
	assert.Equal(2, c.Verbosity)
	assert.Equal([]string{"C:", "D:"}, c.Protected)

	s := c.DevtreeSettle()
	assert.Equal(2*time.Second, s.Disable)
	assert.Equal(50*time.Millisecond, s.Poll)
	assert.Equal(devtree.DefaultSettle.Enable, s.Enable)
}

func TestLoadInvalid(t *testing.T) {
	for _, body := range []string{
		"settle: {remove: -1s}\n",
		"service: \"\"\n",
		"unknown_key: 1\n",
		"settle: {enable: soon}\n",
	} {
		_, err := Load(write(t, body))
		assert.Error(t, err, body)
	}
}
