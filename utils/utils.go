// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Miscellaneous utility functions

package utils

import (
	"fmt"
	"math/big"
	"math/bits"
	"strings"
)

// Log2b finds the most significant bit set in a uint.
func Log2b(x uint) int {
	if x == 0 {
		return 0
	}

	return bits.Len(x) - 1
}

// Le128ToBigInt takes a little-endian 16-byte array and returns a *big.Int representing it.
func Le128ToBigInt(buf [16]byte) *big.Int {
	// Int.SetBytes() expects big-endian input, so reverse the bytes locally first
	rev := make([]byte, 16)
	for x := 0; x < 16; x++ {
		rev[x] = buf[16-x-1]
	}

	return new(big.Int).SetBytes(rev)
}

// TrimASCII converts a space / NUL padded ASCII field (serial number, model number) to a string.
func TrimASCII(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}

var suffixes = [...]string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// FormatBytes formats a uint64 byte quantity using human-readble units, e.g. kilobyte, megabyte.
func FormatBytes(v uint64) string {
	var i int

	d := uint64(1)

	for i = 0; i < 6; i++ {
		if v >= d*1000 {
			d *= 1000
		} else {
			break
		}
	}

	if i == 0 {
		return fmt.Sprintf("%d %s", v, suffixes[i])
	}

	// Print 3 significant digits
	return fmt.Sprintf("%.3g %s", float64(v)/float64(d), suffixes[i])
}

// FormatBigBytes is the big.Int variant of FormatBytes, used for 128-bit NVMe counters.
func FormatBigBytes(v *big.Int) string {
	var i int

	d := big.NewInt(1)
	thousand := big.NewInt(1000)

	for i = 0; i < len(suffixes)-1; i++ {
		next := new(big.Int).Mul(d, thousand)
		if v.Cmp(next) < 0 {
			break
		}
		d = next
	}

	if i == 0 {
		return fmt.Sprintf("%s %s", v.String(), suffixes[i])
	}

	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(d)).Float64()

	return fmt.Sprintf("%.3g %s", f, suffixes[i])
}
