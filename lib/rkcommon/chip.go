// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package rkcommon

import "strings"

// Older chips have fixed enumerant IDs. Anything not in this table gets the
// ASCII packing treatment below.
var legacyChips = map[string]uint32{
	"RK27":     0x10,
	"RKCAYMAN": 0x11,
	"RK28":     0x20,
	"RK281X":   0x21,
	"RKPANDA":  0x22,
	"RKNANO":   0x30,
	"RKSMART":  0x31,
	"RKCROWN":  0x40,
	"RK29":     0x50,
	"RK292X":   0x51,
	"RK30":     0x60,
	"RK30B":    0x61,
	"RK31":     0x70,
	"RK32":     0x80,
}

// ChipType maps a manifest chip name to the 32-bit form the boot header
// carries. Newer names ("RK3399", "RK330C", ...) pack the four characters
// after the "RK" prefix big-endian, so "RK3399" becomes 0x33333939.
func ChipType(name string) uint32 {
	if t, ok := legacyChips[name]; ok {
		return t
	}

	id := name
	if strings.HasPrefix(id, "RK") {
		id = id[2:]
	}
	if len(id) > 4 {
		id = id[:4]
	}

	var t uint32
	for i := 0; i < 4; i++ {
		var c byte
		if i < len(id) {
			c = id[i]
		}
		t = t<<8 | uint32(c)
	}
	return t
}

// ChipName is the display-only inverse of ChipType. Legacy enumerants map
// back through the table; packed ASCII IDs are reconstructed with the RK
// prefix.
func ChipName(t uint32) string {
	for name, id := range legacyChips {
		if id == t {
			return name
		}
	}

	b := make([]byte, 0, 4)
	for shift := 24; shift >= 0; shift -= 8 {
		c := byte(t >> uint(shift))
		if c == 0 {
			continue
		}
		b = append(b, c)
	}
	return "RK" + string(b)
}
