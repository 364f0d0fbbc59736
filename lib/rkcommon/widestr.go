// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package rkcommon

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// Entry names are stored as fixed-width UTF-16LE, zero padded.

func PutWideString(b []byte, s string, maxRunes int) {
	u16 := utf16.Encode([]rune(s))
	if len(u16) > maxRunes {
		u16 = u16[:maxRunes]
	}
	for i := 0; i < maxRunes; i++ {
		var v uint16
		if i < len(u16) {
			v = u16[i]
		}
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
}

func WideString(b []byte, maxRunes int) string {
	u16 := make([]uint16, maxRunes)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return strings.TrimRight(string(utf16.Decode(u16)), "\x00")
}
