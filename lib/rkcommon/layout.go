// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package rkcommon

const (
	// Every data region the BootROM reads starts on a 2048-byte boundary.
	EntryAlign = 2048

	// RC4 and the trust location table both work in 512-byte units.
	SmallBlock  = 512
	SectorShift = 9
)

func Align(n, align int) int {
	return (n + align - 1) / align * align
}

// Pad returns data zero-extended to size. It never truncates; data longer
// than size is returned as-is.
func Pad(data []byte, size int) []byte {
	if len(data) >= size {
		return data
	}
	padded := make([]byte, size)
	copy(padded, data)
	return padded
}

func PadAlign(data []byte, align int) []byte {
	return Pad(data, Align(len(data), align))
}
