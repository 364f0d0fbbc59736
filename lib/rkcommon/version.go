// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package rkcommon

import "fmt"

type Version struct {
	Major, Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%02d", v.Major, v.Minor)
}

// BCD encodes a two-digit decimal value one digit per nibble, which is how
// the header version fields are stored.
func BCD(val int) byte {
	val %= 100
	return byte((val/10)<<4 | val%10)
}

func FromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0xf)
}

// Packed packs the version the way the boot and trust headers carry it:
// BCD major in the second byte, BCD minor in the first.
func (v Version) Packed() uint32 {
	return uint32(BCD(v.Major))<<8 | uint32(BCD(v.Minor))
}

func VersionFromPacked(packed uint32) Version {
	return Version{
		Major: FromBCD(byte(packed >> 8)),
		Minor: FromBCD(byte(packed)),
	}
}
