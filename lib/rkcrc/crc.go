// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package rkcrc implements the CRC-32 variant the Rockchip BootROM checks
// images against. It is not CRC-32/IEEE: the polynomial is 0x04c10db7, fed
// MSB-first with no input/output reflection, zero initial value and no
// final xor. hash/crc32 only implements the reflected algorithm, so the
// table is built here.
package rkcrc

const poly = 0x04c10db7

var table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ poly
			} else {
				c <<= 1
			}
		}
		table[i] = c
	}
}

// Update continues a CRC with more data.
func Update(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = crc<<8 ^ table[byte(crc>>24)^b]
	}
	return crc
}

// Sum computes the checksum of data in one shot.
func Sum(data []byte) uint32 {
	return Update(0, data)
}
