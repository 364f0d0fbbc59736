// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package rkcommon

import (
	"encoding/binary"
	"fmt"
	"time"
)

// ReleaseTime is the 7-byte creation timestamp in the boot header:
// u16 year followed by single bytes for month, day, hour, minute, second.
type ReleaseTime struct {
	Year                             uint16
	Month, Day, Hour, Minute, Second byte
}

const ReleaseTimeLen = 7

func ReleaseTimeNow() ReleaseTime {
	t := time.Now()
	return ReleaseTime{
		Year:   uint16(t.Year()),
		Month:  byte(t.Month()),
		Day:    byte(t.Day()),
		Hour:   byte(t.Hour()),
		Minute: byte(t.Minute()),
		Second: byte(t.Second()),
	}
}

func (rt ReleaseTime) Put(b []byte) {
	binary.LittleEndian.PutUint16(b, rt.Year)
	b[2] = rt.Month
	b[3] = rt.Day
	b[4] = rt.Hour
	b[5] = rt.Minute
	b[6] = rt.Second
}

func GetReleaseTime(b []byte) ReleaseTime {
	return ReleaseTime{
		Year:   binary.LittleEndian.Uint16(b),
		Month:  b[2],
		Day:    b[3],
		Hour:   b[4],
		Minute: b[5],
		Second: b[6],
	}
}

func (rt ReleaseTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		rt.Year, rt.Month, rt.Day, rt.Hour, rt.Minute, rt.Second)
}
