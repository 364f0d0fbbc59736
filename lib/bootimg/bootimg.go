// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package bootimg packs and unpacks the bootstrap container: the first
// image the BootROM loads, holding DRAM-init code and a minimal loader.
//
// Layout:
//
//	0x000  header, padded to one 512-byte block
//	0x200  entry table, 57 bytes per entry
//	...    component data, each region 2048-aligned
//	end    4-byte trailing CRC over everything before it
//
// The header block may optionally be RC4-obscured for card-boot images;
// the entry table and data stay cleartext unless the loader-data cipher
// switch is on.
package bootimg

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
)

const (
	// "BOOT", little-endian.
	bootTag = 0x544f4f42

	mergerVersion = 0x01030000

	headerStructSize = 102
	// The header struct is padded out to one cipher block, so the
	// optional header cipher covers exactly the first 512 bytes.
	HeaderBlockSize = rkcommon.SmallBlock

	entrySize   = 57
	nameRunes   = 20
	trailerSize = 4
)

type EntryType uint32

const (
	Entry471    EntryType = 1
	Entry472    EntryType = 2
	EntryLoader EntryType = 4
)

func (t EntryType) String() string {
	switch t {
	case Entry471:
		return "code471"
	case Entry472:
		return "code472"
	case EntryLoader:
		return "loader"
	}
	return "???"
}

// Component is one binary to embed, already read into memory.
type Component struct {
	Name string
	Type EntryType
	Data []byte
}

// Entry is one decoded entry-table record.
type Entry struct {
	Type EntryType
	Name string
	// DataOffset/DataSize locate the stored (padded) region within the
	// container; RawSize is the component's original length, used to
	// strip the alignment padding on extraction.
	DataOffset uint32
	DataSize   uint32
	RawSize    uint32
}

func putEntry(b []byte, e *Entry) {
	le := binary.LittleEndian
	b[0] = entrySize
	le.PutUint32(b[1:], uint32(e.Type))
	rkcommon.PutWideString(b[5:], e.Name, nameRunes)
	le.PutUint32(b[45:], e.DataOffset)
	le.PutUint32(b[49:], e.DataSize)
	le.PutUint32(b[53:], e.RawSize)
}

func getEntry(b []byte) (Entry, error) {
	if len(b) < entrySize {
		return Entry{}, errors.Wrap(rkcommon.ErrMalformedImage, "truncated entry")
	}

	le := binary.LittleEndian
	e := Entry{
		Type:       EntryType(le.Uint32(b[1:])),
		Name:       rkcommon.WideString(b[5:], nameRunes),
		DataOffset: le.Uint32(b[45:]),
		DataSize:   le.Uint32(b[49:]),
		RawSize:    le.Uint32(b[53:]),
	}

	switch e.Type {
	case Entry471, Entry472, EntryLoader:
	default:
		return Entry{}, errors.Wrapf(rkcommon.ErrMalformedImage,
			"unrecognised entry type %d", e.Type)
	}

	return e, nil
}

type header struct {
	version       uint32
	mergerVersion uint32
	releaseTime   rkcommon.ReleaseTime
	chipType      uint32

	num471, num472, numLoader    byte
	off471, off472, offLoader    uint32
	size471, size472, sizeLoader byte

	signFlag byte
	// Vendor polarity: 0 means the loader entry data is ciphered,
	// 1 means cleartext.
	rc4Flag byte
}

func (h *header) toBytes() []byte {
	buf := make([]byte, HeaderBlockSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:], bootTag)
	le.PutUint16(buf[4:], headerStructSize)
	le.PutUint32(buf[6:], h.version)
	le.PutUint32(buf[10:], h.mergerVersion)
	h.releaseTime.Put(buf[14:])
	le.PutUint32(buf[21:], h.chipType)

	buf[25] = h.num471
	le.PutUint32(buf[26:], h.off471)
	buf[30] = h.size471
	buf[31] = h.num472
	le.PutUint32(buf[32:], h.off472)
	buf[36] = h.size472
	buf[37] = h.numLoader
	le.PutUint32(buf[38:], h.offLoader)
	buf[42] = h.sizeLoader

	buf[43] = h.signFlag
	buf[44] = h.rc4Flag
	// 45..102 reserved, 102..512 block padding; all zero.

	return buf
}

func headerFromBytes(raw []byte) (*header, bool) {
	le := binary.LittleEndian
	if len(raw) < headerStructSize || le.Uint32(raw) != bootTag {
		return nil, false
	}

	return &header{
		version:       le.Uint32(raw[6:]),
		mergerVersion: le.Uint32(raw[10:]),
		releaseTime:   rkcommon.GetReleaseTime(raw[14:]),
		chipType:      le.Uint32(raw[21:]),
		num471:        raw[25],
		off471:        le.Uint32(raw[26:]),
		size471:       raw[30],
		num472:        raw[31],
		off472:        le.Uint32(raw[32:]),
		size472:       raw[36],
		numLoader:     raw[37],
		offLoader:     le.Uint32(raw[38:]),
		sizeLoader:    raw[42],
		signFlag:      raw[43],
		rc4Flag:       raw[44],
	}, true
}
