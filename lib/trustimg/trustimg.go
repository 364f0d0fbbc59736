// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package trustimg packs and unpacks the trust container: the image
// holding the secure-world firmware stages (BL30..BL33).
//
// Layout:
//
//	0x000  header struct, 800 bytes
//	0x320  component-data records, 48 bytes each (digest + load addr)
//	...    reserved 256-byte signature region
//	...    location records, 16 bytes each, in 512-byte sector units
//	0x800  component data, each region 2048-aligned
//
// Everything before 0x800 fits in one 2048-byte header block. The RSA
// fields and the signature region are reserved; nothing here computes
// them, only the mode flags are recorded.
package trustimg

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
	"github.com/usedbytes/rkboot-tools/lib/rkhash"
)

const (
	// "BL3X", little-endian.
	trustTag = 0x58334c42

	HeaderBlockSize  = rkcommon.EntryAlign
	headerStructSize = 800

	componentDataSize = 48
	signatureSize     = 256
	locationSize      = 16
	idLen             = 4

	// The location table has to end inside the header block.
	maxComponents = (HeaderBlockSize - headerStructSize - signatureSize) /
		(componentDataSize + locationSize)

	// The vendor reserves 2MiB per trust image on storage.
	DefaultMaxSize = 2 * 1024 * 1024
)

// SHAMode records which digest the image claims to carry. Only SHA256 is
// ever computed; the big-endian RK3368 variant and SHA1 exist in the wild
// and are preserved on unpack, but packing anything other than SHA256
// would lie about the record contents.
type SHAMode byte

const (
	SHANone  SHAMode = 0
	SHA1     SHAMode = 1
	SHA256BE SHAMode = 2
	SHA256   SHAMode = 3
)

func (m SHAMode) String() string {
	switch m {
	case SHANone:
		return "none"
	case SHA1:
		return "sha1"
	case SHA256BE:
		return "sha256-be"
	case SHA256:
		return "sha256"
	}
	return "???"
}

// RSAMode is recorded in the header flags but never acted on; the
// signature region stays zero.
type RSAMode byte

const (
	RSANone     RSAMode = 0
	RSAPKCS15   RSAMode = 1
	RSA2048     RSAMode = 2
	RSAPKCS21   RSAMode = 3
	RSAPKCS21RK RSAMode = 4
)

func (m RSAMode) String() string {
	switch m {
	case RSANone:
		return "none"
	case RSAPKCS15:
		return "pkcs1-v1.5"
	case RSA2048:
		return "pkcs1-v1.5-rsa2048"
	case RSAPKCS21:
		return "pkcs1-v2.1"
	case RSAPKCS21RK:
		return "pkcs1-v2.1-rk"
	}
	return "???"
}

// Component is one secure-world binary to embed, already resolved to a
// flat payload (directly, or via an ELF segment).
type Component struct {
	// ID is the stage name recorded in the location table, at most 4
	// ASCII characters ("BL31", "BL32", ...).
	ID       string
	LoadAddr uint32
	Data     []byte
}

// Entry is one decoded component: the location record joined with its
// component-data record.
type Entry struct {
	ID       string
	LoadAddr uint32
	Hash     [rkhash.Size]byte

	// DataOffset/DataSize are byte quantities, converted from the
	// location record's 512-byte sector units.
	DataOffset uint32
	DataSize   uint32
}

type header struct {
	version uint32
	sha     SHAMode
	rsa     RSAMode

	numComponents int
	signOffset    int
}

func (h *header) toBytes() []byte {
	buf := make([]byte, HeaderBlockSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:], trustTag)
	le.PutUint32(buf[4:], h.version)
	le.PutUint32(buf[8:], uint32(h.sha)&0xf|(uint32(h.rsa)&0xf)<<4)
	// Component count in the high half, signature offset in the low
	// half, in 4-byte units.
	le.PutUint32(buf[12:], uint32(h.numComponents)<<16|uint32(h.signOffset)>>2)
	// 16 reserved bytes, then the three 256-byte RSA fields; all zero.

	return buf
}

func headerFromBytes(raw []byte) (*header, error) {
	le := binary.LittleEndian
	if len(raw) < HeaderBlockSize {
		return nil, errors.Wrap(rkcommon.ErrMalformedImage, "truncated container")
	}
	if le.Uint32(raw) != trustTag {
		return nil, errors.Wrap(rkcommon.ErrMalformedImage, "unrecognised trust tag")
	}

	flags := le.Uint32(raw[8:])
	size := le.Uint32(raw[12:])

	h := &header{
		version:       le.Uint32(raw[4:]),
		sha:           SHAMode(flags & 0xf),
		rsa:           RSAMode(flags >> 4 & 0xf),
		numComponents: int(size >> 16),
		signOffset:    int(size&0xffff) << 2,
	}

	if h.signOffset < headerStructSize ||
		h.signOffset+signatureSize+h.numComponents*locationSize > HeaderBlockSize {
		return nil, errors.Wrapf(rkcommon.ErrMalformedImage,
			"signature offset 0x%x out of range", h.signOffset)
	}
	if headerStructSize+h.numComponents*componentDataSize > h.signOffset {
		return nil, errors.Wrapf(rkcommon.ErrMalformedImage,
			"%d component records overrun the signature region", h.numComponents)
	}

	return h, nil
}

func putID(b []byte, id string) {
	copy(b[:idLen], id)
}

func getID(b []byte) string {
	id := b[:idLen]
	for len(id) > 0 && id[len(id)-1] == 0 {
		id = id[:len(id)-1]
	}
	return string(id)
}
