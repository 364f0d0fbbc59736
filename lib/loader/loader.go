// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package loader packs and unpacks the second-stage loader container: a
// fixed 2048-byte header followed by the payload, zero-padded to a fixed
// block size and written several times over for redundancy. The same
// wrapper carries both the primary bootloader ("LOADER  " magic) and
// trusted-OS binaries ("TOS     " magic).
package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
	"github.com/usedbytes/rkboot-tools/lib/rkcrc"
	"github.com/usedbytes/rkboot-tools/lib/rkhash"
)

const (
	HeaderSize = 2048

	DefaultMaxSize = 1024 * 1024
	DefaultCopies  = 4

	magicSize = 8
)

type Variant int

const (
	Loader Variant = iota
	TrustedOS
)

var magics = map[Variant][]byte{
	Loader:    []byte("LOADER  "),
	TrustedOS: []byte("TOS     "),
}

func (v Variant) String() string {
	switch v {
	case Loader:
		return "loader"
	case TrustedOS:
		return "trusted-os"
	}
	return "???"
}

type Header struct {
	Variant  Variant
	Version  uint32
	LoadAddr uint32
	// LoadSize is the stored payload size, after padding to 4 bytes.
	LoadSize uint32
	CRC      uint32
	HashLen  uint32
	Hash     [rkhash.Size]byte
}

func (h *Header) String() string {
	str := ""
	str += fmt.Sprintf("Variant:      %s\n", h.Variant)
	str += fmt.Sprintf("Version:      %d\n", h.Version)
	str += fmt.Sprintf("Load address: 0x%08x\n", h.LoadAddr)
	str += fmt.Sprintf("Load size:    %d (0x%x) bytes\n", h.LoadSize, h.LoadSize)
	str += fmt.Sprintf("CRC:          0x%08x\n", h.CRC)
	str += fmt.Sprintf("Hash:         %x", h.Hash[:h.HashLen])
	return str
}

// toBytes lays the header out: magic, version, reserved word, load
// address, stored size, CRC, hash length, hash. Everything after the hash
// up to HeaderSize is reserved (the signature fields live there but are
// never computed) and stays zero.
func (h *Header) toBytes() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, magics[h.Variant])

	le := binary.LittleEndian
	le.PutUint32(buf[0x08:], h.Version)
	le.PutUint32(buf[0x10:], h.LoadAddr)
	le.PutUint32(buf[0x14:], h.LoadSize)
	le.PutUint32(buf[0x18:], h.CRC)
	le.PutUint32(buf[0x1c:], h.HashLen)
	copy(buf[0x20:], h.Hash[:])

	return buf
}

func headerFromBytes(raw []byte) (*Header, error) {
	if len(raw) < HeaderSize {
		return nil, errors.Wrap(rkcommon.ErrMalformedImage, "truncated header")
	}

	h := &Header{}

	switch {
	case bytes.Equal(raw[:magicSize], magics[Loader]):
		h.Variant = Loader
	case bytes.Equal(raw[:magicSize], magics[TrustedOS]):
		h.Variant = TrustedOS
	default:
		return nil, errors.Wrapf(rkcommon.ErrMalformedImage,
			"unrecognised magic %q", raw[:magicSize])
	}

	le := binary.LittleEndian
	h.Version = le.Uint32(raw[0x08:])
	h.LoadAddr = le.Uint32(raw[0x10:])
	h.LoadSize = le.Uint32(raw[0x14:])
	h.CRC = le.Uint32(raw[0x18:])
	h.HashLen = le.Uint32(raw[0x1c:])
	if h.HashLen > rkhash.Size {
		return nil, errors.Wrapf(rkcommon.ErrMalformedImage,
			"hash length %d out of range", h.HashLen)
	}
	copy(h.Hash[:], raw[0x20:0x20+rkhash.Size])

	return h, nil
}

type PackOptions struct {
	Variant  Variant
	LoadAddr uint32
	Version  uint32
	// MaxSize is the full block size per copy, header included.
	// Defaults to 1MiB.
	MaxSize int
	// Copies is the redundancy count. The BootROM tries each copy in
	// turn when one is corrupt. Defaults to 4.
	Copies int
}

// Pack wraps payload and emits Copies identical blocks of MaxSize bytes.
func Pack(payload []byte, opts PackOptions) ([]byte, error) {
	if opts.MaxSize == 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Copies == 0 {
		opts.Copies = DefaultCopies
	}

	if len(payload) > opts.MaxSize-HeaderSize {
		return nil, errors.Wrapf(rkcommon.ErrPayloadTooLarge,
			"%d bytes exceeds %d byte capacity", len(payload), opts.MaxSize-HeaderSize)
	}

	padded := rkcommon.PadAlign(payload, 4)

	hdr := &Header{
		Variant:  opts.Variant,
		Version:  opts.Version,
		LoadAddr: opts.LoadAddr,
		LoadSize: uint32(len(padded)),
		CRC:      rkcrc.Sum(padded),
		HashLen:  rkhash.Size,
	}
	hdr.Hash = rkhash.HeaderDigest(padded, hdr.Version, hdr.LoadAddr, hdr.LoadSize, hdr.HashLen)

	block := make([]byte, opts.MaxSize)
	copy(block, hdr.toBytes())
	copy(block[HeaderSize:], padded)

	out := make([]byte, 0, opts.MaxSize*opts.Copies)
	for i := 0; i < opts.Copies; i++ {
		out = append(out, block...)
	}

	return out, nil
}

type Image struct {
	Header  Header
	Payload []byte
	// Warnings collects integrity failures. The payload is returned
	// regardless, so corrupted images can still be recovered from;
	// matching the vendor tools, a bad checksum is never fatal.
	Warnings []error
}

// Unpack decodes the first copy in the container.
func Unpack(container []byte) (*Image, error) {
	hdr, err := headerFromBytes(container)
	if err != nil {
		return nil, err
	}

	if uint32(len(container)-HeaderSize) < hdr.LoadSize {
		return nil, errors.Wrapf(rkcommon.ErrMalformedImage,
			"stored size %d overruns the container", hdr.LoadSize)
	}

	img := &Image{
		Header:  *hdr,
		Payload: container[HeaderSize : HeaderSize+int(hdr.LoadSize)],
	}

	if crc := rkcrc.Sum(img.Payload); crc != hdr.CRC {
		img.Warnings = append(img.Warnings, &rkcommon.ChecksumWarning{
			Region:   "payload",
			Expected: hdr.CRC,
			Got:      crc,
		})
	}

	hash := rkhash.HeaderDigest(img.Payload, hdr.Version, hdr.LoadAddr, hdr.LoadSize, hdr.HashLen)
	if !bytes.Equal(hash[:hdr.HashLen], hdr.Hash[:hdr.HashLen]) {
		img.Warnings = append(img.Warnings, &rkcommon.DigestWarning{
			Region:   "header",
			Expected: hdr.Hash[:hdr.HashLen],
			Got:      hash[:hdr.HashLen],
		})
	}

	return img, nil
}
