// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package elfseg pulls loadable segments out of an ELF executable, for
// trusted-firmware inputs that ship as ELF instead of a flat binary.
package elfseg

import (
	"bytes"
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
)

type Segment struct {
	Vaddr  uint64
	Off    uint64
	Filesz uint64
}

// IsELF reports whether image starts with the ELF identification bytes.
// Callers use this to decide between flat-binary and ELF handling without
// triggering a parse error.
func IsELF(image []byte) bool {
	return len(image) >= 4 && bytes.Equal(image[:4], []byte(elf.ELFMAG))
}

// Segments returns every PT_LOAD segment in program-header-table order.
// The order is load-bearing: the trust image records segments as the
// vendor tool saw them, which is table order, not address order.
func Segments(image []byte) ([]Segment, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, errors.Wrap(rkcommon.ErrMalformedImage, err.Error())
	}
	defer f.Close()

	switch f.Class {
	case elf.ELFCLASS32, elf.ELFCLASS64:
	default:
		return nil, errors.Wrap(rkcommon.ErrMalformedImage, "unrecognised ELF class")
	}

	var segs []Segment
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if p.Off > uint64(len(image)) || p.Filesz > uint64(len(image))-p.Off {
			return nil, errors.Wrapf(rkcommon.ErrMalformedImage,
				"segment at 0x%x+0x%x is outside the image", p.Off, p.Filesz)
		}
		segs = append(segs, Segment{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
		})
	}

	return segs, nil
}

// FirstLoadable implements the default segment-selection policy for trust
// components: the first PT_LOAD in table order. That rule was inferred
// from vendor tool output rather than a written format, so callers that
// need different behaviour should use Segments directly.
func FirstLoadable(image []byte) (Segment, error) {
	segs, err := Segments(image)
	if err != nil {
		return Segment{}, err
	}
	if len(segs) == 0 {
		return Segment{}, errors.Wrap(rkcommon.ErrUnsupportedCombination,
			"ELF image has no loadable segments")
	}
	return segs[0], nil
}

// Payload returns the file bytes backing seg.
func Payload(image []byte, seg Segment) ([]byte, error) {
	if seg.Off > uint64(len(image)) || seg.Filesz > uint64(len(image))-seg.Off {
		return nil, errors.Wrap(rkcommon.ErrMalformedImage, "segment outside the image")
	}
	return image[seg.Off : seg.Off+seg.Filesz], nil
}
