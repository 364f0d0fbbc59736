// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package bootimg

import (
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"

	"github.com/usedbytes/rkboot-tools/lib/rc4"
	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
	"github.com/usedbytes/rkboot-tools/lib/rkcrc"
)

type Image struct {
	Chip          uint32
	Version       rkcommon.Version
	MergerVersion uint32
	ReleaseTime   rkcommon.ReleaseTime

	// CipheredHeader records that the header block was RC4-obscured on
	// disk; CipheredLoaderData that loader entry data is.
	CipheredHeader     bool
	CipheredLoaderData bool

	Entries []Entry

	// Warnings carries integrity failures (trailing CRC mismatch).
	// Structural problems are errors instead; a checksum never is.
	Warnings []error

	raw []byte
}

// Unpack decodes a bootstrap container. The header block is tried as
// cleartext first, then RC4-deciphered, so card-boot images load without
// the caller knowing how they were written.
func Unpack(container []byte) (*Image, error) {
	if len(container) < HeaderBlockSize+trailerSize {
		return nil, errors.Wrap(rkcommon.ErrMalformedImage, "truncated container")
	}

	img := &Image{raw: container}

	hdr, ok := headerFromBytes(container)
	if !ok {
		hdr, ok = headerFromBytes(rc4.Apply(container[:HeaderBlockSize]))
		if !ok {
			return nil, errors.Wrap(rkcommon.ErrMalformedImage, "unrecognised boot tag")
		}
		img.CipheredHeader = true
		log.Verboseln("header block is RC4-obscured")
	}

	img.Chip = hdr.chipType
	img.Version = rkcommon.VersionFromPacked(hdr.version)
	img.MergerVersion = hdr.mergerVersion
	img.ReleaseTime = hdr.releaseTime
	img.CipheredLoaderData = hdr.rc4Flag == 0

	body := container[:len(container)-trailerSize]
	stored := binary.LittleEndian.Uint32(container[len(container)-trailerSize:])
	if crc := rkcrc.Sum(body); crc != stored {
		img.Warnings = append(img.Warnings, &rkcommon.ChecksumWarning{
			Region:   "container",
			Expected: stored,
			Got:      crc,
		})
	}

	groups := []struct {
		num    byte
		offset uint32
	}{
		{hdr.num471, hdr.off471},
		{hdr.num472, hdr.off472},
		{hdr.numLoader, hdr.offLoader},
	}

	for _, g := range groups {
		for i := 0; i < int(g.num); i++ {
			off := int(g.offset) + i*entrySize
			if off+entrySize > len(body) {
				return nil, errors.Wrap(rkcommon.ErrMalformedImage, "entry table overruns container")
			}

			e, err := getEntry(body[off:])
			if err != nil {
				return nil, err
			}

			if int(e.DataOffset)+int(e.DataSize) > len(body) {
				return nil, errors.Wrapf(rkcommon.ErrMalformedImage,
					"entry %q data overruns container", e.Name)
			}

			img.Entries = append(img.Entries, e)
		}
	}

	return img, nil
}

// EntryData returns one component's bytes, deciphered if needed and
// stripped back to the declared original size.
func (img *Image) EntryData(e Entry) []byte {
	data := img.raw[e.DataOffset : e.DataOffset+e.DataSize]

	if img.CipheredLoaderData && e.Type == EntryLoader {
		data = rc4.ApplyBlocks(data)
	}

	// A zero or out-of-range raw size means the field wasn't written
	// (foreign tooling); fall back to the stored size rather than
	// refusing to extract.
	if e.RawSize > 0 && e.RawSize <= e.DataSize {
		data = data[:e.RawSize]
	}

	return data
}

// Extract writes every component to dir as <name>.bin and returns the
// paths, in entry order.
func (img *Image) Extract(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range img.Entries {
		name := filepath.Base(e.Name) + ".bin"
		path := filepath.Join(dir, name)

		log.Verbosef("extracting %-8s %-20s -> %s\n", e.Type, e.Name, path)

		err := ioutil.WriteFile(path, img.EntryData(e), 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "writing %s", path)
		}
		paths = append(paths, path)
	}

	return paths, nil
}
