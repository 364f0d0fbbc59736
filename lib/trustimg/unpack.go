// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package trustimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
	"github.com/usedbytes/rkboot-tools/lib/rkhash"
)

type Image struct {
	Version rkcommon.Version
	SHA     SHAMode
	RSA     RSAMode

	Entries []Entry

	// Warnings carries per-component digest mismatches. The component
	// bytes are still returned, so corrupted images can be inspected.
	Warnings []error

	raw []byte
}

// Unpack decodes a trust container. Digests are only recomputed when the
// header claims SHA256; other modes are decoded but left unverified.
func Unpack(container []byte) (*Image, error) {
	hdr, err := headerFromBytes(container)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Version: rkcommon.VersionFromPacked(hdr.version),
		SHA:     hdr.sha,
		RSA:     hdr.rsa,
		raw:     container,
	}

	le := binary.LittleEndian
	locOffset := hdr.signOffset + signatureSize

	for i := 0; i < hdr.numComponents; i++ {
		rec := container[headerStructSize+i*componentDataSize:]
		loc := container[locOffset+i*locationSize:]

		e := Entry{
			ID:         getID(loc),
			LoadAddr:   le.Uint32(rec[rkhash.Size:]),
			DataOffset: le.Uint32(loc[4:]) << rkcommon.SectorShift,
			DataSize:   le.Uint32(loc[8:]) << rkcommon.SectorShift,
		}
		copy(e.Hash[:], rec)

		if int(e.DataOffset)+int(e.DataSize) > len(container) {
			return nil, errors.Wrapf(rkcommon.ErrMalformedImage,
				"component %q data overruns container", e.ID)
		}

		if hdr.sha == SHA256 {
			hash := rkhash.Digest(container[e.DataOffset : e.DataOffset+e.DataSize])
			if !bytes.Equal(hash[:], e.Hash[:]) {
				img.Warnings = append(img.Warnings, &rkcommon.DigestWarning{
					Region:   e.ID,
					Expected: e.Hash[:],
					Got:      hash[:],
				})
			}
		}

		img.Entries = append(img.Entries, e)
	}

	return img, nil
}

// EntryData returns one component's stored bytes. The format records no
// original length, so the 2048-alignment padding stays attached.
func (img *Image) EntryData(e Entry) []byte {
	return img.raw[e.DataOffset : e.DataOffset+e.DataSize]
}

// entryFileNames maps entries to distinct file names: the stage ID, with
// a counter appended when an ELF input contributed several segments under
// the same stage.
func (img *Image) entryFileNames() []string {
	seen := make(map[string]int)
	names := make([]string, len(img.Entries))

	for i, e := range img.Entries {
		name := e.ID
		if n := seen[e.ID]; n > 0 {
			name = fmt.Sprintf("%s.%d", e.ID, n)
		}
		seen[e.ID]++
		names[i] = name
	}

	return names
}

// Extract writes every component to dir and returns name -> path.
func (img *Image) Extract(dir string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	paths := make(map[string]string)
	names := img.entryFileNames()

	for i, e := range img.Entries {
		path := filepath.Join(dir, names[i]+".bin")

		log.Verbosef("extracting %-8s addr 0x%08x -> %s\n", e.ID, e.LoadAddr, path)

		err := ioutil.WriteFile(path, img.EntryData(e), 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "writing %s", path)
		}
		paths[names[i]] = path
	}

	return paths, nil
}
