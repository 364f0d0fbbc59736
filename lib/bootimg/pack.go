// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package bootimg

import (
	"encoding/binary"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"

	"github.com/usedbytes/rkboot-tools/lib/manifest"
	"github.com/usedbytes/rkboot-tools/lib/rc4"
	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
	"github.com/usedbytes/rkboot-tools/lib/rkcrc"
)

type PackParams struct {
	Chip       string
	Version    rkcommon.Version
	Components []Component

	// CipherHeader RC4s the 512-byte header block, as card-boot images
	// expect. CipherLoaderData additionally RC4s loader entry data in
	// 512-byte blocks. Both are vendor-compatibility switches, off by
	// default.
	CipherHeader     bool
	CipherLoaderData bool

	// ReleaseTime overrides the creation timestamp; zero means now.
	ReleaseTime rkcommon.ReleaseTime
}

// LoadComponents reads the files behind a selected manifest option group.
func LoadComponents(group []manifest.Component) ([]Component, error) {
	kinds := map[manifest.ComponentKind]EntryType{
		manifest.KindDDR:     Entry471,
		manifest.KindUSBPlug: Entry472,
		manifest.KindLoader:  EntryLoader,
	}

	var comps []Component
	for _, mc := range group {
		data, err := ioutil.ReadFile(mc.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", mc.Path)
		}
		comps = append(comps, Component{
			Name: mc.Name,
			Type: kinds[mc.Kind],
			Data: data,
		})
	}
	return comps, nil
}

func group(comps []Component, t EntryType) []Component {
	var out []Component
	for _, c := range comps {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// Pack assembles the bootstrap container. Components are laid out grouped
// by type (471, 472, loader), preserving declaration order within each
// group.
func Pack(p PackParams) ([]byte, error) {
	if len(p.Components) == 0 {
		return nil, errors.Wrap(rkcommon.ErrUnsupportedCombination, "no components to pack")
	}

	g471 := group(p.Components, Entry471)
	g472 := group(p.Components, Entry472)
	gLoader := group(p.Components, EntryLoader)
	ordered := append(append(append([]Component(nil), g471...), g472...), gLoader...)
	if len(ordered) != len(p.Components) {
		return nil, errors.Wrap(rkcommon.ErrUnsupportedCombination, "component with unknown entry type")
	}

	rt := p.ReleaseTime
	if rt == (rkcommon.ReleaseTime{}) {
		rt = rkcommon.ReleaseTimeNow()
	}

	hdr := &header{
		version:       p.Version.Packed(),
		mergerVersion: mergerVersion,
		releaseTime:   rt,
		chipType:      rkcommon.ChipType(p.Chip),
		num471:        byte(len(g471)),
		num472:        byte(len(g472)),
		numLoader:     byte(len(gLoader)),
		size471:       entrySize,
		size472:       entrySize,
		sizeLoader:    entrySize,
		rc4Flag:       1,
	}
	if p.CipherLoaderData {
		hdr.rc4Flag = 0
	}

	hdr.off471 = HeaderBlockSize
	hdr.off472 = hdr.off471 + uint32(len(g471))*entrySize
	hdr.offLoader = hdr.off472 + uint32(len(g472))*entrySize

	tableEnd := int(hdr.offLoader) + len(gLoader)*entrySize
	dataStart := rkcommon.Align(tableEnd, rkcommon.EntryAlign)

	// Entry table and data regions.
	table := make([]byte, dataStart-HeaderBlockSize)
	var data []byte

	offset := uint32(dataStart)
	for i, c := range ordered {
		padded := rkcommon.PadAlign(c.Data, rkcommon.EntryAlign)
		if p.CipherLoaderData && c.Type == EntryLoader {
			padded = rc4.ApplyBlocks(padded)
		}

		e := Entry{
			Type:       c.Type,
			Name:       c.Name,
			DataOffset: offset,
			DataSize:   uint32(len(padded)),
			RawSize:    uint32(len(c.Data)),
		}
		putEntry(table[i*entrySize:], &e)

		log.Verbosef("entry %-8s %-20s offset 0x%08x size 0x%x\n",
			c.Type, c.Name, e.DataOffset, e.DataSize)

		data = append(data, padded...)
		offset += e.DataSize
	}

	headerBlock := hdr.toBytes()
	if p.CipherHeader {
		headerBlock = rc4.Apply(headerBlock)
	}

	out := make([]byte, 0, int(offset)+trailerSize)
	out = append(out, headerBlock...)
	out = append(out, table...)
	out = append(out, data...)

	// Trailing CRC covers the container as written, ciphered regions
	// included.
	crc := rkcrc.Sum(out)
	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], crc)
	out = append(out, trailer[:]...)

	log.Verbosef("packed %d components, %d bytes, crc 0x%08x\n",
		len(ordered), len(out), crc)

	return out, nil
}
