// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package trustimg

import (
	"encoding/binary"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"

	"github.com/usedbytes/rkboot-tools/lib/elfseg"
	"github.com/usedbytes/rkboot-tools/lib/manifest"
	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
	"github.com/usedbytes/rkboot-tools/lib/rkhash"
)

type PackParams struct {
	Version    rkcommon.Version
	Components []Component

	// SHA and RSA are the header mode flags; zero values mean the
	// defaults (SHA256, RSA2048). The RSA mode is recorded only.
	SHA SHAMode
	RSA RSAMode

	// MaxSize caps the container; zero means DefaultMaxSize.
	MaxSize int
}

// LoadComponents reads the files behind the enabled manifest components.
// An ELF input contributes its first loadable segment, or every loadable
// segment when allSegments is set; the segment addresses override the
// manifest's ADDR.
func LoadComponents(comps []manifest.TrustComponent, allSegments bool) ([]Component, error) {
	var out []Component

	for _, mc := range comps {
		data, err := ioutil.ReadFile(mc.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", mc.Path)
		}

		if !elfseg.IsELF(data) {
			out = append(out, Component{
				ID:       mc.ID,
				LoadAddr: mc.Addr,
				Data:     data,
			})
			continue
		}

		var segs []elfseg.Segment
		if allSegments {
			segs, err = elfseg.Segments(data)
			if err == nil && len(segs) == 0 {
				err = errors.Wrapf(rkcommon.ErrUnsupportedCombination,
					"%s has no loadable segments", mc.Path)
			}
		} else {
			var seg elfseg.Segment
			seg, err = elfseg.FirstLoadable(data)
			segs = []elfseg.Segment{seg}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", mc.Path)
		}

		for _, seg := range segs {
			payload, err := elfseg.Payload(data, seg)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", mc.Path)
			}
			log.Verbosef("%s: ELF segment vaddr 0x%08x size 0x%x\n",
				mc.ID, seg.Vaddr, seg.Filesz)
			out = append(out, Component{
				ID:       mc.ID,
				LoadAddr: uint32(seg.Vaddr),
				Data:     payload,
			})
		}
	}

	return out, nil
}

// Pack assembles the trust container: header block, then each component's
// payload zero-padded to a 2048-byte boundary, in declaration order.
func Pack(p PackParams) ([]byte, error) {
	if len(p.Components) == 0 {
		return nil, errors.Wrap(rkcommon.ErrUnsupportedCombination, "no components to pack")
	}
	if len(p.Components) > maxComponents {
		return nil, errors.Wrapf(rkcommon.ErrUnsupportedCombination,
			"%d components do not fit the header block", len(p.Components))
	}

	sha := p.SHA
	if sha == SHANone {
		sha = SHA256
	}
	if sha != SHA256 {
		return nil, errors.Wrapf(rkcommon.ErrUnsupportedCombination,
			"cannot compute %s digests", sha)
	}
	rsa := p.RSA
	if rsa == RSANone {
		rsa = RSA2048
	}

	maxSize := p.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}

	n := len(p.Components)
	signOffset := headerStructSize + n*componentDataSize
	locOffset := signOffset + signatureSize

	hdr := &header{
		version:       p.Version.Packed(),
		sha:           sha,
		rsa:           rsa,
		numComponents: n,
		signOffset:    signOffset,
	}
	block := hdr.toBytes()

	le := binary.LittleEndian
	offset := HeaderBlockSize
	var data []byte

	for i, c := range p.Components {
		padded := rkcommon.PadAlign(c.Data, rkcommon.EntryAlign)

		// Digest over the padded region, as stored.
		hash := rkhash.Digest(padded)

		rec := block[headerStructSize+i*componentDataSize:]
		copy(rec, hash[:])
		le.PutUint32(rec[rkhash.Size:], c.LoadAddr)

		loc := block[locOffset+i*locationSize:]
		putID(loc, c.ID)
		le.PutUint32(loc[4:], uint32(offset)>>rkcommon.SectorShift)
		le.PutUint32(loc[8:], uint32(len(padded))>>rkcommon.SectorShift)

		log.Verbosef("component %-4s addr 0x%08x offset 0x%08x size 0x%x\n",
			c.ID, c.LoadAddr, offset, len(padded))

		data = append(data, padded...)
		offset += len(padded)
	}

	out := append(block, data...)

	if len(out) > maxSize {
		return nil, errors.Wrapf(rkcommon.ErrPayloadTooLarge,
			"%d bytes exceed the %d-byte limit", len(out), maxSize)
	}

	return out, nil
}
