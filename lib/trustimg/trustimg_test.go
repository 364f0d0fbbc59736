// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package trustimg

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/usedbytes/rkboot-tools/lib/manifest"
	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
)

func testComponents() []Component {
	bl31 := make([]byte, 5000)
	for i := range bl31 {
		bl31[i] = byte(i * 7)
	}
	bl32 := []byte("op-tee, rather small today")

	return []Component{
		{ID: "BL31", LoadAddr: 0x00040000, Data: bl31},
		{ID: "BL32", LoadAddr: 0x08400000, Data: bl32},
	}
}

func TestRoundTrip(t *testing.T) {
	comps := testComponents()

	out, err := Pack(PackParams{
		Version:    rkcommon.Version{Major: 1, Minor: 1},
		Components: comps,
	})
	if err != nil {
		t.Fatal(err)
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", img.Warnings)
	}

	if img.Version.Major != 1 || img.Version.Minor != 1 {
		t.Errorf("version = %v", img.Version)
	}
	if img.SHA != SHA256 || img.RSA != RSA2048 {
		t.Errorf("modes = %s/%s, want sha256/rsa2048 defaults", img.SHA, img.RSA)
	}

	if len(img.Entries) != len(comps) {
		t.Fatalf("entries = %d, want %d", len(img.Entries), len(comps))
	}

	for i, c := range comps {
		e := img.Entries[i]
		if e.ID != c.ID || e.LoadAddr != c.LoadAddr {
			t.Errorf("entry %d = %+v, want %s @0x%08x", i, e, c.ID, c.LoadAddr)
		}

		// The format keeps the alignment padding attached; the stored
		// bytes are the original payload followed by zeros.
		data := img.EntryData(e)
		if !bytes.Equal(data[:len(c.Data)], c.Data) {
			t.Errorf("entry %d data mismatch", i)
		}
		for _, b := range data[len(c.Data):] {
			if b != 0 {
				t.Errorf("entry %d padding not zero", i)
				break
			}
		}
	}
}

func TestAlignmentAndSectors(t *testing.T) {
	out, err := Pack(PackParams{
		Version:    rkcommon.Version{Major: 1, Minor: 0},
		Components: testComponents(),
	})
	if err != nil {
		t.Fatal(err)
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}

	le := binary.LittleEndian
	n := len(img.Entries)
	locOffset := headerStructSize + n*componentDataSize + signatureSize

	for i, e := range img.Entries {
		if e.DataOffset%rkcommon.EntryAlign != 0 {
			t.Errorf("entry %q data at 0x%x, not 2048-aligned", e.ID, e.DataOffset)
		}

		// The location record stores 512-byte sector units.
		loc := out[locOffset+i*locationSize:]
		if sector := le.Uint32(loc[4:]); sector<<rkcommon.SectorShift != e.DataOffset {
			t.Errorf("entry %q sector 0x%x does not shift to offset 0x%x",
				e.ID, sector, e.DataOffset)
		}
	}
}

func TestHeaderWords(t *testing.T) {
	out, err := Pack(PackParams{
		Version:    rkcommon.Version{Major: 2, Minor: 58},
		Components: testComponents(),
		SHA:        SHA256,
		RSA:        RSAPKCS21,
	})
	if err != nil {
		t.Fatal(err)
	}

	le := binary.LittleEndian

	if v := le.Uint32(out[4:]); v != 0x0258 {
		t.Errorf("version word = 0x%08x, want 0x00000258", v)
	}
	if flags := le.Uint32(out[8:]); flags != uint32(SHA256)|uint32(RSAPKCS21)<<4 {
		t.Errorf("flags = 0x%08x", flags)
	}

	signOffset := headerStructSize + 2*componentDataSize
	if size := le.Uint32(out[12:]); size != 2<<16|uint32(signOffset)>>2 {
		t.Errorf("size word = 0x%08x", size)
	}

	// The signature region is reserved and must stay zero.
	for _, b := range out[signOffset : signOffset+signatureSize] {
		if b != 0 {
			t.Errorf("signature region not zero")
			break
		}
	}
}

func TestCorruptComponentIsWarning(t *testing.T) {
	comps := testComponents()
	out, err := Pack(PackParams{
		Version:    rkcommon.Version{Major: 1, Minor: 0},
		Components: comps,
	})
	if err != nil {
		t.Fatal(err)
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}
	out[img.Entries[0].DataOffset+100] ^= 0x80

	img, err = Unpack(out)
	if err != nil {
		t.Fatalf("corruption must not be fatal: %v", err)
	}
	if len(img.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one digest warning", img.Warnings)
	}
	w, ok := img.Warnings[0].(*rkcommon.DigestWarning)
	if !ok {
		t.Fatalf("warning is %T, want DigestWarning", img.Warnings[0])
	}
	if w.Region != "BL31" {
		t.Errorf("warning names %q, want BL31", w.Region)
	}

	if len(img.EntryData(img.Entries[0])) == 0 {
		t.Errorf("payload not returned after corruption")
	}
}

func TestUnpackGarbage(t *testing.T) {
	_, err := Unpack(make([]byte, 4096))
	if errors.Cause(err) != rkcommon.ErrMalformedImage {
		t.Errorf("got %v, want ErrMalformedImage", err)
	}

	_, err = Unpack([]byte("BL3X"))
	if errors.Cause(err) != rkcommon.ErrMalformedImage {
		t.Errorf("truncated: got %v, want ErrMalformedImage", err)
	}
}

func TestPackLimits(t *testing.T) {
	_, err := Pack(PackParams{Version: rkcommon.Version{Major: 1}})
	if errors.Cause(err) != rkcommon.ErrUnsupportedCombination {
		t.Errorf("empty: got %v, want ErrUnsupportedCombination", err)
	}

	big := Component{ID: "BL31", Data: make([]byte, 64*1024)}
	_, err = Pack(PackParams{
		Version:    rkcommon.Version{Major: 1},
		Components: []Component{big},
		MaxSize:    32 * 1024,
	})
	if errors.Cause(err) != rkcommon.ErrPayloadTooLarge {
		t.Errorf("oversize: got %v, want ErrPayloadTooLarge", err)
	}
}

// Mirrors the ELF builder used by the segment extractor tests.
func buildELF64(t *testing.T, vaddrs []uint64, size int) []byte {
	t.Helper()

	img := make([]byte, size)
	copy(img, "\x7fELF")
	img[4] = 2 // ELFCLASS64
	img[5] = 1 // little-endian
	img[6] = 1 // EV_CURRENT

	le := binary.LittleEndian
	le.PutUint16(img[16:], 2)   // ET_EXEC
	le.PutUint16(img[18:], 183) // EM_AARCH64
	le.PutUint32(img[20:], 1)
	le.PutUint64(img[32:], 64) // e_phoff
	le.PutUint16(img[52:], 64) // e_ehsize
	le.PutUint16(img[54:], 56) // e_phentsize
	le.PutUint16(img[56:], uint16(len(vaddrs)))

	for i, vaddr := range vaddrs {
		b := img[64+i*56:]
		off := uint64(0x400 + i*0x100)
		le.PutUint32(b, 1) // PT_LOAD
		le.PutUint64(b[8:], off)
		le.PutUint64(b[16:], vaddr)
		le.PutUint64(b[24:], vaddr)
		le.PutUint64(b[32:], 16)
		le.PutUint64(b[40:], 16)

		for j := 0; j < 16; j++ {
			img[int(off)+j] = byte(i*16 + j)
		}
	}

	return img
}

func TestLoadComponentsELF(t *testing.T) {
	dir := t.TempDir()

	elfPath := filepath.Join(dir, "bl31.elf")
	elfImg := buildELF64(t, []uint64{0x40000, 0xff8c0000}, 0x1000)
	if err := ioutil.WriteFile(elfPath, elfImg, 0644); err != nil {
		t.Fatal(err)
	}

	binPath := filepath.Join(dir, "bl32.bin")
	flat := []byte("flat binary stage")
	if err := ioutil.WriteFile(binPath, flat, 0644); err != nil {
		t.Fatal(err)
	}

	mcs := []manifest.TrustComponent{
		{ID: "BL31", Enabled: true, Path: elfPath, Addr: 0xdead},
		{ID: "BL32", Enabled: true, Path: binPath, Addr: 0x08400000},
	}

	// Default policy: first loadable segment only, segment address wins
	// over the manifest ADDR.
	comps, err := LoadComponents(mcs, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(comps) != 2 {
		t.Fatalf("components = %d, want 2", len(comps))
	}
	if comps[0].LoadAddr != 0x40000 {
		t.Errorf("ELF load addr = 0x%x, want segment vaddr 0x40000", comps[0].LoadAddr)
	}
	if !bytes.Equal(comps[0].Data, elfImg[0x400:0x410]) {
		t.Errorf("ELF payload is not the first segment's bytes")
	}
	if comps[1].LoadAddr != 0x08400000 || !bytes.Equal(comps[1].Data, flat) {
		t.Errorf("flat component mangled: %+v", comps[1])
	}

	// All-segments override: one entry per PT_LOAD, same stage ID.
	comps, err = LoadComponents(mcs[:1], true)
	if err != nil {
		t.Fatal(err)
	}
	if len(comps) != 2 {
		t.Fatalf("all-segments components = %d, want 2", len(comps))
	}
	if comps[0].ID != "BL31" || comps[1].ID != "BL31" {
		t.Errorf("segment components lost their stage ID")
	}
	if comps[1].LoadAddr != 0xff8c0000 {
		t.Errorf("second segment addr = 0x%x", comps[1].LoadAddr)
	}

	// Packing both segments extracts to distinct names.
	out, err := Pack(PackParams{
		Version:    rkcommon.Version{Major: 1, Minor: 0},
		Components: comps,
	})
	if err != nil {
		t.Fatal(err)
	}
	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}

	paths, err := img.Extract(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("extracted paths = %v", paths)
	}
	if _, ok := paths["BL31"]; !ok {
		t.Errorf("missing BL31 in %v", paths)
	}
	if _, ok := paths["BL31.1"]; !ok {
		t.Errorf("missing BL31.1 in %v", paths)
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	dir := t.TempDir()

	comps := testComponents()
	out, err := Pack(PackParams{
		Version:    rkcommon.Version{Major: 1, Minor: 1},
		Components: comps,
		RSA:        RSAPKCS21,
	})
	if err != nil {
		t.Fatal(err)
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}

	desc := filepath.Join(dir, "trust.toml")
	if err := img.WriteTOML(desc); err != nil {
		t.Fatal(err)
	}

	p, err := LoadTOML(desc)
	if err != nil {
		t.Fatal(err)
	}

	if p.Version.Major != 1 || p.Version.Minor != 1 {
		t.Errorf("description lost version: %+v", p.Version)
	}
	if p.SHA != SHA256 || p.RSA != RSAPKCS21 {
		t.Errorf("description lost modes: %s/%s", p.SHA, p.RSA)
	}
	if len(p.Components) != len(comps) {
		t.Fatalf("components = %d, want %d", len(p.Components), len(comps))
	}

	// Repacking the description reproduces the container bit-exactly:
	// the stored payloads are already padded, so nothing shifts.
	out2, err := Pack(*p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, out2) {
		t.Errorf("description repack is not bit-identical")
	}
}
