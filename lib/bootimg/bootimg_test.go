// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package bootimg

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
	ddr := make([]byte, 3000)
	for i := range ddr {
		ddr[i] = byte(i * 3)
	}
	usbplug := []byte("usbplug binary, quite short")
	mini := make([]byte, 2048) // exactly one alignment unit
	for i := range mini {
		mini[i] = byte(i ^ 0x5a)
	}

	return []Component{
		{Name: "rk3399_ddr_800MHz_v1.25", Type: Entry471, Data: ddr},
		{Name: "rk3399_usbplug_v1.26", Type: Entry472, Data: usbplug},
		{Name: "FlashBoot", Type: EntryLoader, Data: mini},
	}
}

func TestRoundTrip(t *testing.T) {
	comps := testComponents()

	out, err := Pack(PackParams{
		Chip:       "RK330C",
		Version:    rkcommon.Version{Major: 2, Minor: 58},
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

	if img.Version.Major != 2 || img.Version.Minor != 58 {
		t.Errorf("version = %v", img.Version)
	}
	if got := rkcommon.ChipName(img.Chip); got != "RK330C" {
		t.Errorf("chip = %q (0x%08x)", got, img.Chip)
	}

	if len(img.Entries) != len(comps) {
		t.Fatalf("entries = %d, want %d", len(img.Entries), len(comps))
	}

	for i, c := range comps {
		e := img.Entries[i]
		if e.Name != c.Name || e.Type != c.Type {
			t.Errorf("entry %d = %+v, want %s %s", i, e, c.Type, c.Name)
		}
		if e.RawSize != uint32(len(c.Data)) {
			t.Errorf("entry %d raw size = %d, want %d", i, e.RawSize, len(c.Data))
		}
		if !bytes.Equal(img.EntryData(e), c.Data) {
			t.Errorf("entry %d data mismatch", i)
		}
	}
}

func TestAlignment(t *testing.T) {
	out, err := Pack(PackParams{
		Chip:       "RK3399",
		Version:    rkcommon.Version{Major: 1, Minor: 2},
		Components: testComponents(),
	})
	if err != nil {
		t.Fatal(err)
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range img.Entries {
		if e.DataOffset%rkcommon.EntryAlign != 0 {
			t.Errorf("entry %q data at 0x%x, not 2048-aligned", e.Name, e.DataOffset)
		}
		if e.DataSize%rkcommon.EntryAlign != 0 {
			t.Errorf("entry %q stored size 0x%x, not 2048-aligned", e.Name, e.DataSize)
		}
	}
}

func TestVersionBCD(t *testing.T) {
	out, err := Pack(PackParams{
		Chip:       "RK3399",
		Version:    rkcommon.Version{Major: 2, Minor: 58},
		Components: testComponents()[:1],
	})
	if err != nil {
		t.Fatal(err)
	}

	// Packed-decimal: 2.58 -> 0x0258, little-endian at header offset 6.
	v := binary.LittleEndian.Uint32(out[6:10])
	if v != 0x0258 {
		t.Errorf("header version = 0x%08x, want 0x00000258", v)
	}
}

func TestCorruptComponentIsWarning(t *testing.T) {
	comps := testComponents()
	out, err := Pack(PackParams{
		Chip:       "RK3399",
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
	// Flip a byte inside the first component's data region.
	out[img.Entries[0].DataOffset+10] ^= 0x01

	img, err = Unpack(out)
	if err != nil {
		t.Fatalf("corruption must not be fatal: %v", err)
	}
	if len(img.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one checksum warning", img.Warnings)
	}
	if _, ok := img.Warnings[0].(*rkcommon.ChecksumWarning); !ok {
		t.Errorf("warning is %T, want ChecksumWarning", img.Warnings[0])
	}

	// The payload still comes back, corrupted as stored.
	data := img.EntryData(img.Entries[0])
	if len(data) != len(comps[0].Data) {
		t.Errorf("payload not returned after corruption")
	}
	if bytes.Equal(data, comps[0].Data) {
		t.Errorf("corruption not visible in returned payload")
	}
}

func TestCipherHeader(t *testing.T) {
	params := PackParams{
		Chip:         "RK3399",
		Version:      rkcommon.Version{Major: 1, Minor: 0},
		Components:   testComponents(),
		CipherHeader: true,
	}

	out, err := Pack(params)
	if err != nil {
		t.Fatal(err)
	}

	// The header block must not be readable as-is.
	if binary.LittleEndian.Uint32(out) == bootTag {
		t.Errorf("header block written in cleartext")
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}
	if !img.CipheredHeader {
		t.Errorf("ciphered header not detected")
	}
	if len(img.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", img.Warnings)
	}
	if got := rkcommon.ChipName(img.Chip); got != "RK3399" {
		t.Errorf("chip decoded as %q after decipher", got)
	}
}

func TestCipherLoaderData(t *testing.T) {
	comps := testComponents()
	out, err := Pack(PackParams{
		Chip:             "RK3399",
		Version:          rkcommon.Version{Major: 1, Minor: 0},
		Components:       comps,
		CipherLoaderData: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}
	if !img.CipheredLoaderData {
		t.Errorf("loader-data cipher flag not set")
	}

	var loader Entry
	for _, e := range img.Entries {
		if e.Type == EntryLoader {
			loader = e
		}
	}

	// On-disk bytes differ, decoded bytes match.
	stored := out[loader.DataOffset : loader.DataOffset+uint32(len(comps[2].Data))]
	if bytes.Equal(stored, comps[2].Data) {
		t.Errorf("loader data written in cleartext")
	}
	if !bytes.Equal(img.EntryData(loader), comps[2].Data) {
		t.Errorf("loader data does not decode back")
	}

	// Non-loader entries stay cleartext.
	ddr := img.Entries[0]
	stored = out[ddr.DataOffset : ddr.DataOffset+uint32(len(comps[0].Data))]
	if !bytes.Equal(stored, comps[0].Data) {
		t.Errorf("code471 data should not be ciphered")
	}
}

func TestPackEmpty(t *testing.T) {
	_, err := Pack(PackParams{Chip: "RK3399"})
	if errors.Cause(err) != rkcommon.ErrUnsupportedCombination {
		t.Errorf("got %v, want ErrUnsupportedCombination", err)
	}
}

func TestUnpackGarbage(t *testing.T) {
	_, err := Unpack(make([]byte, 4096))
	if errors.Cause(err) != rkcommon.ErrMalformedImage {
		t.Errorf("got %v, want ErrMalformedImage", err)
	}
}

// A manifest declaring the same DDR binary under both boot-media groups:
// packing the storage group must embed exactly the flash files and never
// touch the USB ones.
func TestManifestGroupSelection(t *testing.T) {
	dir := t.TempDir()

	flashData := []byte("ddr init code, flash flavour")
	flashBoot := []byte("miniloader for flash boot")
	usbPlug := []byte("usbplug, must not be packed")

	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		if err := ioutil.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	ddrPath := write("ddr.bin", flashData)
	bootPath := write("miniloader.bin", flashBoot)
	write("usbplug.bin", usbPlug)

	src := []byte(`
[CHIP_NAME]
NAME=RK3399

[VERSION]
MAJOR=1
MINOR=4

[CODE471_OPTION]
NUM=1
Path1=` + ddrPath + `

[CODE472_OPTION]
NUM=1
Path1=` + filepath.Join(dir, "usbplug.bin") + `

[LOADER_OPTION]
NUM=2
LOADER1=FlashData
LOADER2=FlashBoot
FlashData=` + ddrPath + `
FlashBoot=` + bootPath + `

[OUTPUT]
PATH=loader.bin
`)

	m, err := manifest.ParseBoot(src)
	if err != nil {
		t.Fatal(err)
	}

	group, err := m.SelectGroup(manifest.StorageBoot)
	if err != nil {
		t.Fatal(err)
	}
	comps, err := LoadComponents(group)
	if err != nil {
		t.Fatal(err)
	}

	out, err := Pack(PackParams{Chip: m.Chip, Version: m.Version, Components: comps})
	if err != nil {
		t.Fatal(err)
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}

	if len(img.Entries) != 2 {
		t.Fatalf("entries = %+v", img.Entries)
	}
	if !bytes.Equal(img.EntryData(img.Entries[0]), flashData) {
		t.Errorf("FlashData bytes don't match the flash file")
	}
	if !bytes.Equal(img.EntryData(img.Entries[1]), flashBoot) {
		t.Errorf("FlashBoot bytes don't match the flash file")
	}
	for _, e := range img.Entries {
		if bytes.Equal(img.EntryData(e), usbPlug) {
			t.Errorf("USB-group binary leaked into a storage-boot image")
		}
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	dir := t.TempDir()

	comps := testComponents()
	out, err := Pack(PackParams{
		Chip:       "RK330C",
		Version:    rkcommon.Version{Major: 2, Minor: 58},
		Components: comps,
	})
	if err != nil {
		t.Fatal(err)
	}

	img, err := Unpack(out)
	if err != nil {
		t.Fatal(err)
	}

	desc := filepath.Join(dir, "boot.toml")
	if err := img.WriteTOML(desc); err != nil {
		t.Fatal(err)
	}

	p, err := LoadTOML(desc)
	if err != nil {
		t.Fatal(err)
	}

	if p.Chip != "RK330C" || p.Version.Major != 2 || p.Version.Minor != 58 {
		t.Errorf("description lost metadata: %+v", p)
	}
	if len(p.Components) != len(comps) {
		t.Fatalf("components = %d, want %d", len(p.Components), len(comps))
	}
	for i := range comps {
		if p.Components[i].Name != comps[i].Name ||
			p.Components[i].Type != comps[i].Type ||
			!bytes.Equal(p.Components[i].Data, comps[i].Data) {
			t.Errorf("component %d does not round-trip", i)
		}
	}
}
