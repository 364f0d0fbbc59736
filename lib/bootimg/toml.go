// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package bootimg

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
)

// A TOML description of an unpacked container, so an image can be taken
// apart, patched and put back together without the original manifest.

type tomlEntry struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	DataFile string `toml:"data_file"`
}

type tomlBoot struct {
	Chip             string      `toml:"chip"`
	VerStr           string      `toml:"version"`
	CipherHeader     bool        `toml:"cipher_header"`
	CipherLoaderData bool        `toml:"cipher_loader_data"`
	Entries          []tomlEntry `toml:"entry"`
}

func parseVersionString(s string) (rkcommon.Version, error) {
	var v rkcommon.Version
	n, err := fmt.Sscanf(s, "%d.%d", &v.Major, &v.Minor)
	if n != 2 || err != nil {
		return v, errors.Wrapf(rkcommon.ErrConfig, "can't parse version '%s'", s)
	}
	return v, nil
}

func entryTypeFromString(s string) (EntryType, error) {
	switch s {
	case Entry471.String():
		return Entry471, nil
	case Entry472.String():
		return Entry472, nil
	case EntryLoader.String():
		return EntryLoader, nil
	}
	return 0, errors.Wrapf(rkcommon.ErrConfig, "unrecognised entry type '%s'", s)
}

func removeIfTrue(file string, cond *bool) {
	if *cond {
		os.Remove(file)
	}
}

// WriteTOML writes the description plus one .bin per entry next to it.
func (img *Image) WriteTOML(file string) error {
	tb := tomlBoot{
		Chip:             rkcommon.ChipName(img.Chip),
		VerStr:           img.Version.String(),
		CipherHeader:     img.CipheredHeader,
		CipherLoaderData: img.CipheredLoaderData,
	}

	fail := true

	dir := filepath.Dir(file)
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	for i, e := range img.Entries {
		te := tomlEntry{
			Name:     e.Name,
			Type:     e.Type.String(),
			DataFile: fmt.Sprintf("%s.%d.%s.bin", base, i, filepath.Base(e.Name)),
		}

		fullname := filepath.Join(dir, te.DataFile)
		err := ioutil.WriteFile(fullname, img.EntryData(e), 0644)
		if err != nil {
			return err
		}
		defer removeIfTrue(fullname, &fail)

		tb.Entries = append(tb.Entries, te)
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	defer removeIfTrue(file, &fail)

	err = toml.NewEncoder(f).Encode(&tb)
	if err != nil {
		return err
	}

	fail = false

	return nil
}

// LoadTOML reads a description back into pack parameters, loading each
// entry's data file relative to the description's directory.
func LoadTOML(file string) (*PackParams, error) {
	var tb tomlBoot
	_, err := toml.DecodeFile(file, &tb)
	if err != nil {
		return nil, err
	}

	p := &PackParams{
		Chip:             tb.Chip,
		CipherHeader:     tb.CipherHeader,
		CipherLoaderData: tb.CipherLoaderData,
	}

	p.Version, err = parseVersionString(tb.VerStr)
	if err != nil {
		return nil, err
	}

	if len(tb.Entries) == 0 {
		return nil, errors.Wrap(rkcommon.ErrConfig, "no entries in description")
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)

	for _, te := range tb.Entries {
		t, err := entryTypeFromString(te.Type)
		if err != nil {
			return nil, err
		}

		name := te.DataFile
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		data, err := ioutil.ReadFile(name)
		if err != nil {
			return nil, err
		}

		p.Components = append(p.Components, Component{
			Name: te.Name,
			Type: t,
			Data: data,
		})
	}

	return p, nil
}
