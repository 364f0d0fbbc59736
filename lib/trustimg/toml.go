// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package trustimg

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
)

type tomlComponent struct {
	ID       string `toml:"id"`
	LoadAddr string `toml:"load_addr"`
	DataFile string `toml:"data_file"`
}

type tomlTrust struct {
	VerStr     string          `toml:"version"`
	SHA        string          `toml:"sha_mode"`
	RSA        string          `toml:"rsa_mode"`
	Components []tomlComponent `toml:"component"`
}

func shaModeFromString(s string) (SHAMode, error) {
	for _, m := range []SHAMode{SHANone, SHA1, SHA256BE, SHA256} {
		if s == m.String() {
			return m, nil
		}
	}
	return 0, errors.Wrapf(rkcommon.ErrConfig, "unrecognised sha mode '%s'", s)
}

func rsaModeFromString(s string) (RSAMode, error) {
	for _, m := range []RSAMode{RSANone, RSAPKCS15, RSA2048, RSAPKCS21, RSAPKCS21RK} {
		if s == m.String() {
			return m, nil
		}
	}
	return 0, errors.Wrapf(rkcommon.ErrConfig, "unrecognised rsa mode '%s'", s)
}

func removeIfTrue(file string, cond *bool) {
	if *cond {
		os.Remove(file)
	}
}

// WriteTOML writes the description plus one .bin per component next to it.
func (img *Image) WriteTOML(file string) error {
	tt := tomlTrust{
		VerStr: img.Version.String(),
		SHA:    img.SHA.String(),
		RSA:    img.RSA.String(),
	}

	fail := true

	dir := filepath.Dir(file)
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	names := img.entryFileNames()

	for i, e := range img.Entries {
		tc := tomlComponent{
			ID:       e.ID,
			LoadAddr: fmt.Sprintf("0x%08x", e.LoadAddr),
			DataFile: fmt.Sprintf("%s.%s.bin", base, names[i]),
		}

		fullname := filepath.Join(dir, tc.DataFile)
		err := ioutil.WriteFile(fullname, img.EntryData(e), 0644)
		if err != nil {
			return err
		}
		defer removeIfTrue(fullname, &fail)

		tt.Components = append(tt.Components, tc)
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	defer removeIfTrue(file, &fail)

	err = toml.NewEncoder(f).Encode(&tt)
	if err != nil {
		return err
	}

	fail = false

	return nil
}

// LoadTOML reads a description back into pack parameters, loading each
// component's data file relative to the description's directory.
func LoadTOML(file string) (*PackParams, error) {
	var tt tomlTrust
	_, err := toml.DecodeFile(file, &tt)
	if err != nil {
		return nil, err
	}

	p := &PackParams{}

	var n int
	n, err = fmt.Sscanf(tt.VerStr, "%d.%d", &p.Version.Major, &p.Version.Minor)
	if n != 2 || err != nil {
		return nil, errors.Wrapf(rkcommon.ErrConfig, "can't parse version '%s'", tt.VerStr)
	}

	p.SHA, err = shaModeFromString(tt.SHA)
	if err != nil {
		return nil, err
	}
	p.RSA, err = rsaModeFromString(tt.RSA)
	if err != nil {
		return nil, err
	}

	if len(tt.Components) == 0 {
		return nil, errors.Wrap(rkcommon.ErrConfig, "no components in description")
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)

	for _, tc := range tt.Components {
		addr, err := strconv.ParseUint(tc.LoadAddr, 0, 32)
		if err != nil {
			return nil, errors.Wrapf(rkcommon.ErrConfig,
				"bad load_addr '%s' for %s", tc.LoadAddr, tc.ID)
		}

		name := tc.DataFile
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		data, err := ioutil.ReadFile(name)
		if err != nil {
			return nil, err
		}

		p.Components = append(p.Components, Component{
			ID:       tc.ID,
			LoadAddr: uint32(addr),
			Data:     data,
		})
	}

	return p, nil
}
