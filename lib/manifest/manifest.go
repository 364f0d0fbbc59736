// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package manifest parses the declarative INI descriptions (RKBOOT and
// RKTRUST style) that drive the image codecs.
//
// A boot manifest routinely declares the same physical binaries twice:
// once under CODE471/CODE472 for USB/recovery download, and once under
// LOADER_OPTION (FlashData/FlashBoot) for eMMC/SD boot. Both groups are
// parsed and exposed, and SelectGroup requires an explicit boot target.
// Guessing the target from whichever section happens to be populated has
// historically produced images that parse fine and fail to boot.
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
)

type BootTarget int

const (
	// RecoveryBoot is USB download mode: the BootROM fetches the
	// CODE471/CODE472 binaries over rockusb.
	RecoveryBoot BootTarget = iota
	// StorageBoot is eMMC/SD boot: the BootROM reads the FlashData/
	// FlashBoot binaries from the storage medium.
	StorageBoot
)

func (t BootTarget) String() string {
	switch t {
	case RecoveryBoot:
		return "recovery"
	case StorageBoot:
		return "storage"
	}
	return "???"
}

type ComponentKind int

const (
	KindDDR ComponentKind = iota
	KindUSBPlug
	KindLoader
)

// Component is one binary to embed: where to find it, what to call it in
// the entry table, and which role it plays.
type Component struct {
	Name string
	Path string
	Kind ComponentKind
}

type BootManifest struct {
	Chip    string
	Version rkcommon.Version

	// Recovery/USB group.
	Code471 []Component
	Code472 []Component
	// Storage group.
	Flash []Component

	Output string
}

// Resolver substitutes an alternate location for a declared path. The
// fallback-search policy itself belongs to the caller; parsing never
// checks that files exist.
type Resolver func(path string) (string, error)

func entryName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseVersion(cfg *ini.File) (rkcommon.Version, error) {
	sec, err := cfg.GetSection("VERSION")
	if err != nil {
		return rkcommon.Version{}, errors.Wrap(rkcommon.ErrConfig, "missing VERSION section")
	}

	major, err := sec.Key("MAJOR").Int()
	if err != nil {
		return rkcommon.Version{}, errors.Wrap(rkcommon.ErrConfig, "bad VERSION MAJOR")
	}
	minor, err := sec.Key("MINOR").Int()
	if err != nil {
		return rkcommon.Version{}, errors.Wrap(rkcommon.ErrConfig, "bad VERSION MINOR")
	}

	return rkcommon.Version{Major: major, Minor: minor}, nil
}

func parseOutput(cfg *ini.File) (string, error) {
	sec, err := cfg.GetSection("OUTPUT")
	if err != nil {
		return "", errors.Wrap(rkcommon.ErrConfig, "missing OUTPUT section")
	}
	out := sec.Key("PATH").String()
	if out == "" {
		return "", errors.Wrap(rkcommon.ErrConfig, "missing OUTPUT PATH")
	}
	return out, nil
}

// CODE471_OPTION / CODE472_OPTION sections carry NUM and Path1..PathNUM.
func parsePathGroup(cfg *ini.File, section string, kind ComponentKind) ([]Component, error) {
	sec, err := cfg.GetSection(section)
	if err != nil {
		// Option groups are optional; the target check happens at
		// SelectGroup time.
		return nil, nil
	}

	num, err := sec.Key("NUM").Int()
	if err != nil {
		return nil, errors.Wrapf(rkcommon.ErrConfig, "bad NUM in %s", section)
	}

	var comps []Component
	for i := 1; i <= num; i++ {
		path := sec.Key(fmt.Sprintf("Path%d", i)).String()
		if path == "" {
			return nil, errors.Wrapf(rkcommon.ErrConfig, "missing Path%d in %s", i, section)
		}
		comps = append(comps, Component{
			Name: entryName(path),
			Path: path,
			Kind: kind,
		})
	}
	return comps, nil
}

// LOADER_OPTION names its entries: NUM, LOADER1..LOADERn give the entry
// names, then each name keys its path.
func parseLoaderGroup(cfg *ini.File) ([]Component, error) {
	sec, err := cfg.GetSection("LOADER_OPTION")
	if err != nil {
		return nil, nil
	}

	num, err := sec.Key("NUM").Int()
	if err != nil {
		return nil, errors.Wrap(rkcommon.ErrConfig, "bad NUM in LOADER_OPTION")
	}

	var comps []Component
	for i := 1; i <= num; i++ {
		name := sec.Key(fmt.Sprintf("LOADER%d", i)).String()
		if name == "" {
			return nil, errors.Wrapf(rkcommon.ErrConfig, "missing LOADER%d in LOADER_OPTION", i)
		}
		path := sec.Key(name).String()
		if path == "" {
			return nil, errors.Wrapf(rkcommon.ErrConfig, "missing %s path in LOADER_OPTION", name)
		}
		comps = append(comps, Component{
			Name: name,
			Path: path,
			Kind: KindLoader,
		})
	}
	return comps, nil
}

func ParseBoot(data []byte) (*BootManifest, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(rkcommon.ErrConfig, err.Error())
	}

	m := &BootManifest{}

	sec, err := cfg.GetSection("CHIP_NAME")
	if err != nil {
		return nil, errors.Wrap(rkcommon.ErrConfig, "missing CHIP_NAME section")
	}
	m.Chip = sec.Key("NAME").String()
	if m.Chip == "" {
		return nil, errors.Wrap(rkcommon.ErrConfig, "missing CHIP_NAME NAME")
	}

	m.Version, err = parseVersion(cfg)
	if err != nil {
		return nil, err
	}

	m.Code471, err = parsePathGroup(cfg, "CODE471_OPTION", KindDDR)
	if err != nil {
		return nil, err
	}
	m.Code472, err = parsePathGroup(cfg, "CODE472_OPTION", KindUSBPlug)
	if err != nil {
		return nil, err
	}
	m.Flash, err = parseLoaderGroup(cfg)
	if err != nil {
		return nil, err
	}

	m.Output, err = parseOutput(cfg)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SelectGroup returns the components for the requested boot medium, in
// declaration order. The target is never inferred.
func (m *BootManifest) SelectGroup(target BootTarget) ([]Component, error) {
	switch target {
	case RecoveryBoot:
		if len(m.Code471) == 0 && len(m.Code472) == 0 {
			return nil, errors.Wrap(rkcommon.ErrConfig,
				"manifest has no recovery-boot (CODE471/CODE472) group")
		}
		group := append([]Component(nil), m.Code471...)
		return append(group, m.Code472...), nil
	case StorageBoot:
		if len(m.Flash) == 0 {
			return nil, errors.Wrap(rkcommon.ErrConfig,
				"manifest has no storage-boot (LOADER_OPTION) group")
		}
		return append([]Component(nil), m.Flash...), nil
	}
	return nil, errors.Wrapf(rkcommon.ErrConfig, "unknown boot target %d", target)
}

func resolveComponents(comps []Component, r Resolver) error {
	for i := range comps {
		p, err := r(comps[i].Path)
		if err != nil {
			return err
		}
		comps[i].Path = p
	}
	return nil
}

// Resolve runs every declared path through r, replacing it with whatever
// r returns. Used by the CLI layer to apply fallback search.
func (m *BootManifest) Resolve(r Resolver) error {
	for _, group := range [][]Component{m.Code471, m.Code472, m.Flash} {
		if err := resolveComponents(group, r); err != nil {
			return err
		}
	}
	return nil
}
