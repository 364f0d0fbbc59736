// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package manifest

import (
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
)

// The BL3x stage names, in the order the trust image packs them.
var trustStages = []string{"BL30", "BL31", "BL32", "BL33"}

type TrustComponent struct {
	ID      string
	Enabled bool
	Path    string
	Addr    uint32
}

type TrustManifest struct {
	Version    rkcommon.Version
	Components []TrustComponent
	Output     string
}

func parseAddr(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	// Base 0 accepts both 0x-prefixed hex and plain decimal.
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func ParseTrust(data []byte) (*TrustManifest, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(rkcommon.ErrConfig, err.Error())
	}

	m := &TrustManifest{}

	m.Version, err = parseVersion(cfg)
	if err != nil {
		return nil, err
	}

	for _, stage := range trustStages {
		sec, err := cfg.GetSection(stage + "_OPTION")
		if err != nil {
			continue
		}

		comp := TrustComponent{ID: stage}

		// SEC=0 disables the component outright, whether or not a
		// path is configured.
		comp.Enabled = sec.Key("SEC").String() == "1"
		comp.Path = sec.Key("PATH").String()
		comp.Addr, err = parseAddr(sec.Key("ADDR").String())
		if err != nil {
			return nil, errors.Wrapf(rkcommon.ErrConfig, "bad ADDR in %s_OPTION", stage)
		}

		if comp.Enabled && comp.Path == "" {
			return nil, errors.Wrapf(rkcommon.ErrConfig, "missing PATH in enabled %s_OPTION", stage)
		}

		m.Components = append(m.Components, comp)
	}

	m.Output, err = parseOutput(cfg)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Enabled returns only the components packing should include.
func (m *TrustManifest) Enabled() []TrustComponent {
	var comps []TrustComponent
	for _, c := range m.Components {
		if c.Enabled {
			comps = append(comps, c)
		}
	}
	return comps
}

func (m *TrustManifest) Resolve(r Resolver) error {
	for i := range m.Components {
		if m.Components[i].Path == "" {
			continue
		}
		p, err := r(m.Components[i].Path)
		if err != nil {
			return err
		}
		m.Components[i].Path = p
	}
	return nil
}
