// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/usedbytes/rkboot-tools/lib/bootimg"
	"github.com/usedbytes/rkboot-tools/lib/manifest"
	"github.com/usedbytes/rkboot-tools/lib/rkcommon"
)

func parseTarget(s string) (manifest.BootTarget, error) {
	switch s {
	case "usb", "recovery":
		return manifest.RecoveryBoot, nil
	case "flash", "storage", "sd", "emmc":
		return manifest.StorageBoot, nil
	}
	return 0, fmt.Errorf("unrecognised boot target '%s' (want usb or flash)", s)
}

func bootPackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("RKBOOT.ini is required")
	}
	iniPath := ctx.Args().First()

	target, err := parseTarget(ctx.String("target"))
	if err != nil {
		return err
	}

	src, err := ioutil.ReadFile(iniPath)
	if err != nil {
		return err
	}

	m, err := manifest.ParseBoot(src)
	if err != nil {
		return err
	}

	if err := m.Resolve(fallbackResolver(iniPath)); err != nil {
		return err
	}

	group, err := m.SelectGroup(target)
	if err != nil {
		return err
	}

	comps, err := bootimg.LoadComponents(group)
	if err != nil {
		return err
	}

	out, err := bootimg.Pack(bootimg.PackParams{
		Chip:             m.Chip,
		Version:          m.Version,
		Components:       comps,
		CipherHeader:     ctx.Bool("rc4"),
		CipherLoaderData: ctx.Bool("rc4-data"),
	})
	if err != nil {
		return err
	}

	outPath := m.Output
	if ctx.IsSet("out") {
		outPath = ctx.String("out")
	}

	log.Printf("Packing %s boot image (%s v%s) -> %s\n",
		target, m.Chip, m.Version, outPath)

	return writeImage(outPath, out)
}

func bootUnpackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("IMAGE_FILE is required")
	}
	imgPath := ctx.Args().First()

	raw, err := ioutil.ReadFile(imgPath)
	if err != nil {
		return err
	}

	img, err := bootimg.Unpack(raw)
	if err != nil {
		return err
	}
	printWarnings(img.Warnings)

	log.Printf("%s v%s, built %s, %d components\n",
		rkcommon.ChipName(img.Chip), img.Version, img.ReleaseTime, len(img.Entries))

	dir := ctx.String("out")
	paths, err := img.Extract(dir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		log.Println(p)
	}

	if ctx.Bool("toml") {
		base := strings.TrimSuffix(filepath.Base(imgPath), filepath.Ext(imgPath))
		desc := filepath.Join(dir, base+".toml")
		if err := img.WriteTOML(desc); err != nil {
			return err
		}
		log.Println(desc)
	}

	return nil
}

func bootRepackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("DESCRIPTION.toml is required")
	}

	p, err := bootimg.LoadTOML(ctx.Args().First())
	if err != nil {
		return err
	}

	out, err := bootimg.Pack(*p)
	if err != nil {
		return err
	}

	return writeImage(ctx.String("out"), out)
}

var bootCommand = &cli.Command{
	Name:  "boot",
	Usage: "Work with bootstrap (first-stage) images",
	Subcommands: []*cli.Command{
		{
			Name:      "pack",
			ArgsUsage: "RKBOOT.ini",
			Action:    bootPackAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "target",
					Aliases:  []string{"t"},
					Usage:    "Boot medium the image is for: 'usb' or 'flash'",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  "rc4",
					Usage: "RC4-obscure the header block (card-boot images)",
				},
				&cli.BoolFlag{
					Name:  "rc4-data",
					Usage: "RC4-obscure loader entry data",
				},
				&cli.StringFlag{
					Name:    "out",
					Aliases: []string{"o"},
					Usage:   "Output file (default: the manifest's OUTPUT path)",
				},
			},
		},
		{
			Name:      "unpack",
			ArgsUsage: "IMAGE_FILE",
			Action:    bootUnpackAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "out",
					Aliases: []string{"o"},
					Usage:   "Output directory",
					Value:   ".",
				},
				&cli.BoolFlag{
					Name:  "toml",
					Usage: "Also write a TOML description for repacking",
				},
			},
		},
		{
			Name:      "repack",
			ArgsUsage: "DESCRIPTION.toml",
			Action:    bootRepackAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "out",
					Aliases:  []string{"o"},
					Usage:    "Output file",
					Required: true,
				},
			},
		},
	},
}
