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

	"github.com/usedbytes/rkboot-tools/lib/manifest"
	"github.com/usedbytes/rkboot-tools/lib/trustimg"
)

func trustPackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("RKTRUST.ini is required")
	}
	iniPath := ctx.Args().First()

	src, err := ioutil.ReadFile(iniPath)
	if err != nil {
		return err
	}

	m, err := manifest.ParseTrust(src)
	if err != nil {
		return err
	}

	if err := m.Resolve(fallbackResolver(iniPath)); err != nil {
		return err
	}

	comps, err := trustimg.LoadComponents(m.Enabled(), ctx.Bool("all-segments"))
	if err != nil {
		return err
	}

	out, err := trustimg.Pack(trustimg.PackParams{
		Version:    m.Version,
		Components: comps,
		SHA:        trustimg.SHAMode(ctx.Int("sha")),
		RSA:        trustimg.RSAMode(ctx.Int("rsa")),
	})
	if err != nil {
		return err
	}

	outPath := m.Output
	if ctx.IsSet("out") {
		outPath = ctx.String("out")
	}

	log.Printf("Packing trust image v%s, %d components -> %s\n",
		m.Version, len(comps), outPath)

	return writeImage(outPath, out)
}

func trustUnpackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("IMAGE_FILE is required")
	}
	imgPath := ctx.Args().First()

	raw, err := ioutil.ReadFile(imgPath)
	if err != nil {
		return err
	}

	img, err := trustimg.Unpack(raw)
	if err != nil {
		return err
	}
	printWarnings(img.Warnings)

	log.Printf("trust v%s, %s/%s, %d components\n",
		img.Version, img.SHA, img.RSA, len(img.Entries))

	dir := ctx.String("out")
	paths, err := img.Extract(dir)
	if err != nil {
		return err
	}
	for name, p := range paths {
		log.Printf("%-8s %s\n", name, p)
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

func trustRepackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("DESCRIPTION.toml is required")
	}

	p, err := trustimg.LoadTOML(ctx.Args().First())
	if err != nil {
		return err
	}

	out, err := trustimg.Pack(*p)
	if err != nil {
		return err
	}

	return writeImage(ctx.String("out"), out)
}

var trustCommand = &cli.Command{
	Name:  "trust",
	Usage: "Work with trust (secure-world firmware) images",
	Subcommands: []*cli.Command{
		{
			Name:      "pack",
			ArgsUsage: "RKTRUST.ini",
			Action:    trustPackAction,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "sha",
					Usage: "SHA mode flag to record (3 = sha256)",
					Value: int(trustimg.SHA256),
				},
				&cli.IntFlag{
					Name:  "rsa",
					Usage: "RSA mode flag to record (signature is never computed)",
					Value: int(trustimg.RSA2048),
				},
				&cli.BoolFlag{
					Name:  "all-segments",
					Usage: "Pack every loadable ELF segment, not just the first",
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
			Action:    trustUnpackAction,
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
			Action:    trustRepackAction,
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
