// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"fmt"
	"io/ioutil"
	"strconv"

	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/usedbytes/rkboot-tools/lib/loader"
)

func loaderPackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("PAYLOAD_FILE is required")
	}

	payload, err := ioutil.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}

	addr, err := strconv.ParseUint(ctx.String("addr"), 0, 32)
	if err != nil {
		return fmt.Errorf("bad load address '%s'", ctx.String("addr"))
	}

	variant := loader.Loader
	if ctx.Bool("tos") {
		variant = loader.TrustedOS
	}

	out, err := loader.Pack(payload, loader.PackOptions{
		Variant:  variant,
		LoadAddr: uint32(addr),
		Version:  uint32(ctx.Uint("version")),
		MaxSize:  ctx.Int("size") * 1024,
		Copies:   ctx.Int("copies"),
	})
	if err != nil {
		return err
	}

	log.Printf("Packing %s image, %d bytes @0x%08x -> %s\n",
		variant, len(payload), addr, ctx.String("out"))

	return writeImage(ctx.String("out"), out)
}

func loaderUnpackAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("IMAGE_FILE is required")
	}

	raw, err := ioutil.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}

	img, err := loader.Unpack(raw)
	if err != nil {
		return err
	}
	printWarnings(img.Warnings)

	return ioutil.WriteFile(ctx.String("out"), img.Payload, 0644)
}

func loaderInfoAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("IMAGE_FILE is required")
	}

	raw, err := ioutil.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}

	img, err := loader.Unpack(raw)
	if err != nil {
		return err
	}

	log.Println(img.Header.String())
	printWarnings(img.Warnings)

	return nil
}

var loaderCommand = &cli.Command{
	Name:  "loader",
	Usage: "Work with second-loader (u-boot / trusted-OS) images",
	Subcommands: []*cli.Command{
		{
			Name:      "pack",
			ArgsUsage: "PAYLOAD_FILE",
			Action:    loaderPackAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "out",
					Aliases:  []string{"o"},
					Usage:    "Output file",
					Required: true,
				},
				&cli.StringFlag{
					Name:     "addr",
					Usage:    "Load address, e.g. 0x200000",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  "tos",
					Usage: "Pack a trusted-OS image instead of a loader",
				},
				&cli.UintFlag{
					Name:  "version",
					Usage: "Header version field (0 omits it from the hash)",
				},
				&cli.IntFlag{
					Name:  "size",
					Usage: "Block size per copy, in KiB",
					Value: loader.DefaultMaxSize / 1024,
				},
				&cli.IntFlag{
					Name:  "copies",
					Usage: "Redundant copy count",
					Value: loader.DefaultCopies,
				},
			},
		},
		{
			Name:      "unpack",
			ArgsUsage: "IMAGE_FILE",
			Action:    loaderUnpackAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "out",
					Aliases:  []string{"o"},
					Usage:    "Output file",
					Required: true,
				},
			},
		},
		{
			Name:      "info",
			ArgsUsage: "IMAGE_FILE",
			Action:    loaderInfoAction,
		},
	},
}
