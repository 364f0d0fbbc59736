// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/usedbytes/rkboot-tools/lib/manifest"
)

// writeImage writes a packed container to disk with a progress bar; the
// images run to megabytes and slow media is common.
func writeImage(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bar := pb.Full.Start64(int64(len(data)))
	defer bar.Finish()

	w := bar.NewProxyWriter(f)
	_, err = w.Write(data)
	return err
}

// fallbackResolver searches beside the manifest for files whose declared
// paths don't resolve. Vendor manifests routinely carry paths relative to
// some long-gone build tree, with the actual binaries shipped alongside.
func fallbackResolver(manifestPath string) manifest.Resolver {
	dir := filepath.Dir(manifestPath)

	return func(path string) (string, error) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		candidates := []string{
			filepath.Join(dir, path),
			filepath.Join(dir, filepath.Base(path)),
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				log.Verbosef("resolved %s -> %s\n", path, c)
				return c, nil
			}
		}

		// Leave the declared path in place; the read will report it.
		return path, nil
	}
}

func printWarnings(warnings []error) {
	for _, w := range warnings {
		log.Println("WARNING:", w)
	}
}

func main() {
	app := &cli.App{
		Name:  "rkboot",
		Usage: "A tool for working with Rockchip boot images",
		// Just ignore errors - we'll handle them ourselves in main()
		ExitErrHandler: func(c *cli.Context, e error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "verbose",
				Aliases:  []string{"v"},
				Usage:    "Enable more output",
				Required: false,
				Value:    false,
			},
		},
	}

	app.Commands = []*cli.Command{
		bootCommand,
		trustCommand,
		loaderCommand,
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetUseLog(false)

		log.SetVerbose(ctx.Bool("verbose"))
		log.Verboseln("Extra output enabled.")
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Println("ERROR:", err)
		if v, ok := err.(cli.ExitCoder); ok {
			os.Exit(v.ExitCode())
		} else {
			os.Exit(1)
		}
	}
}
