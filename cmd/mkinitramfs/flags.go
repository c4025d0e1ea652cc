// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/aibor/enclaveos/internal/initramfs"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage")

type compressionValue struct {
	value *initramfs.Compression
}

func (c compressionValue) Set(s string) error {
	return c.value.UnmarshalText([]byte(s)) //nolint:wrapcheck
}

func (c compressionValue) String() string {
	return c.value.String()
}

func (compressionValue) Type() string {
	return "compression"
}

type flags struct {
	init        string
	bridge      string
	bridgePath  string
	config      string
	files       map[string]string
	dirs        []string
	compression initramfs.Compression
	output      string
	noLibs      bool
	verbose     bool
}

func (f *flags) parseArgs(args []string, output io.Writer) error {
	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVarP(&f.init, "init", "i", f.init,
		"host path of the init program")
	fs.StringVarP(&f.bridge, "bridge", "b", f.bridge,
		"host path of the bridge binary")
	fs.StringVar(&f.bridgePath, "bridge-path", f.bridgePath,
		"image path of the bridge binary (default from config)")
	fs.StringVarP(&f.config, "config", "c", f.config,
		"host path of the boot config, validated before it is added")
	fs.StringToStringVarP(&f.files, "file", "f", f.files,
		"additional executable as image-path=host-path")
	fs.StringSliceVar(&f.dirs, "dir", f.dirs,
		"additional directory to create in the image")
	fs.VarP(compressionValue{&f.compression}, "compression", "z",
		"compression: none, gzip, zstd or lz4")
	fs.StringVarP(&f.output, "output", "o", f.output,
		`output file, "-" for stdout`)
	fs.BoolVar(&f.noLibs, "no-libs", f.noLibs,
		"do not add shared objects required by the bridge and additional files")
	fs.BoolVarP(&f.verbose, "verbose", "v", f.verbose,
		"enable debug logging")

	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	failf := func(format string, a ...any) error {
		err := fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, a...))
		fmt.Fprintln(output, err)
		fs.PrintDefaults()

		return err
	}

	if fs.NArg() > 0 {
		return failf("unexpected argument %s", fs.Arg(0))
	}

	if f.init == "" {
		return failf("no init program given")
	}

	for imagePath := range f.files {
		if !path.IsAbs(imagePath) {
			return failf("image path %s is not absolute", imagePath)
		}
	}

	for _, hostPath := range []*string{&f.init, &f.bridge, &f.config} {
		if err := absPath(hostPath); err != nil {
			return failf("%v", err)
		}
	}

	for imagePath, hostPath := range f.files {
		if err := absPath(&hostPath); err != nil {
			return failf("%v", err)
		}

		f.files[imagePath] = hostPath
	}

	return nil
}

func absPath(file *string) error {
	if *file == "" {
		return nil
	}

	abs, err := filepath.Abs(*file)
	if err != nil {
		return fmt.Errorf("absolute path for %s: %w", *file, err)
	}

	*file = abs

	return nil
}
