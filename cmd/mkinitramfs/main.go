// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Mkinitramfs assembles the root file system of an enclave as CPIO archive.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aibor/enclaveos/internal/config"
	"github.com/aibor/enclaveos/internal/initramfs"
	"github.com/aibor/enclaveos/sysinit"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// countingWriter counts the bytes written through it.
type countingWriter struct {
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += uint64(len(p))
	return len(p), nil
}

// loadConfig reads and validates the boot config. Without a file the
// defaults are returned, so the image layout matches what the init program
// uses without config.
func loadConfig(hostPath string) (*config.Config, []byte, error) {
	if hostPath == "" {
		return config.Default(), nil, nil
	}

	data, err := os.ReadFile(hostPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("config %s: %w", hostPath, err)
	}

	return cfg, data, nil
}

func newImage(ctx context.Context, f *flags, log *zap.Logger) (*initramfs.Image, error) {
	cfg, data, err := loadConfig(f.config)
	if err != nil {
		return nil, err
	}

	table, err := cfg.MountTable()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	image := &initramfs.Image{
		Init:       initramfs.FileSource(f.init),
		BridgePath: f.bridgePath,
		Dirs:       f.dirs,
		MountTable: table,
		Files:      make(map[string]initramfs.Source, len(f.files)),
	}

	if image.BridgePath == "" {
		image.BridgePath = cfg.Bridge.Path
	}

	if f.bridge != "" {
		image.Bridge = initramfs.FileSource(f.bridge)
	}

	if data != nil {
		image.Config = initramfs.BytesSource(data)
	}

	binaries := []string{}
	if f.bridge != "" {
		binaries = append(binaries, f.bridge)
	}

	for imagePath, hostPath := range f.files {
		image.Files[imagePath] = initramfs.FileSource(hostPath)
		binaries = append(binaries, hostPath)
	}

	if !f.noLibs {
		image.Libs, err = initramfs.CollectLibs(ctx, binaries...)
		if err != nil {
			return nil, fmt.Errorf("collect libs: %w", err)
		}

		for _, lib := range image.Libs {
			log.Debug("add shared object", zap.String("path", lib))
		}
	}

	return image, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	f := &flags{
		compression: initramfs.CompressionGzip,
		output:      "-",
	}

	if err := f.parseArgs(args, stderr); err != nil {
		return err
	}

	level := zapcore.InfoLevel
	if f.verbose {
		level = zapcore.DebugLevel
	}

	log := sysinit.NewLogger(zapcore.AddSync(stderr), level).Named("mkinitramfs")
	defer func() { _ = log.Sync() }()

	image, err := newImage(context.Background(), f, log)
	if err != nil {
		return err
	}

	out := stdout

	if f.output != "-" {
		file, err := os.OpenFile(f.output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer file.Close()

		out = file
	}

	hasher := blake3.New()
	counter := &countingWriter{}

	if err := image.WriteInto(io.MultiWriter(out, hasher, counter), f.compression); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	if file, ok := out.(*os.File); ok && f.output != "-" {
		if err := file.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
	}

	log.Info("archive written",
		zap.String("output", f.output),
		zap.Stringer("compression", f.compression),
		zap.String("size", humanize.IBytes(counter.n)),
		zap.String("blake3", hex.EncodeToString(hasher.Sum(nil))),
	)

	return nil
}

func main() {
	err := run(os.Args, os.Stdout, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	} else if errors.Is(err, errUsage) {
		os.Exit(2)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
