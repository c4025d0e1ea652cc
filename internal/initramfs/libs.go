// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"bufio"
	"bytes"
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const lddTimeout = 5 * time.Second

// Interpreter returns the program interpreter (dynamic linker) of the ELF
// file with the given path. It returns an empty string for statically linked
// files and [ErrNotELF] if the file is not an ELF file.
func Interpreter(path string) (string, error) {
	osFile, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open elf: %w", err)
	}
	defer osFile.Close()

	magic := make([]byte, len(elf.ELFMAG))

	_, err = io.ReadFull(osFile, magic)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		(err == nil && string(magic) != elf.ELFMAG) {
		return "", fmt.Errorf("%s %w", path, ErrNotELF)
	} else if err != nil {
		return "", fmt.Errorf("read magic: %w", err)
	}

	file, err := elf.NewFile(osFile)
	if err != nil {
		var formatErr *elf.FormatError
		if errors.As(err, &formatErr) || errors.Is(err, io.EOF) ||
			errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("%s %w: %w", path, ErrNotELF, err)
		}

		return "", fmt.Errorf("parse elf: %w", err)
	}

	for _, prog := range file.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}

		data, err := io.ReadAll(prog.Open())
		if err != nil {
			return "", fmt.Errorf("read interpreter: %w", err)
		}

		return string(bytes.TrimRight(data, "\x00")), nil
	}

	return "", nil
}

// Ldd returns the shared objects the ELF file with the given path requires,
// as resolved by the "ldd" program. It returns an [LddError] if "ldd" is not
// available or fails.
func Ldd(ctx context.Context, path string) ([]string, error) {
	var stdout, stderr bytes.Buffer

	ctx, stop := context.WithTimeout(ctx, lddTimeout)
	defer stop()

	cmd := exec.CommandContext(ctx, "ldd", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &LddError{
			Err:    err,
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}

	return parseLdd(&stdout), nil
}

// parseLdd returns the paths of all shared objects in the given ldd output
// that are real files. The vdso is skipped.
func parseLdd(output io.Reader) []string {
	var paths []string

	scanner := bufio.NewScanner(output)
	for scanner.Scan() {
		var name, path string

		var start uint

		line := scanner.Text()

		// glibc rtld.c: "\t%s => %s (0x%0*zx)\n"
		if _, err := fmt.Sscanf(line, "\t%s => %s (0x%x)", &name, &path, &start); err == nil {
			paths = append(paths, path)
			continue
		}

		// glibc rtld.c: "\t%s (0x%0*zx)\n"
		if _, err := fmt.Sscanf(line, "\t%s (0x%x)", &name, &start); err == nil && filepath.IsAbs(name) {
			paths = append(paths, name)
		}
	}

	return paths
}

// CollectLibs returns the deduplicated and sorted shared objects required by
// the given files. Statically linked files and files that are not ELF files
// are skipped.
func CollectLibs(ctx context.Context, files ...string) ([]string, error) {
	libs := make(map[string]struct{})

	for _, file := range files {
		interpreter, err := Interpreter(file)
		if errors.Is(err, ErrNotELF) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("[%s]: %w", file, err)
		}

		if interpreter == "" {
			continue
		}

		paths, err := Ldd(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("[%s]: %w", file, err)
		}

		for _, path := range paths {
			libs[filepath.Clean(path)] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(libs)), nil
}
