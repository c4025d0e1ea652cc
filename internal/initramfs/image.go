// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/aibor/enclaveos/sysinit"
)

// Default image paths.
const (
	InitPath   = "/init"
	BridgePath = "/usr/bin/socat"
	ConfigPath = "/etc/enclaveos.yaml"
)

// Image describes the content of the enclave's root file system.
type Image struct {
	// Init is the init program. It is placed at [InitPath].
	Init Source

	// Bridge is the optional bridge binary placed at BridgePath.
	Bridge Source

	// BridgePath defaults to [BridgePath].
	BridgePath string

	// Config is the optional boot configuration placed at ConfigPath.
	Config Source

	// ConfigPath defaults to [ConfigPath].
	ConfigPath string

	// Files are additional files by absolute image path. They are added
	// as executables.
	Files map[string]Source

	// Libs are shared objects by absolute host path. Each is placed at the
	// same path in the image. See [CollectLibs].
	Libs []string

	// Dirs are created in addition to the mount targets of the mount
	// table.
	Dirs []string

	// MountTable is used to create the mount target skeleton. Defaults to
	// [sysinit.EnclaveMountTable].
	MountTable sysinit.MountTable
}

type imageFile struct {
	path   string
	source Source
	mode   fs.FileMode
}

// Tree assembles the file tree of the image.
func (i *Image) Tree() (*Tree, error) {
	if i.Init == nil {
		return nil, errors.New("init program is required")
	}

	tree := &Tree{}

	table := i.MountTable
	if table == nil {
		table = sysinit.EnclaveMountTable()
	}

	dirs := append([]string{"/etc", "/usr/bin"}, i.Dirs...)
	for _, spec := range table {
		dirs = append(dirs, spec.Target)
	}

	for _, dir := range dirs {
		if !path.IsAbs(dir) {
			return nil, fmt.Errorf("dir %s: %w", dir, ErrPathNotAbs)
		}

		if _, err := tree.Mkdir(dir); err != nil {
			return nil, fmt.Errorf("dir %s: %w", dir, err)
		}
	}

	regulars := []imageFile{
		{InitPath, i.Init, ExecutableMode},
		{valueOr(i.BridgePath, BridgePath), i.Bridge, ExecutableMode},
		{valueOr(i.ConfigPath, ConfigPath), i.Config, ConfigMode},
	}

	for name, source := range i.Files {
		regulars = append(regulars, imageFile{name, source, ExecutableMode})
	}

	for _, lib := range i.Libs {
		regulars = append(regulars, imageFile{lib, FileSource(lib), ExecutableMode})
	}

	for _, regular := range regulars {
		if regular.source == nil {
			continue
		}

		if !path.IsAbs(regular.path) {
			return nil, fmt.Errorf("file %s: %w", regular.path, ErrPathNotAbs)
		}

		if _, err := tree.AddRegular(regular.path, regular.source, regular.mode); err != nil {
			return nil, err
		}
	}

	return tree, nil
}

// WriteInto writes the image as CPIO archive with the given compression into
// w.
func (i *Image) WriteInto(w io.Writer, compression Compression) error {
	tree, err := i.Tree()
	if err != nil {
		return err
	}

	return Write(w, tree, compression)
}

// Write writes the tree as CPIO archive with the given compression into w.
func Write(w io.Writer, tree *Tree, compression Compression) error {
	compressor, err := NewCompressor(w, compression)
	if err != nil {
		return err
	}

	archive := NewCPIOWriter(compressor)

	if err := tree.WriteInto(archive); err != nil {
		return errors.Join(err, compressor.Close())
	}

	if err := archive.Close(); err != nil {
		return errors.Join(err, compressor.Close())
	}

	if err := compressor.Close(); err != nil {
		return fmt.Errorf("close %s: %w", compression, err)
	}

	return nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
