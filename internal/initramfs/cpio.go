// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/cavaliergopher/cpio"
)

const numLinks = 2

// CPIOWriter implements [Writer] for [cpio.Writer]. All entries are owned by
// root and have a zero modification time.
type CPIOWriter struct {
	cpioWriter *cpio.Writer
}

var _ Writer = (*CPIOWriter)(nil)

// NewCPIOWriter creates a new archive writer.
func NewCPIOWriter(w io.Writer) *CPIOWriter {
	return &CPIOWriter{cpio.NewWriter(w)}
}

// Close writes the trailer. It does not close the underlying writer.
func (w *CPIOWriter) Close() error {
	err := w.cpioWriter.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}

func (w *CPIOWriter) writeHeader(hdr *cpio.Header) error {
	if err := w.cpioWriter.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %s: %w", hdr.Name, err)
	}

	return nil
}

// WriteDirectory adds a directory entry for the given path to the archive.
func (w *CPIOWriter) WriteDirectory(name string, mode fs.FileMode) error {
	return w.writeHeader(&cpio.Header{
		Name:  name,
		Mode:  cpio.TypeDir | cpio.FileMode(mode.Perm()),
		Links: numLinks,
	})
}

// WriteLink adds a symbolic link for the given path pointing to the given
// target.
func (w *CPIOWriter) WriteLink(name, target string) error {
	err := w.writeHeader(&cpio.Header{
		Name: name,
		Mode: cpio.TypeSymlink | cpio.ModePerm,
		Size: int64(len(target)),
	})
	if err != nil {
		return err
	}

	// Body of a link is the path of the target file.
	if _, err := w.cpioWriter.Write([]byte(target)); err != nil {
		return fmt.Errorf("write body for %s: %w", name, err)
	}

	return nil
}

// WriteRegular copies size bytes from content into the archive.
func (w *CPIOWriter) WriteRegular(name string, content io.Reader, size int64, mode fs.FileMode) error {
	err := w.writeHeader(&cpio.Header{
		Name:  name,
		Mode:  cpio.TypeReg | cpio.FileMode(mode.Perm()),
		Size:  size,
		Links: 1,
	})
	if err != nil {
		return err
	}

	if _, err := io.CopyN(w.cpioWriter, content, size); err != nil {
		return fmt.Errorf("write body for %s: %w", name, err)
	}

	return nil
}
