// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Source provides the content of a regular file in the image.
type Source interface {
	// Open returns the content and its size in bytes.
	Open() (io.ReadCloser, int64, error)
}

// FileSource is a [Source] reading a file of the host.
type FileSource string

var _ Source = FileSource("")

// Open implements [Source]. Symbolic links are followed.
func (s FileSource) Open() (io.ReadCloser, int64, error) {
	file, err := os.Open(string(s))
	if err != nil {
		return nil, 0, fmt.Errorf("open source: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, fmt.Errorf("stat source: %w", err)
	}

	if !info.Mode().IsRegular() {
		_ = file.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotRegular, s)
	}

	return file, info.Size(), nil
}

// String returns the host path.
func (s FileSource) String() string {
	return string(s)
}

// BytesSource is a [Source] with in-memory content.
type BytesSource []byte

var _ Source = BytesSource(nil)

// Open implements [Source].
func (s BytesSource) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(s)), int64(len(s)), nil
}

// String returns a short description.
func (s BytesSource) String() string {
	return fmt.Sprintf("%d bytes", len(s))
}
