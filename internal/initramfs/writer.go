// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"io"
	"io/fs"
)

// Writer defines initramfs archive writer interface.
type Writer interface {
	WriteRegular(name string, content io.Reader, size int64, mode fs.FileMode) error
	WriteDirectory(name string, mode fs.FileMode) error
	WriteLink(name, target string) error
}
