// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import "errors"

var (
	// ErrNodeNotDir is returned if a tree node is supposed to be a directory
	// but is not.
	ErrNodeNotDir = errors.New("tree node is not a directory")

	// ErrNodeNotExists is returned if a tree node that is looked up does not
	// exist.
	ErrNodeNotExists = errors.New("tree node does not exist")

	// ErrNodeExists is returned if a tree node exists that was not expected.
	ErrNodeExists = errors.New("tree node already exists")

	// ErrNodeTypeUnknown is returned if a tree node has an unknown type.
	ErrNodeTypeUnknown = errors.New("unknown tree node type")

	// ErrNotRegular is returned if a source is not a regular file.
	ErrNotRegular = errors.New("source is not a regular file")

	// ErrPathNotAbs is returned if an image path is not absolute.
	ErrPathNotAbs = errors.New("path is not absolute")

	// ErrNotELF is returned if the file does not have an ELF magic number.
	ErrNotELF = errors.New("is not an ELF file")
)

// LddError is returned if the ldd program fails.
type LddError struct {
	Err    error
	Stderr string
}

func (e *LddError) Error() string {
	msg := "ldd: " + e.Err.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}

	return msg
}

// Is returns true if other is an [LddError].
func (*LddError) Is(other error) bool {
	_, ok := other.(*LddError)
	return ok
}

func (e *LddError) Unwrap() error {
	return e.Err
}
