// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path"
	"strings"
)

// Tree represents a simple file tree. Paths are slash separated and
// relative to the image root. A leading slash is ignored.
type Tree struct {
	// Do not access directly! Always use [Tree.Root] to access the root
	// node to ensure it exists.
	root *Node
}

func cleanPath(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// Root returns the root node of the tree.
func (t *Tree) Root() *Node {
	if t.root == nil {
		t.root = &Node{
			Type: NodeTypeDirectory,
			Mode: DirMode,
		}
	}

	return t.root
}

// GetNode returns the node for the given path. Returns [ErrNodeNotExists] if
// the node does not exist.
func (t *Tree) GetNode(name string) (*Node, error) {
	cleaned := cleanPath(name)
	if cleaned == "" {
		return t.Root(), nil
	}

	dir, base := path.Split(cleaned)

	parent, err := t.GetNode(dir)
	if err != nil {
		return nil, err
	}

	return parent.GetNode(base)
}

// Mkdir adds a directory node for the given path. Non existing parents
// are created recursively. If any of the parents exists but is not a
// directory [ErrNodeNotDir] is returned.
func (t *Tree) Mkdir(name string) (*Node, error) {
	cleaned := cleanPath(name)
	if cleaned == "" {
		return t.Root(), nil
	}

	dir, base := path.Split(cleaned)

	parent, err := t.Mkdir(dir)
	if err != nil {
		return nil, err
	}

	node, err := parent.AddDirectory(base)
	if errors.Is(err, ErrNodeExists) {
		if !node.IsDir() {
			return nil, fmt.Errorf("%s: %w", cleaned, ErrNodeNotDir)
		}

		err = nil
	}

	return node, err
}

// AddRegular adds a regular file with the given source at the given path.
// Parent directories are created.
func (t *Tree) AddRegular(name string, source Source, mode fs.FileMode) (*Node, error) {
	dir, base := path.Split(cleanPath(name))
	if base == "" {
		return nil, fmt.Errorf("%w: %q", ErrNodeExists, name)
	}

	parent, err := t.Mkdir(dir)
	if err != nil {
		return nil, err
	}

	node, err := parent.AddRegular(base, source, mode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return node, nil
}

// Ln adds a link to target at the given path. Parent directories are
// created. An existing link at the path is not an error.
func (t *Tree) Ln(target string, name string) error {
	dir, base := path.Split(cleanPath(name))

	parent, err := t.Mkdir(dir)
	if err != nil {
		return err
	}

	if node, err := parent.AddLink(base, target); err != nil {
		if !errors.Is(err, ErrNodeExists) || !node.IsLink() {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

// All returns an iterator over all [Node]s except the root. Parents are
// always yielded before their children.
func (t *Tree) All() iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		iterators := []iter.Seq2[string, *Node]{
			t.Root().sortedChildren(""),
		}

		for len(iterators) > 0 {
			for name, node := range iterators[0] {
				if !yield(name, node) {
					return
				}

				if node.IsDir() {
					iterators = append(iterators, node.sortedChildren(name))
				}
			}

			iterators = iterators[1:]
		}
	}
}

// WriteInto writes all nodes into the given [Writer].
func (t *Tree) WriteInto(writer Writer) error {
	for name, node := range t.All() {
		if err := node.WriteInto(writer, name); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	return nil
}
