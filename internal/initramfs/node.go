// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"fmt"
	"io/fs"
	"iter"
	"maps"
	"path"
	"slices"
)

// NodeType defines the type of a [Node].
type NodeType int

const (
	// NodeTypeRegular is a regular file. Its content is copied from its
	// [Source] into the archive.
	NodeTypeRegular NodeType = iota

	// NodeTypeDirectory is a directory.
	NodeTypeDirectory

	// NodeTypeLink is a symbolic link.
	NodeTypeLink
)

// Default permissions.
const (
	DirMode        fs.FileMode = 0o755
	ExecutableMode fs.FileMode = 0o755
	ConfigMode     fs.FileMode = 0o644
)

// Node is a single file tree node.
type Node struct {
	Type NodeType

	// Mode are the permission bits.
	Mode fs.FileMode

	// Source is the content of a regular file.
	Source Source

	// Target of a link.
	Target string

	children map[string]*Node
}

// String returns a string representation of the Node.
func (n *Node) String() string {
	switch n.Type {
	case NodeTypeRegular:
		return fmt.Sprintf("regular file (%v)", n.Source)
	case NodeTypeDirectory:
		return fmt.Sprintf("directory (% s)", slices.Sorted(maps.Keys(n.children)))
	case NodeTypeLink:
		return "link (" + n.Target + ")"
	default:
		return "invalid type"
	}
}

// IsDir returns true if the [Node] is a directory.
func (n *Node) IsDir() bool {
	return n.Type == NodeTypeDirectory
}

// IsLink returns true if the [Node] is a link.
func (n *Node) IsLink() bool {
	return n.Type == NodeTypeLink
}

// IsRegular returns true if the [Node] is a regular file.
func (n *Node) IsRegular() bool {
	return n.Type == NodeTypeRegular
}

// AddRegular adds a new regular file child.
func (n *Node) AddRegular(name string, source Source, mode fs.FileMode) (*Node, error) {
	return n.AddNode(name, &Node{
		Type:   NodeTypeRegular,
		Mode:   mode,
		Source: source,
	})
}

// AddDirectory adds a new directory child.
func (n *Node) AddDirectory(name string) (*Node, error) {
	return n.AddNode(name, &Node{
		Type: NodeTypeDirectory,
		Mode: DirMode,
	})
}

// AddLink adds a new link child.
func (n *Node) AddLink(name, target string) (*Node, error) {
	return n.AddNode(name, &Node{
		Type:   NodeTypeLink,
		Target: target,
	})
}

// AddNode adds an arbitrary [Node] as child. If a child with the name exists
// already, it is returned together with [ErrNodeExists].
func (n *Node) AddNode(name string, node *Node) (*Node, error) {
	if !n.IsDir() {
		return nil, ErrNodeNotDir
	}

	if existing, exists := n.children[name]; exists {
		return existing, ErrNodeExists
	}

	if n.children == nil {
		n.children = make(map[string]*Node)
	}

	n.children[name] = node

	return node, nil
}

// GetNode gets the child with the given name.
func (n *Node) GetNode(name string) (*Node, error) {
	if !n.IsDir() {
		return nil, ErrNodeNotDir
	}

	node, exists := n.children[name]
	if !exists {
		return nil, ErrNodeNotExists
	}

	return node, nil
}

// WriteInto writes the [Node] with the given archive path into the given
// [Writer].
func (n *Node) WriteInto(writer Writer, name string) error {
	switch n.Type {
	case NodeTypeRegular:
		content, size, err := n.Source.Open()
		if err != nil {
			return err //nolint:wrapcheck
		}
		defer content.Close()

		return writer.WriteRegular(name, content, size, n.Mode) //nolint:wrapcheck
	case NodeTypeDirectory:
		return writer.WriteDirectory(name, n.Mode) //nolint:wrapcheck
	case NodeTypeLink:
		return writer.WriteLink(name, n.Target) //nolint:wrapcheck
	default:
		return fmt.Errorf("%w: %d", ErrNodeTypeUnknown, n.Type)
	}
}

// sortedChildren returns an iterator over all children sorted by name.
func (n *Node) sortedChildren(base string) iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		for _, name := range slices.Sorted(maps.Keys(n.children)) {
			if !yield(path.Join(base, name), n.children[name]) {
				return
			}
		}
	}
}
