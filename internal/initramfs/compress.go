// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initramfs

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is an initramfs compression format supported by the kernel.
type Compression int

// Supported compression formats.
const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd

	// CompressionLZ4 uses the legacy LZ4 frame format, which is the only
	// LZ4 format the kernel decompresses.
	CompressionLZ4
)

// String implements [fmt.Stringer].
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (c *Compression) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*c = CompressionNone
	case "gzip":
		*c = CompressionGzip
	case "zstd":
		*c = CompressionZstd
	case "lz4":
		*c = CompressionLZ4
	default:
		return fmt.Errorf("unknown compression %q", text)
	}

	return nil
}

// Extension returns the common file name extension for the format.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

// NewCompressor returns a writer that compresses into w. Closing it flushes
// the compressed stream but does not close w.
func NewCompressor(w io.Writer, compression Compression) (io.WriteCloser, error) {
	switch compression {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		writer, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}

		return writer, nil
	case CompressionZstd:
		writer, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}

		return writer, nil
	case CompressionLZ4:
		writer := lz4.NewWriter(w)

		err := writer.Apply(
			lz4.LegacyOption(true),
			lz4.CompressionLevelOption(lz4.Level9),
		)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}

		return writer, nil
	default:
		return nil, fmt.Errorf("unknown compression %d", int(compression))
	}
}
