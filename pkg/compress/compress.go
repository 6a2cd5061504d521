// Package compress compresses finished export files in place.
package compress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrUnsupportedCompression is returned when an unsupported compression type is requested
var ErrUnsupportedCompression = errors.New("unsupported compression type")

// Compressor creates streaming compression writers.
type Compressor interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)

	// Extension returns the file extension for this compression (e.g., ".zst", ".lz4", ".gz")
	Extension() string

	DefaultLevel() int
}

// Get returns the compressor registered under name.
func Get(name string) (Compressor, error) {
	switch name {
	case "zstd":
		return NewZstdCompressor(), nil
	case "lz4":
		return NewLZ4Compressor(), nil
	case "gzip":
		return NewGzipCompressor(), nil
	case "none", "":
		return NewNoneCompressor(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, name)
	}
}

// FileFinalizer replaces a finished file with its compressed form.
type FileFinalizer struct {
	compressor Compressor
	level      int
}

// NewFileFinalizer uses the compressor's default level when level is 0.
func NewFileFinalizer(c Compressor, level int) *FileFinalizer {
	if level == 0 {
		level = c.DefaultLevel()
	}

	return &FileFinalizer{compressor: c, level: level}
}

// Finalize writes path+extension and removes path. Files are left untouched
// when the compressor has no extension.
func (f *FileFinalizer) Finalize(ctx context.Context, path string) (string, error) {
	ext := f.compressor.Extension()
	if ext == "" {
		return path, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := path + ext
	if err := f.compressFile(path, dst); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return dst, nil
}

func (f *FileFinalizer) compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	w, err := f.compressor.NewWriter(out, f.level)
	if err != nil {
		return err
	}
	if _, err = io.Copy(w, in); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close compressor for %s: %w", dst, err)
	}

	return out.Close()
}
