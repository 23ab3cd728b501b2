// Package compression decompresses pulled artifacts in-process, choosing the
// codec from the file extension.
package compression

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Type names a supported single-stream codec.
type Type string

const (
	Gzip Type = "gz"
	Xz   Type = "xz"
	Zstd Type = "zstd"
)

var extensions = map[string]Type{
	".gz":   Gzip,
	".tgz":  Gzip,
	".xz":   Xz,
	".txz":  Xz,
	".zst":  Zstd,
	".zstd": Zstd,
}

// TypeOf reports the codec for name's extension.
func TypeOf(name string) (Type, bool) {
	t, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return t, ok
}

// IsCompressed reports whether name has a supported compressed extension.
func IsCompressed(name string) bool {
	_, ok := TypeOf(name)
	return ok
}

// TrimExt strips the compression extension from name. Short tarball forms
// become ".tar": "a.tgz" -> "a.tar".
func TrimExt(name string) string {
	ext := filepath.Ext(name)
	if _, ok := extensions[strings.ToLower(ext)]; !ok {
		return name
	}
	base := strings.TrimSuffix(name, ext)
	switch strings.ToLower(ext) {
	case ".tgz", ".txz":
		return base + ".tar"
	}
	return base
}

// NewReader wraps r in a decoder for t.
func NewReader(t Type, r io.Reader) (io.ReadCloser, error) {
	switch t {
	case Gzip:
		return gzip.NewReader(r)
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported decompression type: %s", t)
	}
}

// NewWriter wraps w in an encoder for t. Closing it flushes the stream but
// leaves w open.
func NewWriter(t Type, w io.Writer) (io.WriteCloser, error) {
	switch t {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Xz:
		return xz.NewWriter(w)
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

// DecompressFile decodes src into dst using the codec named by src's
// extension. dst is removed when decoding fails.
func DecompressFile(src, dst string) error {
	t, ok := TypeOf(src)
	if !ok {
		return fmt.Errorf("unsupported decompression type: %q", filepath.Ext(src))
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	dec, err := NewReader(t, in)
	if err != nil {
		return fmt.Errorf("failed to read %s header: %w", src, err)
	}
	defer dec.Close()

	return writeAll(dst, dec)
}

// CompressFile encodes src into dst using the codec named by dst's
// extension.
func CompressFile(src, dst string) error {
	t, ok := TypeOf(dst)
	if !ok {
		return fmt.Errorf("unsupported compression type: %q", filepath.Ext(dst))
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	enc, err := NewWriter(t, out)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to start %s encoder: %w", t, err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to finish %s: %w", dst, err)
	}
	return out.Close()
}

func writeAll(dst string, r io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to decompress into %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}
