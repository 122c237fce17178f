package capture

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// Compression is the container format of a trace file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionXZ
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXZ:
		return "xz"
	default:
		return "none"
	}
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{0x42, 0x5a, 0x68} // "BZh"
	xzMagic    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// DetectCompression identifies the container by its magic bytes.
func DetectCompression(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, bzip2Magic):
		return CompressionBzip2
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXZ
	}
	return CompressionNone
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a trace file, transparently decompressing gzip, bzip2 and xz
// containers.
func Open(path string) (io.ReadCloser, Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CompressionNone, fmt.Errorf("capture: %w", err)
	}
	br := bufio.NewReader(f)
	header, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		f.Close()
		return nil, CompressionNone, fmt.Errorf("capture: %s: %w", path, err)
	}

	kind := DetectCompression(header)
	rc := &readCloser{Reader: br, closers: []io.Closer{f}}
	switch kind {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, kind, fmt.Errorf("capture: %s: gzip: %w", path, err)
		}
		rc.Reader = gz
		rc.closers = append(rc.closers, gz)
	case CompressionBzip2:
		rc.Reader = bzip2.NewReader(br)
	case CompressionXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			f.Close()
			return nil, kind, fmt.Errorf("capture: %s: xz: %w", path, err)
		}
		rc.Reader = xr
	}
	return rc, kind, nil
}

// CompressionFor picks the container for an output path by extension.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return CompressionGzip
	case ".bz2":
		return CompressionBzip2
	case ".xz":
		return CompressionXZ
	}
	return CompressionNone
}

type writeCloser struct {
	io.Writer
	closers []io.Closer
}

func (w *writeCloser) Close() error {
	var first error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Create creates a trace file and its parent directories, compressing it
// when the extension is .gz or .xz. Closing the writer flushes the compressor and closes the file.
func Create(path string) (io.WriteCloser, error) {
	kind := CompressionFor(path)
	if kind == CompressionBzip2 {
		return nil, fmt.Errorf("capture: %s: bzip2 output is not supported", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	wc := &writeCloser{Writer: f, closers: []io.Closer{f}}
	switch kind {
	case CompressionGzip:
		gz := gzip.NewWriter(f)
		wc.Writer = gz
		wc.closers = append(wc.closers, gz)
	case CompressionXZ:
		xw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("capture: %s: xz: %w", path, err)
		}
		wc.Writer = xw
		wc.closers = append(wc.closers, xw)
	}
	return wc, nil
}
