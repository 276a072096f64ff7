package normalize

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Defacto2/helper"
	"github.com/klauspost/compress/gzip"
)

// Package file gzip.go contains the gzip decompression of bundle files.

const gzipx = ".gz"

// ErrTruncated is returned for a gzip file that ends before the end of the stream.
var ErrTruncated = errors.New("EOF reached, incomplete file?")

// ErrNotGzip is returned for a file that uses the .gz extension but is not gzip compressed.
var ErrNotGzip = errors.New("not a gzip file?")

// Gunzip decompresses every gzip file in the dir tree, see [Normalizer.Gunzip].
func Gunzip(dir string) (Report, error) {
	return Normalizer{}.Gunzip(dir)
}

// Gunzip walks the dir tree and decompresses every file with a .gz extension.
// The decompressed content is written to a sibling file named without the extension
// and the original is removed only once the content is complete.
//
// Truncated and invalid files are recorded in the report, logged and left in place.
// Once a tree contains no gzip files, further calls do nothing.
func (n Normalizer) Gunzip(dir string) (Report, error) {
	n.log().Info("Expanding bundle files")
	var r Report
	names, err := files(dir, gzipx)
	if err != nil {
		return r, fmt.Errorf("gunzip walk %w", err)
	}
	for _, name := range names {
		if err := GunzipFile(name); err != nil {
			n.fail(&r, "Failed to expand", name, err)
			continue
		}
		r.Done++
	}
	return r, nil
}

// GunzipFile decompresses the named gzip file to a sibling file without the .gz extension
// and then removes the named file. Nothing is changed when an error is returned.
func GunzipFile(name string) error {
	dst := strings.TrimSuffix(name, gzipx)
	if dst == name {
		return fmt.Errorf("gunzip %w: %s", ErrNotGzip, name)
	}
	src, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("gunzip %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(name), ".gunzip-*")
	if err != nil {
		return fmt.Errorf("gunzip %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := decompress(tmp, src); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("gunzip %w", err)
	}
	if err := os.Chmod(tmp.Name(), helper.WriteWriteRead); err != nil {
		return fmt.Errorf("gunzip %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("gunzip %w", err)
	}
	src.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("gunzip %w", err)
	}
	return nil
}

func decompress(w io.Writer, r io.Reader) error {
	gz, err := gzip.NewReader(r)
	switch {
	case errors.Is(err, io.EOF):
		// an empty file decompresses to an empty file
		return nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTruncated
	case err != nil:
		return ErrNotGzip
	}
	defer gz.Close()
	const size = 64 * 1024
	buf := make([]byte, size)
	if _, err := io.CopyBuffer(w, gz, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncated
		}
		return fmt.Errorf("%w: %w", ErrNotGzip, err)
	}
	return nil
}
