package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Defacto2/helper"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Package file zip.go contains the ZIP extraction methods.

// Unzip creates the dst directory and extracts all the files of the src ZIP archive into it.
// A corrupt archive is handed to the 7-Zip program, see [Extractor.Zip7].
// If the extracted files are within a single directory, the content of that directory is
// moved up one level, see [Collapse].
func Unzip(src, dst string) error {
	return Extractor{}.Unzip(src, dst)
}

// Unzip creates the dst directory and extracts all the files of the src ZIP archive into it.
// A corrupt archive is handed to the 7-Zip program, see [Extractor.Zip7].
// If the extracted files are within a single directory, the content of that directory is
// moved up one level, see [Collapse].
func (x Extractor) Unzip(src, dst string) error {
	if err := x.unzip(src, dst); err != nil {
		return err
	}
	if err := Collapse(dst); err != nil {
		return fmt.Errorf("unzip %w", err)
	}
	return nil
}

// unzip creates dst and extracts src without collapsing a wrapper directory.
func (x Extractor) unzip(src, dst string) error {
	if dst == "" {
		return ErrDest
	}
	if err := os.Mkdir(dst, DirMode); err != nil {
		return fmt.Errorf("unzip mkdir %w", err)
	}
	err := extractZip(src, dst)
	if err == nil {
		return nil
	}
	if !Corrupt(err) {
		return fmt.Errorf("unzip %w: %s", err, src)
	}
	x.log().Warnw("failed to extract file, corrupt zip? attempting to extract with 7zip",
		"file", src, "error", err)
	return x.Zip7(src, dst)
}

// Corrupt returns true if the error was caused by a damaged or unsupported ZIP archive.
func Corrupt(err error) bool {
	if err == nil {
		return false
	}
	var flateErr flate.CorruptInputError
	switch {
	case
		errors.Is(err, zip.ErrFormat),
		errors.Is(err, zip.ErrChecksum),
		errors.Is(err, zip.ErrAlgorithm),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &flateErr):
		return true
	}
	return false
}

// extractZip writes every entry of the src archive into the dst directory.
func extractZip(src, dst string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		if err := unzipFile(f, dst); err != nil {
			return err
		}
	}
	return nil
}

func unzipFile(f *zip.File, dst string) error {
	name := strings.TrimLeft(filepath.FromSlash(f.Name), string(filepath.Separator))
	if name == "" {
		return nil
	}
	path, err := securejoin.SecureJoin(dst, name)
	if err != nil {
		return fmt.Errorf("zip entry %q: %w", f.Name, err)
	}
	info := f.FileInfo()
	if info.IsDir() {
		return os.MkdirAll(path, DirMode)
	}
	if !info.Mode().IsRegular() {
		// symlinks and devices are not part of diagnostic bundles
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeFile(path, rc)
}

// writeFile creates or truncates the named file and copies r into it.
func writeFile(name string, r io.Reader) error {
	w, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, helper.WriteWriteRead)
	if err != nil {
		return err
	}
	const size = 64 * 1024
	buf := make([]byte, size)
	if _, err := io.CopyBuffer(w, r, buf); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Collapse moves the content of a lone subdirectory of dir up one level
// and removes the then empty subdirectory.
// Nothing happens when dir contains more than one entry or the entry is a file.
func Collapse(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("collapse %w", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}
	wrapper := filepath.Join(dir, entries[0].Name())
	// the wrapper is renamed first in case it holds an entry of the same name
	tmp, err := os.MkdirTemp(dir, ".collapse-")
	if err != nil {
		return fmt.Errorf("collapse %w", err)
	}
	if err := os.Remove(tmp); err != nil {
		return fmt.Errorf("collapse %w", err)
	}
	if err := os.Rename(wrapper, tmp); err != nil {
		return fmt.Errorf("collapse %w", err)
	}
	children, err := os.ReadDir(tmp)
	if err != nil {
		return fmt.Errorf("collapse %w", err)
	}
	for _, child := range children {
		oldpath := filepath.Join(tmp, child.Name())
		newpath := filepath.Join(dir, child.Name())
		if err := os.Rename(oldpath, newpath); err != nil {
			return fmt.Errorf("collapse %w", err)
		}
	}
	if err := os.Remove(tmp); err != nil {
		return fmt.Errorf("collapse %w", err)
	}
	return nil
}
