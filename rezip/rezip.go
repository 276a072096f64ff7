// Package rezip provides compression of extracted bundle directories into
// ZIP archives using the Deflate method or into gzip compressed tar archives.
package rezip

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Defacto2/helper"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

const createUnique = os.O_RDWR | os.O_CREATE | os.O_EXCL

var (
	ErrEmpty = errors.New("archive has no files")
	ErrTest  = errors.New("rezip test failed")
)

// Gzip compresses the named file into the dest gzip file.
// The total number of uncompressed bytes written is returned.
//
// The dest must be a valid file path and should include the .gz extension.
// If the dest file already exists, an error is returned.
func Gzip(name, dest string) (int64, error) {
	gzfile, err := os.OpenFile(dest, createUnique, helper.WriteWriteRead)
	if err != nil {
		return 0, fmt.Errorf("rezip gzip failed to open file: %w", err)
	}
	defer gzfile.Close()

	src, err := os.Open(name)
	if err != nil {
		return 0, fmt.Errorf("rezip gzip failed to open file: %w", err)
	}
	defer src.Close()

	w := gzip.NewWriter(gzfile)
	w.Name = filepath.Base(name)
	n, err := copyBuffer(w, src)
	if err != nil {
		return 0, fmt.Errorf("rezip gzip failed to copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("rezip gzip failed to close writer: %w", err)
	}
	return n, nil
}

// CompressDir compresses the named root directory into the dest zip file
// using the Deflate method. The total number of uncompressed bytes written
// to the zip file is returned.
//
// The dest must be a valid file path and should include the .zip extension.
// If the dest file already exists, an error is returned.
func CompressDir(root, dest string) (int64, error) {
	zipfile, err := os.OpenFile(dest, createUnique, helper.WriteWriteRead)
	if err != nil {
		return 0, fmt.Errorf("rezip compress dir failed to open file: %w", err)
	}
	defer zipfile.Close()

	deflater := zip.NewWriter(zipfile)
	var written int64
	addFile := func(path, rel string) error {
		dst, err := deflater.Create(filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("add file: %w", err)
		}
		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("add file: %w", err)
		}
		defer src.Close()
		n, err := copyBuffer(dst, src)
		if err != nil {
			return fmt.Errorf("add file: %w", err)
		}
		written += n
		return nil
	}
	if err := walk(root, addFile); err != nil {
		return 0, fmt.Errorf("rezip compress dir failed to add file: %w", err)
	}
	if err := deflater.Close(); err != nil {
		return 0, fmt.Errorf("rezip compress dir failed to close writer: %w", err)
	}
	return written, nil
}

// TarGzDir compresses the named root directory into the dest gzip compressed tar file.
// The total number of uncompressed bytes written to the archive is returned.
//
// The dest must be a valid file path and should include the .tar.gz or .tgz extension.
// If the dest file already exists, an error is returned.
func TarGzDir(root, dest string) (int64, error) {
	tgzfile, err := os.OpenFile(dest, createUnique, helper.WriteWriteRead)
	if err != nil {
		return 0, fmt.Errorf("rezip tar dir failed to open file: %w", err)
	}
	defer tgzfile.Close()

	gz := gzip.NewWriter(tgzfile)
	tw := tar.NewWriter(gz)
	var written int64
	addFile := func(path, rel string) error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("add file: %w", err)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("add file: %w", err)
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("add file: %w", err)
		}
		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("add file: %w", err)
		}
		defer src.Close()
		n, err := copyBuffer(tw, src)
		if err != nil {
			return fmt.Errorf("add file: %w", err)
		}
		written += n
		return nil
	}
	if err := walk(root, addFile); err != nil {
		return 0, fmt.Errorf("rezip tar dir failed to add file: %w", err)
	}
	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("rezip tar dir failed to close writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("rezip tar dir failed to close writer: %w", err)
	}
	return written, nil
}

// Test reads every file of the named zip archive to confirm the checksums.
// If the file is a directory, empty or has no files, an error is returned.
func Test(name string) error {
	inf, err := os.Stat(name)
	if err != nil {
		return fmt.Errorf("rezip test failed to stat file: %w", err)
	}
	if inf.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrTest, name)
	}
	if inf.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrTest, name)
	}
	r, err := zip.OpenReader(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTest, err)
	}
	defer r.Close()
	if len(r.File) == 0 {
		return fmt.Errorf("%w: %w", ErrTest, ErrEmpty)
	}
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTest, f.Name, err)
		}
		_, err = copyBuffer(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTest, f.Name, err)
		}
	}
	return nil
}

// walk calls fn for every regular file within root with its path relative to root.
func walk(root string, fn func(path, rel string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(path, rel)
	})
}

func copyBuffer(dst io.Writer, src io.Reader) (int64, error) {
	const size = 64 * 1024
	buf := make([]byte, size)
	return io.CopyBuffer(dst, src, buf)
}
