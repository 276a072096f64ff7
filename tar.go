package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/pgzip"
)

// Package file tar.go contains the gzip compressed tar extraction methods.

// Untar extracts all the files of the src gzip compressed tar archive to the dst directory.
// Directories, regular files and links are extracted, links that point outside of dst
// return the [ErrLink] error.
// The dst directory is created when it does not exist.
// Unlike [Unzip], there is no fallback for corrupt archives and a lone
// wrapper directory is kept.
func Untar(src, dst string) error {
	if dst == "" {
		return ErrDest
	}
	r, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("untar open %w", err)
	}
	defer r.Close()
	if err := os.MkdirAll(dst, DirMode); err != nil {
		return fmt.Errorf("untar mkdir %w", err)
	}
	if err := untar(r, dst); err != nil {
		return fmt.Errorf("untar %w: %s", err, src)
	}
	return nil
}

func untar(r io.Reader, dst string) error {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := untarFile(tr, hdr, dst); err != nil {
			return err
		}
	}
}

func untarFile(tr *tar.Reader, hdr *tar.Header, dst string) error {
	name := strings.TrimLeft(filepath.FromSlash(hdr.Name), string(filepath.Separator))
	if name == "" || name == "." {
		return nil
	}
	path, err := securejoin.SecureJoin(dst, name)
	if err != nil {
		return fmt.Errorf("tar entry %q: %w", hdr.Name, err)
	}
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(path, DirMode)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
			return err
		}
		return writeFile(path, tr)
	case tar.TypeSymlink:
		return untarSymlink(hdr, name, path)
	case tar.TypeLink:
		return untarLink(hdr, dst, path)
	}
	// devices and fifos are not part of diagnostic bundles
	return nil
}

// untarSymlink creates the symbolic link member at path, where name is the
// member path relative to the destination directory.
// The link target must resolve to a location within the destination.
func untarSymlink(hdr *tar.Header, name, path string) error {
	target := filepath.FromSlash(hdr.Linkname)
	if filepath.IsAbs(target) || !filepath.IsLocal(filepath.Join(filepath.Dir(name), target)) {
		return fmt.Errorf("tar entry %q: %w: %s", hdr.Name, ErrLink, hdr.Linkname)
	}
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink(target, path)
}

// untarLink creates the hard link member at path.
// Hard link targets are member paths relative to the destination directory.
func untarLink(hdr *tar.Header, dst, path string) error {
	name := strings.TrimLeft(filepath.FromSlash(hdr.Linkname), string(filepath.Separator))
	if !filepath.IsLocal(name) {
		return fmt.Errorf("tar entry %q: %w: %s", hdr.Name, ErrLink, hdr.Linkname)
	}
	target, err := securejoin.SecureJoin(dst, name)
	if err != nil {
		return fmt.Errorf("tar entry %q: %w", hdr.Name, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Link(target, path)
}

// UntarNested walks the dir tree and extracts every gzip compressed tar archive found.
// Each archive is extracted to a sibling directory named without the .tar.gz extension.
// Konvoy bundles store the collection of every node as one of these nested archives.
func UntarNested(dir string) error {
	var archives []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), targzx) {
			return nil
		}
		archives = append(archives, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("untar nested %w", err)
	}
	for _, src := range archives {
		dst := src[:len(src)-len(targzx)]
		if err := Untar(src, dst); err != nil {
			return fmt.Errorf("untar nested %w", err)
		}
	}
	return nil
}

// tarNames returns the member names of the src gzip compressed tar archive.
func tarNames(src string) ([]string, error) {
	r, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, hdr.Name)
	}
}
