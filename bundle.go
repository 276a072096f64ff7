// Package bundle identifies and extracts diagnostic bundles collected from clustered systems.
//
// A bundle is either an already extracted directory or an archive file using
// one of the supported formats, ZIP (.zip) or gzip compressed tar (.tgz, .tar.gz).
// The bundle type is inferred from the characteristic file names found inside it.
//
// The package relies on a single terminal program, and only as a fallback.
//
//  1. [7z] - 7-Zip, used to salvage ZIP bundles the built-in reader rejects as corrupt
//
// [7z]: https://www.7-zip.org/
package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Defacto2/magicnumber"
)

const (
	tgzx   = ".tgz"    // gzip compressed tar, short form
	targzx = ".tar.gz" // gzip compressed tar
	zipx   = ".zip"    // Phil Katz's ZIP

	// DirMode is the file mode used for the directories created during extraction.
	DirMode fs.FileMode = 0o755
)

// Type is the classification tag that describes which clustered system produced a bundle.
type Type string

const (
	DCOSDiag     Type = "dcos_diag"     // DCOSDiag is a DC/OS cluster diagnostic bundle.
	DCOSOneliner Type = "dcos_oneliner" // DCOSOneliner is a single node DC/OS log bundle.
	ServiceDiag  Type = "service_diag"  // ServiceDiag is a DC/OS service diagnostic bundle.
	KonvoyDiag   Type = "konvoy_diag"   // KonvoyDiag is a Konvoy cluster diagnostic bundle.
	Unknown      Type = ""              // Unknown is returned when no marker is found.
)

func (t Type) String() string {
	if t == Unknown {
		return "unknown"
	}
	return string(t)
}

// Types returns the recognized bundle types in classification priority order.
func Types() []Type {
	return []Type{DCOSDiag, DCOSOneliner, ServiceDiag, KonvoyDiag}
}

var (
	ErrDest        = errors.New("destination is empty")
	ErrLink        = errors.New("link target is outside of the destination")
	ErrName        = errors.New("unable to parse bundle name")
	ErrNo7z        = errors.New("7zip command (7z) not found, please install 7zip")
	ErrNoNodes     = errors.New("failed to find any nodes in the bundle directory")
	ErrPath        = errors.New("path does not exist")
	ErrUnknownType = errors.New("unable to determine bundle type")
)

// Dir returns the extraction directory for the named bundle.
// A directory is returned as is, otherwise the archive extension is removed.
func Dir(name string) (string, error) {
	if st, err := os.Stat(name); err == nil && st.IsDir() {
		return name, nil
	}
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, tgzx), strings.HasSuffix(lower, zipx):
		return name[:len(name)-len(zipx)], nil
	case strings.HasSuffix(lower, targzx):
		return name[:len(name)-len(targzx)], nil
	}
	return "", fmt.Errorf("%w: %q", ErrName, name)
}

// Extracted returns true when the extraction directory of the named bundle already exists.
// The content of the directory is not checked.
func Extracted(name string) (bool, error) {
	dir, err := Dir(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("extracted stat %w", err)
	}
	return true, nil
}

// Format is the archive container of a bundle file.
type Format int

const (
	FormatUnknown Format = iota // FormatUnknown is not a supported archive.
	FormatZip                   // FormatZip is a PKWARE ZIP archive.
	FormatTarGz                 // FormatTarGz is a gzip compressed tar archive.
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTarGz:
		return "tar.gz"
	}
	return "unknown"
}

// Sniff returns the archive format of the named file using its magic number signature.
// When the signature is not recognized, such as with a damaged ZIP file,
// the filename extension is used instead.
func Sniff(name string) (Format, error) {
	r, err := os.Open(name)
	if err != nil {
		return FormatUnknown, fmt.Errorf("sniff open %w", err)
	}
	defer r.Close()
	sign, err := magicnumber.Archive(r)
	if err != nil {
		return formatExt(name), nil //nolint:nilerr
	}
	switch sign { //nolint:exhaustive
	case
		magicnumber.PKWAREZip,
		magicnumber.PKWAREZip64,
		magicnumber.PKWAREZipImplode,
		magicnumber.PKWAREZipReduce,
		magicnumber.PKWAREZipShrink:
		return FormatZip, nil
	case magicnumber.GzipCompressArchive:
		return FormatTarGz, nil
	}
	return formatExt(name), nil
}

func formatExt(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, zipx):
		return FormatZip
	case strings.HasSuffix(lower, tgzx), strings.HasSuffix(lower, targzx):
		return FormatTarGz
	}
	return FormatUnknown
}

// Base returns the bundle name without any directory, so that
// bundle/dir/file.zip becomes file.zip.
func Base(name string) string {
	return filepath.Base(filepath.Clean(name))
}
