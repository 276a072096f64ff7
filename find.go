package bundle

// Package file find.go contains the bundle type classification using filename markers.

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Marker is a characteristic filename that identifies a bundle type.
type Marker struct {
	Pattern string // Pattern is a glob, a filename suffix or a filename prefix.
	Type    Type   // Type is the bundle type identified by the pattern.
}

// Markers are an ordered collection of filename markers, where the first match wins.
type Markers []Marker

// Directory markers are globs relative to the root of an extracted bundle.
// The final konvoy marker is a plain path that must exist.
func dirMarkers() Markers {
	return Markers{
		{"*_master/dcos-mesos-master.service", DCOSDiag},
		{"dcos-mesos-master.service.log", DCOSOneliner},
		{"dcos-mesos-slave*.service.log", DCOSOneliner},
		{"dcos_services.json", ServiceDiag},
	}
}

// zipMarkers are filename suffixes of the entries of a ZIP bundle.
func zipMarkers() Markers {
	return Markers{
		{"_master/dcos-mesos-master.service.gz", DCOSDiag},
		{"dcos_services.json", ServiceDiag},
	}
}

// tarMarkers are filename suffixes of the members of a gzip compressed tar bundle.
func tarMarkers() Markers {
	return Markers{
		{"dcos-mesos-master.service.log", DCOSOneliner},
		{"dcos-mesos-slave.service.log", DCOSOneliner},
		{"dcos-mesos-slave-public.service.log", DCOSOneliner},
	}
}

const konvoyDir = "bundles" // konvoyDir is the directory holding the node bundles of a Konvoy collection.

// Suffix returns the bundle type of the first marker that is a suffix of name.
func (m Markers) Suffix(name string) Type {
	for _, marker := range m {
		if strings.HasSuffix(name, marker.Pattern) {
			return marker.Type
		}
	}
	return Unknown
}

// Glob returns the bundle type of the first marker glob that matches a file within root.
func (m Markers) Glob(root string) (Type, error) {
	for _, marker := range m {
		matches, err := filepath.Glob(filepath.Join(root, marker.Pattern))
		if err != nil {
			return Unknown, fmt.Errorf("glob %w", err)
		}
		if len(matches) > 0 {
			return marker.Type, nil
		}
	}
	return Unknown, nil
}

// MatchZip returns the bundle type using the entry names of a ZIP bundle.
// The names are checked in order and each name is checked against every marker.
func MatchZip(names ...string) Type {
	markers := zipMarkers()
	for _, name := range names {
		if t := markers.Suffix(name); t != Unknown {
			return t
		}
	}
	return Unknown
}

// MatchTar returns the bundle type using the member names of a gzip compressed tar bundle.
// The names are checked in order and each name is checked against every marker.
func MatchTar(names ...string) Type {
	markers := tarMarkers()
	for _, name := range names {
		if t := markers.Suffix(name); t != Unknown {
			return t
		}
		if strings.HasPrefix(name, konvoyDir) {
			return KonvoyDiag
		}
	}
	return Unknown
}

// Classify returns the type of the named bundle, which is either a directory or
// a ZIP, TGZ or TAR.GZ archive. The [ErrUnknownType] error is returned when
// none of the characteristic filenames are found.
func Classify(name string) (Type, error) {
	st, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Unknown, fmt.Errorf("classify %w: %s", ErrPath, name)
		}
		return Unknown, fmt.Errorf("classify %w", err)
	}
	var t Type
	switch {
	case st.IsDir():
		t, err = classifyDir(name)
	case formatExt(name) != FormatUnknown:
		t, err = classifyArchive(name)
	}
	if err != nil {
		return Unknown, fmt.Errorf("classify %w", err)
	}
	if t == Unknown {
		return Unknown, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

func classifyDir(dir string) (Type, error) {
	t, err := dirMarkers().Glob(dir)
	if err != nil || t != Unknown {
		return t, err
	}
	if _, err := os.Stat(filepath.Join(dir, konvoyDir)); err == nil {
		return KonvoyDiag, nil
	}
	return Unknown, nil
}

// classifyArchive reads the archive using the format of its signature,
// so a tarball saved with a .zip extension is still read as a tarball.
func classifyArchive(src string) (Type, error) {
	f, err := Sniff(src)
	if err != nil {
		return Unknown, err
	}
	if f == FormatTarGz {
		return classifyTar(src)
	}
	return classifyZip(src)
}

func classifyZip(src string) (Type, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return Unknown, err
	}
	defer r.Close()
	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return MatchZip(names...), nil
}

func classifyTar(src string) (Type, error) {
	names, err := tarNames(src)
	if err != nil {
		return Unknown, err
	}
	return MatchTar(names...), nil
}
