package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Defacto2/helper"
	"go.uber.org/zap"
)

// Extractor moves bundle archives into a working directory and extracts them there.
//
//	func Extract() {
//	    x := bundle.Extractor{Dir: ".", Log: zap.NewExample().Sugar()}
//	    t, err := bundle.Classify("downloads/bundle-2024-01-01.zip")
//	    if err != nil {
//	        fmt.Fprintf(os.Stderr, "error: %v\n", err)
//	        os.Exit(1)
//	    }
//	    dir, err := x.Extract("downloads/bundle-2024-01-01.zip", t)
//	    if err != nil {
//	        fmt.Fprintf(os.Stderr, "error: %v\n", err)
//	        os.Exit(1)
//	    }
//	    fmt.Println(dir)
//	}
type Extractor struct {
	Dir string             // Dir is the working directory, an empty value uses the current directory.
	Log *zap.SugaredLogger // Log reports progress, a nil value discards the messages.
}

func (x Extractor) log() *zap.SugaredLogger {
	if x.Log == nil {
		return zap.NewNop().Sugar()
	}
	return x.Log
}

func (x Extractor) dir() string {
	if x.Dir == "" {
		return "."
	}
	return x.Dir
}

// Move moves the named file into the working directory and returns its new path.
// Nothing happens when the file is already within the working directory.
// A move across file systems falls back to a copy and removal of the original.
func (x Extractor) Move(name string) (string, error) {
	dest := filepath.Join(x.dir(), Base(name))
	srcAbs, err := filepath.Abs(name)
	if err != nil {
		return "", fmt.Errorf("move %w", err)
	}
	dstAbs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("move %w", err)
	}
	if srcAbs == dstAbs {
		return dest, nil
	}
	if err := os.Rename(name, dest); err != nil {
		if _, errCp := helper.DuplicateOW(name, dest); errCp != nil {
			return "", fmt.Errorf("move %w", errors.Join(err, errCp))
		}
		if errRm := os.Remove(name); errRm != nil {
			return "", fmt.Errorf("move %w", errRm)
		}
	}
	x.log().Infof("Moved %s to the working directory %s", Base(name), x.dir())
	return dest, nil
}

// ExtractBundle moves the named ZIP bundle into the working directory and
// extracts it to a directory named after the archive without its extension.
// A corrupt archive is handed to the 7-Zip program and a lone wrapper directory
// is collapsed, see [Extractor.Unzip].
// If the directory already exists the bundle is assumed to be extracted.
func (x Extractor) ExtractBundle(name string) (string, error) {
	moved, err := x.Move(name)
	if err != nil {
		return "", fmt.Errorf("extract bundle %w", err)
	}
	dir, err := trimExt(moved)
	if err != nil {
		return "", fmt.Errorf("extract bundle %w", err)
	}
	if x.exists(dir) {
		return dir, nil
	}
	x.log().Infof("Extracting bundle to %s", dir)
	if err := x.Unzip(moved, dir); err != nil {
		return "", fmt.Errorf("extract bundle %w", err)
	}
	return dir, nil
}

// Extract extracts the named bundle using the method required by the bundle type
// and returns the directory containing the extracted files.
// A named directory is returned as is. An archive is first moved into the
// working directory, see [Extractor.Move].
//
// If the extraction directory already exists the bundle is assumed to be extracted
// and nothing is done.
//
//   - DC/OS diagnostic bundles are ZIP archives that are collapsed.
//   - Service diagnostic bundles are ZIP archives.
//   - DC/OS oneliner bundles are gzip compressed tar archives.
//   - Konvoy bundles are gzip compressed tar archives that contain more archives.
func (x Extractor) Extract(name string, t Type) (string, error) {
	if st, err := os.Stat(name); err != nil {
		return "", fmt.Errorf("extract %w: %s", ErrPath, name)
	} else if st.IsDir() {
		return name, nil
	}
	if t == Unknown {
		return "", fmt.Errorf("extract %w: %s", ErrUnknownType, name)
	}
	moved, err := x.Move(name)
	if err != nil {
		return "", fmt.Errorf("extract %w", err)
	}
	dir, err := extractDir(moved, t)
	if err != nil {
		return "", fmt.Errorf("extract %w", err)
	}
	if x.exists(dir) {
		return dir, nil
	}
	x.log().Infof("Extracting %s bundle to %s", t, dir)
	switch t {
	case DCOSDiag:
		err = x.Unzip(moved, dir)
	case ServiceDiag:
		err = x.unzip(moved, dir)
	case DCOSOneliner:
		err = Untar(moved, dir)
	case KonvoyDiag:
		if err = Untar(moved, dir); err == nil {
			err = UntarNested(dir)
		}
	}
	if err != nil {
		return "", fmt.Errorf("extract %w", err)
	}
	return dir, nil
}

// exists reports an existing extraction directory.
func (x Extractor) exists(dir string) bool {
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	x.log().Infof("Bundle has already been extracted, using existing directory %s", dir)
	return true
}

// extractDir returns the extraction directory of the named archive for the bundle type.
// Service diagnostic bundles always drop a four character extension.
func extractDir(name string, t Type) (string, error) {
	if t == ServiceDiag {
		return trimExt(name)
	}
	return Dir(name)
}

// trimExt removes a four character extension such as .zip or .tgz from name.
func trimExt(name string) (string, error) {
	const ext = len(zipx)
	if len(Base(name)) <= ext {
		return "", fmt.Errorf("%w: %q", ErrName, name)
	}
	return name[:len(name)-ext], nil
}
