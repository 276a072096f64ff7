// Package normalize prepares the files of an extracted diagnostic bundle for reading.
//
// Bundles store most logs as gzip compressed files and most API responses as
// minified JSON. [Gunzip] decompresses the former in place and [FormatJSON]
// rewrites the latter with sorted keys and indentation.
//
// Both walk a directory tree in a single pass. A file that cannot be processed
// is recorded in the returned [Report], left untouched, and the walk continues.
package normalize

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Failure is a file that could not be normalized.
type Failure struct {
	Path string // Path is the named file.
	Err  error  // Err is the reason the file was skipped.
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report is the outcome of a tree walk.
type Report struct {
	Done   int       // Done is the number of files that were normalized.
	Failed []Failure // Failed are the files that were skipped due to an error.
}

// Err returns the failures joined into a single error or nil when there are none.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Normalizer walks the extracted bundles and logs any failures.
type Normalizer struct {
	Log *zap.SugaredLogger // Log reports progress, a nil value discards the messages.
}

func (n Normalizer) log() *zap.SugaredLogger {
	if n.Log == nil {
		return zap.NewNop().Sugar()
	}
	return n.Log
}

// fail records a skipped file in the report and logs it.
func (n Normalizer) fail(r *Report, msg, path string, err error) {
	r.Failed = append(r.Failed, Failure{Path: path, Err: err})
	n.log().Warnw(msg, "file", path, "error", err)
}

// files returns the regular files in the dir tree that use the ext extension.
// The tree is listed before any file is changed so newly written files are not visited.
func files(dir, ext string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ext) {
			names = append(names, path)
		}
		return nil
	})
	return names, err
}
