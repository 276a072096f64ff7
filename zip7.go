package bundle

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Defacto2/bundle/command"
)

// Package file zip7.go contains the 7-Zip fallback extraction.

// LookPath returns the path of the first 7-Zip program found in the PATH environment.
// The [ErrNo7z] error is returned when no program is installed.
func LookPath() (string, error) {
	for _, name := range command.Programs() {
		if prog, err := exec.LookPath(name); err == nil {
			return prog, nil
		}
	}
	return "", ErrNo7z
}

// Zip7 extracts the src archive to the dst directory using the [7z program].
// It is used to salvage ZIP bundles that the built-in reader rejects as corrupt.
//
// The exit status of the program is not treated as a failure, as 7z exits
// with an error even when it was able to extract most of a damaged archive.
// Instead the status and any stderr output is logged as a warning.
//
// [7z program]: https://www.7-zip.org/
func (x Extractor) Zip7(src, dst string) error {
	if dst == "" {
		return ErrDest
	}
	prog, err := LookPath()
	if err != nil {
		return fmt.Errorf("extractor 7z %w", err)
	}
	var b bytes.Buffer
	const (
		extract   = "x"  // x extract files with full paths
		targetDir = "-o" // -o output directory
		yes       = "-y" // -y assume yes to all queries
	)
	args := []string{extract, targetDir + dst, yes, src}
	cmd := exec.CommandContext(context.Background(), prog, args...)
	cmd.Stderr = &b
	if err = cmd.Run(); err != nil {
		x.log().Warnw("7zip did not exit cleanly, the extraction may be incomplete",
			"program", prog, "file", src, "error", err, "stderr", strings.TrimSpace(b.String()))
	}
	return nil
}
