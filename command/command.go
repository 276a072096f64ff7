// Package command lists the external program names used for bundle extraction.
package command

// A note about 7-Zip: on some Linux distributions the program is named 7zz,
// while p7zip installs it as 7z. Diagnostic bundles are only handed to 7z
// as a fallback when the built-in zip reader rejects the archive.

const (
	Zip7    = "7z"  // Zip7 is the 7-Zip command used to salvage corrupt zip bundles.
	Zip7Alt = "7zz" // Zip7Alt is the 7-Zip command name used by the upstream Linux console build.
)

// Programs returns the 7-Zip program names in the order they should be looked up.
func Programs() []string {
	return []string{Zip7, Zip7Alt}
}
