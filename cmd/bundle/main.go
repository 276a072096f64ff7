// Bundle identifies, extracts and tidies the diagnostic bundles collected from
// DC/OS and Konvoy clusters.
//
// Usage:
//
//	bundle [flags] <path>
//	bundle type <path>
//	bundle extract <path>
//	bundle normalize <dir>
//	bundle repack <dir> <dest>
//
// Every flag can also be set with a BUNDLE_ prefixed environment variable,
// so --no-json is also BUNDLE_NO_JSON=true.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRoot(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
