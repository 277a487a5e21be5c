// Command aurmirrorsync drives one-shot synchronization of AUR
// package metadata from the upstream Smart-HTTP v2 Git host into a
// local relational index.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aurmirrorsync: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
