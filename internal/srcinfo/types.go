// Package srcinfo parses Arch Linux .SRCINFO files into package
// records ready to be written to the relational index.
package srcinfo

// A PackageRecord is one pkgname section of a .SRCINFO file, with all
// multi-value attributes already flattened across architectures in
// stable (arch-agnostic first, then lexicographic arch) order.
type PackageRecord struct {
	Branch  string
	PkgName string
	PkgDesc string
	Version string
	URL     string

	Depends      []string
	MakeDepends  []string
	OptDepends   []string
	CheckDepends []string
	Provides     []string
	Conflicts    []string
	Replaces     []string
	Groups       []string
}

// A Result is the outcome of parsing one .SRCINFO file.
type Result struct {
	Packages []PackageRecord
	// Warnings counts tolerated malformed lines (unopened
	// continuations, empty values, unrecognized keys). It does not
	// cause Parse to fail.
	Warnings int
}
