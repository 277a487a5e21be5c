package index

// PackageInfo is one pkg_info row together with its eight attribute
// tables' values.
type PackageInfo struct {
	Branch      string
	PkgName     string
	PkgDesc     string
	Version     string
	URL         string
	CommitID    string
	IsListed    bool
	CommittedAt int64

	Depends      []string
	MakeDepends  []string
	OptDepends   []string
	CheckDepends []string
	Provides     []string
	Conflicts    []string
	Replaces     []string
	Groups       []string
}

// Supplement is one pkg_supplement row, sourced from the AUR RPC JSON
// dump described in spec.md §6.
type Supplement struct {
	PkgName        string
	Version        string
	Popularity     float64
	NumVotes       int
	OutOfDate      *int64
	Maintainer     *string
	Submitter      *string
	CoMaintainers  []string
	Keywords       []string
	FirstSubmitted int64
	LastModified   int64
}

// PackageWithSupplement is the join a consumer (the RPC layer,
// out of this module's scope) would read: pkg_info joined with
// pkg_supplement on pkg_name, with OutOfDate and LastModified
// suppressed unless the supplement's version matches pkg_info's.
type PackageWithSupplement struct {
	PackageInfo

	Popularity     *float64
	NumVotes       *int
	OutOfDate      *int64
	Maintainer     *string
	Submitter      *string
	CoMaintainers  []string
	Keywords       []string
	FirstSubmitted *int64
	LastModified   *int64
}
