package index

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/srcinfo"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenMigratesFreshStoreToCurrentSchema(t *testing.T) {
	s := openTestStore(t)
	v, err := s.userVersion()
	if err != nil {
		t.Fatalf("userVersion: %v", err)
	}
	if v != SchemaVersion {
		t.Fatalf("user_version = %d, want %d", v, SchemaVersion)
	}
	ok, err := s.hasTable("pkg_supplement")
	if err != nil {
		t.Fatalf("hasTable: %v", err)
	}
	if !ok {
		t.Fatalf("pkg_supplement table missing after migration")
	}
}

func TestMigratePreVersionedSchemaIsDetected(t *testing.T) {
	s := openTestStore(t)
	// Simulate a pre-versioning store: stamp user_version back to 0
	// while pkg_info still exists, as a store written before schema
	// versioning was introduced would look.
	if _, err := s.db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("reset user_version: %v", err)
	}
	if err := s.migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v, err := s.userVersion()
	if err != nil {
		t.Fatalf("userVersion: %v", err)
	}
	if v != SchemaVersion {
		t.Fatalf("user_version after re-migration = %d, want %d", v, SchemaVersion)
	}
}

func samplePackage(branch, name string) srcinfo.PackageRecord {
	return srcinfo.PackageRecord{
		Branch:  branch,
		PkgName: name,
		PkgDesc: "a test package",
		Version: "1.0-1",
		URL:     "https://example.com/" + name,
		Depends: []string{"glibc"},
		Groups:  []string{"base"},
	}
}

func TestWriteBatchInsertsAndReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	update := BranchUpdate{
		Branch:   "foo",
		CommitID: "c1",
		Packages: []srcinfo.PackageRecord{samplePackage("foo", "foo")},
	}
	if err := s.WriteBatch(ctx, []BranchUpdate{update}, nil, 1000); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	pkg, err := s.Package(ctx, "foo", "foo")
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if pkg.CommitID != "c1" || pkg.Version != "1.0-1" {
		t.Fatalf("pkg = %+v", pkg)
	}
	if !reflect.DeepEqual(pkg.Depends, []string{"glibc"}) {
		t.Fatalf("Depends = %v", pkg.Depends)
	}
	if !pkg.IsListed {
		t.Fatalf("IsListed = false, want true for a freshly written package")
	}

	commits, err := s.BranchCommits(ctx)
	if err != nil {
		t.Fatalf("BranchCommits: %v", err)
	}
	if commits["foo"] != "c1" {
		t.Fatalf("BranchCommits[foo] = %q, want c1", commits["foo"])
	}

	// A second batch for the same branch replaces the old row rather
	// than accumulating duplicate attribute rows.
	updated := samplePackage("foo", "foo")
	updated.Version = "2.0-1"
	updated.Depends = []string{"glibc", "zlib"}
	update2 := BranchUpdate{Branch: "foo", CommitID: "c2", Packages: []srcinfo.PackageRecord{updated}}
	if err := s.WriteBatch(ctx, []BranchUpdate{update2}, nil, 2000); err != nil {
		t.Fatalf("WriteBatch #2: %v", err)
	}
	pkg, err = s.Package(ctx, "foo", "foo")
	if err != nil {
		t.Fatalf("Package after update: %v", err)
	}
	if pkg.Version != "2.0-1" || pkg.CommitID != "c2" {
		t.Fatalf("pkg after update = %+v", pkg)
	}
	sort.Strings(pkg.Depends)
	if !reflect.DeepEqual(pkg.Depends, []string{"glibc", "zlib"}) {
		t.Fatalf("Depends after update = %v", pkg.Depends)
	}
}

func TestWriteBatchRemovesBranch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	update := BranchUpdate{Branch: "gone", CommitID: "c1", Packages: []srcinfo.PackageRecord{samplePackage("gone", "gone")}}
	if err := s.WriteBatch(ctx, []BranchUpdate{update}, nil, 1000); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := s.WriteBatch(ctx, nil, []string{"gone"}, 2000); err != nil {
		t.Fatalf("WriteBatch remove: %v", err)
	}
	if _, err := s.Package(ctx, "gone", "gone"); err == nil {
		t.Fatalf("Package: want not-found error after removal")
	}
	commits, err := s.BranchCommits(ctx)
	if err != nil {
		t.Fatalf("BranchCommits: %v", err)
	}
	if _, ok := commits["gone"]; ok {
		t.Fatalf("branch_commits still has %q after removal", "gone")
	}
}

func TestReplaceSupplementFlipsIsListedForStalePackages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fresh := samplePackage("master", "fresh")
	stale := samplePackage("master", "stale")
	if err := s.WriteBatch(ctx, []BranchUpdate{
		{Branch: "master", CommitID: "c1", Packages: []srcinfo.PackageRecord{fresh, stale}},
	}, nil, 1000); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	// "fresh" is present in the new supplement dump; "stale" is not
	// and was committed more than a day before the newest
	// last_modified, so it should be flipped unlisted.
	entries := []Supplement{
		{PkgName: "fresh", Version: "1.0-1", LastModified: 1000 + 2*86400, FirstSubmitted: 1},
	}
	if err := s.ReplaceSupplement(ctx, entries); err != nil {
		t.Fatalf("ReplaceSupplement: %v", err)
	}

	freshRow, err := s.Package(ctx, "master", "fresh")
	if err != nil {
		t.Fatalf("Package fresh: %v", err)
	}
	if !freshRow.IsListed {
		t.Fatalf("fresh.IsListed = false, want true")
	}
	staleRow, err := s.Package(ctx, "master", "stale")
	if err != nil {
		t.Fatalf("Package stale: %v", err)
	}
	if staleRow.IsListed {
		t.Fatalf("stale.IsListed = true, want false after supplement replace")
	}
}

func TestReplaceSupplementRelistsPackageThatReappears(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pkg := samplePackage("master", "comeback")
	if err := s.WriteBatch(ctx, []BranchUpdate{
		{Branch: "master", CommitID: "c1", Packages: []srcinfo.PackageRecord{pkg}},
	}, nil, 1000); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	// First merge: "comeback" is absent from the dump and stale enough
	// to be flipped unlisted.
	if err := s.ReplaceSupplement(ctx, []Supplement{
		{PkgName: "other", Version: "1.0-1", LastModified: 1000 + 2*86400, FirstSubmitted: 1},
	}); err != nil {
		t.Fatalf("ReplaceSupplement (first): %v", err)
	}
	row, err := s.Package(ctx, "master", "comeback")
	if err != nil {
		t.Fatalf("Package comeback: %v", err)
	}
	if row.IsListed {
		t.Fatalf("comeback.IsListed = true, want false after first replace")
	}

	// Second merge: "comeback" reappears in the dump. It must be
	// relisted even though committed_at still predates the staleness
	// threshold and a prior run already zeroed is_listed.
	if err := s.ReplaceSupplement(ctx, []Supplement{
		{PkgName: "comeback", Version: "1.0-1", LastModified: 1000 + 2*86400, FirstSubmitted: 1},
	}); err != nil {
		t.Fatalf("ReplaceSupplement (second): %v", err)
	}
	row, err = s.Package(ctx, "master", "comeback")
	if err != nil {
		t.Fatalf("Package comeback: %v", err)
	}
	if !row.IsListed {
		t.Fatalf("comeback.IsListed = false, want true after reappearing in supplement")
	}
}

func TestPackageWithSupplementVersionGating(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pkg := samplePackage("master", "foo")
	pkg.Version = "0.9-1"
	if err := s.WriteBatch(ctx, []BranchUpdate{
		{Branch: "master", CommitID: "c1", Packages: []srcinfo.PackageRecord{pkg}},
	}, nil, 1000); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	outOfDate := int64(123)
	maintainer := "alice"
	entries := []Supplement{
		{
			PkgName:        "foo",
			Version:        "1.0-1", // ahead of the synced metadata's 0.9-1
			Popularity:     4.2,
			NumVotes:       7,
			OutOfDate:      &outOfDate,
			Maintainer:     &maintainer,
			CoMaintainers:  []string{"bob"},
			Keywords:       []string{"keyword"},
			FirstSubmitted: 10,
			LastModified:   2000,
		},
	}
	if err := s.ReplaceSupplement(ctx, entries); err != nil {
		t.Fatalf("ReplaceSupplement: %v", err)
	}

	got, err := s.PackageWithSupplement(ctx, "master", "foo")
	if err != nil {
		t.Fatalf("PackageWithSupplement: %v", err)
	}
	if got.NumVotes == nil || *got.NumVotes != 7 {
		t.Fatalf("NumVotes = %v, want 7", got.NumVotes)
	}
	if got.Maintainer == nil || *got.Maintainer != "alice" {
		t.Fatalf("Maintainer = %v, want alice", got.Maintainer)
	}
	// version mismatch (pkg_info at 0.9-1, supplement at 1.0-1)
	// suppresses the version-sensitive fields.
	if got.OutOfDate != nil {
		t.Fatalf("OutOfDate = %v, want nil on version mismatch", got.OutOfDate)
	}
	if got.LastModified != nil {
		t.Fatalf("LastModified = %v, want nil on version mismatch", got.LastModified)
	}
}
