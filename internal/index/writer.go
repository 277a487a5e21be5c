package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/srcinfo"
)

// BranchUpdate is one branch's worth of freshly parsed package
// records, ready to replace whatever is currently stored for it.
type BranchUpdate struct {
	Branch   string
	CommitID string
	Packages []srcinfo.PackageRecord
}

// WriteBatch performs one attempt of spec.md §4.E step 5: within a
// single transaction, delete every row belonging to each branch in
// updates or removed, then insert the fresh rows for updates and
// upsert branch_commits. It does not retry; the orchestrator
// (internal/syncer) owns the batch-level retry policy, since only it
// knows how many attempts have already been made.
func (s *Store) WriteBatch(ctx context.Context, updates []BranchUpdate, removed []string, committedAt int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin batch: %w", err)
	}
	defer tx.Rollback()

	touched := make(map[string]struct{}, len(updates)+len(removed))
	for _, u := range updates {
		touched[u.Branch] = struct{}{}
	}
	for _, b := range removed {
		touched[b] = struct{}{}
	}
	for branch := range touched {
		if err := deleteBranch(ctx, tx, branch); err != nil {
			return err
		}
	}

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO branch_commits (branch, commit_id) VALUES (?, ?)",
			u.Branch, u.CommitID,
		); err != nil {
			return fmt.Errorf("index: insert branch_commits %s: %w", u.Branch, err)
		}
		for _, pkg := range u.Packages {
			if err := insertPackage(ctx, tx, pkg, u.CommitID, committedAt); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit batch: %w", err)
	}
	return nil
}

func deleteBranch(ctx context.Context, tx *sql.Tx, branch string) error {
	for _, table := range attrTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE branch = ?", branch); err != nil {
			return fmt.Errorf("index: delete %s for %s: %w", table, branch, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pkg_info WHERE branch = ?", branch); err != nil {
		return fmt.Errorf("index: delete pkg_info for %s: %w", branch, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM branch_commits WHERE branch = ?", branch); err != nil {
		return fmt.Errorf("index: delete branch_commits for %s: %w", branch, err)
	}
	return nil
}

var attrColumns = []struct {
	table string
	get   func(srcinfo.PackageRecord) []string
}{
	{"pkg_depends", func(p srcinfo.PackageRecord) []string { return p.Depends }},
	{"pkg_make_depends", func(p srcinfo.PackageRecord) []string { return p.MakeDepends }},
	{"pkg_opt_depends", func(p srcinfo.PackageRecord) []string { return p.OptDepends }},
	{"pkg_check_depends", func(p srcinfo.PackageRecord) []string { return p.CheckDepends }},
	{"pkg_provides", func(p srcinfo.PackageRecord) []string { return p.Provides }},
	{"pkg_conflicts", func(p srcinfo.PackageRecord) []string { return p.Conflicts }},
	{"pkg_replaces", func(p srcinfo.PackageRecord) []string { return p.Replaces }},
	{"pkg_groups", func(p srcinfo.PackageRecord) []string { return p.Groups }},
}

func insertPackage(ctx context.Context, tx *sql.Tx, pkg srcinfo.PackageRecord, commitID string, committedAt int64) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pkg_info (branch, pkg_name, pkg_desc, version, url, commit_id, is_listed, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		pkg.Branch, pkg.PkgName, pkg.PkgDesc, pkg.Version, pkg.URL, commitID, committedAt,
	); err != nil {
		return fmt.Errorf("index: insert pkg_info %s/%s: %w", pkg.Branch, pkg.PkgName, err)
	}

	for _, col := range attrColumns {
		for _, v := range col.get(pkg) {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO "+col.table+" (branch, pkg_name, value) VALUES (?, ?, ?)",
				pkg.Branch, pkg.PkgName, v,
			); err != nil {
				return fmt.Errorf("index: insert %s %s/%s: %w", col.table, pkg.Branch, pkg.PkgName, err)
			}
		}
	}
	return nil
}
