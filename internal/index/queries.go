package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// BranchCommits returns the entire branch_commits table as a map,
// the in-memory form the refs-diff step (spec.md §4.E step 1) needs.
func (s *Store) BranchCommits(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT branch, commit_id FROM branch_commits")
	if err != nil {
		return nil, fmt.Errorf("index: list branch_commits: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var branch, commitID string
		if err := rows.Scan(&branch, &commitID); err != nil {
			return nil, fmt.Errorf("index: scan branch_commits: %w", err)
		}
		out[branch] = commitID
	}
	return out, rows.Err()
}

func (s *Store) attrValues(ctx context.Context, table, branch, pkgName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT value FROM "+table+" WHERE branch = ? AND pkg_name = ? ORDER BY value",
		branch, pkgName,
	)
	if err != nil {
		return nil, fmt.Errorf("index: query %s: %w", table, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("index: scan %s: %w", table, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Package returns one branch's package row with its attribute
// side-tables populated, without any supplement data.
func (s *Store) Package(ctx context.Context, branch, pkgName string) (*PackageInfo, error) {
	var p PackageInfo
	var isListed int
	err := s.db.QueryRowContext(ctx,
		`SELECT branch, pkg_name, pkg_desc, version, url, commit_id, is_listed, committed_at
		 FROM pkg_info WHERE branch = ? AND pkg_name = ?`,
		branch, pkgName,
	).Scan(&p.Branch, &p.PkgName, &p.PkgDesc, &p.Version, &p.URL, &p.CommitID, &isListed, &p.CommittedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("index: package %s/%s not found", branch, pkgName)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get package %s/%s: %w", branch, pkgName, err)
	}
	p.IsListed = isListed != 0

	for _, col := range attrColumns {
		values, err := s.attrValues(ctx, col.table, branch, pkgName)
		if err != nil {
			return nil, err
		}
		*attrField(&p, col.table) = values
	}
	return &p, nil
}

func attrField(p *PackageInfo, table string) *[]string {
	switch table {
	case "pkg_depends":
		return &p.Depends
	case "pkg_make_depends":
		return &p.MakeDepends
	case "pkg_opt_depends":
		return &p.OptDepends
	case "pkg_check_depends":
		return &p.CheckDepends
	case "pkg_provides":
		return &p.Provides
	case "pkg_conflicts":
		return &p.Conflicts
	case "pkg_replaces":
		return &p.Replaces
	case "pkg_groups":
		return &p.Groups
	}
	panic("index: unknown attribute table " + table)
}

// PackageWithSupplement reads a package row LEFT JOINed with its
// pkg_supplement row, gating out_of_date and last_modified on the two
// tables' version columns matching, per spec.md §6.
func (s *Store) PackageWithSupplement(ctx context.Context, branch, pkgName string) (*PackageWithSupplement, error) {
	info, err := s.Package(ctx, branch, pkgName)
	if err != nil {
		return nil, err
	}
	out := &PackageWithSupplement{PackageInfo: *info}

	var popularity sql.NullFloat64
	var numVotes sql.NullInt64
	var maintainer, submitter sql.NullString
	var coMaintainersJSON, keywordsJSON sql.NullString
	var firstSubmitted sql.NullInt64
	var outOfDate, lastModified sql.NullInt64

	row := s.db.QueryRowContext(ctx, `
		SELECT s.popularity, s.num_votes, s.maintainer, s.submitter,
		       s.co_maintainers, s.keywords, s.first_submitted,
		       CASE WHEN s.version = ?2 THEN s.out_of_date END,
		       CASE WHEN s.version = ?2 THEN s.last_modified END
		FROM pkg_supplement s
		WHERE s.pkg_name = ?1`,
		pkgName, info.Version,
	)
	err = row.Scan(&popularity, &numVotes, &maintainer, &submitter,
		&coMaintainersJSON, &keywordsJSON, &firstSubmitted, &outOfDate, &lastModified)
	if err == sql.ErrNoRows {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get supplement for %s: %w", pkgName, err)
	}

	if popularity.Valid {
		out.Popularity = &popularity.Float64
	}
	if numVotes.Valid {
		n := int(numVotes.Int64)
		out.NumVotes = &n
	}
	if maintainer.Valid {
		out.Maintainer = &maintainer.String
	}
	if submitter.Valid {
		out.Submitter = &submitter.String
	}
	if firstSubmitted.Valid {
		out.FirstSubmitted = &firstSubmitted.Int64
	}
	if outOfDate.Valid {
		out.OutOfDate = &outOfDate.Int64
	}
	if lastModified.Valid {
		out.LastModified = &lastModified.Int64
	}
	if coMaintainersJSON.Valid {
		if err := json.Unmarshal([]byte(coMaintainersJSON.String), &out.CoMaintainers); err != nil {
			return nil, fmt.Errorf("index: decode co_maintainers for %s: %w", pkgName, err)
		}
	}
	if keywordsJSON.Valid {
		if err := json.Unmarshal([]byte(keywordsJSON.String), &out.Keywords); err != nil {
			return nil, fmt.Errorf("index: decode keywords for %s: %w", pkgName, err)
		}
	}
	return out, nil
}

// ReplaceSupplement implements spec.md §4.E step 6: replace
// pkg_supplement wholesale within one transaction, then recompute
// is_listed for every pkg_info row: 1 if the package is present in the
// new supplement, 0 if absent and committed_at predates
// max(last_modified) - 86400, 1 otherwise.
func (s *Store) ReplaceSupplement(ctx context.Context, entries []Supplement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin supplement replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pkg_supplement"); err != nil {
		return fmt.Errorf("index: clear pkg_supplement: %w", err)
	}

	var maxLastModified int64
	for _, e := range entries {
		if e.LastModified > maxLastModified {
			maxLastModified = e.LastModified
		}
		coMaint, err := json.Marshal(e.CoMaintainers)
		if err != nil {
			return fmt.Errorf("index: encode co_maintainers for %s: %w", e.PkgName, err)
		}
		kw, err := json.Marshal(e.Keywords)
		if err != nil {
			return fmt.Errorf("index: encode keywords for %s: %w", e.PkgName, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pkg_supplement
			 (pkg_name, version, popularity, num_votes, out_of_date, maintainer, submitter,
			  co_maintainers, keywords, first_submitted, last_modified)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.PkgName, e.Version, e.Popularity, e.NumVotes, e.OutOfDate, e.Maintainer, e.Submitter,
			string(coMaint), string(kw), e.FirstSubmitted, e.LastModified,
		); err != nil {
			return fmt.Errorf("index: insert supplement %s: %w", e.PkgName, err)
		}
	}

	// Recomputed unconditionally, not just zeroed: a package that
	// reappears in this dump after a prior merge flagged it unlisted
	// must be relisted here, not left at whatever is_listed a previous
	// run last set. Presence in the new supplement is an active
	// override of staleness, not merely the absence of one.
	threshold := maxLastModified - 86400
	if _, err := tx.ExecContext(ctx,
		`UPDATE pkg_info SET is_listed = CASE
		   WHEN pkg_name IN (SELECT pkg_name FROM pkg_supplement) THEN 1
		   WHEN committed_at < ? THEN 0
		   ELSE 1
		 END`,
		threshold,
	); err != nil {
		return fmt.Errorf("index: update is_listed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit supplement replace: %w", err)
	}
	return nil
}
