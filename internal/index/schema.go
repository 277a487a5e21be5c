package index

// SchemaVersion is the current schema's user_version stamp. Any
// observed version lower than this is migrated forward by dropping
// and recreating every table — the only migration path this index
// supports.
const SchemaVersion = 2

const schema = `
CREATE TABLE branch_commits (
    branch    TEXT PRIMARY KEY,
    commit_id TEXT NOT NULL
);

CREATE TABLE pkg_info (
    branch       TEXT NOT NULL,
    pkg_name     TEXT NOT NULL,
    pkg_desc     TEXT NOT NULL,
    version      TEXT NOT NULL,
    url          TEXT NOT NULL,
    commit_id    TEXT NOT NULL,
    is_listed    INTEGER NOT NULL DEFAULT 1,
    committed_at INTEGER NOT NULL,
    PRIMARY KEY (branch, pkg_name)
);
CREATE INDEX idx_pkg_info_pkg_name ON pkg_info(pkg_name);
CREATE INDEX idx_pkg_info_branch ON pkg_info(branch);

CREATE TABLE pkg_depends (
    branch TEXT NOT NULL, pkg_name TEXT NOT NULL, value TEXT NOT NULL,
    PRIMARY KEY (branch, pkg_name, value)
);
CREATE INDEX idx_pkg_depends_branch ON pkg_depends(branch);
CREATE INDEX idx_pkg_depends_value ON pkg_depends(value);

CREATE TABLE pkg_make_depends (
    branch TEXT NOT NULL, pkg_name TEXT NOT NULL, value TEXT NOT NULL,
    PRIMARY KEY (branch, pkg_name, value)
);
CREATE INDEX idx_pkg_make_depends_branch ON pkg_make_depends(branch);
CREATE INDEX idx_pkg_make_depends_value ON pkg_make_depends(value);

CREATE TABLE pkg_opt_depends (
    branch TEXT NOT NULL, pkg_name TEXT NOT NULL, value TEXT NOT NULL,
    PRIMARY KEY (branch, pkg_name, value)
);
CREATE INDEX idx_pkg_opt_depends_branch ON pkg_opt_depends(branch);
CREATE INDEX idx_pkg_opt_depends_value ON pkg_opt_depends(value);

CREATE TABLE pkg_check_depends (
    branch TEXT NOT NULL, pkg_name TEXT NOT NULL, value TEXT NOT NULL,
    PRIMARY KEY (branch, pkg_name, value)
);
CREATE INDEX idx_pkg_check_depends_branch ON pkg_check_depends(branch);
CREATE INDEX idx_pkg_check_depends_value ON pkg_check_depends(value);

CREATE TABLE pkg_provides (
    branch TEXT NOT NULL, pkg_name TEXT NOT NULL, value TEXT NOT NULL,
    PRIMARY KEY (branch, pkg_name, value)
);
CREATE INDEX idx_pkg_provides_branch ON pkg_provides(branch);

CREATE TABLE pkg_conflicts (
    branch TEXT NOT NULL, pkg_name TEXT NOT NULL, value TEXT NOT NULL,
    PRIMARY KEY (branch, pkg_name, value)
);
CREATE INDEX idx_pkg_conflicts_branch ON pkg_conflicts(branch);

CREATE TABLE pkg_replaces (
    branch TEXT NOT NULL, pkg_name TEXT NOT NULL, value TEXT NOT NULL,
    PRIMARY KEY (branch, pkg_name, value)
);
CREATE INDEX idx_pkg_replaces_branch ON pkg_replaces(branch);

CREATE TABLE pkg_groups (
    branch TEXT NOT NULL, pkg_name TEXT NOT NULL, value TEXT NOT NULL,
    PRIMARY KEY (branch, pkg_name, value)
);
CREATE INDEX idx_pkg_groups_branch ON pkg_groups(branch);

CREATE TABLE pkg_supplement (
    pkg_name        TEXT PRIMARY KEY,
    version         TEXT NOT NULL,
    popularity      REAL NOT NULL,
    num_votes       INTEGER NOT NULL,
    out_of_date     INTEGER,
    maintainer      TEXT,
    submitter       TEXT,
    co_maintainers  TEXT NOT NULL,
    keywords        TEXT NOT NULL,
    first_submitted INTEGER NOT NULL,
    last_modified   INTEGER NOT NULL
);
`

// attrTables lists the eight multi-value attribute tables in the
// fixed order spec.md §3 enumerates them, used by the batch writer's
// per-branch delete pass.
var attrTables = []string{
	"pkg_depends",
	"pkg_make_depends",
	"pkg_opt_depends",
	"pkg_check_depends",
	"pkg_provides",
	"pkg_conflicts",
	"pkg_replaces",
	"pkg_groups",
}

// dropAllTables lists every table this schema owns, in
// child-before-parent order. migrate drops them all inside one
// transaction, so a statement that fails partway through rolls the
// whole teardown back.
var dropAllTables = []string{
	"pkg_supplement",
	"pkg_groups",
	"pkg_replaces",
	"pkg_conflicts",
	"pkg_provides",
	"pkg_check_depends",
	"pkg_opt_depends",
	"pkg_make_depends",
	"pkg_depends",
	"pkg_info",
	"branch_commits",
}
