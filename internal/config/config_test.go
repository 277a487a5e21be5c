package config

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

// runChild mirrors how cmd/aurmirrorsync wires things: flags are
// registered once on a root command, and Load is called from a child
// subcommand's RunE, so Load must see the root's persistent flags
// merged into the child's Flags(), not the child's own (empty)
// PersistentFlags().
func runChild(t *testing.T, args ...string) *Config {
	t.Helper()
	var cfg *Config
	root := &cobra.Command{Use: "root"}
	RegisterFlags(root)
	child := &cobra.Command{
		Use: "child",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = Load(cmd)
			return err
		},
	}
	root.AddCommand(child)
	root.SetArgs(append([]string{"child"}, args...))
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := runChild(t)
	if cfg.DBPath != "aur-mirror.db" {
		t.Errorf("DBPath = %q, want aur-mirror.db", cfg.DBPath)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.Debug {
		t.Errorf("Debug = true, want false by default")
	}
}

func TestLoadReadsFlagsRegisteredOnParent(t *testing.T) {
	cfg := runChild(t, "--upstream-url", "https://example.com/aur.git", "--concurrency", "8")
	if cfg.UpstreamURL != "https://example.com/aur.git" {
		t.Errorf("UpstreamURL = %q", cfg.UpstreamURL)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("AURMIRROR_UPSTREAM_TOKEN", "secret-token")
	cfg := runChild(t)
	if cfg.UpstreamToken != "secret-token" {
		t.Errorf("UpstreamToken = %q, want secret-token", cfg.UpstreamToken)
	}
}
