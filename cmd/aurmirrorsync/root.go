package main

import (
	"github.com/spf13/cobra"

	"github.com/ArcticLampyrid/aur-mirror-meta/internal/config"
)

// exitCode is set by a subcommand's RunE before it returns nil, so
// that main can exit with the specific code spec.md §7 mandates
// (0/1/2) instead of cobra's binary success/failure signal.
var exitCode int

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aurmirrorsync",
		Short:         "Mirror AUR package metadata from a Smart-HTTP v2 Git host into a relational index",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	config.RegisterFlags(root)
	root.AddCommand(newSyncCmd())
	root.AddCommand(newVersionCmd())
	return root
}
