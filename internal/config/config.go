// Package config binds the CLI's flags, environment variables, and an
// optional config file into a single configuration struct via
// spf13/viper, the pattern scionproto/scion uses for its daemons.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "AURMIRROR"

// Config is everything the sync orchestrator needs that spec.md
// leaves to deployment: where the index lives, which upstream to
// mirror, and how to reach the optional supplement source.
type Config struct {
	DBPath            string   `mapstructure:"db-path"`
	UpstreamURL       string   `mapstructure:"upstream-url"`
	UpstreamToken     string   `mapstructure:"upstream-token"`
	Concurrency       int      `mapstructure:"concurrency"`
	SupplementSources []string `mapstructure:"supplement-sources"`
	Debug             bool     `mapstructure:"debug"`
}

// RegisterFlags adds the flags Load reads back via viper to cmd's
// flag set, with defaults matching spec.md §4.E/§5/§6.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("db-path", "aur-mirror.db", "path to the sqlite index file")
	flags.String("upstream-url", "", "base URL of the upstream Smart-HTTP v2 Git host")
	flags.String("upstream-token", "", "bearer token for the upstream Git host")
	flags.Int("concurrency", 4, "bounded fetch concurrency (K in spec.md §5)")
	flags.StringSlice("supplement-sources", nil, "ordered list of supplement sources (file paths or http(s) URLs); \"none\" disables supplementation")
	flags.Bool("debug", false, "enable verbose development-mode logging")
}

// Load builds a Config from cmd's flags, environment variables
// prefixed AURMIRROR_, and an optional config file named
// .aur-mirror-meta (searched in the working directory and $HOME).
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".aur-mirror-meta")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// cmd.Flags() rather than cmd.PersistentFlags(): by the time RunE
	// runs, cobra has merged the invoked command's own flags with every
	// ancestor's persistent flags into Flags(), while PersistentFlags()
	// would return only flags registered directly on cmd itself (empty
	// for a subcommand when RegisterFlags was only ever called on the
	// root command).
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
