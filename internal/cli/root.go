package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/provreplay/internal/cache"
	"github.com/roach88/provreplay/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose         bool
	Format          string // "json" | "text"
	CacheDir        string
	ForbidMigration bool
	ConfigPath      string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the provreplay CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "provreplay",
		Short: "Provenance archive cache for computations",
		Long: `Fingerprint computation requests and manage the provenance archives
that replay them.

Archives are looked up in --cache-dir, then export_cache.default_cache_dir
from .provreplay-config.yml, then testdata/data_dir.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.CacheDir, "cache-dir", "", "directory relative archive paths resolve against")
	cmd.PersistentFlags().BoolVar(&opts.ForbidMigration, "forbid-migration", false, "fail on archives written by an older export version")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "configuration file (default: discovered from the working directory)")

	cmd.AddCommand(NewFingerprintCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// logger writes to stderr at debug level in verbose mode and discards
// below warnings otherwise.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadConfig reads --config, or discovers the configuration from the
// working directory.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	if o.ConfigPath != "" {
		cfg, err := config.Read(o.ConfigPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read config", err)
		}
		return cfg, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to get working directory", err)
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// resolver builds the cache resolver from flags and configuration.
// --cache-dir wins over the configured default directory.
func (o *RootOptions) resolver(cfg *config.Config) cache.Resolver {
	base := o.CacheDir
	if base == "" {
		base = cfg.CacheDir()
	}
	return cache.Resolver{
		BaseDir:        base,
		AllowMigration: !o.ForbidMigration,
	}
}
