package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/provreplay/internal/archive"
)

// MigrateResult is the output of the migrate command.
type MigrateResult struct {
	Source        string `json:"source"`
	Destination   string `json:"destination"`
	FromVersion   string `json:"from_version"`
	ExportVersion string `json:"export_version"`
}

func (r MigrateResult) String() string {
	return fmt.Sprintf("%s (v%s) -> %s (v%s)", r.Source, r.FromVersion, r.Destination, r.ExportVersion)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <archive> [destination]",
		Short: "Rewrite an archive in the current export version",
		Long: `Rewrite an archive in the current export version.

Without a destination the archive is migrated in place. The rewrite is
atomic: readers see either the old or the new file.

Examples:
  provreplay migrate testdata/data_dir/add-nodes-ab12.tar.gz
  provreplay migrate old.tar.gz new.tar.gz`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := ""
			if len(args) == 2 {
				dst = args[1]
			}
			return runMigrate(rootOpts, args[0], dst, cmd)
		},
	}
	return cmd
}

func runMigrate(opts *RootOptions, src, dst string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	before, err := archive.Read(src, true)
	if err != nil {
		return archiveFailure(formatter, src, err)
	}
	if dst == "" {
		dst = src
	}
	if err := archive.Migrate(src, dst); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "migration failed", err)
	}
	formatter.VerboseLog("Migrated %d node(s)", len(before.Graph.Nodes))

	return formatter.Success(MigrateResult{
		Source:        src,
		Destination:   dst,
		FromVersion:   before.Metadata.ExportVersion,
		ExportVersion: archive.CurrentVersion,
	})
}
