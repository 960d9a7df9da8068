package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/provreplay/internal/archive"
	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database     string
	Output       string
	ProcessTypes []string
	Overwrite    bool
}

// ExportResult is the output of the export command.
type ExportResult struct {
	Path string `json:"path"`
	archive.Metadata
}

func (r ExportResult) String() string {
	return fmt.Sprintf("Exported %d root(s) to %s: %d node(s), %d link(s), %d file(s)",
		len(r.Roots), r.Path, r.Counts.Nodes, r.Counts.Links, r.Counts.Files)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export calculation records and their provenance",
		Long: `Export every calculation record in a database, or those of the given
process types, together with their provenance closure.

Process records are rehashed first. A relative --out resolves against
the cache directory.

Examples:
  provreplay export --db ./prov.db --out all.tar.gz
  provreplay export --db ./prov.db --out add.tar.gz --process-type arithmetic.add`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "archive to write (required)")
	_ = cmd.MarkFlagRequired("out")
	cmd.Flags().StringSliceVar(&opts.ProcessTypes, "process-type", nil, "only export records of these process types")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace an existing archive")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	sess, err := openSession(opts.RootOptions, opts.Database, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	roots, err := sess.store.QueryNodes(ctx, store.Filter{
		Kinds:        []graph.Kind{graph.KindCalcJob},
		ProcessTypes: opts.ProcessTypes,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query records", err)
	}
	if len(roots) == 0 {
		return formatter.Fail(ExitFailure, ErrCodeNotFound, "no calculation records to export", nil)
	}
	formatter.VerboseLog("Exporting %d record(s)", len(roots))

	meta, err := sess.controller.Export(ctx, roots, opts.Output, opts.Overwrite)
	if err != nil {
		if errors.Is(err, archive.ErrArchiveExists) {
			return formatter.Fail(ExitFailure, ErrCodeArchiveExists, fmt.Sprintf("archive exists: %s (use --overwrite)", opts.Output), err)
		}
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "export failed", err)
	}

	path, err := sess.controller.Resolver().Path(opts.Output)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve output path", err)
	}
	return formatter.Success(ExportResult{Path: path, Metadata: meta})
}
