package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/provreplay/internal/replay"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <archive|dir>...",
		Short: "Import archives into a database",
		Long: `Import archives, or directories of archives, into a database and
rehash every process record.

Relative paths resolve against the cache directory. A directory is
imported all-or-nothing.

Exit codes:
  0 - Everything imported
  1 - An archive was rejected
  2 - Command error (path not found, database error, etc.)

Examples:
  provreplay import --db ./prov.db add-nodes-ab12.tar.gz
  provreplay import --db ./prov.db --cache-dir ./caches .`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	sess, err := openSession(opts.RootOptions, opts.Database, cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	var summary ImportSummary
	for _, path := range paths {
		res, err := sess.controller.Load(ctx, replay.LoadRequest{Path: path})
		if err != nil {
			return loadFailure(formatter, path, err)
		}
		formatter.VerboseLog("Imported %s: %d created, %d merged", path, res.NodesCreated, res.NodesMerged)
		summary.add(res)
	}

	return formatter.Success(summary)
}

// loadFailure reports a replay load error with the matching code.
func loadFailure(formatter *OutputFormatter, path string, err error) error {
	switch {
	case replay.IsNotFound(err):
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("cache not found: %s", path), err)
	case replay.IsCorruptCache(err):
		return formatter.Fail(ExitFailure, ErrCodeCorruptCache, fmt.Sprintf("corrupt cache: %s", path), err)
	case replay.IsImportFailed(err):
		return formatter.Fail(ExitFailure, ErrCodeImportFailed, fmt.Sprintf("import failed: %s", path), err)
	default:
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("cannot load %s", path), err)
	}
}
