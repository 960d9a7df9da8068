package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/provreplay/internal/archive"
)

// InspectResult wraps an archive manifest for text output.
type InspectResult struct {
	Path string `json:"path"`
	archive.Manifest
}

func (r InspectResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.Path)
	fmt.Fprintf(&b, "export version %s, created by %s\n", r.ExportVersion, r.Creator)
	fmt.Fprintf(&b, "%d root(s), %d node(s), %d link(s), %d comment(s)\n",
		len(r.Roots), len(r.Nodes), len(r.Links), len(r.Comments))
	for _, n := range r.Nodes {
		fmt.Fprintf(&b, "  %s  %-10s %s", n.UUID, n.Kind, n.TypeName)
		if n.Label != "" {
			fmt.Fprintf(&b, " %q", n.Label)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Summarize the contents of an archive",
		Long: `Print the export version, roots, nodes and links of an archive.

Older export versions are migrated in memory unless --forbid-migration
is set. The archive file is never modified.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	a, err := archive.Read(path, !opts.ForbidMigration)
	if err != nil {
		return archiveFailure(formatter, path, err)
	}
	formatter.VerboseLog("Decoded %s (export version %s)", path, a.Metadata.ExportVersion)

	return formatter.Success(InspectResult{Path: path, Manifest: archive.NewManifest(a)})
}

// archiveFailure reports an archive read error with the matching code.
func archiveFailure(formatter *OutputFormatter, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("archive not found: %s", path), err)
	case archive.IsIncompatibleVersion(err):
		return formatter.Fail(ExitFailure, ErrCodeImportFailed, "archive needs migration", err)
	default:
		return formatter.Fail(ExitFailure, ErrCodeImportFailed, fmt.Sprintf("cannot read archive %s", path), err)
	}
}
