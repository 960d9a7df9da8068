package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/provreplay/internal/cache"
	"github.com/roach88/provreplay/internal/fingerprint"
	"github.com/roach88/provreplay/internal/identity"
	"github.com/roach88/provreplay/internal/store"
)

// FingerprintOptions holds flags for the fingerprint command.
type FingerprintOptions struct {
	*RootOptions
	Label       string
	ProcessType string
	Database    string
}

// FingerprintResult is the output of the fingerprint command.
type FingerprintResult struct {
	Fingerprint string `json:"fingerprint"`
	CacheName   string `json:"cache_name"`
	Path        string `json:"path"`
	Exists      bool   `json:"exists"`
}

func (r FingerprintResult) String() string {
	status := "miss"
	if r.Exists {
		status = "hit"
	}
	return fmt.Sprintf("%s\n%s (%s)", r.Fingerprint, r.Path, status)
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FingerprintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fingerprint <request.yaml>",
		Short: "Compute the cache fingerprint of a request",
		Long: `Compute the fingerprint of a request and the archive it maps to.

The request is a YAML mapping of input labels to values. Nested mappings
are namespaces; the "code" input is not part of the fingerprint.

Examples:
  provreplay fingerprint request.yaml --type arithmetic.add
  provreplay fingerprint request.yaml --type arithmetic.add --label add- --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFingerprint(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ProcessType, "type", "", "process type of the computation (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&opts.Label, "label", "", "prefix of the cache name")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to store request nodes in (default: in memory)")

	return cmd
}

func runFingerprint(opts *FingerprintOptions, requestPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	data, err := os.ReadFile(requestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("request not found: %s", requestPath), err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read request", err)
	}
	var request map[string]any
	if err := yaml.Unmarshal(data, &request); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "request is not a YAML mapping", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = ":memory:"
	}
	st, err := store.Open(dbPath,
		store.WithIdentity(identity.NewLiberal(cfg.Identity())),
		store.WithLogger(opts.logger(cmd)),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	fp, touched, err := fingerprint.New(st).Compute(ctx, request)
	if err != nil {
		if fingerprint.IsHashingError(err) {
			return formatter.Fail(ExitFailure, ErrCodeUnhashable, "request cannot be fingerprinted", err)
		}
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "fingerprint failed", err)
	}
	formatter.VerboseLog("Stored %d request node(s)", len(touched))

	name := cache.Name(opts.Label, opts.ProcessType, fp)
	path, err := opts.resolver(cfg).Path(name)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to resolve cache path", err)
	}

	return formatter.Success(FingerprintResult{
		Fingerprint: fp,
		CacheName:   name,
		Path:        path,
		Exists:      cache.Exists(path),
	})
}
