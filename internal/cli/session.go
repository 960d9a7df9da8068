package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/provreplay/internal/engine"
	"github.com/roach88/provreplay/internal/identity"
	"github.com/roach88/provreplay/internal/replay"
	"github.com/roach88/provreplay/internal/store"
)

// session is an opened database with a replay controller on top.
type session struct {
	store      *store.Store
	controller *replay.Controller
	logger     *slog.Logger
}

// openSession opens the database at dbPath with the configured identity
// and cache resolver.
func openSession(opts *RootOptions, dbPath string, cmd *cobra.Command) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := opts.logger(cmd)

	st, err := store.Open(dbPath,
		store.WithIdentity(identity.NewLiberal(cfg.Identity())),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng := engine.New(st, engine.WithLogger(logger))
	ctrl := replay.New(eng,
		replay.WithResolver(opts.resolver(cfg)),
		replay.WithLogger(logger),
	)
	return &session{store: st, controller: ctrl, logger: logger}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// ImportSummary is the output of the import command.
type ImportSummary struct {
	Archives     int `json:"archives"`
	NodesCreated int `json:"nodes_created"`
	NodesMerged  int `json:"nodes_merged"`
	Links        int `json:"links"`
	Comments     int `json:"comments"`
}

func (s ImportSummary) String() string {
	return fmt.Sprintf("Imported %d archive path(s): %d node(s) created, %d merged, %d link(s), %d comment(s)",
		s.Archives, s.NodesCreated, s.NodesMerged, s.Links, s.Comments)
}

func (s *ImportSummary) add(res store.ImportResult) {
	s.Archives++
	s.NodesCreated += res.NodesCreated
	s.NodesMerged += res.NodesMerged
	s.Links += res.Links
	s.Comments += res.Comments
}
