package replaytest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/cache"
	"github.com/roach88/provreplay/internal/config"
	"github.com/roach88/provreplay/internal/engine"
	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
	"github.com/roach88/provreplay/internal/replay"
	"github.com/roach88/provreplay/internal/store"
)

// Fixture is one test's store, engine and replay controller.
type Fixture struct {
	t          testing.TB
	Store      *store.Store
	Engine     *engine.Engine
	Controller *replay.Controller
	Config     *config.Config
	action     config.Action
}

type options struct {
	configDir       string
	cacheDir        string
	forbidMigration *bool
	action          string
	ids             graph.IDGenerator
	logger          *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithConfigDir starts configuration discovery at dir instead of the
// working directory.
func WithConfigDir(dir string) Option {
	return func(o *options) { o.configDir = dir }
}

// WithCacheDir overrides -archive-cache-dir and the configured default.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithForbidMigration overrides -archive-cache-forbid-migration.
func WithForbidMigration(forbid bool) Option {
	return func(o *options) { o.forbidMigration = &forbid }
}

// WithConfigAction overrides -testing-config-action.
func WithConfigAction(action config.Action) Option {
	return func(o *options) { o.action = string(action) }
}

// WithIDGenerator sets how node UUIDs are generated. Archives exchanged
// between fixtures need disjoint ID sequences.
func WithIDGenerator(ids graph.IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

// WithLogger sets the logger of the store, engine and controller.
// Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New opens a fresh store in a temp directory and builds a controller on
// it. Existing archives are read in place; migration happens in memory, so
// committed test data is never rewritten.
func New(t testing.TB, opts ...Option) *Fixture {
	t.Helper()

	o := options{
		cacheDir: *cacheDirFlag,
		action:   *configActionFlag,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	forbid := *forbidMigrationFlag
	if o.forbidMigration != nil {
		forbid = *o.forbidMigration
	}

	workDir, err := os.Getwd()
	require.NoError(t, err)
	if o.configDir == "" {
		o.configDir = workDir
	}
	cfg, err := config.Load(o.configDir)
	require.NoError(t, err, "load config")
	action, err := config.ParseAction(o.action)
	require.NoError(t, err)

	if o.cacheDir == "" {
		o.cacheDir = cfg.CacheDir()
	}
	resolver := cache.Resolver{
		BaseDir:        o.cacheDir,
		WorkDir:        workDir,
		AllowMigration: !forbid,
	}

	storeOpts := []store.Option{
		store.WithIdentity(identity.NewLiberal(cfg.Identity())),
		store.WithLogger(o.logger),
	}
	if o.ids != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(o.ids))
	}
	st, err := store.Open(filepath.Join(t.TempDir(), "provenance.db"), storeOpts...)
	require.NoError(t, err, "open store")
	t.Cleanup(func() { st.Close() })

	eng := engine.New(st, engine.WithLogger(o.logger))
	return &Fixture{
		t:      t,
		Store:  st,
		Engine: eng,
		Controller: replay.New(eng,
			replay.WithResolver(resolver),
			replay.WithLogger(o.logger),
		),
		Config: cfg,
		action: action,
	}
}

// RunWithCache runs proc through the archive cache and fails the test on
// error.
func (f *Fixture) RunWithCache(proc engine.Process, request engine.Request, label string) replay.Result {
	f.t.Helper()
	res, err := f.Controller.RunWithCache(context.Background(), proc, request, replay.RunOptions{Label: label})
	require.NoError(f.t, err, "run %s with cache", proc.ProcessType())
	return res
}

// ArchiveCache runs fn with caching enabled for processTypes (all when
// empty) against the archive at path, and fails the test on error.
func (f *Fixture) ArchiveCache(path string, processTypes []string, fn func(ctx context.Context) error) replay.Outcome {
	f.t.Helper()
	out, err := f.Controller.WithArchiveCache(context.Background(), path, replay.ScopeOptions{ProcessTypes: processTypes}, fn)
	require.NoError(f.t, err, "archive cache %s", path)
	return out
}

// Load imports the archive or directory of archives at path and fails the
// test on error.
func (f *Fixture) Load(path string) store.ImportResult {
	f.t.Helper()
	res, err := f.Controller.Load(context.Background(), replay.LoadRequest{Path: path})
	require.NoError(f.t, err, "load %s", path)
	return res
}

// Code returns an unstored code node for the mock_code entry of label.
func (f *Fixture) Code(label, inputPlugin string) *graph.Node {
	f.t.Helper()
	code, err := f.Config.CodeFor(label, inputPlugin, f.action)
	require.NoError(f.t, err)
	return code
}

// ArchivePath returns the absolute path a cache path resolves to.
func (f *Fixture) ArchivePath(path string) string {
	f.t.Helper()
	full, err := f.Controller.Resolver().Path(path)
	require.NoError(f.t, err)
	return full
}
