package replay

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/provreplay/internal/archive"
	"github.com/roach88/provreplay/internal/cache"
	"github.com/roach88/provreplay/internal/engine"
	"github.com/roach88/provreplay/internal/fingerprint"
	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
)

// Extras recorded on the root record of an automatic run.
const (
	ExtraFingerprint = "replay_fingerprint"
	ExtraCacheName   = "replay_cache_name"
)

// Controller drives replay runs against one engine and its store.
type Controller struct {
	engine   *engine.Engine
	store    *store.Store
	calc     *fingerprint.Calculator
	resolver cache.Resolver
	logger   *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithResolver sets how cache paths are resolved. The default resolves
// relative paths under testdata/data_dir of the working directory and
// allows migration.
func WithResolver(r cache.Resolver) Option {
	return func(c *Controller) {
		c.resolver = r
	}
}

// WithLogger sets the controller logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a Controller running processes on e.
func New(e *engine.Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:   e,
		store:    e.Store(),
		calc:     fingerprint.New(e.Store()),
		resolver: cache.Resolver{AllowMigration: true},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolver returns how the controller resolves cache paths.
func (c *Controller) Resolver() cache.Resolver {
	return c.resolver
}

// RunOptions controls RunWithCache.
type RunOptions struct {
	// Label prefixes the cache file name.
	Label string

	// Overwrite exports a new archive even on a hit.
	Overwrite bool
}

// Result is the output of RunWithCache.
type Result struct {
	Outputs engine.Outputs
	Node    *graph.Node
	Outcome Outcome
}

// RunWithCache runs proc on request with caching enabled globally. If the
// archive for the request fingerprint exists it is imported first. The
// closure of the resulting record is exported on a miss or when
// overwriting.
func (c *Controller) RunWithCache(ctx context.Context, proc engine.Process, request engine.Request, opts RunOptions) (Result, error) {
	res := Result{Outcome: newOutcome()}
	out := &res.Outcome

	if err := out.advance(StateLookup); err != nil {
		return res, err
	}
	fp, touched, err := c.calc.Compute(ctx, request)
	if err != nil {
		return res, fmt.Errorf("fingerprint %s request: %w", proc.ProcessType(), err)
	}
	out.Fingerprint = fp
	name := cache.Name(opts.Label, proc.ProcessType(), fp)
	path, err := c.resolver.Path(name)
	if err != nil {
		return res, err
	}
	out.Path = path
	c.logger.Debug("request fingerprinted",
		"process_type", proc.ProcessType(),
		"fingerprint", fp,
		"stored", len(touched),
		"path", path,
	)

	exists, err := c.lookup(ctx, out, path)
	if err != nil {
		return res, err
	}

	if err := out.advance(StateRunning); err != nil {
		return res, err
	}
	res.Outputs, res.Node, err = c.engine.Run(engine.WithCaching(ctx, engine.GlobalCaching()), proc, request)
	if err != nil {
		return res, err
	}
	if err := c.store.SetExtra(ctx, res.Node, ExtraFingerprint, ir.IRString(fp)); err != nil {
		return res, err
	}
	if err := c.store.SetExtra(ctx, res.Node, ExtraCacheName, ir.IRString(name)); err != nil {
		return res, err
	}

	if err := c.finish(ctx, out, exists, opts.Overwrite, []*graph.Node{res.Node}); err != nil {
		return res, err
	}
	return res, nil
}

// ScopeOptions controls WithArchiveCache.
type ScopeOptions struct {
	// ProcessTypes limits caching and export to these process types.
	// Empty means every calculation.
	ProcessTypes []string

	// Overwrite exports a new archive even on a hit.
	Overwrite bool
}

// WithArchiveCache imports the archive at path if it exists, runs fn with
// caching enabled for opts.ProcessTypes (or globally) and then, on a miss
// or when overwriting, exports every matching calculation record in the
// store. The caching scope only lives in the context passed to fn. If fn
// fails nothing is exported.
func (c *Controller) WithArchiveCache(ctx context.Context, path string, opts ScopeOptions, fn func(ctx context.Context) error) (Outcome, error) {
	out := newOutcome()
	if err := out.advance(StateLookup); err != nil {
		return out, err
	}
	full, err := c.resolver.Path(path)
	if err != nil {
		return out, err
	}
	out.Path = full

	exists, err := c.lookup(ctx, &out, full)
	if err != nil {
		return out, err
	}

	if err := out.advance(StateRunning); err != nil {
		return out, err
	}
	if err := fn(engine.WithCaching(ctx, engine.CachingFor(opts.ProcessTypes...))); err != nil {
		return out, err
	}

	var roots []*graph.Node
	if !exists || opts.Overwrite {
		roots, err = c.store.QueryNodes(ctx, store.Filter{
			Kinds:        []graph.Kind{graph.KindCalcJob},
			ProcessTypes: opts.ProcessTypes,
		})
		if err != nil {
			return out, err
		}
	}
	if err := c.finish(ctx, &out, exists, opts.Overwrite, roots); err != nil {
		return out, err
	}
	return out, nil
}

// lookup moves out to MISS if nothing exists at path. Anything else is a
// HIT and goes through load, which imports a file or a directory of
// archives and reports other entries as a corrupt cache.
func (c *Controller) lookup(ctx context.Context, out *Outcome, path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, out.advance(StateMiss)
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", path, err)
	}
	if err := out.advance(StateHit); err != nil {
		return false, err
	}
	imported, err := c.load(ctx, path)
	if err != nil {
		return true, err
	}
	out.Imported = imported
	c.logger.Info("archive imported", "path", path, "nodes", imported.NodesCreated)
	return true, nil
}

// finish exports roots on a miss or when overwriting and moves out to DONE.
func (c *Controller) finish(ctx context.Context, out *Outcome, exists, overwrite bool, roots []*graph.Node) error {
	if exists && !overwrite {
		if err := out.advance(StateSkippedExport); err != nil {
			return err
		}
		return out.advance(StateDone)
	}

	meta, err := c.Export(ctx, roots, out.Path, overwrite)
	if err != nil {
		return err
	}
	c.logger.Info("archive exported", "path", out.Path, "nodes", meta.Counts.Nodes)
	if err := out.advance(StateExported); err != nil {
		return err
	}
	return out.advance(StateDone)
}

// LoadRequest names what Load imports. Path wins over Node.
type LoadRequest struct {
	// Path is an archive file or a directory of archives.
	Path string

	// Node is a root record of an earlier automatic run; its recorded
	// cache name is resolved like a relative path.
	Node *graph.Node
}

// Load imports an archive, or every entry of a directory of archives in
// name order, and rehashes all process records. A directory is imported
// all-or-nothing: if any entry fails to decode nothing is committed.
func (c *Controller) Load(ctx context.Context, req LoadRequest) (store.ImportResult, error) {
	path := req.Path
	if path == "" {
		if req.Node == nil {
			return store.ImportResult{}, &Error{
				Code:    ErrCodeInvalidArgument,
				Message: "neither a cache path nor a node was given",
			}
		}
		name, ok := req.Node.Extras[ExtraCacheName].(ir.IRString)
		if !ok || name == "" {
			return store.ImportResult{}, &Error{
				Code:    ErrCodeInvalidArgument,
				Message: fmt.Sprintf("node %s has no recorded cache name", req.Node.UUID),
			}
		}
		path = string(name)
	}

	full, err := c.resolver.Path(path)
	if err != nil {
		return store.ImportResult{}, err
	}
	return c.load(ctx, full)
}

func (c *Controller) load(ctx context.Context, path string) (store.ImportResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store.ImportResult{}, &Error{Code: ErrCodeNotFound, Message: "cache does not exist", Path: path}
	}
	if err != nil {
		return store.ImportResult{}, fmt.Errorf("load %s: %w", path, err)
	}

	var paths []string
	switch {
	case info.Mode().IsRegular():
		paths = []string{path}
	case info.IsDir():
		entries, err := os.ReadDir(path)
		if err != nil {
			return store.ImportResult{}, fmt.Errorf("load %s: %w", path, err)
		}
		for _, entry := range entries {
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	default:
		return store.ImportResult{}, &Error{
			Code:    ErrCodeCorruptCache,
			Message: "cache exists but is neither a file nor a directory",
			Path:    path,
		}
	}

	res, err := archive.ImportAll(ctx, c.store, paths, archive.ImportOptions{
		Merge:          store.MergeUpdate,
		AllowMigration: c.resolver.AllowMigration,
		Logger:         c.logger,
	})
	if err != nil {
		if archive.IsImportError(err) || archive.IsIncompatibleVersion(err) {
			return store.ImportResult{}, &Error{Code: ErrCodeImportFailed, Message: "import failed", Path: path, Err: err}
		}
		return store.ImportResult{}, fmt.Errorf("load %s: %w", path, err)
	}

	if _, err := c.store.RehashProcesses(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Export rehashes every process record and then writes the closure of
// nodes to path. A relative path is resolved like a cache path.
func (c *Controller) Export(ctx context.Context, nodes []*graph.Node, path string, overwrite bool) (archive.Metadata, error) {
	if _, err := c.store.RehashProcesses(ctx); err != nil {
		return archive.Metadata{}, err
	}
	full, err := c.resolver.Path(path)
	if err != nil {
		return archive.Metadata{}, err
	}
	return archive.Export(ctx, c.store, nodes, full, archive.ExportOptions{Overwrite: overwrite})
}
