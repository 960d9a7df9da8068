package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
)

// Creator is recorded in the metadata of every archive this build writes.
var Creator = "provreplay " + ir.EngineVersion

// GraphSource provides the closure of the nodes to export.
type GraphSource interface {
	Closure(ctx context.Context, roots []*graph.Node) (graph.Subgraph, error)
}

// GraphSink receives decoded archives in one all-or-nothing batch.
type GraphSink interface {
	ImportBatch(ctx context.Context, policy store.MergePolicy, graphs ...graph.Subgraph) (store.ImportResult, error)
}

// ExportOptions controls Export.
type ExportOptions struct {
	// Overwrite replaces an existing archive instead of failing with
	// ErrArchiveExists.
	Overwrite bool
}

// ImportOptions controls Import and ImportAll.
type ImportOptions struct {
	// Merge is the extras policy for nodes that already exist.
	Merge store.MergePolicy

	// AllowMigration lets older export versions be converted on import.
	AllowMigration bool

	// Logger receives migration warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o ImportOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Export writes the closure of roots to path.
func Export(ctx context.Context, src GraphSource, roots []*graph.Node, path string, opts ExportOptions) (Metadata, error) {
	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return Metadata{}, fmt.Errorf("export %s: %w", path, ErrArchiveExists)
		}
	}

	g, err := src.Closure(ctx, roots)
	if err != nil {
		return Metadata{}, fmt.Errorf("export %s: %w", path, err)
	}
	rootIDs := make([]string, len(roots))
	for i, r := range roots {
		rootIDs[i] = r.UUID
	}

	var buf bytes.Buffer
	meta, err := Encode(&buf, g, rootIDs, Creator)
	if err != nil {
		return Metadata{}, fmt.Errorf("export %s: %w", path, err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return Metadata{}, fmt.Errorf("export %s: %w", path, err)
	}
	return meta, nil
}

// Read decodes the archive at path. Decoding failures are *ImportError;
// a version that needs forbidden migration is *IncompatibleVersionError.
func Read(path string, allowMigration bool) (Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return Archive{}, &ImportError{Path: path, Err: err}
	}
	defer f.Close()

	a, err := Decode(f, allowMigration)
	if err != nil {
		var ve *IncompatibleVersionError
		if errors.As(err, &ve) {
			ve.Path = path
			return Archive{}, ve
		}
		return Archive{}, &ImportError{Path: path, Err: err}
	}
	return a, nil
}

// Import reads one archive and merges it into dst.
func Import(ctx context.Context, dst GraphSink, path string, opts ImportOptions) (store.ImportResult, error) {
	return ImportAll(ctx, dst, []string{path}, opts)
}

// ImportAll decodes every archive first and then commits them in a single
// batch: either all are imported or none is.
func ImportAll(ctx context.Context, dst GraphSink, paths []string, opts ImportOptions) (store.ImportResult, error) {
	if len(paths) == 0 {
		return store.ImportResult{}, nil
	}
	graphs := make([]graph.Subgraph, 0, len(paths))
	for _, path := range paths {
		a, err := readForImport(path, opts)
		if err != nil {
			return store.ImportResult{}, err
		}
		graphs = append(graphs, a.Graph)
	}

	res, err := dst.ImportBatch(ctx, opts.Merge, graphs...)
	if err != nil {
		if len(paths) == 1 {
			return store.ImportResult{}, &ImportError{Path: paths[0], Err: err}
		}
		return store.ImportResult{}, &ImportError{Path: filepath.Dir(paths[0]), Err: err}
	}
	return res, nil
}

func readForImport(path string, opts ImportOptions) (Archive, error) {
	a, err := Read(path, false)
	if err == nil || !IsIncompatibleVersion(err) || !opts.AllowMigration {
		return a, err
	}
	opts.logger().Warn("incompatible archive version, migrating", "path", path)
	return Read(path, true)
}

// Inspect decodes the archive at path, migrating in memory if needed, and
// returns its manifest.
func Inspect(path string) (Manifest, error) {
	a, err := Read(path, true)
	if err != nil {
		return Manifest{}, err
	}
	return NewManifest(a), nil
}

// Migrate rewrites the archive at src in the current version to dst.
// An empty dst migrates in place.
func Migrate(src, dst string) error {
	if dst == "" {
		dst = src
	}
	a, err := Read(src, true)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := Encode(&buf, a.Graph, a.Metadata.Roots, a.Metadata.Creator); err != nil {
		return fmt.Errorf("migrate %s: %w", src, err)
	}
	if err := writeFileAtomic(dst, buf.Bytes()); err != nil {
		return fmt.Errorf("migrate %s: %w", src, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers see either the old or the new archive.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".provreplay-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // No-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, fs.FileMode(0o644)); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
