package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
	"github.com/roach88/provreplay/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "graph.db"),
		store.WithIDGenerator(testutil.NewSequentialIDs()),
		store.WithLogger(discard),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// recordDiff stores one finished diff calculation with an input, a code and
// a file output and returns the calculation.
func recordDiff(t *testing.T, s *store.Store) *graph.Node {
	t.Helper()
	ctx := context.Background()

	params := graph.New(graph.KindData, "core.dict", ir.IRObject{"ignore-case": ir.IRBool(false)})
	require.NoError(t, s.StoreNode(ctx, params))
	code := graph.NewCode("diff", "diff", "localhost", "/usr/bin/diff")
	require.NoError(t, s.StoreNode(ctx, code))

	calc := graph.New(graph.KindCalcJob, "DiffCalculation", ir.IRObject{"parser_name": ir.IRString("diff")})
	calc.ProcessType = "diff"
	require.NoError(t, s.StoreNode(ctx, calc,
		store.Edge{Node: params, Type: graph.LinkInputCalc, Label: "parameters"},
		store.Edge{Node: code, Type: graph.LinkInputCalc, Label: "code"},
	))

	out := graph.New(graph.KindSingleFile, "core.singlefile", ir.IRObject{"filename": ir.IRString("patch.diff")})
	out.Repository = map[string][]byte{"patch.diff": []byte("1c1\n< a\n---\n> b\n")}
	require.NoError(t, s.StoreNode(ctx, out))
	require.NoError(t, s.Link(ctx, calc, out, graph.LinkCreate, "diff"))

	require.NoError(t, s.SetAttribute(ctx, calc, graph.AttrProcessState, ir.IRString(graph.StateFinished)))
	require.NoError(t, s.SetAttribute(ctx, calc, graph.AttrExitStatus, ir.IRInt(0)))
	require.NoError(t, s.SetExtra(ctx, calc, "origin", ir.IRString("recorded")))
	_, err := s.AddComment(ctx, calc, "first run")
	require.NoError(t, err)
	return calc
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	calc := recordDiff(t, src)
	path := filepath.Join(t.TempDir(), "cache", "diff.tar.gz")

	meta, err := Export(ctx, src, []*graph.Node{calc}, path, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, meta.ExportVersion)
	assert.Equal(t, Counts{Nodes: 4, Links: 3, Comments: 1, Files: 1}, meta.Counts)
	assert.Equal(t, []string{calc.UUID}, meta.Roots)

	dst := newStore(t)
	res, err := Import(ctx, dst, path, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.NodesCreated)

	want, err := src.Closure(ctx, []*graph.Node{calc})
	require.NoError(t, err)
	imported, err := dst.Node(ctx, calc.UUID)
	require.NoError(t, err)
	got, err := dst.Closure(ctx, []*graph.Node{imported})
	require.NoError(t, err)

	require.Len(t, got.Nodes, len(want.Nodes))
	for i := range want.Nodes {
		assert.Equal(t, want.Nodes[i].UUID, got.Nodes[i].UUID)
		assert.Equal(t, want.Nodes[i].Attributes, got.Nodes[i].Attributes)
		assert.Equal(t, want.Nodes[i].Extras, got.Nodes[i].Extras)
		assert.Equal(t, want.Nodes[i].Repository, got.Nodes[i].Repository)
	}
	assert.Equal(t, want.Links, got.Links)
	assert.Equal(t, want.Comments, got.Comments)

	t.Run("second import does not duplicate", func(t *testing.T) {
		res, err := Import(ctx, dst, path, ImportOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, res.NodesCreated)

		all, err := dst.QueryNodes(ctx, store.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestExportImportKeepsFloats(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)

	params := graph.New(graph.KindData, "core.dict", ir.IRObject{
		"ecutwfc": ir.IRFloat(30),
		"conv":    ir.IRFloat(1e-7),
		"mixing":  ir.IRArray{ir.IRFloat(0.7), ir.IRInt(8)},
	})
	require.NoError(t, src.StoreNode(ctx, params))
	calc := graph.New(graph.KindCalcJob, "PwCalculation", ir.IRObject{"walltime": ir.IRFloat(12.5)})
	calc.ProcessType = "pw"
	require.NoError(t, src.StoreNode(ctx, calc, store.Edge{Node: params, Type: graph.LinkInputCalc, Label: "parameters"}))
	require.NoError(t, src.SetAttribute(ctx, calc, graph.AttrProcessState, ir.IRString(graph.StateFinished)))

	path := filepath.Join(t.TempDir(), "pw.tar.gz")
	_, err := Export(ctx, src, []*graph.Node{calc}, path, ExportOptions{})
	require.NoError(t, err)

	dst := newStore(t)
	_, err = Import(ctx, dst, path, ImportOptions{})
	require.NoError(t, err)

	gotParams, err := dst.Node(ctx, params.UUID)
	require.NoError(t, err)
	assert.Equal(t, params.Attributes, gotParams.Attributes)
	assert.Equal(t, params.Hash, gotParams.Hash)

	gotCalc, err := dst.Node(ctx, calc.UUID)
	require.NoError(t, err)
	assert.Equal(t, ir.IRFloat(12.5), gotCalc.Attributes["walltime"])
}

func TestExportRefusesExistingPath(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	calc := recordDiff(t, s)
	path := filepath.Join(t.TempDir(), "diff.tar.gz")

	_, err := Export(ctx, s, []*graph.Node{calc}, path, ExportOptions{})
	require.NoError(t, err)

	_, err = Export(ctx, s, []*graph.Node{calc}, path, ExportOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArchiveExists))

	_, err = Export(ctx, s, []*graph.Node{calc}, path, ExportOptions{Overwrite: true})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestExportDeterministic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var archives [][]byte
	for i := 0; i < 2; i++ {
		s := newStore(t)
		calc := recordDiff(t, s)
		path := filepath.Join(dir, "run.tar.gz")
		_, err := Export(ctx, s, []*graph.Node{calc}, path, ExportOptions{Overwrite: true})
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		archives = append(archives, data)
	}
	assert.Equal(t, archives[0], archives[1])
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))

	_, err := Read(path, true)
	require.Error(t, err)
	var ie *ImportError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, path, ie.Path)
}

func TestDecodeValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
		message string
	}{
		{
			name:    "missing data",
			entries: map[string]string{metadataEntry: `{"export_version":"2"}`},
			message: "missing data.json",
		},
		{
			name: "dangling link",
			entries: map[string]string{
				metadataEntry: `{"export_version":"2"}`,
				dataEntry:     `{"nodes":[{"uuid":"a","kind":"data","attributes":{}}],"links":[{"source":"a","target":"b","type":"input_calc","label":"x"}]}`,
			},
			message: "dangling",
		},
		{
			name: "unknown kind",
			entries: map[string]string{
				metadataEntry: `{"export_version":"2"}`,
				dataEntry:     `{"nodes":[{"uuid":"a","kind":"structure"}]}`,
			},
			message: "unknown kind",
		},
		{
			name: "missing repository file",
			entries: map[string]string{
				metadataEntry: `{"export_version":"2"}`,
				dataEntry:     `{"nodes":[{"uuid":"a","kind":"singlefile","files":["f.txt"]}]}`,
			},
			message: "missing repository file",
		},
		{
			name: "integer attribute out of range",
			entries: map[string]string{
				metadataEntry: `{"export_version":"2"}`,
				dataEntry:     `{"nodes":[{"uuid":"a","kind":"data","attributes":{"x":99999999999999999999}}]}`,
			},
			message: "out of int64 range",
		},
		{
			name: "path traversal",
			entries: map[string]string{
				metadataEntry:          `{"export_version":"2"}`,
				dataEntry:              `{"nodes":[]}`,
				"repo/a/../../escape": "x",
			},
			message: "invalid repository entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(buildArchive(t, tt.entries)), true)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestVersionOneMigration(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "old.tar.gz")
	require.NoError(t, os.WriteFile(path, buildArchive(t, map[string]string{
		metadataEntry: `{"export_version":"1","creator":"provreplay 0.1.0","roots":["c"]}`,
		dataEntry: `{
			"nodes": [
				{"uuid":"d","node_type":"data:core.dict","attributes":{"x":1}},
				{"uuid":"c","node_type":"calcjob:DiffCalculation","attributes":{"parser_name":"diff"},"process_type":"diff","hash":"h"}
			],
			"links": [{"source":"d","target":"c","type":"input_calc","label":"parameters"}]
		}`,
	}), 0o644))

	t.Run("forbidden", func(t *testing.T) {
		_, err := Import(ctx, newStore(t), path, ImportOptions{Logger: discard})
		require.Error(t, err)
		var ve *IncompatibleVersionError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "1", ve.Version)
		assert.Equal(t, path, ve.Path)
	})

	t.Run("allowed", func(t *testing.T) {
		s := newStore(t)
		res, err := Import(ctx, s, path, ImportOptions{AllowMigration: true, Logger: discard})
		require.NoError(t, err)
		assert.Equal(t, 2, res.NodesCreated)

		calc, err := s.Node(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, graph.KindCalcJob, calc.Kind)
		assert.Equal(t, "DiffCalculation", calc.TypeName)
		assert.Empty(t, calc.Extras)
	})

	t.Run("file left as written", func(t *testing.T) {
		before, err := os.ReadFile(path)
		require.NoError(t, err)
		_, err = Import(ctx, newStore(t), path, ImportOptions{AllowMigration: true, Logger: discard})
		require.NoError(t, err)

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		_, err = Read(path, false)
		assert.True(t, IsIncompatibleVersion(err), "got %v", err)
	})

	t.Run("migrate rewrites file", func(t *testing.T) {
		migrated := filepath.Join(t.TempDir(), "new.tar.gz")
		require.NoError(t, Migrate(path, migrated))

		a, err := Read(migrated, false)
		require.NoError(t, err)
		assert.Equal(t, CurrentVersion, a.Metadata.ExportVersion)
		assert.Equal(t, "provreplay 0.1.0", a.Metadata.Creator)
		assert.Equal(t, []string{"c"}, a.Metadata.Roots)
		assert.Len(t, a.Graph.Nodes, 2)
	})
}

func TestUnknownVersionNeverImports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.tar.gz")
	require.NoError(t, os.WriteFile(path, buildArchive(t, map[string]string{
		metadataEntry: `{"export_version":"9"}`,
		dataEntry:     `{}`,
	}), 0o644))

	_, err := Read(path, true)
	assert.True(t, IsIncompatibleVersion(err))
}

func TestImportAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	calc := recordDiff(t, src)
	dir := t.TempDir()

	_, err := Export(ctx, src, []*graph.Node{calc}, filepath.Join(dir, "a.tar.gz"), ExportOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("junk"), 0o644))

	dst := newStore(t)
	_, err = ImportAll(ctx, dst, []string{filepath.Join(dir, "a.tar.gz"), filepath.Join(dir, "b.txt")}, ImportOptions{})
	require.Error(t, err)
	assert.True(t, IsImportError(err))

	all, err := dst.QueryNodes(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	calc := recordDiff(t, s)
	path := filepath.Join(t.TempDir(), "diff.tar.gz")
	_, err := Export(ctx, s, []*graph.Node{calc}, path, ExportOptions{})
	require.NoError(t, err)

	m, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, m.ExportVersion)
	assert.Equal(t, Creator, m.Creator)
	require.Len(t, m.Nodes, 4)
	assert.Equal(t, graph.KindCalcJob, m.Nodes[2].Kind)
	assert.Equal(t, []string{"origin"}, m.Nodes[2].Extras)
	assert.Equal(t, []string{"patch.diff"}, m.Nodes[3].Files)
	assert.Len(t, m.Links, 3)
	assert.Len(t, m.Comments, 1)
}

// buildArchive writes the given entries (sorted by name) as a tar.gz.
func buildArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range []string{metadataEntry, dataEntry} {
		if content, ok := entries[name]; ok {
			require.NoError(t, writeEntry(tw, name, []byte(content)))
		}
	}
	for name, content := range entries {
		if name == metadataEntry || name == dataEntry {
			continue
		}
		require.NoError(t, writeEntry(tw, name, []byte(content)))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}
