package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/testutil"
)

// createTestStore opens a fresh store in a temp dir with deterministic IDs.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	base := []Option{
		WithIDGenerator(testutil.NewSequentialIDs()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	s, err := Open(path, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// diffRun stores x, code -> calc -> out and returns all four nodes.
func diffRun(t *testing.T, s *Store, x int64) (in, code, calc, out *graph.Node) {
	t.Helper()
	ctx := context.Background()

	in = graph.New(graph.KindData, "core.dict", ir.IRObject{"x": ir.IRInt(x)})
	require.NoError(t, s.StoreNode(ctx, in))

	code = graph.NewCode("diff", "diff", "computer-1", "/usr/bin/diff")
	require.NoError(t, s.StoreNode(ctx, code))

	calc = graph.New(graph.KindCalcJob, "DiffCalculation", ir.IRObject{
		"parser_name":          ir.IRString("diff"),
		graph.AttrProcessState: ir.IRString(graph.StateCreated),
	})
	calc.ProcessType = "diff"
	require.NoError(t, s.StoreNode(ctx, calc,
		Edge{Node: in, Type: graph.LinkInputCalc, Label: "parameters"},
		Edge{Node: code, Type: graph.LinkInputCalc, Label: "code"},
	))

	out = graph.New(graph.KindSingleFile, "core.singlefile", ir.IRObject{"filename": ir.IRString("diff.patch")})
	out.Repository = map[string][]byte{"diff.patch": []byte("-a\n+b\n")}
	require.NoError(t, s.StoreNode(ctx, out))
	require.NoError(t, s.Link(ctx, calc, out, graph.LinkCreate, "diff"))

	require.NoError(t, s.SetAttribute(ctx, calc, graph.AttrProcessState, ir.IRString(graph.StateFinished)))
	require.NoError(t, s.SetAttribute(ctx, calc, graph.AttrExitStatus, ir.IRInt(0)))
	return in, code, calc, out
}
