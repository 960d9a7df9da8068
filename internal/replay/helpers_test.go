package replay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/cache"
	"github.com/roach88/provreplay/internal/engine"
	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
	"github.com/roach88/provreplay/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// session is one simulated test process: a fresh store, engine and
// controller sharing a cache directory with other sessions.
type session struct {
	store      *store.Store
	engine     *engine.Engine
	controller *Controller
}

// newSession opens a fresh store whose IDs start after idStart, so
// sessions exchanging archives never collide.
func newSession(t *testing.T, idStart int64, resolver cache.Resolver) *session {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "graph.db"),
		store.WithIdentity(identity.NewLiberal(identity.NewConfig())),
		store.WithIDGenerator(testutil.NewSequentialIDsAt(idStart)),
		store.WithLogger(discard),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := engine.New(s, engine.WithLogger(discard))
	return &session{
		store:      s,
		engine:     e,
		controller: New(e, WithResolver(resolver), WithLogger(discard)),
	}
}

// testResolver resolves relative cache paths under a shared temp dir.
func testResolver(t *testing.T) cache.Resolver {
	t.Helper()
	return cache.Resolver{
		BaseDir:        t.TempDir(),
		AllowMigration: true,
	}
}

func countNodes(t *testing.T, s *store.Store, kinds ...graph.Kind) int {
	t.Helper()
	nodes, err := s.QueryNodes(context.Background(), store.Filter{Kinds: kinds})
	require.NoError(t, err)
	return len(nodes)
}

// addCalculation sums the "x" and "y" integer inputs.
type addCalculation struct {
	runs int
}

func (c *addCalculation) ProcessType() string { return "arithmetic.add" }

func (c *addCalculation) Run(_ context.Context, call *engine.Call) (engine.Outputs, error) {
	c.runs++
	var sum int64
	for _, label := range []string{"x", "y"} {
		n, err := call.Input(label)
		if err != nil {
			return nil, err
		}
		v, ok := n.Attributes["value"].(ir.IRInt)
		if !ok {
			return nil, errors.New(label + " is not an integer")
		}
		sum += int64(v)
	}
	return engine.Outputs{"sum": graph.New(graph.KindData, "core.int", ir.IRObject{"value": ir.IRInt(sum)})}, nil
}

// chainWorkflow adds x+y and then sum+y.
type chainWorkflow struct {
	add *addCalculation
}

func (w chainWorkflow) ProcessType() string { return "arithmetic.chain" }

func (w chainWorkflow) Run(ctx context.Context, call *engine.Call, r *engine.Runner) (engine.Outputs, error) {
	x, _ := call.Input("x")
	y, _ := call.Input("y")
	first, _, err := r.Submit(ctx, w.add, engine.Request{"x": x, "y": y})
	if err != nil {
		return nil, err
	}
	second, _, err := r.Submit(ctx, w.add, engine.Request{"x": first["sum"], "y": y})
	if err != nil {
		return nil, err
	}
	return engine.Outputs{"result": second["sum"]}, nil
}
