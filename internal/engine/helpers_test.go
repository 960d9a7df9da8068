package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
	"github.com/roach88/provreplay/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestEngine creates an engine on a fresh store with the liberal
// identity strategy and deterministic IDs.
func setupTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithIdentity(identity.NewLiberal(identity.NewConfig())),
		store.WithIDGenerator(testutil.NewSequentialIDs()),
		store.WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := New(s, append([]EngineOption{WithLogger(discardLogger())}, opts...)...)
	return e, s
}

// addCalculation sums the "x" and "y" integer inputs.
type addCalculation struct {
	runs int
}

func (c *addCalculation) ProcessType() string { return "arithmetic.add" }

func (c *addCalculation) Run(_ context.Context, call *Call) (Outputs, error) {
	c.runs++
	x, err := intInput(call, "x")
	if err != nil {
		return nil, err
	}
	y, err := intInput(call, "y")
	if err != nil {
		return nil, err
	}
	sum := graph.New(graph.KindData, "core.int", ir.IRObject{"value": ir.IRInt(x + y)})
	return Outputs{"sum": sum}, nil
}

func intInput(call *Call, label string) (int64, error) {
	n, err := call.Input(label)
	if err != nil {
		return 0, err
	}
	v, ok := n.Attributes["value"].(ir.IRInt)
	if !ok {
		return 0, errors.New(label + " is not an integer")
	}
	return int64(v), nil
}

// failingCalculation finishes with the configured exit status or error.
type failingCalculation struct {
	err error
}

func (c failingCalculation) ProcessType() string { return "failing" }

func (c failingCalculation) Run(context.Context, *Call) (Outputs, error) {
	return nil, c.err
}

// sumTwiceWorkflow adds x+y and then sum+y.
type sumTwiceWorkflow struct {
	add *addCalculation
}

func (w sumTwiceWorkflow) ProcessType() string { return "arithmetic.sum_twice" }

func (w sumTwiceWorkflow) Run(ctx context.Context, call *Call, r *Runner) (Outputs, error) {
	x, _ := call.Input("x")
	y, _ := call.Input("y")
	first, _, err := r.Submit(ctx, w.add, Request{"x": x, "y": y})
	if err != nil {
		return nil, err
	}
	second, _, err := r.Submit(ctx, w.add, Request{"x": first["sum"], "y": y})
	if err != nil {
		return nil, err
	}
	return Outputs{"result": second["sum"]}, nil
}

// notAProcess implements Process only.
type notAProcess struct{}

func (notAProcess) ProcessType() string { return "nothing" }
