package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/config"
	"github.com/roach88/provreplay/internal/engine"
	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
	"github.com/roach88/provreplay/internal/testutil"
)

// executeCLI runs the root command with an empty configuration file so
// nothing is discovered from the working directory.
func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(cfgPath, nil, 0o644))

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// doubleCalculation writes twice its "x" input to "result".
type doubleCalculation struct{}

func (doubleCalculation) ProcessType() string { return "arithmetic.double" }

func (doubleCalculation) Run(_ context.Context, call *engine.Call) (engine.Outputs, error) {
	x, err := call.Input("x")
	if err != nil {
		return nil, err
	}
	v := x.Attributes["value"].(ir.IRInt)
	return engine.Outputs{"result": graph.New(graph.KindData, "core.int", ir.IRObject{"value": v * 2})}, nil
}

// seedDatabase creates a database holding one finished calculation per
// value of x.
func seedDatabase(t *testing.T, xs ...int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.db")
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(path,
		store.WithIdentity(identity.NewLiberal(identity.NewConfig())),
		store.WithIDGenerator(testutil.NewSequentialIDs()),
		store.WithLogger(discard),
	)
	require.NoError(t, err)
	defer st.Close()

	e := engine.New(st, engine.WithLogger(discard))
	for _, x := range xs {
		_, _, err := e.Run(context.Background(), doubleCalculation{}, engine.Request{"x": x})
		require.NoError(t, err)
	}
	return path
}
