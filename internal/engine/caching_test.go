package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/ir"
)

func TestCachingReusesFinishedRecord(t *testing.T) {
	e, s := setupTestEngine(t)
	ctx := WithCaching(context.Background(), GlobalCaching())
	add := &addCalculation{}

	_, first, err := e.Run(ctx, add, Request{"x": 1, "y": 2})
	require.NoError(t, err)
	assert.NotContains(t, first.Extras, ExtraCachedFrom)

	outputs, second, err := e.Run(ctx, add, Request{"x": 1, "y": 2})
	require.NoError(t, err)

	assert.Equal(t, 1, add.runs)
	assert.NotEqual(t, first.UUID, second.UUID)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, ir.IRString(first.UUID), second.Extras[ExtraCachedFrom])
	assert.True(t, second.Finished())
	assert.Equal(t, ir.IRInt(3), outputs["sum"].Attributes["value"])

	outgoing, err := s.Outgoing(ctx, second)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, outputs["sum"].UUID, outgoing[0].Node.UUID)

	firstOut, err := s.Outgoing(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, firstOut[0].Node.UUID, outgoing[0].Node.UUID)
}

func TestCachingDifferentInputsRun(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := WithCaching(context.Background(), GlobalCaching())
	add := &addCalculation{}

	_, _, err := e.Run(ctx, add, Request{"x": 1, "y": 2})
	require.NoError(t, err)
	_, record, err := e.Run(ctx, add, Request{"x": 1, "y": 3})
	require.NoError(t, err)

	assert.Equal(t, 2, add.runs)
	assert.NotContains(t, record.Extras, ExtraCachedFrom)
}

func TestCachingFloatInputs(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := WithCaching(context.Background(), GlobalCaching())
	add := &addCalculation{}

	_, first, err := e.Run(ctx, add, Request{"x": 1, "y": 2, "cutoff": 30.5})
	require.NoError(t, err)
	_, second, err := e.Run(ctx, add, Request{"x": 1, "y": 2, "cutoff": 30.5})
	require.NoError(t, err)
	assert.Equal(t, 1, add.runs)
	assert.Equal(t, ir.IRString(first.UUID), second.Extras[ExtraCachedFrom])

	_, third, err := e.Run(ctx, add, Request{"x": 1, "y": 2, "cutoff": 30.25})
	require.NoError(t, err)
	assert.Equal(t, 2, add.runs)
	assert.NotEqual(t, first.Hash, third.Hash)
	assert.NotContains(t, third.Extras, ExtraCachedFrom)
}

func TestCachingScopes(t *testing.T) {
	tests := []struct {
		name     string
		ctx      func() context.Context
		wantRuns int
	}{
		{"no scope", context.Background, 2},
		{"global", func() context.Context { return WithCaching(context.Background(), GlobalCaching()) }, 1},
		{"matching process type", func() context.Context {
			return WithCaching(context.Background(), CachingFor("arithmetic.add"))
		}, 1},
		{"other process type", func() context.Context {
			return WithCaching(context.Background(), CachingFor("arithmetic.multiply"))
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := setupTestEngine(t)
			add := &addCalculation{}
			for range 2 {
				_, _, err := e.Run(tt.ctx(), add, Request{"x": 1, "y": 2})
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRuns, add.runs)
		})
	}
}

func TestCachingSkipsFailedRecords(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := WithCaching(context.Background(), GlobalCaching())

	_, _, err := e.Run(ctx, failingCalculation{err: Exit(1, "nope")}, Request{"x": 1})
	require.Error(t, err)

	_, record, err := e.Run(ctx, failingCalculation{err: Exit(1, "nope")}, Request{"x": 1})
	require.Error(t, err)
	assert.NotContains(t, record.Extras, ExtraCachedFrom)
}

func TestCachingInsideWorkflow(t *testing.T) {
	e, _ := setupTestEngine(t)
	ctx := WithCaching(context.Background(), CachingFor("arithmetic.add"))
	add := &addCalculation{}

	_, _, err := e.Run(ctx, sumTwiceWorkflow{add: add}, Request{"x": 1, "y": 2})
	require.NoError(t, err)
	require.Equal(t, 2, add.runs)

	outputs, _, err := e.Run(ctx, sumTwiceWorkflow{add: add}, Request{"x": 1, "y": 2})
	require.NoError(t, err)
	assert.Equal(t, 2, add.runs)
	assert.Equal(t, ir.IRInt(5), outputs["result"].Attributes["value"])
}
