//go:build unix

package replay

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/engine"
)

func TestLoadCorruptCache(t *testing.T) {
	s := newSession(t, 0, testResolver(t))
	fifo := filepath.Join(t.TempDir(), "cache.fifo")
	require.NoError(t, syscall.Mkfifo(fifo, 0o644))

	_, err := s.controller.Load(context.Background(), LoadRequest{Path: fifo})
	require.Error(t, err)
	assert.True(t, IsCorruptCache(err))
}

func TestRunWithCacheFIFOIsCorrupt(t *testing.T) {
	resolver := testResolver(t)
	ctx := context.Background()
	request := engine.Request{"x": 1, "y": 2}

	first := newSession(t, 0, resolver)
	recorded, err := first.controller.RunWithCache(ctx, &addCalculation{}, request, RunOptions{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(recorded.Outcome.Path))
	require.NoError(t, syscall.Mkfifo(recorded.Outcome.Path, 0o644))

	second := newSession(t, 10000, resolver)
	add := &addCalculation{}
	res, err := second.controller.RunWithCache(ctx, add, request, RunOptions{})
	require.Error(t, err)
	assert.True(t, IsCorruptCache(err), "got %v", err)
	assert.Equal(t, StateHit, res.Outcome.State())
	assert.Equal(t, 0, add.runs)
}

func TestWithArchiveCacheFIFOIsCorrupt(t *testing.T) {
	resolver := testResolver(t)
	s := newSession(t, 0, resolver)
	require.NoError(t, syscall.Mkfifo(filepath.Join(resolver.BaseDir, "pipe.tar.gz"), 0o644))

	called := false
	out, err := s.controller.WithArchiveCache(context.Background(), "pipe.tar.gz", ScopeOptions{}, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsCorruptCache(err), "got %v", err)
	assert.Equal(t, StateHit, out.State())
	assert.False(t, called)
}
