package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
	"github.com/roach88/provreplay/internal/ir"
)

func TestRehash_FollowsStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, _, calc, _ := diffRun(t, s, 1)
	defaultHash := calc.Hash
	require.NoError(t, s.Close())

	liberal, err := Open(path, WithIdentity(identity.NewLiberal(identity.NewConfig())))
	require.NoError(t, err)
	defer liberal.Close()

	n, err := liberal.Node(ctx, calc.UUID)
	require.NoError(t, err)
	assert.Equal(t, defaultHash, n.Hash, "hash is stored, not recomputed on read")

	count, err := liberal.RehashProcesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err = liberal.Node(ctx, calc.UUID)
	require.NoError(t, err)
	assert.NotEqual(t, defaultHash, n.Hash)
}

func TestRehash_RequiresStored(t *testing.T) {
	s := createTestStore(t)
	err := s.Rehash(context.Background(), graph.New(graph.KindCalcJob, "x", nil))
	assert.ErrorIs(t, err, ErrNotStored)
}

func TestFindCacheSource(t *testing.T) {
	s := createTestStore(t, WithIdentity(identity.NewLiberal(identity.NewConfig())))
	ctx := context.Background()
	_, code, source, _ := diffRun(t, s, 1)

	// A second record over equal inputs hashes the same.
	in3 := graph.New(graph.KindData, "core.dict", ir.IRObject{"x": ir.IRInt(1)})
	require.NoError(t, s.StoreNode(ctx, in3))
	fresh := graph.New(graph.KindCalcJob, "DiffCalculation", ir.IRObject{
		"parser_name":          ir.IRString("diff"),
		graph.AttrProcessState: ir.IRString(graph.StateCreated),
	})
	fresh.ProcessType = "diff"
	require.NoError(t, s.StoreNode(ctx, fresh,
		Edge{Node: in3, Type: graph.LinkInputCalc, Label: "parameters"},
		Edge{Node: code, Type: graph.LinkInputCalc, Label: "code"},
	))
	require.Equal(t, source.Hash, fresh.Hash)

	found, err := s.FindCacheSource(ctx, fresh)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, source.UUID, found.UUID)

	// Unfinished records are never cache sources.
	require.NoError(t, s.SetAttribute(ctx, source, graph.AttrExitStatus, ir.IRInt(1)))
	found, err = s.FindCacheSource(ctx, fresh)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindCacheSource_ProcessTypeMustMatch(t *testing.T) {
	s := createTestStore(t, WithIdentity(identity.NewLiberal(identity.NewConfig())))
	ctx := context.Background()
	_, _, source, _ := diffRun(t, s, 1)

	other := *source
	other.UUID = "other"
	other.ProcessType = "arithmetic.add"

	found, err := s.FindCacheSource(ctx, &other)
	require.NoError(t, err)
	assert.Nil(t, found)
}
