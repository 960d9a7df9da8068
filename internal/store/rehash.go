package store

import (
	"context"
	"fmt"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
)

// Rehash recomputes the hash of a stored node with the store's current
// identity strategy and the current hashes of its inputs.
func (s *Store) Rehash(ctx context.Context, n *graph.Node) error {
	if !n.Stored() {
		return fmt.Errorf("rehash: %w", ErrNotStored)
	}
	incoming, err := s.Incoming(ctx, n)
	if err != nil {
		return fmt.Errorf("rehash %s: %w", n.UUID, err)
	}
	hash, err := identity.Hash(s.identity, n, identityInputs(incoming))
	if err != nil {
		return fmt.Errorf("rehash: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE nodes SET hash = ? WHERE pk = ?`, hash, n.PK); err != nil {
		return fmt.Errorf("rehash %s: %w", n.UUID, err)
	}
	n.Hash = hash
	return nil
}

// RehashProcesses recomputes the hash of every process record in PK order
// and returns how many were rehashed. Imported records carry the exporter's
// hashes until this runs.
func (s *Store) RehashProcesses(ctx context.Context) (int, error) {
	nodes, err := s.QueryNodes(ctx, Filter{Kinds: []graph.Kind{graph.KindCalcJob, graph.KindWorkflow}})
	if err != nil {
		return 0, fmt.Errorf("rehash processes: %w", err)
	}
	for _, n := range nodes {
		if err := s.Rehash(ctx, n); err != nil {
			return 0, fmt.Errorf("rehash processes: %w", err)
		}
	}
	s.logger.Debug("processes rehashed", "count", len(nodes))
	return len(nodes), nil
}

// FindCacheSource returns the oldest stored process record, other than n,
// that has the same kind, type, process type and hash as n and finished
// successfully. Returns nil if there is none.
func (s *Store) FindCacheSource(ctx context.Context, n *graph.Node) (*graph.Node, error) {
	if n.Hash == "" {
		return nil, nil
	}
	candidates, err := s.QueryNodes(ctx, Filter{
		Kinds:        []graph.Kind{n.Kind},
		ProcessTypes: []string{n.ProcessType},
		TypeName:     n.TypeName,
		Hash:         n.Hash,
	})
	if err != nil {
		return nil, fmt.Errorf("find cache source: %w", err)
	}
	for _, c := range candidates {
		if c.UUID != n.UUID && c.Finished() {
			return c, nil
		}
	}
	return nil, nil
}
