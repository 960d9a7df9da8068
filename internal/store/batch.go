package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
)

// MergePolicy decides what happens to extras of nodes that already exist.
type MergePolicy int

const (
	// MergeUpdate imports new extra keys and overwrites existing ones.
	MergeUpdate MergePolicy = iota

	// MergeKeep imports new extra keys and keeps existing values.
	MergeKeep
)

// ImportResult counts what ImportBatch did.
type ImportResult struct {
	NodesCreated int
	NodesMerged  int
	Links        int
	Comments     int
}

// ImportBatch writes subgraphs into the store in a single transaction.
// Either every subgraph is committed or none is.
//
// Nodes whose UUID already exists are not duplicated; their extras are
// merged per policy and no key is ever removed. New data nodes are hashed with the store's identity strategy.
// New process records keep their imported hash until RehashProcesses.
func (s *Store) ImportBatch(ctx context.Context, policy MergePolicy, graphs ...graph.Subgraph) (ImportResult, error) {
	var res ImportResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, g := range graphs {
			if err := s.importSubgraph(ctx, tx, g, policy, &res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("import batch: %w", err)
	}

	s.logger.Info("graph imported",
		"created", res.NodesCreated,
		"merged", res.NodesMerged,
		"links", res.Links,
		"comments", res.Comments,
	)
	return res, nil
}

func (s *Store) importSubgraph(ctx context.Context, tx *sql.Tx, g graph.Subgraph, policy MergePolicy, res *ImportResult) error {
	pks := make(map[string]int64, len(g.Nodes))

	for _, n := range g.Nodes {
		var (
			pk        int64
			extrasRaw string
		)
		err := tx.QueryRowContext(ctx, `SELECT pk, extras FROM nodes WHERE uuid = ?`, n.UUID).Scan(&pk, &extrasRaw)
		switch {
		case isNoRows(err):
			hash := n.Hash
			if !n.Kind.IsProcess() {
				hash, err = identity.Hash(s.identity, n, nil)
				if err != nil {
					return err
				}
			}
			pk, err = insertNode(ctx, tx, n, hash)
			if err != nil {
				return fmt.Errorf("node %s: %w", n.UUID, err)
			}
			res.NodesCreated++

		case err != nil:
			return fmt.Errorf("lookup node %s: %w", n.UUID, err)

		default:
			extras, err := unmarshalObject(extrasRaw)
			if err != nil {
				return fmt.Errorf("node %s: %w", n.UUID, err)
			}
			for k, v := range n.Extras {
				if _, exists := extras[k]; exists && policy == MergeKeep {
					continue
				}
				extras[k] = v
			}
			extrasJSON, err := marshalObject(extras)
			if err != nil {
				return fmt.Errorf("node %s: %w", n.UUID, err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE nodes SET extras = ? WHERE pk = ?`, extrasJSON, pk); err != nil {
				return fmt.Errorf("merge extras of %s: %w", n.UUID, err)
			}
			res.NodesMerged++
		}
		pks[n.UUID] = pk
	}

	for _, l := range g.Links {
		source, ok := pks[l.Source]
		if !ok {
			return fmt.Errorf("link %q: source %s not in archive", l.Label, l.Source)
		}
		target, ok := pks[l.Target]
		if !ok {
			return fmt.Errorf("link %q: target %s not in archive", l.Label, l.Target)
		}
		if err := insertLink(ctx, tx, source, target, l.Type, l.Label); err != nil {
			return err
		}
		res.Links++
	}

	for _, c := range g.Comments {
		pk, ok := pks[c.Node]
		if !ok {
			return fmt.Errorf("comment %s: node %s not in archive", c.UUID, c.Node)
		}
		if err := insertComment(ctx, tx, c, pk); err != nil {
			return err
		}
		res.Comments++
	}
	return nil
}
