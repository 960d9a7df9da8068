package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
	"github.com/roach88/provreplay/internal/ir"
)

// Edge is a link seen from one of its ends: Node is the node on the far end.
type Edge struct {
	Node  *graph.Node
	Type  graph.LinkType
	Label string
}

// StoreNode persists n together with its incoming input links, assigns its
// PK (and UUID if empty) and computes its hash with the store's identity
// strategy. Input links can only be added here; the identity of a process
// depends on them.
//
// Storing an already stored node is a no-op.
func (s *Store) StoreNode(ctx context.Context, n *graph.Node, inputs ...Edge) error {
	if n.Stored() {
		return nil
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("store node: unknown kind %q", n.Kind)
	}
	for _, in := range inputs {
		if !in.Type.IsInput() {
			return fmt.Errorf("store node: %s link %q is not an input", in.Type, in.Label)
		}
		if !in.Node.Stored() {
			return fmt.Errorf("store node: input %q: %w", in.Label, ErrNotStored)
		}
		if err := graph.ValidateLink(in.Node.Kind, n.Kind, in.Type); err != nil {
			return fmt.Errorf("store node: input %q: %w", in.Label, err)
		}
	}

	if n.UUID == "" {
		n.UUID = s.ids.Generate()
	}
	if n.Attributes == nil {
		n.Attributes = ir.IRObject{}
	}
	if n.Extras == nil {
		n.Extras = ir.IRObject{}
	}

	hash, err := identity.Hash(s.identity, n, identityInputs(inputs))
	if err != nil {
		return fmt.Errorf("store node: %w", err)
	}

	var pk int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		pk, err = insertNode(ctx, tx, n, hash)
		if err != nil {
			return err
		}
		for _, in := range inputs {
			if err := insertLink(ctx, tx, in.Node.PK, pk, in.Type, in.Label); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store node %s: %w", n.UUID, err)
	}

	n.PK = pk
	n.Hash = hash
	s.logger.Debug("node stored",
		"uuid", n.UUID,
		"kind", n.Kind,
		"type", n.TypeName,
		"hash", hash,
	)
	return nil
}

// Link adds an output or call link between two stored nodes.
// Duplicate links are silently ignored.
func (s *Store) Link(ctx context.Context, source, target *graph.Node, typ graph.LinkType, label string) error {
	if !source.Stored() || !target.Stored() {
		return fmt.Errorf("link %s %q: %w", typ, label, ErrNotStored)
	}
	if typ.IsInput() {
		return fmt.Errorf("link %s %q to %s: %w", typ, label, target.UUID, ErrImmutable)
	}
	if err := graph.ValidateLink(source.Kind, target.Kind, typ); err != nil {
		return fmt.Errorf("link %q: %w", label, err)
	}
	if err := insertLink(ctx, s.db, source.PK, target.PK, typ, label); err != nil {
		return fmt.Errorf("link %q: %w", label, err)
	}
	return nil
}

// SetAttribute sets one attribute. After storage only keys listed in
// n.Updatable may change; anything else fails with ErrImmutable.
func (s *Store) SetAttribute(ctx context.Context, n *graph.Node, key string, value ir.IRValue) error {
	if !n.Stored() {
		if n.Attributes == nil {
			n.Attributes = ir.IRObject{}
		}
		n.Attributes[key] = value
		return nil
	}
	if !n.IsUpdatable(key) {
		return fmt.Errorf("set attribute %q on %s: %w", key, n.UUID, ErrImmutable)
	}

	attrs := n.Attributes.Clone()
	attrs[key] = value
	attrsJSON, err := marshalObject(attrs)
	if err != nil {
		return fmt.Errorf("set attribute %q: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE nodes SET attributes = ? WHERE pk = ?`, attrsJSON, n.PK); err != nil {
		return fmt.Errorf("set attribute %q: %w", key, err)
	}
	n.Attributes = attrs
	return nil
}

// SetExtra sets one extra. Extras never contribute to identity and may
// change at any time.
func (s *Store) SetExtra(ctx context.Context, n *graph.Node, key string, value ir.IRValue) error {
	if !n.Stored() {
		if n.Extras == nil {
			n.Extras = ir.IRObject{}
		}
		n.Extras[key] = value
		return nil
	}

	var extras ir.IRObject
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		if err := tx.QueryRowContext(ctx, `SELECT extras FROM nodes WHERE pk = ?`, n.PK).Scan(&raw); err != nil {
			return err
		}
		var err error
		extras, err = unmarshalObject(raw)
		if err != nil {
			return err
		}
		extras[key] = value
		extrasJSON, err := marshalObject(extras)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE nodes SET extras = ? WHERE pk = ?`, extrasJSON, n.PK)
		return err
	})
	if err != nil {
		return fmt.Errorf("set extra %q on %s: %w", key, n.UUID, err)
	}
	n.Extras = extras
	return nil
}

// AddComment attaches a free-text comment to a stored node.
func (s *Store) AddComment(ctx context.Context, n *graph.Node, content string) (graph.Comment, error) {
	if !n.Stored() {
		return graph.Comment{}, fmt.Errorf("add comment: %w", ErrNotStored)
	}
	c := graph.Comment{UUID: s.ids.Generate(), Node: n.UUID, Content: content}
	if err := insertComment(ctx, s.db, c, n.PK); err != nil {
		return graph.Comment{}, fmt.Errorf("add comment: %w", err)
	}
	return c, nil
}

// insertNode writes a node row plus its repository files and returns the new PK.
func insertNode(ctx context.Context, q querier, n *graph.Node, hash string) (int64, error) {
	attrsJSON, err := marshalObject(n.Attributes)
	if err != nil {
		return 0, err
	}
	extrasJSON, err := marshalObject(n.Extras)
	if err != nil {
		return 0, err
	}
	updatableJSON, err := marshalKeys(n.Updatable)
	if err != nil {
		return 0, err
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO nodes
		(uuid, kind, type_name, label, attributes, updatable, extras, environment, process_type, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.UUID,
		string(n.Kind),
		n.TypeName,
		n.Label,
		attrsJSON,
		updatableJSON,
		extrasJSON,
		n.Environment,
		n.ProcessType,
		hash,
	)
	if err != nil {
		return 0, fmt.Errorf("insert node: %w", err)
	}
	pk, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert node: last insert id: %w", err)
	}

	names := make([]string, 0, len(n.Repository))
	for name := range n.Repository {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO repository_files (node_pk, name, content) VALUES (?, ?, ?)
		`, pk, name, n.Repository[name]); err != nil {
			return 0, fmt.Errorf("insert repository file %q: %w", name, err)
		}
	}
	return pk, nil
}

func insertLink(ctx context.Context, q querier, sourcePK, targetPK int64, typ graph.LinkType, label string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO links (source_pk, target_pk, type, label)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, sourcePK, targetPK, string(typ), label)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func insertComment(ctx context.Context, q querier, c graph.Comment, nodePK int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO comments (uuid, node_pk, content)
		VALUES (?, ?, ?)
		ON CONFLICT(uuid) DO NOTHING
	`, c.UUID, nodePK, c.Content)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func identityInputs(edges []Edge) []identity.Input {
	inputs := make([]identity.Input, 0, len(edges))
	for _, e := range edges {
		inputs = append(inputs, identity.Input{Label: e.Label, Type: e.Type, Hash: e.Node.Hash})
	}
	return inputs
}
