package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/provreplay/internal/graph"
)

const nodeColumns = `pk, uuid, kind, type_name, label, attributes, updatable, extras, environment, process_type, hash`

// Filter selects nodes in QueryNodes. Empty fields match everything.
type Filter struct {
	Kinds        []graph.Kind
	ProcessTypes []string
	TypeName     string
	Hash         string
}

// Node retrieves a node by UUID.
// Returns ErrNotFound if no such node exists.
func (s *Store) Node(ctx context.Context, uuid string) (*graph.Node, error) {
	nodes, err := loadNodes(ctx, s.db, "uuid = ?", uuid)
	if err != nil {
		return nil, fmt.Errorf("read node %s: %w", uuid, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("read node %s: %w", uuid, ErrNotFound)
	}
	return nodes[0], nil
}

// QueryNodes returns the nodes matching f ordered by PK.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryNodes(ctx context.Context, f Filter) ([]*graph.Node, error) {
	var (
		clauses []string
		args    []any
	)
	if len(f.Kinds) > 0 {
		clauses = append(clauses, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if len(f.ProcessTypes) > 0 {
		clauses = append(clauses, "process_type IN ("+placeholders(len(f.ProcessTypes))+")")
		for _, pt := range f.ProcessTypes {
			args = append(args, pt)
		}
	}
	if f.TypeName != "" {
		clauses = append(clauses, "type_name = ?")
		args = append(args, f.TypeName)
	}
	if f.Hash != "" {
		clauses = append(clauses, "hash = ?")
		args = append(args, f.Hash)
	}
	where := "1 = 1"
	if len(clauses) > 0 {
		where = strings.Join(clauses, " AND ")
	}

	nodes, err := loadNodes(ctx, s.db, where, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	if nodes == nil {
		nodes = []*graph.Node{}
	}
	return nodes, nil
}

// Incoming returns the links ending at n, ordered by link creation.
func (s *Store) Incoming(ctx context.Context, n *graph.Node) ([]Edge, error) {
	edges, err := loadEdges(ctx, s.db, `
		SELECT source_pk, type, label FROM links
		WHERE target_pk = ?
		ORDER BY pk ASC
	`, n.PK)
	if err != nil {
		return nil, fmt.Errorf("incoming links of %s: %w", n.UUID, err)
	}
	return edges, nil
}

// Outgoing returns the links starting at n, ordered by link creation.
func (s *Store) Outgoing(ctx context.Context, n *graph.Node) ([]Edge, error) {
	edges, err := loadEdges(ctx, s.db, `
		SELECT target_pk, type, label FROM links
		WHERE source_pk = ?
		ORDER BY pk ASC
	`, n.PK)
	if err != nil {
		return nil, fmt.Errorf("outgoing links of %s: %w", n.UUID, err)
	}
	return edges, nil
}

// Comments returns the comments attached to n in creation order.
func (s *Store) Comments(ctx context.Context, n *graph.Node) ([]graph.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, content FROM comments
		WHERE node_pk = ?
		ORDER BY pk ASC
	`, n.PK)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []graph.Comment{}
	for rows.Next() {
		c := graph.Comment{Node: n.UUID}
		if err := rows.Scan(&c.UUID, &c.Content); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// loadNodes reads matching nodes and then their repository files.
// Rows are fully drained before the second query; the store has a single
// connection.
func loadNodes(ctx context.Context, q querier, where string, args ...any) ([]*graph.Node, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE `+where+` ORDER BY pk ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}

	var nodes []*graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	rows.Close()

	for _, n := range nodes {
		if err := loadRepository(ctx, q, n); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func loadNodeByPK(ctx context.Context, q querier, pk int64) (*graph.Node, error) {
	nodes, err := loadNodes(ctx, q, "pk = ?", pk)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("node pk %d: %w", pk, ErrNotFound)
	}
	return nodes[0], nil
}

func scanNode(rows *sql.Rows) (*graph.Node, error) {
	var (
		n                              graph.Node
		kind, attrs, updatable, extras string
	)
	if err := rows.Scan(
		&n.PK,
		&n.UUID,
		&kind,
		&n.TypeName,
		&n.Label,
		&attrs,
		&updatable,
		&extras,
		&n.Environment,
		&n.ProcessType,
		&n.Hash,
	); err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}

	var err error
	if n.Kind, err = graph.ParseKind(kind); err != nil {
		return nil, fmt.Errorf("node %s: %w", n.UUID, err)
	}
	if n.Attributes, err = unmarshalObject(attrs); err != nil {
		return nil, fmt.Errorf("node %s attributes: %w", n.UUID, err)
	}
	if n.Updatable, err = unmarshalKeys(updatable); err != nil {
		return nil, fmt.Errorf("node %s updatable: %w", n.UUID, err)
	}
	if n.Extras, err = unmarshalObject(extras); err != nil {
		return nil, fmt.Errorf("node %s extras: %w", n.UUID, err)
	}
	return &n, nil
}

func loadRepository(ctx context.Context, q querier, n *graph.Node) error {
	rows, err := q.QueryContext(ctx, `
		SELECT name, content FROM repository_files
		WHERE node_pk = ?
		ORDER BY name ASC
	`, n.PK)
	if err != nil {
		return fmt.Errorf("query repository of %s: %w", n.UUID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name    string
			content []byte
		)
		if err := rows.Scan(&name, &content); err != nil {
			return fmt.Errorf("scan repository file: %w", err)
		}
		if n.Repository == nil {
			n.Repository = make(map[string][]byte)
		}
		n.Repository[name] = content
	}
	return rows.Err()
}

// loadEdges runs an edge query returning (far-end pk, type, label) rows and
// resolves the far ends.
func loadEdges(ctx context.Context, q querier, query string, pk int64) ([]Edge, error) {
	type rawEdge struct {
		pk    int64
		typ   string
		label string
	}

	rows, err := q.QueryContext(ctx, query, pk)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	var raw []rawEdge
	for rows.Next() {
		var r rawEdge
		if err := rows.Scan(&r.pk, &r.typ, &r.label); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan link: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	rows.Close()

	edges := make([]Edge, 0, len(raw))
	for _, r := range raw {
		typ, err := graph.ParseLinkType(r.typ)
		if err != nil {
			return nil, err
		}
		n, err := loadNodeByPK(ctx, q, r.pk)
		if err != nil {
			return nil, err
		}
		edges = append(edges, Edge{Node: n, Type: typ, Label: r.label})
	}
	return edges, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
