package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/provreplay/internal/graph"
)

// Closure returns roots plus everything needed to make them self-contained:
//   - a process pulls in its inputs, its outputs and the processes it called
//   - a data node pulls in the calculation that created it
//
// Data nodes are not followed forward into processes that consumed them.
// Nodes, links and comments are ordered by PK.
func (s *Store) Closure(ctx context.Context, roots []*graph.Node) (graph.Subgraph, error) {
	visited := make(map[int64]bool)
	var queue []int64
	for _, r := range roots {
		if !r.Stored() {
			return graph.Subgraph{}, fmt.Errorf("closure: root %q: %w", r.UUID, ErrNotStored)
		}
		if !visited[r.PK] {
			visited[r.PK] = true
			queue = append(queue, r.PK)
		}
	}

	for len(queue) > 0 {
		pk := queue[0]
		queue = queue[1:]

		next, err := s.closureNeighbours(ctx, pk)
		if err != nil {
			return graph.Subgraph{}, fmt.Errorf("closure: %w", err)
		}
		for _, n := range next {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}

	pks := make([]any, 0, len(visited))
	sorted := make([]int64, 0, len(visited))
	for pk := range visited {
		sorted = append(sorted, pk)
	}
	slices.Sort(sorted)
	for _, pk := range sorted {
		pks = append(pks, pk)
	}
	return s.subgraph(ctx, pks)
}

// closureNeighbours returns the PKs the closure follows from pk.
func (s *Store) closureNeighbours(ctx context.Context, pk int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_pk, target_pk, type FROM links
		WHERE source_pk = ? OR target_pk = ?
		ORDER BY pk ASC
	`, pk, pk)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var next []int64
	for rows.Next() {
		var (
			source, target int64
			typ            string
		)
		if err := rows.Scan(&source, &target, &typ); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		lt := graph.LinkType(typ)
		switch {
		case target == pk && (lt.IsInput() || lt == graph.LinkCreate):
			next = append(next, source)
		case source == pk && lt != graph.LinkInputCalc && lt != graph.LinkInputWork:
			next = append(next, target)
		}
	}
	return next, rows.Err()
}

// subgraph loads the given nodes with the links among them and their comments.
func (s *Store) subgraph(ctx context.Context, pks []any) (graph.Subgraph, error) {
	if len(pks) == 0 {
		return graph.Subgraph{Nodes: []*graph.Node{}}, nil
	}
	in := "(" + placeholders(len(pks)) + ")"

	nodes, err := loadNodes(ctx, s.db, "pk IN "+in, pks...)
	if err != nil {
		return graph.Subgraph{}, fmt.Errorf("closure nodes: %w", err)
	}

	args := append(slices.Clone(pks), pks...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT src.uuid, dst.uuid, l.type, l.label
		FROM links l
		JOIN nodes src ON src.pk = l.source_pk
		JOIN nodes dst ON dst.pk = l.target_pk
		WHERE l.source_pk IN `+in+` AND l.target_pk IN `+in+`
		ORDER BY l.pk ASC
	`, args...)
	if err != nil {
		return graph.Subgraph{}, fmt.Errorf("closure links: %w", err)
	}
	var links []graph.Link
	for rows.Next() {
		var (
			l   graph.Link
			typ string
		)
		if err := rows.Scan(&l.Source, &l.Target, &typ, &l.Label); err != nil {
			rows.Close()
			return graph.Subgraph{}, fmt.Errorf("scan link: %w", err)
		}
		l.Type = graph.LinkType(typ)
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return graph.Subgraph{}, fmt.Errorf("iterate links: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT c.uuid, n.uuid, c.content
		FROM comments c
		JOIN nodes n ON n.pk = c.node_pk
		WHERE c.node_pk IN `+in+`
		ORDER BY c.pk ASC
	`, pks...)
	if err != nil {
		return graph.Subgraph{}, fmt.Errorf("closure comments: %w", err)
	}
	defer rows.Close()
	var comments []graph.Comment
	for rows.Next() {
		var c graph.Comment
		if err := rows.Scan(&c.UUID, &c.Node, &c.Content); err != nil {
			return graph.Subgraph{}, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return graph.Subgraph{}, fmt.Errorf("iterate comments: %w", err)
	}

	return graph.Subgraph{Nodes: nodes, Links: links, Comments: comments}, nil
}
