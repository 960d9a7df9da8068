package engine

import (
	"context"

	"github.com/roach88/provreplay/internal/graph"
)

// Runner submits child processes on behalf of a running workflow. Children
// are linked to the workflow record and run synchronously.
type Runner struct {
	engine *Engine
	parent *graph.Node
	quota  *QuotaEnforcer
}

// Submit runs proc as a child of the workflow and returns its outputs and
// record. The caching scope of ctx applies to the child.
func (r *Runner) Submit(ctx context.Context, proc Process, request Request) (Outputs, *graph.Node, error) {
	if err := r.quota.Check(r.parent.UUID); err != nil {
		return nil, nil, err
	}
	return r.engine.run(ctx, proc, request, r.parent, r.quota)
}
