package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
)

// ExtraCachedFrom is the extra set on a record that was served from the
// cache. Its value is the UUID of the source record.
const ExtraCachedFrom = "_replay_cached_from"

// callLabel labels call links from a workflow to its children.
const callLabel = "CALL"

// Request maps input labels to values. Nested maps become dot-joined
// labels. The "metadata" entry is not an input: its "label" sets the record
// label, its "options" entries and any other entries become attributes.
type Request = map[string]any

// Outputs maps output labels to nodes.
type Outputs map[string]*graph.Node

// Process is anything the engine can run. ProcessType is the entry point
// name recorded on the process record; caching is scoped by it.
type Process interface {
	ProcessType() string
}

// Calculation is a process that produces new data from its inputs.
// Returned output nodes must be unstored.
type Calculation interface {
	Process
	Run(ctx context.Context, call *Call) (Outputs, error)
}

// Workflow is a process that orchestrates child processes through r and
// returns already stored nodes.
type Workflow interface {
	Process
	Run(ctx context.Context, call *Call, r *Runner) (Outputs, error)
}

// Call is what a running process sees of itself.
type Call struct {
	Record *graph.Node
	Inputs map[string]*graph.Node
}

// Input returns the input node with the given label.
func (c *Call) Input(label string) (*graph.Node, error) {
	n, ok := c.Inputs[label]
	if !ok {
		return nil, fmt.Errorf("missing input %q", label)
	}
	return n, nil
}

// Option returns a record attribute set through request metadata.
func (c *Call) Option(key string) (ir.IRValue, bool) {
	v, ok := c.Record.Attributes[key]
	return v, ok
}

// Engine runs processes against a graph store.
type Engine struct {
	store    *store.Store
	logger   *slog.Logger
	maxCalls int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxCalls sets the maximum number of child submissions per top-level
// run. Default: DefaultMaxCalls.
func WithMaxCalls(maxCalls int) EngineOption {
	return func(e *Engine) {
		e.maxCalls = maxCalls
	}
}

// New creates an Engine writing to s.
func New(s *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    s,
		logger:   slog.Default(),
		maxCalls: DefaultMaxCalls,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the store the engine writes to.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Run executes proc on request and returns its outputs and its process
// record. The record is returned whenever it was stored, even on error.
//
// If the CachingScope in ctx enables proc's process type and the store
// holds a finished calculation record with the same hash, proc is not run:
// that record's created outputs are cloned onto the new record instead.
func (e *Engine) Run(ctx context.Context, proc Process, request Request) (Outputs, *graph.Node, error) {
	return e.run(ctx, proc, request, nil, NewQuotaEnforcer(e.maxCalls))
}

func (e *Engine) run(ctx context.Context, proc Process, request Request, parent *graph.Node, quota *QuotaEnforcer) (Outputs, *graph.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("context cancelled: %w", err)
	}

	kind, err := processKind(proc)
	if err != nil {
		return nil, nil, err
	}

	record, inputs, err := e.prepare(ctx, proc, kind, request)
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.StoreNode(ctx, record, inputs.edges(kind)...); err != nil {
		return nil, nil, fmt.Errorf("store %s record: %w", proc.ProcessType(), err)
	}
	if parent != nil {
		linkType := graph.LinkCallCalc
		if kind == graph.KindWorkflow {
			linkType = graph.LinkCallWork
		}
		if err := e.store.Link(ctx, parent, record, linkType, callLabel); err != nil {
			return nil, record, err
		}
	}

	logger := e.logger.With("process_type", proc.ProcessType(), "record", record.UUID)

	if kind == graph.KindCalcJob && CachingFrom(ctx).Enabled(proc.ProcessType()) {
		source, err := e.store.FindCacheSource(ctx, record)
		if err != nil {
			return nil, record, err
		}
		if source != nil {
			logger.Info("using cached record", "source", source.UUID, "hash", record.Hash)
			outputs, err := e.replayFrom(ctx, record, source)
			if err != nil {
				return nil, record, fmt.Errorf("clone cached outputs of %s: %w", source.UUID, err)
			}
			return outputs, record, nil
		}
		logger.Debug("no cache source", "hash", record.Hash)
	}

	if err := e.store.SetAttribute(ctx, record, graph.AttrProcessState, ir.IRString(graph.StateRunning)); err != nil {
		return nil, record, err
	}

	call := &Call{Record: record, Inputs: inputs.nodes}
	var outputs Outputs
	switch p := proc.(type) {
	case Calculation:
		outputs, err = p.Run(ctx, call)
	case Workflow:
		outputs, err = p.Run(ctx, call, &Runner{engine: e, parent: record, quota: quota})
	}

	if err != nil {
		var exit *ExitCode
		switch {
		case !errors.As(err, &exit):
			return nil, record, e.except(ctx, record, err)
		case exit.Status != 0:
			if ferr := e.finish(ctx, record, exit.Status, exit.Message); ferr != nil {
				return nil, record, ferr
			}
			logger.Warn("process failed", "exit_status", exit.Status, "message", exit.Message)
			return nil, record, NewProcessFailedError(proc.ProcessType(), record.UUID, exit)
		}
	}

	if err := e.attachOutputs(ctx, proc, record, outputs); err != nil {
		return nil, record, e.except(ctx, record, err)
	}
	if err := e.finish(ctx, record, 0, ""); err != nil {
		return nil, record, err
	}
	logger.Debug("process finished", "outputs", len(outputs))
	return outputs, record, nil
}

func processKind(proc Process) (graph.Kind, error) {
	switch proc.(type) {
	case Calculation:
		return graph.KindCalcJob, nil
	case Workflow:
		return graph.KindWorkflow, nil
	}
	processType := ""
	if proc != nil {
		processType = proc.ProcessType()
	}
	return "", &RuntimeError{
		Code:        ErrCodeInvalidProcess,
		Message:     fmt.Sprintf("%T is neither a calculation nor a workflow", proc),
		ProcessType: processType,
	}
}

// replayFrom clones the created outputs of source onto record and marks
// record as finished.
func (e *Engine) replayFrom(ctx context.Context, record, source *graph.Node) (Outputs, error) {
	edges, err := e.store.Outgoing(ctx, source)
	if err != nil {
		return nil, err
	}

	outputs := make(Outputs)
	for _, edge := range edges {
		if edge.Type != graph.LinkCreate {
			continue
		}
		clone := edge.Node.Copy()
		if err := e.store.StoreNode(ctx, clone); err != nil {
			return nil, err
		}
		if err := e.store.Link(ctx, record, clone, graph.LinkCreate, edge.Label); err != nil {
			return nil, err
		}
		outputs[edge.Label] = clone
	}

	if err := e.store.SetExtra(ctx, record, ExtraCachedFrom, ir.IRString(source.UUID)); err != nil {
		return nil, err
	}
	return outputs, e.finish(ctx, record, 0, "")
}

// attachOutputs stores calculation outputs and links outputs to record in
// label order.
func (e *Engine) attachOutputs(ctx context.Context, proc Process, record *graph.Node, outputs Outputs) error {
	linkType := graph.LinkCreate
	if record.Kind == graph.KindWorkflow {
		linkType = graph.LinkReturn
	}

	labels := make([]string, 0, len(outputs))
	for label := range outputs {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	for _, label := range labels {
		n := outputs[label]
		switch {
		case n == nil:
			return newOutputError(proc.ProcessType(), record.UUID, label, "nil node")
		case n.Kind.IsProcess():
			return newOutputError(proc.ProcessType(), record.UUID, label, "process records cannot be outputs")
		case linkType == graph.LinkCreate && n.Stored():
			return newOutputError(proc.ProcessType(), record.UUID, label, "calculation outputs must be new nodes")
		case linkType == graph.LinkReturn && !n.Stored():
			return newOutputError(proc.ProcessType(), record.UUID, label, "workflow outputs must already be stored")
		}

		if !n.Stored() {
			if err := e.store.StoreNode(ctx, n); err != nil {
				return fmt.Errorf("store output %q: %w", label, err)
			}
		}
		if err := e.store.Link(ctx, record, n, linkType, label); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, record *graph.Node, status int, message string) error {
	if message != "" {
		if err := e.store.SetAttribute(ctx, record, graph.AttrExitMessage, ir.IRString(message)); err != nil {
			return err
		}
	}
	if err := e.store.SetAttribute(ctx, record, graph.AttrExitStatus, ir.IRInt(status)); err != nil {
		return err
	}
	if err := e.store.SetAttribute(ctx, record, graph.AttrProcessState, ir.IRString(graph.StateFinished)); err != nil {
		return err
	}
	return e.store.SetAttribute(ctx, record, graph.AttrSealed, ir.IRBool(true))
}

// except records cause on record and returns it, wrapped with the record.
func (e *Engine) except(ctx context.Context, record *graph.Node, cause error) error {
	e.logger.Error("process excepted",
		"process_type", record.ProcessType,
		"record", record.UUID,
		"error", cause,
	)
	for _, kv := range []struct {
		key   string
		value ir.IRValue
	}{
		{graph.AttrExitMessage, ir.IRString(cause.Error())},
		{graph.AttrProcessState, ir.IRString(graph.StateExcepted)},
		{graph.AttrSealed, ir.IRBool(true)},
	} {
		if err := e.store.SetAttribute(ctx, record, kv.key, kv.value); err != nil {
			return errors.Join(cause, err)
		}
	}
	return fmt.Errorf("%s %s: %w", record.ProcessType, record.UUID, cause)
}
