package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/roach88/provreplay/internal/fingerprint"
	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
)

// Request keys with special meaning.
const (
	metadataKey = "metadata"
	optionsKey  = "options"
	labelKey    = "label"
)

type preparedInputs struct {
	labels []string
	nodes  map[string]*graph.Node
}

func (p preparedInputs) edges(kind graph.Kind) []store.Edge {
	linkType := graph.LinkInputCalc
	if kind == graph.KindWorkflow {
		linkType = graph.LinkInputWork
	}
	edges := make([]store.Edge, 0, len(p.labels))
	for _, label := range p.labels {
		edges = append(edges, store.Edge{Node: p.nodes[label], Type: linkType, Label: label})
	}
	return edges
}

// prepare builds the unstored process record and stores every input.
func (e *Engine) prepare(ctx context.Context, proc Process, kind graph.Kind, request Request) (*graph.Node, preparedInputs, error) {
	record := graph.New(kind, "process."+string(kind), ir.IRObject{
		graph.AttrVersion:      ir.IRObject{"core": ir.IRString(ir.EngineVersion)},
		graph.AttrProcessState: ir.IRString(graph.StateCreated),
	})
	record.ProcessType = proc.ProcessType()

	if err := applyMetadata(record, request[metadataKey]); err != nil {
		return nil, preparedInputs{}, newInputError(proc.ProcessType(), metadataKey, err)
	}

	rest := maps.Clone(request)
	delete(rest, metadataKey)
	flat, err := fingerprint.Flatten(rest)
	if err != nil {
		return nil, preparedInputs{}, newInputError(proc.ProcessType(), "", err)
	}

	inputs := preparedInputs{
		labels: slices.Sorted(maps.Keys(flat)),
		nodes:  make(map[string]*graph.Node, len(flat)),
	}
	for _, label := range inputs.labels {
		n, err := toInputNode(flat[label])
		if err != nil {
			return nil, preparedInputs{}, newInputError(proc.ProcessType(), label, err)
		}
		if !n.Stored() {
			if err := e.store.StoreNode(ctx, n); err != nil {
				return nil, preparedInputs{}, fmt.Errorf("store input %q: %w", label, err)
			}
		}
		if n.Kind == graph.KindCode && record.Environment == "" {
			record.Environment = n.Environment
		}
		inputs.nodes[label] = n
	}
	return record, inputs, nil
}

// applyMetadata copies request metadata onto the record.
func applyMetadata(record *graph.Node, raw any) error {
	if raw == nil {
		return nil
	}
	value, err := ir.FromGo(raw)
	if err != nil {
		return err
	}
	metadata, ok := value.(ir.IRObject)
	if !ok {
		return fmt.Errorf("metadata must be a mapping, got %T", raw)
	}

	for _, key := range metadata.SortedKeys() {
		v := metadata[key]
		switch key {
		case labelKey:
			label, ok := v.(ir.IRString)
			if !ok {
				return fmt.Errorf("metadata label must be a string")
			}
			record.Label = string(label)
		case optionsKey:
			options, ok := v.(ir.IRObject)
			if !ok {
				return fmt.Errorf("metadata options must be a mapping")
			}
			for k, opt := range options {
				record.Attributes[k] = opt
			}
		default:
			record.Attributes[key] = v
		}
	}
	return nil
}

// toInputNode returns v itself if it is a node, otherwise v wrapped in a
// new data node.
func toInputNode(v any) (*graph.Node, error) {
	if n, ok := v.(*graph.Node); ok {
		if n == nil {
			return nil, errors.New("nil node")
		}
		if n.Kind.IsProcess() {
			return nil, fmt.Errorf("%s records cannot be inputs", n.Kind)
		}
		return n, nil
	}

	value, err := ir.FromGo(v)
	if err != nil {
		return nil, err
	}
	switch val := value.(type) {
	case ir.IRObject:
		return graph.New(graph.KindData, "core.dict", val.Clone()), nil
	case ir.IRArray:
		return graph.New(graph.KindList, "core.list", ir.IRObject{"list": val}), nil
	case ir.IRString:
		return graph.New(graph.KindData, "core.str", ir.IRObject{"value": val}), nil
	case ir.IRInt:
		return graph.New(graph.KindData, "core.int", ir.IRObject{"value": val}), nil
	case ir.IRFloat:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("non-finite float %v", v)
		}
		return graph.New(graph.KindData, "core.float", ir.IRObject{"value": val}), nil
	case ir.IRBool:
		return graph.New(graph.KindData, "core.bool", ir.IRObject{"value": val}), nil
	default:
		return nil, fmt.Errorf("cannot wrap %T as data", v)
	}
}
