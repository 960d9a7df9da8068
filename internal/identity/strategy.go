package identity

import (
	"fmt"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
)

// Input is one incoming link of a process record, resolved to the hash of
// the node on its source end.
type Input struct {
	Label string
	Type  graph.LinkType
	Hash  string
}

// Strategy returns the objects whose canonical form is a node's identity.
// inputs are the incoming links of n and are only consulted for process
// records.
type Strategy interface {
	Objects(n *graph.Node, inputs []Input) (ir.IRArray, error)
}

// Hash computes the identity hash of n under s.
func Hash(s Strategy, n *graph.Node, inputs []Input) (string, error) {
	objects, err := s.Objects(n, inputs)
	if err != nil {
		return "", fmt.Errorf("identity objects for %s %s: %w", n.Kind, n.UUID, err)
	}
	h, err := ir.NodeHash(objects)
	if err != nil {
		return "", fmt.Errorf("hash %s %s: %w", n.Kind, n.UUID, err)
	}
	return h, nil
}

// Default is the stock identity: every non-updatable attribute (version
// stamp included), the repository content, the execution environment and,
// for calcjobs, every input.
type Default struct{}

// Objects implements Strategy.
func (Default) Objects(n *graph.Node, inputs []Input) (ir.IRArray, error) {
	objects := ir.IRArray{
		ir.IRString(n.Kind),
		ir.IRString(n.TypeName),
		n.Attributes.Without(n.IsUpdatable),
		ir.IRString(ir.RepositoryHash(n.Repository)),
		ir.IRString(n.Environment),
	}
	if n.Kind == graph.KindCalcJob {
		objects = append(objects, inputMap(inputs, func(string) bool { return false }))
	}
	return objects, nil
}

// Liberal narrows identity for code, calcjob and builtin data nodes.
// Workflows and plugin data keep Default identity.
type Liberal struct {
	cfg Config
}

// NewLiberal creates a Liberal strategy over an immutable config.
func NewLiberal(cfg Config) Liberal {
	return Liberal{cfg: cfg}
}

// Config returns the ignore configuration.
func (l Liberal) Config() Config {
	return l.cfg
}

// Objects implements Strategy.
func (l Liberal) Objects(n *graph.Node, inputs []Input) (ir.IRArray, error) {
	switch n.Kind {
	case graph.KindCode:
		// Imported code gets a new environment; only the plugin matters.
		plugin, ok := n.Attributes[graph.AttrInputPlugin]
		if !ok {
			return nil, fmt.Errorf("code node has no %q attribute", graph.AttrInputPlugin)
		}
		return ir.IRArray{plugin}, nil

	case graph.KindCalcJob:
		attrs := n.Attributes.Without(func(key string) bool {
			return key == graph.AttrVersion || l.cfg.ignoresCalcJobAttribute(key) || n.IsUpdatable(key)
		})
		return ir.IRArray{attrs, inputMap(inputs, l.cfg.ignoresInput)}, nil

	case graph.KindData, graph.KindSingleFile, graph.KindList, graph.KindFolder, graph.KindRemote:
		attrs := n.Attributes.Without(func(key string) bool {
			return key == graph.AttrVersion || l.cfg.ignoresNodeAttribute(n.TypeName, key) || n.IsUpdatable(key)
		})
		return ir.IRArray{attrs, ir.IRString(ir.RepositoryHash(n.Repository))}, nil

	case graph.KindWorkflow, graph.KindPlugin:
		return Default{}.Objects(n, inputs)

	default:
		return nil, fmt.Errorf("unknown node kind %q", n.Kind)
	}
}

// inputMap maps input link labels to source hashes, skipping non-input
// links and labels for which ignore reports true.
func inputMap(inputs []Input, ignore func(label string) bool) ir.IRObject {
	out := ir.IRObject{}
	for _, in := range inputs {
		if !in.Type.IsInput() || ignore(in.Label) {
			continue
		}
		out[in.Label] = ir.IRString(in.Hash)
	}
	return out
}
