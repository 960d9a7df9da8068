package graph

import (
	"maps"
	"slices"

	"github.com/roach88/provreplay/internal/ir"
)

// Attribute keys with meaning to the runtime.
const (
	AttrVersion      = "version"
	AttrInputPlugin  = "input_plugin"
	AttrProcessState = "process_state"
	AttrExitStatus   = "exit_status"
	AttrExitMessage  = "exit_message"
	AttrSealed       = "sealed"
)

// Process states recorded under AttrProcessState.
const (
	StateCreated  = "created"
	StateRunning  = "running"
	StateFinished = "finished"
	StateExcepted = "excepted"
)

// ProcessUpdatable lists the attributes of process records that may change
// after the record is stored. They never contribute to identity.
var ProcessUpdatable = []string{
	AttrExitMessage,
	AttrExitStatus,
	AttrProcessState,
	AttrSealed,
}

// Node is one vertex of the provenance graph.
type Node struct {
	UUID        string            `json:"uuid"`
	PK          int64             `json:"-"`
	Kind        Kind              `json:"kind"`
	TypeName    string            `json:"type_name"`
	Label       string            `json:"label,omitempty"`
	Attributes  ir.IRObject       `json:"attributes"`
	Updatable   []string          `json:"updatable,omitempty"`
	Extras      ir.IRObject       `json:"extras,omitempty"`
	Repository  map[string][]byte `json:"-"`
	Environment string            `json:"environment,omitempty"`
	ProcessType string            `json:"process_type,omitempty"`
	Hash        string            `json:"hash,omitempty"`
}

// New creates an unstored node. Process kinds get ProcessUpdatable.
func New(kind Kind, typeName string, attrs ir.IRObject) *Node {
	if attrs == nil {
		attrs = ir.IRObject{}
	}
	n := &Node{
		Kind:       kind,
		TypeName:   typeName,
		Attributes: attrs,
		Extras:     ir.IRObject{},
	}
	if kind.IsProcess() {
		n.Updatable = slices.Clone(ProcessUpdatable)
	}
	return n
}

// NewCode creates an unstored code node for inputPlugin running in the
// given environment.
func NewCode(label, inputPlugin, environment, executable string) *Node {
	n := New(KindCode, "core.code", ir.IRObject{
		AttrInputPlugin: ir.IRString(inputPlugin),
		"executable":    ir.IRString(executable),
	})
	n.Label = label
	n.Environment = environment
	return n
}

// Stored reports whether the node has been persisted.
func (n *Node) Stored() bool {
	return n.PK != 0
}

// IsUpdatable reports whether key may change after storage.
func (n *Node) IsUpdatable(key string) bool {
	return slices.Contains(n.Updatable, key)
}

// Finished reports whether a process record finished with exit status 0.
func (n *Node) Finished() bool {
	state, _ := n.Attributes[AttrProcessState].(ir.IRString)
	status, _ := n.Attributes[AttrExitStatus].(ir.IRInt)
	return string(state) == StateFinished && status == 0
}

// Copy returns an unstored deep copy of n with no UUID, hash or extras.
// Used to clone cached outputs.
func (n *Node) Copy() *Node {
	return &Node{
		Kind:        n.Kind,
		TypeName:    n.TypeName,
		Label:       n.Label,
		Attributes:  n.Attributes.Clone(),
		Updatable:   slices.Clone(n.Updatable),
		Extras:      ir.IRObject{},
		Repository:  cloneRepository(n.Repository),
		Environment: n.Environment,
		ProcessType: n.ProcessType,
	}
}

func cloneRepository(files map[string][]byte) map[string][]byte {
	if files == nil {
		return nil
	}
	out := maps.Clone(files)
	for name, content := range out {
		out[name] = slices.Clone(content)
	}
	return out
}
