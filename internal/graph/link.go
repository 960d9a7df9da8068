package graph

import "fmt"

// LinkType is the role of a directed link between two nodes.
type LinkType string

const (
	// LinkInputCalc links a data node into a calculation as an input.
	LinkInputCalc LinkType = "input_calc"

	// LinkInputWork links a data node into a workflow as an input.
	LinkInputWork LinkType = "input_work"

	// LinkCreate links a calculation to a data node it created.
	LinkCreate LinkType = "create"

	// LinkReturn links a workflow to a data node it returned.
	LinkReturn LinkType = "return"

	// LinkCallCalc links a workflow to a calculation it called.
	LinkCallCalc LinkType = "call_calc"

	// LinkCallWork links a workflow to a sub-workflow it called.
	LinkCallWork LinkType = "call_work"
)

// Valid reports whether t is a known link type.
func (t LinkType) Valid() bool {
	switch t {
	case LinkInputCalc, LinkInputWork, LinkCreate, LinkReturn, LinkCallCalc, LinkCallWork:
		return true
	}
	return false
}

// IsInput reports whether t carries a process input.
func (t LinkType) IsInput() bool {
	return t == LinkInputCalc || t == LinkInputWork
}

// IsOutput reports whether t carries a process output.
func (t LinkType) IsOutput() bool {
	return t == LinkCreate || t == LinkReturn
}

// ParseLinkType validates s as a LinkType.
func ParseLinkType(s string) (LinkType, error) {
	t := LinkType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown link type %q", s)
	}
	return t, nil
}

// Link is a directed, labelled edge between two nodes identified by UUID.
type Link struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   LinkType `json:"type"`
	Label  string   `json:"label"`
}

// Comment is a free-text annotation attached to a node.
type Comment struct {
	UUID    string `json:"uuid"`
	Node    string `json:"node"`
	Content string `json:"content"`
}

// ValidateLink checks that a link of type t may join a source of kind
// source to a target of kind target.
func ValidateLink(source, target Kind, t LinkType) error {
	ok := false
	switch t {
	case LinkInputCalc:
		ok = !source.IsProcess() && target == KindCalcJob
	case LinkInputWork:
		ok = !source.IsProcess() && target == KindWorkflow
	case LinkCreate:
		ok = source == KindCalcJob && !target.IsProcess()
	case LinkReturn:
		ok = source == KindWorkflow && !target.IsProcess()
	case LinkCallCalc:
		ok = source == KindWorkflow && target == KindCalcJob
	case LinkCallWork:
		ok = source == KindWorkflow && target == KindWorkflow
	default:
		return fmt.Errorf("unknown link type %q", t)
	}
	if !ok {
		return fmt.Errorf("link %s not allowed from %s to %s", t, source, target)
	}
	return nil
}

// Subgraph is a self-contained slice of the provenance graph: nodes in
// storage order, the links among them and their comments.
type Subgraph struct {
	Nodes    []*Node
	Links    []Link
	Comments []Comment
}
