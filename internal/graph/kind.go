package graph

import "fmt"

// Kind is the closed set of node kinds. Identity strategies switch over it.
type Kind string

const (
	// KindData is ordinary structured data (a dict of values).
	KindData Kind = "data"

	// KindCode is a reference to an executable in some environment.
	KindCode Kind = "code"

	// KindCalcJob is the record of one external calculation.
	KindCalcJob Kind = "calcjob"

	// KindSingleFile is data backed by one repository file.
	KindSingleFile Kind = "singlefile"

	// KindList is a list of values.
	KindList Kind = "list"

	// KindFolder is data backed by a folder of repository files.
	KindFolder Kind = "folder"

	// KindRemote points at a location on a remote environment.
	KindRemote Kind = "remote"

	// KindWorkflow is the record of a workflow that calls other processes.
	KindWorkflow Kind = "workflow"

	// KindPlugin is data defined by a plugin rather than the core set.
	KindPlugin Kind = "plugin"
)

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindData, KindCode, KindCalcJob, KindSingleFile, KindList,
		KindFolder, KindRemote, KindWorkflow, KindPlugin,
	}
}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown node kind %q", s)
	}
	return k, nil
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindData, KindCode, KindCalcJob, KindSingleFile, KindList,
		KindFolder, KindRemote, KindWorkflow, KindPlugin:
		return true
	}
	return false
}

// IsProcess reports whether k records a process execution.
func (k Kind) IsProcess() bool {
	return k == KindCalcJob || k == KindWorkflow
}

// IsBuiltinData reports whether k is one of the core data kinds.
// Plugin data is deliberately excluded.
func (k Kind) IsBuiltinData() bool {
	switch k {
	case KindData, KindSingleFile, KindList, KindFolder, KindRemote:
		return true
	}
	return false
}
