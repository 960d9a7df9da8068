package archive

import (
	"slices"

	"github.com/roach88/provreplay/internal/graph"
)

// Manifest is a human-readable summary of an archive. It leaves out
// attribute values and file contents.
type Manifest struct {
	ExportVersion string          `json:"export_version"`
	Creator       string          `json:"creator"`
	Roots         []string        `json:"roots"`
	Nodes         []ManifestNode  `json:"nodes"`
	Links         []graph.Link    `json:"links"`
	Comments      []graph.Comment `json:"comments"`
}

// ManifestNode summarizes one archived node.
type ManifestNode struct {
	UUID        string     `json:"uuid"`
	Kind        graph.Kind `json:"kind"`
	TypeName    string     `json:"type_name"`
	Label       string     `json:"label,omitempty"`
	ProcessType string     `json:"process_type,omitempty"`
	Attributes  []string   `json:"attributes"`
	Extras      []string   `json:"extras,omitempty"`
	Files       []string   `json:"files,omitempty"`
}

// NewManifest summarizes a decoded archive.
func NewManifest(a Archive) Manifest {
	m := Manifest{
		ExportVersion: a.Metadata.ExportVersion,
		Creator:       a.Metadata.Creator,
		Roots:         nonNil(a.Metadata.Roots),
		Nodes:         make([]ManifestNode, 0, len(a.Graph.Nodes)),
		Links:         nonNil(a.Graph.Links),
		Comments:      nonNil(a.Graph.Comments),
	}
	for _, n := range a.Graph.Nodes {
		files := make([]string, 0, len(n.Repository))
		for name := range n.Repository {
			files = append(files, name)
		}
		slices.Sort(files)

		m.Nodes = append(m.Nodes, ManifestNode{
			UUID:        n.UUID,
			Kind:        n.Kind,
			TypeName:    n.TypeName,
			Label:       n.Label,
			ProcessType: n.ProcessType,
			Attributes:  n.Attributes.SortedKeys(),
			Extras:      n.Extras.SortedKeys(),
			Files:       files,
		})
	}
	return m
}
