package archive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
)

type nodeRecordV1 struct {
	UUID        string      `json:"uuid"`
	NodeType    string      `json:"node_type"`
	Label       string      `json:"label"`
	Attributes  ir.IRObject `json:"attributes"`
	Updatable   []string    `json:"updatable"`
	Environment string      `json:"environment"`
	ProcessType string      `json:"process_type"`
	Hash        string      `json:"hash"`
	Files       []string    `json:"files"`
}

type dataRecordV1 struct {
	Nodes []nodeRecordV1 `json:"nodes"`
	Links []graph.Link   `json:"links"`
}

// migrateV1 converts a version 1 data.json: "kind:type" is split and empty
// extras and comments are added.
func migrateV1(raw []byte) (dataRecord, error) {
	var old dataRecordV1
	if err := json.Unmarshal(raw, &old); err != nil {
		return dataRecord{}, fmt.Errorf("decode %s: %w", dataEntry, err)
	}

	data := dataRecord{
		Nodes:    make([]nodeRecord, 0, len(old.Nodes)),
		Links:    nonNil(old.Links),
		Comments: []graph.Comment{},
	}
	for _, n := range old.Nodes {
		kind, typeName, ok := strings.Cut(n.NodeType, ":")
		if !ok {
			return dataRecord{}, fmt.Errorf("node %s: malformed node_type %q", n.UUID, n.NodeType)
		}
		data.Nodes = append(data.Nodes, nodeRecord{
			UUID:        n.UUID,
			Kind:        graph.Kind(kind),
			TypeName:    typeName,
			Label:       n.Label,
			Attributes:  n.Attributes,
			Updatable:   n.Updatable,
			Extras:      ir.IRObject{},
			Environment: n.Environment,
			ProcessType: n.ProcessType,
			Hash:        n.Hash,
			Files:       n.Files,
		})
	}
	return data, nil
}
