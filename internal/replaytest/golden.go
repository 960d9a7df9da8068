package replaytest

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provreplay/internal/archive"
	"github.com/roach88/provreplay/internal/ir"
)

// Snapshot returns the manifest of the archive at path as canonical JSON.
// Attribute and extra values are left out, so the snapshot only changes
// when the shape of the provenance changes.
func Snapshot(path string) ([]byte, error) {
	m, err := archive.Inspect(path)
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(manifestObject(m))
}

// manifestObject converts a manifest for ir.MarshalCanonical, which only
// handles IR types and primitives.
func manifestObject(m archive.Manifest) ir.IRObject {
	nodes := make(ir.IRArray, len(m.Nodes))
	for i, n := range m.Nodes {
		node := ir.IRObject{
			"uuid":       ir.IRString(n.UUID),
			"kind":       ir.IRString(n.Kind),
			"type_name":  ir.IRString(n.TypeName),
			"attributes": stringArray(n.Attributes),
			"extras":     stringArray(n.Extras),
			"files":      stringArray(n.Files),
		}
		if n.Label != "" {
			node["label"] = ir.IRString(n.Label)
		}
		if n.ProcessType != "" {
			node["process_type"] = ir.IRString(n.ProcessType)
		}
		nodes[i] = node
	}

	links := make(ir.IRArray, len(m.Links))
	for i, l := range m.Links {
		links[i] = ir.IRObject{
			"source": ir.IRString(l.Source),
			"target": ir.IRString(l.Target),
			"type":   ir.IRString(l.Type),
			"label":  ir.IRString(l.Label),
		}
	}

	comments := make(ir.IRArray, len(m.Comments))
	for i, c := range m.Comments {
		comments[i] = ir.IRObject{
			"uuid":    ir.IRString(c.UUID),
			"node":    ir.IRString(c.Node),
			"content": ir.IRString(c.Content),
		}
	}

	return ir.IRObject{
		"export_version": ir.IRString(m.ExportVersion),
		"roots":          stringArray(m.Roots),
		"nodes":          nodes,
		"links":          links,
		"comments":       comments,
	}
}

func stringArray(values []string) ir.IRArray {
	arr := make(ir.IRArray, len(values))
	for i, v := range values {
		arr[i] = ir.IRString(v)
	}
	return arr
}

// AssertArchiveGolden compares the snapshot of the archive at path with
// testdata/golden/{name}.golden. opts are passed to goldie after the
// defaults, so a test may move the fixture directory.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func AssertArchiveGolden(t *testing.T, name, path string, opts ...goldie.Option) {
	t.Helper()

	snapshot, err := Snapshot(path)
	require.NoError(t, err, "snapshot %s", path)

	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, name, snapshot)
}
