package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
)

// Export versions.
const (
	// CurrentVersion is written by Encode.
	CurrentVersion = "2"

	// version1 archives carried no extras and no comments and encoded the
	// node kind and type name as one "kind:type" field.
	version1 = "1"
)

const (
	metadataEntry = "metadata.json"
	dataEntry     = "data.json"
	repoPrefix    = "repo/"

	// maxEntrySize bounds a single decoded entry.
	maxEntrySize = 1 << 30
)

// Metadata is the content of metadata.json.
type Metadata struct {
	ExportVersion string   `json:"export_version"`
	Creator       string   `json:"creator"`
	Roots         []string `json:"roots"`
	Counts        Counts   `json:"counts"`
}

// Counts summarizes an archive's data.
type Counts struct {
	Nodes    int `json:"nodes"`
	Links    int `json:"links"`
	Comments int `json:"comments"`
	Files    int `json:"files"`
}

// Archive is a decoded archive.
type Archive struct {
	Metadata Metadata
	Graph    graph.Subgraph
}

type nodeRecord struct {
	UUID        string      `json:"uuid"`
	Kind        graph.Kind  `json:"kind"`
	TypeName    string      `json:"type_name"`
	Label       string      `json:"label"`
	Attributes  ir.IRObject `json:"attributes"`
	Updatable   []string    `json:"updatable"`
	Extras      ir.IRObject `json:"extras"`
	Environment string      `json:"environment"`
	ProcessType string      `json:"process_type"`
	Hash        string      `json:"hash"`
	Files       []string    `json:"files"`
}

type dataRecord struct {
	Nodes    []nodeRecord    `json:"nodes"`
	Links    []graph.Link    `json:"links"`
	Comments []graph.Comment `json:"comments"`
}

// Encode writes g as a current-version archive to w and returns the
// metadata it recorded.
func Encode(w io.Writer, g graph.Subgraph, roots []string, creator string) (Metadata, error) {
	data := dataRecord{
		Nodes:    make([]nodeRecord, 0, len(g.Nodes)),
		Links:    nonNil(g.Links),
		Comments: nonNil(g.Comments),
	}
	files := 0
	for _, n := range g.Nodes {
		names := make([]string, 0, len(n.Repository))
		for name := range n.Repository {
			names = append(names, name)
		}
		slices.Sort(names)
		files += len(names)

		data.Nodes = append(data.Nodes, nodeRecord{
			UUID:        n.UUID,
			Kind:        n.Kind,
			TypeName:    n.TypeName,
			Label:       n.Label,
			Attributes:  nonNilObject(n.Attributes),
			Updatable:   nonNil(n.Updatable),
			Extras:      nonNilObject(n.Extras),
			Environment: n.Environment,
			ProcessType: n.ProcessType,
			Hash:        n.Hash,
			Files:       names,
		})
	}

	meta := Metadata{
		ExportVersion: CurrentVersion,
		Creator:       creator,
		Roots:         nonNil(roots),
		Counts: Counts{
			Nodes:    len(data.Nodes),
			Links:    len(data.Links),
			Comments: len(data.Comments),
			Files:    files,
		},
	}

	gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return Metadata{}, fmt.Errorf("gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	if err := writeJSONEntry(tw, metadataEntry, meta); err != nil {
		return Metadata{}, err
	}
	if err := writeJSONEntry(tw, dataEntry, data); err != nil {
		return Metadata{}, err
	}
	for i, n := range g.Nodes {
		for _, name := range data.Nodes[i].Files {
			if err := writeEntry(tw, repoPrefix+n.UUID+"/"+name, n.Repository[name]); err != nil {
				return Metadata{}, err
			}
		}
	}

	if err := tw.Close(); err != nil {
		return Metadata{}, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return Metadata{}, fmt.Errorf("close gzip: %w", err)
	}
	return meta, nil
}

func writeJSONEntry(tw *tar.Writer, name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return writeEntry(tw, name, buf.Bytes())
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0),
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Decode reads an archive of any supported version. Older versions are
// converted to the current layout only when allowMigration is set;
// otherwise they fail with *IncompatibleVersionError (Path left empty).
func Decode(r io.Reader, allowMigration bool) (Archive, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return Archive{}, fmt.Errorf("not a gzip stream: %w", err)
	}
	defer gz.Close()

	var (
		metaRaw, dataRaw []byte
		files            = make(map[string]map[string][]byte)
	)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Archive{}, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > maxEntrySize {
			return Archive{}, fmt.Errorf("entry %s too large (%d bytes)", hdr.Name, hdr.Size)
		}
		content, err := io.ReadAll(io.LimitReader(tr, maxEntrySize))
		if err != nil {
			return Archive{}, fmt.Errorf("read %s: %w", hdr.Name, err)
		}

		switch {
		case hdr.Name == metadataEntry:
			metaRaw = content
		case hdr.Name == dataEntry:
			dataRaw = content
		case strings.HasPrefix(hdr.Name, repoPrefix):
			uuid, name, ok := strings.Cut(strings.TrimPrefix(hdr.Name, repoPrefix), "/")
			if !ok || uuid == "" || name == "" || path.Clean(name) != name || strings.HasPrefix(name, "../") {
				return Archive{}, fmt.Errorf("invalid repository entry %q", hdr.Name)
			}
			if files[uuid] == nil {
				files[uuid] = make(map[string][]byte)
			}
			files[uuid][name] = content
		default:
			return Archive{}, fmt.Errorf("unexpected entry %q", hdr.Name)
		}
	}

	if metaRaw == nil {
		return Archive{}, fmt.Errorf("missing %s", metadataEntry)
	}
	if dataRaw == nil {
		return Archive{}, fmt.Errorf("missing %s", dataEntry)
	}

	var meta Metadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return Archive{}, fmt.Errorf("decode %s: %w", metadataEntry, err)
	}

	var data dataRecord
	switch meta.ExportVersion {
	case CurrentVersion:
		if err := json.Unmarshal(dataRaw, &data); err != nil {
			return Archive{}, fmt.Errorf("decode %s: %w", dataEntry, err)
		}
	case version1:
		if !allowMigration {
			return Archive{}, &IncompatibleVersionError{Version: meta.ExportVersion}
		}
		if data, err = migrateV1(dataRaw); err != nil {
			return Archive{}, fmt.Errorf("migrate from version %s: %w", version1, err)
		}
		meta.ExportVersion = CurrentVersion
	default:
		return Archive{}, &IncompatibleVersionError{Version: meta.ExportVersion}
	}

	g, err := toSubgraph(data, files)
	if err != nil {
		return Archive{}, err
	}
	return Archive{Metadata: meta, Graph: g}, nil
}

// toSubgraph validates decoded records and attaches repository files.
func toSubgraph(data dataRecord, files map[string]map[string][]byte) (graph.Subgraph, error) {
	g := graph.Subgraph{
		Nodes:    make([]*graph.Node, 0, len(data.Nodes)),
		Links:    data.Links,
		Comments: data.Comments,
	}
	known := make(map[string]bool, len(data.Nodes))

	for _, rec := range data.Nodes {
		if rec.UUID == "" {
			return graph.Subgraph{}, fmt.Errorf("node without uuid")
		}
		if known[rec.UUID] {
			return graph.Subgraph{}, fmt.Errorf("duplicate node %s", rec.UUID)
		}
		if !rec.Kind.Valid() {
			return graph.Subgraph{}, fmt.Errorf("node %s: unknown kind %q", rec.UUID, rec.Kind)
		}
		known[rec.UUID] = true

		n := &graph.Node{
			UUID:        rec.UUID,
			Kind:        rec.Kind,
			TypeName:    rec.TypeName,
			Label:       rec.Label,
			Attributes:  nonNilObject(rec.Attributes),
			Updatable:   rec.Updatable,
			Extras:      nonNilObject(rec.Extras),
			Environment: rec.Environment,
			ProcessType: rec.ProcessType,
			Hash:        rec.Hash,
		}
		for _, name := range rec.Files {
			content, ok := files[rec.UUID][name]
			if !ok {
				return graph.Subgraph{}, fmt.Errorf("node %s: missing repository file %q", rec.UUID, name)
			}
			if n.Repository == nil {
				n.Repository = make(map[string][]byte, len(rec.Files))
			}
			n.Repository[name] = content
		}
		if len(n.Repository) != len(files[rec.UUID]) {
			return graph.Subgraph{}, fmt.Errorf("node %s: unlisted repository files", rec.UUID)
		}
		g.Nodes = append(g.Nodes, n)
	}
	for uuid := range files {
		if !known[uuid] {
			return graph.Subgraph{}, fmt.Errorf("repository files for unknown node %s", uuid)
		}
	}

	for _, l := range g.Links {
		if !l.Type.Valid() {
			return graph.Subgraph{}, fmt.Errorf("link %q: unknown type %q", l.Label, l.Type)
		}
		if !known[l.Source] || !known[l.Target] {
			return graph.Subgraph{}, fmt.Errorf("link %q: dangling endpoint", l.Label)
		}
	}
	for _, c := range g.Comments {
		if !known[c.Node] {
			return graph.Subgraph{}, fmt.Errorf("comment %s: unknown node %s", c.UUID, c.Node)
		}
	}
	return g, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilObject(obj ir.IRObject) ir.IRObject {
	if obj == nil {
		return ir.IRObject{}
	}
	return obj
}
