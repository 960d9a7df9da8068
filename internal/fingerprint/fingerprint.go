// Package fingerprint computes the stable identity of a computation request.
//
// The request is flattened to dot-joined keys and walked in key order. Code
// references are skipped, graph nodes contribute their own hash (being
// stored first if needed) and every other value contributes the hash of its
// canonical JSON form.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/ir"
	"github.com/roach88/provreplay/internal/store"
)

// NodeStorer persists unstored nodes found in a request.
type NodeStorer interface {
	StoreNode(ctx context.Context, n *graph.Node, inputs ...store.Edge) error
}

// HashingError reports a request value that has no stable hash.
type HashingError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *HashingError) Error() string {
	return fmt.Sprintf("cannot hash %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying cause.
func (e *HashingError) Unwrap() error {
	return e.Err
}

// IsHashingError returns true if err is or wraps a *HashingError.
func IsHashingError(err error) bool {
	var he *HashingError
	return errors.As(err, &he)
}

// Calculator computes request fingerprints.
type Calculator struct {
	storer NodeStorer
}

// New creates a Calculator that persists unstored request nodes via storer.
func New(storer NodeStorer) *Calculator {
	return &Calculator{storer: storer}
}

// Compute returns the hex fingerprint of request and the nodes it had to
// store along the way.
func (c *Calculator) Compute(ctx context.Context, request map[string]any) (string, []*graph.Node, error) {
	flat, err := Flatten(request)
	if err != nil {
		return "", nil, err
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var touched []*graph.Node
	d := ir.NewDigest(ir.DomainRequest)
	for _, key := range keys {
		var h string
		switch v := flat[key].(type) {
		case *graph.Node:
			if v == nil {
				return "", nil, &HashingError{Key: key, Err: errors.New("nil node")}
			}
			if v.Kind == graph.KindCode {
				continue
			}
			if !v.Stored() {
				if err := c.storer.StoreNode(ctx, v); err != nil {
					return "", nil, fmt.Errorf("fingerprint: store %q: %w", key, err)
				}
				touched = append(touched, v)
			}
			h = v.Hash
		default:
			h, err = ir.ValueHash(v)
			if err != nil {
				return "", nil, &HashingError{Key: key, Err: err}
			}
		}
		d.WriteString(key)
		d.WriteString(h)
	}
	return d.Sum(), touched, nil
}

// Flatten turns nested string-keyed maps into a single map with dot-joined
// keys. IR values (objects included) and nodes are leaves. Two paths that
// flatten to the same key are an error.
func Flatten(request map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	if err := flattenInto(out, "", reflect.ValueOf(request)); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out map[string]any, prefix string, m reflect.Value) error {
	iter := m.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		if prefix != "" {
			key = prefix + "." + key
		}
		value := iter.Value().Interface()
		if nested, ok := nestedMap(value); ok {
			if err := flattenInto(out, key, nested); err != nil {
				return err
			}
			continue
		}
		if _, dup := out[key]; dup {
			return &HashingError{Key: key, Err: errors.New("key appears both nested and dotted")}
		}
		out[key] = value
	}
	return nil
}

// nestedMap reports whether v is a plain string-keyed map to recurse into.
func nestedMap(v any) (reflect.Value, bool) {
	if v == nil {
		return reflect.Value{}, false
	}
	if _, isIR := v.(ir.IRValue); isIR {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return reflect.Value{}, false
	}
	return rv, true
}
