// Package graph defines the provenance graph model: nodes, the closed set of
// node kinds, typed links and comments.
//
// A Node is created in memory, persisted exactly once by a store (which
// assigns its PK and hash) and is immutable afterwards, except for attributes
// listed in Node.Updatable and for extras.
package graph
