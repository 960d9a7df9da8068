// Package engine runs calculations and workflows and records their
// provenance in the graph store.
//
// A run stores the process record with its inputs, optionally replaces
// execution with a clone of an earlier identical record (caching), and
// then stores and links the outputs. Which process types may be served
// from the cache is decided by the CachingScope carried in the context.
//
// Execution is single-threaded: a workflow submits its children one at a
// time through its Runner, and every write goes through the store's
// single connection.
package engine
