// Package store provides SQLite-backed storage for the provenance graph.
//
// Nodes are written once. The store assigns each node its PK and computes its
// hash with the identity.Strategy chosen at Open; only updatable attributes,
// extras and the hash (via Rehash) change afterwards.
//
// # Determinism
//
// Every multi-row query orders by pk, so reads, closures and exports
// enumerate nodes in insertion order regardless of SQLite's plan.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
