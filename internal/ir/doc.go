// Package ir provides the canonical value model used for content-addressed
// identity in provreplay.
//
// Node attributes, node extras and computation request values are all carried
// as IRValue so that a hash never depends on Go map iteration order or on
// encoder quirks. ir imports nothing internal; every other package builds on it.
//
// Key constraints:
//   - Floats are written in the RFC 8785 (ECMAScript) number form; NaN and
//     infinities have no canonical form
//   - Object keys are ordered by UTF-16 code units (RFC 8785)
//   - Strings are NFC normalized at the serialization boundary
//   - All hashes are SHA-256 with a versioned domain prefix
package ir
