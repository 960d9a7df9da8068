package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainRequest    = "provreplay/request/v1"
	DomainNode       = "provreplay/node/v1"
	DomainValue      = "provreplay/value/v1"
	DomainRepository = "provreplay/repository/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValueHash hashes the canonical JSON form of v.
// Returns an error for values that have no canonical form (NaN, infinities,
// unsupported Go types).
func ValueHash(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ValueHash: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}

// NodeHash hashes the identity objects produced by an identity strategy.
func NodeHash(objects IRArray) (string, error) {
	canonical, err := MarshalCanonical(objects)
	if err != nil {
		return "", fmt.Errorf("NodeHash: %w", err)
	}
	return hashWithDomain(DomainNode, canonical), nil
}

// RepositoryHash hashes a set of named file blobs independent of map order.
func RepositoryHash(files map[string][]byte) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	d := NewDigest(DomainRepository)
	for _, name := range names {
		d.WriteField([]byte(name))
		d.WriteField(files[name])
	}
	return d.Sum()
}

// Digest is a running domain-separated SHA-256 over length-prefixed fields.
// Length prefixes keep ("ab","c") and ("a","bc") apart.
type Digest struct {
	h hash.Hash
}

// NewDigest starts a digest in the given domain.
func NewDigest(domain string) *Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return &Digest{h: h}
}

// WriteField appends one length-prefixed field.
func (d *Digest) WriteField(data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	d.h.Write(prefix[:])
	d.h.Write(data)
}

// WriteString appends one length-prefixed string field.
func (d *Digest) WriteString(s string) {
	d.WriteField([]byte(s))
}

// Sum returns the hex digest. The digest may keep being written afterwards.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
