// Package cache maps request fingerprints to archive files on disk.
//
// A cache entry is trusted as valid if present; nothing here opens or
// validates archives.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// Extension is the file extension of cache archives.
const Extension = ".tar.gz"

// DataDir is the conventional per-package directory for cache archives,
// relative to the package under test.
const DataDir = "testdata/data_dir"

// Name returns the cache file name for a request:
// {label}{typeName}-nodes-{fingerprint}.tar.gz
func Name(label, typeName, fingerprint string) string {
	return fmt.Sprintf("%s%s-nodes-%s%s", label, typeName, fingerprint, Extension)
}

// Resolver turns cache names and relative paths into absolute paths.
type Resolver struct {
	// BaseDir overrides the directory relative paths resolve against.
	BaseDir string

	// WorkDir is the directory DataDir is relative to. Empty means the
	// current working directory.
	WorkDir string

	// AllowMigration is false when older archive versions must fail rather
	// than be migrated. Migration happens while decoding; archives on disk
	// are never rewritten.
	AllowMigration bool
}

// Locate returns the absolute path of the cache entry for a request.
func (r Resolver) Locate(label, typeName, fingerprint string) (string, error) {
	return r.Path(Name(label, typeName, fingerprint))
}

// Path resolves p: absolute paths pass through unchanged, relative paths
// are joined to BaseDir or else to WorkDir/DataDir. The base directory is
// created if absent.
func (r Resolver) Path(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}

	base := r.BaseDir
	if base == "" {
		base = filepath.Join(r.WorkDir, DataDir)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("could not create cache directory %s: %w", base, err)
	}
	return filepath.Abs(filepath.Join(base, p))
}

// Exists reports whether something is present at path. No content
// validation happens.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
