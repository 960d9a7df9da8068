// Package replaytest wires the archive cache into Go tests.
//
// A Fixture gives each test a fresh provenance store, an engine and a
// replay controller whose cache paths resolve the same way in every test
// of a package:
//
//	func TestAdd(t *testing.T) {
//	    f := replaytest.New(t)
//	    res := f.RunWithCache(&addCalculation{}, engine.Request{"x": 1, "y": 2}, "")
//	    assert.Equal(t, int64(3), sumOf(res.Outputs))
//	}
//
// The first run executes the calculation and exports its provenance to
// testdata/data_dir; later runs import that archive and are served from
// the cache. Commit the archives to make test runs replay-only.
//
// # Flags
//
// The package registers these test flags:
//
//	-archive-cache-dir               directory relative cache paths resolve against
//	-archive-cache-forbid-migration  fail instead of migrating older archives
//	-testing-config-action           read | generate | require (mock code lookup)
//
// The configuration file .provreplay-config.yml is discovered from the
// package directory upwards; see package config.
//
// # Golden manifests
//
// AssertArchiveGolden compares the manifest of an archive with
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./... -update
package replaytest
