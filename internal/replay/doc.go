// Package replay records computation results into archives and replays
// them on later runs.
//
// A run is keyed by the fingerprint of its request. If an archive for the
// fingerprint exists it is imported before the run and the engine runs
// with caching enabled, so identical calculations are served from the
// imported records. Otherwise the run executes normally and its
// provenance is exported to a new archive afterwards.
//
// Every run walks the same state machine:
//
//	INIT -> LOOKUP -> {HIT, MISS} -> RUNNING -> {EXPORTED, SKIPPED_EXPORT} -> DONE
//
// and the visited states are reported in the Outcome.
package replay
