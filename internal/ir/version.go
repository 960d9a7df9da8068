package ir

// Version constants stamped on every node created by this module.
//
// The stock identity strategy hashes the "version" attribute, so bumping
// EngineVersion invalidates every recorded cache; the liberal strategy
// deliberately ignores it.
const (
	// IRVersion is the value model version.
	IRVersion = "1"

	// EngineVersion is the provreplay runtime version.
	EngineVersion = "0.3.0"
)
