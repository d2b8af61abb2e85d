package ir

// Version constants for the topology IR and the simulator.
const (
	// IRVersion is the topology IR schema version.
	IRVersion = "1"

	// EngineVersion is the simulator version reported by Version().
	EngineVersion = "0.3.0"
)

// VersionString is the process-wide version string.
func VersionString() string {
	return "enginesim " + EngineVersion + " (ir " + IRVersion + ")"
}
