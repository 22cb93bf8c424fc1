package ir

// Version constants for journal records.
const (
	// IRVersion is the record schema version.
	IRVersion = "1"

	// EngineVersion is the opline engine version.
	EngineVersion = "0.1.0"
)
