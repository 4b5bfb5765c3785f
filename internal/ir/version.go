package ir

// Version constants for the template schema and engine.
const (
	// SchemaVersion is the template IR schema version.
	SchemaVersion = "1"

	// EngineVersion is the qflow engine version.
	EngineVersion = "0.1.0"
)
