package ir

// Version constants for persisted artifacts.
const (
	// FormatVersion is the raw-data artifact schema version.
	FormatVersion = "1"

	// EngineVersion is the upbb engine version.
	EngineVersion = "0.1.0"
)
