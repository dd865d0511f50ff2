package ir

// Version constants for the log wire format and engine.
const (
	// WireVersion is the log record and checkpoint format version.
	WireVersion = "1"

	// EngineVersion is the statehub engine version.
	EngineVersion = "0.2.0"
)
