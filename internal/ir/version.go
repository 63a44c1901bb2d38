package ir

// Version constants for reports and the engine.
const (
	// ReportVersion is the report schema version.
	ReportVersion = "1"

	// EngineVersion is the dpmcheck engine version.
	EngineVersion = "0.1.0"
)
