package ir

// Version constants stamped into cache entries and CLI output.
const (
	// DocumentVersion is the item document schema version. It is part of
	// every fingerprinted document.
	DocumentVersion = "1"

	// ToolVersion is the schemasync release.
	ToolVersion = "0.1.0"
)
