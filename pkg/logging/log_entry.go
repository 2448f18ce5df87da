package logging

// LogEntry represents a structured log record with fields relevant to
// pipeline execution.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Pipeline-specific fields
	ApplicationID string // The application being processed
	Stage         string // The stage producing the entry
	Revision      int    // Revision round of the stage execution

	// General structured data
	Fields map[string]interface{}
}
