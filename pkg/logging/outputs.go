package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ConsoleOutput formats logs for human readability.
type ConsoleOutput struct {
	mu     sync.Mutex
	writer io.Writer
	color  bool // Whether to use ANSI color codes
}

type ConsoleOutputOption func(*ConsoleOutput)

func WithColor(enabled bool) ConsoleOutputOption {
	return func(c *ConsoleOutput) {
		c.color = enabled
	}
}

func NewConsoleOutput(useStderr bool, opts ...ConsoleOutputOption) *ConsoleOutput {
	writer := os.Stdout
	if useStderr {
		writer = os.Stderr
	}

	c := &ConsoleOutput{
		writer: writer,
		color:  true,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Helper function to get ANSI color codes for different severity levels.
func getSeverityColor(s Severity) string {
	switch s {
	case DEBUG:
		return "\033[37m" // Gray
	case INFO:
		return "\033[32m" // Green
	case WARN:
		return "\033[33m" // Yellow
	case ERROR:
		return "\033[31m" // Red
	case FATAL:
		return "\033[35m" // Magenta
	default:
		return ""
	}
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}

	var result string
	for k, v := range fields {
		// Truncate long text such as decision justifications
		str := fmt.Sprintf("%v", v)
		if len(str) > 100 {
			str = str[:97] + "..."
			result += fmt.Sprintf("%s=%q ", k, str)
		} else {
			result += fmt.Sprintf("%s=%v ", k, v)
		}
	}

	return result
}

func (o *ConsoleOutput) Write(e LogEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	timestamp := time.Unix(0, e.Time).Format("2006-01-02 15:04:05.000")

	var levelColor, resetColor string
	if o.color {
		levelColor = getSeverityColor(e.Severity)
		resetColor = "\033[0m"
	}

	basic := fmt.Sprintf("%s %s%-5s%s [%s:%d] %s",
		timestamp,
		levelColor,
		e.Severity,
		resetColor,
		e.File,
		e.Line,
		e.Message,
	)

	if e.ApplicationID != "" {
		basic += fmt.Sprintf(" [app=%s]", e.ApplicationID)
	}

	if e.Stage != "" {
		basic += fmt.Sprintf(" [stage=%s rev=%d]", e.Stage, e.Revision)
	}

	if len(e.Fields) > 0 {
		basic += " " + formatFields(e.Fields)
	}

	_, err := fmt.Fprintln(o.writer, basic)

	return err
}

func (o *ConsoleOutput) Sync() error {
	if syncer, ok := o.writer.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

// Close cleans up any resources.
func (o *ConsoleOutput) Close() error {
	if closer, ok := o.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// FileOutput writes entries as JSON lines, one per entry. Suitable for the
// audit-adjacent operational log that survives a process restart.
type FileOutput struct {
	mu   sync.Mutex
	file *os.File
	path string
}

func NewFileOutput(path string) (*FileOutput, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &FileOutput{
		file: file,
		path: path,
	}, nil
}

type jsonEntry struct {
	Time          string                 `json:"time"`
	Severity      string                 `json:"severity"`
	Message       string                 `json:"message"`
	File          string                 `json:"file"`
	Line          int                    `json:"line"`
	Function      string                 `json:"function,omitempty"`
	ApplicationID string                 `json:"application_id,omitempty"`
	Stage         string                 `json:"stage,omitempty"`
	Revision      int                    `json:"revision,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

func (f *FileOutput) Write(e LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(jsonEntry{
		Time:          time.Unix(0, e.Time).Format(time.RFC3339Nano),
		Severity:      e.Severity.String(),
		Message:       e.Message,
		File:          e.File,
		Line:          e.Line,
		Function:      e.Function,
		ApplicationID: e.ApplicationID,
		Stage:         e.Stage,
		Revision:      e.Revision,
		Fields:        e.Fields,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	_, err = f.file.Write(append(data, '\n'))
	return err
}

func (f *FileOutput) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Sync()
}

func (f *FileOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
