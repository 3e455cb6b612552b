package reader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrSourceNotFound matches a SourceNotFoundError with errors.Is.
var ErrSourceNotFound = errors.New("file not found")

// ErrTruncatedOutput is reported when the worker exits without signaling the end of its output.
var ErrTruncatedOutput = errors.New("worker exited before the end of its output")

// SourceNotFoundError is returned by Read when the worker neither opened a workbook nor reported an error.
type SourceNotFoundError struct {
	Paths []string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", strings.Join(e.Paths, ", "))
}

func (e *SourceNotFoundError) Is(target error) bool {
	return target == ErrSourceNotFound
}

// WorkerError is a failure reported in-band by the worker, such as a sheet that could not be loaded.
// It does not end the stream by itself.
type WorkerError struct {
	ID        string `json:"id,omitempty"`
	Exception string `json:"exception,omitempty"`
	Type      string `json:"type,omitempty"`
	Message   string `json:"message,omitempty"`
	Details   string `json:"details,omitempty"`
	Traceback string `json:"traceback,omitempty"`
	File      string `json:"file,omitempty"`
	SheetName string `json:"sheet_name,omitempty"`
	// SheetIndex is nil when the failure is not about a sheet.
	SheetIndex *int `json:"sheet_index,omitempty"`
}

// UnmarshalJSON accepts an object, or the positional form [exception, message, details, traceback]
// where trailing fields may be omitted.
func (e *WorkerError) UnmarshalJSON(b []byte) error {
	type workerError WorkerError
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		return json.Unmarshal(b, (*workerError)(e))
	}

	var fields []string
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("decoding positional error: %w", err)
	}
	if len(fields) > 4 {
		return fmt.Errorf("expected at most 4 error fields, got %d", len(fields))
	}
	dst := []*string{&e.Exception, &e.Message, &e.Details, &e.Traceback}
	for i, f := range fields {
		*dst[i] = f
	}
	return nil
}

func (e *WorkerError) Error() string {
	var b strings.Builder
	if e.Exception != "" {
		fmt.Fprintf(&b, "[%s] ", e.Exception)
	}
	kind := e.Type
	if kind == "" {
		kind = e.ID
	}
	if kind != "" {
		b.WriteString(kind)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "" && e.Details != "":
		fmt.Fprintf(&b, "%s (%s)", e.Message, e.Details)
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Details != "":
		b.WriteString(e.Details)
	default:
		b.WriteString("worker error")
	}
	return b.String()
}
