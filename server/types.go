package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/guseggert/sheetshell/reader"
)

// ReadRequest is the body of POST /read, and the first message sent on the GET /read WebSocket.
type ReadRequest struct {
	Paths      []string `json:"paths"`
	MetaOnly   bool     `json:"metaOnly,omitempty"`
	Sheets     []string `json:"sheets,omitempty"`
	MaxRows    int      `json:"maxRows,omitempty"`
	Verbose    bool     `json:"verbose,omitempty"`
	BufferSize int      `json:"bufferSize,omitempty"`
}

// ReadResponse is the body returned by POST /read.
// Cell values are plain JSON: dates are RFC 3339 strings and cell errors are objects.
type ReadResponse struct {
	ID        string             `json:"id"`
	Workbooks []*reader.Workbook `json:"workbooks"`
	Errors    []ErrorMessage     `json:"errors,omitempty"`
}

const (
	KindSourceNotFound  = "source_not_found"
	KindTruncatedOutput = "truncated_output"
	KindWorker          = "worker"
)

type ErrorMessage struct {
	// Kind is empty for errors that have no specific kind.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func newErrorMessage(err error) ErrorMessage {
	msg := ErrorMessage{Message: err.Error()}
	var workerErr *reader.WorkerError
	switch {
	case errors.Is(err, reader.ErrSourceNotFound):
		msg.Kind = KindSourceNotFound
	case errors.Is(err, reader.ErrTruncatedOutput):
		msg.Kind = KindTruncatedOutput
	case errors.As(err, &workerErr):
		msg.Kind = KindWorker
	}
	return msg
}

// RemoteError is an error reported by the server.
// Errors of kind KindSourceNotFound and KindTruncatedOutput match the reader sentinel errors with errors.Is.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}

func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case KindSourceNotFound:
		return target == reader.ErrSourceNotFound
	case KindTruncatedOutput:
		return target == reader.ErrTruncatedOutput
	}
	return false
}

func (m ErrorMessage) err() error {
	return &RemoteError{Kind: m.Kind, Message: m.Message}
}

// Message is one reader event sent on the GET /read WebSocket.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	// Workbook is set for "open" messages.
	Workbook *reader.Workbook `json:"workbook,omitempty"`
	// File, Sheet and Rows are set for "data" messages.
	File  string        `json:"file,omitempty"`
	Sheet *reader.Sheet `json:"sheet,omitempty"`
	Rows  []reader.Row  `json:"rows,omitempty"`

	Error *ErrorMessage `json:"error,omitempty"`
}

// NewMessage returns the message sent for ev on the stream of the read id.
func NewMessage(id string, ev reader.Event) Message {
	msg := Message{Type: ev.Type.String(), ID: id}
	switch ev.Type {
	case reader.EventOpen:
		msg.Workbook = ev.Workbook
	case reader.EventData:
		if ev.Batch.Workbook != nil {
			msg.File = ev.Batch.Workbook.File
		}
		msg.Sheet = ev.Batch.Sheet
		msg.Rows = ev.Batch.Rows
	case reader.EventError:
		errMsg := newErrorMessage(ev.Err)
		msg.Error = &errMsg
	}
	return msg
}

type Heartbeat struct {
	Started     time.Time `json:"started"`
	ActiveReads int64     `json:"activeReads"`
}
