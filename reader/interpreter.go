package reader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guseggert/sheetshell/shell"
	"go.uber.org/zap"
)

// Inbound message tags.
const (
	TagWorkbookOpen = "workbook-open"
	TagSheetChange  = "sheet-change"
	TagCell         = "cell"
	TagEndOfInput   = "end-of-input"
	TagError        = "error"
)

type workbookPayload struct {
	File       string         `json:"file"`
	User       string         `json:"user"`
	Sheets     []string       `json:"sheets"`
	Properties map[string]any `json:"properties"`
}

type sheetPayload struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Rows       int    `json:"rows"`
	Columns    int    `json:"columns"`
	Visibility int    `json:"visibility"`
}

// cellPayload accepts both [row, column, address, value] and {"r", "c", "a", "v"}.
type cellPayload struct {
	Row     int
	Column  int
	Address string
	Value   json.RawMessage
}

func (p *cellPayload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			R int             `json:"r"`
			C int             `json:"c"`
			A string          `json:"a"`
			V json.RawMessage `json:"v"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*p = cellPayload{Row: obj.R, Column: obj.C, Address: obj.A, Value: obj.V}
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	if len(arr) != 4 {
		return fmt.Errorf("expected 4 cell fields, got %d", len(arr))
	}
	if err := json.Unmarshal(arr[0], &p.Row); err != nil {
		return fmt.Errorf("decoding row: %w", err)
	}
	if err := json.Unmarshal(arr[1], &p.Column); err != nil {
		return fmt.Errorf("decoding column: %w", err)
	}
	if err := json.Unmarshal(arr[2], &p.Address); err != nil {
		return fmt.Errorf("decoding address: %w", err)
	}
	p.Value = arr[3]
	return nil
}

// interpreter is the row-buffering state machine behind a Reader.
// It is driven from a single goroutine and reports its output through emit.
type interpreter struct {
	log        *zap.SugaredLogger
	emit       func(Event)
	bufferSize int
	location   *time.Location

	workbook *Workbook
	sheet    *Sheet
	rowIndex int
	rows     []Row

	inputEnded  bool
	shellClosed bool
	closed      bool
}

func newInterpreter(cfg *config, emit func(Event)) *interpreter {
	return &interpreter{
		log:        cfg.log,
		emit:       emit,
		bufferSize: cfg.bufferSize,
		location:   cfg.location,
		rowIndex:   -1,
	}
}

func (in *interpreter) handleMessage(msg shell.Message) {
	if in.closed {
		in.log.Debugf("ignoring message after close: %s", msg)
		return
	}

	switch msg.Tag {
	case TagWorkbookOpen:
		var p workbookPayload
		if !in.decode(msg, &p) {
			return
		}
		// rows still buffered belong to the previous workbook
		in.flush()
		in.sheet = nil
		in.rowIndex = -1
		in.workbook = &Workbook{
			File: p.File,
			Meta: Meta{User: p.User, Sheets: p.Sheets, Properties: p.Properties},
		}
		in.emit(Event{Type: EventOpen, Workbook: in.workbook})

	case TagSheetChange:
		var p sheetPayload
		if !in.decode(msg, &p) {
			return
		}
		if in.sheet != nil {
			in.flush()
		}
		in.sheet = &Sheet{
			Index:      p.Index,
			Name:       p.Name,
			Bounds:     Bounds{Rows: p.Rows, Columns: p.Columns},
			Visibility: visibilityFromCode(p.Visibility),
		}
		in.rowIndex = -1

	case TagCell:
		var p cellPayload
		if !in.decode(msg, &p) {
			return
		}
		value, err := decodeValue(p.Value, in.location)
		if err != nil {
			in.emit(Event{Type: EventError, Err: &shell.MalformedMessageError{Line: msg.String(), Err: err}})
			return
		}
		if p.Row != in.rowIndex {
			if len(in.rows) >= in.bufferSize {
				in.flush()
			}
			in.rowIndex = p.Row
			in.rows = append(in.rows, Row{})
		}
		last := len(in.rows) - 1
		in.rows[last] = append(in.rows[last], Cell{
			Row:     p.Row,
			Column:  p.Column,
			Address: p.Address,
			Value:   value,
		})

	case TagEndOfInput:
		in.inputEnded = true
		in.maybeClose()

	case TagError:
		werr := &WorkerError{}
		var text string
		if msg.Payload.Decode(&text) == nil {
			werr.Message = text
		} else if !in.decode(msg, werr) {
			return
		}
		in.emit(Event{Type: EventError, Err: werr})

	default:
		in.log.Debugf("ignoring unknown message: %s", msg)
	}
}

func (in *interpreter) decode(msg shell.Message, v any) bool {
	if err := msg.Payload.Decode(v); err != nil {
		in.emit(Event{Type: EventError, Err: &shell.MalformedMessageError{
			Line: msg.String(),
			Err:  fmt.Errorf("decoding %q payload: %w", msg.Tag, err),
		}})
		return false
	}
	return true
}

func (in *interpreter) handleError(err error) {
	if in.closed {
		in.log.Debugf("ignoring error after close: %s", err)
		return
	}
	in.emit(Event{Type: EventError, Err: err})
}

func (in *interpreter) handleShellClose() {
	in.shellClosed = true
	in.maybeClose()
}

// finish completes the stream once no more messages can arrive.
// A worker that exited without sending end-of-input is reported unless it was killed on purpose.
func (in *interpreter) finish(killed bool) {
	if in.closed {
		return
	}
	if !in.inputEnded && !killed {
		in.emit(Event{Type: EventError, Err: ErrTruncatedOutput})
	}
	in.inputEnded = true
	in.shellClosed = true
	in.maybeClose()
}

func (in *interpreter) maybeClose() {
	if in.closed || !in.inputEnded || !in.shellClosed {
		return
	}
	in.closed = true
	in.flush()
	in.emit(Event{Type: EventClose})
}

// flush emits the buffered rows as one batch and clears the buffer.
func (in *interpreter) flush() {
	if len(in.rows) == 0 {
		return
	}
	in.emit(Event{Type: EventData, Batch: &Batch{
		Workbook: in.workbook,
		Sheet:    in.sheet,
		Rows:     append([]Row(nil), in.rows...),
	}})
	in.rows = nil
}
