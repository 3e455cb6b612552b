package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guseggert/sheetshell/internal/celladdr"
	"github.com/guseggert/sheetshell/shell"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Writer builds a spreadsheet file through a writer worker.
// Commands are queued on the worker input and failures are collected until Save.
// A Writer is not safe for concurrent use.
type Writer struct {
	log    *zap.SugaredLogger
	shell  *shell.Shell
	format string
	temp   bool
	done   chan struct{}

	sheets           []*sheetState
	current          int
	anonymousFormats int

	mut    sync.Mutex
	path   string
	closed bool
	errs   error
}

type sheetState struct {
	name       string
	currentRow int
}

// New starts a writer worker creating a workbook at path.
// An empty path writes to a temporary file, which is removed when the stream returned by Save is closed.
func New(ctx context.Context, path string, opts ...Option) (*Writer, error) {
	cfg := newConfig(opts)
	format := strings.ToLower(cfg.format)
	if format != FormatXLSX && format != FormatXLS {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, cfg.format)
	}

	w := &Writer{
		log:     cfg.log,
		format:  format,
		path:    path,
		current: -1,
		done:    make(chan struct{}),
	}
	if path == "" {
		w.path = filepath.Join(os.TempDir(), uuid.NewString()+"."+format)
		w.temp = true
	}

	w.shell = shell.Start(ctx, cfg.script, nil, cfg.shellOpts...)
	go w.run()

	var workbookOpts any
	if cfg.workbook != (WorkbookOptions{}) {
		workbookOpts = cfg.workbook
	}
	err := multierr.Combine(
		w.shell.Send(CmdOpen, format, w.path),
		w.shell.Send(CmdCreateWorkbook, workbookOpts),
	)
	if err != nil {
		// the worker is gone, report why
		if waitErr := w.wait(ctx); waitErr == nil {
			w.mut.Lock()
			err = multierr.Append(err, w.errs)
			w.mut.Unlock()
		}
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	w.log.Debugw("opened workbook", "Path", w.path, "Format", format)
	return w, nil
}

func (w *Writer) run() {
	defer close(w.done)
	for ev := range w.shell.Events() {
		switch ev.Type {
		case shell.EventMessage:
			w.handleMessage(ev.Message)
		case shell.EventError:
			w.addError(ev.Err)
		case shell.EventClose:
			w.log.Debugw("worker closed", "ExitCode", ev.ExitCode, "Exited", ev.Exited)
		}
	}
}

func (w *Writer) handleMessage(msg shell.Message) {
	switch msg.Tag {
	case TagOpen, TagClose:
		var path string
		if msg.Payload.Kind != shell.PayloadNone {
			if err := msg.Payload.Decode(&path); err != nil {
				w.addError(&shell.MalformedMessageError{Line: msg.String(), Err: err})
				return
			}
		}
		w.mut.Lock()
		if path != "" {
			w.path = path
		}
		if msg.Tag == TagClose {
			w.closed = true
		}
		w.mut.Unlock()
	case TagError:
		cmdErr := &CommandError{}
		if err := msg.Payload.Decode(cmdErr); err != nil {
			w.addError(&shell.MalformedMessageError{Line: msg.String(), Err: err})
			return
		}
		w.addError(cmdErr)
	default:
		w.log.Debugf("ignoring unknown message: %s", msg)
	}
}

func (w *Writer) addError(err error) {
	w.log.Debugf("writer error: %s", err)
	w.mut.Lock()
	w.errs = multierr.Append(w.errs, err)
	w.mut.Unlock()
}

// Path returns the path of the file being written.
func (w *Writer) Path() string {
	w.mut.Lock()
	defer w.mut.Unlock()
	return w.path
}

// AddSheet adds a sheet and makes it current. An empty name lets the worker pick one.
func (w *Writer) AddSheet(name string, settings *SheetSettings) error {
	w.sheets = append(w.sheets, &sheetState{name: name, currentRow: -1})
	w.current = len(w.sheets) - 1

	var nameArg any
	if name != "" {
		nameArg = name
	}
	if err := w.shell.Send(CmdAddSheet, nameArg); err != nil {
		return err
	}
	if settings != nil {
		return w.shell.Send(CmdSetSheetSettings, settings)
	}
	return nil
}

// ActivateSheet makes the sheet added with the given name current.
func (w *Writer) ActivateSheet(name string) error {
	for i, s := range w.sheets {
		if s.name == name {
			w.current = i
			return w.shell.Send(CmdActivateSheet, name)
		}
	}
	return fmt.Errorf("%w: %s", ErrSheetNotFound, name)
}

// ActivateSheetIndex makes the sheet at index current.
func (w *Writer) ActivateSheetIndex(index int) error {
	if index < 0 || index >= len(w.sheets) {
		return fmt.Errorf("%w: %d", ErrSheetNotFound, index)
	}
	w.current = index
	return w.shell.Send(CmdActivateSheet, index)
}

// AddFormat registers a format that later writes can refer to with FormatID(id).
func (w *Writer) AddFormat(id string, f Format) error {
	return w.shell.Send(CmdFormat, id, f)
}

// Write writes data at the zero-based row and column of the current sheet, adding a sheet if there is none.
// A slice is written across a row, a slice of slices across several rows. Nil data is ignored.
// style may be nil.
func (w *Writer) Write(row, col int, data any, style Style) error {
	if data == nil {
		return nil
	}
	if w.current < 0 {
		if err := w.AddSheet("", nil); err != nil {
			return err
		}
	}
	sheet := w.sheets[w.current]
	if row < 0 {
		row = sheet.currentRow + 1
	}
	if col < 0 {
		col = 0
	}

	wire := translate(data)
	if rows, ok := wire.([]any); ok && len(rows) > 0 {
		if _, ok := rows[0].([]any); ok {
			sheet.currentRow = row + len(rows) - 1
		} else {
			sheet.currentRow = row
		}
	} else {
		sheet.currentRow = row
	}

	format, err := w.resolveStyle(style)
	if err != nil {
		return err
	}
	return w.shell.Send(CmdWrite, row, col, wire, format)
}

// WriteAt writes data at a cell address such as "B3". See Write.
func (w *Writer) WriteAt(address string, data any, style Style) error {
	row, col, err := celladdr.Parse(address)
	if err != nil {
		return err
	}
	return w.Write(row, col, data, style)
}

// Append writes data on the row following the last write to the current sheet.
func (w *Writer) Append(data any, style Style) error {
	return w.Write(-1, 0, data, style)
}

// MergeRange merges the cells of a range such as "A1:C1" and writes data into it.
func (w *Writer) MergeRange(cellRange string, data any, style Style) error {
	if w.current < 0 {
		if err := w.AddSheet("", nil); err != nil {
			return err
		}
	}
	format, err := w.resolveStyle(style)
	if err != nil {
		return err
	}
	return w.shell.Send(CmdMergeRange, cellRange, translate(data), format)
}

// SetRow applies settings to the zero-based row of the current sheet.
func (w *Writer) SetRow(index int, settings RowSettings) error {
	return w.shell.Send(CmdSetRow, index, settings)
}

// SetColumn applies settings to the zero-based column of the current sheet.
func (w *Writer) SetColumn(index int, settings ColumnSettings) error {
	return w.shell.Send(CmdSetColumn, index, settings)
}

// resolveStyle returns the format ID to send for style, registering inline formats under a generated ID.
func (w *Writer) resolveStyle(style Style) (any, error) {
	switch s := style.(type) {
	case nil:
		return nil, nil
	case FormatID:
		if s == "" {
			return nil, nil
		}
		return string(s), nil
	case *Format:
		if s == nil {
			return nil, nil
		}
		w.anonymousFormats++
		id := fmt.Sprintf("untitled_format_%d", w.anonymousFormats)
		if err := w.AddFormat(id, *s); err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, fmt.Errorf("unknown style type %T", style)
	}
}

// Flush waits until every queued command has been handed to the worker.
func (w *Writer) Flush() error {
	return w.shell.Flush()
}

// Save ends the worker input, waits for the worker to write the file and returns a stream over it.
// Errors reported by the worker at any point are returned instead of the stream.
func (w *Writer) Save(ctx context.Context) (io.ReadCloser, error) {
	if err := w.shell.End(); err != nil {
		w.addError(fmt.Errorf("ending worker input: %w", err))
	}
	if err := w.wait(ctx); err != nil {
		return nil, err
	}

	w.mut.Lock()
	path, closed, errs := w.path, w.closed, w.errs
	w.mut.Unlock()

	if errs != nil {
		return nil, errs
	}
	if !closed {
		return nil, ErrNotSaved
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening saved workbook: %w", err)
	}
	return &savedFile{File: f, remove: w.temp}, nil
}

// Destroy stops the worker if it is still running and removes the output file.
func (w *Writer) Destroy(ctx context.Context) error {
	if !w.shell.Terminated() {
		if err := w.shell.Kill(); err != nil {
			return fmt.Errorf("killing worker: %w", err)
		}
	}
	// children of the worker may still hold its pipes until their input ends
	if err := w.shell.End(); err != nil {
		w.log.Debugf("error ending worker input: %s", err)
	}
	if err := w.wait(ctx); err != nil {
		return err
	}
	if err := os.Remove(w.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing workbook: %w", err)
	}
	return nil
}

func (w *Writer) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// savedFile removes a temporary workbook once it has been read.
type savedFile struct {
	*os.File
	remove bool
}

func (f *savedFile) Close() error {
	err := f.File.Close()
	if f.remove {
		err = multierr.Append(err, os.Remove(f.Name()))
	}
	return err
}

// translate converts data into its wire form: slices become []any and times become date markers.
func translate(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return DateMarker{Millis: x.UnixMilli()}
	case *time.Time:
		if x == nil {
			return nil
		}
		return DateMarker{Millis: x.UnixMilli()}
	case []byte:
		return string(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = translate(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
