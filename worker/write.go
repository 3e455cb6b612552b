package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/guseggert/sheetshell/shell"
	"github.com/guseggert/sheetshell/writer"
	"github.com/xuri/excelize/v2"
)

const defaultDateFormat = "yyyy-mm-dd"

const readLimit = 32768

var errNoWorkbook = errors.New("no workbook was created")

// Write builds a workbook from the writer commands read on in, and saves it once in is closed.
// Failed commands are reported with an error message and do not stop later ones.
func Write(ctx context.Context, in io.Reader, out io.Writer) error {
	w := &workbookWriter{
		e:          newEmitter(out),
		formats:    map[string]int{},
		dateFormat: defaultDateFormat,
	}

	var framer shell.Framer
	buf := make([]byte, readLimit)
	for {
		n, err := in.Read(buf)
		for _, line := range framer.Push(buf[:n]) {
			w.handleLine(line)
		}
		if err := w.e.flush(); err != nil {
			return err
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading commands: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if tail := framer.Pending(); len(tail) > 0 {
		w.handleLine(string(tail))
	}

	w.close()
	return w.e.flush()
}

type workbookWriter struct {
	e *emitter

	format string
	path   string
	f      *excelize.File

	sheet      string
	sheetCount int
	formats    map[string]int
	dateFormat string
	dateStyle  int
}

func (w *workbookWriter) handleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	msg, err := shell.Decode(line)
	if err != nil {
		w.e.emit(writer.TagError, &writer.CommandError{Message: err.Error()})
		return
	}
	if err := w.handle(msg.Tag, msg.Payload.Values); err != nil {
		w.e.emit(writer.TagError, &writer.CommandError{Command: msg.Tag, Message: err.Error()})
	}
}

func (w *workbookWriter) handle(cmd string, args []json.RawMessage) error {
	if cmd != writer.CmdOpen && cmd != writer.CmdCreateWorkbook && w.f == nil {
		return errNoWorkbook
	}

	switch cmd {
	case writer.CmdOpen:
		var format, path string
		if err := optionalArgs(args, &format, &path); err != nil {
			return err
		}
		if format == "" {
			format = writer.FormatXLSX
		}
		if format != writer.FormatXLSX {
			return fmt.Errorf("%w: %s", writer.ErrUnsupportedFormat, format)
		}
		w.format, w.path = format, path
		return nil

	case writer.CmdCreateWorkbook:
		if w.format == "" {
			return errors.New("no open command was received")
		}
		var opts writer.WorkbookOptions
		if err := optionalArgs(args, &opts); err != nil {
			return err
		}
		return w.createWorkbook(opts)

	case writer.CmdAddSheet:
		var name string
		if err := optionalArgs(args, &name); err != nil {
			return err
		}
		return w.addSheet(name)

	case writer.CmdSetSheetSettings:
		var settings writer.SheetSettings
		if err := optionalArgs(args, &settings); err != nil {
			return err
		}
		if err := w.ensureSheet(); err != nil {
			return err
		}
		return w.setSheetSettings(settings)

	case writer.CmdActivateSheet:
		if len(args) == 0 {
			return errors.New("missing sheet")
		}
		return w.activateSheet(args[0])

	case writer.CmdFormat:
		var id string
		var format writer.Format
		if err := requiredArgs(args, &id, &format); err != nil {
			return err
		}
		styleID, err := w.f.NewStyle(newStyle(&format))
		if err != nil {
			return err
		}
		w.formats[id] = styleID
		return nil

	case writer.CmdWrite:
		var row, col int
		var data json.RawMessage
		var formatID string
		if err := requiredArgs(args[:min(len(args), 3)], &row, &col, &data); err != nil {
			return err
		}
		if len(args) > 3 {
			if err := optionalArgs(args[3:], &formatID); err != nil {
				return err
			}
		}
		value, err := decodeData(data)
		if err != nil {
			return err
		}
		styleID, err := w.style(formatID)
		if err != nil {
			return err
		}
		if err := w.ensureSheet(); err != nil {
			return err
		}
		return w.write(row, col, value, styleID)

	case writer.CmdMergeRange:
		var cellRange, formatID string
		var data json.RawMessage
		if err := requiredArgs(args[:min(len(args), 2)], &cellRange, &data); err != nil {
			return err
		}
		if len(args) > 2 {
			if err := optionalArgs(args[2:], &formatID); err != nil {
				return err
			}
		}
		value, err := decodeData(data)
		if err != nil {
			return err
		}
		styleID, err := w.style(formatID)
		if err != nil {
			return err
		}
		if err := w.ensureSheet(); err != nil {
			return err
		}
		return w.mergeRange(cellRange, value, styleID)

	case writer.CmdSetRow:
		var index int
		var settings writer.RowSettings
		if err := requiredArgs(args, &index, &settings); err != nil {
			return err
		}
		if err := w.ensureSheet(); err != nil {
			return err
		}
		return w.setRow(index, settings)

	case writer.CmdSetColumn:
		var index int
		var settings writer.ColumnSettings
		if err := requiredArgs(args, &index, &settings); err != nil {
			return err
		}
		if err := w.ensureSheet(); err != nil {
			return err
		}
		return w.setColumn(index, settings)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (w *workbookWriter) createWorkbook(opts writer.WorkbookOptions) error {
	if w.f != nil {
		return errors.New("workbook already created")
	}
	f := excelize.NewFile()
	if opts.DefaultDateFormat != "" {
		w.dateFormat = opts.DefaultDateFormat
	}
	if p := opts.Properties; p != nil {
		err := f.SetDocProps(&excelize.DocProperties{
			Title:       p.Title,
			Subject:     p.Subject,
			Creator:     p.Author,
			Category:    p.Category,
			Keywords:    p.Keywords,
			Description: p.Comments,
		})
		if err != nil {
			return fmt.Errorf("setting document properties: %w", err)
		}
		if p.Company != "" {
			if err := f.SetAppProps(&excelize.AppProperties{Company: p.Company}); err != nil {
				return fmt.Errorf("setting application properties: %w", err)
			}
		}
	}
	w.f = f
	w.e.emit(writer.TagOpen, w.path)
	return nil
}

// addSheet adds a sheet and makes it current. The default sheet of a new file is renamed by the first call.
func (w *workbookWriter) addSheet(name string) error {
	w.sheetCount++
	if name == "" {
		name = fmt.Sprintf("Sheet%d", w.sheetCount)
	}
	if w.sheetCount == 1 {
		first := w.f.GetSheetName(0)
		if name != first {
			if err := w.f.SetSheetName(first, name); err != nil {
				return err
			}
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return err
	}
	w.sheet = name
	return nil
}

func (w *workbookWriter) ensureSheet() error {
	if w.sheet != "" {
		return nil
	}
	return w.addSheet("")
}

func (w *workbookWriter) activateSheet(raw json.RawMessage) error {
	names := w.f.GetSheetList()[:w.sheetCount]
	var index int
	if err := json.Unmarshal(raw, &index); err != nil {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return fmt.Errorf("sheet must be a name or an index: %s", raw)
		}
		index = -1
		for i, n := range names {
			if n == name {
				index = i
			}
		}
	}
	if index < 0 || index >= len(names) {
		return fmt.Errorf("%w: %s", writer.ErrSheetNotFound, raw)
	}
	w.sheet = names[index]
	w.f.SetActiveSheet(index)
	return nil
}

func (w *workbookWriter) setSheetSettings(s writer.SheetSettings) error {
	if s.Hidden {
		if err := w.f.SetSheetVisible(w.sheet, false); err != nil {
			return err
		}
	}
	if s.Activated {
		index, err := w.f.GetSheetIndex(w.sheet)
		if err != nil {
			return err
		}
		w.f.SetActiveSheet(index)
	}
	if s.Selected || s.RightToLeft || s.HideZeroValues {
		view := &excelize.ViewOptions{}
		if s.Selected {
			view.TabSelected = boolPtr(true)
		}
		if s.RightToLeft {
			view.RightToLeft = boolPtr(true)
		}
		if s.HideZeroValues {
			view.ShowZeros = boolPtr(false)
		}
		if err := w.f.SetSheetView(w.sheet, -1, view); err != nil {
			return err
		}
	}
	if s.Selection != "" {
		active, _, _ := strings.Cut(s.Selection, ":")
		err := w.f.SetPanes(w.sheet, &excelize.Panes{
			Selection: []excelize.Selection{{SQRef: s.Selection, ActiveCell: active}},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *workbookWriter) style(formatID string) (int, error) {
	if formatID == "" {
		return 0, nil
	}
	styleID, ok := w.formats[formatID]
	if !ok {
		return 0, fmt.Errorf("unknown format %q", formatID)
	}
	return styleID, nil
}

// write writes a value, a row of values or rows of values starting at row and col.
func (w *workbookWriter) write(row, col int, value any, styleID int) error {
	values, ok := value.([]any)
	if !ok {
		return w.setCell(row, col, value, styleID)
	}
	r, c := row, col
	for _, v := range values {
		if rowValues, ok := v.([]any); ok {
			c = col
			for _, cell := range rowValues {
				if err := w.setCell(r, c, cell, styleID); err != nil {
					return err
				}
				c++
			}
			r++
			continue
		}
		if err := w.setCell(r, c, v, styleID); err != nil {
			return err
		}
		c++
	}
	return nil
}

func (w *workbookWriter) setCell(row, col int, value any, styleID int) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if len(v) > 1 && v[0] == '=' {
			err = w.f.SetCellFormula(w.sheet, cell, v[1:])
		} else {
			err = w.f.SetCellValue(w.sheet, cell, v)
		}
	case time.Time:
		err = w.f.SetCellValue(w.sheet, cell, v)
		if err == nil && styleID == 0 {
			styleID, err = w.defaultDateStyle()
		}
	default:
		err = w.f.SetCellValue(w.sheet, cell, v)
	}
	if err != nil {
		return err
	}
	if styleID != 0 {
		return w.f.SetCellStyle(w.sheet, cell, cell, styleID)
	}
	return nil
}

func (w *workbookWriter) defaultDateStyle() (int, error) {
	if w.dateStyle != 0 {
		return w.dateStyle, nil
	}
	numFmt := w.dateFormat
	styleID, err := w.f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return 0, err
	}
	w.dateStyle = styleID
	return styleID, nil
}

func (w *workbookWriter) mergeRange(cellRange string, value any, styleID int) error {
	first, last, ok := strings.Cut(cellRange, ":")
	if !ok {
		return fmt.Errorf("invalid range %q", cellRange)
	}
	if err := w.f.MergeCell(w.sheet, first, last); err != nil {
		return err
	}
	col, row, err := excelize.CellNameToCoordinates(first)
	if err != nil {
		return err
	}
	if err := w.setCell(row-1, col-1, value, 0); err != nil {
		return err
	}
	if styleID != 0 {
		return w.f.SetCellStyle(w.sheet, first, last, styleID)
	}
	return nil
}

func (w *workbookWriter) setRow(index int, s writer.RowSettings) error {
	row := index + 1
	if s.Height > 0 {
		if err := w.f.SetRowHeight(w.sheet, row, s.Height); err != nil {
			return err
		}
	}
	if s.Format != "" {
		styleID, err := w.style(s.Format)
		if err != nil {
			return err
		}
		if err := w.f.SetRowStyle(w.sheet, row, row, styleID); err != nil {
			return err
		}
	}
	if s.Hidden {
		return w.f.SetRowVisible(w.sheet, row, false)
	}
	return nil
}

func (w *workbookWriter) setColumn(index int, s writer.ColumnSettings) error {
	col, err := excelize.ColumnNumberToName(index + 1)
	if err != nil {
		return err
	}
	if s.Width > 0 {
		if err := w.f.SetColWidth(w.sheet, col, col, s.Width); err != nil {
			return err
		}
	}
	if s.Format != "" {
		styleID, err := w.style(s.Format)
		if err != nil {
			return err
		}
		if err := w.f.SetColStyle(w.sheet, col, styleID); err != nil {
			return err
		}
	}
	if s.Hidden {
		return w.f.SetColVisible(w.sheet, col, false)
	}
	return nil
}

// close saves the workbook and reports it with a close message.
func (w *workbookWriter) close() {
	if w.f == nil {
		w.e.emit(writer.TagClose)
		return
	}
	defer w.f.Close()
	if err := w.f.SaveAs(w.path); err != nil {
		w.e.emit(writer.TagError, &writer.CommandError{Command: "save", Message: err.Error()})
		return
	}
	w.e.emit(writer.TagClose, w.path)
}

// decodeData decodes written data, turning date markers into times.
func decodeData(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return restoreDates(v), nil
}

func restoreDates(v any) any {
	switch x := v.(type) {
	case []any:
		for i := range x {
			x[i] = restoreDates(x[i])
		}
		return x
	case map[string]any:
		if ms, ok := x["$date"].(float64); ok && len(x) == 1 {
			// keep the local wall clock whatever zone the file format assumes
			t := writer.DateMarker{Millis: int64(ms)}.Time()
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		}
		return x
	}
	return v
}

// requiredArgs decodes positional arguments into dst, failing if any is missing.
func requiredArgs(args []json.RawMessage, dst ...any) error {
	if len(args) < len(dst) {
		return fmt.Errorf("expected %d arguments, got %d", len(dst), len(args))
	}
	return optionalArgs(args, dst...)
}

// optionalArgs decodes the positional arguments present into dst. Missing and null arguments are left unset.
func optionalArgs(args []json.RawMessage, dst ...any) error {
	for i, d := range dst {
		if i >= len(args) || string(args[i]) == "null" {
			continue
		}
		if err := json.Unmarshal(args[i], d); err != nil {
			return fmt.Errorf("decoding argument %d: %w", i+1, err)
		}
	}
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
