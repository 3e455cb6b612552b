package worker

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/guseggert/sheetshell/reader"
	"github.com/xuri/excelize/v2"
)

// ReadOptions mirror the arguments the reader passes to its worker.
type ReadOptions struct {
	// MetaOnly only reports workbooks, without loading any sheet.
	MetaOnly bool
	// Sheets restricts reading to sheets identified by name or index.
	Sheets []string
	// MaxRows caps the number of rows read from each sheet when positive.
	MaxRows int
	// Verbose adds document properties to workbook records.
	Verbose bool
}

type workbookRecord struct {
	File       string         `json:"file"`
	User       string         `json:"user,omitempty"`
	Sheets     []string       `json:"sheets"`
	Properties map[string]any `json:"properties,omitempty"`
}

type sheetRecord struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Rows       int    `json:"rows"`
	Columns    int    `json:"columns"`
	Visibility int    `json:"visibility"`
}

// Read writes the contents of every file matched by patterns to out as reader messages, followed by end-of-input.
// Failures to open a workbook or load a sheet are reported in-band. The returned error is only about out.
func Read(ctx context.Context, patterns []string, opts ReadOptions, out io.Writer) error {
	e := newEmitter(out)
	for _, pattern := range patterns {
		files, err := filepath.Glob(pattern)
		if err != nil {
			e.emit(reader.TagError, &reader.WorkerError{
				ID:        "invalid_pattern",
				Exception: exceptionName(err),
				Details:   err.Error(),
				File:      pattern,
			})
			continue
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			readWorkbook(e, file, opts)
			if err := e.flush(); err != nil {
				return err
			}
		}
	}
	e.emit(reader.TagEndOfInput)
	return e.flush()
}

func readWorkbook(e *emitter, file string, opts ReadOptions) {
	f, err := excelize.OpenFile(file)
	if err != nil {
		e.emit(reader.TagError, &reader.WorkerError{
			ID:        "open_workbook_failed",
			Exception: exceptionName(err),
			Details:   err.Error(),
			File:      file,
		})
		return
	}
	defer f.Close()

	names := f.GetSheetList()
	record := workbookRecord{File: file, Sheets: names}
	if props, err := f.GetDocProps(); err == nil {
		record.User = props.LastModifiedBy
		if record.User == "" {
			record.User = props.Creator
		}
		if opts.Verbose {
			record.Properties = docProperties(props)
		}
	}
	e.emit(reader.TagWorkbookOpen, record)
	if opts.MetaOnly {
		return
	}

	var date1904 bool
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	if len(opts.Sheets) == 0 {
		for i := range names {
			readSheet(e, f, i, names[i], opts.MaxRows, date1904)
		}
		return
	}
	for _, s := range opts.Sheets {
		index := slices.Index(names, s)
		if index < 0 {
			if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(names) {
				index = n
			}
		}
		if index < 0 {
			e.emit(reader.TagError, &reader.WorkerError{
				ID:        "load_sheet_failed",
				Exception: "SheetNotFound",
				Details:   fmt.Sprintf("no sheet named or numbered %q", s),
				File:      file,
				SheetName: s,
			})
			continue
		}
		readSheet(e, f, index, names[index], opts.MaxRows, date1904)
	}
}

func readSheet(e *emitter, f *excelize.File, index int, name string, maxRows int, date1904 bool) {
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		e.emit(reader.TagError, &reader.WorkerError{
			ID:         "load_sheet_failed",
			Exception:  exceptionName(err),
			Details:    err.Error(),
			File:       f.Path,
			SheetName:  name,
			SheetIndex: &index,
		})
		return
	}

	columns := 0
	for _, row := range rows {
		columns = max(columns, len(row))
	}
	visibility := 0
	if visible, err := f.GetSheetVisible(name); err == nil && !visible {
		visibility = 1
	}
	e.emit(reader.TagSheetChange, sheetRecord{
		Index:      index,
		Name:       name,
		Rows:       len(rows),
		Columns:    columns,
		Visibility: visibility,
	})

	limit := len(rows)
	if maxRows > 0 {
		limit = min(limit, maxRows)
	}
	values := newSheetValues(f, name, date1904)
	for r := 0; r < limit; r++ {
		for c := 0; c < columns; c++ {
			addr, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			var raw string
			if c < len(rows[r]) {
				raw = rows[r][c]
			}
			v, err := values.value(addr, raw)
			if err != nil {
				e.emit(reader.TagError, &reader.WorkerError{
					ID:         "dump_sheet_failed",
					Exception:  exceptionName(err),
					Details:    fmt.Sprintf("%s: %s", addr, err),
					File:       f.Path,
					SheetName:  name,
					SheetIndex: &index,
				})
				continue
			}
			e.emit(reader.TagCell, []any{r, c, addr, v})
		}
	}
}

func docProperties(p *excelize.DocProperties) map[string]any {
	props := map[string]any{}
	set := func(key, value string) {
		if value != "" {
			props[key] = value
		}
	}
	set("title", p.Title)
	set("subject", p.Subject)
	set("creator", p.Creator)
	set("keywords", p.Keywords)
	set("description", p.Description)
	set("lastModifiedBy", p.LastModifiedBy)
	set("category", p.Category)
	set("created", p.Created)
	set("modified", p.Modified)
	set("revision", p.Revision)
	set("version", p.Version)
	return props
}

// exceptionName names the type of err, such as "fs.PathError".
func exceptionName(err error) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
