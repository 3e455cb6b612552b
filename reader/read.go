package reader

import (
	"context"

	"go.uber.org/multierr"
)

// Read reads every workbook matched by paths into memory.
//
// Errors reported while reading do not discard the data read so far: the workbooks are returned together with
// the error. A single error is returned as is, several are combined and can be split with multierr.Errors.
// If no workbook was opened and no error was reported, the error is a *SourceNotFoundError.
func Read(ctx context.Context, paths []string, opts ...Option) ([]*Workbook, error) {
	r := OpenAll(ctx, paths, opts...)

	var workbooks []*Workbook
	var errs error
	// keyed by the workbook pointer the reader sends, so batches land in the right workbook
	byHandle := map[*Workbook]*Workbook{}

	for ev := range r.Events() {
		switch ev.Type {
		case EventOpen:
			wb := &Workbook{File: ev.Workbook.File, Meta: ev.Workbook.Meta}
			byHandle[ev.Workbook] = wb
			workbooks = append(workbooks, wb)
		case EventData:
			wb, ok := byHandle[ev.Batch.Workbook]
			if !ok {
				r.log.Debugf("dropping %d rows received outside of a workbook", len(ev.Batch.Rows))
				continue
			}
			if ev.Batch.Sheet == nil {
				r.log.Debugf("dropping %d rows received before any sheet of %s", len(ev.Batch.Rows), wb.File)
				continue
			}
			appendBatch(wb, ev.Batch)
		case EventError:
			errs = multierr.Append(errs, ev.Err)
		}
	}

	if errs == nil && len(workbooks) == 0 {
		errs = &SourceNotFoundError{Paths: paths}
	}
	return workbooks, errs
}

// ReadFile reads a single workbook into memory. See Read.
// If path is a pattern matching several files, only the first workbook is returned; use Read to get them all.
func ReadFile(ctx context.Context, path string, opts ...Option) (*Workbook, error) {
	workbooks, err := Read(ctx, []string{path}, opts...)
	if len(workbooks) == 0 {
		return nil, err
	}
	if len(workbooks) > 1 {
		newConfig(opts).log.Debugf("%s matched %d workbooks, dropping all but %s", path, len(workbooks), workbooks[0].File)
	}
	return workbooks[0], err
}

func appendBatch(wb *Workbook, batch *Batch) {
	var sheet *Sheet
	for _, s := range wb.Sheets {
		if s.Index == batch.Sheet.Index {
			sheet = s
			break
		}
	}
	if sheet == nil {
		sheet = &Sheet{
			Index:      batch.Sheet.Index,
			Name:       batch.Sheet.Name,
			Bounds:     batch.Sheet.Bounds,
			Visibility: batch.Sheet.Visibility,
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	sheet.Rows = append(sheet.Rows, batch.Rows...)
}
