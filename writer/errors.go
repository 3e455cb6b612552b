package writer

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrSheetNotFound     = errors.New("sheet not found")
	// ErrNotSaved is returned by Save when the worker exited without writing the workbook.
	ErrNotSaved = errors.New("worker exited without saving the workbook")
)
