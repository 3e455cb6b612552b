package reader

import (
	"fmt"

	"github.com/guseggert/sheetshell/internal/celladdr"
)

// Workbook describes a file opened by the worker.
// Sheets is only populated by Read and ReadFile.
type Workbook struct {
	File   string   `json:"file"`
	Meta   Meta     `json:"meta"`
	Sheets []*Sheet `json:"sheets,omitempty"`
}

type Meta struct {
	User   string   `json:"user,omitempty"`
	Sheets []string `json:"sheets"`
	// Properties holds document properties, only sent by the worker when verbose metadata is requested.
	Properties map[string]any `json:"properties,omitempty"`
}

// Sheet returns the sheet with the given name, or nil.
func (w *Workbook) Sheet(name string) *Sheet {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

type Visibility string

const (
	Visible    Visibility = "visible"
	Hidden     Visibility = "hidden"
	VeryHidden Visibility = "very hidden"
)

func visibilityFromCode(code int) Visibility {
	switch code {
	case 1:
		return Hidden
	case 2:
		return VeryHidden
	default:
		return Visible
	}
}

type Bounds struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

type Sheet struct {
	Index      int        `json:"index"`
	Name       string     `json:"name"`
	Bounds     Bounds     `json:"bounds"`
	Visibility Visibility `json:"visibility"`
	Rows       []Row      `json:"rows,omitempty"`
}

// Cell returns the cell at an address such as "B3" or "2,1".
// It returns nil if the sheet has no cell there.
func (s *Sheet) Cell(address string) (*Cell, error) {
	row, col, err := celladdr.Parse(address)
	if err != nil {
		return nil, err
	}
	for _, r := range s.rowsAt(row) {
		for i := range r {
			if r[i].Column == col {
				return &r[i], nil
			}
		}
	}
	return nil, nil
}

// rowsAt returns the row holding cells of the given row index, checking the row at that position first.
func (s *Sheet) rowsAt(row int) []Row {
	if row < len(s.Rows) && len(s.Rows[row]) > 0 && s.Rows[row][0].Row == row {
		return s.Rows[row : row+1]
	}
	for i, r := range s.Rows {
		if len(r) > 0 && r[0].Row == row {
			return s.Rows[i : i+1]
		}
	}
	return nil
}

type Cell struct {
	Row     int    `json:"row"`
	Column  int    `json:"column"`
	Address string `json:"address"`
	// Value is one of float64, string, bool, time.Time, *CellError, or nil for an empty cell.
	Value any `json:"value"`
}

type Row []Cell

// Batch is the payload of EventData: consecutive whole rows of one sheet.
type Batch struct {
	Workbook *Workbook `json:"workbook"`
	Sheet    *Sheet    `json:"sheet"`
	Rows     []Row     `json:"rows"`
}

// CellError is the value of a cell holding a spreadsheet error such as #DIV/0!.
type CellError struct {
	Code string `json:"errorCode"`
}

func (e *CellError) Error() string {
	return fmt.Sprintf("cell error: %s", e.Code)
}
