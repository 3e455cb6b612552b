// Package celladdr converts between spreadsheet cell addresses and zero-based row and column indexes.
package celladdr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidCellReference is returned for addresses that are neither "A1" nor "row,col" notation.
var ErrInvalidCellReference = errors.New("invalid cell reference")

var (
	a1Pattern     = regexp.MustCompile(`^\$?([A-Za-z]{1,3})\$?([0-9]+)$`)
	rowColPattern = regexp.MustCompile(`^([0-9]+)\s*,\s*([0-9]+)$`)
)

// Parse returns the zero-based row and column of an address in "A1" notation (optionally with $ anchors)
// or "row,col" notation. An empty address is the first cell.
func Parse(address string) (row, col int, err error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, 0, nil
	}

	if strings.Contains(address, ",") {
		m := rowColPattern.FindStringSubmatch(address)
		if m == nil {
			return 0, 0, fmt.Errorf("%w: %s", ErrInvalidCellReference, address)
		}
		row, _ = strconv.Atoi(m[1])
		col, _ = strconv.Atoi(m[2])
		return row, col, nil
	}

	m := a1Pattern.FindStringSubmatch(address)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidCellReference, address)
	}
	rowNum, err := strconv.Atoi(m[2])
	if err != nil || rowNum < 1 {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidCellReference, address)
	}
	return rowNum - 1, ColumnIndex(m[1]), nil
}

// ColumnIndex returns the zero-based index of a column name such as "A" or "AB".
func ColumnIndex(name string) int {
	n := 0
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}

// ColumnName returns the name of the zero-based column index.
func ColumnName(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// Name returns the "A1" address of a zero-based row and column.
func Name(row, col int) string {
	return ColumnName(col) + strconv.Itoa(row+1)
}
