package worker

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var emptyValue = []any{"empty"}

// builtinDateFormats are the built-in number format IDs that display dates or times.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	45: true, 46: true, 47: true,
}

// sheetValues converts raw cell contents of one sheet into their wire form.
type sheetValues struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	// dateStyles caches whether a style ID formats dates.
	dateStyles map[int]bool
}

func newSheetValues(f *excelize.File, sheet string, date1904 bool) *sheetValues {
	return &sheetValues{f: f, sheet: sheet, date1904: date1904, dateStyles: map[int]bool{}}
}

// value returns the wire form of the cell at addr whose raw content is raw.
func (v *sheetValues) value(addr, raw string) (any, error) {
	if raw == "" {
		return emptyValue, nil
	}
	typ, err := v.f.GetCellType(v.sheet, addr)
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeError:
		return []any{"error", raw}, nil
	case excelize.CellTypeDate:
		if t, ok := parseISODate(raw); ok {
			return dateValue(t), nil
		}
		return raw, nil
	case excelize.CellTypeInlineString, excelize.CellTypeSharedString, excelize.CellTypeFormula:
		return raw, nil
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw, nil
	}
	isDate, err := v.isDateCell(addr)
	if err != nil {
		return nil, err
	}
	if isDate {
		t, err := excelize.ExcelDateToTime(n, v.date1904)
		if err != nil {
			return nil, err
		}
		return dateValue(t), nil
	}
	return n, nil
}

func (v *sheetValues) isDateCell(addr string) (bool, error) {
	styleID, err := v.f.GetCellStyle(v.sheet, addr)
	if err != nil {
		return false, err
	}
	if isDate, ok := v.dateStyles[styleID]; ok {
		return isDate, nil
	}
	style, err := v.f.GetStyle(styleID)
	if err != nil {
		return false, err
	}
	var isDate bool
	if style.CustomNumFmt != nil {
		isDate = isDateFormatCode(*style.CustomNumFmt)
	} else {
		isDate = builtinDateFormats[style.NumFmt]
	}
	v.dateStyles[styleID] = isDate
	return isDate, nil
}

// isDateFormatCode reports whether a number format code displays a date or a time.
// Quoted text, escaped and padding characters, and bracketed sections such as colors are not considered.
func isDateFormatCode(code string) bool {
	if strings.EqualFold(code, "general") {
		return false
	}
	var b, bracket strings.Builder
	inQuote, inBracket, escaped := false, false, false
	for _, r := range code {
		switch {
		case escaped:
			escaped = false
		case inQuote:
			inQuote = r != '"'
		case inBracket && r == ']':
			inBracket = false
			// elapsed time such as [h] or [mm] is a time format
			if elapsed := bracket.String(); elapsed != "" && strings.Trim(strings.ToLower(elapsed), "hms") == "" {
				b.WriteString(elapsed)
			}
			bracket.Reset()
		case inBracket:
			bracket.WriteRune(r)
		case r == '\\' || r == '_' || r == '*':
			escaped = true
		case r == '"':
			inQuote = true
		case r == '[':
			inBracket = true
		default:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(strings.ToLower(b.String()), "ydhms")
}

func parseISODate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateValue returns the wire form of a date: its wall clock components with a 1-based month.
func dateValue(t time.Time) []any {
	sec := float64(t.Second()) + float64(t.Nanosecond())/1e9
	return []any{"date", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), sec}
}
