package reader

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/guseggert/sheetshell/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) emit(e Event) { r.events = append(r.events, e) }

func (r *recorder) ofType(typ EventType) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestInterpreter(opts ...Option) (*interpreter, *recorder) {
	rec := &recorder{}
	opts = append([]Option{WithLocation(time.UTC)}, opts...)
	return newInterpreter(newConfig(opts), rec.emit), rec
}

func feed(t *testing.T, in *interpreter, lines ...string) {
	t.Helper()
	for _, line := range lines {
		msg, err := shell.Decode(line)
		require.NoError(t, err, line)
		in.handleMessage(msg)
	}
}

func cellLine(row, col int, value string) string {
	return fmt.Sprintf(`["cell",[%d,%d,"%s",%s]]`, row, col, fmt.Sprintf("R%dC%d", row, col), value)
}

const (
	openLine   = `["workbook-open",{"file":"a.xlsx","user":"u","sheets":["S1","S2"]}]`
	sheet0Line = `["sheet-change",{"index":0,"name":"S1","rows":3,"columns":1,"visibility":0}]`
	sheet1Line = `["sheet-change",{"index":1,"name":"S2","rows":1,"columns":1,"visibility":1}]`
)

func TestFlushOnSheetChange(t *testing.T) {
	in, rec := newTestInterpreter()
	feed(t, in, openLine, sheet0Line, cellLine(0, 0, "1"), cellLine(1, 0, "2"), cellLine(2, 0, "3"))
	assert.Empty(t, rec.ofType(EventData))

	feed(t, in, sheet1Line)
	data := rec.ofType(EventData)
	require.Len(t, data, 1)
	assert.Equal(t, 0, data[0].Batch.Sheet.Index)
	assert.Len(t, data[0].Batch.Rows, 3)

	feed(t, in, cellLine(0, 0, `"x"`), `["end-of-input"]`)
	in.handleShellClose()

	data = rec.ofType(EventData)
	require.Len(t, data, 2)
	assert.Equal(t, "S2", data[1].Batch.Sheet.Name)
	assert.Equal(t, Hidden, data[1].Batch.Sheet.Visibility)
	assert.Equal(t, EventClose, rec.events[len(rec.events)-1].Type)
}

func TestBufferCapacityFlush(t *testing.T) {
	const k = 4
	in, rec := newTestInterpreter(WithBufferSize(k))
	feed(t, in, openLine, sheet0Line)
	for row := 0; row <= k; row++ {
		feed(t, in, cellLine(row, 0, "1"), cellLine(row, 1, "2"))
	}

	data := rec.ofType(EventData)
	require.Len(t, data, 1)
	require.Len(t, data[0].Batch.Rows, k)
	for _, row := range data[0].Batch.Rows {
		assert.Len(t, row, 2)
	}
	require.Len(t, in.rows, 1)
	assert.Equal(t, k, in.rows[0][0].Row)
}

func TestRowsAreNeverSplit(t *testing.T) {
	in, rec := newTestInterpreter(WithBufferSize(1))
	feed(t, in, openLine, sheet0Line)
	for row := 0; row < 3; row++ {
		for col := 0; col < 5; col++ {
			feed(t, in, cellLine(row, col, "0"))
		}
	}
	feed(t, in, `["end-of-input"]`)
	in.handleShellClose()

	data := rec.ofType(EventData)
	require.Len(t, data, 3)
	for i, d := range data {
		require.Len(t, d.Batch.Rows, 1)
		assert.Len(t, d.Batch.Rows[0], 5)
		assert.Equal(t, i, d.Batch.Rows[0][0].Row)
	}
}

func TestBatchIsASnapshot(t *testing.T) {
	in, rec := newTestInterpreter(WithBufferSize(1))
	feed(t, in, openLine, sheet0Line, cellLine(0, 0, "1"), cellLine(1, 0, "2"))
	data := rec.ofType(EventData)
	require.Len(t, data, 1)
	rows := data[0].Batch.Rows

	feed(t, in, cellLine(1, 1, "3"), cellLine(2, 0, "4"))
	assert.Len(t, rows, 1)
	assert.Len(t, rows[0], 1)
}

func TestCloseOnce(t *testing.T) {
	cases := []struct {
		name  string
		drive func(t *testing.T, in *interpreter)
	}{
		{
			name: "end of input first",
			drive: func(t *testing.T, in *interpreter) {
				feed(t, in, `["end-of-input"]`)
				in.handleShellClose()
			},
		},
		{
			name: "process exit first",
			drive: func(t *testing.T, in *interpreter) {
				in.handleShellClose()
				feed(t, in, `["end-of-input"]`)
			},
		},
		{
			name: "repeated signals",
			drive: func(t *testing.T, in *interpreter) {
				feed(t, in, `["end-of-input"]`, `["end-of-input"]`)
				in.handleShellClose()
				in.handleShellClose()
				in.finish(false)
				feed(t, in, cellLine(5, 0, "1"))
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in, rec := newTestInterpreter()
			feed(t, in, openLine, sheet0Line, cellLine(0, 0, "1"))
			c.drive(t, in)

			assert.Len(t, rec.ofType(EventClose), 1)
			assert.Len(t, rec.ofType(EventData), 1)
			assert.Empty(t, rec.ofType(EventError))

			// the final flush precedes close
			last := rec.events[len(rec.events)-1]
			assert.Equal(t, EventClose, last.Type)
			assert.Equal(t, EventData, rec.events[len(rec.events)-2].Type)
		})
	}
}

func TestFinishWithoutEndOfInput(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		in, rec := newTestInterpreter()
		feed(t, in, openLine, sheet0Line, cellLine(0, 0, "1"))
		in.handleShellClose()
		assert.Empty(t, rec.ofType(EventClose))

		in.finish(false)
		errs := rec.ofType(EventError)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0].Err, ErrTruncatedOutput)
		assert.Len(t, rec.ofType(EventData), 1)
		assert.Len(t, rec.ofType(EventClose), 1)
	})
	t.Run("killed", func(t *testing.T) {
		in, rec := newTestInterpreter()
		feed(t, in, openLine)
		in.handleShellClose()
		in.finish(true)
		assert.Empty(t, rec.ofType(EventError))
		assert.Len(t, rec.ofType(EventClose), 1)
	})
}

func TestWorkbookOpenFlushesPreviousWorkbook(t *testing.T) {
	in, rec := newTestInterpreter()
	feed(t, in, openLine, sheet0Line, cellLine(0, 0, "1"),
		`["workbook-open",{"file":"b.xlsx","sheets":["S1"]}]`,
		sheet0Line, cellLine(0, 0, "2"), `["end-of-input"]`)
	in.handleShellClose()

	opens := rec.ofType(EventOpen)
	require.Len(t, opens, 2)
	data := rec.ofType(EventData)
	require.Len(t, data, 2)
	assert.Equal(t, "a.xlsx", data[0].Batch.Workbook.File)
	assert.Equal(t, "b.xlsx", data[1].Batch.Workbook.File)
	assert.Equal(t, []string{"S1", "S2"}, opens[0].Workbook.Meta.Sheets)
	assert.Equal(t, "u", opens[0].Workbook.Meta.User)
}

func TestCellValues(t *testing.T) {
	cases := []struct {
		name     string
		wire     string
		expValue any
	}{
		{name: "number", wire: `1.5`, expValue: 1.5},
		{name: "string", wire: `"x"`, expValue: "x"},
		{name: "bool", wire: `true`, expValue: true},
		{name: "null", wire: `null`, expValue: nil},
		{name: "empty", wire: `["empty"]`, expValue: nil},
		{name: "date", wire: `["date",2020,1,31,13,45,30]`, expValue: time.Date(2020, time.January, 31, 13, 45, 30, 0, time.UTC)},
		{name: "date with fractional seconds", wire: `["date",2021,12,1,0,0,1.5]`, expValue: time.Date(2021, time.December, 1, 0, 0, 1, 500000000, time.UTC)},
		{name: "date without time", wire: `["date",1999,6,2]`, expValue: time.Date(1999, time.June, 2, 0, 0, 0, 0, time.UTC)},
		{name: "error", wire: `["error","#DIV/0!"]`, expValue: &CellError{Code: "#DIV/0!"}},
		{name: "other array passes through", wire: `["x",1]`, expValue: []any{"x", float64(1)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in, rec := newTestInterpreter()
			feed(t, in, openLine, sheet0Line, cellLine(0, 0, c.wire), `["end-of-input"]`)
			in.handleShellClose()

			data := rec.ofType(EventData)
			require.Len(t, data, 1)
			assert.Equal(t, c.expValue, data[0].Batch.Rows[0][0].Value)
		})
	}
}

func TestCellObjectPayload(t *testing.T) {
	in, rec := newTestInterpreter()
	feed(t, in, openLine, sheet0Line, `["cell",{"r":3,"c":2,"a":"C4","v":"obj"}]`, `["end-of-input"]`)
	in.handleShellClose()

	data := rec.ofType(EventData)
	require.Len(t, data, 1)
	assert.Equal(t, Cell{Row: 3, Column: 2, Address: "C4", Value: "obj"}, data[0].Batch.Rows[0][0])
}

func TestWorkerErrorMessage(t *testing.T) {
	in, rec := newTestInterpreter()
	feed(t, in,
		`["error",{"id":"open_workbook_failed","exception":"XLRDError","details":"Unsupported format","file":"x.doc"}]`,
		`["error","plain text failure"]`,
		`["error","ValueError","bad workbook","Traceback (most recent call last)"]`,
		`["error",["KeyError","no such sheet"]]`,
	)

	errs := rec.ofType(EventError)
	require.Len(t, errs, 4)

	var werr *WorkerError
	require.True(t, errors.As(errs[0].Err, &werr))
	assert.Equal(t, "XLRDError", werr.Exception)
	assert.Equal(t, "x.doc", werr.File)
	assert.Equal(t, "[XLRDError] open_workbook_failed: Unsupported format", werr.Error())

	require.True(t, errors.As(errs[1].Err, &werr))
	assert.Equal(t, "plain text failure", werr.Message)

	require.True(t, errors.As(errs[2].Err, &werr))
	assert.Equal(t, &WorkerError{
		Exception: "ValueError",
		Message:   "bad workbook",
		Details:   "Traceback (most recent call last)",
	}, werr)
	assert.Equal(t, "[ValueError] bad workbook (Traceback (most recent call last))", werr.Error())

	require.True(t, errors.As(errs[3].Err, &werr))
	assert.Equal(t, "KeyError", werr.Exception)
	assert.Equal(t, "no such sheet", werr.Message)

	// errors do not end the stream
	assert.Empty(t, rec.ofType(EventClose))
}

func TestBadPayloadIsReportedAndSkipped(t *testing.T) {
	in, rec := newTestInterpreter()
	feed(t, in, openLine, sheet0Line, `["cell",[0,0]]`, `["sheet-change","nope"]`, cellLine(0, 0, "1"), `["end-of-input"]`)
	in.handleShellClose()

	errs := rec.ofType(EventError)
	require.Len(t, errs, 2)
	var malformed *shell.MalformedMessageError
	assert.True(t, errors.As(errs[0].Err, &malformed))
	assert.Len(t, rec.ofType(EventData), 1)
}

func TestUnknownTagsAreIgnored(t *testing.T) {
	in, rec := newTestInterpreter()
	feed(t, in, `["progress",10]`, `["end-of-input"]`)
	in.handleShellClose()
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventClose, rec.events[0].Type)
}
