package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guseggert/sheetshell/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var log *zap.Logger

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log = l
}

// workerScript writes a shell script standing in for the reader worker and returns the options to run it.
func workerScript(t *testing.T, body string) []Option {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.sh"), []byte(body), 0o644))
	return []Option{
		WithScript("worker.sh"),
		WithLocation(time.UTC),
		WithLogger(log),
		WithShellOptions(shell.WithInterpreter("sh"), shell.WithRoot(dir)),
	}
}

// printLines returns a script line printing each argument on its own line.
func printLines(lines ...string) string {
	var b strings.Builder
	b.WriteString(`printf '%s\n'`)
	for _, l := range lines {
		b.WriteString(" '")
		b.WriteString(l)
		b.WriteString("'")
	}
	b.WriteString("\n")
	return b.String()
}

func collect(t *testing.T, r *Reader) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e, ok := <-r.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(events))
		}
	}
}

func byType(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

var scenario = printLines(
	`["workbook-open",{"file":"a.xlsx","user":"u","sheets":["S1"]}]`,
	`["sheet-change",{"index":0,"name":"S1","rows":2,"columns":2,"visibility":0}]`,
	`["cell",[0,0,"A1",1]]`,
	`["cell",[0,1,"B1","x"]]`,
	`["cell",[1,0,"A2",["empty"]]]`,
	`["cell",[1,1,"B2",["date",2020,1,1,0,0,0]]]`,
	`["end-of-input"]`,
)

func TestReaderEndToEnd(t *testing.T) {
	r := Open(context.Background(), "a.xlsx", workerScript(t, scenario)...)
	events := collect(t, r)

	assert.Empty(t, byType(events, EventError))
	require.Len(t, byType(events, EventOpen), 1)
	require.Len(t, byType(events, EventClose), 1)
	assert.Equal(t, EventOpen, events[0].Type)
	assert.Equal(t, EventClose, events[len(events)-1].Type)

	data := byType(events, EventData)
	require.Len(t, data, 1)
	batch := data[0].Batch
	assert.Equal(t, "a.xlsx", batch.Workbook.File)
	assert.Equal(t, "S1", batch.Sheet.Name)
	assert.Equal(t, Bounds{Rows: 2, Columns: 2}, batch.Sheet.Bounds)
	require.Len(t, batch.Rows, 2)

	values := func(row Row) []any {
		var out []any
		for _, c := range row {
			out = append(out, c.Value)
		}
		return out
	}
	assert.Equal(t, []any{float64(1), "x"}, values(batch.Rows[0]))
	assert.Equal(t, []any{nil, time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)}, values(batch.Rows[1]))
}

func TestReadFile(t *testing.T) {
	wb, err := ReadFile(context.Background(), "a.xlsx", workerScript(t, scenario)...)
	require.NoError(t, err)
	require.NotNil(t, wb)

	assert.Equal(t, "u", wb.Meta.User)
	sheet := wb.Sheet("S1")
	require.NotNil(t, sheet)
	assert.Nil(t, wb.Sheet("S2"))

	cell, err := sheet.Cell("B2")
	require.NoError(t, err)
	require.NotNil(t, cell)
	assert.Equal(t, "B2", cell.Address)

	cell, err = sheet.Cell("0,1")
	require.NoError(t, err)
	require.NotNil(t, cell)
	assert.Equal(t, "x", cell.Value)

	cell, err = sheet.Cell("C9")
	require.NoError(t, err)
	assert.Nil(t, cell)

	_, err = sheet.Cell("not a cell")
	assert.Error(t, err)
}

func TestReadAggregatesWorkbooks(t *testing.T) {
	script := printLines(
		`["workbook-open",{"file":"a.xlsx","sheets":["A","B"]}]`,
		`["sheet-change",{"index":0,"name":"A","rows":2,"columns":1,"visibility":0}]`,
		`["cell",[0,0,"A1",1]]`,
		`["cell",[1,0,"A2",2]]`,
		`["sheet-change",{"index":1,"name":"B","rows":1,"columns":1,"visibility":2}]`,
		`["cell",[0,0,"A1",3]]`,
		`["workbook-open",{"file":"b.xlsx","sheets":["C"]}]`,
		`["sheet-change",{"index":0,"name":"C","rows":3,"columns":1,"visibility":0}]`,
		`["cell",[0,0,"A1",4]]`,
		`["cell",[1,0,"A2",5]]`,
		`["cell",[2,0,"A3",6]]`,
		`["end-of-input"]`,
	)
	opts := append(workerScript(t, script), WithBufferSize(1))
	workbooks, err := Read(context.Background(), []string{"*.xlsx"}, opts...)
	require.NoError(t, err)
	require.Len(t, workbooks, 2)

	a, b := workbooks[0], workbooks[1]
	assert.Equal(t, "a.xlsx", a.File)
	require.Len(t, a.Sheets, 2)
	assert.Len(t, a.Sheets[0].Rows, 2)
	assert.Equal(t, VeryHidden, a.Sheet("B").Visibility)
	assert.Len(t, a.Sheet("B").Rows, 1)

	assert.Equal(t, "b.xlsx", b.File)
	require.Len(t, b.Sheets, 1)
	require.Len(t, b.Sheets[0].Rows, 3)
	assert.Equal(t, float64(6), b.Sheets[0].Rows[2][0].Value)
}

func TestReadDropsRowsBeforeFirstSheet(t *testing.T) {
	script := printLines(
		`["workbook-open",{"file":"a.xlsx","sheets":["A"]}]`,
		`["cell",[0,0,"A1","stray"]]`,
		`["sheet-change",{"index":0,"name":"A","rows":1,"columns":1,"visibility":0}]`,
		`["cell",[0,0,"A1","kept"]]`,
		`["end-of-input"]`,
	)
	wb, err := ReadFile(context.Background(), "a.xlsx", workerScript(t, script)...)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)
	sheet := wb.Sheets[0]
	assert.Equal(t, "A", sheet.Name)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "kept", sheet.Rows[0][0].Value)
}

func TestReadFileReturnsFirstMatch(t *testing.T) {
	script := printLines(
		`["workbook-open",{"file":"a.xlsx","sheets":[]}]`,
		`["workbook-open",{"file":"b.xlsx","sheets":[]}]`,
		`["end-of-input"]`,
	)
	wb, err := ReadFile(context.Background(), "*.xlsx", workerScript(t, script)...)
	require.NoError(t, err)
	require.NotNil(t, wb)
	assert.Equal(t, "a.xlsx", wb.File)
}

func TestReadSourceNotFound(t *testing.T) {
	_, err := Read(context.Background(), []string{"missing.xlsx"}, workerScript(t, printLines(`["end-of-input"]`))...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceNotFound)

	var notFound *SourceNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, []string{"missing.xlsx"}, notFound.Paths)
}

func TestReadKeepsDataOnError(t *testing.T) {
	script := printLines(
		`["workbook-open",{"file":"a.xlsx","sheets":["A","B"]}]`,
		`["sheet-change",{"index":0,"name":"A","rows":1,"columns":1,"visibility":0}]`,
		`["cell",[0,0,"A1",1]]`,
		`["error",{"id":"sheet_load_failed","message":"bad sheet","sheet_name":"B","sheet_index":1}]`,
		`["end-of-input"]`,
	)
	wb, err := ReadFile(context.Background(), "a.xlsx", workerScript(t, script)...)
	require.Error(t, err)
	require.NotNil(t, wb)
	assert.Len(t, wb.Sheets, 1)

	var werr *WorkerError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "B", werr.SheetName)
	require.NotNil(t, werr.SheetIndex)
	assert.Equal(t, 1, *werr.SheetIndex)
}

func TestReadTruncatedOutput(t *testing.T) {
	script := printLines(
		`["workbook-open",{"file":"a.xlsx","sheets":["A"]}]`,
		`["sheet-change",{"index":0,"name":"A","rows":2,"columns":1,"visibility":0}]`,
		`["cell",[0,0,"A1",1]]`,
	)
	wb, err := ReadFile(context.Background(), "a.xlsx", workerScript(t, script)...)
	assert.ErrorIs(t, err, ErrTruncatedOutput)
	require.NotNil(t, wb)
	require.Len(t, wb.Sheets, 1)
	assert.Len(t, wb.Sheets[0].Rows, 1)
}

func TestReadWorkerFailure(t *testing.T) {
	_, err := Read(context.Background(), []string{"a.xlsx"}, workerScript(t, "echo boom >&2\nexit 1\n")...)
	require.Error(t, err)

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)

	var execErr *shell.WorkerExecutionError
	require.True(t, errors.As(errs[0], &execErr))
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Contains(t, execErr.Stderr, "boom")
	assert.ErrorIs(t, errs[1], ErrTruncatedOutput)
}

func TestReaderPassesArguments(t *testing.T) {
	script := `printf '["workbook-open",{"file":"%s","sheets":[]}]\n' "$*"` + "\n" + printLines(`["end-of-input"]`)
	opts := append(workerScript(t, script), WithMetaOnly(), WithSheets("S1"), WithSheetIndexes(2), WithMaxRows(10), WithVerbose())
	workbooks, err := Read(context.Background(), []string{"a.xlsx", "b.xls"}, opts...)
	require.NoError(t, err)
	require.Len(t, workbooks, 1)
	assert.Equal(t, "-m -s S1 -s 2 -r 10 -v a.xlsx b.xls", workbooks[0].File)
}

func TestReaderClose(t *testing.T) {
	script := printLines(`["workbook-open",{"file":"a.xlsx","sheets":["A"]}]`) + "exec sleep 30\n"
	r := Open(context.Background(), "a.xlsx", workerScript(t, script)...)

	select {
	case ev := <-r.Events():
		require.Equal(t, EventOpen, ev.Type)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for open")
	}

	require.NoError(t, r.Close())
	events := collect(t, r)
	assert.Empty(t, byType(events, EventError))
	require.Len(t, events, 1)
	assert.Equal(t, EventClose, events[0].Type)
}

func TestReaderContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Open(ctx, "a.xlsx", workerScript(t, "exec sleep 30\n")...)
	cancel()

	events := collect(t, r)
	errs := byType(events, EventError)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, context.Canceled)
	assert.Equal(t, EventClose, events[len(events)-1].Type)
}
