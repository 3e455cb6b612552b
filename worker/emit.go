package worker

import (
	"bufio"
	"io"

	"github.com/guseggert/sheetshell/shell"
)

// emitter writes protocol messages, remembering the first write error.
type emitter struct {
	w   *bufio.Writer
	err error
}

func newEmitter(w io.Writer) *emitter {
	return &emitter{w: bufio.NewWriter(w)}
}

func (e *emitter) emit(tag string, args ...any) {
	if e.err != nil {
		return
	}
	b, err := shell.Encode(tag, args...)
	if err != nil {
		e.err = err
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *emitter) flush() error {
	if e.err != nil {
		return e.err
	}
	e.err = e.w.Flush()
	return e.err
}
