package reader

import (
	"context"
	"fmt"
	"sync"

	"github.com/guseggert/sheetshell/shell"
	"go.uber.org/zap"
)

const eventBufferSize = 16

type EventType int

const (
	// EventOpen is sent when the worker opens a workbook.
	EventOpen EventType = iota
	// EventData carries a batch of rows.
	EventData
	// EventError carries a worker, shell or decoding error. It does not end the stream.
	EventError
	// EventClose is the last event, sent exactly once after the final batch.
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

type Event struct {
	Type     EventType
	Workbook *Workbook
	Batch    *Batch
	Err      error
}

// Reader streams the contents of one or more spreadsheet files read by a worker.
type Reader struct {
	log    *zap.SugaredLogger
	shell  *shell.Shell
	paths  []string
	events chan Event

	mut    sync.Mutex
	killed bool
}

// Open starts reading the file at path.
func Open(ctx context.Context, path string, opts ...Option) *Reader {
	return OpenAll(ctx, []string{path}, opts...)
}

// OpenAll starts reading every file matched by paths, which may be glob patterns, with a single worker.
// Failures are reported as EventError; the stream always ends with EventClose.
// Canceling ctx kills the worker and reports ctx.Err() unless the stream already ended.
func OpenAll(ctx context.Context, paths []string, opts ...Option) *Reader {
	cfg := newConfig(opts)
	r := &Reader{
		log:    cfg.log,
		paths:  paths,
		events: make(chan Event, eventBufferSize),
	}
	r.shell = shell.Start(ctx, cfg.script, cfg.args(paths), cfg.shellOpts...)
	r.log.Debugw("reading", "Paths", paths)
	// the reader worker takes no commands
	if err := r.shell.End(); err != nil {
		r.log.Debugf("error ending worker input: %s", err)
	}

	go r.run(ctx, newInterpreter(cfg, func(e Event) { r.events <- e }))
	return r
}

func (r *Reader) run(ctx context.Context, in *interpreter) {
	defer close(r.events)
	for ev := range r.shell.Events() {
		switch ev.Type {
		case shell.EventMessage:
			in.handleMessage(ev.Message)
		case shell.EventError:
			in.handleError(ev.Err)
		case shell.EventClose:
			r.log.Debugw("worker closed", "ExitCode", ev.ExitCode, "Exited", ev.Exited)
			in.handleShellClose()
		}
	}

	r.mut.Lock()
	killed := r.killed
	r.mut.Unlock()
	if err := ctx.Err(); err != nil && !killed {
		in.handleError(err)
		killed = true
	}
	in.finish(killed)
}

// Events returns the channel of reader events. It is closed after EventClose.
// Callers must drain it.
func (r *Reader) Events() <-chan Event {
	return r.events
}

// Close stops reading by killing the worker. Events still end with EventClose.
func (r *Reader) Close() error {
	r.mut.Lock()
	r.killed = true
	r.mut.Unlock()
	return r.shell.Kill()
}

// Paths returns the paths the reader was opened with.
func (r *Reader) Paths() []string {
	return r.paths
}
