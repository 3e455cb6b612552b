package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	readLimit       = 32768
	eventBufferSize = 64
)

type EventType int

const (
	// EventMessage carries one decoded line of worker output.
	EventMessage EventType = iota
	// EventError carries a malformed line, a spawn failure or a worker execution error.
	EventError
	// EventClose is the last event of a shell. It is sent exactly once.
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

type Event struct {
	Type    EventType
	Message Message
	Err     error

	// ExitCode is set on EventClose when Exited is true.
	ExitCode int
	// Exited is false on EventClose if the worker was killed or never started.
	Exited bool
}

// Shell owns one worker subprocess and its three pipes.
type Shell struct {
	log     *zap.SugaredLogger
	program string
	args    []string
	cmd     *exec.Cmd

	events chan Event
	done   chan struct{}

	// stdout and stderr are closed by Kill, as processes spawned by the worker may still hold their write ends
	stdout io.ReadCloser
	stderr io.ReadCloser

	inMut       sync.Mutex
	stdin       io.WriteCloser
	stdinBuf    *bufio.Writer
	inputClosed bool

	stateMut   sync.Mutex
	started    bool
	terminated bool
	killed     bool
	exited     bool
	exitCode   int
}

// Start spawns script as a worker and returns immediately.
// Any failure to spawn the worker is reported as an EventError followed by an EventClose.
// Canceling ctx kills the worker.
func Start(ctx context.Context, script string, args []string, opts ...Option) *Shell {
	cfg := newConfig(opts)
	program, argv := cfg.command(script, args)

	s := &Shell{
		log:     cfg.log,
		program: program,
		args:    argv,
		events:  make(chan Event, eventBufferSize),
		done:    make(chan struct{}),
	}

	cmd := exec.Command(program, argv...)
	cmd.Env = append(os.Environ(), cfg.env...)
	cmd.Dir = cfg.dir
	setProcessGroup(cmd)
	s.cmd = cmd

	err := s.start()
	if err != nil {
		s.log.Debugf("start error: %s", err)
		s.inputClosed = true
		go s.fail(fmt.Errorf("starting worker %q: %w", program, err))
		return s
	}
	s.log.Debugw("started worker", "Program", program, "Args", argv, "PID", cmd.Process.Pid)

	go s.run(ctx)
	return s
}

func (s *Shell) start() error {
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return err
	}

	s.stdin = stdin
	s.stdinBuf = bufio.NewWriter(stdin)
	s.stateMut.Lock()
	s.stdout = stdout
	s.stderr = stderr
	s.started = true
	s.stateMut.Unlock()
	return nil
}

// fail finishes a shell whose worker never started.
func (s *Shell) fail(err error) {
	defer close(s.events)
	defer close(s.done)

	s.events <- Event{Type: EventError, Err: err}

	s.stateMut.Lock()
	s.terminated = true
	s.stateMut.Unlock()

	s.events <- Event{Type: EventClose}
}

func (s *Shell) run(ctx context.Context) {
	defer close(s.events)

	exitedCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.log.Debugf("context done, killing worker: %s", ctx.Err())
			if err := s.Kill(); err != nil {
				s.log.Debugf("error killing worker: %s", err)
			}
		case <-exitedCh:
		}
	}()

	var stderrBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := io.Copy(&stderrBuf, s.stderr)
		if err != nil && !errors.Is(err, os.ErrClosed) {
			s.log.Debugf("stderr reader got error: %s", err)
		}
	}()

	s.readStdout(s.stdout)
	wg.Wait()

	// Wait releases the pipes, so it must come after both readers are done.
	waitErr := s.cmd.Wait()
	close(exitedCh)

	exitCode := s.cmd.ProcessState.ExitCode()
	s.log.Debugf("worker %d exited with code %d", s.cmd.Process.Pid, exitCode)

	s.stateMut.Lock()
	killed := s.killed
	s.stateMut.Unlock()

	if stderrBuf.Len() > 0 {
		s.emit(Event{Type: EventError, Err: &WorkerExecutionError{
			Program:  s.program,
			Args:     s.args,
			Stderr:   stderrBuf.String(),
			ExitCode: exitCode,
		}})
	} else if waitErr != nil && !(killed && exitCode < 0) {
		// a worker that exited on its own is reported even if Kill raced with its exit
		s.emit(Event{Type: EventError, Err: &WorkerExecutionError{
			Program:  s.program,
			Args:     s.args,
			ExitCode: exitCode,
		}})
	}

	s.stateMut.Lock()
	s.terminated = true
	s.exited = exitCode >= 0
	if s.exited {
		s.exitCode = exitCode
	}
	closeEvent := Event{Type: EventClose, ExitCode: s.exitCode, Exited: s.exited}
	s.stateMut.Unlock()

	close(s.done)
	s.emit(closeEvent)
}

func (s *Shell) readStdout(stdout io.Reader) {
	var framer Framer
	buf := make([]byte, readLimit)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, line := range framer.Push(buf[:n]) {
				s.dispatch(line)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.log.Debugf("stdout reader got error: %s", err)
			}
			break
		}
	}
	if pending := framer.Pending(); len(pending) > 0 {
		s.log.Debugf("discarding unterminated output: %q", pending)
	}
}

func (s *Shell) dispatch(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	s.log.Debugf("receive: %s", line)
	msg, err := Decode(line)
	if err != nil {
		var malformed *MalformedMessageError
		if errors.As(err, &malformed) {
			malformed.Args = s.args
		}
		s.emit(Event{Type: EventError, Err: err})
		return
	}
	s.emit(Event{Type: EventMessage, Message: msg})
}

func (s *Shell) emit(e Event) {
	s.events <- e
}

// Events returns the channel of worker events. It is closed after EventClose.
func (s *Shell) Events() <-chan Event {
	return s.events
}

// Done is closed once the worker has exited and its pipes have been released.
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// Send queues a command for the worker. Commands reach the worker in the order Send was called.
// Queued commands are written when the buffer fills, on Flush, or on End.
func (s *Shell) Send(tag string, args ...any) error {
	line, err := Encode(tag, args...)
	if err != nil {
		return err
	}

	s.inMut.Lock()
	defer s.inMut.Unlock()
	if s.inputClosed {
		return ErrInputClosed
	}
	s.log.Debugf("send: %s", bytes.TrimSpace(line))
	if _, err := s.stdinBuf.Write(line); err != nil {
		return fmt.Errorf("writing %q command: %w", tag, err)
	}
	return nil
}

// Flush returns once every command queued before the call has been written to the worker's stdin.
func (s *Shell) Flush() error {
	s.inMut.Lock()
	defer s.inMut.Unlock()
	if s.inputClosed {
		return nil
	}
	if err := s.stdinBuf.Flush(); err != nil {
		return fmt.Errorf("flushing commands: %w", err)
	}
	return nil
}

// End flushes queued commands and closes the worker's stdin, signaling that no more commands will follow.
// Calling Send after End is an error. End is idempotent.
func (s *Shell) End() error {
	s.inMut.Lock()
	defer s.inMut.Unlock()
	if s.inputClosed {
		return nil
	}
	s.inputClosed = true

	var err error
	if flushErr := s.stdinBuf.Flush(); flushErr != nil {
		err = multierr.Append(err, fmt.Errorf("flushing commands: %w", flushErr))
	}
	if closeErr := s.stdin.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		err = multierr.Append(err, fmt.Errorf("closing stdin: %w", closeErr))
	}
	s.log.Debugw("ended input", "Error", err)
	return err
}

// Kill forcibly terminates the worker and the processes it spawned.
// Output that was not yet read is lost, but EventClose is still sent.
func (s *Shell) Kill() error {
	s.stateMut.Lock()
	defer s.stateMut.Unlock()
	if !s.started || s.terminated {
		return nil
	}

	pid := s.cmd.Process.Pid
	s.log.Debugf("killing worker %d", pid)
	if err := s.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
	s.killed = true

	if err := killProcessGroup(pid); err != nil {
		s.log.Debugf("error killing process group of worker %d: %s", pid, err)
	}
	// the readers only see EOF once every process holding the write ends is gone
	for _, c := range []io.Closer{s.stdout, s.stderr} {
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			s.log.Debugf("error closing worker output: %s", err)
		}
	}
	return nil
}

// Terminated reports whether the worker has exited, was killed, or failed to start.
func (s *Shell) Terminated() bool {
	s.stateMut.Lock()
	defer s.stateMut.Unlock()
	return s.terminated
}

// ExitCode returns the exit code of the worker. The second value is false if the worker has not exited yet,
// was killed, or never started.
func (s *Shell) ExitCode() (int, bool) {
	s.stateMut.Lock()
	defer s.stateMut.Unlock()
	return s.exitCode, s.exited
}

// Program returns the program and arguments the worker was started with.
func (s *Shell) Program() (string, []string) {
	return s.program, s.args
}
