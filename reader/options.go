package reader

import (
	"fmt"
	"strconv"
	"time"

	"github.com/guseggert/sheetshell/shell"
	"go.uber.org/zap"
)

const loggerName = "reader"

const (
	// DefaultBufferSize is the number of rows buffered before a batch is flushed.
	DefaultBufferSize = 50
	// DefaultScript is the reader worker script, resolved against the shell root.
	DefaultScript = "excel_reader.py"
)

var defaultLogger *zap.SugaredLogger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("error constructing default logger: %s", err))
	}
	defaultLogger = logger.Sugar().Named(loggerName)
}

type config struct {
	log        *zap.SugaredLogger
	bufferSize int
	location   *time.Location
	script     string
	shellOpts  []shell.Option

	metaOnly bool
	sheets   []string
	maxRows  int
	verbose  bool
}

type Option func(c *config)

// WithBufferSize sets how many rows are buffered before a batch is flushed. Values below 1 are ignored.
func WithBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithMetaOnly only reads workbook metadata, without loading any sheet.
func WithMetaOnly() Option {
	return func(c *config) {
		c.metaOnly = true
	}
}

// WithSheets restricts reading to the given sheets, identified by name or by index.
func WithSheets(sheets ...string) Option {
	return func(c *config) {
		c.sheets = append(c.sheets, sheets...)
	}
}

// WithSheetIndexes restricts reading to the sheets at the given indexes.
func WithSheetIndexes(indexes ...int) Option {
	return func(c *config) {
		for _, i := range indexes {
			c.sheets = append(c.sheets, strconv.Itoa(i))
		}
	}
}

// WithMaxRows caps the number of rows read from each sheet.
func WithMaxRows(n int) Option {
	return func(c *config) {
		c.maxRows = n
	}
}

// WithVerbose asks the worker for extended workbook metadata.
func WithVerbose() Option {
	return func(c *config) {
		c.verbose = true
	}
}

// WithLocation sets the time zone of decoded dates. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		c.location = loc
	}
}

// WithScript sets the worker script to run.
func WithScript(script string) Option {
	return func(c *config) {
		c.script = script
	}
}

// WithShellOptions passes options through to the underlying shell.
func WithShellOptions(opts ...shell.Option) Option {
	return func(c *config) {
		c.shellOpts = append(c.shellOpts, opts...)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.log = l.Named(loggerName).Sugar()
		c.shellOpts = append(c.shellOpts, shell.WithLogger(l))
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		log:        defaultLogger,
		bufferSize: DefaultBufferSize,
		location:   time.Local,
		script:     DefaultScript,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// args returns the worker arguments for reading paths.
func (c *config) args(paths []string) []string {
	var args []string
	if c.metaOnly {
		args = append(args, "-m")
	}
	for _, s := range c.sheets {
		args = append(args, "-s", s)
	}
	if c.maxRows > 0 {
		args = append(args, "-r", strconv.Itoa(c.maxRows))
	}
	if c.verbose {
		args = append(args, "-v")
	}
	return append(args, paths...)
}
