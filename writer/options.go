package writer

import (
	"fmt"

	"github.com/guseggert/sheetshell/shell"
	"go.uber.org/zap"
)

const loggerName = "writer"

// DefaultScript is the writer worker script, resolved against the shell root.
const DefaultScript = "excel_writer.py"

var defaultLogger *zap.SugaredLogger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("error constructing default logger: %s", err))
	}
	defaultLogger = logger.Sugar().Named(loggerName)
}

type config struct {
	log       *zap.SugaredLogger
	format    string
	workbook  WorkbookOptions
	script    string
	shellOpts []shell.Option
}

type Option func(c *config)

// WithFormat sets the file format, FormatXLSX (the default) or FormatXLS.
func WithFormat(format string) Option {
	return func(c *config) {
		c.format = format
	}
}

func WithProperties(p Properties) Option {
	return func(c *config) {
		c.workbook.Properties = &p
	}
}

// WithDefaultDateFormat sets the number format of date cells written without a format.
func WithDefaultDateFormat(numberFormat string) Option {
	return func(c *config) {
		c.workbook.DefaultDateFormat = numberFormat
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
		log:    defaultLogger,
		format: FormatXLSX,
		script: DefaultScript,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}
