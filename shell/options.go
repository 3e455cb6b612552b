package shell

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const loggerName = "shell"

// DefaultInterpreter is the program used to run worker scripts unless WithInterpreter is given.
const DefaultInterpreter = "python"

var defaultLogger *zap.SugaredLogger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("error constructing default logger: %s", err))
	}
	defaultLogger = logger.Sugar().Named(loggerName)
}

type config struct {
	interpreter     string
	interpreterArgs []string
	root            string
	env             []string
	dir             string
	log             *zap.SugaredLogger
}

type Option func(c *config)

// WithInterpreter sets the program that runs the worker script, and arguments to pass to it before the script path.
// An empty program executes the script directly.
func WithInterpreter(program string, args ...string) Option {
	return func(c *config) {
		c.interpreter = program
		c.interpreterArgs = args
	}
}

// WithRoot sets the directory that worker scripts are resolved against.
// When empty, the script is passed through unchanged.
func WithRoot(dir string) Option {
	return func(c *config) {
		c.root = dir
	}
}

// WithEnv adds KEY=value pairs to the inherited environment of the worker.
func WithEnv(env ...string) Option {
	return func(c *config) {
		c.env = append(c.env, env...)
	}
}

// WithDir sets the working directory of the worker.
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.log = l.Named(loggerName).Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(c *config) {
		c.log = c.log.WithOptions(zap.IncreaseLevel(l))
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		interpreter: DefaultInterpreter,
		log:         defaultLogger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// command returns the program and argument list for running script with args.
func (c *config) command(script string, args []string) (string, []string) {
	if c.root != "" {
		script = filepath.Join(c.root, script)
	}
	if c.interpreter == "" {
		return script, append([]string(nil), args...)
	}
	argv := make([]string, 0, len(c.interpreterArgs)+1+len(args))
	argv = append(argv, c.interpreterArgs...)
	argv = append(argv, script)
	argv = append(argv, args...)
	return c.interpreter, argv
}
