package server

import (
	"fmt"

	"github.com/guseggert/sheetshell/reader"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const loggerName = "server"

// DefaultListenAddr is the address Run listens on unless WithListenAddr is given.
const DefaultListenAddr = "127.0.0.1:8080"

var defaultLogger *zap.Logger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("error constructing default logger: %s", err))
	}
	defaultLogger = logger
}

type Option func(s *Server)

func WithListenAddr(addr string) Option {
	return func(s *Server) {
		s.listenAddr = addr
	}
}

// WithRoot confines requested paths to dir. Requested paths are then relative to dir.
func WithRoot(dir string) Option {
	return func(s *Server) {
		s.root = dir
	}
}

// WithReaderOptions sets the reader options applied to every read, before the options of the request.
func WithReaderOptions(opts ...reader.Option) Option {
	return func(s *Server) {
		s.readerOpts = append(s.readerOpts, opts...)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
		s.log = l.Named(loggerName).Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(s *Server) {
		s.log = s.log.WithOptions(zap.IncreaseLevel(l))
	}
}
