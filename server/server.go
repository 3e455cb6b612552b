// Package server serves spreadsheet reads over HTTP.
//
// POST /read reads whole workbooks into a JSON response, and GET /read streams the reader events over a
// WebSocket, one JSON message per event. The first WebSocket message from the client is the ReadRequest.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/guseggert/sheetshell/reader"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const readLimit = 32768

type Server struct {
	log    *zap.SugaredLogger
	logger *zap.Logger

	listenAddr string
	root       string
	readerOpts []reader.Option

	router  *httprouter.Router
	metrics *metrics
	started time.Time
	active  atomic.Int64

	// ctx is the base context of requests, canceled by Stop to end the streams
	ctx    context.Context
	cancel context.CancelFunc

	mut        sync.Mutex
	httpServer *http.Server
}

func New(opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger:     defaultLogger,
		log:        defaultLogger.Named(loggerName).Sugar(),
		listenAddr: DefaultListenAddr,
		metrics:    newMetrics(),
		started:    time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, o := range opts {
		o(s)
	}

	router := httprouter.New()
	router.GET("/heartbeat", s.heartbeat)
	router.GET("/read", s.readStream)
	router.POST("/read", s.read)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	s.router = router
	return s
}

// Handler returns the HTTP handler of the server, for serving it with another http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until Stop is called.
func (s *Server) Run() error {
	l, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}
	return s.Serve(l)
}

// Serve serves on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	server := &http.Server{
		Handler:     s.router,
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}
	s.mut.Lock()
	s.httpServer = server
	s.mut.Unlock()

	s.log.Infof("listening on %s", l.Addr())
	err := server.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server, then ends the WebSocket streams still running.
func (s *Server) Stop(ctx context.Context) error {
	defer s.cancel()
	s.mut.Lock()
	server := s.httpServer
	s.mut.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, Heartbeat{Started: s.started, ActiveReads: s.active.Load()})
}

// readerOptions returns the paths and reader options of a request.
func (s *Server) readerOptions(req ReadRequest) ([]string, []reader.Option, error) {
	if len(req.Paths) == 0 {
		return nil, nil, errors.New("no paths given")
	}
	paths := req.Paths
	if s.root != "" {
		paths = make([]string, len(req.Paths))
		for i, p := range req.Paths {
			if !filepath.IsLocal(p) {
				return nil, nil, fmt.Errorf("path %q is outside of the root", p)
			}
			paths[i] = filepath.Join(s.root, p)
		}
	}

	opts := []reader.Option{reader.WithLogger(s.logger)}
	opts = append(opts, s.readerOpts...)
	if req.MetaOnly {
		opts = append(opts, reader.WithMetaOnly())
	}
	if len(req.Sheets) > 0 {
		opts = append(opts, reader.WithSheets(req.Sheets...))
	}
	if req.MaxRows > 0 {
		opts = append(opts, reader.WithMaxRows(req.MaxRows))
	}
	if req.Verbose {
		opts = append(opts, reader.WithVerbose())
	}
	if req.BufferSize > 0 {
		opts = append(opts, reader.WithBufferSize(req.BufferSize))
	}
	return paths, opts, nil
}

func (s *Server) read(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decoding request: %s", err), http.StatusBadRequest)
		return
	}
	paths, opts, err := s.readerOptions(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	log := s.log.With("ReadID", id)
	log.Debugw("reading", "Paths", paths)

	s.active.Add(1)
	defer s.active.Add(-1)
	stats := s.metrics.startRead(endpointPost)
	defer stats.done()

	workbooks, err := reader.Read(r.Context(), paths, opts...)
	resp := ReadResponse{ID: id, Workbooks: workbooks}
	for _, e := range multierr.Errors(err) {
		log.Debugf("read error: %s", e)
		resp.Errors = append(resp.Errors, newErrorMessage(e))
	}
	for _, wb := range workbooks {
		for _, sheet := range wb.Sheets {
			stats.rows += len(sheet.Rows)
		}
	}
	stats.errors = len(resp.Errors)

	status := http.StatusOK
	if len(workbooks) == 0 && errors.Is(err, reader.ErrSourceNotFound) {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debugf("error writing response: %s", err)
	}
}

func (s *Server) readStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		s.log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}
	conn.SetReadLimit(readLimit)

	id := uuid.New().String()
	log := s.log.With("ReadID", id)
	log.Debug("accepted WebSocket conn")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var req ReadRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		log.Debugf("error reading request: %s", err)
		closeConn(log, conn, websocket.StatusInvalidFramePayloadData, fmt.Sprintf("reading request: %s", err))
		return
	}
	paths, opts, err := s.readerOptions(req)
	if err != nil {
		closeConn(log, conn, websocket.StatusPolicyViolation, err.Error())
		return
	}

	s.active.Add(1)
	defer s.active.Add(-1)
	stats := s.metrics.startRead(endpointStream)
	defer stats.done()

	// the client sends nothing after the request, so any read means the conn is going away
	ctx = conn.CloseRead(ctx)
	rd := reader.OpenAll(ctx, paths, opts...)
	log.Debugw("reading", "Paths", paths)

	for ev := range rd.Events() {
		switch ev.Type {
		case reader.EventData:
			stats.rows += len(ev.Batch.Rows)
		case reader.EventError:
			stats.errors++
		}
		if err := wsjson.Write(ctx, conn, NewMessage(id, ev)); err != nil {
			log.Debugf("error writing %s message: %s", ev.Type, err)
			if err := rd.Close(); err != nil {
				log.Debugf("error stopping reader: %s", err)
			}
			for range rd.Events() {
			}
			return
		}
	}
	closeConn(log, conn, websocket.StatusNormalClosure, "")
}

func closeConn(log *zap.SugaredLogger, conn *websocket.Conn, code websocket.StatusCode, reason string) {
	// websocket reason can't be above 123 chars
	if len(reason) > 100 {
		reason = reason[0:100]
	}
	if err := conn.Close(code, reason); err != nil {
		log.Debugf("error closing conn: %s", err)
	}
}
