// Package rpc implements the JSON-RPC 2.0 server for Intcode sessions.
//
// The server keeps interactive machines ("sessions") in memory and drives
// them on request. Images come from the image catalog or inline in the
// request. One-shot runs go through the run cache.
//
// Supported methods:
//   - Images: importImage, listImages
//   - Sessions: createSession, pushInput, run, popOutput, sessionStatus, closeSession
//   - One-shot: execute
//   - Node: getHealth, getVersion
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/fortiblox/intcode/pkg/imagestore"
	"github.com/fortiblox/intcode/pkg/loader"
	"github.com/fortiblox/intcode/pkg/runcache"
	"go.uber.org/zap"
)

// Config holds RPC server configuration.
type Config struct {
	// Addr is the listen address (host:port).
	Addr string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// MaxRequestSize is the maximum allowed request body size in bytes.
	MaxRequestSize int64

	// MaxSessions caps concurrently open sessions (0 means unlimited).
	MaxSessions int

	// StepLimit bounds the steps of every session machine (0 means unlimited).
	StepLimit uint64

	// LogRequests enables request logging.
	LogRequests bool
}

// DefaultConfig returns a default RPC server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:8970",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 8 * 1024 * 1024, // 8MB, room for large inline images
		MaxSessions:    256,
		StepLimit:      100_000_000,
	}
}

// ImageStore is the part of the image catalog the server uses.
type ImageStore interface {
	Put(name string, image []int64) (types.ImageHash, error)
	Get(hash types.ImageHash) (*imagestore.Record, error)
	Resolve(name string) (types.ImageHash, error)
	List() ([]imagestore.Info, error)
}

// RunCache executes one-shot runs, memoising the results.
type RunCache interface {
	Execute(prog *loader.Program, inputs []int64) (*runcache.Result, bool, error)
}

// Server is the JSON-RPC 2.0 server.
type Server struct {
	config Config

	// Dependencies
	store ImageStore
	cache RunCache
	log   *zap.Logger

	sessions *sessionTable

	// HTTP server
	server *http.Server

	// Method handlers
	handlers map[string]handlerFunc

	// Lifecycle
	mu      sync.RWMutex
	running bool
}

// handlerFunc is a JSON-RPC method handler.
type handlerFunc func(params json.RawMessage) (interface{}, *RPCError)

// New creates a new RPC server. cache may be nil, in which case execute
// runs every request.
func New(config Config, store ImageStore, cache RunCache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:   config,
		store:    store,
		cache:    cache,
		log:      logger,
		sessions: newSessionTable(config.MaxSessions),
		handlers: make(map[string]handlerFunc),
	}

	s.registerHandlers()

	return s
}

// registerHandlers registers all RPC method handlers.
func (s *Server) registerHandlers() {
	// Image methods
	s.handlers["importImage"] = s.importImage
	s.handlers["listImages"] = s.listImages

	// Session methods
	s.handlers["createSession"] = s.createSession
	s.handlers["pushInput"] = s.pushInput
	s.handlers["run"] = s.run
	s.handlers["popOutput"] = s.popOutput
	s.handlers["sessionStatus"] = s.sessionStatus
	s.handlers["closeSession"] = s.closeSession

	// One-shot execution
	s.handlers["execute"] = s.execute

	// Node methods
	s.handlers["getHealth"] = s.getHealth
	s.handlers["getVersion"] = s.getVersion
}

// Handler returns the HTTP handler serving JSON-RPC on "/".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	return mux
}

// Start listens on the configured address and serves until ctx is
// cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis and blocks until the server stops.
// Cancelling ctx shuts it down. lis is closed on return.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		lis.Close()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Stop(shutdownCtx)
		case <-stopped:
		}
	}()

	s.log.Info("rpc server starting", zap.Stringer("addr", lis.Addr()))

	err := srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the RPC server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleRPC decodes a single request or a batch and writes the reply.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "only POST is accepted", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			s.writeJSON(w, errorResponse(nil, ErrInvalidRequest))
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.writeJSON(w, errorResponse(nil, NewRPCError(InvalidRequest,
			fmt.Sprintf("request exceeds %d bytes", tooLarge.Limit))))
		return
	case err != nil:
		s.writeJSON(w, errorResponse(nil, ErrParseError))
		return
	}

	body = bytes.TrimLeft(body, " \t\r\n")
	if len(body) > 0 && body[0] == '[' {
		s.writeJSON(w, s.serveBatch(body))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, errorResponse(nil, ErrParseError))
		return
	}
	s.writeJSON(w, s.serve(req))
}

// serveBatch answers every request of a batch in order. An empty or
// undecodable batch gets a single error response.
func (s *Server) serveBatch(body []byte) interface{} {
	var reqs []Request
	if err := json.Unmarshal(body, &reqs); err != nil {
		return errorResponse(nil, ErrParseError)
	}
	if len(reqs) == 0 {
		return errorResponse(nil, ErrInvalidRequest)
	}

	out := make([]Response, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, s.serve(req))
	}
	return out
}

// serve validates and dispatches one request.
func (s *Server) serve(req Request) Response {
	if req.JSONRPC != JSONRPCVersion {
		return errorResponse(req.ID, ErrInvalidRequest)
	}

	start := time.Now()
	result, rpcErr := s.dispatch(req.Method, req.Params)
	if s.config.LogRequests {
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.Any("id", req.ID),
			zap.Duration("took", time.Since(start)),
		}
		if rpcErr != nil {
			fields = append(fields, zap.Int("code", rpcErr.Code))
		}
		s.log.Info("rpc request", fields...)
	}

	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	return Response{JSONRPC: JSONRPCVersion, ID: req.ID, Result: result}
}

// dispatch routes RPC methods to their handlers. A panicking handler
// answers with an internal error instead of dropping the connection.
func (s *Server) dispatch(method string, params json.RawMessage) (result interface{}, rpcErr *RPCError) {
	handler, ok := s.handlers[method]
	if !ok {
		return nil, NewRPCError(MethodNotFound, fmt.Sprintf("Method not found: %s", method))
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("rpc handler panic", zap.String("method", method), zap.Any("panic", r))
			result, rpcErr = nil, ErrInternalError
		}
	}()
	return handler(params)
}

func errorResponse(id interface{}, err *RPCError) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}
