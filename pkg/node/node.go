// Package node runs the intcode services as one process.
//
// A Node owns the image catalog and run cache and serves them over the
// JSON-RPC session API and the gRPC Executor service. Either service may be
// disabled. The node manages the lifecycle of these components and reports
// their health.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/intcode/pkg/config"
	"github.com/fortiblox/intcode/pkg/imagestore"
	"github.com/fortiblox/intcode/pkg/remote"
	"github.com/fortiblox/intcode/pkg/rpc"
	"github.com/fortiblox/intcode/pkg/runcache"
	"go.uber.org/zap"
)

// Node errors.
var (
	ErrAlreadyRunning = errors.New("node is already running")
	ErrNotRunning     = errors.New("node is not running")
	ErrConfigInvalid  = errors.New("invalid node configuration")
	ErrInitFailed     = errors.New("node initialization failed")
)

// Config holds node configuration.
type Config struct {
	// Store configures the image catalog.
	Store imagestore.Config

	// CacheEnabled enables the run cache. Without it every execute request runs.
	CacheEnabled bool
	Cache        runcache.Config

	// RPCEnabled enables the JSON-RPC server.
	RPCEnabled bool
	RPC        rpc.Config

	// GRPCEnabled enables the gRPC Executor service.
	GRPCEnabled bool
	GRPC        remote.Config

	// Logger receives component logs. Nil disables logging.
	Logger *zap.Logger

	// OnError is called when a server stops with an error.
	OnError func(err error)
}

// DefaultConfig returns a configuration keeping its data under dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		Store:        imagestore.DefaultConfig(filepath.Join(dataDir, "images.db")),
		CacheEnabled: true,
		Cache:        runcache.DefaultConfig(filepath.Join(dataDir, "runs")),
		RPCEnabled:   true,
		RPC:          rpc.DefaultConfig(),
		GRPCEnabled:  false,
		GRPC:         remote.DefaultConfig(),
	}
}

// FromFile converts a loaded configuration file into a node configuration.
func FromFile(f *config.Config, logger *zap.Logger) Config {
	store := imagestore.DefaultConfig(f.Store.Path)
	store.CacheSize = f.Store.CacheSize
	store.NoSync = f.Store.NoSync

	return Config{
		Store:        store,
		CacheEnabled: f.Cache.Enabled,
		Cache: runcache.Config{
			Path:       f.Cache.Path,
			InMemory:   f.Cache.InMemory,
			SyncWrites: f.Cache.SyncWrites,
			StepLimit:  f.VM.StepLimit,
		},
		RPCEnabled: f.RPC.Enabled,
		RPC: rpc.Config{
			Addr:           f.RPC.Addr,
			ReadTimeout:    f.RPC.ReadTimeout,
			WriteTimeout:   f.RPC.WriteTimeout,
			MaxRequestSize: f.RPC.MaxRequestSize,
			MaxSessions:    f.RPC.MaxSessions,
			StepLimit:      f.VM.StepLimit,
			LogRequests:    f.RPC.LogRequests,
		},
		GRPCEnabled: f.GRPC.Enabled,
		GRPC: remote.Config{
			Addr:           f.GRPC.Addr,
			StepLimit:      f.VM.StepLimit,
			MaxMessageSize: f.GRPC.MaxMessageSize,
		},
		Logger: logger,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("%w: image store path is required", ErrConfigInvalid)
	}
	if c.CacheEnabled && !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("%w: run cache path is required", ErrConfigInvalid)
	}
	if c.RPCEnabled && c.RPC.Addr == "" {
		return fmt.Errorf("%w: rpc address is required", ErrConfigInvalid)
	}
	if c.GRPCEnabled && c.GRPC.Addr == "" {
		return fmt.Errorf("%w: grpc address is required", ErrConfigInvalid)
	}
	if !c.RPCEnabled && !c.GRPCEnabled {
		return fmt.Errorf("%w: no service enabled", ErrConfigInvalid)
	}
	return nil
}

// Node runs the intcode services.
type Node struct {
	config Config
	log    *zap.Logger

	// Components
	store      *imagestore.Store
	cache      *runcache.Cache
	rpcServer  *rpc.Server
	grpcServer *remote.Server
	rpcAddr    net.Addr
	grpcAddr   net.Addr

	// State management
	mu          sync.Mutex
	running     atomic.Bool
	startTime   time.Time
	lastError   error
	lastErrorMu sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a node. It is not started until Start is called.
func New(cfg *Config) (*Node, error) {
	if cfg == nil {
		def := DefaultConfig("./data")
		cfg = &def
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{
		config: *cfg,
		log:    logger,
	}, nil
}

// Start opens storage and starts the enabled services in the background.
// The services stop when ctx is cancelled or Stop is called.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running.Load() {
		return ErrAlreadyRunning
	}

	if err := n.initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	// Bind every listener before anything runs so a busy port fails Start.
	var rpcLis, grpcLis net.Listener
	if n.rpcServer != nil {
		var err error
		rpcLis, err = net.Listen("tcp", n.config.RPC.Addr)
		if err != nil {
			n.closeStorage()
			return fmt.Errorf("%w: listen %s: %v", ErrInitFailed, n.config.RPC.Addr, err)
		}
		n.rpcAddr = rpcLis.Addr()
	}
	if n.grpcServer != nil {
		var err error
		grpcLis, err = net.Listen("tcp", n.config.GRPC.Addr)
		if err != nil {
			if rpcLis != nil {
				rpcLis.Close()
			}
			n.closeStorage()
			return fmt.Errorf("%w: listen %s: %v", ErrInitFailed, n.config.GRPC.Addr, err)
		}
		n.grpcAddr = grpcLis.Addr()
	}

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.startTime = time.Now()
	n.running.Store(true)

	if n.rpcServer != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.rpcServer.Serve(runCtx, rpcLis); err != nil {
				n.fail(fmt.Errorf("rpc server: %w", err))
			}
		}()
	}

	if n.grpcServer != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.grpcServer.Serve(runCtx, grpcLis); err != nil {
				n.fail(fmt.Errorf("grpc server: %w", err))
			}
		}()
	}

	n.log.Info("node started",
		zap.Bool("rpc", n.rpcServer != nil),
		zap.Bool("grpc", n.grpcServer != nil),
		zap.Bool("cache", n.cache != nil))
	return nil
}

// initialize opens storage and builds the servers.
func (n *Node) initialize() error {
	if err := os.MkdirAll(filepath.Dir(n.config.Store.Path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	store, err := imagestore.Open(n.config.Store)
	if err != nil {
		return fmt.Errorf("open image store: %w", err)
	}
	n.store = store

	// A nil *runcache.Cache must not end up inside the servers' interface.
	var cache rpc.RunCache
	var remoteCache remote.RunCache
	if n.config.CacheEnabled {
		cacheCfg := n.config.Cache
		cacheCfg.Logger = n.log.Named("runcache")
		c, err := runcache.Open(cacheCfg)
		if err != nil {
			n.closeStorage()
			return fmt.Errorf("open run cache: %w", err)
		}
		n.cache = c
		cache = c
		remoteCache = c
	}

	if n.config.RPCEnabled {
		n.rpcServer = rpc.New(n.config.RPC, store, cache, n.log.Named("rpc"))
	}
	if n.config.GRPCEnabled {
		n.grpcServer = remote.NewServer(n.config.GRPC, store, remoteCache, n.log.Named("grpc"))
	}
	return nil
}

// closeStorage closes the run cache and image store.
func (n *Node) closeStorage() {
	if n.cache != nil {
		if err := n.cache.Close(); err != nil {
			n.log.Warn("close run cache", zap.Error(err))
		}
		n.cache = nil
	}
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			n.log.Warn("close image store", zap.Error(err))
		}
		n.store = nil
	}
}

// Stop shuts down the services and closes storage.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running.Load() {
		return ErrNotRunning
	}

	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	n.closeStorage()
	n.rpcServer = nil
	n.grpcServer = nil
	n.rpcAddr = nil
	n.grpcAddr = nil

	n.running.Store(false)
	n.log.Info("node stopped")
	return nil
}

// Images returns the image catalog, or nil when the node is not running.
func (n *Node) Images() *imagestore.Store {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store
}

// Status returns the current node status.
func (n *Node) Status() *Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := &Status{
		IsRunning: n.running.Load(),
		LastError: n.getLastError(),
	}
	if !st.IsRunning {
		return st
	}

	st.Uptime = time.Since(n.startTime)
	if n.store != nil {
		st.ImageCount, _ = n.store.Count()
	}
	if n.cache != nil {
		stats := n.cache.Stats()
		st.CacheStats = &stats
	}
	if n.rpcAddr != nil {
		st.RPCAddr = n.rpcAddr.String()
	}
	if n.grpcAddr != nil {
		st.GRPCAddr = n.grpcAddr.String()
	}
	return st
}

// Status contains node status information.
type Status struct {
	// IsRunning indicates if the node is running.
	IsRunning bool

	// Uptime is how long the node has been running.
	Uptime time.Duration

	// ImageCount is the number of stored images.
	ImageCount uint64

	// CacheStats holds run cache counters, nil when the cache is disabled.
	CacheStats *runcache.Stats

	// RPCAddr is the bound JSON-RPC address if enabled.
	RPCAddr string

	// GRPCAddr is the bound gRPC address if enabled.
	GRPCAddr string

	// LastError is the most recent server error.
	LastError error
}

func (n *Node) fail(err error) {
	n.log.Error("service failed", zap.Error(err))
	n.lastErrorMu.Lock()
	n.lastError = err
	n.lastErrorMu.Unlock()
	if n.config.OnError != nil {
		n.config.OnError(err)
	}
}

func (n *Node) getLastError() error {
	n.lastErrorMu.RLock()
	defer n.lastErrorMu.RUnlock()
	return n.lastError
}
