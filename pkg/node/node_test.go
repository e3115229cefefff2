package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fortiblox/intcode/pkg/config"
	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/fortiblox/intcode/pkg/remote"
	"go.uber.org/zap/zaptest"
)

var echoImage = []int64{3, 0, 4, 0, 99}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/srv/intcode")

	if cfg.Store.Path != "/srv/intcode/images.db" {
		t.Errorf("expected store path '/srv/intcode/images.db', got %q", cfg.Store.Path)
	}
	if cfg.Cache.Path != "/srv/intcode/runs" {
		t.Errorf("expected cache path '/srv/intcode/runs', got %q", cfg.Cache.Path)
	}
	if !cfg.CacheEnabled {
		t.Error("expected CacheEnabled to be true")
	}
	if !cfg.RPCEnabled {
		t.Error("expected RPCEnabled to be true")
	}
	if cfg.GRPCEnabled {
		t.Error("expected GRPCEnabled to be false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig("/tmp/test")

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing store path", func(c *Config) { c.Store.Path = "" }, true},
		{"missing cache path", func(c *Config) { c.Cache.Path = "" }, true},
		{"in-memory cache", func(c *Config) { c.Cache.Path = ""; c.Cache.InMemory = true }, false},
		{"cache disabled", func(c *Config) { c.Cache.Path = ""; c.CacheEnabled = false }, false},
		{"missing rpc addr", func(c *Config) { c.RPC.Addr = "" }, true},
		{"missing grpc addr", func(c *Config) { c.GRPCEnabled = true; c.GRPC.Addr = "" }, true},
		{"no services", func(c *Config) { c.RPCEnabled = false }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestFromFile(t *testing.T) {
	f := config.Default("/data")
	f.VM.StepLimit = 500
	f.GRPC.Enabled = true
	f.RPC.MaxSessions = 3

	cfg := FromFile(&f, nil)
	if cfg.Store.Path != "/data/images.db" {
		t.Errorf("unexpected store path %q", cfg.Store.Path)
	}
	if cfg.Store.Timeout == 0 {
		t.Error("expected store lock timeout to keep its default")
	}
	if cfg.RPC.StepLimit != 500 || cfg.GRPC.StepLimit != 500 || cfg.Cache.StepLimit != 500 {
		t.Error("expected the vm step limit on every component")
	}
	if cfg.RPC.MaxSessions != 3 {
		t.Errorf("expected MaxSessions 3, got %d", cfg.RPC.MaxSessions)
	}
	if !cfg.GRPCEnabled || !cfg.RPCEnabled {
		t.Error("expected both services enabled")
	}
}

func TestNewNode(t *testing.T) {
	// Nil config falls back to the defaults.
	n, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status().IsRunning {
		t.Error("new node should not be running")
	}

	bad := DefaultConfig("")
	bad.Store.Path = ""
	if _, err := New(&bad); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}

	if err := n.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.Store.NoSync = true
	cfg.Cache.InMemory = true
	cfg.RPCEnabled = false
	cfg.GRPCEnabled = true
	cfg.GRPC.Addr = "127.0.0.1:0"
	cfg.Logger = zaptest.NewLogger(t)
	return cfg
}

func TestStartStop(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := n.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := n.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	st := n.Status()
	if !st.IsRunning {
		t.Fatal("expected node to be running")
	}
	if st.GRPCAddr == "" || st.GRPCAddr == "127.0.0.1:0" {
		t.Fatalf("expected a bound grpc address, got %q", st.GRPCAddr)
	}
	if st.RPCAddr != "" {
		t.Errorf("expected no rpc address, got %q", st.RPCAddr)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := remote.Dial(dialCtx, st.GRPCAddr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	hash, err := client.Import(dialCtx, "echo", echoImage)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	for i := 0; i < 2; i++ {
		resp, err := client.Execute(dialCtx, &remote.ExecuteRequest{ImageHash: hash, Inputs: []int64{21}})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if len(resp.Outputs) != 1 || resp.Outputs[0] != 21 {
			t.Errorf("unexpected outputs %v", resp.Outputs)
		}
		if resp.Status != intcode.StatusTerminated {
			t.Errorf("expected terminated, got %v", resp.Status)
		}
		if resp.Cached != (i == 1) {
			t.Errorf("run %d: cached = %v", i, resp.Cached)
		}
	}
	client.Close()

	st = n.Status()
	if st.ImageCount != 1 {
		t.Errorf("expected 1 image, got %d", st.ImageCount)
	}
	if st.CacheStats == nil || st.CacheStats.Hits != 1 || st.CacheStats.Misses != 1 {
		t.Errorf("unexpected cache stats %+v", st.CacheStats)
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := n.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
	if n.Status().IsRunning {
		t.Error("expected node to be stopped")
	}
	if n.Images() != nil {
		t.Error("expected image store to be released")
	}

	// Storage is closed, so the same files can be opened again.
	if err := n.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := n.Status().ImageCount; got != 1 {
		t.Errorf("expected image to persist, got %d", got)
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartBusyPort(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	cfg := testConfig(t)
	cfg.GRPC.Addr = lis.Addr().String()
	n, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := n.Start(context.Background()); !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}
	if n.Status().IsRunning {
		t.Error("node should not be running after a failed start")
	}

	// The failed start released the store lock.
	cfg.GRPC.Addr = "127.0.0.1:0"
	n2, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n2.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	n2.Stop()
}

func TestStopOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheEnabled = false
	n, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := n.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n.Status().CacheStats != nil {
		t.Error("expected no cache stats with the cache disabled")
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- n.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if st := n.Status(); st.LastError != nil {
		t.Errorf("unexpected error %v", st.LastError)
	}
}

func TestStoreDirectoryCreated(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = filepath.Join(t.TempDir(), "nested", "deeper", "images.db")
	n, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()
	if n.Images() == nil {
		t.Error("expected an open image store")
	}
}

func TestStartBusyRPCPort(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	cfg := testConfig(t)
	cfg.RPCEnabled = true
	cfg.RPC.Addr = lis.Addr().String()
	n, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := n.Start(context.Background()); !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}
	if n.Status().IsRunning {
		t.Error("node should not be running after a failed start")
	}
}

func TestStartServesRPC(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPCEnabled = true
	cfg.RPC.Addr = "127.0.0.1:0"
	n, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	addr := n.Status().RPCAddr
	if addr == "" || addr == cfg.RPC.Addr {
		t.Fatalf("expected a bound rpc address, got %q", addr)
	}

	resp, err := http.Post("http://"+addr, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"getHealth"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}
