// Package runcache memoises Intcode runs in BadgerDB.
//
// Intcode execution is deterministic: the same image fed the same inputs
// always produces the same outputs. A run is therefore keyed by the image
// hash, the step limit and the full input sequence, and its outputs can be
// replayed from the cache instead of re-executing the program.
//
// Only the run transcript is stored (outputs, final status, step count and
// cell 0). Machine state is never persisted.
package runcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/fortiblox/intcode/internal/types"
	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/fortiblox/intcode/pkg/loader"
	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrClosed is returned when operating on a closed cache.
	ErrClosed = errors.New("run cache closed")

	// ErrNotFound is returned when no result is cached for a run.
	ErrNotFound = errors.New("run not cached")
)

// prefixRun is the key prefix for run results.
// Key format: prefixRun + sha3-256(image hash || step limit || inputs)
var prefixRun = []byte{0x01}

// Config contains configuration for the run cache.
type Config struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// StepLimit bounds each cached execution. Zero means unlimited.
	StepLimit uint64

	// Logger receives badger and execution diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:      path,
		StepLimit: 10_000_000,
	}
}

// Result is the transcript of one run.
type Result struct {
	Outputs []int64        `cbor:"outputs"`
	Status  intcode.Status `cbor:"status"`
	Steps   uint64         `cbor:"steps"`
	Cell0   int64          `cbor:"cell0"` // Final value of address 0
}

// Stats contains cache counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Cache is a BadgerDB-backed run cache.
type Cache struct {
	db        *badger.DB
	stepLimit uint64
	log       *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	closed atomic.Bool
}

// Open opens the run cache.
func Open(cfg Config) (*Cache, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(badgerLogger{logger.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Cache{
		db:        db,
		stepLimit: cfg.StepLimit,
		log:       logger,
	}, nil
}

// StepLimit returns the step limit applied to cached executions.
func (c *Cache) StepLimit() uint64 {
	return c.stepLimit
}

// Key returns the cache key for a run.
func (c *Cache) Key(hash types.ImageHash, inputs []int64) []byte {
	h := sha3.New256()
	h.Write(hash[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], c.stepLimit)
	h.Write(buf[:])
	for _, v := range inputs {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	return append(append([]byte{}, prefixRun...), h.Sum(nil)...)
}

// Get returns the cached result of a run.
func (c *Cache) Get(hash types.ImageHash, inputs []int64) (*Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	var res Result
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.Key(hash, inputs))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &res)
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Put stores the result of a run.
func (c *Cache) Put(hash types.ImageHash, inputs []int64, res *Result) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := cbor.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.Key(hash, inputs), data)
	})
}

// Execute returns the result of running prog on inputs, from the cache when
// possible. A fresh machine runs until it suspends or terminates; faults are
// returned and not cached. The boolean reports a cache hit.
func (c *Cache) Execute(prog *loader.Program, inputs []int64) (*Result, bool, error) {
	res, err := c.Get(prog.Hash, inputs)
	switch {
	case err == nil:
		c.hits.Add(1)
		return res, true, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}
	c.misses.Add(1)

	m := intcode.New(0, prog.Image, intcode.Opts{
		Logger:    c.log,
		StepLimit: c.stepLimit,
	})
	m.PushInputs(inputs...)
	status, err := m.Run()
	if err != nil {
		return nil, false, err
	}
	cell0, err := m.Memory().Get(0)
	if err != nil {
		return nil, false, err
	}
	res = &Result{
		Outputs: m.DrainOutput(),
		Status:  status,
		Steps:   m.Steps(),
		Cell0:   cell0,
	}
	if err := c.Put(prog.Hash, inputs, res); err != nil {
		return nil, false, fmt.Errorf("store result: %w", err)
	}
	c.log.Debug("cached run",
		zap.String("image", prog.Hash.Short()),
		zap.Int("inputs", len(inputs)),
		zap.Uint64("steps", res.Steps),
		zap.Stringer("status", status))
	return res, false, nil
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close closes the cache.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.db.Close()
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
