// Package imagestore provides persistent storage for Intcode program images.
//
// Images are content-addressed by their BLAKE3 hash and may carry any number
// of human-readable names. Only images are stored; machine state never is.
package imagestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrImageNotFound is returned when an image doesn't exist.
	ErrImageNotFound = errors.New("image not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("image store closed")

	// ErrEmptyName is returned when an image is stored without a name.
	ErrEmptyName = errors.New("image name is empty")

	// ErrEmptyImage is returned when storing an image with no cells.
	ErrEmptyImage = errors.New("image is empty")
)

// Bucket names for BoltDB.
var (
	// bucketImages stores image records keyed by hash.
	bucketImages = []byte("images")

	// bucketNames maps names to image hashes.
	bucketNames = []byte("names")

	// bucketMetadata stores store metadata.
	bucketMetadata = []byte("metadata")
)

// Metadata keys.
var (
	keyImageCount = []byte("image_count")
)

// Config holds image store configuration options.
type Config struct {
	// Path is the database file path.
	Path string

	// CacheSize is the number of decoded records kept in memory.
	CacheSize int

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
}

// DefaultConfig returns the default image store configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:      path,
		CacheSize: 128,
		Timeout:   5 * time.Second,
	}
}

// Record is a stored program image.
type Record struct {
	Hash    types.ImageHash `cbor:"hash"`
	Names   []string        `cbor:"names"`
	Image   []int64         `cbor:"image"`
	AddedAt int64           `cbor:"added_at"` // Unix seconds
}

// Info summarises a stored image without its cells.
type Info struct {
	Hash    types.ImageHash
	Names   []string
	Size    int
	AddedAt time.Time
}

// Store is a BoltDB-backed image catalog.
type Store struct {
	db     *bolt.DB
	config Config
	cache  *lru.Cache

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens an image store.
func Open(config Config) (*Store, error) {
	if dir := filepath.Dir(config.Path); !config.ReadOnly {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultConfig(config.Path).CacheSize
	}

	cache, err := lru.New(config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{
		Timeout:  config.Timeout,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, config: config, cache: cache}

	if !config.ReadOnly {
		if err := s.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}
	return s, nil
}

// initBuckets creates all required buckets.
func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketImages, bucketNames, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Put stores image under name and returns its hash. Storing an image that
// already exists only adds the name. A name that pointed at another image
// is moved to this one.
func (s *Store) Put(name string, image []int64) (types.ImageHash, error) {
	if err := s.checkOpen(); err != nil {
		return types.ImageHash{}, err
	}
	if name == "" {
		return types.ImageHash{}, ErrEmptyName
	}
	if len(image) == 0 {
		return types.ImageHash{}, ErrEmptyImage
	}
	hash := types.HashImage(image)

	err := s.db.Update(func(tx *bolt.Tx) error {
		images := tx.Bucket(bucketImages)
		names := tx.Bucket(bucketNames)

		// Detach the name from a previous image.
		if prev := names.Get([]byte(name)); prev != nil && string(prev) != string(hash[:]) {
			if err := s.removeName(images, prev, name); err != nil {
				return err
			}
		}

		added := false
		rec, err := getRecord(images, hash[:])
		switch {
		case errors.Is(err, ErrImageNotFound):
			rec = &Record{
				Hash:    hash,
				Image:   append([]int64(nil), image...),
				AddedAt: time.Now().Unix(),
			}
			added = true
		case err != nil:
			return err
		}
		if !containsName(rec.Names, name) {
			rec.Names = append(rec.Names, name)
			sort.Strings(rec.Names)
		}
		if err := putRecord(images, rec); err != nil {
			return err
		}
		if err := names.Put([]byte(name), hash[:]); err != nil {
			return err
		}
		if added {
			return adjustCount(tx, 1)
		}
		return nil
	})
	if err != nil {
		return types.ImageHash{}, err
	}
	s.cache.Purge()
	return hash, nil
}

// removeName drops name from the record stored under key.
func (s *Store) removeName(images *bolt.Bucket, key []byte, name string) error {
	rec, err := getRecord(images, key)
	if errors.Is(err, ErrImageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	kept := rec.Names[:0]
	for _, n := range rec.Names {
		if n != name {
			kept = append(kept, n)
		}
	}
	rec.Names = kept
	return putRecord(images, rec)
}

// Get retrieves an image record by hash. The returned record is shared and
// must not be modified.
func (s *Store) Get(hash types.ImageHash) (*Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(hash); ok {
		return v.(*Record), nil
	}

	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx.Bucket(bucketImages), hash[:])
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Add(hash, rec)
	return rec, nil
}

// GetByName retrieves an image record by one of its names.
func (s *Store) GetByName(name string) (*Record, error) {
	hash, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	return s.Get(hash)
}

// Resolve returns the hash a name points at.
func (s *Store) Resolve(name string) (types.ImageHash, error) {
	if err := s.checkOpen(); err != nil {
		return types.ImageHash{}, err
	}
	var hash types.ImageHash
	err := s.db.View(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketNames)
		if names == nil {
			return fmt.Errorf("%w: name %q", ErrImageNotFound, name)
		}
		v := names.Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: name %q", ErrImageNotFound, name)
		}
		var err error
		hash, err = types.ImageHashFromBytes(v)
		return err
	})
	return hash, err
}

// Has reports whether an image is stored.
func (s *Store) Has(hash types.ImageHash) bool {
	_, err := s.Get(hash)
	return err == nil
}

// List returns every stored image, ordered by first name.
func (s *Store) List() ([]Info, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var infos []Info
	err := s.db.View(func(tx *bolt.Tx) error {
		images := tx.Bucket(bucketImages)
		if images == nil {
			return nil
		}
		return images.ForEach(func(k, v []byte) error {
			var rec Record
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode image %x: %w", k, err)
			}
			infos = append(infos, Info{
				Hash:    rec.Hash,
				Names:   rec.Names,
				Size:    len(rec.Image),
				AddedAt: time.Unix(rec.AddedAt, 0),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return firstName(infos[i]) < firstName(infos[j])
	})
	return infos, nil
}

func firstName(info Info) string {
	if len(info.Names) == 0 {
		return ""
	}
	return info.Names[0]
}

// Delete removes an image and all of its names.
func (s *Store) Delete(hash types.ImageHash) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		images := tx.Bucket(bucketImages)
		rec, err := getRecord(images, hash[:])
		if err != nil {
			return err
		}
		names := tx.Bucket(bucketNames)
		for _, n := range rec.Names {
			if err := names.Delete([]byte(n)); err != nil {
				return err
			}
		}
		if err := images.Delete(hash[:]); err != nil {
			return err
		}
		return adjustCount(tx, -1)
	})
	if err != nil {
		return err
	}
	s.cache.Remove(hash)
	return nil
}

// Count returns the number of stored images.
func (s *Store) Count() (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		n = readCount(tx)
		return nil
	})
	return n, err
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Purge()
	return s.db.Close()
}

func readCount(tx *bolt.Tx) uint64 {
	meta := tx.Bucket(bucketMetadata)
	if meta == nil {
		return 0
	}
	if v := meta.Get(keyImageCount); len(v) == 8 {
		return binary.BigEndian.Uint64(v)
	}
	return 0
}

func adjustCount(tx *bolt.Tx, delta int64) error {
	n := int64(readCount(tx)) + delta
	if n < 0 {
		n = 0
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return tx.Bucket(bucketMetadata).Put(keyImageCount, buf[:])
}

func getRecord(images *bolt.Bucket, key []byte) (*Record, error) {
	if images == nil {
		return nil, ErrImageNotFound
	}
	data := images.Get(key)
	if data == nil {
		return nil, ErrImageNotFound
	}
	var rec Record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &rec, nil
}

func putRecord(images *bolt.Bucket, rec *Record) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	return images.Put(rec.Hash[:], data)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
