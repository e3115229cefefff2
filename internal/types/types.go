// Package types defines identity types shared across the Intcode toolchain.
//
// A program image is identified by the BLAKE3 digest of its cells, each
// encoded as 8 little-endian bytes. Digests render as base58 strings.
package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// HashSize is the size of an image hash in bytes.
const HashSize = 32

var (
	// ErrInvalidHash is returned when a hash has invalid length.
	ErrInvalidHash = errors.New("invalid image hash: must be 32 bytes")
)

// ImageHash identifies a program image by content.
type ImageHash [HashSize]byte

// HashImage computes the identity of a program image.
func HashImage(image []int64) ImageHash {
	h := blake3.New()
	var buf [8]byte
	for _, v := range image {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	var out ImageHash
	copy(out[:], h.Sum(nil))
	return out
}

// ImageHashFromBase58 parses a base58-encoded image hash.
func ImageHashFromBase58(s string) (ImageHash, error) {
	var h ImageHash
	data, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("base58 decode: %w", err)
	}
	return ImageHashFromBytes(data)
}

// ImageHashFromBytes creates an ImageHash from a byte slice.
func ImageHashFromBytes(b []byte) (ImageHash, error) {
	var h ImageHash
	if len(b) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], b)
	return h, nil
}

// String returns the base58-encoded representation.
func (h ImageHash) String() string {
	return base58.Encode(h[:])
}

// Short returns the first characters of the base58 form, for logs.
func (h ImageHash) Short() string {
	s := h.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes returns the hash as a byte slice.
func (h ImageHash) Bytes() []byte {
	return h[:]
}

// IsZero returns true if the hash is all zeros.
func (h ImageHash) IsZero() bool {
	return h == ImageHash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h ImageHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *ImageHash) UnmarshalText(text []byte) error {
	parsed, err := ImageHashFromBase58(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
