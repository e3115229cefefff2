// Package loader reads Intcode program images.
//
// A program image is a comma-separated list of signed decimal integers,
// usually on a single line. Whitespace around fields and a trailing comma are
// tolerated. Image files may be stored zstd-compressed; compressed input is
// detected by the zstd frame magic and decompressed transparently.
package loader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/klauspost/compress/zstd"
)

// zstd frame magic bytes.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// MaxImageBytes bounds the decoded size of an image file.
const MaxImageBytes = 64 << 20

var (
	// ErrInvalidImage is returned when the image text is malformed.
	ErrInvalidImage = errors.New("invalid program image")

	// ErrEmptyImage is returned when the input contains no cells.
	ErrEmptyImage = errors.New("empty program image")

	// ErrImageTooLarge is returned when the input exceeds MaxImageBytes.
	ErrImageTooLarge = errors.New("program image too large")

	// ErrDecompressionFailed indicates zstd decompression failed.
	ErrDecompressionFailed = errors.New("image decompression failed")
)

// Program is a loaded program image.
type Program struct {
	Name  string
	Image []int64
	Hash  types.ImageHash
}

// NewProgram wraps an image, computing its hash.
func NewProgram(name string, image []int64) *Program {
	return &Program{
		Name:  name,
		Image: image,
		Hash:  types.HashImage(image),
	}
}

// Parse reads a program image from r, decompressing it if needed.
func Parse(r io.Reader) ([]int64, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	compressed := false

	if magic, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(magic, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
		}
		defer dec.Close()
		src = dec
		compressed = true
	}

	data, err := io.ReadAll(io.LimitReader(src, MaxImageBytes+1))
	if err != nil {
		if compressed {
			return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
		}
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	return ParseString(string(data))
}

// ParseString parses a program image from text.
func ParseString(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyImage
	}
	fields := strings.Split(s, ",")

	// A single trailing comma is common in hand-edited files.
	if strings.TrimSpace(fields[len(fields)-1]) == "" {
		fields = fields[:len(fields)-1]
	}

	image := make([]int64, 0, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q", ErrInvalidImage, i, f)
		}
		image = append(image, v)
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	return image, nil
}

// LoadFile loads a program image from disk. The program is named after the
// file without its extensions.
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	image, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewProgram(programName(path), image), nil
}

func programName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".zst")
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Format renders an image in canonical form.
func Format(image []int64) string {
	var b strings.Builder
	for i, v := range image {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	return b.String()
}

// WriteCompressed writes the canonical form of image as a zstd frame.
func WriteCompressed(w io.Writer, image []int64) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := io.WriteString(enc, Format(image)); err != nil {
		enc.Close()
		return fmt.Errorf("write image: %w", err)
	}
	return enc.Close()
}
