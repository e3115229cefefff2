// Package intcode implements memory operations for the Intcode VM.
package intcode

import "fmt"

// Memory is the Intcode address space.
//
// It is split into two regions:
//   - Image: the program image, index-addressed and fixed in size
//   - Heap:  sparse cells at or beyond the image bound, zero until written
//
// Clones share both regions until one side writes, at which point the
// writer takes a private copy of the region it touches.
type Memory struct {
	image []int64
	heap  map[int64]int64

	// Copy-on-write flags, set by Clone.
	sharedImage bool
	sharedHeap  bool
}

// NewMemory creates memory initialised with a copy of image.
func NewMemory(image []int64) *Memory {
	text := make([]int64, len(image))
	copy(text, image)
	return &Memory{
		image: text,
		heap:  make(map[int64]int64),
	}
}

// Get reads the cell at addr.
func (m *Memory) Get(addr int64) (int64, error) {
	if addr < 0 {
		return 0, fmt.Errorf("%w: read at %d", ErrOutOfRange, addr)
	}
	if addr < int64(len(m.image)) {
		return m.image[addr], nil
	}
	return m.heap[addr], nil
}

// Set writes value to the cell at addr.
func (m *Memory) Set(addr int64, value int64) error {
	if addr < 0 {
		return fmt.Errorf("%w: write at %d", ErrOutOfRange, addr)
	}
	if addr < int64(len(m.image)) {
		if m.sharedImage {
			text := make([]int64, len(m.image))
			copy(text, m.image)
			m.image = text
			m.sharedImage = false
		}
		m.image[addr] = value
		return nil
	}
	if m.sharedHeap {
		heap := make(map[int64]int64, len(m.heap)+1)
		for k, v := range m.heap {
			heap[k] = v
		}
		m.heap = heap
		m.sharedHeap = false
	}
	m.heap[addr] = value
	return nil
}

// Len returns the size of the image region.
func (m *Memory) Len() int {
	return len(m.image)
}

// HeapLen returns the number of heap cells that have been written.
func (m *Memory) HeapLen() int {
	return len(m.heap)
}

// Image returns a copy of the image region.
func (m *Memory) Image() []int64 {
	text := make([]int64, len(m.image))
	copy(text, m.image)
	return text
}

// Clone returns a copy-on-write copy of the memory.
func (m *Memory) Clone() *Memory {
	m.sharedImage = true
	m.sharedHeap = true
	return &Memory{
		image:       m.image,
		heap:        m.heap,
		sharedImage: true,
		sharedHeap:  true,
	}
}
