package arena

import (
	"context"
	"encoding/binary"
	"fmt"
)

const (
	heapBase  = 8
	heapAlign = 8
)

// Heap is a process-local address space implementing spzconv.Memory and
// spzconv.Allocator. It lets Go-native codecs and tests run the pipeline
// without a wasm instance. Like linear memory, its backing slice only grows,
// and growth invalidates outstanding views.
//
// Freed blocks go on a free list and are handed out again first-fit, so a
// long batch that frees what it allocates stays within the limit. Blocks are
// not split or coalesced.
//
// Alloc returns 0, not an error, when the limit would be exceeded, matching
// what a C malloc reports.
type Heap struct {
	buf    []byte
	sizes  map[uint32]uint32 // live block -> requested size
	blocks map[uint32]uint32 // every block ever carved -> capacity
	free   []uint32
	limit  uint32
	next   uint32
}

// NewHeap creates a heap that never grows past limit bytes.
func NewHeap(limit uint32) *Heap {
	return &Heap{
		sizes:  make(map[uint32]uint32),
		blocks: make(map[uint32]uint32),
		limit:  limit,
		next:   heapBase,
	}
}

func (h *Heap) Alloc(_ context.Context, size uint32) (uint32, error) {
	if size == 0 {
		size = 1
	}
	for i, ptr := range h.free {
		if h.blocks[ptr] >= size {
			h.free = append(h.free[:i], h.free[i+1:]...)
			h.sizes[ptr] = size
			return ptr, nil
		}
	}

	end := uint64(h.next) + uint64(size)
	if end > uint64(h.limit) {
		return 0, nil
	}
	if int(end) > len(h.buf) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}

	ptr := h.next
	h.sizes[ptr] = size
	h.blocks[ptr] = size
	h.next = uint32((end + heapAlign - 1) &^ (heapAlign - 1))
	if h.next < uint32(end) {
		h.next = uint32(end)
	}
	return ptr, nil
}

func (h *Heap) Free(_ context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	if _, ok := h.sizes[ptr]; !ok {
		return fmt.Errorf("free of unknown region %d", ptr)
	}
	delete(h.sizes, ptr)
	h.free = append(h.free, ptr)
	return nil
}

// Live returns the number of allocations not yet freed.
func (h *Heap) Live() int { return len(h.sizes) }

// Size returns the current size of the backing memory.
func (h *Heap) Size() uint32 { return uint32(len(h.buf)) }

func (h *Heap) Read(offset uint32, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(h.buf)) {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return h.buf[offset:end:end], nil
}

func (h *Heap) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(h.buf)) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	copy(h.buf[offset:end], data)
	return nil
}

func (h *Heap) ReadU32(offset uint32) (uint32, error) {
	b, err := h.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (h *Heap) WriteU32(offset uint32, value uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return h.Write(offset, b[:])
}
