package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/errors"
)

// WazeroMemory adapts a guest's linear memory to spzconv.Memory.
type WazeroMemory struct {
	mem api.Memory
}

var (
	_ spzconv.Memory      = (*WazeroMemory)(nil)
	_ spzconv.MemorySizer = (*WazeroMemory)(nil)
)

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d, size=%d", offset, length, m.mem.Size())
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d, size=%d", offset, len(data), m.mem.Size())
	}
	return nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d, length=4", offset)
	}
	return val, nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=4", offset)
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	return m.mem.Size()
}

// readCString reads a NUL-terminated string of at most limit bytes.
func (m *WazeroMemory) readCString(ptr uint32, limit uint32) (string, bool) {
	if ptr == 0 {
		return "", false
	}
	size := m.mem.Size()
	if ptr >= size {
		return "", false
	}
	if size-ptr < limit {
		limit = size - ptr
	}
	data, ok := m.mem.Read(ptr, limit)
	if !ok {
		return "", false
	}
	for n, b := range data {
		if b == 0 {
			return string(data[:n]), true
		}
	}
	return "", false
}

// wazeroAllocator calls the guest's malloc/free exports.
type wazeroAllocator struct {
	inst   *WazeroInstance
	malloc api.Function
	free   api.Function
}

var _ spzconv.Allocator = (*wazeroAllocator)(nil)

// Alloc returns the guest pointer from malloc. A malloc result of 0 is
// reported as 0 with no error; the arena treats it as allocation failure.
func (a *wazeroAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := a.inst.call(ctx, a.malloc, "malloc", uint64(size))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseAlloc, errors.KindAllocation, err, fmt.Sprintf("malloc(%d)", size))
	}
	if len(results) != 1 {
		return 0, errors.AllocationFailed(size, fmt.Errorf("malloc returned %d results", len(results)))
	}
	return uint32(results[0]), nil
}

func (a *wazeroAllocator) Free(ctx context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	if _, err := a.inst.call(ctx, a.free, "free", uint64(ptr)); err != nil {
		return errors.Wrap(errors.PhaseRelease, errors.KindUnexpected, err, fmt.Sprintf("free(%d)", ptr))
	}
	return nil
}
