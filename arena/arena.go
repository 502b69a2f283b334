package arena

import (
	"context"
	"math"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/errors"
)

// SlotSize is the width of an out-slot: a wasm32 pointer or a C int.
const SlotSize = 4

// Region is a block of codec memory. The zero Region is "not allocated".
type Region struct {
	Ptr  uint32
	Size uint32
}

func (r Region) IsZero() bool { return r.Ptr == 0 }

// Stats counts region traffic through an Arena.
type Stats struct {
	Allocs  int // regions obtained from the allocator
	Adopted int // regions allocated by the codec and handed over
	Frees   int // regions given back
	Live    int // regions currently tracked
	// Aliased counts pointers refused because they were already live. They
	// are left untracked and unfreed, so each one may be a leak.
	Aliased int
}

// Arena hands out per-file Handles over one codec address space and keeps the
// table of live regions. An Arena must not be shared by concurrent batches.
type Arena struct {
	mem   spzconv.Memory
	alloc spzconv.Allocator
	live  map[uint32]uint32
	stats Stats
}

func New(mem spzconv.Memory, alloc spzconv.Allocator) *Arena {
	return &Arena{
		mem:   mem,
		alloc: alloc,
		live:  make(map[uint32]uint32),
	}
}

// NewHandle returns an empty handle. Use one handle per file.
func (a *Arena) NewHandle() *Handle {
	return &Handle{arena: a}
}

// Stats returns a snapshot of the arena counters.
func (a *Arena) Stats() Stats {
	s := a.stats
	s.Live = len(a.live)
	return s
}

// View returns length bytes at ptr without copying. The view is valid until the
// region is released or the memory grows.
func (a *Arena) View(ptr, length uint32) ([]byte, error) {
	if ptr == 0 {
		return nil, errors.New(errors.PhaseExtract, errors.KindOutOfBounds).
			Detail("view of null region").
			Build()
	}
	data, err := a.mem.Read(ptr, length)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExtract, errors.KindOutOfBounds, err, "view region")
	}
	return data, nil
}

func (a *Arena) allocate(ctx context.Context, size uint32) (Region, error) {
	if size == 0 {
		size = 1
	}
	ptr, err := a.alloc.Alloc(ctx, size)
	if err != nil {
		return Region{}, errors.AllocationFailed(size, err)
	}
	if ptr == 0 {
		return Region{}, errors.AllocationFailed(size, nil)
	}
	if _, dup := a.live[ptr]; dup {
		// The allocator handed out a live address. Leave both untracked
		// rather than free the other owner's region.
		a.stats.Aliased++
		return Region{}, errors.Aliasing(errors.PhaseAlloc, ptr)
	}
	a.live[ptr] = size
	a.stats.Allocs++
	return Region{Ptr: ptr, Size: size}, nil
}

func (a *Arena) adopt(ptr, size uint32) (Region, error) {
	if ptr == 0 {
		return Region{}, errors.New(errors.PhaseExtract, errors.KindEmptyResult).
			Detail("codec returned a null region").
			Build()
	}
	if _, dup := a.live[ptr]; dup {
		a.stats.Aliased++
		return Region{}, errors.Aliasing(errors.PhaseExtract, ptr)
	}
	a.live[ptr] = size
	a.stats.Adopted++
	return Region{Ptr: ptr, Size: size}, nil
}

func (a *Arena) free(ctx context.Context, r Region) error {
	if r.IsZero() {
		return nil
	}
	if _, ok := a.live[r.Ptr]; !ok {
		return nil
	}
	delete(a.live, r.Ptr)
	a.stats.Frees++
	if err := a.alloc.Free(ctx, r.Ptr); err != nil {
		return errors.Wrap(errors.PhaseRelease, errors.KindUnexpected, err, "free region")
	}
	return nil
}

// Handle tracks the four regions of one conversion: the input copy, the two
// out-slots the codec reports through, and the output region it allocates.
type Handle struct {
	arena    *Arena
	Input    Region
	Location Region
	Length   Region
	Output   Region
	released bool
}

// AllocateInput copies data into a fresh region. Empty input still gets a
// one-byte region so the codec never sees a null pointer.
func (h *Handle) AllocateInput(ctx context.Context, data []byte) (Region, error) {
	if err := h.usable(); err != nil {
		return Region{}, err
	}
	if !h.Input.IsZero() {
		return Region{}, errors.InvalidInput(errors.PhaseAlloc, "input region already allocated")
	}
	if uint64(len(data)) > math.MaxUint32 {
		return Region{}, errors.AllocationFailed(math.MaxUint32, nil)
	}

	r, err := h.arena.allocate(ctx, uint32(len(data)))
	if err != nil {
		return Region{}, err
	}
	h.Input = r

	if len(data) > 0 {
		if err := h.arena.mem.Write(r.Ptr, data); err != nil {
			return Region{}, errors.Wrap(errors.PhaseAlloc, errors.KindOutOfBounds, err, "copy input")
		}
	}
	return r, nil
}

// AllocateOutSlots allocates the location and length slots and zeroes them.
func (h *Handle) AllocateOutSlots(ctx context.Context) error {
	if err := h.usable(); err != nil {
		return err
	}
	if !h.Location.IsZero() || !h.Length.IsZero() {
		return errors.InvalidInput(errors.PhaseAlloc, "out-slots already allocated")
	}

	loc, err := h.arena.allocate(ctx, SlotSize)
	if err != nil {
		return err
	}
	h.Location = loc
	if err := h.arena.mem.WriteU32(loc.Ptr, 0); err != nil {
		return errors.Wrap(errors.PhaseAlloc, errors.KindOutOfBounds, err, "zero location slot")
	}

	length, err := h.arena.allocate(ctx, SlotSize)
	if err != nil {
		return err
	}
	h.Length = length
	if err := h.arena.mem.WriteU32(length.Ptr, 0); err != nil {
		return errors.Wrap(errors.PhaseAlloc, errors.KindOutOfBounds, err, "zero length slot")
	}
	return nil
}

// ReadOutputLocation reads the address the codec wrote into the location slot.
// Only meaningful after a call that returned status 0.
func (h *Handle) ReadOutputLocation() (uint32, error) {
	if h.Location.IsZero() {
		return 0, errors.NotInitialized(errors.PhaseExtract, "location slot")
	}
	v, err := h.arena.mem.ReadU32(h.Location.Ptr)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseExtract, errors.KindOutOfBounds, err, "read location slot")
	}
	return v, nil
}

// ReadOutputLength reads the byte count the codec wrote into the length slot.
// The slot holds a C int, so it is returned signed.
func (h *Handle) ReadOutputLength() (int32, error) {
	if h.Length.IsZero() {
		return 0, errors.NotInitialized(errors.PhaseExtract, "length slot")
	}
	v, err := h.arena.mem.ReadU32(h.Length.Ptr)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseExtract, errors.KindOutOfBounds, err, "read length slot")
	}
	return int32(v), nil
}

// AdoptOutput takes ownership of the region the codec allocated so Release
// frees it.
func (h *Handle) AdoptOutput(ptr, size uint32) (Region, error) {
	if err := h.usable(); err != nil {
		return Region{}, err
	}
	if !h.Output.IsZero() {
		return Region{}, errors.InvalidInput(errors.PhaseExtract, "output region already adopted")
	}
	r, err := h.arena.adopt(ptr, size)
	if err != nil {
		return Region{}, err
	}
	h.Output = r
	return r, nil
}

// View returns a zero-copy view of r.
func (h *Handle) View(r Region) ([]byte, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}
	return h.arena.View(r.Ptr, r.Size)
}

// Released reports whether Release has run.
func (h *Handle) Released() bool { return h.released }

// Release frees every region the handle holds. It is idempotent and tolerates
// partially populated handles. All frees are attempted even if one fails.
func (h *Handle) Release(ctx context.Context) error {
	if h.released {
		return nil
	}
	h.released = true

	var errs []error
	for _, r := range []*Region{&h.Output, &h.Length, &h.Location, &h.Input} {
		if err := h.arena.free(ctx, *r); err != nil {
			errs = append(errs, err)
		}
		*r = Region{}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.PhaseRelease, errors.KindUnexpected, errors.Join(errs...), "release handle")
	}
	return nil
}

func (h *Handle) usable() error {
	if h.released {
		return errors.InvalidInput(errors.PhaseAlloc, "handle already released")
	}
	return nil
}
