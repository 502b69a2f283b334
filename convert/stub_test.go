package convert

import (
	"context"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/arena"
	"github.com/wippyai/spzconv/codec"
)

// codecFunc is the behaviour of a stub codec call. arg is the level or the
// normals flag.
type codecFunc func(s *stubCodec, input []byte, arg int32, outPtr, outLen uint32) (codec.Status, error)

// stubCodec is a codec.Instance over a process-local heap.
type stubCodec struct {
	heap     *arena.Heap
	alloc    *countingAllocator
	notReady bool
	fn       codecFunc

	calls   int
	lastArg int32
	lastDir spzconv.Direction
	lastOut uint32
}

func newStub(fn codecFunc) *stubCodec {
	return newStubWithLimit(1<<20, fn)
}

func newStubWithLimit(limit uint32, fn codecFunc) *stubCodec {
	h := arena.NewHeap(limit)
	return &stubCodec{
		heap:  h,
		alloc: &countingAllocator{heap: h},
		fn:    fn,
	}
}

func (s *stubCodec) Memory() spzconv.Memory       { return s.heap }
func (s *stubCodec) Allocator() spzconv.Allocator { return s.alloc }
func (s *stubCodec) Ready() bool                  { return !s.notReady }

func (s *stubCodec) Compress(ctx context.Context, input, inputLen uint32, level int32, outPtr, outLen uint32) (codec.Status, error) {
	s.lastDir = spzconv.Compress
	return s.dispatch(input, inputLen, level, outPtr, outLen)
}

func (s *stubCodec) Decompress(ctx context.Context, input, inputLen uint32, includeNormals int32, outPtr, outLen uint32) (codec.Status, error) {
	s.lastDir = spzconv.Decompress
	return s.dispatch(input, inputLen, includeNormals, outPtr, outLen)
}

func (s *stubCodec) dispatch(input, inputLen uint32, arg int32, outPtr, outLen uint32) (codec.Status, error) {
	s.calls++
	s.lastArg = arg
	data, err := s.heap.Read(input, inputLen)
	if err != nil {
		return 0, err
	}
	return s.fn(s, data, arg, outPtr, outLen)
}

// emit places out in a fresh heap region and reports it through the slots.
func (s *stubCodec) emit(out []byte, outPtr, outLen uint32) (codec.Status, error) {
	p, _ := s.heap.Alloc(context.Background(), uint32(len(out)))
	if p == 0 {
		return 3, nil
	}
	s.heap.Write(p, out)
	s.heap.WriteU32(outPtr, p)
	s.heap.WriteU32(outLen, uint32(len(out)))
	s.lastOut = p
	return codec.StatusOK, nil
}

// prefix answers every call with "SPZ" followed by the input.
func prefix(s *stubCodec, input []byte, _ int32, outPtr, outLen uint32) (codec.Status, error) {
	return s.emit(append([]byte("SPZ"), input...), outPtr, outLen)
}

// countingAllocator counts calls made through the arena.
type countingAllocator struct {
	heap   *arena.Heap
	allocs int
	frees  int
}

func (c *countingAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	c.allocs++
	return c.heap.Alloc(ctx, size)
}

func (c *countingAllocator) Free(ctx context.Context, ptr uint32) error {
	c.frees++
	return c.heap.Free(ctx, ptr)
}
