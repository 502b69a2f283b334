package codec

import (
	"context"

	"github.com/wippyai/spzconv"
)

// Status is the int32 result of a codec call. Only StatusOK is meaningful to
// the pipeline; every other value is an opaque failure.
type Status int32

const StatusOK Status = 0

func (s Status) OK() bool { return s == StatusOK }

// Quality bounds accepted by the codec's compression level argument.
const (
	DefaultQuality int32 = 3
	MinQuality     int32 = 1
	MaxQuality     int32 = 22
)

// Codec exports
const (
	// ExportCompress encodes a PLY buffer into an SPZ container.
	// Signature: compress_spz(input: i32, inputSize: i32, level: i32, outPtr: i32, outSize: i32) -> i32
	// On status 0 *outPtr holds a malloc'd region owned by the caller.
	ExportCompress = "compress_spz"

	// ExportDecompress decodes an SPZ container into a PLY buffer.
	// Signature: decompress_spz(input: i32, inputSize: i32, includeNormals: i32, outPtr: i32, outSize: i32) -> i32
	ExportDecompress = "decompress_spz"

	// ExportErrorString maps a status to a static C string. Optional.
	// Signature: get_error_string_spz(status: i32) -> i32 (pointer)
	ExportErrorString = "get_error_string_spz"

	// ExportInitialize is the reactor initializer emitted by wasi-sdk and emscripten. Optional.
	ExportInitialize = "_initialize"

	// ExportMemory is the codec's linear memory.
	ExportMemory = "memory"
)

// Memory management exports
const (
	// ExportMalloc allocates memory in WASM linear memory.
	// Signature: malloc(size: i32) -> i32 (pointer, 0 on failure)
	ExportMalloc = "malloc"

	// ExportFree frees memory in WASM linear memory.
	// Signature: free(ptr: i32) -> void
	ExportFree = "free"
)

// Boundary is the pair of codec operations. Arguments are addresses inside the
// codec's Memory. The error result reports that the call itself faulted; a
// codec-level failure is reported through Status only.
type Boundary interface {
	Compress(ctx context.Context, input, inputLen uint32, level int32, outPtr, outLen uint32) (Status, error)
	Decompress(ctx context.Context, input, inputLen uint32, includeNormals int32, outPtr, outLen uint32) (Status, error)
}

// Instance is a codec together with the address space and allocator its
// arguments live in. Ready reports whether the codec can be called.
type Instance interface {
	Boundary
	Memory() spzconv.Memory
	Allocator() spzconv.Allocator
	Ready() bool
}

// Describer is implemented by instances that can render a status as text.
// The text is for humans only and never changes how a status is treated.
type Describer interface {
	Describe(ctx context.Context, s Status) string
}

// BoolFlag converts a Go bool to the codec's 0/1 integer flag.
func BoolFlag(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
