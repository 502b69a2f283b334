package spzconv

import (
	"context"
	"fmt"
	"strings"
)

// Memory is the address space shared between the host and the codec.
// Offsets are codec-side addresses; 0 is never a valid region.
type Memory interface {
	// Read returns a view of length bytes at offset. The view aliases the
	// underlying memory and is invalidated by frees and memory growth.
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of the address space in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates regions inside Memory using the codec's own allocator,
// so regions handed out by the codec can be released the same way.
type Allocator interface {
	Alloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr uint32) error
}

// RawFile is one input of a batch.
type RawFile struct {
	Name string
	Data []byte
}

// NamedBlob is one converted output.
type NamedBlob struct {
	Name string
	Data []byte
}

// Direction selects the codec operation applied to a batch.
type Direction int

const (
	Compress Direction = iota
	Decompress
)

func (d Direction) String() string {
	switch d {
	case Compress:
		return "compress"
	case Decompress:
		return "decompress"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts "compress"/"encode" and "decompress"/"decode".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compress", "encode", "e":
		return Compress, nil
	case "decompress", "decode", "d":
		return Decompress, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
