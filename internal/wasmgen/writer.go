package wasmgen

import (
	"bytes"
	"encoding/binary"
)

// writer provides buffered writing utilities for WASM binary encoding.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *writer) Byte(b ...byte) {
	w.buf.Write(b)
}

// U32 writes an unsigned LEB128 encoded uint32.
func (w *writer) U32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// S32 writes a signed LEB128 encoded int32.
func (w *writer) S32(v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && (b&0x40) == 0) || (v == -1 && (b&0x40) != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.buf.WriteByte(b)
	}
}

// Name writes a UTF-8 encoded name (length-prefixed).
func (w *writer) Name(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}

// Vec writes a length-prefixed byte vector.
func (w *writer) Vec(data []byte) {
	w.U32(uint32(len(data)))
	w.buf.Write(data)
}

func (w *writer) U32LE(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}
