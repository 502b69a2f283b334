package wasmgen

// Instruction opcodes
const (
	opUnreachable byte = 0x00
	opIf          byte = 0x04
	opEnd         byte = 0x0B
	opReturn      byte = 0x0F
	opCall        byte = 0x10
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opLocalTee    byte = 0x22
	opGlobalGet   byte = 0x23
	opGlobalSet   byte = 0x24
	opI32Load     byte = 0x28
	opI32Load8U   byte = 0x2D
	opI32Store    byte = 0x36
	opI32Store8   byte = 0x3A
	opMemorySize  byte = 0x3F
	opI32Const    byte = 0x41
	opI32Eqz      byte = 0x45
	opI32Eq       byte = 0x46
	opI32GtU      byte = 0x4B
	opI32LeS      byte = 0x4C
	opI32GeU      byte = 0x4F
	opI32Add      byte = 0x6A
	opI32Sub      byte = 0x6B
	opI32Shl      byte = 0x74
	opPrefixFC    byte = 0xFC
	opMemoryCopy  uint32 = 10

	blockEmpty byte = 0x40
)

// Code assembles a function body. Methods append one instruction and return
// the receiver so bodies read top to bottom.
type Code struct {
	w writer
}

func (c *Code) Bytes() []byte { return c.w.Bytes() }

// op appends an opcode followed by its LEB128 immediates.
func (c *Code) op(code byte, imm ...uint32) *Code {
	c.w.Byte(code)
	for _, v := range imm {
		c.w.U32(v)
	}
	return c
}

func (c *Code) LocalGet(i uint32) *Code  { return c.op(opLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.op(opLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.op(opLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.op(opGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.op(opGlobalSet, i) }
func (c *Code) Call(f uint32) *Code      { return c.op(opCall, f) }

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(opI32Const)
	c.w.S32(v)
	return c
}

// If opens a block with no result; close it with End.
func (c *Code) If() *Code { return c.op(opIf).op(blockEmpty) }

func (c *Code) End() *Code         { return c.op(opEnd) }
func (c *Code) Return() *Code      { return c.op(opReturn) }
func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }
func (c *Code) Eqz() *Code         { return c.op(opI32Eqz) }
func (c *Code) Eq() *Code          { return c.op(opI32Eq) }
func (c *Code) GtU() *Code         { return c.op(opI32GtU) }
func (c *Code) LeS() *Code         { return c.op(opI32LeS) }
func (c *Code) GeU() *Code         { return c.op(opI32GeU) }
func (c *Code) Add() *Code         { return c.op(opI32Add) }
func (c *Code) Sub() *Code         { return c.op(opI32Sub) }
func (c *Code) Shl() *Code         { return c.op(opI32Shl) }

// Load reads an i32 at the address on the stack.
func (c *Code) Load() *Code { return c.op(opI32Load, 2, 0) }

// Load8U reads one byte at the address on the stack.
func (c *Code) Load8U() *Code { return c.op(opI32Load8U, 0, 0) }

// Store writes an i32: [addr, value] -> [].
func (c *Code) Store() *Code { return c.op(opI32Store, 2, 0) }

// Store8 writes the low byte: [addr, value] -> [].
func (c *Code) Store8() *Code { return c.op(opI32Store8, 0, 0) }

// MemorySize pushes the size of memory 0 in pages.
func (c *Code) MemorySize() *Code { return c.op(opMemorySize, 0) }

// MemoryCopy copies within memory 0: [dst, src, n] -> [].
func (c *Code) MemoryCopy() *Code { return c.op(opPrefixFC, opMemoryCopy, 0, 0) }
