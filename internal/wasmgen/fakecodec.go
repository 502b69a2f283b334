package wasmgen

import "strings"

// Status codes returned by the fake codec.
const (
	StatusEmptyInput int32 = 1
	StatusCorrupt    int32 = 2
	StatusNoMemory   int32 = 3
)

// First input bytes that steer the fake codec.
const (
	TagCorrupt    byte = 0xFF // status StatusCorrupt, nothing allocated
	TagTrap       byte = 0xDD // executes unreachable
	TagNullResult byte = 0xEE // status 0 with null location and zero length
	TagZeroLength byte = 0xEF // status 0, a real 1-byte buffer, length 0
)

const (
	// MallocLimit is the smallest request the fake malloc refuses.
	MallocLimit = 0x10000

	// ExportLiveAllocations reports malloc calls minus non-null free calls.
	ExportLiveAllocations = "live_allocations"

	heapStart   = 1024
	memoryPages = 4
	errorTable  = 16
)

// Options shape the fake codec module.
type Options struct {
	// ErrorStrings exports get_error_string_spz.
	ErrorStrings bool
	// Reactor exports _initialize; malloc fails until it has run.
	Reactor bool
	// WASI imports wasi_snapshot_preview1.fd_write.
	WASI bool
	// Emscripten imports env.emscripten_notify_memory_growth.
	Emscripten bool
	// ExtraImports adds (i32)->() imports given as "module#name".
	ExtraImports []string
	// Omit leaves the named exports out.
	Omit []string
	// Mistyped exports the named function with free's signature.
	Mistyped string
}

const (
	typeI32ToI32 uint32 = iota
	typeI32ToVoid
	typeVoidToI32
	typeCodec
	typeFdWrite
	typeVoidToVoid
)

// FakeCodec builds a module that exports the SPZ codec ABI without doing any
// real compression. compress_spz and decompress_spz return a buffer holding
// the level (or normals flag) byte followed by the input, allocated with the
// module's own malloc. An empty input yields StatusEmptyInput, and the Tag
// constants select the failure paths.
func FakeCodec(opts Options) []byte {
	m := &Module{
		Types: []FuncType{
			typeI32ToI32:   {Params: []ValType{I32}, Results: []ValType{I32}},
			typeI32ToVoid:  {Params: []ValType{I32}},
			typeVoidToI32:  {Results: []ValType{I32}},
			typeCodec:      {Params: []ValType{I32, I32, I32, I32, I32}, Results: []ValType{I32}},
			typeFdWrite:    {Params: []ValType{I32, I32, I32, I32}, Results: []ValType{I32}},
			typeVoidToVoid: {},
		},
		MemoryPages: memoryPages,
	}

	if opts.WASI {
		m.Imports = append(m.Imports, Import{Module: "wasi_snapshot_preview1", Name: "fd_write", Type: typeFdWrite})
	}
	if opts.Emscripten {
		m.Imports = append(m.Imports, Import{Module: "env", Name: "emscripten_notify_memory_growth", Type: typeI32ToVoid})
	}
	for _, key := range opts.ExtraImports {
		mod, name, _ := strings.Cut(key, "#")
		m.Imports = append(m.Imports, Import{Module: mod, Name: name, Type: typeI32ToVoid})
	}

	base := m.ImportedFuncs()
	var (
		fnMalloc     = base
		fnFree       = base + 1
		fnLive       = base + 2
		fnEmit       = base + 3
		fnCompress   = base + 4
		fnDecompress = base + 5
		fnErrString  = base + 6
		fnInitialize = base + 7
	)

	const (
		gHeap uint32 = 0
		gLive uint32 = 1
	)
	heapInit := int32(heapStart)
	if opts.Reactor {
		heapInit = 0
	}
	m.Globals = []Global{
		{Type: I32, Mutable: true, Init: heapInit},
		{Type: I32, Mutable: true, Init: 0},
	}

	malloc := new(Code)
	malloc.LocalGet(0).I32Const(MallocLimit).GeU().If().I32Const(0).Return().End()
	malloc.GlobalGet(gHeap).Eqz().If().I32Const(0).Return().End()
	malloc.GlobalGet(gHeap).LocalGet(0).Add().I32Const(8).Add().
		MemorySize().I32Const(16).Shl().GtU().If().I32Const(0).Return().End()
	malloc.GlobalGet(gHeap).LocalSet(1)
	malloc.GlobalGet(gHeap).LocalGet(0).Add().I32Const(8).Add().GlobalSet(gHeap)
	malloc.GlobalGet(gLive).I32Const(1).Add().GlobalSet(gLive)
	malloc.LocalGet(1).End()

	free := new(Code)
	free.LocalGet(0).Eqz().If().Return().End()
	free.GlobalGet(gLive).I32Const(1).Sub().GlobalSet(gLive).End()

	live := new(Code)
	live.GlobalGet(gLive).End()

	// emit(in, len, tag, outPP, outLenP); locals 5 = out, 6 = first byte
	emit := new(Code)
	emit.LocalGet(1).I32Const(0).LeS().If().I32Const(StatusEmptyInput).Return().End()
	emit.LocalGet(0).Load8U().LocalSet(6)
	emit.LocalGet(6).I32Const(int32(TagCorrupt)).Eq().If().I32Const(StatusCorrupt).Return().End()
	emit.LocalGet(6).I32Const(int32(TagTrap)).Eq().If().Unreachable().End()
	emit.LocalGet(6).I32Const(int32(TagNullResult)).Eq().If().
		LocalGet(3).I32Const(0).Store().
		LocalGet(4).I32Const(0).Store().
		I32Const(0).Return().End()
	emit.LocalGet(6).I32Const(int32(TagZeroLength)).Eq().If().
		LocalGet(3).I32Const(1).Call(fnMalloc).Store().
		LocalGet(4).I32Const(0).Store().
		I32Const(0).Return().End()
	emit.LocalGet(1).I32Const(1).Add().Call(fnMalloc).LocalTee(5).Eqz().If().I32Const(StatusNoMemory).Return().End()
	emit.LocalGet(5).LocalGet(2).Store8()
	emit.LocalGet(5).I32Const(1).Add().LocalGet(0).LocalGet(1).MemoryCopy()
	emit.LocalGet(3).LocalGet(5).Store()
	emit.LocalGet(4).LocalGet(1).I32Const(1).Add().Store()
	emit.I32Const(0).End()

	forward := func() []byte {
		c := new(Code)
		c.LocalGet(0).LocalGet(1).LocalGet(2).LocalGet(3).LocalGet(4).Call(fnEmit).End()
		return c.Bytes()
	}

	errString := new(Code)
	errString.LocalGet(0).I32Const(1).Sub().I32Const(3).GeU().If().I32Const(0).Return().End()
	errString.LocalGet(0).I32Const(4).Shl().End()

	initialize := new(Code)
	initialize.I32Const(heapStart).GlobalSet(gHeap).End()

	m.Funcs = []Func{
		{Type: typeI32ToI32, Locals: []ValType{I32}, Body: malloc.Bytes()},
		{Type: typeI32ToVoid, Body: free.Bytes()},
		{Type: typeVoidToI32, Body: live.Bytes()},
		{Type: typeCodec, Locals: []ValType{I32, I32}, Body: emit.Bytes()},
		{Type: typeCodec, Body: forward()},
		{Type: typeCodec, Body: forward()},
		{Type: typeI32ToI32, Body: errString.Bytes()},
		{Type: typeVoidToVoid, Body: initialize.Bytes()},
	}

	m.Data = []Data{{Offset: errorTable, Bytes: errorStrings()}}

	exports := []Export{
		{Name: "memory", Kind: KindMemory, Index: 0},
		{Name: "malloc", Kind: KindFunc, Index: fnMalloc},
		{Name: "free", Kind: KindFunc, Index: fnFree},
		{Name: "compress_spz", Kind: KindFunc, Index: fnCompress},
		{Name: "decompress_spz", Kind: KindFunc, Index: fnDecompress},
		{Name: ExportLiveAllocations, Kind: KindFunc, Index: fnLive},
	}
	if opts.ErrorStrings {
		exports = append(exports, Export{Name: "get_error_string_spz", Kind: KindFunc, Index: fnErrString})
	}
	if opts.Reactor {
		exports = append(exports, Export{Name: "_initialize", Kind: KindFunc, Index: fnInitialize})
	}

	omit := make(map[string]bool, len(opts.Omit))
	for _, name := range opts.Omit {
		omit[name] = true
	}
	for _, e := range exports {
		if omit[e.Name] {
			continue
		}
		if e.Name == opts.Mistyped && e.Kind == KindFunc {
			e.Index = fnFree
		}
		m.Exports = append(m.Exports, e)
	}

	return m.Encode()
}

// ErrorString returns the text get_error_string_spz reports for status.
func ErrorString(status int32) string {
	switch status {
	case StatusEmptyInput:
		return "empty input"
	case StatusCorrupt:
		return "corrupt input"
	case StatusNoMemory:
		return "out of memory"
	}
	return ""
}

// errorStrings lays out one NUL-terminated string per 16-byte slot, status s
// at address s<<4.
func errorStrings() []byte {
	table := make([]byte, 3*errorTable)
	for s := StatusEmptyInput; s <= StatusNoMemory; s++ {
		copy(table[int(s-1)*errorTable:], ErrorString(s))
	}
	return table
}
