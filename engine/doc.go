// Package engine hosts the SPZ codec, compiled to WebAssembly, in wazero.
//
// # Architecture
//
// The engine package provides three main types:
//
//	WazeroEngine   - Owns a wazero runtime and the shared host modules
//	WazeroModule   - A compiled, validated codec module
//	WazeroInstance - A running codec with its own linear memory
//
// # Loading Flow
//
//  1. WazeroEngine.LoadModule() compiles the binary and checks the codec ABI:
//     malloc, free, compress_spz, decompress_spz and an exported memory
//  2. Imports are classified; WASI preview1 and the emscripten env
//     trampolines are provided, anything else is reported as a
//     MissingImportsError before instantiation
//  3. WazeroModule.Instantiate() creates an anonymous instance and runs the
//     reactor's _initialize export when present
//  4. WazeroInstance implements codec.Instance; hand it to convert.New
//
// # Codec ABI
//
// Every parameter and result is an i32:
//
//	malloc(size) -> ptr                     0 means failure
//	free(ptr)
//	compress_spz(in, len, level, outPP, outLenP) -> status
//	decompress_spz(in, len, normals, outPP, outLenP) -> status
//	get_error_string_spz(status) -> cstr    optional
//
// The codec writes the address of a buffer it allocated with its own malloc
// into outPP and the byte count into outLenP. The host copies the bytes out
// and frees the buffer with the codec's free.
//
// # Thread Safety
//
// WazeroEngine and WazeroModule are safe for concurrent use. A WazeroInstance
// is not; create one instance per goroutine. Instances are anonymous, so any
// number of them can live in one engine.
//
// # Memory Limits
//
// Config.MemoryLimitPages caps each instance's linear memory (64KB pages).
// When the codec cannot grow memory, its malloc returns 0 and the file fails
// with an allocation error while the instance stays usable.
package engine
