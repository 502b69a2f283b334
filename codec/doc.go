// Package codec defines the contract between the conversion pipeline and a
// precompiled SPZ codec.
//
// The codec exposes two operations with a C calling convention:
//
//	compress_spz(ptr, len, level, outPtrPtr, outLenPtr) -> int32
//	decompress_spz(ptr, len, includeNormals, outPtrPtr, outLenPtr) -> int32
//
// A status of 0 means the codec wrote a region address into *outPtrPtr and its
// length into *outLenPtr, and that the region now belongs to the caller. Any
// other status is a failure and the out-slots must not be read.
//
// Implementations live elsewhere: engine hosts a wasm build of the codec.
package codec
