// Package spzconv converts batches of Gaussian splat point clouds between PLY and
// the SPZ container by driving a precompiled SPZ codec compiled to WebAssembly.
//
// The codec is opaque. It is reached through a narrow C-style calling convention:
// scalar arguments, results written through out-pointers, and an int32 status
// code where 0 means success. Everything that touches codec memory goes through
// the arena package, so every region allocated for a file is released exactly once.
//
// # Architecture Overview
//
//	spzconv/         Root package with data model and Memory/Allocator interfaces
//	├── arena/       Buffer arena: per-file region handles and release tracking
//	├── codec/       Codec boundary contract: status codes and export names
//	├── engine/      wazero host for the wasm codec
//	├── convert/     Conversion unit and batch processor
//	├── archive/     Store-only ZIP packaging of converted outputs
//	├── config/      YAML configuration
//	├── errors/      Structured error types
//	└── cmd/spzconv  Command line front end
//
// # Quick Start
//
//	eng, err := engine.NewWazeroEngine(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.LoadModule(ctx, codecWasm)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	res, err := convert.New(inst).RunBatch(ctx, files, spzconv.Compress, convert.Options{})
//	fmt.Printf("Success: %d, Errors: %d\n", res.Summary.Succeeded, res.Summary.Failed)
//
//	zipBytes, err := archive.Pack(res.Blobs())
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. An Instance owns one linear
// memory and is NOT thread-safe: give every concurrently running batch its own
// Instance. A Converter serialises batches that share an Instance.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. Regions freed by the pipeline
// are returned to the codec's allocator for reuse within the same instance.
package spzconv
