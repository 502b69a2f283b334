// Package errors provides structured error types for spzconv.
//
// Errors are categorized by Phase (where in a conversion the error occurred) and
// Kind (error category). The per-file failure taxonomy maps onto kinds:
//
//	allocation    the arena could not obtain a region
//	codec_status  the codec returned a non-zero status (kept uninterpreted in Value)
//	empty_result  status 0 but no output location or a non-positive length
//	unexpected    a trap, panic or other fault during marshalling
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseExtract, errors.KindOutOfBounds).
//		File("cloud.ply").
//		Detail("output region past end of memory").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.CodecStatus("compress_spz", status)
//	err := errors.AllocationFailed(size, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// Two *Error values match under errors.Is when Phase and Kind are equal.
package errors
