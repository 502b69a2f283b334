// Package convert runs files through a codec instance.
//
// A Converter wraps one codec.Instance. Convert handles a single file and
// RunBatch handles an ordered list. Each file goes through a small state
// machine with its own arena handle:
//
//	Start      allocate the input copy and the two out-slots
//	Allocated  call compress_spz or decompress_spz
//	Invoked    check the status, adopt and copy the codec's output
//	Extracted  success
//	Failed     any error, codec status or recovered panic
//	Released   every region freed; reached from both Extracted and Failed
//
// Failures never escape as errors or panics. They are recorded in the file's
// Outcome and counted in the batch Summary, and the next file runs as usual.
// The codec's status codes are treated as pass/fail; when the instance can
// describe a status, the text is only added to the error detail.
//
// Outputs are copied out of codec memory before release, so a Result stays
// valid after the instance is closed.
package convert
