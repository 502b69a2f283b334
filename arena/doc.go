// Package arena manages the codec memory used by one conversion.
//
// A Handle owns up to four regions:
//
//	Input     copy of the file bytes
//	Location  out-slot the codec writes the result address into
//	Length    out-slot the codec writes the result length into
//	Output    the result region, allocated by the codec and adopted by the handle
//
// Release frees whatever the handle holds, exactly once, no matter how far the
// conversion got. The Arena keeps the table of live regions so a region can
// never be tracked by two handles at once.
package arena
