package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in a conversion the error occurred
type Phase string

const (
	PhaseAlloc   Phase = "alloc"   // arena allocation
	PhaseInvoke  Phase = "invoke"  // codec call
	PhaseExtract Phase = "extract" // reading results out of codec memory
	PhaseRelease Phase = "release" // freeing arena regions
	PhaseLoad    Phase = "load"    // codec module loading
	PhaseBatch   Phase = "batch"   // batch preconditions
	PhasePack    Phase = "pack"    // archive packaging
	PhaseConfig  Phase = "config"  // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation     Kind = "allocation"
	KindCodecStatus    Kind = "codec_status"
	KindEmptyResult    Kind = "empty_result"
	KindUnexpected     Kind = "unexpected"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindAliasing       Kind = "aliasing"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindInvalidData    Kind = "invalid_data"
	KindMissingExport  Kind = "missing_export"
	KindMissingImport  Kind = "missing_import"
	KindInstantiation  Kind = "instantiation"
)

// Error describes one failure of the pipeline. Phase says where it happened,
// Kind what happened. File names the input being converted, if any.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	File   string
	Detail string
}

// Error formats as "[phase] kind in file: detail: cause".
func (e *Error) Error() string {
	msg := "[" + string(e.Phase) + "] " + string(e.Kind)
	if e.File != "" {
		msg += " in " + e.File
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same Phase and Kind, so a zero-detail
// sentinel such as &Error{Phase: PhaseAlloc, Kind: KindAllocation} works
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder assembles an Error field by field.
type Builder struct {
	err Error
}

func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) File(name string) *Builder {
	b.err.File = name
	return b
}

func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the message; with args it is a format string.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	b.err.Detail = msg
	return b
}

func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// AllocationFailed reports a malloc that failed or returned null.
func AllocationFailed(size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
		Value:  size,
	}
}

// CodecStatus creates an error for a non-zero codec status code.
// The status is kept as Value; it is not interpreted.
func CodecStatus(op string, status int32) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindCodecStatus,
		Detail: fmt.Sprintf("%s returned status %d", op, status),
		Value:  status,
	}
}

// EmptyResult creates an error for a successful call that produced no output
func EmptyResult(op string, ptr uint32, length int32) *Error {
	return &Error{
		Phase:  PhaseExtract,
		Kind:   KindEmptyResult,
		Detail: fmt.Sprintf("%s reported success with location %d and length %d", op, ptr, length),
	}
}

// Unexpected creates an error for a fault that was not anticipated, such as
// a trap inside the codec or a recovered panic
func Unexpected(phase Phase, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnexpected,
		Detail: "unexpected failure",
		Cause:  cause,
	}
}

// OutOfBounds creates an out of bounds error for a region access
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("region [%d, %d) out of bounds (memory size %d)", offset, uint64(offset)+uint64(length), size),
		Value:  offset,
	}
}

// Aliasing creates an error for a region that is already tracked as live
func Aliasing(phase Phase, ptr uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAliasing,
		Detail: fmt.Sprintf("region %d is already live", ptr),
		Value:  ptr,
	}
}

// NotInitialized reports a codec that is missing, closed or has exited.
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput reports a caller error such as a nil file list.
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// MissingExport creates an error for a codec module lacking a required export
func MissingExport(name, want string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMissingExport,
		Detail: fmt.Sprintf("export %q missing or not %s", name, want),
	}
}

// Instantiation reports a codec module that compiled but would not start.
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate codec module",
		Cause:  cause,
	}
}

// Load reports bytes that are not a loadable codec module.
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap attaches phase, kind and detail to an arbitrary error.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// WithFile returns a copy of err tagged with the input file name.
// Errors that are not *Error are wrapped as unexpected.
func WithFile(err error, phase Phase, file string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if As(err, &e) {
		c := *e
		c.File = file
		return &c
	}
	u := Unexpected(phase, err)
	u.File = file
	return u
}

// MissingImport is one codec import the host has no implementation for.
type MissingImport struct {
	Module string // e.g., "env"
	Name   string // e.g., "emscripten_resize_heap"
}

// MissingImportsError is returned when a codec module imports functions the host
// cannot provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError builds the error from "module#name" keys.
func NewMissingImportsError(keys []string) *MissingImportsError {
	e := &MissingImportsError{}
	for _, k := range keys {
		mod, name, _ := strings.Cut(k, "#")
		e.Imports = append(e.Imports, MissingImport{Module: mod, Name: name})
	}
	return e
}

// Error lists the missing imports grouped by module, modules in first-seen
// order.
func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[load] missing_import: no imports specified"
	}

	var modules []string
	names := make(map[string][]string)
	for _, imp := range e.Imports {
		if _, seen := names[imp.Module]; !seen {
			modules = append(modules, imp.Module)
		}
		names[imp.Module] = append(names[imp.Module], imp.Name)
	}

	lines := []string{fmt.Sprintf("codec needs %d host function(s) that are not provided:", len(e.Imports))}
	for _, mod := range modules {
		lines = append(lines, "", "  "+mod+":")
		for _, n := range names[mod] {
			lines = append(lines, "    - "+n)
		}
	}
	return strings.Join(lines, "\n")
}

// Is matches any *MissingImportsError and the load/missing_import sentinel.
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Phase == PhaseLoad && t.Kind == KindMissingImport
	}
	return false
}
