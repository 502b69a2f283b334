package convert

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/arena"
	"github.com/wippyai/spzconv/codec"
	"github.com/wippyai/spzconv/errors"
)

// Stage is a state of the per-file conversion machine:
//
//	Start -> Allocated -> Invoked -> Extracted -> Released
//	  |          |           |
//	  +----------+-----------+-> Failed ---------> Released
type Stage int

const (
	StageStart Stage = iota
	StageAllocated
	StageInvoked
	StageExtracted
	StageFailed
	StageReleased
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageAllocated:
		return "allocated"
	case StageInvoked:
		return "invoked"
	case StageExtracted:
		return "extracted"
	case StageFailed:
		return "failed"
	case StageReleased:
		return "released"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// phase maps the stage a step starts from to the error phase it reports.
func (s Stage) phase() errors.Phase {
	switch s {
	case StageStart:
		return errors.PhaseAlloc
	case StageAllocated:
		return errors.PhaseInvoke
	case StageInvoked:
		return errors.PhaseExtract
	default:
		return errors.PhaseRelease
	}
}

// Outcome is the result of converting one file. Exactly one of Output and Err
// is meaningful: Err == nil means Output holds a non-empty owned copy.
type Outcome struct {
	Input     string
	InputSize int
	Output    spzconv.NamedBlob
	Err       error
	// Stage is the last stage reached before the outcome was decided:
	// Extracted on success, the stage the failing step started from otherwise.
	Stage Stage
	// ReleaseErr records a failure to free the file's regions. It does not
	// turn a success into a failure; the output was copied out beforehand.
	ReleaseErr error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Options control a conversion.
type Options struct {
	// Quality is the compression level, MinQuality..MaxQuality.
	// 0 selects codec.DefaultQuality. Ignored when decompressing.
	Quality int32
	// IncludeNormals asks the decoder to emit normals. Ignored when compressing.
	IncludeNormals bool
	// Progress, when set, is called after each file of a batch in order.
	Progress func(index int, o Outcome)
}

func (o Options) level() int32 {
	if o.Quality == 0 {
		return codec.DefaultQuality
	}
	return o.Quality
}

// validate checks the options that apply to dir. Quality is only a
// compression setting.
func (o Options) validate(dir spzconv.Direction) error {
	if dir != spzconv.Compress {
		return nil
	}
	if q := o.level(); q < codec.MinQuality || q > codec.MaxQuality {
		return errors.InvalidInput(errors.PhaseBatch,
			fmt.Sprintf("quality %d outside %d..%d", q, codec.MinQuality, codec.MaxQuality))
	}
	return nil
}

// Converter drives one codec instance. Batches on the same Converter are
// serialised; use one Converter per instance to run batches concurrently.
type Converter struct {
	inst codec.Instance
	mu   sync.Mutex
}

// New creates a Converter over inst. A nil or not-ready instance is accepted;
// every file then fails with a not-initialized error.
func New(inst codec.Instance) *Converter {
	return &Converter{inst: inst}
}

func (c *Converter) ready() bool {
	return c.inst != nil && c.inst.Ready()
}

func (c *Converter) newArena() *arena.Arena {
	if c.inst == nil {
		return nil
	}
	return arena.New(c.inst.Memory(), c.inst.Allocator())
}

// Convert converts a single file using a fresh arena. It never returns an
// error: every failure is recorded in the Outcome.
func (c *Converter) Convert(ctx context.Context, file spzconv.RawFile, dir spzconv.Direction, opts Options) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := Logger().With(zap.Stringer("direction", dir))
	if err := opts.validate(dir); err != nil {
		return Outcome{
			Input:     file.Name,
			InputSize: len(file.Data),
			Err:       errors.WithFile(err, errors.PhaseAlloc, file.Name),
			Stage:     StageStart,
		}
	}
	return c.convert(ctx, c.newArena(), log, file, dir, opts)
}

func (c *Converter) convert(ctx context.Context, a *arena.Arena, log *zap.Logger, file spzconv.RawFile, dir spzconv.Direction, opts Options) Outcome {
	u := &unit{
		conv: c,
		file: file,
		dir:  dir,
		opts: opts,
	}
	if a != nil {
		u.handle = a.NewHandle()
	}
	u.run(ctx)

	out := u.outcome()
	fields := []zap.Field{
		zap.String("file", file.Name),
		zap.Stringer("stage", out.Stage),
		zap.Int("in_bytes", len(file.Data)),
	}
	if out.OK() {
		log.Debug("file converted", append(fields,
			zap.String("output", out.Output.Name),
			zap.Int("out_bytes", len(out.Output.Data)))...)
	} else {
		log.Warn("file failed", append(fields, zap.Error(out.Err))...)
	}
	if out.ReleaseErr != nil {
		log.Warn("release failed", append(fields, zap.Error(out.ReleaseErr))...)
	}
	return out
}

// unit is one run of the state machine. Each step moves to the next stage or
// to Failed; both terminal paths pass through Released.
type unit struct {
	conv   *Converter
	handle *arena.Handle
	file   spzconv.RawFile
	dir    spzconv.Direction
	opts   Options

	stage      Stage
	reached    Stage
	status     codec.Status
	output     []byte
	err        error
	releaseErr error
}

func (u *unit) run(ctx context.Context) {
	for u.stage != StageReleased {
		u.step(ctx)
	}
}

func (u *unit) step(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			cause := errors.Unexpected(u.stage.phase(), fmt.Errorf("panic: %v", r))
			if u.stage == StageExtracted || u.stage == StageFailed {
				u.releaseErr = cause
				u.stage = StageReleased
				return
			}
			u.fail(cause)
		}
	}()

	switch u.stage {
	case StageStart:
		if err := u.allocate(ctx); err != nil {
			u.fail(err)
			return
		}
		u.advance(StageAllocated)
	case StageAllocated:
		status, err := u.invoke(ctx)
		if err != nil {
			u.fail(err)
			return
		}
		u.status = status
		u.advance(StageInvoked)
	case StageInvoked:
		if err := u.extract(ctx); err != nil {
			u.fail(err)
			return
		}
		u.advance(StageExtracted)
	case StageExtracted, StageFailed:
		if u.handle != nil {
			u.releaseErr = u.handle.Release(ctx)
		}
		u.stage = StageReleased
	default:
		u.fail(errors.Unexpected(errors.PhaseBatch, fmt.Errorf("invalid stage %s", u.stage)))
	}
}

func (u *unit) advance(s Stage) {
	u.stage = s
	u.reached = s
}

func (u *unit) fail(err error) {
	u.err = errors.WithFile(err, u.stage.phase(), u.file.Name)
	u.reached = u.stage
	u.stage = StageFailed
}

func (u *unit) op() string {
	if u.dir == spzconv.Compress {
		return codec.ExportCompress
	}
	return codec.ExportDecompress
}

func (u *unit) allocate(ctx context.Context) error {
	if !u.conv.ready() || u.handle == nil {
		return errors.NotInitialized(errors.PhaseAlloc, "codec")
	}
	if _, err := u.handle.AllocateInput(ctx, u.file.Data); err != nil {
		return err
	}
	return u.handle.AllocateOutSlots(ctx)
}

func (u *unit) invoke(ctx context.Context) (codec.Status, error) {
	inst := u.conv.inst
	if !inst.Ready() {
		return 0, errors.NotInitialized(errors.PhaseInvoke, "codec")
	}
	h := u.handle
	n := uint32(len(u.file.Data))

	switch u.dir {
	case spzconv.Compress:
		return inst.Compress(ctx, h.Input.Ptr, n, u.opts.level(), h.Location.Ptr, h.Length.Ptr)
	case spzconv.Decompress:
		return inst.Decompress(ctx, h.Input.Ptr, n, codec.BoolFlag(u.opts.IncludeNormals), h.Location.Ptr, h.Length.Ptr)
	default:
		return 0, errors.InvalidInput(errors.PhaseInvoke, fmt.Sprintf("unknown direction %s", u.dir))
	}
}

// extract interprets the call's result. A non-zero status is a failure
// whatever the slots hold. A status of 0 needs a non-null location and a
// positive length; a non-null location is adopted either way so the codec's
// buffer is freed.
func (u *unit) extract(ctx context.Context) error {
	if !u.status.OK() {
		e := errors.CodecStatus(u.op(), int32(u.status))
		if d, ok := u.conv.inst.(codec.Describer); ok {
			e.Detail = fmt.Sprintf("%s (%s)", e.Detail, d.Describe(ctx, u.status))
		}
		return e
	}

	h := u.handle
	loc, err := h.ReadOutputLocation()
	if err != nil {
		return err
	}
	length, err := h.ReadOutputLength()
	if err != nil {
		return err
	}
	if loc == 0 {
		return errors.EmptyResult(u.op(), loc, length)
	}

	var size uint32
	if length > 0 {
		size = uint32(length)
	}
	region, err := h.AdoptOutput(loc, size)
	if err != nil {
		return err
	}
	if length <= 0 {
		return errors.EmptyResult(u.op(), loc, length)
	}

	view, err := h.View(region)
	if err != nil {
		return errors.New(errors.PhaseExtract, errors.KindEmptyResult).
			Detail("output region [%d, +%d) unreadable", loc, size).
			Cause(err).
			Build()
	}
	// The view dies with the region on release.
	u.output = bytes.Clone(view)
	return nil
}

func (u *unit) outcome() Outcome {
	o := Outcome{
		Input:      u.file.Name,
		InputSize:  len(u.file.Data),
		Err:        u.err,
		Stage:      u.reached,
		ReleaseErr: u.releaseErr,
	}
	if u.err == nil {
		o.Output = spzconv.NamedBlob{
			Name: OutputName(u.file.Name, u.dir),
			Data: u.output,
		}
	}
	return o
}
