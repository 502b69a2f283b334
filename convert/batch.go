package convert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/errors"
)

// Summary tallies a batch. Succeeded+Failed always equals the number of
// input files.
type Summary struct {
	Succeeded int
	Failed    int
}

func (s Summary) Total() int { return s.Succeeded + s.Failed }

// Result is everything one batch produced, outcomes in input order.
type Result struct {
	ID        string
	Direction spzconv.Direction
	Outcomes  []Outcome
	Summary   Summary
	Elapsed   time.Duration
}

// Blobs returns the successful outputs in input order.
func (r Result) Blobs() []spzconv.NamedBlob {
	blobs := make([]spzconv.NamedBlob, 0, r.Summary.Succeeded)
	for _, o := range r.Outcomes {
		if o.OK() {
			blobs = append(blobs, o.Output)
		}
	}
	return blobs
}

// Failures returns the failed outcomes in input order.
func (r Result) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// RunBatch converts files strictly in order, one file at a time, and returns
// one Outcome per file. A failing file never stops the batch. The only errors
// are precondition violations: a nil file list or a compression quality
// outside MinQuality..MaxQuality.
//
// The batch gets its own arena. Batches sharing this Converter wait for each
// other.
func (c *Converter) RunBatch(ctx context.Context, files []spzconv.RawFile, dir spzconv.Direction, opts Options) (Result, error) {
	if files == nil {
		return Result{}, errors.InvalidInput(errors.PhaseBatch, "nil file list")
	}
	if err := opts.validate(dir); err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	res := Result{
		ID:        uuid.NewString(),
		Direction: dir,
		Outcomes:  make([]Outcome, 0, len(files)),
	}
	log := Logger().With(zap.String("batch", res.ID), zap.Stringer("direction", dir))
	log.Debug("batch started", zap.Int("files", len(files)))

	a := c.newArena()
	for i, f := range files {
		o := c.convert(ctx, a, log, f, dir, opts)
		res.Outcomes = append(res.Outcomes, o)
		if o.OK() {
			res.Summary.Succeeded++
		} else {
			res.Summary.Failed++
		}
		if opts.Progress != nil {
			opts.Progress(i, o)
		}
	}
	res.Elapsed = time.Since(start)

	if a != nil {
		if stats := a.Stats(); stats.Live != 0 || stats.Aliased != 0 {
			log.Warn("regions still live after batch",
				zap.Int("live", stats.Live),
				zap.Int("aliased", stats.Aliased),
				zap.Int("allocs", stats.Allocs),
				zap.Int("frees", stats.Frees))
		}
	}
	log.Info("batch finished",
		zap.Int("succeeded", res.Summary.Succeeded),
		zap.Int("failed", res.Summary.Failed),
		zap.Duration("elapsed", res.Elapsed))

	return res, nil
}
