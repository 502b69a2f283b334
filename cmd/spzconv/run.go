package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/archive"
	"github.com/wippyai/spzconv/config"
	"github.com/wippyai/spzconv/convert"
	"github.com/wippyai/spzconv/engine"
)

// job is one batch: every input going the same direction.
type job struct {
	dir   spzconv.Direction
	paths []string
	files []spzconv.RawFile
}

// planJobs groups paths into batches. Auto mode sends .spz inputs to a
// decompress batch and everything else to a compress batch.
func planJobs(mode string, paths []string) ([]*job, error) {
	comp := &job{dir: spzconv.Compress}
	decomp := &job{dir: spzconv.Decompress}

	for _, p := range paths {
		var target *job
		switch mode {
		case config.ModeCompress:
			target = comp
		case config.ModeDecompress:
			target = decomp
		case config.ModeAuto:
			if strings.EqualFold(filepath.Ext(p), ".spz") {
				target = decomp
			} else {
				target = comp
			}
		default:
			return nil, fmt.Errorf("unknown mode %q", mode)
		}
		target.paths = append(target.paths, p)
	}

	var jobs []*job
	for _, j := range []*job{comp, decomp} {
		if len(j.paths) == 0 {
			continue
		}
		j.files = make([]spzconv.RawFile, 0, len(j.paths))
		for _, p := range j.paths {
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("read input: %w", err)
			}
			j.files = append(j.files, spzconv.RawFile{Name: filepath.Base(p), Data: data})
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// progressFunc receives per-file progress from every batch. It may be called
// from several goroutines at once.
type progressFunc func(jobIdx, fileIdx int, o convert.Outcome)

// convertAll loads the codec once and runs every job concurrently, each on
// its own instance.
func convertAll(ctx context.Context, cfg config.Config, jobs []*job, progress progressFunc) ([]convert.Result, error) {
	wasm, err := os.ReadFile(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("read codec: %w", err)
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{MemoryLimitPages: cfg.MemoryLimitPages})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close(ctx)

	mod, err := eng.LoadModule(ctx, wasm)
	if err != nil {
		return nil, err
	}

	results := make([]convert.Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			inst, err := mod.Instantiate(gctx)
			if err != nil {
				return err
			}
			defer inst.Close(ctx)

			opts := convert.Options{
				Quality:        cfg.Quality,
				IncludeNormals: cfg.IncludeNormals,
			}
			if progress != nil {
				opts.Progress = func(idx int, o convert.Outcome) { progress(i, idx, o) }
			}
			res, err := convert.New(inst).RunBatch(gctx, j.files, j.dir, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// writeFailure is one output that could not be written.
type writeFailure struct {
	path string
	err  error
}

// writeResult lists what writeOutputs did.
type writeResult struct {
	written []string
	failed  []writeFailure
}

// writeOutputs stores the successful outputs: one ZIP when cfg.Output is
// set, otherwise one file per output in cfg.OutDir or next to its input.
//
// Existing files are never replaced, so an output that collides with an
// input, an earlier output of the same run or anything already on disk is
// recorded as a per-file failure. A cancelled ctx stops before the next file.
func writeOutputs(ctx context.Context, cfg config.Config, jobs []*job, results []convert.Result) (writeResult, error) {
	var wr writeResult

	if cfg.Output != "" {
		for _, j := range jobs {
			for _, p := range j.paths {
				if samePath(p, cfg.Output) {
					return wr, fmt.Errorf("archive %s is also an input", cfg.Output)
				}
			}
		}
		var blobs []spzconv.NamedBlob
		for _, res := range results {
			blobs = append(blobs, res.Blobs()...)
		}
		data, err := archive.Pack(blobs)
		if err != nil || data == nil {
			return wr, err
		}
		if err := os.WriteFile(cfg.Output, data, 0o644); err != nil {
			return wr, fmt.Errorf("write archive: %w", err)
		}
		wr.written = append(wr.written, cfg.Output)
		return wr, nil
	}

	if cfg.OutDir != "" {
		if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
			return wr, fmt.Errorf("create output directory: %w", err)
		}
	}

	for ji, res := range results {
		for i, o := range res.Outcomes {
			if !o.OK() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return wr, err
			}
			dir := cfg.OutDir
			if dir == "" {
				dir = filepath.Dir(jobs[ji].paths[i])
			}
			path := filepath.Join(dir, o.Output.Name)
			if err := writeNew(path, o.Output.Data); err != nil {
				wr.failed = append(wr.failed, writeFailure{path: path, err: err})
				continue
			}
			wr.written = append(wr.written, path)
		}
	}
	return wr, nil
}

// writeNew creates path and writes data to it. It fails if path exists and
// removes what it created when the write does not complete.
func writeNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("refusing to overwrite existing file")
		}
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}

// run converts, writes and reports. It returns the number of files that
// failed to convert or to be written.
func run(ctx context.Context, opts *options, stdout io.Writer) (int, error) {
	jobs, err := planJobs(opts.cfg.Mode, opts.files)
	if err != nil {
		return 0, err
	}

	results, err := convertAll(ctx, opts.cfg, jobs, nil)
	if err != nil {
		return 0, err
	}

	failed := report(stdout, results)

	wr, err := writeOutputs(ctx, opts.cfg, jobs, results)
	for _, p := range wr.written {
		fmt.Fprintf(stdout, "Wrote %s\n", p)
	}
	for _, f := range wr.failed {
		fmt.Fprintf(stdout, "Not written %s: %v\n", f.path, f.err)
	}
	failed += len(wr.failed)
	if err != nil {
		return failed, err
	}
	if opts.cfg.Output != "" && len(wr.written) == 0 {
		fmt.Fprintln(stdout, "No files converted, archive not written")
	}
	return failed, nil
}

// report prints one block per batch and returns the number of failures.
func report(w io.Writer, results []convert.Result) int {
	failed := 0
	for _, res := range results {
		fmt.Fprintf(w, "%s: Success: %d, Errors: %d\n",
			capitalize(res.Direction.String()), res.Summary.Succeeded, res.Summary.Failed)
		for _, o := range res.Outcomes {
			if o.OK() {
				fmt.Fprintf(w, "  %s -> %s  %s\n", o.Input, o.Output.Name, sizeChange(o.InputSize, len(o.Output.Data)))
			} else {
				fmt.Fprintf(w, "  %s: %v\n", o.Input, o.Err)
			}
		}
		failed += res.Summary.Failed
	}
	return failed
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// sizeChange renders "12.0 KiB -> 3.0 KiB (75.0% smaller)".
func sizeChange(in, out int) string {
	s := fmt.Sprintf("%s -> %s", formatSize(in), formatSize(out))
	if in == 0 {
		return s
	}
	pct := 100 * (1 - float64(out)/float64(in))
	if pct >= 0 {
		return fmt.Sprintf("%s (%.1f%% smaller)", s, pct)
	}
	return fmt.Sprintf("%s (%.1f%% larger)", s, -pct)
}

func formatSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
