package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/config"
	"github.com/wippyai/spzconv/convert"
	"github.com/wippyai/spzconv/errors"
	"github.com/wippyai/spzconv/internal/wasmgen"
)

// writeInputs creates files in a fresh directory and returns their paths in
// the given order.
func writeInputs(t *testing.T, files ...spzconv.RawFile) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(dir, f.Name)
		if err := os.WriteFile(paths[i], f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func writeCodec(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spz.wasm")
	if err := os.WriteFile(path, wasmgen.FakeCodec(wasmgen.Options{ErrorStrings: true}), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPlanJobs(t *testing.T) {
	paths := writeInputs(t,
		spzconv.RawFile{Name: "a.ply", Data: []byte("a")},
		spzconv.RawFile{Name: "b.SPZ", Data: []byte("b")},
		spzconv.RawFile{Name: "c", Data: []byte("c")},
	)

	tests := []struct {
		mode  string
		dirs  []spzconv.Direction
		names [][]string
	}{
		{config.ModeAuto, []spzconv.Direction{spzconv.Compress, spzconv.Decompress}, [][]string{{"a.ply", "c"}, {"b.SPZ"}}},
		{config.ModeCompress, []spzconv.Direction{spzconv.Compress}, [][]string{{"a.ply", "b.SPZ", "c"}}},
		{config.ModeDecompress, []spzconv.Direction{spzconv.Decompress}, [][]string{{"a.ply", "b.SPZ", "c"}}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			jobs, err := planJobs(tt.mode, paths)
			if err != nil {
				t.Fatalf("planJobs: %v", err)
			}
			if len(jobs) != len(tt.dirs) {
				t.Fatalf("got %d jobs, want %d", len(jobs), len(tt.dirs))
			}
			for i, j := range jobs {
				if j.dir != tt.dirs[i] {
					t.Errorf("job %d dir = %v, want %v", i, j.dir, tt.dirs[i])
				}
				if len(j.files) != len(tt.names[i]) || len(j.paths) != len(j.files) {
					t.Fatalf("job %d: %d files, %d paths", i, len(j.files), len(j.paths))
				}
				for k, f := range j.files {
					if f.Name != tt.names[i][k] {
						t.Errorf("job %d file %d = %q, want %q", i, k, f.Name, tt.names[i][k])
					}
					if filepath.Base(j.paths[k]) != f.Name {
						t.Errorf("path %q does not match %q", j.paths[k], f.Name)
					}
				}
			}
		})
	}
}

func TestPlanJobs_Errors(t *testing.T) {
	if _, err := planJobs(config.ModeAuto, []string{filepath.Join(t.TempDir(), "missing.ply")}); err == nil {
		t.Error("missing input accepted")
	}
	if _, err := planJobs("sideways", []string{"a.ply"}); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestSizeFormatting(t *testing.T) {
	sizes := []struct {
		n    int
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range sizes {
		if got := formatSize(tt.n); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}

	changes := []struct {
		in, out int
		want    string
	}{
		{1000, 250, "1000 B -> 250 B (75.0% smaller)"},
		{4, 6, "4 B -> 6 B (50.0% larger)"},
		{0, 5, "0 B -> 5 B"},
	}
	for _, tt := range changes {
		if got := sizeChange(tt.in, tt.out); got != tt.want {
			t.Errorf("sizeChange(%d, %d) = %q, want %q", tt.in, tt.out, got, tt.want)
		}
	}
}

func TestReport(t *testing.T) {
	results := []convert.Result{
		{
			Direction: spzconv.Compress,
			Summary:   convert.Summary{Succeeded: 1, Failed: 1},
			Outcomes: []convert.Outcome{
				{Input: "a.ply", InputSize: 8, Output: spzconv.NamedBlob{Name: "a.spz", Data: []byte("abcd")}, Stage: convert.StageExtracted},
				{Input: "b.ply", InputSize: 3, Err: errors.EmptyResult("compress_spz", 0, 0), Stage: convert.StageFailed},
			},
		},
		{
			Direction: spzconv.Decompress,
			Summary:   convert.Summary{},
		},
	}

	var buf bytes.Buffer
	failed := report(&buf, results)
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}

	out := buf.String()
	for _, want := range []string{
		"Compress: Success: 1, Errors: 1\n",
		"  a.ply -> a.spz  8 B -> 4 B (50.0% smaller)\n",
		"  b.ply: ",
		"Decompress: Success: 0, Errors: 0\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRun_OutDir(t *testing.T) {
	paths := writeInputs(t,
		spzconv.RawFile{Name: "a.ply", Data: []byte("hello")},
		spzconv.RawFile{Name: "bad.ply", Data: []byte{wasmgen.TagCorrupt, 1}},
		spzconv.RawFile{Name: "b.spz", Data: []byte("xyz")},
	)
	outDir := filepath.Join(t.TempDir(), "out")

	cfg := config.Default()
	cfg.Codec = writeCodec(t)
	cfg.Quality = 7
	cfg.OutDir = outDir

	var stdout bytes.Buffer
	failed, err := run(context.Background(), &options{cfg: cfg, files: paths}, &stdout)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}

	want := map[string][]byte{
		"a.spz": append([]byte{7}, "hello"...),
		"b.ply": append([]byte{0}, "xyz"...),
	}
	for name, data := range want {
		got, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Errorf("read %s: %v", name, err)
			continue
		}
		if !bytes.Equal(got, data) {
			t.Errorf("%s = %v, want %v", name, got, data)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "bad.spz")); !os.IsNotExist(err) {
		t.Errorf("failed input produced an output: %v", err)
	}

	out := stdout.String()
	for _, s := range []string{"Compress: Success: 1, Errors: 1", "Decompress: Success: 1, Errors: 0", "bad.ply: "} {
		if !strings.Contains(out, s) {
			t.Errorf("stdout missing %q:\n%s", s, out)
		}
	}
}

func TestRun_NextToInput(t *testing.T) {
	paths := writeInputs(t, spzconv.RawFile{Name: "scene.ply", Data: []byte("pts")})

	cfg := config.Default()
	cfg.Codec = writeCodec(t)
	cfg.Mode = config.ModeCompress

	failed, err := run(context.Background(), &options{cfg: cfg, files: paths}, io.Discard)
	if err != nil || failed != 0 {
		t.Fatalf("run: failed=%d err=%v", failed, err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(paths[0]), "scene.spz")); err != nil {
		t.Errorf("output not written next to input: %v", err)
	}
}

func TestRun_NeverOverwritesInputs(t *testing.T) {
	paths := writeInputs(t,
		spzconv.RawFile{Name: "scan.ply", Data: []byte("ORIGINAL-PLY")},
		spzconv.RawFile{Name: "scan.spz", Data: []byte("ORIGINAL-SPZ")},
	)

	cfg := config.Default()
	cfg.Codec = writeCodec(t)

	var stdout bytes.Buffer
	failed, err := run(context.Background(), &options{cfg: cfg, files: paths}, &stdout)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}

	for _, tt := range []struct{ path, want string }{
		{paths[0], "ORIGINAL-PLY"},
		{paths[1], "ORIGINAL-SPZ"},
	} {
		got, err := os.ReadFile(tt.path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Errorf("%s = %q, want %q", filepath.Base(tt.path), got, tt.want)
		}
	}
	if n := strings.Count(stdout.String(), "Not written"); n != 2 {
		t.Errorf("stdout reports %d unwritten files, want 2:\n%s", n, stdout.String())
	}
}

func TestRun_OutDirCollisions(t *testing.T) {
	first := writeInputs(t, spzconv.RawFile{Name: "a.ply", Data: []byte("first")})
	second := writeInputs(t, spzconv.RawFile{Name: "a.ply", Data: []byte("second")})
	outDir := t.TempDir()
	stale := filepath.Join(outDir, "b.spz")
	if err := os.WriteFile(stale, []byte("keep me"), 0o644); err != nil {
		t.Fatal(err)
	}
	third := writeInputs(t, spzconv.RawFile{Name: "b.ply", Data: []byte("third")})

	cfg := config.Default()
	cfg.Codec = writeCodec(t)
	cfg.OutDir = outDir

	files := []string{first[0], second[0], third[0]}
	failed, err := run(context.Background(), &options{cfg: cfg, files: files}, io.Discard)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "a.spz"))
	if err != nil {
		t.Fatal(err)
	}
	if want := append([]byte{3}, "first"...); !bytes.Equal(got, want) {
		t.Errorf("a.spz = %q, want the first input's output %q", got, want)
	}
	if got, _ := os.ReadFile(stale); string(got) != "keep me" {
		t.Errorf("existing b.spz replaced with %q", got)
	}
}

func TestWriteOutputs_StopsWhenCancelled(t *testing.T) {
	paths := writeInputs(t, spzconv.RawFile{Name: "a.ply", Data: []byte("a")})
	jobs := []*job{{dir: spzconv.Compress, paths: paths}}
	results := []convert.Result{{
		Direction: spzconv.Compress,
		Outcomes:  []convert.Outcome{{Input: "a.ply", Output: spzconv.NamedBlob{Name: "a.spz", Data: []byte("x")}}},
		Summary:   convert.Summary{Succeeded: 1},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wr, err := writeOutputs(ctx, config.Default(), jobs, results)
	if err == nil {
		t.Error("cancelled write succeeded")
	}
	if len(wr.written) != 0 {
		t.Errorf("written = %v", wr.written)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(paths[0]), "a.spz")); !os.IsNotExist(err) {
		t.Errorf("output created after cancel: %v", err)
	}
}

func TestRun_ArchiveMustNotBeAnInput(t *testing.T) {
	paths := writeInputs(t, spzconv.RawFile{Name: "a.ply", Data: []byte("keep")})

	cfg := config.Default()
	cfg.Codec = writeCodec(t)
	cfg.Output = paths[0]

	if _, err := run(context.Background(), &options{cfg: cfg, files: paths}, io.Discard); err == nil {
		t.Error("archive path equal to an input accepted")
	}
	if got, _ := os.ReadFile(paths[0]); string(got) != "keep" {
		t.Errorf("input replaced with %q", got)
	}
}

func TestRun_Archive(t *testing.T) {
	paths := writeInputs(t,
		spzconv.RawFile{Name: "a.ply", Data: []byte("one")},
		spzconv.RawFile{Name: "b.spz", Data: []byte("two")},
	)
	zipPath := filepath.Join(t.TempDir(), "out.zip")

	cfg := config.Default()
	cfg.Codec = writeCodec(t)
	cfg.Output = zipPath
	cfg.IncludeNormals = true

	var stdout bytes.Buffer
	failed, err := run(context.Background(), &options{cfg: cfg, files: paths}, &stdout)
	if err != nil || failed != 0 {
		t.Fatalf("run: failed=%d err=%v", failed, err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	wantNames := []string{"a.spz", "b.ply"}
	wantData := [][]byte{append([]byte{3}, "one"...), append([]byte{1}, "two"...)}
	if len(zr.File) != len(wantNames) {
		t.Fatalf("archive has %d entries, want %d", len(zr.File), len(wantNames))
	}
	for i, f := range zr.File {
		if f.Name != wantNames[i] {
			t.Errorf("entry %d = %q, want %q", i, f.Name, wantNames[i])
		}
		if f.Method != zip.Store {
			t.Errorf("entry %q method = %d, want Store", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, wantData[i]) {
			t.Errorf("entry %q = %v, want %v", f.Name, data, wantData[i])
		}
	}
	if !strings.Contains(stdout.String(), "Wrote "+zipPath) {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_ArchiveSkippedWhenNothingConverted(t *testing.T) {
	paths := writeInputs(t, spzconv.RawFile{Name: "bad.ply", Data: []byte{wasmgen.TagCorrupt}})
	zipPath := filepath.Join(t.TempDir(), "out.zip")

	cfg := config.Default()
	cfg.Codec = writeCodec(t)
	cfg.Output = zipPath

	var stdout bytes.Buffer
	failed, err := run(context.Background(), &options{cfg: cfg, files: paths}, &stdout)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if _, err := os.Stat(zipPath); !os.IsNotExist(err) {
		t.Errorf("archive written with no outputs: %v", err)
	}
	if !strings.Contains(stdout.String(), "archive not written") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_BadCodec(t *testing.T) {
	paths := writeInputs(t, spzconv.RawFile{Name: "a.ply", Data: []byte("x")})
	codecPath := filepath.Join(t.TempDir(), "garbage.wasm")
	if err := os.WriteFile(codecPath, []byte("not wasm"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Codec = codecPath
	if _, err := run(context.Background(), &options{cfg: cfg, files: paths}, io.Discard); err == nil {
		t.Error("run with an invalid codec succeeded")
	}

	cfg.Codec = filepath.Join(t.TempDir(), "missing.wasm")
	if _, err := run(context.Background(), &options{cfg: cfg, files: paths}, io.Discard); err == nil {
		t.Error("run with a missing codec succeeded")
	}
}
