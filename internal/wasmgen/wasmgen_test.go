package wasmgen

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestWriter_LEB128(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w *writer)
		expect []byte
	}{
		{"u32 zero", func(w *writer) { w.U32(0) }, []byte{0x00}},
		{"u32 127", func(w *writer) { w.U32(127) }, []byte{0x7F}},
		{"u32 128", func(w *writer) { w.U32(128) }, []byte{0x80, 0x01}},
		{"u32 624485", func(w *writer) { w.U32(624485) }, []byte{0xE5, 0x8E, 0x26}},
		{"s32 -1", func(w *writer) { w.S32(-1) }, []byte{0x7F}},
		{"s32 63", func(w *writer) { w.S32(63) }, []byte{0x3F}},
		{"s32 64", func(w *writer) { w.S32(64) }, []byte{0xC0, 0x00}},
		{"s32 255", func(w *writer) { w.S32(255) }, []byte{0xFF, 0x01}},
		{"s32 -123456", func(w *writer) { w.S32(-123456) }, []byte{0xC0, 0xBB, 0x78}},
		{"name", func(w *writer) { w.Name("env") }, []byte{0x03, 'e', 'n', 'v'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w writer
			tt.write(&w)
			if !bytes.Equal(w.Bytes(), tt.expect) {
				t.Errorf("got % x, want % x", w.Bytes(), tt.expect)
			}
		})
	}
}

func TestModule_EncodeHeader(t *testing.T) {
	empty := (&Module{}).Encode()
	want := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(empty, want) {
		t.Errorf("empty module = % x, want % x", empty, want)
	}
}

func TestWriteLocals_Groups(t *testing.T) {
	var w writer
	writeLocals(&w, []ValType{I32, I32, I64, I32})
	want := []byte{0x03, 0x02, 0x7F, 0x01, 0x7E, 0x01, 0x7F}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("locals = % x, want % x", w.Bytes(), want)
	}
}

// fakeInstance instantiates the fake codec with plain wazero, no host modules.
func fakeInstance(t *testing.T, opts Options) (api.Module, context.Context) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })

	mod, err := r.InstantiateWithConfig(ctx, FakeCodec(opts), wazero.NewModuleConfig().WithName(""))
	if err != nil {
		t.Fatalf("instantiate fake codec: %v", err)
	}
	return mod, ctx
}

func call(t *testing.T, ctx context.Context, mod api.Module, name string, params ...uint64) uint32 {
	t.Helper()
	fn := mod.ExportedFunction(name)
	if fn == nil {
		t.Fatalf("export %s missing", name)
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if len(results) == 0 {
		return 0
	}
	return uint32(results[0])
}

func TestFakeCodec_Compress(t *testing.T) {
	mod, ctx := fakeInstance(t, Options{})
	mem := mod.Memory()

	input := []byte("ply\nformat")
	in := call(t, ctx, mod, "malloc", uint64(len(input)))
	if in == 0 {
		t.Fatal("malloc returned 0")
	}
	mem.Write(in, input)
	slots := call(t, ctx, mod, "malloc", 8)

	status := call(t, ctx, mod, "compress_spz", uint64(in), uint64(len(input)), 7, uint64(slots), uint64(slots+4))
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}

	ptr, _ := mem.ReadUint32Le(slots)
	n, _ := mem.ReadUint32Le(slots + 4)
	if n != uint32(len(input))+1 {
		t.Fatalf("length = %d, want %d", n, len(input)+1)
	}
	out, _ := mem.Read(ptr, n)
	if out[0] != 7 || !bytes.Equal(out[1:], input) {
		t.Errorf("output = %q", out)
	}

	if live := call(t, ctx, mod, ExportLiveAllocations); live != 3 {
		t.Errorf("live = %d, want 3", live)
	}
	for _, p := range []uint32{ptr, slots, in} {
		call(t, ctx, mod, "free", uint64(p))
	}
	call(t, ctx, mod, "free", 0)
	if live := call(t, ctx, mod, ExportLiveAllocations); live != 0 {
		t.Errorf("live after free = %d, want 0", live)
	}
}

func TestFakeCodec_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		status int32
	}{
		{"empty input", nil, StatusEmptyInput},
		{"corrupt", []byte{TagCorrupt, 1}, StatusCorrupt},
		{"null result", []byte{TagNullResult}, 0},
		{"zero length", []byte{TagZeroLength}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, ctx := fakeInstance(t, Options{})
			in := call(t, ctx, mod, "malloc", uint64(len(tt.input)))
			mod.Memory().Write(in, tt.input)
			slots := call(t, ctx, mod, "malloc", 8)

			got := call(t, ctx, mod, "decompress_spz", uint64(in), uint64(len(tt.input)), 0, uint64(slots), uint64(slots+4))
			if int32(got) != tt.status {
				t.Errorf("status = %d, want %d", int32(got), tt.status)
			}
		})
	}
}

func TestFakeCodec_Trap(t *testing.T) {
	mod, ctx := fakeInstance(t, Options{})
	in := call(t, ctx, mod, "malloc", 1)
	mod.Memory().Write(in, []byte{TagTrap})
	slots := call(t, ctx, mod, "malloc", 8)

	_, err := mod.ExportedFunction("compress_spz").Call(ctx, uint64(in), 1, 3, uint64(slots), uint64(slots+4))
	if err == nil {
		t.Fatal("expected trap")
	}
}

func TestFakeCodec_MallocLimit(t *testing.T) {
	mod, ctx := fakeInstance(t, Options{})
	if p := call(t, ctx, mod, "malloc", MallocLimit); p != 0 {
		t.Errorf("malloc(MallocLimit) = %d, want 0", p)
	}
	if p := call(t, ctx, mod, "malloc", MallocLimit-1); p == 0 {
		t.Error("malloc(MallocLimit-1) failed")
	}
}

func TestFakeCodec_Reactor(t *testing.T) {
	mod, ctx := fakeInstance(t, Options{Reactor: true})
	if p := call(t, ctx, mod, "malloc", 4); p != 0 {
		t.Errorf("malloc before _initialize = %d, want 0", p)
	}
	call(t, ctx, mod, "_initialize")
	if p := call(t, ctx, mod, "malloc", 4); p == 0 {
		t.Error("malloc after _initialize returned 0")
	}
}

func TestFakeCodec_ErrorStrings(t *testing.T) {
	mod, ctx := fakeInstance(t, Options{ErrorStrings: true})

	for _, status := range []int32{StatusEmptyInput, StatusCorrupt, StatusNoMemory} {
		ptr := call(t, ctx, mod, "get_error_string_spz", uint64(status))
		want := ErrorString(status)
		got, ok := mod.Memory().Read(ptr, uint32(len(want)+1))
		if !ok || string(got[:len(want)]) != want || got[len(want)] != 0 {
			t.Errorf("status %d: got %q, want %q", status, got, want)
		}
	}
	if ptr := call(t, ctx, mod, "get_error_string_spz", 42); ptr != 0 {
		t.Errorf("unknown status ptr = %d, want 0", ptr)
	}
}

func TestFakeCodec_ExportShape(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	tests := []struct {
		name    string
		opts    Options
		present []string
		absent  []string
		imports int
	}{
		{
			name:    "default",
			present: []string{"malloc", "free", "compress_spz", "decompress_spz"},
			absent:  []string{"get_error_string_spz", "_initialize"},
		},
		{
			name:    "omit free",
			opts:    Options{Omit: []string{"free"}, ErrorStrings: true},
			present: []string{"get_error_string_spz"},
			absent:  []string{"free"},
		},
		{
			name:    "imports",
			opts:    Options{WASI: true, Emscripten: true, ExtraImports: []string{"env#abort_js"}},
			present: []string{"compress_spz"},
			imports: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := r.CompileModule(ctx, FakeCodec(tt.opts))
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			defer compiled.Close(ctx)

			exports := compiled.ExportedFunctions()
			for _, name := range tt.present {
				if _, ok := exports[name]; !ok {
					t.Errorf("export %s missing", name)
				}
			}
			for _, name := range tt.absent {
				if _, ok := exports[name]; ok {
					t.Errorf("export %s should be absent", name)
				}
			}
			if got := len(compiled.ImportedFunctions()); got != tt.imports {
				t.Errorf("imports = %d, want %d", got, tt.imports)
			}
		})
	}
}
