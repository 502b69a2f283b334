package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/spzconv"
	"github.com/wippyai/spzconv/codec"
	"github.com/wippyai/spzconv/errors"
)

// WazeroEngine hosts codec modules in a wazero runtime
type WazeroEngine struct {
	runtime      wazero.Runtime
	hostInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// Config tunes the wazero runtime shared by every codec module of an engine.
type Config struct {
	// MemoryLimitPages caps each codec instance's linear memory, in 64KB
	// pages. 0 leaves wazero's 4GB ceiling. Large clouds need room for the
	// input, the codec's working set and the output at once.
	MemoryLimitPages uint32

	// CloseOnContextDone lets a cancelled context abort a running codec call.
	// Off by default: a batch runs to completion once started.
	CloseOnContextDone bool
}

// NewWazeroEngine creates an engine with wazero's defaults.
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates an engine; a nil cfg means defaults.
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{runtime: runtime}, nil
}

// InstanceConfig is per-instance wiring.
type InstanceConfig struct {
	// Stdout and Stderr receive whatever the codec writes through WASI.
	// Nil discards the output.
	Stdout io.Writer
	Stderr io.Writer
}

// LoadModule compiles a codec module and checks that it exports the codec ABI
// and imports nothing the host cannot provide.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	if len(wasmBytes) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty codec module")
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile codec module", err)
	}

	exports, err := checkExports(compiled)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	needs, missing := classifyImports(compiled)
	if len(missing) > 0 {
		_ = compiled.Close(ctx)
		return nil, errors.NewMissingImportsError(missing)
	}

	if err := e.initHostModules(ctx, compiled, needs); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	Logger().Debug("codec module loaded",
		zap.Int("bytes", len(wasmBytes)),
		zap.Bool("wasi", needs.wasi),
		zap.Bool("emscripten", needs.emscripten),
		zap.Bool("error_strings", exports.errorString),
		zap.Bool("reactor", exports.initialize))

	return &WazeroModule{
		engine:   e,
		compiled: compiled,
		exports:  exports,
	}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func (e *WazeroEngine) initHostModules(ctx context.Context, compiled wazero.CompiledModule, needs hostNeeds) error {
	if needs.wasi {
		if err := e.InitWASI(ctx); err != nil {
			return errors.Load("instantiate WASI", err)
		}
	}
	if needs.emscripten {
		if err := e.initEmscripten(ctx, compiled); err != nil {
			return errors.Load("instantiate emscripten env", err)
		}
	}
	return nil
}

// InitWASI registers wasi_snapshot_preview1 in the runtime once. Emscripten
// builds of the codec import fd_write and proc_exit from it. Concurrent
// callers wait for the first.
func (e *WazeroEngine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module(wasiModuleName) != nil {
		e.wasiInitDone.Store(true)
		return nil
	}

	if _, err := instantiateWASI(ctx, e.runtime); err != nil {
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	e.wasiInitDone.Store(true)
	return nil
}

func (e *WazeroEngine) initEmscripten(ctx context.Context, compiled wazero.CompiledModule) error {
	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.runtime.Module(envModuleName) != nil {
		return nil
	}
	_, err := instantiateEmscripten(ctx, e.runtime, compiled)
	return err
}

type exportSet struct {
	errorString bool
	initialize  bool
}

var (
	i32 = api.ValueTypeI32

	sigMalloc = signature{params: []api.ValueType{i32}, results: []api.ValueType{i32}}
	sigFree   = signature{params: []api.ValueType{i32}}
	sigCodec  = signature{params: []api.ValueType{i32, i32, i32, i32, i32}, results: []api.ValueType{i32}}
	sigErrStr = signature{params: []api.ValueType{i32}, results: []api.ValueType{i32}}
	sigInit   = signature{}
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

func (s signature) matches(def api.FunctionDefinition) bool {
	return equalTypes(def.ParamTypes(), s.params) && equalTypes(def.ResultTypes(), s.results)
}

func (s signature) String() string {
	return fmt.Sprintf("func(%s) -> (%s)", typeNames(s.params), typeNames(s.results))
}

func typeNames(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkExports(compiled wazero.CompiledModule) (exportSet, error) {
	funcs := compiled.ExportedFunctions()

	required := []struct {
		name string
		sig  signature
	}{
		{codec.ExportMalloc, sigMalloc},
		{codec.ExportFree, sigFree},
		{codec.ExportCompress, sigCodec},
		{codec.ExportDecompress, sigCodec},
	}
	for _, r := range required {
		def, ok := funcs[r.name]
		if !ok || !r.sig.matches(def) {
			return exportSet{}, errors.MissingExport(r.name, r.sig.String())
		}
	}

	if _, ok := compiled.ExportedMemories()[codec.ExportMemory]; !ok {
		return exportSet{}, errors.MissingExport(codec.ExportMemory, "a memory")
	}

	var set exportSet
	if def, ok := funcs[codec.ExportErrorString]; ok && sigErrStr.matches(def) {
		set.errorString = true
	}
	if def, ok := funcs[codec.ExportInitialize]; ok && sigInit.matches(def) {
		set.initialize = true
	}
	return set, nil
}

type hostNeeds struct {
	wasi       bool
	emscripten bool
}

// classifyImports reports which host modules the codec needs and which of its
// imports no host module provides, as sorted "module#name" keys.
func classifyImports(compiled wazero.CompiledModule) (hostNeeds, []string) {
	var needs hostNeeds
	var missing []string

	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		switch {
		case mod == wasiModuleName:
			needs.wasi = true
		case mod == envModuleName && isEmscriptenHostFunc(name):
			needs.emscripten = true
		default:
			missing = append(missing, mod+"#"+name)
		}
	}
	for _, def := range compiled.ImportedMemories() {
		mod, name, _ := def.Import()
		missing = append(missing, mod+"#"+name)
	}

	sort.Strings(missing)
	return needs, missing
}

// WazeroModule is a compiled codec module. Safe for concurrent use.
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
	exports  exportSet
}

// ExportNames returns the names of all exported functions, sorted.
func (m *WazeroModule) ExportNames() []string {
	funcs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	return m.InstantiateWithConfig(ctx, nil)
}

// InstantiateWithConfig creates an instance with its own linear memory. The
// instance is anonymous so any number of them can coexist in one engine.
func (m *WazeroModule) InstantiateWithConfig(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	modConfig := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions()
	if cfg != nil {
		if cfg.Stdout != nil {
			modConfig = modConfig.WithStdout(cfg.Stdout)
		}
		if cfg.Stderr != nil {
			modConfig = modConfig.WithStderr(cfg.Stderr)
		}
	}

	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	if m.exports.initialize {
		if _, err := mod.ExportedFunction(codec.ExportInitialize).Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, errors.Instantiation(fmt.Errorf("%s: %w", codec.ExportInitialize, err))
		}
	}

	inst := &WazeroInstance{
		instance:   mod,
		memory:     &WazeroMemory{mem: mod.Memory()},
		compress:   mod.ExportedFunction(codec.ExportCompress),
		decompress: mod.ExportedFunction(codec.ExportDecompress),
	}
	inst.alloc = &wazeroAllocator{
		inst:   inst,
		malloc: mod.ExportedFunction(codec.ExportMalloc),
		free:   mod.ExportedFunction(codec.ExportFree),
	}
	if m.exports.errorString {
		inst.errString = mod.ExportedFunction(codec.ExportErrorString)
	}
	inst.ready.Store(true)
	return inst, nil
}

// Close releases the compiled module. Instances already created keep running.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// WazeroInstance is a running codec. It implements codec.Instance and
// codec.Describer. Not safe for concurrent use.
type WazeroInstance struct {
	instance   api.Module
	memory     *WazeroMemory
	alloc      *wazeroAllocator
	compress   api.Function
	decompress api.Function
	errString  api.Function
	ready      atomic.Bool
}

var (
	_ codec.Instance  = (*WazeroInstance)(nil)
	_ codec.Describer = (*WazeroInstance)(nil)
)

// Ready reports whether the codec can be called. An instance stops being
// ready when closed or when the guest exits.
func (i *WazeroInstance) Ready() bool {
	return i.ready.Load()
}

func (i *WazeroInstance) Memory() spzconv.Memory {
	return i.memory
}

func (i *WazeroInstance) Allocator() spzconv.Allocator {
	return i.alloc
}

// MemorySize returns the current linear memory size in bytes.
func (i *WazeroInstance) MemorySize() uint32 {
	return i.memory.Size()
}

func (i *WazeroInstance) Compress(ctx context.Context, input, inputLen uint32, level int32, outPtr, outLen uint32) (codec.Status, error) {
	return i.callCodec(ctx, i.compress, codec.ExportCompress,
		uint64(input), uint64(inputLen), api.EncodeI32(level), uint64(outPtr), uint64(outLen))
}

func (i *WazeroInstance) Decompress(ctx context.Context, input, inputLen uint32, includeNormals int32, outPtr, outLen uint32) (codec.Status, error) {
	return i.callCodec(ctx, i.decompress, codec.ExportDecompress,
		uint64(input), uint64(inputLen), api.EncodeI32(includeNormals), uint64(outPtr), uint64(outLen))
}

func (i *WazeroInstance) callCodec(ctx context.Context, fn api.Function, name string, params ...uint64) (codec.Status, error) {
	results, err := i.call(ctx, fn, name, params...)
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, errors.Unexpected(errors.PhaseInvoke, fmt.Errorf("%s returned %d results", name, len(results)))
	}
	return codec.Status(api.DecodeI32(results[0])), nil
}

func (i *WazeroInstance) call(ctx context.Context, fn api.Function, name string, params ...uint64) ([]uint64, error) {
	if !i.Ready() {
		return nil, errors.NotInitialized(errors.PhaseInvoke, "codec instance")
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			i.ready.Store(false)
			Logger().Warn("codec exited, instance no longer usable",
				zap.String("func", name),
				zap.Uint32("exit_code", exitErr.ExitCode()))
		}
		return nil, errors.Unexpected(errors.PhaseInvoke, fmt.Errorf("%s: %w", name, err))
	}
	return results, nil
}

// Call invokes any exported function with raw core values.
func (i *WazeroInstance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if !i.Ready() {
		return nil, errors.NotInitialized(errors.PhaseInvoke, "codec instance")
	}
	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return nil, errors.New(errors.PhaseInvoke, errors.KindMissingExport).
			Detail("export %q not found", name).
			Build()
	}
	return i.call(ctx, fn, name, params...)
}

const maxErrorStringLen = 256

// Describe returns the codec's text for a status, or a generic text when the
// codec does not export one.
func (i *WazeroInstance) Describe(ctx context.Context, s codec.Status) string {
	if s.OK() {
		return "success"
	}
	if i.errString == nil || !i.Ready() {
		return fmt.Sprintf("status %d", int32(s))
	}
	results, err := i.call(ctx, i.errString, codec.ExportErrorString, api.EncodeI32(int32(s)))
	if err != nil || len(results) != 1 {
		return fmt.Sprintf("status %d", int32(s))
	}
	text, ok := i.memory.readCString(uint32(results[0]), maxErrorStringLen)
	if !ok || text == "" {
		return fmt.Sprintf("status %d", int32(s))
	}
	return text
}

// Close marks the instance unusable and releases its memory.
func (i *WazeroInstance) Close(ctx context.Context) error {
	i.ready.Store(false)
	mod := i.instance
	if mod == nil {
		return nil
	}
	i.instance = nil
	return mod.Close(ctx)
}
