package engine

import (
	"context"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/emscripten"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	wasiModuleName = wasi_snapshot_preview1.ModuleName
	envModuleName  = "env"

	notifyMemoryGrowth = "emscripten_notify_memory_growth"
	invokePrefix       = "invoke_"
)

// isEmscriptenHostFunc reports whether an env import is one the emscripten
// host module provides.
func isEmscriptenHostFunc(name string) bool {
	return name == notifyMemoryGrowth || strings.HasPrefix(name, invokePrefix)
}

// instantiateWASI instantiates WASI preview1 so emscripten builds that touch
// fd_write or clock_time_get link. Filesystem access is not granted.
func instantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasiModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}

// instantiateEmscripten instantiates the "env" module with the invoke_*
// trampolines the guest imports.
func instantiateEmscripten(ctx context.Context, r wazero.Runtime, guest wazero.CompiledModule) (api.Module, error) {
	exporter, err := emscripten.NewFunctionExporterForModule(guest)
	if err != nil {
		return nil, err
	}
	builder := r.NewHostModuleBuilder(envModuleName)
	exporter.ExportFunctions(builder)
	return builder.Instantiate(ctx)
}
