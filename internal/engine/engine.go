/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package engine wraps the underlying wazero runtime: compiling component
// binaries, caching their compiled form on disk, and pre-instantiating them
// so that per-call instantiation only has to build a module configuration
// and allocate memory.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/wasi_snapshot_preview1"
)

// Engine owns one wazero.Runtime shared by every component. WASI preview1
// host functions are registered once at construction.
type Engine struct {
	log     logr.Logger
	runtime wazero.Runtime
	cache   wazero.CompilationCache
}

// New builds an Engine. cacheDir, if non-empty, backs an on-disk
// compilation cache shared across process restarts.
func New(ctx context.Context, log logr.Logger, cacheDir string) (*Engine, error) {
	cfg := wazero.NewRuntimeConfig()

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating compilation cache dir: %w", err)
		}
		c, err := wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("opening compilation cache: %w", err)
		}
		cache = c
		cfg = cfg.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiating wasi snapshot preview1: %w", err)
	}

	e := &Engine{log: log.WithName("engine"), runtime: rt, cache: cache}
	if err := e.RegisterHostGateway(ctx); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return e, nil
}

// Close releases the runtime and the compilation cache, if any.
func (e *Engine) Close(ctx context.Context) error {
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.log.Error(err, "closing compilation cache")
		}
	}
	return e.runtime.Close(ctx)
}

// Compile parses and validates wasm bytes, producing a CompiledModule. When
// the Engine has a directory-backed compilation cache, repeat compiles of
// byte-identical input are served from disk rather than re-parsed.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte) (wazero.CompiledModule, error) {
	mod, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compiling module: %w", err)
	}
	return mod, nil
}

// Precompile forces wasmBytes through the compilation cache without
// retaining the resulting CompiledModule, so that a later Compile call
// (possibly in another process sharing the same cache directory) is served
// from disk. Closing the returned module releases the in-process copy.
func (e *Engine) Precompile(ctx context.Context, wasmBytes []byte) error {
	mod, err := e.Compile(ctx, wasmBytes)
	if err != nil {
		return err
	}
	return mod.Close(ctx)
}

// DeserializeCache loads a module expected to already be present in the
// Engine's compilation cache. It is a trust boundary: the cache directory
// must have been populated by a process sharing this binary's wazero
// version, since the cache format is not validated beyond a version tag.
func (e *Engine) DeserializeCache(ctx context.Context, wasmBytes []byte) (wazero.CompiledModule, error) {
	if e.cache == nil {
		return nil, fmt.Errorf("deserialize cache: engine has no compilation cache configured")
	}
	return e.Compile(ctx, wasmBytes)
}

// PreInstantiate validates that mod's imports are satisfiable against the
// host interfaces this Engine registered at construction (WASI preview1 and
// the "env" host gateway module). wazero resolves imports lazily at InstantiateModule time, so
// this is a liveness check rather than a distinct linking step; it lets
// callers fail fast on an incompatible binary before building a sandbox.
func (e *Engine) PreInstantiate(mod wazero.CompiledModule) error {
	for _, imp := range mod.ImportedFunctions() {
		moduleName, _, _ := imp.Import()
		if moduleName != "wasi_snapshot_preview1" && moduleName != "env" {
			return fmt.Errorf("unsupported import module %q required by function %s", moduleName, imp.DebugName())
		}
	}
	return nil
}

// Instantiate creates a fresh module instance of mod using cfg, which
// callers derive from a sandbox template for this call.
func (e *Engine) Instantiate(ctx context.Context, mod wazero.CompiledModule, cfg wazero.ModuleConfig) (api.Module, error) {
	instance, err := e.runtime.InstantiateModule(ctx, mod, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiating module: %w", err)
	}
	return instance, nil
}
