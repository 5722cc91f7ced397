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

package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/altairalabs/componenthost/internal/component"
)

// CallJSON invokes the export named by ident on instance, passing args as a
// single JSON-encoded byte buffer and returning the function's JSON-encoded
// result. Every tool export is expected to implement the convention:
//
//	fn(ptr u32, len u32) u64   // packed (result_ptr << 32 | result_len)
//
// with a paired "allocate(size u32) u32" / "deallocate(ptr u32, len u32)"
// pair used to move bytes across the linear memory boundary in both
// directions. This is the same ptr/len packing used by component
// toolchains that lower string and list results to a single i64.
func CallJSON(ctx context.Context, instance api.Module, ident component.FunctionIdentifier, argsJSON []byte) ([]byte, error) {
	fn := instance.ExportedFunction(ident.ExportName())
	if fn == nil {
		return nil, fmt.Errorf("function not found: %s", ident.ExportName())
	}

	argPtr, err := writeBytes(ctx, instance, argsJSON)
	if err != nil {
		return nil, fmt.Errorf("writing call arguments: %w", err)
	}
	defer deallocate(ctx, instance, argPtr, uint32(len(argsJSON)))

	results, err := fn.Call(ctx, uint64(argPtr), uint64(len(argsJSON)))
	if err != nil {
		return nil, err // may wrap a sandbox permission denial; caller inspects sandbox state first
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no results", ident.ExportName())
	}

	packed := results[0]
	resultPtr := uint32(packed >> 32)
	resultLen := uint32(packed & 0xFFFFFFFF)
	if resultLen == 0 {
		return []byte("null"), nil
	}

	data, err := readBytes(ctx, instance, resultPtr, resultLen)
	if err != nil {
		return nil, fmt.Errorf("reading call result: %w", err)
	}
	deallocate(ctx, instance, resultPtr, resultLen)
	return data, nil
}

func writeBytes(ctx context.Context, instance api.Module, data []byte) (uint32, error) {
	allocate := instance.ExportedFunction("allocate")
	if allocate == nil {
		return 0, fmt.Errorf("component does not export allocate()")
	}
	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("calling allocate: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocate() returned no results")
	}
	ptr := uint32(results[0])
	if len(data) > 0 && !instance.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("writing %d bytes at offset %d", len(data), ptr)
	}
	return ptr, nil
}

func readBytes(_ context.Context, instance api.Module, ptr, size uint32) ([]byte, error) {
	data, ok := instance.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("reading %d bytes at offset %d", size, ptr)
	}
	out := make([]byte, size)
	copy(out, data)
	return out, nil
}

func deallocate(ctx context.Context, instance api.Module, ptr, size uint32) {
	fn := instance.ExportedFunction("deallocate")
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	_, _ = fn.Call(ctx, uint64(ptr), uint64(size))
}
