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

	"github.com/tetratelabs/wazero/experimental"
)

// boundedAllocator caps linear memory growth at limitBytes. It is installed
// per call via experimental.WithMemoryAllocator so that components sharing
// one Engine can carry different memory limits.
type boundedAllocator struct {
	limit uint64
	buf   []byte
}

func (a *boundedAllocator) Make(min, cap, max uint64) []byte {
	if max > a.limit {
		max = a.limit
	}
	if cap > max {
		cap = max
	}
	a.buf = make([]byte, min, cap)
	return a.buf
}

func (a *boundedAllocator) Grow(size uint64) []byte {
	if size > a.limit {
		return nil // signals growth failure to the caller
	}
	if uint64(cap(a.buf)) < size {
		grown := make([]byte, size, size*2)
		copy(grown, a.buf)
		a.buf = grown
	} else {
		a.buf = a.buf[:size]
	}
	return a.buf
}

func (a *boundedAllocator) Free() { a.buf = nil }

// WithMemoryLimit attaches a growth cap of limitBytes to ctx. A nil limit
// leaves the runtime's default (unbounded, growth capped only by the wasm
// module's own declared maximum) allocator in place.
func WithMemoryLimit(ctx context.Context, limitBytes *uint64) context.Context {
	if limitBytes == nil {
		return ctx
	}
	return experimental.WithMemoryAllocator(ctx, &boundedAllocator{limit: *limitBytes})
}
