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

package lifecycle

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/altairalabs/componenthost/internal/component"
)

// emptyModule is the minimal valid wasm binary: magic number and version,
// with no sections and therefore no imports or exports. The registry does
// not inspect a component's exports directly, so it is a fine stand-in for
// any compiled module in these tests.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

func compileEmpty(t *testing.T) (context.Context, wazero.Runtime, wazero.CompiledModule) {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })
	mod, err := rt.CompileModule(ctx, emptyModule)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return ctx, rt, mod
}

func toolsFixture(names ...string) []component.ToolMetadata {
	tools := make([]component.ToolMetadata, len(names))
	for i, n := range names {
		tools[i] = component.ToolMetadata{
			NormalizedName: n,
			Identifier:     component.FunctionIdentifier{FunctionName: n},
			Schema:         component.ToolSchema{Name: n},
		}
	}
	return tools
}

func TestRegistryUpsertNewComponentReportsNotExisted(t *testing.T) {
	_, _, mod := compileEmpty(t)
	r := newRegistry()

	existed, previous := r.upsertComponent("c1", mod, toolsFixture("ping"))
	if existed {
		t.Fatal("expected fresh registration to report not existed")
	}
	if previous != nil {
		t.Fatal("expected no previous compiled module for a fresh registration")
	}
	if !r.isKnown("c1") {
		t.Fatal("expected component to be known after upsert")
	}
}

func TestRegistryUpsertReplaceReturnsPreviousModule(t *testing.T) {
	_, _, first := compileEmpty(t)
	_, _, second := compileEmpty(t)
	r := newRegistry()

	r.upsertComponent("c1", first, toolsFixture("ping"))
	existed, previous := r.upsertComponent("c1", second, toolsFixture("ping", "pong"))
	if !existed {
		t.Fatal("expected replace to report existed")
	}
	if previous != first {
		t.Fatal("expected previous to be the first compiled module")
	}

	rec, ok := r.get("c1")
	if !ok {
		t.Fatal("expected component still registered")
	}
	if rec.compiled != second {
		t.Fatal("expected registry to hold the new compiled module")
	}
	if len(rec.tools) != 2 {
		t.Fatalf("expected 2 tools after replace, got %d", len(rec.tools))
	}
}

func TestRegistryUpsertOverMetadataOnlyClearsMetadata(t *testing.T) {
	_, _, mod := compileEmpty(t)
	r := newRegistry()

	r.registerToolsOnly("c1", toolsFixture("ping"))
	existed, previous := r.upsertComponent("c1", mod, toolsFixture("ping"))
	if !existed {
		t.Fatal("expected upsert over metadata-only to report existed")
	}
	if previous != nil {
		t.Fatal("metadata-only registrations have no compiled module to return")
	}

	summaries := r.summaries(true)
	if len(summaries) != 1 || summaries[0].MetadataOnly {
		t.Fatalf("expected exactly one fully-loaded summary, got %+v", summaries)
	}
}

func TestRegistryToolIndexRemovedOnUnregister(t *testing.T) {
	_, _, mod := compileEmpty(t)
	r := newRegistry()
	r.upsertComponent("c1", mod, toolsFixture("ping"))

	if _, err := r.componentForTool("ping"); err != nil {
		t.Fatalf("expected tool to resolve: %v", err)
	}

	removed := r.unregisterComponent("c1")
	if removed != mod {
		t.Fatal("expected unregister to return the removed compiled module")
	}
	if _, err := r.componentForTool("ping"); err == nil {
		t.Fatal("expected tool to be gone after unregister")
	}
	if r.isKnown("c1") {
		t.Fatal("expected component to no longer be known")
	}
}

func TestRegistryAmbiguousToolAcrossComponents(t *testing.T) {
	_, _, mod1 := compileEmpty(t)
	_, _, mod2 := compileEmpty(t)
	r := newRegistry()
	r.upsertComponent("c1", mod1, toolsFixture("shared"))
	r.upsertComponent("c2", mod2, toolsFixture("shared"))

	_, err := r.componentForTool("shared")
	if err == nil {
		t.Fatal("expected ambiguous tool error")
	}
	if component.KindOf(err) != component.KindAmbiguousTool {
		t.Fatalf("expected KindAmbiguousTool, got %v", component.KindOf(err))
	}
}

func TestRegistryComponentForToolNotFound(t *testing.T) {
	r := newRegistry()
	_, err := r.componentForTool("missing")
	if component.KindOf(err) != component.KindFunctionNotFound {
		t.Fatalf("expected KindFunctionNotFound, got %v", component.KindOf(err))
	}
}

func TestRegistrySummariesExcludeMetadataOnlyUnlessRequested(t *testing.T) {
	_, _, mod := compileEmpty(t)
	r := newRegistry()
	r.upsertComponent("c1", mod, toolsFixture("ping"))
	r.registerToolsOnly("c2", toolsFixture("pending"))

	loaded := r.summaries(false)
	if len(loaded) != 1 {
		t.Fatalf("expected only fully loaded components, got %d", len(loaded))
	}

	all := r.summaries(true)
	if len(all) != 2 {
		t.Fatalf("expected both components when including metadata-only, got %d", len(all))
	}
}

func TestRegistrySummariesOrderedByID(t *testing.T) {
	_, _, mod := compileEmpty(t)
	r := newRegistry()
	r.upsertComponent("zebra", mod, toolsFixture("ping"))
	r.registerToolsOnly("alpha", toolsFixture("pending"))
	r.upsertComponent("mid", mod, toolsFixture("pong"))

	got := r.summaries(true)
	if len(got) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].ID > got[i].ID {
			t.Fatalf("summaries not ordered by id: %+v", got)
		}
	}
	if got[0].ID != "alpha" || got[1].ID != "mid" || got[2].ID != "zebra" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
