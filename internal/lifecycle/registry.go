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
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/altairalabs/componenthost/internal/component"
)

// componentRecord is the in-memory state for a fully loaded component: its
// compiled module plus the tools it exports. metadataOnly components (known
// from a validated sidecar but not yet compiled) have no record here.
type componentRecord struct {
	compiled wazero.CompiledModule
	tools    []component.ToolMetadata
}

type toolEntry struct {
	componentID component.ID
	identifier  component.FunctionIdentifier
	schema      component.ToolSchema
}

// registry holds the component map and the tool index behind one lock, so
// "tool points at an id that no longer exists" can never be observed by a
// reader: every mutation that touches one touches the other in the same
// critical section.
type registry struct {
	mu sync.RWMutex

	components   map[component.ID]*componentRecord
	metadataOnly map[component.ID][]component.ToolMetadata
	toolIndex    map[string][]toolEntry
	owned        map[component.ID]map[string]bool // component id -> normalized names it contributed
}

func newRegistry() *registry {
	return &registry{
		components:   make(map[component.ID]*componentRecord),
		metadataOnly: make(map[component.ID][]component.ToolMetadata),
		toolIndex:    make(map[string][]toolEntry),
		owned:        make(map[component.ID]map[string]bool),
	}
}

func toolEntries(id component.ID, tools []component.ToolMetadata) []toolEntry {
	entries := make([]toolEntry, len(tools))
	for i, t := range tools {
		entries[i] = toolEntry{componentID: id, identifier: t.Identifier, schema: t.Schema}
	}
	return entries
}

// removeFromIndexLocked drops every tool entry owned by id from toolIndex,
// pruning empty buckets. Callers must hold r.mu for writing.
func (r *registry) removeFromIndexLocked(id component.ID) {
	names, ok := r.owned[id]
	if !ok {
		return
	}
	for name := range names {
		kept := r.toolIndex[name][:0]
		for _, e := range r.toolIndex[name] {
			if e.componentID != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(r.toolIndex, name)
		} else {
			r.toolIndex[name] = kept
		}
	}
	delete(r.owned, id)
}

func (r *registry) addToIndexLocked(id component.ID, tools []component.ToolMetadata) {
	names := make(map[string]bool, len(tools))
	for _, t := range tools {
		r.toolIndex[t.NormalizedName] = append(r.toolIndex[t.NormalizedName], toolEntry{
			componentID: id, identifier: t.Identifier, schema: t.Schema,
		})
		names[t.NormalizedName] = true
	}
	r.owned[id] = names
}

// registerToolsOnly registers id's tools for startup warm-up without a
// compiled record. It is only ever called for an id not already present.
func (r *registry) registerToolsOnly(id component.ID, tools []component.ToolMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.components[id]; exists {
		return
	}
	if _, exists := r.metadataOnly[id]; exists {
		return
	}
	r.metadataOnly[id] = tools
	r.addToIndexLocked(id, tools)
}

// upsertComponent installs a fully compiled record for id, replacing any
// prior record or metadata-only registration and its tool entries first.
// Returns whether a prior registration (compiled or metadata-only) existed,
// plus the previous compiled module if the prior registration was compiled
// (nil for a fresh load or a metadata-only upgrade). The caller is
// responsible for closing the previous module once it is no longer
// reachable from the registry, i.e. after this call returns.
func (r *registry) upsertComponent(id component.ID, mod wazero.CompiledModule, tools []component.ToolMetadata) (existed bool, previous wazero.CompiledModule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prevRec, hadComponent := r.components[id]
	_, hadMetadata := r.metadataOnly[id]
	existed = hadComponent || hadMetadata
	if hadComponent {
		previous = prevRec.compiled
	}

	r.removeFromIndexLocked(id)
	delete(r.metadataOnly, id)

	r.components[id] = &componentRecord{compiled: mod, tools: tools}
	r.addToIndexLocked(id, tools)
	return existed, previous
}

// unregisterComponent removes id's compiled record (if any) and all of its
// tool entries. Returns the removed record's compiled module, if any, so
// the caller can close it outside the lock.
func (r *registry) unregisterComponent(id component.ID) wazero.CompiledModule {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.components[id]
	r.removeFromIndexLocked(id)
	delete(r.components, id)
	delete(r.metadataOnly, id)
	if !ok {
		return nil
	}
	return rec.compiled
}

func (r *registry) get(id component.ID) (*componentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.components[id]
	return rec, ok
}

func (r *registry) isKnown(id component.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.components[id]; ok {
		return true
	}
	_, ok := r.metadataOnly[id]
	return ok
}

func (r *registry) toolsFor(id component.ID) ([]component.ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.components[id]; ok {
		return rec.tools, true
	}
	if tools, ok := r.metadataOnly[id]; ok {
		return tools, true
	}
	return nil, false
}

// componentForTool resolves a tool name to its owning component and
// identifier. Returns component.KindAmbiguousTool if more than one
// component exports the name.
func (r *registry) componentForTool(name string) (toolEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.toolIndex[name]
	switch len(entries) {
	case 0:
		return toolEntry{}, component.New(component.KindFunctionNotFound, "tool not found: "+name)
	case 1:
		return entries[0], nil
	default:
		return toolEntry{}, component.New(component.KindAmbiguousTool, "tool name is ambiguous: "+name)
	}
}

// summaries returns one Summary per compiled component, plus one per
// metadata-only component when knownOnly is true, ordered by id for
// deterministic output.
func (r *registry) summaries(knownOnly bool) []component.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]component.Summary, 0, len(r.components)+len(r.metadataOnly))
	for id, rec := range r.components {
		out = append(out, summaryFor(id, rec.tools, false))
	}
	if knownOnly {
		for id, tools := range r.metadataOnly {
			out = append(out, summaryFor(id, tools, true))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func summaryFor(id component.ID, tools []component.ToolMetadata, metadataOnly bool) component.Summary {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.NormalizedName
	}
	return component.Summary{ID: id, ToolsCount: len(tools), ToolNames: names, MetadataOnly: metadataOnly}
}

func (r *registry) allToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.toolIndex))
	for name := range r.toolIndex {
		names = append(names, name)
	}
	return names
}
