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

// Package lifecycle orchestrates the artifact resolver, component storage,
// policy store, secrets store, sandbox builder, and Wasm engine: it owns
// the in-memory component registry and tool index and is the only writer
// of either.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/componenthost/internal/component"
	"github.com/altairalabs/componenthost/internal/engine"
	"github.com/altairalabs/componenthost/internal/metrics"
	"github.com/altairalabs/componenthost/internal/policy"
	"github.com/altairalabs/componenthost/internal/resolver"
	"github.com/altairalabs/componenthost/internal/sandbox"
	"github.com/altairalabs/componenthost/internal/secrets"
	"github.com/altairalabs/componenthost/internal/storage"
)

// Manager is the lifecycle orchestrator described as "the core" of the
// component host: it is the single place that resolves, stages, compiles,
// registers, and executes components, and the single writer of the
// registry and tool index.
type Manager struct {
	log      logr.Logger
	resolver *resolver.Resolver
	storage  *storage.Store
	policy   *policy.Store
	secrets  *secrets.Store
	engine   *engine.Engine
	hostEnv  map[string]string
	metrics  metrics.Recorder

	warmupConcurrency int

	reg *registry
}

// New builds a Manager. hostEnv is the set of environment variables the
// sandbox template builder may expose to components via environment.allow
// rules; warmupConcurrency bounds the background startup compile loader
// (effective value is min(warmupConcurrency, runtime.NumCPU())). A nil
// recorder falls back to metrics.NoOp{}.
func New(
	log logr.Logger,
	res *resolver.Resolver,
	store *storage.Store,
	policyStore *policy.Store,
	secretsStore *secrets.Store,
	eng *engine.Engine,
	hostEnv map[string]string,
	warmupConcurrency int,
	recorder metrics.Recorder,
) *Manager {
	if recorder == nil {
		recorder = metrics.NoOp{}
	}
	return &Manager{
		log:               log.WithName("lifecycle"),
		resolver:          res,
		storage:           store,
		policy:            policyStore,
		secrets:           secretsStore,
		engine:            eng,
		hostEnv:           hostEnv,
		metrics:           recorder,
		warmupConcurrency: warmupConcurrency,
		reg:               newRegistry(),
	}
}

// LoadComponent resolves uri, stages its artifact, installs any OCI-carried
// policy layer, compiles and registers it, then re-attempts policy
// restoration from disk so a pre-existing sidecar for this id is honored.
func (m *Manager) LoadComponent(ctx context.Context, uri string) (component.LoadOutcome, error) {
	start := time.Now()
	outcome, err := m.loadComponent(ctx, uri)
	m.metrics.RecordLoad(time.Since(start).Seconds(), err == nil)
	return outcome, err
}

func (m *Manager) loadComponent(ctx context.Context, uri string) (component.LoadOutcome, error) {
	result, err := m.resolver.Resolve(ctx, uri)
	if err != nil {
		return component.LoadOutcome{}, err
	}
	id := result.ComponentID

	if err := m.storage.InstallArtifact(id, result.Resource); err != nil {
		return component.LoadOutcome{}, component.Wrap(component.KindLoadFailure, "installing artifact", err)
	}

	if len(result.PolicyYAML) > 0 {
		if err := m.policy.AttachPolicy(id, uri, result.PolicyYAML); err != nil {
			return component.LoadOutcome{}, err
		}
	}

	outcome, err := m.compileAndRegister(ctx, id)
	if err != nil {
		return component.LoadOutcome{}, err
	}

	if err := m.policy.RestoreFromDisk(id); err != nil {
		m.log.Error(err, "restoring policy sidecar after load", "component", id)
	}

	m.log.Info("component loaded", "component", id, "status", outcome.Status, "tools", len(outcome.ToolNames))
	return outcome, nil
}

// compileAndRegister implements compile-and-register: compile, pre-instantiate
// as a liveness check, extract tools, opportunistically persist metadata,
// and atomically upsert into the registry. The previous compiled module (if
// any) is closed only after the new one is registered.
func (m *Manager) compileAndRegister(ctx context.Context, id component.ID) (component.LoadOutcome, error) {
	wasmPath, err := m.storage.WasmPath(id)
	if err != nil {
		return component.LoadOutcome{}, err
	}
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return component.LoadOutcome{}, component.Wrap(component.KindLoadFailure, "reading component binary", err)
	}

	mod, err := m.engine.Compile(ctx, wasmBytes)
	if err != nil {
		return component.LoadOutcome{}, component.Wrap(component.KindLoadFailure, "compiling component", err)
	}
	if err := m.engine.PreInstantiate(mod); err != nil {
		_ = mod.Close(ctx)
		return component.LoadOutcome{}, component.Wrap(component.KindLoadFailure, "validating component imports", err)
	}

	tools := extractTools(mod)

	stamp, err := storage.CreateValidationStamp(wasmPath, false)
	if err != nil {
		m.log.Error(err, "creating validation stamp", "component", id)
	} else {
		meta := &component.Metadata{
			ComponentID:         id,
			ToolSchemas:         schemasOf(tools),
			FunctionIdentifiers: identifiersOf(tools),
			ToolNames:           namesOf(tools),
			ValidationStamp:     stamp,
			CreatedAt:           time.Now(),
		}
		if err := m.storage.WriteMetadata(id, meta); err != nil {
			m.log.Error(err, "persisting metadata", "component", id)
		}
	}

	existed, previous := m.reg.upsertComponent(id, mod, tools)
	if previous != nil {
		_ = previous.Close(ctx)
	}

	status := component.StatusNew
	if existed {
		status = component.StatusReplaced
	}
	return component.LoadOutcome{ComponentID: id, Status: status, ToolNames: namesOf(tools)}, nil
}

// EnsureComponentLoaded compiles and registers id if its binary is present
// on disk but not yet loaded into the registry.
func (m *Manager) EnsureComponentLoaded(ctx context.Context, id component.ID) error {
	if _, ok := m.reg.get(id); ok {
		return nil
	}
	wasmPath, err := m.storage.WasmPath(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(wasmPath); err != nil {
		return component.Wrap(component.KindUnknownComponent, fmt.Sprintf("component %s has no binary on disk", id), err)
	}
	_, err = m.compileAndRegister(ctx, id)
	return err
}

// UnloadComponent removes id's on-disk artifacts and its in-memory
// registration. Disk removal happens first so unload is atomic over disk:
// a crash mid-unload never leaves a dangling in-memory record pointing at
// deleted files.
func (m *Manager) UnloadComponent(ctx context.Context, id component.ID) error {
	err := m.unloadComponent(ctx, id)
	m.metrics.RecordUnload(err == nil)
	return err
}

func (m *Manager) unloadComponent(ctx context.Context, id component.ID) error {
	if err := m.storage.RemoveArtifacts(id); err != nil {
		return component.Wrap(component.KindLoadFailure, "removing component artifacts", err)
	}
	if err := m.policy.Reset(id); err != nil {
		m.log.Error(err, "removing policy sidecar on unload", "component", id)
	}
	mod := m.reg.unregisterComponent(id)
	if mod != nil {
		_ = mod.Close(ctx)
	}
	m.log.Info("component unloaded", "component", id)
	return nil
}

// ExecuteComponentCall resolves fnName against id's registered tools,
// builds a fresh sandbox for the call, instantiates the component, invokes
// the target export, and returns its JSON result.
func (m *Manager) ExecuteComponentCall(ctx context.Context, id component.ID, fnName string, paramsJSON []byte) ([]byte, error) {
	start := time.Now()
	result, err := m.executeComponentCall(ctx, id, fnName, paramsJSON)
	m.metrics.RecordToolCall(fnName, time.Since(start).Seconds(), err == nil)
	if err != nil && component.KindOf(err) == component.KindPermissionDenied {
		m.metrics.RecordPermissionDenial(string(policy.KindNetwork))
	}
	return result, err
}

func (m *Manager) executeComponentCall(ctx context.Context, id component.ID, fnName string, paramsJSON []byte) ([]byte, error) {
	rec, ok := m.reg.get(id)
	if !ok {
		return nil, component.New(component.KindUnknownComponent, fmt.Sprintf("unknown component %q", id))
	}

	var ident component.FunctionIdentifier
	found := false
	for _, t := range rec.tools {
		if t.NormalizedName == fnName {
			ident = t.Identifier
			found = true
			break
		}
	}
	if !found {
		return nil, component.New(component.KindFunctionNotFound, fmt.Sprintf("component %q has no tool %q", id, fnName))
	}

	secretValues, err := m.secrets.Get(id)
	if err != nil {
		return nil, fmt.Errorf("reading secrets for %s: %w", id, err)
	}
	doc := m.policy.Document(id)
	componentDir, err := m.storage.ComponentDir(id)
	if err != nil {
		return nil, err
	}
	tmpl, err := sandbox.Build(doc, componentDir, secretValues, m.hostEnv)
	if err != nil {
		return nil, fmt.Errorf("building sandbox for %s: %w", id, err)
	}
	state := sandbox.NewState(tmpl)

	callCtx := engine.WithSandboxState(engine.WithMemoryLimit(ctx, tmpl.MemoryLimit), state)
	cfg := engine.BuildModuleConfig(tmpl, string(id), os.Stdout, os.Stderr)

	instance, err := m.engine.Instantiate(callCtx, rec.compiled, cfg)
	if err != nil {
		return nil, m.translateExecutionError(id, state, err)
	}
	defer func() { _ = instance.Close(callCtx) }()

	result, err := engine.CallJSON(callCtx, instance, ident, paramsJSON)
	if err != nil {
		return nil, m.translateExecutionError(id, state, err)
	}
	return result, nil
}

// translateExecutionError prefers a recorded sandbox permission denial over
// the raw execution error, since the raw error is typically an opaque trap
// that does not name the host/URI that was refused or which grant tool
// would fix it.
func (m *Manager) translateExecutionError(id component.ID, state *sandbox.State, cause error) error {
	if permErr := state.LastPermissionError(); permErr != nil {
		msg := fmt.Sprintf(
			"Network permission denied: component %q was denied network access to %s. Run: grant-network-permission --component-id=%q --host=%q",
			id, permErr.Host, id, permErr.Host,
		)
		return component.Wrap(component.KindPermissionDenied, msg, permErr)
	}
	return cause
}

// ListComponents returns a summary of every fully loaded component.
func (m *Manager) ListComponents() []component.Summary { return m.reg.summaries(false) }

// ListComponentsKnown returns a summary of every component known to the
// host, including metadata-only registrations from startup warm-up.
func (m *Manager) ListComponentsKnown() []component.Summary { return m.reg.summaries(true) }

// GetComponentSchema returns the tool schemas for id.
func (m *Manager) GetComponentSchema(id component.ID) ([]component.ToolSchema, error) {
	tools, ok := m.reg.toolsFor(id)
	if !ok {
		return nil, component.New(component.KindUnknownComponent, fmt.Sprintf("unknown component %q", id))
	}
	return schemasOf(tools), nil
}

// ListTools returns every tool schema across every known component.
func (m *Manager) ListTools() []component.ToolSchema {
	var out []component.ToolSchema
	for _, s := range m.reg.summaries(true) {
		schemas, err := m.GetComponentSchema(s.ID)
		if err != nil {
			continue
		}
		out = append(out, schemas...)
	}
	return out
}

// GetToolSchemaForComponent returns the schema for name on id.
func (m *Manager) GetToolSchemaForComponent(id component.ID, name string) (component.ToolSchema, error) {
	tools, ok := m.reg.toolsFor(id)
	if !ok {
		return component.ToolSchema{}, component.New(component.KindUnknownComponent, fmt.Sprintf("unknown component %q", id))
	}
	for _, t := range tools {
		if t.NormalizedName == name {
			return t.Schema, nil
		}
	}
	return component.ToolSchema{}, component.New(component.KindFunctionNotFound, fmt.Sprintf("component %q has no tool %q", id, name))
}

// GetComponentIDForTool resolves a tool name to its single owning
// component, failing with AmbiguousTool if more than one component exports
// the name.
func (m *Manager) GetComponentIDForTool(name string) (component.ID, error) {
	entry, err := m.reg.componentForTool(name)
	if err != nil {
		return "", err
	}
	return entry.componentID, nil
}

// AttachPolicy loads a policy document's bytes for id from sourceURI.
func (m *Manager) AttachPolicy(id component.ID, sourceURI string, data []byte) error {
	return m.policy.AttachPolicy(id, sourceURI, data)
}

// DetachPolicy removes id's policy document and sidecar.
func (m *Manager) DetachPolicy(id component.ID) error { return m.policy.DetachPolicy(id) }

// GetPolicyInfo returns id's policy metadata, if any.
func (m *Manager) GetPolicyInfo(id component.ID) (policy.Info, bool) { return m.policy.GetPolicyInfo(id) }

// GrantPermission inserts a rule into id's policy document.
func (m *Manager) GrantPermission(id component.ID, kind policy.Kind, detail policy.Detail) (*policy.Document, error) {
	return m.policy.Grant(id, kind, detail)
}

// RevokePermission removes a matching rule from id's policy document.
func (m *Manager) RevokePermission(id component.ID, kind policy.Kind, detail policy.Detail) (*policy.Document, error) {
	return m.policy.Revoke(id, kind, detail)
}

// ResetPermission deletes id's policy document and sidecar entirely.
func (m *Manager) ResetPermission(id component.ID) error { return m.policy.Reset(id) }

// RevokeStoragePermissionByURI removes every access mode id was granted for uri.
func (m *Manager) RevokeStoragePermissionByURI(id component.ID, uri string) (*policy.Document, error) {
	return m.policy.RevokeStorageByURI(id, uri)
}

// WarmUp performs startup warm-up: metadata-only registration for every
// component whose sidecar still validates against its binary, followed by
// a background compile loader bounded by min(warmupConcurrency, NumCPU)
// that upgrades each to a full registration. notify, if non-nil, is called
// after each background compile commits, to drive a "tool list changed"
// signal over the protocol.
func (m *Manager) WarmUp(ctx context.Context, notify func()) error {
	entries, err := os.ReadDir(m.storage.Root())
	if err != nil {
		return fmt.Errorf("reading component root: %w", err)
	}

	var toCompile, cached []component.ID
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
			continue
		}
		id := component.ID(strings.TrimSuffix(entry.Name(), ".wasm"))

		meta, ok, err := m.storage.ReadMetadata(id)
		if err != nil {
			m.log.Error(err, "reading metadata during warm-up", "component", id)
			toCompile = append(toCompile, id)
			continue
		}
		if !ok {
			toCompile = append(toCompile, id)
			continue
		}
		wasmPath, err := m.storage.WasmPath(id)
		if err != nil {
			continue
		}
		valid, err := storage.ValidateStamp(wasmPath, meta.ValidationStamp)
		if err != nil || !valid {
			toCompile = append(toCompile, id)
			continue
		}
		tools := toolsFromMetadata(meta)
		m.reg.registerToolsOnly(id, tools)
		m.metrics.RecordCompileCacheHit()
		cached = append(cached, id)
	}
	for range toCompile {
		m.metrics.RecordCompileCacheMiss()
	}

	concurrency := m.warmupConcurrency
	if concurrency <= 0 || concurrency > runtime.NumCPU() {
		concurrency = runtime.NumCPU()
	}
	if concurrency < 1 {
		concurrency = 1
	}

	go m.backgroundCompile(ctx, append(toCompile, cached...), concurrency, notify)
	return nil
}

func (m *Manager) backgroundCompile(ctx context.Context, ids []component.ID, concurrency int, notify func()) {
	sem := make(chan struct{}, concurrency)
	done := make(chan struct{}, len(ids))
	for _, id := range ids {
		sem <- struct{}{}
		go func(id component.ID) {
			defer func() { <-sem; done <- struct{}{} }()
			if _, err := m.compileAndRegister(ctx, id); err != nil {
				m.log.Error(err, "background compile failed", "component", id)
				return
			}
			if notify != nil {
				notify()
			}
		}(id)
	}
	for range ids {
		<-done
	}
}

func toolsFromMetadata(meta *component.Metadata) []component.ToolMetadata {
	tools := make([]component.ToolMetadata, len(meta.ToolSchemas))
	for i := range meta.ToolSchemas {
		tools[i] = component.ToolMetadata{
			NormalizedName: meta.ToolNames[i],
			Identifier:     meta.FunctionIdentifiers[i],
			Schema:         meta.ToolSchemas[i],
		}
	}
	return tools
}

func schemasOf(tools []component.ToolMetadata) []component.ToolSchema {
	out := make([]component.ToolSchema, len(tools))
	for i, t := range tools {
		out[i] = t.Schema
	}
	return out
}

func identifiersOf(tools []component.ToolMetadata) []component.FunctionIdentifier {
	out := make([]component.FunctionIdentifier, len(tools))
	for i, t := range tools {
		out[i] = t.Identifier
	}
	return out
}

func namesOf(tools []component.ToolMetadata) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.NormalizedName
	}
	return out
}
