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

// Package dispatcher is the front door every tool call passes through: it
// logs a sanitized snapshot of the arguments, routes built-in administrative
// tool names to their handlers, and falls through to the lifecycle manager
// for everything else.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/altairalabs/componenthost/internal/component"
	"github.com/altairalabs/componenthost/internal/lifecycle"
	"github.com/altairalabs/componenthost/internal/policy"
)

// ToolResult is the wire shape every dispatched call returns: a single
// text content item carrying the JSON-encoded payload, plus optional
// structured content aligned against the tool's output schema.
type ToolResult struct {
	Content           []ContentItem  `json:"content"`
	StructuredContent any            `json:"structured_content,omitempty"`
	IsError           bool           `json:"is_error,omitempty"`
}

// ContentItem is one element of ToolResult.Content.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(v any) *ToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Errorf("encoding result: %w", err))
	}
	return &ToolResult{Content: []ContentItem{{Type: "text", Text: string(data)}}, StructuredContent: v}
}

func errorResult(err error) *ToolResult {
	payload := map[string]string{"error": err.Error()}
	data, _ := json.Marshal(payload)
	return &ToolResult{Content: []ContentItem{{Type: "text", Text: string(data)}}, IsError: true}
}

// builtinNames is the fixed, wire-contract set of administrative tool
// names. Anything not in this set is routed to the lifecycle manager as a
// component call.
var builtinNames = map[string]bool{
	"load-component":                          true,
	"unload-component":                        true,
	"list-components":                         true,
	"get-policy":                              true,
	"grant-storage-permission":                true,
	"grant-network-permission":                true,
	"grant-environment-variable-permission":   true,
	"revoke-storage-permission":               true,
	"revoke-network-permission":               true,
	"revoke-environment-variable-permission":  true,
	"reset-permission":                        true,
	"search-components":                       true,
}

// Dispatcher routes tool calls to built-in handlers or the lifecycle
// manager.
type Dispatcher struct {
	log                 logr.Logger
	manager             *lifecycle.Manager
	disableBuiltinTools bool
	catalog             []catalogEntry
}

// New builds a Dispatcher. disableBuiltinTools, when set, makes every
// built-in tool name fail with BuiltinsDisabled instead of dispatching,
// while component calls remain unaffected.
func New(log logr.Logger, manager *lifecycle.Manager, disableBuiltinTools bool) *Dispatcher {
	return &Dispatcher{
		log:                 log.WithName("dispatcher"),
		manager:             manager,
		disableBuiltinTools: disableBuiltinTools,
		catalog:             mustLoadCatalog(),
	}
}

// Dispatch routes name's call. It has no Go error return: every failure,
// including one where dispatch itself cannot proceed, is reported via
// ToolResult.IsError so the protocol layer can relay them uniformly.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, argsJSON []byte) *ToolResult {
	d.log.Info("dispatching tool call", "tool", name, "args", sanitizeArgsForLog(argsJSON))

	if d.disableBuiltinTools && builtinNames[name] {
		return errorResult(component.New(component.KindBuiltinsDisabled, fmt.Sprintf("built-in tools are disabled; cannot call %q", name)))
	}

	switch name {
	case "load-component":
		return d.handleLoadComponent(ctx, argsJSON)
	case "unload-component":
		return d.handleUnloadComponent(ctx, argsJSON)
	case "list-components":
		return d.handleListComponents()
	case "get-policy":
		return d.handleGetPolicy(argsJSON)
	case "grant-storage-permission":
		return d.handleGrant(argsJSON, policy.KindStorage)
	case "grant-network-permission":
		return d.handleGrant(argsJSON, policy.KindNetwork)
	case "grant-environment-variable-permission":
		return d.handleGrant(argsJSON, policy.KindEnvironment)
	case "revoke-storage-permission":
		return d.handleRevokeStorage(argsJSON)
	case "revoke-network-permission":
		return d.handleRevoke(argsJSON, policy.KindNetwork)
	case "revoke-environment-variable-permission":
		return d.handleRevoke(argsJSON, policy.KindEnvironment)
	case "reset-permission":
		return d.handleResetPermission(argsJSON)
	case "search-components":
		return d.handleSearchComponents(argsJSON)
	default:
		return d.handleComponentCall(ctx, name, argsJSON)
	}
}

type loadComponentArgs struct {
	Path string `json:"path"`
}

func (d *Dispatcher) handleLoadComponent(ctx context.Context, argsJSON []byte) *ToolResult {
	var args loadComponentArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(component.Wrap(component.KindSchemaError, "decoding load-component arguments", err))
	}
	outcome, err := d.manager.LoadComponent(ctx, args.Path)
	if err != nil {
		return errorResult(err)
	}
	tools := outcome.ToolNames
	if tools == nil {
		tools = []string{}
	}
	return textResult(map[string]any{
		"status": "component loaded successfully",
		"id":     outcome.ComponentID,
		"tools":  tools,
	})
}

type componentIDArgs struct {
	ID          string `json:"id"`
	ComponentID string `json:"component_id"`
}

func (a componentIDArgs) id() component.ID {
	if a.ComponentID != "" {
		return component.ID(a.ComponentID)
	}
	return component.ID(a.ID)
}

func (d *Dispatcher) handleUnloadComponent(ctx context.Context, argsJSON []byte) *ToolResult {
	var args componentIDArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(component.Wrap(component.KindSchemaError, "decoding unload-component arguments", err))
	}
	if err := d.manager.UnloadComponent(ctx, args.id()); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"status": "unloaded"})
}

func (d *Dispatcher) handleListComponents() *ToolResult {
	components := d.manager.ListComponentsKnown()
	if components == nil {
		components = []component.Summary{}
	}
	return textResult(map[string]any{
		"total":      len(components),
		"components": components,
	})
}

func (d *Dispatcher) handleGetPolicy(argsJSON []byte) *ToolResult {
	var args componentIDArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(component.Wrap(component.KindSchemaError, "decoding get-policy arguments", err))
	}
	info, ok := d.manager.GetPolicyInfo(args.id())
	if !ok {
		return textResult(map[string]any{"policy": nil})
	}
	return textResult(info)
}

type permissionArgs struct {
	ID          string        `json:"id"`
	ComponentID string        `json:"component_id"`
	Details     policy.Detail `json:"details"`
}

func (a permissionArgs) id() component.ID {
	if a.ComponentID != "" {
		return component.ID(a.ComponentID)
	}
	return component.ID(a.ID)
}

func (d *Dispatcher) handleGrant(argsJSON []byte, kind policy.Kind) *ToolResult {
	var args permissionArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(component.Wrap(component.KindSchemaError, "decoding grant arguments", err))
	}
	doc, err := d.manager.GrantPermission(args.id(), kind, args.Details)
	if err != nil {
		return errorResult(err)
	}
	return textResult(doc)
}

func (d *Dispatcher) handleRevoke(argsJSON []byte, kind policy.Kind) *ToolResult {
	var args permissionArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(component.Wrap(component.KindSchemaError, "decoding revoke arguments", err))
	}
	doc, err := d.manager.RevokePermission(args.id(), kind, args.Details)
	if err != nil {
		return errorResult(err)
	}
	return textResult(doc)
}

func (d *Dispatcher) handleRevokeStorage(argsJSON []byte) *ToolResult {
	var args permissionArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(component.Wrap(component.KindSchemaError, "decoding revoke-storage-permission arguments", err))
	}
	uri, _ := args.Details["uri"].(string)
	doc, err := d.manager.RevokeStoragePermissionByURI(args.id(), uri)
	if err != nil {
		return errorResult(err)
	}
	return textResult(doc)
}

func (d *Dispatcher) handleResetPermission(argsJSON []byte) *ToolResult {
	var args componentIDArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(component.Wrap(component.KindSchemaError, "decoding reset-permission arguments", err))
	}
	if err := d.manager.ResetPermission(args.id()); err != nil {
		return errorResult(err)
	}
	return textResult(map[string]string{"status": "reset"})
}

// handleComponentCall dispatches name to its owning component, then aligns
// the raw JSON result against the tool's canonical output schema so
// StructuredContent is always an object per the MCP wire contract.
func (d *Dispatcher) handleComponentCall(ctx context.Context, name string, argsJSON []byte) *ToolResult {
	id, err := d.manager.GetComponentIDForTool(name)
	if err != nil {
		return errorResult(err)
	}
	if schema, err := d.manager.GetToolSchemaForComponent(id, name); err == nil {
		if err := validateAgainstSchema(schema.InputSchema, argsJSON); err != nil {
			return errorResult(err)
		}
	}
	result, err := d.manager.ExecuteComponentCall(ctx, id, name, argsJSON)
	if err != nil {
		return errorResult(err)
	}

	var raw any
	if err := json.Unmarshal(result, &raw); err != nil {
		return &ToolResult{Content: []ContentItem{{Type: "text", Text: string(result)}}}
	}

	schema, err := d.manager.GetToolSchemaForComponent(id, name)
	structured := raw
	if err == nil {
		structured = alignToSchema(raw, schema.OutputSchema)
	}
	return &ToolResult{Content: []ContentItem{{Type: "text", Text: string(result)}}, StructuredContent: structured}
}
