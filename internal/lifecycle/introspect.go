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
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/altairalabs/componenthost/internal/component"
)

// extractTools derives the tool list from mod's exports. Real WIT/interface
// signature extraction is a host-runtime concern this package does not own
// (see engine.CallJSON for the calling convention it assumes); what can be
// determined purely from the core module's export shape is which exports
// match the packed-pointer JSON calling convention: two i32 parameters
// (argument pointer, length) returning one i64 (packed result pointer and
// length). Anything else is skipped rather than guessed at.
func extractTools(mod wazero.CompiledModule) []component.ToolMetadata {
	var tools []component.ToolMetadata
	for name, def := range mod.ExportedFunctions() {
		if name == "allocate" || name == "deallocate" || name == "_start" || name == "memory" {
			continue
		}
		if !isJSONCallable(def) {
			continue
		}
		ident := identifierFromExportName(name)
		normalized := normalizeToolName(name)
		tools = append(tools, component.ToolMetadata{
			NormalizedName: normalized,
			Identifier:     ident,
			Schema: component.ToolSchema{
				Name:        normalized,
				InputSchema: map[string]any{"type": "object"},
			},
		})
	}
	return tools
}

func isJSONCallable(def api.FunctionDefinition) bool {
	params := def.ParamTypes()
	results := def.ResultTypes()
	if len(params) != 2 || len(results) != 1 {
		return false
	}
	return params[0] == api.ValueTypeI32 && params[1] == api.ValueTypeI32 && results[0] == api.ValueTypeI64
}

// identifierFromExportName reverses FunctionIdentifier.ExportName's
// "interface#function" flattening.
func identifierFromExportName(exportName string) component.FunctionIdentifier {
	if iface, fn, ok := strings.Cut(exportName, "#"); ok {
		return component.FunctionIdentifier{InterfaceName: iface, FunctionName: fn}
	}
	return component.FunctionIdentifier{FunctionName: exportName}
}

// normalizeToolName flattens an interface-qualified export into a single
// legal tool name: "interface#function" becomes "interface-function".
func normalizeToolName(exportName string) string {
	return strings.ReplaceAll(exportName, "#", "-")
}
