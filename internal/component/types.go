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

package component

import "time"

// ID is a printable-ASCII identifier derived from an artifact's source URI.
// Identifiers are unique per host and case-sensitive.
type ID string

// FunctionIdentifier is sufficient to resolve an exported function at
// instantiation time: either a world-level export (InterfaceName empty) or
// an interface-qualified export.
type FunctionIdentifier struct {
	InterfaceName string `json:"interface_name,omitempty"`
	FunctionName  string `json:"function_name"`
}

// ExportName returns the flattened export name wazero looks up on the
// pre-instantiated module. Interface-qualified exports are flattened as
// "interface#function", mirroring how component toolchains lower qualified
// WIT exports into a single canonical-ABI export name on the underlying
// core module.
func (f FunctionIdentifier) ExportName() string {
	if f.InterfaceName == "" {
		return f.FunctionName
	}
	return f.InterfaceName + "#" + f.FunctionName
}

// ToolMetadata describes one tool exposed by a component.
type ToolMetadata struct {
	NormalizedName string             `json:"normalized_name"`
	Identifier     FunctionIdentifier `json:"identifier"`
	Schema         ToolSchema         `json:"schema"`
}

// ToolSchema is the JSON-Schema-shaped description of a tool, already
// canonicalized for MCP output compatibility.
type ToolSchema struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"inputSchema,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

// ValidationStamp is the (size, mtime, optional hash) tuple used to decide
// whether a metadata sidecar still matches its component binary.
type ValidationStamp struct {
	FileSize    int64     `json:"file_size"`
	ModTime     time.Time `json:"mtime"`
	ContentHash string    `json:"content_hash,omitempty"`
}

// Metadata is the on-disk sidecar persisted next to a component binary so
// the tool index can be rebuilt at startup without recompiling.
type Metadata struct {
	ComponentID         ID                   `json:"component_id"`
	ToolSchemas         []ToolSchema         `json:"tool_schemas"`
	FunctionIdentifiers []FunctionIdentifier `json:"function_identifiers"`
	ToolNames           []string             `json:"tool_names"`
	ValidationStamp     ValidationStamp      `json:"validation_stamp"`
	CreatedAt           time.Time            `json:"created_at"`
}

// LoadStatus reports whether a load created a new registration or replaced
// an existing one.
type LoadStatus string

const (
	StatusNew      LoadStatus = "New"
	StatusReplaced LoadStatus = "Replaced"
)

// LoadOutcome is returned by the lifecycle manager's load operation.
type LoadOutcome struct {
	ComponentID ID
	Status      LoadStatus
	ToolNames   []string
}

// Summary is the compact per-component view used by list-components.
type Summary struct {
	ID           ID       `json:"id"`
	ToolsCount   int      `json:"tools_count"`
	ToolNames    []string `json:"tool_names"`
	MetadataOnly bool     `json:"metadata_only"`
}
