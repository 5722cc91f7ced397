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

// Package policy owns the per-component policy document: its typed
// in-memory representation, YAML (de)serialization, and the store that
// persists it atomically and serves grant/revoke/reset operations.
package policy

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind identifies a permission category accepted by grant/revoke.
type Kind string

const (
	KindNetwork     Kind = "network"
	KindStorage     Kind = "storage"
	KindEnvironment Kind = "environment"
	KindResource    Kind = "resource"
)

// NetworkRule allows outbound traffic to Host. UDP is tracked per rule so
// granting the same host with and without UDP are distinct rules.
type NetworkRule struct {
	Host string `yaml:"host"`
	UDP  bool   `yaml:"udp,omitempty"`
}

// StorageRule allows preopening URI (a "fs://" URI) with the given access
// modes ("read", "write").
type StorageRule struct {
	URI    string   `yaml:"uri"`
	Access []string `yaml:"access"`
}

// EnvironmentRule allows the component to see the host's value for Key.
type EnvironmentRule struct {
	Key string `yaml:"key"`
}

// ResourceLimits bounds per-component resource usage.
type ResourceLimits struct {
	Memory string `yaml:"memory,omitempty"` // "<n>Ki|Mi|Gi", current form
}

// Permissions groups the four rule categories a policy document can carry.
type Permissions struct {
	Network     *NetworkPermissions     `yaml:"network,omitempty"`
	Storage     *StoragePermissions     `yaml:"storage,omitempty"`
	Environment *EnvironmentPermissions `yaml:"environment,omitempty"`
	Resources   *ResourcePermissions    `yaml:"resources,omitempty"`
}

type NetworkPermissions struct {
	Allow []NetworkRule `yaml:"allow,omitempty"`
}

type StoragePermissions struct {
	Allow []StorageRule `yaml:"allow,omitempty"`
}

type EnvironmentPermissions struct {
	Allow []EnvironmentRule `yaml:"allow,omitempty"`
}

type ResourcePermissions struct {
	Limits *ResourceLimits `yaml:"limits,omitempty"`
	Memory *int            `yaml:"memory,omitempty"` // legacy MiB form
}

// Document is the canonical on-disk policy shape (versioned YAML).
type Document struct {
	Version     string      `yaml:"version"`
	Description string      `yaml:"description,omitempty"`
	Permissions Permissions `yaml:"permissions,omitempty"`
}

const currentVersion = "1.0"

// Empty returns the deny-all policy used when a component has no sidecar.
func Empty(description string) *Document {
	return &Document{Version: currentVersion, Description: description}
}

// Parse decodes a policy document from its canonical YAML form.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	if doc.Version == "" {
		doc.Version = currentVersion
	}
	return doc, nil
}

// Serialize encodes the document back to its canonical YAML form.
func (d *Document) Serialize() ([]byte, error) {
	return yaml.Marshal(d)
}

// Clone returns a deep copy so mutation under one lock never aliases a
// reader's view.
func (d *Document) Clone() *Document {
	out := &Document{Version: d.Version, Description: d.Description}
	if d.Permissions.Network != nil {
		out.Permissions.Network = &NetworkPermissions{Allow: append([]NetworkRule(nil), d.Permissions.Network.Allow...)}
	}
	if d.Permissions.Storage != nil {
		rules := make([]StorageRule, len(d.Permissions.Storage.Allow))
		for i, r := range d.Permissions.Storage.Allow {
			rules[i] = StorageRule{URI: r.URI, Access: append([]string(nil), r.Access...)}
		}
		out.Permissions.Storage = &StoragePermissions{Allow: rules}
	}
	if d.Permissions.Environment != nil {
		out.Permissions.Environment = &EnvironmentPermissions{Allow: append([]EnvironmentRule(nil), d.Permissions.Environment.Allow...)}
	}
	if d.Permissions.Resources != nil {
		out.Permissions.Resources = &ResourcePermissions{}
		if d.Permissions.Resources.Limits != nil {
			lim := *d.Permissions.Resources.Limits
			out.Permissions.Resources.Limits = &lim
		}
		if d.Permissions.Resources.Memory != nil {
			mem := *d.Permissions.Resources.Memory
			out.Permissions.Resources.Memory = &mem
		}
	}
	return out
}

// Equivalent reports semantic equality: same rules, order-independent.
func (d *Document) Equivalent(other *Document) bool {
	return networkEqual(d.networkRules(), other.networkRules()) &&
		storageEqual(d.storageRules(), other.storageRules()) &&
		envEqual(d.environmentRules(), other.environmentRules())
}

func (d *Document) networkRules() []NetworkRule {
	if d.Permissions.Network == nil {
		return nil
	}
	return d.Permissions.Network.Allow
}

func (d *Document) storageRules() []StorageRule {
	if d.Permissions.Storage == nil {
		return nil
	}
	return d.Permissions.Storage.Allow
}

func (d *Document) environmentRules() []EnvironmentRule {
	if d.Permissions.Environment == nil {
		return nil
	}
	return d.Permissions.Environment.Allow
}

func networkEqual(a, b []NetworkRule) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]NetworkRule(nil), a...), append([]NetworkRule(nil), b...)
	less := func(s []NetworkRule) func(i, j int) bool {
		return func(i, j int) bool { return s[i].Host+boolStr(s[i].UDP) < s[j].Host+boolStr(s[j].UDP) }
	}
	sort.Slice(sa, less(sa))
	sort.Slice(sb, less(sb))
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func storageEqual(a, b []StorageRule) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]StorageRule(nil), a...), append([]StorageRule(nil), b...)
	sort.Slice(sa, func(i, j int) bool { return sa[i].URI < sa[j].URI })
	sort.Slice(sb, func(i, j int) bool { return sb[i].URI < sb[j].URI })
	for i := range sa {
		if sa[i].URI != sb[i].URI || !stringSetEqual(sa[i].Access, sb[i].Access) {
			return false
		}
	}
	return true
}

func envEqual(a, b []EnvironmentRule) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]EnvironmentRule(nil), a...), append([]EnvironmentRule(nil), b...)
	sort.Slice(sa, func(i, j int) bool { return sa[i].Key < sa[j].Key })
	sort.Slice(sb, func(i, j int) bool { return sb[i].Key < sb[j].Key })
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string(nil), a...), append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
