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

package policy

import (
	"fmt"
	"sort"

	"github.com/altairalabs/componenthost/internal/component"
)

// Detail is the JSON-decoded payload of a grant/revoke call. Its shape
// depends on Kind: network wants "host" (+ optional "udp"), storage wants
// "uri" (+ "access"), environment wants "key", resource wants "memory".
type Detail map[string]any

// Grant inserts a rule into the document's allow list with set semantics:
// granting an already-present rule is a no-op (idempotent).
func Grant(doc *Document, kind Kind, detail Detail) (*Document, error) {
	out := doc.Clone()
	switch kind {
	case KindNetwork:
		rule, err := networkRuleFrom(detail)
		if err != nil {
			return nil, err
		}
		out.Permissions.Network = grantNetwork(out.Permissions.Network, rule)
	case KindStorage:
		rule, err := storageRuleFrom(detail)
		if err != nil {
			return nil, err
		}
		out.Permissions.Storage = grantStorage(out.Permissions.Storage, rule)
	case KindEnvironment:
		rule, err := environmentRuleFrom(detail)
		if err != nil {
			return nil, err
		}
		out.Permissions.Environment = grantEnvironment(out.Permissions.Environment, rule)
	case KindResource:
		if err := applyResourceDetail(out, detail); err != nil {
			return nil, err
		}
	default:
		return nil, component.New(component.KindSchemaError, fmt.Sprintf("unknown permission kind %q", kind))
	}
	return out, nil
}

// Revoke removes a matching rule; it is a no-op if the rule is absent.
func Revoke(doc *Document, kind Kind, detail Detail) (*Document, error) {
	out := doc.Clone()
	switch kind {
	case KindNetwork:
		rule, err := networkRuleFrom(detail)
		if err != nil {
			return nil, err
		}
		out.Permissions.Network = revokeNetwork(out.Permissions.Network, rule)
	case KindStorage:
		rule, err := storageRuleFrom(detail)
		if err != nil {
			return nil, err
		}
		out.Permissions.Storage = revokeStorageExact(out.Permissions.Storage, rule)
	case KindEnvironment:
		rule, err := environmentRuleFrom(detail)
		if err != nil {
			return nil, err
		}
		out.Permissions.Environment = revokeEnvironment(out.Permissions.Environment, rule)
	default:
		return nil, component.New(component.KindSchemaError, fmt.Sprintf("unknown permission kind %q", kind))
	}
	return out, nil
}

// RevokeStorageByURI removes every access mode granted for uri.
func RevokeStorageByURI(doc *Document, uri string) *Document {
	out := doc.Clone()
	if out.Permissions.Storage == nil {
		return out
	}
	kept := out.Permissions.Storage.Allow[:0]
	for _, r := range out.Permissions.Storage.Allow {
		if r.URI != uri {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		out.Permissions.Storage = nil
	} else {
		out.Permissions.Storage.Allow = kept
	}
	return out
}

func networkRuleFrom(d Detail) (NetworkRule, error) {
	host, _ := d["host"].(string)
	if host == "" {
		return NetworkRule{}, component.New(component.KindSchemaError, "network permission requires a non-empty host")
	}
	udp, _ := d["udp"].(bool)
	return NetworkRule{Host: host, UDP: udp}, nil
}

func storageRuleFrom(d Detail) (StorageRule, error) {
	uri, _ := d["uri"].(string)
	if uri == "" {
		return StorageRule{}, component.New(component.KindSchemaError, "storage permission requires a non-empty uri")
	}
	var access []string
	switch v := d["access"].(type) {
	case []string:
		access = v
	case []any:
		for _, a := range v {
			if s, ok := a.(string); ok {
				access = append(access, s)
			}
		}
	}
	if len(access) == 0 {
		access = []string{"read"}
	}
	access = dedupStrings(access)
	sort.Strings(access)
	return StorageRule{URI: uri, Access: access}, nil
}

func environmentRuleFrom(d Detail) (EnvironmentRule, error) {
	key, _ := d["key"].(string)
	if key == "" {
		return EnvironmentRule{}, component.New(component.KindSchemaError, "environment permission requires a non-empty key")
	}
	return EnvironmentRule{Key: key}, nil
}

func grantNetwork(p *NetworkPermissions, rule NetworkRule) *NetworkPermissions {
	if p == nil {
		p = &NetworkPermissions{}
	}
	for _, r := range p.Allow {
		if r == rule {
			return p
		}
	}
	p.Allow = append(p.Allow, rule)
	return p
}

func revokeNetwork(p *NetworkPermissions, rule NetworkRule) *NetworkPermissions {
	if p == nil {
		return nil
	}
	kept := p.Allow[:0]
	for _, r := range p.Allow {
		if r != rule {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	p.Allow = kept
	return p
}

func grantStorage(p *StoragePermissions, rule StorageRule) *StoragePermissions {
	if p == nil {
		p = &StoragePermissions{}
	}
	for i, r := range p.Allow {
		if r.URI == rule.URI {
			merged := dedupStrings(append(append([]string(nil), r.Access...), rule.Access...))
			sort.Strings(merged)
			p.Allow[i].Access = merged
			return p
		}
	}
	p.Allow = append(p.Allow, rule)
	return p
}

// revokeStorageExact drops the named URI's rule outright rather than
// subtracting individual access modes, matching the all-modes-removed
// behavior the revoke-storage-permission built-in tool documents.
func revokeStorageExact(p *StoragePermissions, rule StorageRule) *StoragePermissions {
	if p == nil {
		return nil
	}
	kept := p.Allow[:0]
	for _, r := range p.Allow {
		if r.URI != rule.URI {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	p.Allow = kept
	return p
}

func revokeEnvironment(p *EnvironmentPermissions, rule EnvironmentRule) *EnvironmentPermissions {
	if p == nil {
		return nil
	}
	kept := p.Allow[:0]
	for _, r := range p.Allow {
		if r != rule {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	p.Allow = kept
	return p
}

func grantEnvironment(p *EnvironmentPermissions, rule EnvironmentRule) *EnvironmentPermissions {
	if p == nil {
		p = &EnvironmentPermissions{}
	}
	for _, r := range p.Allow {
		if r == rule {
			return p
		}
	}
	p.Allow = append(p.Allow, rule)
	return p
}

func applyResourceDetail(doc *Document, d Detail) error {
	if doc.Permissions.Resources == nil {
		doc.Permissions.Resources = &ResourcePermissions{}
	}
	if mem, ok := d["memory"].(string); ok && mem != "" {
		doc.Permissions.Resources.Limits = &ResourceLimits{Memory: mem}
		doc.Permissions.Resources.Memory = nil
		return nil
	}
	return component.New(component.KindSchemaError, "resource permission requires a memory quantity string")
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
