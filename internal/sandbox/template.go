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

// Package sandbox translates a policy document into the concrete,
// per-invocation sandbox configuration: preopened directories, the allowed
// network host set, exposed environment variables, and the memory cap.
package sandbox

import (
	"fmt"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/altairalabs/componenthost/internal/policy"
)

// FilePerm and DirPerm mirror the coarse read/write/mutate bits a wasi
// preopen needs; they are not OS file mode bits.
type FilePerm uint8

const (
	FileRead FilePerm = 1 << iota
	FileWrite
)

type DirPerm uint8

const (
	DirRead DirPerm = 1 << iota
	DirMutate
)

// PreopenedDir is one filesystem preopen derived from a "fs://" storage
// rule: GuestPath is the URI body, HostPath is that body joined under the
// component's storage directory.
type PreopenedDir struct {
	GuestPath string
	HostPath  string
	FilePerms FilePerm
	DirPerms  DirPerm
}

// NetworkPerms tracks the coarse wasi-sockets capabilities a sandbox needs.
// TCP and DNS lookup are required for hostname resolution upstream of the
// HTTP filter, so both follow whether any network rule exists at all; UDP
// is a separate, explicitly granted flag.
type NetworkPerms struct {
	AllowTCP          bool
	AllowUDP          bool
	AllowIPNameLookup bool
}

// Template is the policy-derived, cheaply-cloned sandbox configuration. The
// lifecycle manager turns one Template into a fresh per-call sandbox State;
// templates are plain data and are never shared between call instances.
type Template struct {
	AllowStdout bool
	AllowStderr bool
	AllowArgs   bool

	NetworkPerms  NetworkPerms
	AllowedHosts  map[string]bool
	PreopenedDirs []PreopenedDir
	ConfigVars    map[string]string
	MemoryLimit   *uint64 // bytes; nil means unbounded
}

// Build derives a Template from doc. componentDir is the host directory
// filesystem preopens are rooted under (typically "<storage root>/<id>").
// secrets are merged in at the lowest precedence, overridden by any
// environment.allow entry present in hostEnv.
func Build(doc *policy.Document, componentDir string, secrets map[string]string, hostEnv map[string]string) (*Template, error) {
	tmpl := &Template{
		AllowStdout:  true,
		AllowStderr:  true,
		AllowArgs:    true,
		AllowedHosts: make(map[string]bool),
		ConfigVars:   make(map[string]string),
	}

	if doc.Permissions.Network != nil && len(doc.Permissions.Network.Allow) > 0 {
		tmpl.NetworkPerms.AllowTCP = true
		tmpl.NetworkPerms.AllowIPNameLookup = true
		for _, rule := range doc.Permissions.Network.Allow {
			tmpl.AllowedHosts[rule.Host] = true
			if rule.UDP {
				tmpl.NetworkPerms.AllowUDP = true
			}
		}
	}

	if doc.Permissions.Storage != nil {
		dirs, err := buildPreopens(doc.Permissions.Storage.Allow, componentDir)
		if err != nil {
			return nil, err
		}
		tmpl.PreopenedDirs = dirs
	}

	for k, v := range secrets {
		tmpl.ConfigVars[k] = v
	}
	if doc.Permissions.Environment != nil {
		for _, rule := range doc.Permissions.Environment.Allow {
			if v, ok := hostEnv[rule.Key]; ok {
				tmpl.ConfigVars[rule.Key] = v
			}
		}
	}

	limit, err := memoryLimitBytes(doc.Permissions.Resources)
	if err != nil {
		return nil, err
	}
	tmpl.MemoryLimit = limit

	return tmpl, nil
}

func buildPreopens(rules []policy.StorageRule, componentDir string) ([]PreopenedDir, error) {
	byGuestPath := make(map[string]*PreopenedDir)
	var order []string

	for _, rule := range rules {
		guestPath, ok := strings.CutPrefix(rule.URI, "fs://")
		if !ok {
			continue // only fs:// preopens are honored in this revision
		}
		hostPath, err := securejoin.SecureJoin(componentDir, guestPath)
		if err != nil {
			return nil, fmt.Errorf("joining preopen path %q: %w", guestPath, err)
		}

		d, exists := byGuestPath[guestPath]
		if !exists {
			d = &PreopenedDir{GuestPath: guestPath, HostPath: hostPath}
			byGuestPath[guestPath] = d
			order = append(order, guestPath)
		}
		for _, mode := range rule.Access {
			switch mode {
			case "read":
				d.FilePerms |= FileRead
				d.DirPerms |= DirRead
			case "write":
				d.FilePerms |= FileWrite
				d.DirPerms |= DirRead | DirMutate
			}
		}
	}

	dirs := make([]PreopenedDir, 0, len(order))
	for _, g := range order {
		dirs = append(dirs, *byGuestPath[g])
	}
	return dirs, nil
}

func memoryLimitBytes(res *policy.ResourcePermissions) (*uint64, error) {
	if res == nil {
		return nil, nil
	}
	if res.Limits != nil && res.Limits.Memory != "" {
		q, err := resource.ParseQuantity(res.Limits.Memory)
		if err != nil {
			return nil, fmt.Errorf("invalid resources.limits.memory %q: %w", res.Limits.Memory, err)
		}
		v := uint64(q.Value())
		return &v, nil
	}
	if res.Memory != nil {
		// Legacy form: a bare integer interpreted as MiB.
		q := resource.MustParse(fmt.Sprintf("%dMi", *res.Memory))
		v := uint64(q.Value())
		return &v, nil
	}
	return nil, nil
}
