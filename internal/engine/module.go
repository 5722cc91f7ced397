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
	"crypto/rand"
	"io"

	"github.com/tetratelabs/wazero"

	"github.com/altairalabs/componenthost/internal/sandbox"
)

// BuildModuleConfig translates a sandbox template, plus the per-call output
// streams and generated module name, into a wazero.ModuleConfig. Guest
// filesystem access and environment are derived from the template. The
// guest always gets the host's wall clock, monotonic clock, sleep, and
// crypto/rand random source; the template does not control these.
func BuildModuleConfig(tmpl *sandbox.Template, name string, stdout, stderr io.Writer) wazero.ModuleConfig {
	fsConfig := wazero.NewFSConfig()
	for _, dir := range tmpl.PreopenedDirs {
		if dir.FilePerms&sandbox.FileWrite != 0 {
			fsConfig = fsConfig.WithDirMount(dir.HostPath, dir.GuestPath)
		} else {
			fsConfig = fsConfig.WithReadOnlyDirMount(dir.HostPath, dir.GuestPath)
		}
	}

	cfg := wazero.NewModuleConfig().
		WithName(name).
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	if tmpl.AllowStdout {
		cfg = cfg.WithStdout(stdout)
	} else {
		cfg = cfg.WithStdout(io.Discard)
	}
	if tmpl.AllowStderr {
		cfg = cfg.WithStderr(stderr)
	} else {
		cfg = cfg.WithStderr(io.Discard)
	}

	for k, v := range tmpl.ConfigVars {
		cfg = cfg.WithEnv(k, v)
	}

	return cfg
}
