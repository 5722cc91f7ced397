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

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/altairalabs/componenthost/internal/component"
)

func TestInstallAndRemoveArtifacts(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.InstallArtifact("fetch", Resource{Bytes: []byte("wasmbytes")}); err != nil {
		t.Fatalf("install: %v", err)
	}
	path, _ := s.WasmPath("fetch")
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "wasmbytes" {
		t.Fatalf("expected installed artifact, got data=%q err=%v", data, err)
	}

	if err := s.RemoveArtifacts("fetch"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected artifact removed, err=%v", err)
	}

	// Removing again must be idempotent.
	if err := s.RemoveArtifacts("fetch"); err != nil {
		t.Fatalf("second remove should be idempotent: %v", err)
	}
}

func TestMetadataStampInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.InstallArtifact("fetch", Resource{Bytes: []byte("v1")}); err != nil {
		t.Fatalf("install: %v", err)
	}
	path, _ := s.WasmPath("fetch")
	stamp, err := CreateValidationStamp(path, false)
	if err != nil {
		t.Fatalf("stamp: %v", err)
	}
	meta := &component.Metadata{ComponentID: "fetch", ValidationStamp: stamp}
	if err := s.WriteMetadata("fetch", meta); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	valid, err := ValidateStamp(path, stamp)
	if err != nil || !valid {
		t.Fatalf("expected valid stamp, got valid=%v err=%v", valid, err)
	}

	if err := os.WriteFile(path, []byte("v2-longer-content"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	valid, err = ValidateStamp(path, stamp)
	if err != nil {
		t.Fatalf("validate after change: %v", err)
	}
	if valid {
		t.Fatal("expected stamp to be invalidated after content size change")
	}
}

func TestInstallArtifactLocalNoopWhenSamePath(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	target, _ := s.WasmPath("fetch")
	if err := os.WriteFile(target, []byte("already-here"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := s.InstallArtifact("fetch", Resource{LocalPath: target}); err != nil {
		t.Fatalf("install noop: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "already-here" {
		t.Fatalf("expected file untouched, got %q err=%v", data, err)
	}
}

func TestComponentDirUnderRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cdir, err := s.ComponentDir("fetch")
	if err != nil {
		t.Fatalf("component dir: %v", err)
	}
	if filepath.Dir(cdir) != dir {
		t.Fatalf("expected component dir under root, got %s", cdir)
	}
}
