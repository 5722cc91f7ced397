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

// Package storage owns the on-disk layout under the component root:
// "<id>.wasm", "<id>.cwasm", "<id>.metadata.json", "<id>.policy.yaml", and
// a "downloads/" scratch area for HTTP/OCI fetches.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/altairalabs/componenthost/internal/component"
)

// Resource is what the artifact resolver hands back: either a path to a
// file already on local disk, or owned bytes that must be written out.
type Resource struct {
	LocalPath string
	Bytes     []byte
}

// Store owns the component root directory and serializes mutations per id.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[component.ID]*sync.Mutex
}

// New creates a Store rooted at dir, creating it (and its downloads
// subdirectory) if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "downloads"), 0o755); err != nil {
		return nil, fmt.Errorf("creating component root: %w", err)
	}
	return &Store{root: dir, locks: make(map[component.ID]*sync.Mutex)}, nil
}

// Root returns the component storage root directory.
func (s *Store) Root() string { return s.root }

// DownloadsDir returns the scratch directory for HTTP/OCI fetches.
func (s *Store) DownloadsDir() string { return filepath.Join(s.root, "downloads") }

func (s *Store) lockFor(id component.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) wasmPath(id component.ID) (string, error) {
	return securejoin.SecureJoin(s.root, string(id)+".wasm")
}

func (s *Store) cwasmPath(id component.ID) (string, error) {
	return securejoin.SecureJoin(s.root, string(id)+".cwasm")
}

func (s *Store) metadataPath(id component.ID) (string, error) {
	return securejoin.SecureJoin(s.root, string(id)+".metadata.json")
}

// WasmPath exposes the component binary path for callers that need it
// directly (compile, preopen base directory derivation).
func (s *Store) WasmPath(id component.ID) (string, error) { return s.wasmPath(id) }

// CwasmPath exposes the precompiled cache path.
func (s *Store) CwasmPath(id component.ID) (string, error) { return s.cwasmPath(id) }

// ComponentDir returns "<root>/<id>" used as the base for filesystem
// preopens granted to that component.
func (s *Store) ComponentDir(id component.ID) (string, error) {
	return securejoin.SecureJoin(s.root, string(id))
}

// InstallArtifact places resource bytes at "<id>.wasm". If resource is
// already a local file at the target path, this is a no-op.
func (s *Store) InstallArtifact(id component.ID, resource Resource) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	target, err := s.wasmPath(id)
	if err != nil {
		return err
	}

	if resource.LocalPath != "" {
		if sameFile(resource.LocalPath, target) {
			return nil
		}
		data, err := os.ReadFile(resource.LocalPath)
		if err != nil {
			return fmt.Errorf("reading resolved artifact: %w", err)
		}
		return writeFileAtomic(target, data)
	}
	return writeFileAtomic(target, resource.Bytes)
}

// RemoveArtifacts idempotently removes ".wasm", ".cwasm", ".metadata.json"
// for id. Any error other than "not found" is returned before the caller
// touches in-memory state.
func (s *Store) RemoveArtifacts(id component.ID) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	paths := []func(component.ID) (string, error){s.wasmPath, s.cwasmPath, s.metadataPath}
	for _, pathFn := range paths {
		p, err := pathFn(id)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

// WriteMetadata opportunistically persists the tool index sidecar.
func (s *Store) WriteMetadata(id component.ID, meta *component.Metadata) error {
	path, err := s.metadataPath(id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %s: %w", id, err)
	}
	return writeFileAtomic(path, data)
}

// ReadMetadata loads the sidecar for id, or returns ok=false if absent.
func (s *Store) ReadMetadata(id component.ID) (*component.Metadata, bool, error) {
	path, err := s.metadataPath(id)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading metadata for %s: %w", id, err)
	}
	meta := &component.Metadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, false, fmt.Errorf("decoding metadata for %s: %w", id, err)
	}
	return meta, true, nil
}

// ValidateStamp reports whether stamp still matches the current state of
// file (size and mtime must both match).
func ValidateStamp(file string, stamp component.ValidationStamp) (bool, error) {
	info, err := os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", file, err)
	}
	if info.Size() != stamp.FileSize {
		return false, nil
	}
	if !info.ModTime().Equal(stamp.ModTime) {
		return false, nil
	}
	return true, nil
}

// CreateValidationStamp builds a fresh stamp for path, optionally computing
// its SHA256 content hash.
func CreateValidationStamp(path string, includeHash bool) (component.ValidationStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return component.ValidationStamp{}, fmt.Errorf("stat %s: %w", path, err)
	}
	stamp := component.ValidationStamp{FileSize: info.Size(), ModTime: info.ModTime()}
	if includeHash {
		hash, err := hashFile(path)
		if err != nil {
			return component.ValidationStamp{}, err
		}
		stamp.ContentHash = hash
	}
	return stamp, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
