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
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/componenthost/internal/component"
)

// Info is the runtime view returned by get-policy.
type Info struct {
	PolicyID  string    `json:"policy_id"`
	SourceURI string    `json:"source_uri,omitempty"`
	LocalPath string    `json:"local_path"`
	CreatedAt time.Time `json:"created_at"`
}

type entry struct {
	mu        sync.Mutex
	doc       *Document
	info      Info
	hasPolicy bool
}

// Store owns one policy document per component, persisted as
// "<root>/<id>.policy.yaml" sidecars, written via temp-file-then-rename so
// concurrent readers never observe a torn write.
type Store struct {
	root string
	log  logr.Logger

	mu      sync.RWMutex
	entries map[component.ID]*entry
}

// NewStore creates a policy store rooted at dir.
func NewStore(dir string, log logr.Logger) *Store {
	return &Store{root: dir, log: log, entries: make(map[component.ID]*entry)}
}

func (s *Store) sidecarPath(id component.ID) string {
	return filepath.Join(s.root, string(id)+".policy.yaml")
}

func (s *Store) entryFor(id component.ID) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	return e
}

// AttachPolicy loads a policy document's bytes, parses and installs it as
// the component's document, replacing any prior one, and persists it.
func (s *Store) AttachPolicy(id component.ID, sourceURI string, data []byte) error {
	doc, err := Parse(data)
	if err != nil {
		return component.Wrap(component.KindSchemaError, "invalid policy document", err)
	}
	return s.install(id, doc, sourceURI)
}

// AttachDocument installs an already-parsed document as the component's
// document, replacing any prior one, and persists it.
func (s *Store) AttachDocument(id component.ID, doc *Document, sourceURI string) error {
	return s.install(id, doc, sourceURI)
}

func (s *Store) install(id component.ID, doc *Document, sourceURI string) error {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.persist(id, doc); err != nil {
		return err
	}
	e.doc = doc
	e.hasPolicy = true
	e.info = Info{
		PolicyID:  string(id),
		SourceURI: sourceURI,
		LocalPath: s.sidecarPath(id),
		CreatedAt: time.Now(),
	}
	s.log.Info("policy attached", "component", id, "source", sourceURI)
	return nil
}

// DetachPolicy removes the document from memory and deletes the sidecar.
func (s *Store) DetachPolicy(id component.ID) error {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Remove(s.sidecarPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing policy sidecar for %s: %w", id, err)
	}
	e.doc = nil
	e.hasPolicy = false
	e.info = Info{}
	return nil
}

// GetPolicyInfo returns the policy metadata for id, or ok=false if absent.
func (s *Store) GetPolicyInfo(id component.ID) (Info, bool) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info, e.hasPolicy
}

// Document returns the component's current policy document, or the empty
// deny-all document if none is attached.
func (s *Store) Document(id component.ID) *Document {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return Empty("")
	}
	return e.doc.Clone()
}

// Grant merges a rule into the component's document (creating one with a
// default description if absent), persists it, and returns the updated
// document.
func (s *Store) Grant(id component.ID, kind Kind, detail Detail) (*Document, error) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	base := e.doc
	if base == nil {
		base = Empty(fmt.Sprintf("policy for component %s", id))
	}
	updated, err := Grant(base, kind, detail)
	if err != nil {
		return nil, err
	}
	if err := s.persist(id, updated); err != nil {
		return nil, err
	}
	e.doc = updated
	if !e.hasPolicy {
		e.hasPolicy = true
		e.info = Info{PolicyID: string(id), LocalPath: s.sidecarPath(id), CreatedAt: time.Now()}
	}
	return updated, nil
}

// Revoke removes a matching rule, persisting the result. No error if the
// component has no policy or the rule is absent.
func (s *Store) Revoke(id component.ID, kind Kind, detail Detail) (*Document, error) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc == nil {
		return Empty(""), nil
	}
	updated, err := Revoke(e.doc, kind, detail)
	if err != nil {
		return nil, err
	}
	if err := s.persist(id, updated); err != nil {
		return nil, err
	}
	e.doc = updated
	return updated, nil
}

// RevokeStorageByURI removes every access mode granted for uri.
func (s *Store) RevokeStorageByURI(id component.ID, uri string) (*Document, error) {
	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc == nil {
		return Empty(""), nil
	}
	updated := RevokeStorageByURI(e.doc, uri)
	if err := s.persist(id, updated); err != nil {
		return nil, err
	}
	e.doc = updated
	return updated, nil
}

// Reset deletes the document and its sidecar entirely.
func (s *Store) Reset(id component.ID) error {
	return s.DetachPolicy(id)
}

// RestoreFromDisk loads the sidecar for id into memory if one exists.
func (s *Store) RestoreFromDisk(id component.ID) error {
	path := s.sidecarPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading policy sidecar for %s: %w", id, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return component.Wrap(component.KindSchemaError, fmt.Sprintf("invalid policy sidecar for %s", id), err)
	}

	e := s.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc = doc
	e.hasPolicy = true
	e.info = Info{PolicyID: string(id), LocalPath: path, CreatedAt: time.Now()}
	return nil
}

// persist writes doc to the sidecar via temp-file + rename so concurrent
// readers always see a complete document.
func (s *Store) persist(id component.ID, doc *Document) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating policy root: %w", err)
	}
	data, err := doc.Serialize()
	if err != nil {
		return fmt.Errorf("serializing policy for %s: %w", id, err)
	}

	final := s.sidecarPath(id)
	tmp, err := os.CreateTemp(s.root, string(id)+".policy.*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp policy file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp policy file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp policy file: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming policy file into place: %w", err)
	}
	return nil
}
