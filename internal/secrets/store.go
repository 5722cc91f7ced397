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

// Package secrets owns one key/value sidecar per component
// ("<root>/<id>.json", mode 0600), merged into the sandbox environment as
// the lowest-precedence config_vars source.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/altairalabs/componenthost/internal/component"
)

// Store owns one secrets sidecar per component, writes serialized per id via
// temp-file-then-rename so concurrent readers never see a torn file.
type Store struct {
	root string
	log  logr.Logger

	mu    sync.Mutex
	locks map[component.ID]*sync.Mutex
}

// NewStore creates a secrets store rooted at dir.
func NewStore(dir string, log logr.Logger) *Store {
	return &Store{root: dir, log: log, locks: make(map[component.ID]*sync.Mutex)}
}

func (s *Store) sidecarPath(id component.ID) string {
	return filepath.Join(s.root, string(id)+".json")
}

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

// Get returns the full key/value map for id, or an empty map if no sidecar
// exists yet.
func (s *Store) Get(id component.ID) (map[string]string, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return s.read(id)
}

func (s *Store) read(id component.ID) (map[string]string, error) {
	data, err := os.ReadFile(s.sidecarPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets for %s: %w", id, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decoding secrets for %s: %w", id, err)
	}
	return values, nil
}

// List returns the secret keys for id, sorted, and their values only when
// reveal is true (the values are otherwise withheld entirely rather than
// masked, so a listing never leaks length or shape).
func (s *Store) List(id component.ID, reveal bool) (map[string]string, []string, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	values, err := s.read(id)
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if !reveal {
		return nil, keys, nil
	}
	return values, keys, nil
}

// Set merges kv into id's secrets, overwriting any existing keys, and
// persists the result.
func (s *Store) Set(id component.ID, kv map[string]string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	values, err := s.read(id)
	if err != nil {
		return err
	}
	for k, v := range kv {
		values[k] = v
	}
	if err := s.persist(id, values); err != nil {
		return err
	}
	s.log.Info("secrets updated", "component", id, "keys", len(kv))
	return nil
}

// Delete removes the named keys from id's secrets, persisting the result.
// Keys that are absent are ignored.
func (s *Store) Delete(id component.ID, keys []string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	values, err := s.read(id)
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}
	if err := s.persist(id, values); err != nil {
		return err
	}
	s.log.Info("secrets deleted", "component", id, "keys", len(keys))
	return nil
}

func (s *Store) persist(id component.ID, values map[string]string) error {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		return fmt.Errorf("creating secrets root: %w", err)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshaling secrets for %s: %w", id, err)
	}

	final := s.sidecarPath(id)
	tmp, err := os.CreateTemp(s.root, string(id)+".secrets.*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp secrets file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting temp secrets file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp secrets file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp secrets file: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming secrets file into place: %w", err)
	}
	return nil
}
