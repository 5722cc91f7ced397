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

package sandbox

import (
	"fmt"
	"net/url"
	"sync"
)

// PermissionError is recorded by a host-side gate (HTTP, filesystem) when
// it refuses an operation. The Wasm call itself returns only a generic
// trap/error; the executor prefers this record over that raw error when
// translating the failure for the caller.
type PermissionError struct {
	Host string // set for network denials
	URI  string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("network permission denied: host=%q uri=%q", e.Host, e.URI)
}

// State is built fresh for every invocation from a Template; sandbox
// instances are never shared across calls. It carries the single-slot
// permission-error cell the host gates and the executor both touch.
type State struct {
	Template *Template

	mu   sync.Mutex
	last *PermissionError
}

// NewState creates a per-call sandbox state from tmpl.
func NewState(tmpl *Template) *State {
	return &State{Template: tmpl}
}

// RecordPermissionError stores err as the most recent permission denial.
func (s *State) RecordPermissionError(err *PermissionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = err
}

// LastPermissionError returns the most recently recorded denial, if any.
func (s *State) LastPermissionError() *PermissionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// CheckOutboundHost is the HTTP gateway's authoritative gate: before each
// outbound request, extract the host from the request URI and
// look it up in the template's allowed host set. On miss it records a
// PermissionError on the state and returns an error that fails the
// request.
func (s *State) CheckOutboundHost(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing outbound request uri %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if s.Template.AllowedHosts[host] {
		return nil
	}
	permErr := &PermissionError{Host: host, URI: rawURL}
	s.RecordPermissionError(permErr)
	return permErr
}
