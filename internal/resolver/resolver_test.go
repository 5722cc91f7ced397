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

package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/go-logr/logr"

	"github.com/altairalabs/componenthost/internal/component"
)

func TestIdFromPathUsesFileStem(t *testing.T) {
	got := idFromPath("/var/components/weather-tool.wasm")
	if got != component.ID("weather-tool") {
		t.Errorf("idFromPath = %q, want %q", got, "weather-tool")
	}
}

func TestIdFromPathNoExtension(t *testing.T) {
	got := idFromPath("/var/components/weather-tool")
	if got != component.ID("weather-tool") {
		t.Errorf("idFromPath = %q, want %q", got, "weather-tool")
	}
}

func TestIdFromPathRootFallsBackToHash(t *testing.T) {
	got := idFromPath("/")
	want := component.ID(hashID("/"))
	if got != want {
		t.Errorf("idFromPath(%q) = %q, want hash fallback %q", "/", got, want)
	}
}

func TestIdFromURIStripsQueryAndFragment(t *testing.T) {
	got := idFromURI("https://example.com/artifacts/weather-tool.wasm?version=2#section")
	if got != component.ID("weather-tool") {
		t.Errorf("idFromURI = %q, want %q", got, "weather-tool")
	}
}

func TestIdFromURIBareHostFallsBackToHash(t *testing.T) {
	uri := "oci://ghcr.io"
	got := idFromURI(uri)
	want := component.ID(hashID(uri))
	if got != want {
		t.Errorf("idFromURI(%q) = %q, want hash fallback %q", uri, got, want)
	}
}

func TestIdFromURIInvalidURIFallsBackToHash(t *testing.T) {
	uri := "://not a valid uri"
	got := idFromURI(uri)
	want := component.ID(hashID(uri))
	if got != want {
		t.Errorf("idFromURI(%q) = %q, want hash fallback %q", uri, got, want)
	}
}

func TestHashIDIsTwelveHexChars(t *testing.T) {
	got := hashID("some-uri")
	if len(got) != 12 {
		t.Fatalf("hashID length = %d, want 12", len(got))
	}
	sum := sha256.Sum256([]byte("some-uri"))
	want := hex.EncodeToString(sum[:])[:12]
	if got != want {
		t.Errorf("hashID = %q, want %q", got, want)
	}
}

func TestResolveDispatchesByScheme(t *testing.T) {
	r := New(logr.Discard(), t.TempDir(), 0, 0)
	ctx := context.Background()

	local, err := r.Resolve(ctx, "/tmp/foo.wasm")
	if err != nil {
		t.Fatalf("Resolve(local): %v", err)
	}
	if local.ComponentID != component.ID("foo") {
		t.Errorf("local ComponentID = %q, want %q", local.ComponentID, "foo")
	}
	if local.Resource.LocalPath != "/tmp/foo.wasm" {
		t.Errorf("local Resource.LocalPath = %q, want %q", local.Resource.LocalPath, "/tmp/foo.wasm")
	}

	fileScheme, err := r.Resolve(ctx, "file:///tmp/bar.wasm")
	if err != nil {
		t.Fatalf("Resolve(file://): %v", err)
	}
	if fileScheme.Resource.LocalPath != "/tmp/bar.wasm" {
		t.Errorf("file:// Resource.LocalPath = %q, want %q", fileScheme.Resource.LocalPath, "/tmp/bar.wasm")
	}
}
