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

package dispatcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/componenthost/internal/engine"
	"github.com/altairalabs/componenthost/internal/lifecycle"
	"github.com/altairalabs/componenthost/internal/policy"
	"github.com/altairalabs/componenthost/internal/resolver"
	"github.com/altairalabs/componenthost/internal/secrets"
	"github.com/altairalabs/componenthost/internal/storage"
)

var emptyModule = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

func newTestDispatcher(t *testing.T, disableBuiltins bool) *Dispatcher {
	t.Helper()
	ctx := context.Background()

	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	policyStore := policy.NewStore(t.TempDir(), logr.Discard())
	secretsStore := secrets.NewStore(t.TempDir(), logr.Discard())
	res := resolver.New(logr.Discard(), t.TempDir(), 5*time.Second, 5*time.Second)

	eng, err := engine.New(ctx, logr.Discard(), "")
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close(ctx) })

	manager := lifecycle.New(logr.Discard(), res, store, policyStore, secretsStore, eng, map[string]string{}, 1, nil)
	return New(logr.Discard(), manager, disableBuiltins)
}

func writeEmptyWasm(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "widget.wasm")
	if err := os.WriteFile(p, emptyModule, 0o644); err != nil {
		t.Fatalf("writing fixture wasm: %v", err)
	}
	return p
}

func TestDispatchLoadAndListComponents(t *testing.T) {
	d := newTestDispatcher(t, false)
	path := writeEmptyWasm(t)

	loadArgs, _ := json.Marshal(map[string]string{"path": path})
	result := d.Dispatch(context.Background(), "load-component", loadArgs)
	if result.IsError {
		t.Fatalf("expected load to succeed, got %+v", result)
	}

	listResult := d.Dispatch(context.Background(), "list-components", []byte("{}"))
	if listResult.IsError {
		t.Fatalf("expected list to succeed, got %+v", listResult)
	}
}

func TestDispatchBuiltinsDisabled(t *testing.T) {
	d := newTestDispatcher(t, true)
	result := d.Dispatch(context.Background(), "list-components", []byte("{}"))
	if !result.IsError {
		t.Fatal("expected BuiltinsDisabled error when builtins are disabled")
	}
}

func TestDispatchUnknownComponentCallFallsThrough(t *testing.T) {
	d := newTestDispatcher(t, false)
	result := d.Dispatch(context.Background(), "not-a-builtin-tool", []byte("{}"))
	if !result.IsError {
		t.Fatal("expected unknown tool dispatch to error")
	}
}

func TestSanitizeArgsRedactsSensitiveKeys(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"password": "hunter2", "path": "/tmp/x"})
	sanitized := sanitizeArgsForLog(raw)
	if !strings.Contains(sanitized, "<redacted>") {
		t.Fatalf("expected password to be redacted, got %s", sanitized)
	}
	if strings.Contains(sanitized, "hunter2") {
		t.Fatal("expected raw secret value to be absent from sanitized output")
	}
}

func TestSanitizeArgsTruncatesLongStrings(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	raw, _ := json.Marshal(map[string]any{"note": string(long)})
	sanitized := sanitizeArgsForLog(raw)
	if !strings.Contains(sanitized, "...(truncated)") {
		t.Fatalf("expected truncation marker, got first 50 chars: %s", sanitized[:50])
	}
}

func TestCanonicalizeOutputSchemaWrapsScalar(t *testing.T) {
	canon := canonicalizeOutputSchema(map[string]any{"type": "string"})
	if canon["type"] != "object" {
		t.Fatalf("expected canonical schema to be an object, got %+v", canon)
	}
	props, _ := canon["properties"].(map[string]any)
	if _, ok := props["result"]; !ok {
		t.Fatalf("expected wrapped scalar under 'result', got %+v", canon)
	}
}

func TestCanonicalizeOutputSchemaConvertsTupleArray(t *testing.T) {
	schema := map[string]any{
		"items": []any{map[string]any{"type": "string"}, map[string]any{"type": "number"}},
	}
	canon := canonicalizeOutputSchema(schema)
	props, _ := canon["properties"].(map[string]any)
	if _, ok := props["val0"]; !ok {
		t.Fatalf("expected positional key val0, got %+v", canon)
	}
	if _, ok := props["val1"]; !ok {
		t.Fatalf("expected positional key val1, got %+v", canon)
	}
}

func TestAlignToSchemaWrapsScalarResult(t *testing.T) {
	aligned := alignToSchema(float64(42), map[string]any{"type": "number"})
	m, ok := aligned.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", aligned)
	}
	if m["result"] != float64(42) {
		t.Fatalf("unexpected aligned value: %+v", m)
	}
}

func TestHandleSearchComponentsRanksExactNameHighest(t *testing.T) {
	d := newTestDispatcher(t, false)
	args, _ := json.Marshal(map[string]string{"query": "weather-forecast"})
	result := d.Dispatch(context.Background(), "search-components", args)
	if result.IsError {
		t.Fatalf("expected search to succeed, got %+v", result)
	}
	payload, ok := result.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("expected structured content map, got %T", result.StructuredContent)
	}
	results, ok := payload["results"].([]searchResult)
	if !ok || len(results) == 0 {
		t.Fatalf("expected at least one result, got %+v", payload)
	}
	if results[0].Name != "weather-forecast" {
		t.Fatalf("expected exact name match to rank first, got %+v", results[0])
	}
}

func TestValidateAgainstSchemaRejectsMissingRequiredField(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"location"},
		"properties": map[string]any{
			"location": map[string]any{"type": "string"},
		},
	}
	args, _ := json.Marshal(map[string]any{})
	if err := validateAgainstSchema(schema, args); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidateAgainstSchemaAcceptsMatchingArgs(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"location"},
		"properties": map[string]any{
			"location": map[string]any{"type": "string"},
		},
	}
	args, _ := json.Marshal(map[string]any{"location": "portland"})
	if err := validateAgainstSchema(schema, args); err != nil {
		t.Fatalf("expected valid arguments to pass, got %v", err)
	}
}

func TestHandleSearchComponentsEmptyQueryReturnsNoResults(t *testing.T) {
	d := newTestDispatcher(t, false)
	result := d.Dispatch(context.Background(), "search-components", []byte("{}"))
	if result.IsError {
		t.Fatalf("expected search to succeed, got %+v", result)
	}
	payload, ok := result.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("expected structured content map, got %T", result.StructuredContent)
	}
	results, ok := payload["results"].([]searchResult)
	if !ok || len(results) != 0 {
		t.Fatalf("expected an empty result list, got %+v", payload["results"])
	}
}
