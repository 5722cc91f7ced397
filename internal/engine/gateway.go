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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/altairalabs/componenthost/internal/sandbox"
)

type sandboxStateKey struct{}

// WithSandboxState attaches state to ctx so the host-side HTTP gateway can
// reach the per-call sandbox state. The context returned must be the one
// passed to Instantiate and every subsequent Call for that instance.
func WithSandboxState(ctx context.Context, state *sandbox.State) context.Context {
	return context.WithValue(ctx, sandboxStateKey{}, state)
}

func sandboxStateFrom(ctx context.Context) *sandbox.State {
	s, _ := ctx.Value(sandboxStateKey{}).(*sandbox.State)
	return s
}

type httpFetchRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type httpFetchResponse struct {
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
	Error   string            `json:"error,omitempty"`
}

var gatewayClient = &http.Client{Timeout: 30 * time.Second}

// RegisterHostGateway installs the "env" module's http_fetch function: the
// one host-side gate every outbound request a component makes passes
// through. PreInstantiate permits imports from "env" alongside WASI
// preview1 for exactly this function. Registered once per Runtime, before
// any module compiled against it is instantiated.
func (e *Engine) RegisterHostGateway(ctx context.Context) error {
	_, err := e.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(httpFetch).
		Export("http_fetch").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("registering host HTTP gateway: %w", err)
	}
	return nil
}

func httpFetch(ctx context.Context, mod api.Module, argPtr, argLen uint32) uint64 {
	resp := doHTTPFetch(ctx, mod, argPtr, argLen)
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(httpFetchResponse{Error: "marshaling gateway response: " + err.Error()})
	}
	ptr, err := writeBytes(ctx, mod, data)
	if err != nil {
		return 0
	}
	return uint64(ptr)<<32 | uint64(len(data))
}

func doHTTPFetch(ctx context.Context, mod api.Module, argPtr, argLen uint32) httpFetchResponse {
	raw, err := readBytes(ctx, mod, argPtr, argLen)
	if err != nil {
		return httpFetchResponse{Error: "reading request: " + err.Error()}
	}
	var req httpFetchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return httpFetchResponse{Error: "decoding request: " + err.Error()}
	}

	state := sandboxStateFrom(ctx)
	if state == nil {
		return httpFetchResponse{Error: "no sandbox state bound to this call"}
	}
	if err := state.CheckOutboundHost(req.URL); err != nil {
		return httpFetchResponse{Error: err.Error()}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return httpFetchResponse{Error: "building request: " + err.Error()}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := gatewayClient.Do(httpReq)
	if err != nil {
		return httpFetchResponse{Error: "request failed: " + err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpFetchResponse{Error: "reading response: " + err.Error()}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return httpFetchResponse{Status: resp.StatusCode, Headers: headers, Body: string(body)}
}
