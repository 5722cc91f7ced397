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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/altairalabs/componenthost/internal/component"
)

var wasmMediaTypes = map[string]bool{
	"application/wasm":                           true,
	"application/vnd.wasm.component.v1":          true,
	"application/vnd.bytecodealliance.wasm.component.layer.v0+wasm": true,
}

var policyMediaTypes = map[string]bool{
	"application/vnd.wasm.policy.v1+yaml":  true,
	"application/vnd.wassette.policy+yaml": true,
	"application/x-yaml":                   true,
	"text/yaml":                            true,
}

// pulledArtifact is the outcome of pulling one OCI reference: the wasm
// binary plus an optional policy body, and anything else retained for
// callers that want it.
type pulledArtifact struct {
	ComponentID    component.ID
	WasmBytes      []byte
	PolicyYAML     []byte
	AdditionalData map[string][]byte
}

// idFromReference normalizes an OCI reference's repository path into the
// Data Model's "<namespace>_<name>" component id: the repository path
// (excluding registry host and tag/digest) with its "/" separators
// collapsed to "_", e.g. "example/hello" from
// "oci://registry/example/hello:latest" becomes "example_hello".
func idFromReference(ref name.Reference) component.ID {
	repo := ref.Context().RepositoryStr()
	repo = strings.Trim(repo, "/")
	if repo == "" {
		return component.ID(hashID(ref.Name()))
	}
	return component.ID(strings.ReplaceAll(repo, "/", "_"))
}

// remoteClient abstracts the subset of go-containerregistry's remote
// package this resolver needs, so tests can substitute a fake registry.
type remoteClient interface {
	Image(ref name.Reference, opts ...remote.Option) (v1.Image, error)
}

type defaultRemoteClient struct{}

func (defaultRemoteClient) Image(ref name.Reference, opts ...remote.Option) (v1.Image, error) {
	return remote.Image(ref, opts...)
}

type ociFetcher struct {
	timeout time.Duration
	client  remoteClient
}

func newOCIFetcher(timeout time.Duration) *ociFetcher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ociFetcher{timeout: timeout, client: defaultRemoteClient{}}
}

// pull fetches the manifest and every layer for reference, verifying each
// layer's digest against the manifest's declared digest and classifying it
// by media type. The first wasm layer and first policy layer found win;
// additional layers of either kind are skipped, and no warning is logged
// or reported for them.
func (f *ociFetcher) pull(ctx context.Context, reference string) (*pulledArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ref, err := name.ParseReference(reference)
	if err != nil {
		return nil, fmt.Errorf("parsing OCI reference %q: %w", reference, err)
	}

	img, err := f.client.Image(ref, remote.WithContext(ctx), remote.WithAuth(authn.Anonymous))
	if err != nil {
		return nil, fmt.Errorf("pulling image %q: %w", reference, err)
	}

	manifest, err := img.Manifest()
	if err != nil {
		return nil, fmt.Errorf("reading manifest for %q: %w", reference, err)
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("listing layers for %q: %w", reference, err)
	}
	if len(manifest.Layers) != len(layers) {
		return nil, fmt.Errorf("manifest declares %d layers but image exposes %d", len(manifest.Layers), len(layers))
	}

	result := &pulledArtifact{ComponentID: idFromReference(ref), AdditionalData: make(map[string][]byte)}
	sawWasm, sawPolicy := false, false

	for i, layer := range layers {
		desc := manifest.Layers[i]
		data, err := readAndVerifyLayer(layer, desc)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, desc.Digest, err)
		}

		mt := string(desc.MediaType)
		switch {
		case wasmMediaTypes[mt]:
			if sawWasm {
				continue
			}
			result.WasmBytes = data
			sawWasm = true
		case policyMediaTypes[mt]:
			if sawPolicy {
				continue
			}
			result.PolicyYAML = data
			sawPolicy = true
		default:
			result.AdditionalData[mt] = data
		}
	}

	if !sawWasm {
		return nil, component.New(component.KindResolveFailed, fmt.Sprintf("no wasm layer found in %q", reference))
	}
	return result, nil
}

func readAndVerifyLayer(layer v1.Layer, desc v1.Descriptor) ([]byte, error) {
	rc, err := layer.Compressed()
	if err != nil {
		return nil, fmt.Errorf("opening layer blob: %w", err)
	}
	defer func() { _ = rc.Close() }()

	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(rc, h))
	if err != nil {
		return nil, fmt.Errorf("reading layer blob: %w", err)
	}

	got := "sha256:" + hex.EncodeToString(h.Sum(nil))
	if want := desc.Digest.String(); got != want {
		return nil, component.Wrap(component.KindDigestMismatch,
			fmt.Sprintf("layer digest mismatch: want %s got %s", want, got), nil)
	}
	return data, nil
}
