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

// Package resolver turns a component source URI into bytes on local disk
// (or a path already there), dispatching on scheme: bare paths and
// "file://" are read directly, "http(s)://" is fetched with a bounded
// timeout, and "oci://" pulls a multi-layer artifact from a registry.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/altairalabs/componenthost/internal/component"
	"github.com/altairalabs/componenthost/internal/storage"
)

// Result is what resolving a URI produces: the component id it derives to,
// the wasm resource ready for storage.Store.InstallArtifact, and an
// optional policy document body pulled alongside it (OCI only).
type Result struct {
	ComponentID component.ID
	Resource    storage.Resource
	PolicyYAML  []byte
}

// Resolver dispatches by URI scheme.
type Resolver struct {
	log         logr.Logger
	httpClient  *httpFetcher
	ociClient   *ociFetcher
	downloadDir string
}

// New builds a Resolver. downloadDir is used as scratch space for HTTP and
// OCI fetches; httpTimeout/ociTimeout bound each respective operation.
func New(log logr.Logger, downloadDir string, httpTimeout, ociTimeout time.Duration) *Resolver {
	return &Resolver{
		log:         log.WithName("resolver"),
		httpClient:  newHTTPFetcher(httpTimeout),
		ociClient:   newOCIFetcher(ociTimeout),
		downloadDir: downloadDir,
	}
}

// Resolve dispatches uri to the local, HTTP, or OCI path.
func (r *Resolver) Resolve(ctx context.Context, uri string) (*Result, error) {
	switch {
	case strings.HasPrefix(uri, "oci://"):
		return r.resolveOCI(ctx, uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return r.resolveHTTP(ctx, uri)
	case strings.HasPrefix(uri, "file://"):
		p := strings.TrimPrefix(uri, "file://")
		return r.resolveLocal(p)
	default:
		return r.resolveLocal(uri)
	}
}

func (r *Resolver) resolveLocal(path string) (*Result, error) {
	id := idFromPath(path)
	return &Result{
		ComponentID: id,
		Resource:    storage.Resource{LocalPath: path},
	}, nil
}

func (r *Resolver) resolveHTTP(ctx context.Context, uri string) (*Result, error) {
	localPath, err := r.httpClient.fetch(ctx, uri, r.downloadDir)
	if err != nil {
		return nil, component.Wrap(component.KindResolveFailed, fmt.Sprintf("fetching %s", uri), err)
	}
	return &Result{
		ComponentID: idFromURI(uri),
		Resource:    storage.Resource{LocalPath: localPath},
	}, nil
}

func (r *Resolver) resolveOCI(ctx context.Context, uri string) (*Result, error) {
	pulled, err := r.ociClient.pull(ctx, strings.TrimPrefix(uri, "oci://"))
	if err != nil {
		return nil, component.Wrap(component.KindResolveFailed, fmt.Sprintf("pulling %s", uri), err)
	}
	return &Result{
		ComponentID: pulled.ComponentID,
		Resource:    storage.Resource{Bytes: pulled.WasmBytes},
		PolicyYAML:  pulled.PolicyYAML,
	}, nil
}

// idFromPath derives an id from a local filesystem path: the file stem.
func idFromPath(p string) component.ID {
	base := filepath.Base(p)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return component.ID(hashID(p))
	}
	return component.ID(stem)
}

// idFromURI derives an id from the last path segment of uri, minus its
// extension and any query/fragment. Falls back to a content hash when the
// URI has no usable path segment (for example, a bare host OCI reference).
func idFromURI(uri string) component.ID {
	u, err := url.Parse(uri)
	if err != nil {
		return component.ID(hashID(uri))
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return component.ID(hashID(uri))
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		return component.ID(hashID(uri))
	}
	return component.ID(stem)
}

func hashID(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
