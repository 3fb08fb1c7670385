// Package ocifetch pulls artifacts published as OCI images.
package ocifetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/oci"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
)

// Scheme prefixes artifact URIs served from a registry, as in
// oci://ghcr.io/acme/tool:1.2.
const Scheme = "oci://"

type Fetcher struct {
	// Cache is the directory of the local OCI layout store.
	Cache    string
	Username string
	Token    string
	// PlainHTTP talks to the registry without TLS.
	PlainHTTP bool
}

// Split turns oci://registry/repo:tag into the repository and tag. A
// missing tag means "latest".
func Split(uri string) (repo, tag string, err error) {
	ref := strings.TrimPrefix(uri, Scheme)
	if ref == "" || ref == uri {
		return "", "", fmt.Errorf("not an oci reference: %q", uri)
	}
	if i := strings.LastIndex(ref, "@"); i > 0 {
		return ref[:i], ref[i+1:], nil
	}
	slash := strings.LastIndex(ref, "/")
	if i := strings.LastIndex(ref, ":"); i > slash {
		return ref[:i], ref[i+1:], nil
	}
	return ref, "latest", nil
}

// Open copies the image into the local cache and returns its first layer.
func (f *Fetcher) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	name, tag, err := Split(uri)
	if err != nil {
		return nil, err
	}
	repo, err := remote.NewRepository(name)
	if err != nil {
		return nil, fmt.Errorf("invalid repo: %w", err)
	}
	repo.PlainHTTP = f.PlainHTTP
	client := &auth.Client{Cache: auth.NewCache()}
	if f.Token != "" {
		client.Credential = auth.StaticCredential(repo.Reference.Registry, auth.Credential{
			Username: f.Username,
			Password: f.Token,
		})
	}
	repo.Client = client

	cache := f.Cache
	if cache == "" {
		cache = "local-cache"
	}
	store, err := oci.New(cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create oci store: %w", err)
	}

	root, err := oras.Copy(ctx, repo, tag, store, tag, oras.DefaultCopyOptions)
	if err != nil {
		return nil, fmt.Errorf("oras copy failed: %w", err)
	}

	raw, err := content.FetchAll(ctx, store, root)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(manifest.Layers) == 0 {
		return nil, fmt.Errorf("%s has no layers", uri)
	}
	return store.Fetch(ctx, manifest.Layers[0])
}
