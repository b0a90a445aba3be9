package blobstore

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Key namespaces. Uploaded image bytes and generated visualization
// artifacts live under distinct schemes so that batch-scoped cleanup
// of one namespace can never touch the other.
const (
	UploadScheme   = "mem://"
	ArtifactScheme = "memvis://"
)

// UploadKey returns the store key for an uploaded image belonging to a batch
func UploadKey(batchID, filename string) string {
	return fmt.Sprintf("%s%s/%s", UploadScheme, batchID, filename)
}

// BatchPrefix returns the key prefix covering every upload of one batch
func BatchPrefix(batchID string) string {
	return fmt.Sprintf("%s%s/", UploadScheme, batchID)
}

// ArtifactKey returns the store key for a generated visualization
func ArtifactKey(analysisID, kind string) string {
	return fmt.Sprintf("%s%s/%s.jpg", ArtifactScheme, analysisID, kind)
}

// ArtifactPrefix returns the key prefix covering every artifact of one analysis
func ArtifactPrefix(analysisID string) string {
	return fmt.Sprintf("%s%s/", ArtifactScheme, analysisID)
}

// IsStoreRef reports whether ref resolves through the store rather than
// the filesystem
func IsStoreRef(ref string) bool {
	return strings.HasPrefix(ref, UploadScheme) || strings.HasPrefix(ref, ArtifactScheme)
}

// SplitArtifactKey extracts the analysis ID and artifact kind from an
// artifact key, reporting false for keys outside the artifact namespace
func SplitArtifactKey(key string) (analysisID, kind string, ok bool) {
	rest, found := strings.CutPrefix(key, ArtifactScheme)
	if !found {
		return "", "", false
	}
	analysisID, file, found := strings.Cut(rest, "/")
	if !found || analysisID == "" || file == "" {
		return "", "", false
	}
	return analysisID, strings.TrimSuffix(file, filepath.Ext(file)), true
}

// Resolver classifies opaque image references and fetches their bytes.
// A reference is either a store key (recognized by scheme prefix) or a
// filesystem path.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver backed by store
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// IsValid reports whether ref currently resolves to readable image bytes
func (r *Resolver) IsValid(ref string) bool {
	if ref == "" {
		return false
	}
	if IsStoreRef(ref) {
		return r.store.Exists(ref)
	}
	info, err := os.Stat(ref)
	return err == nil && info.Mode().IsRegular()
}

// Fetch returns the bytes and content type behind ref
func (r *Resolver) Fetch(ref string) ([]byte, string, error) {
	if IsStoreRef(ref) {
		data, contentType, ok := r.store.Get(ref)
		if !ok {
			return nil, "", fmt.Errorf("store entry %s not found or expired", ref)
		}
		return data, contentType, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", ref, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(ref))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
