// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetstore implements the blob side of an asset: opaque
// put/get/list/delete keyed by "category/name", plus signed write URLs
// that let clients upload model bytes directly over HTTP without
// holding any server-mediated session state.
//
// The package is organized as:
//
//   - store.go: the Store interface and the filesystem implementation
//   - sign.go: HMAC capability URLs with HKDF-derived signing keys
//   - http.go: the upload/download HTTP surface
//
// Per-key operations are atomic (temp file + rename); nothing here is
// transactional across keys.
package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/showroom3d/showroom/lib/codec"
)

// ErrNotFound reports a key with no stored object.
var ErrNotFound = errors.New("assetstore: object not found")

// Store is the asset blob store consumed by the ingestion pipeline
// and the session handlers. Implementations must provide per-key
// atomicity: a Get never observes a half-written Put.
type Store interface {
	// Put stores data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the object bytes for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every stored key in unspecified order.
	List(ctx context.Context) ([]string, error)

	// Delete removes the object at key. Returns ErrNotFound when no
	// object exists.
	Delete(ctx context.Context, key string) error

	// SignWrite returns a capability URL permitting one direct HTTP
	// PUT of the object at key until ttl elapses.
	SignWrite(key string, ttl time.Duration) (string, error)

	// PublicURL returns the stable read URL for key. Derived, not
	// stored: callers must not treat it as independently trusted.
	PublicURL(key string) string
}

// Key builds a storage key from a category and file name.
func Key(category, name string) string {
	return category + "/" + name
}

// ValidateKey checks that key has the "category/name" shape and no
// path-traversal components. Every entry point that accepts a key from
// the network calls this before touching the filesystem.
func ValidateKey(key string) error {
	parts := strings.Split(key, "/")
	if len(parts) != 2 {
		return fmt.Errorf("assetstore: key %q must be category/name", key)
	}
	for _, part := range parts {
		switch {
		case part == "" || part == "." || part == "..":
			return fmt.Errorf("assetstore: key %q has an invalid path component", key)
		case strings.ContainsAny(part, "\\\x00"):
			return fmt.Errorf("assetstore: key %q has an invalid character", key)
		}
	}
	return nil
}

// objectInfo is the per-object metadata sidecar: content type for HTTP
// serving, BLAKE3 hash and size for integrity reporting.
type objectInfo struct {
	ContentType string    `cbor:"content_type"`
	Hash        string    `cbor:"hash"`
	Size        int64     `cbor:"size"`
	StoredAt    time.Time `cbor:"stored_at"`
}

// FS is the filesystem-backed Store. Objects live under root/objects,
// metadata sidecars under root/meta, in-flight writes under root/tmp.
// Writes go through a temp file and an atomic rename, so readers never
// see partial objects.
type FS struct {
	root   string
	signer *Signer
}

// Compile-time interface check.
var _ Store = (*FS)(nil)

// NewFS creates a filesystem store rooted at root, creating the
// directory layout if needed. The signer issues and verifies this
// store's write-capability URLs and derives its public URLs.
func NewFS(root string, signer *Signer) (*FS, error) {
	for _, dir := range []string{"objects", "meta", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("assetstore: creating %s directory: %w", dir, err)
		}
	}
	return &FS{root: root, signer: signer}, nil
}

func (s *FS) objectPath(key string) string {
	return filepath.Join(s.root, "objects", filepath.FromSlash(key))
}

func (s *FS) metaPath(key string) string {
	return filepath.Join(s.root, "meta", filepath.FromSlash(key)+".cbor")
}

// Put stores data under key via temp file and atomic rename, then
// writes the metadata sidecar the same way. A crash between the two
// renames leaves an object without a sidecar; Get tolerates that.
func (s *FS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	hash := blake3.Sum256(data)
	info := objectInfo{
		ContentType: contentType,
		Hash:        fmt.Sprintf("%x", hash),
		Size:        int64(len(data)),
		StoredAt:    time.Now().UTC(),
	}

	objectPath := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return fmt.Errorf("assetstore: creating object directory: %w", err)
	}
	if err := s.writeAtomic(objectPath, data); err != nil {
		return fmt.Errorf("assetstore: writing object %s: %w", key, err)
	}

	metaBytes, err := codec.Marshal(info)
	if err != nil {
		return fmt.Errorf("assetstore: encoding metadata for %s: %w", key, err)
	}
	metaPath := s.metaPath(key)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return fmt.Errorf("assetstore: creating meta directory: %w", err)
	}
	if err := s.writeAtomic(metaPath, metaBytes); err != nil {
		return fmt.Errorf("assetstore: writing metadata for %s: %w", key, err)
	}
	return nil
}

// writeAtomic writes data to finalPath via a temp file in root/tmp and
// an atomic rename.
func (s *FS) writeAtomic(finalPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "put-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// Get returns the object bytes for key.
func (s *FS) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.objectPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("assetstore: reading object %s: %w", key, err)
	}
	return data, nil
}

// Info returns the metadata sidecar for key. A missing sidecar (crash
// window, or objects written by older versions) degrades to zero
// values rather than an error when the object itself exists.
func (s *FS) Info(key string) (contentType, hash string, size int64, err error) {
	if err := ValidateKey(key); err != nil {
		return "", "", 0, err
	}
	metaBytes, err := os.ReadFile(s.metaPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		if _, statErr := os.Stat(s.objectPath(key)); statErr == nil {
			return "", "", 0, nil
		}
		return "", "", 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", "", 0, fmt.Errorf("assetstore: reading metadata for %s: %w", key, err)
	}
	var info objectInfo
	if err := codec.Unmarshal(metaBytes, &info); err != nil {
		return "", "", 0, fmt.Errorf("assetstore: decoding metadata for %s: %w", key, err)
	}
	return info.ContentType, info.Hash, info.Size, nil
}

// List returns every stored key.
func (s *FS) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	objectsRoot := filepath.Join(s.root, "objects")
	var keys []string
	err := filepath.WalkDir(objectsRoot, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(objectsRoot, walkPath)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(relative))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assetstore: listing objects: %w", err)
	}
	return keys, nil
}

// Delete removes the object and its metadata sidecar.
func (s *FS) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.objectPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("assetstore: deleting object %s: %w", key, err)
	}
	// Sidecar removal is best effort — the object is already gone.
	if err := os.Remove(s.metaPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("assetstore: deleting metadata for %s: %w", key, err)
	}
	return nil
}

// SignWrite issues a write-capability URL for key.
func (s *FS) SignWrite(key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return s.signer.SignWrite(key, ttl)
}

// PublicURL returns the stable read URL for key. The URL embeds both
// the category and the file name, matching the on-disk layout.
func (s *FS) PublicURL(key string) string {
	return s.signer.baseURL + path.Join("/assets", key)
}
