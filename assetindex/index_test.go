// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package assetindex

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := Open(Config{
		Path: filepath.Join(t.TempDir(), "index.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := index.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return index
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	index := newTestIndex(t)
	ctx := context.Background()

	want := Record{
		ID:          "cube.glb",
		Author:      "Alice",
		StorageURL:  "http://store.test/assets/user-models/cube.glb",
		Category:    "user-models",
		ContentHash: "abc123",
		Size:        2048,
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := index.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := index.Get(ctx, "cube.glb")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("Get: got %+v, want %+v", got, want)
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	index := newTestIndex(t)

	_, err := index.Get(context.Background(), "ghost.glb")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: got %v, want ErrNotFound", err)
	}
}

func TestPutUpsertsLastWriteWins(t *testing.T) {
	t.Parallel()
	index := newTestIndex(t)
	ctx := context.Background()

	first := Record{ID: "cube.glb", Author: "Alice", Category: "user-models"}
	if err := index.Put(ctx, first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	second := Record{ID: "cube.glb", Author: "Bob", Category: "user-models"}
	if err := index.Put(ctx, second); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	records, err := index.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Scan: got %d records, want 1", len(records))
	}
	if records[0].Author != "Bob" {
		t.Errorf("author after overwrite: got %q, want %q", records[0].Author, "Bob")
	}
}

func TestPutDefaultsAnonymousAuthor(t *testing.T) {
	t.Parallel()
	index := newTestIndex(t)
	ctx := context.Background()

	if err := index.Put(ctx, Record{ID: "cube.glb", Category: "user-models"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := index.Get(ctx, "cube.glb")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Author != AnonymousAuthor {
		t.Errorf("author: got %q, want %q", got.Author, AnonymousAuthor)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	t.Parallel()
	index := newTestIndex(t)
	ctx := context.Background()

	if err := index.Put(ctx, Record{ID: "cube.glb", Category: "user-models"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := index.Delete(ctx, "cube.glb"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := index.Get(ctx, "cube.glb"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if err := index.Delete(ctx, "cube.glb"); err != nil {
		t.Errorf("repeated Delete: %v", err)
	}
}

func TestAuthorFallback(t *testing.T) {
	t.Parallel()
	index := newTestIndex(t)
	ctx := context.Background()

	if got := index.Author(ctx, "ghost.glb"); got != AnonymousAuthor {
		t.Errorf("Author missing: got %q, want %q", got, AnonymousAuthor)
	}

	if err := index.Put(ctx, Record{ID: "cube.glb", Author: "Alice", Category: "user-models"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := index.Author(ctx, "cube.glb"); got != "Alice" {
		t.Errorf("Author: got %q, want %q", got, "Alice")
	}
}

func TestScanAndGroupByCategory(t *testing.T) {
	t.Parallel()
	index := newTestIndex(t)
	ctx := context.Background()

	records := []Record{
		{ID: "pavilion.glb", Author: "Showroom", Category: "curated"},
		{ID: "chair.glb", Author: "Bob", Category: "user-models"},
		{ID: "cube.glb", Author: "Alice", Category: "user-models"},
	}
	for _, record := range records {
		if err := index.Put(ctx, record); err != nil {
			t.Fatalf("Put %s: %v", record.ID, err)
		}
	}

	scanned, err := index.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scanned) != 3 {
		t.Fatalf("Scan: got %d records, want 3", len(scanned))
	}

	groups := GroupByCategory(scanned)
	if got := Categories(groups); len(got) != 2 || got[0] != "curated" || got[1] != "user-models" {
		t.Errorf("Categories: got %v", got)
	}
	if len(groups["user-models"]) != 2 {
		t.Errorf("user-models group: got %d entries, want 2", len(groups["user-models"]))
	}
	if groups["curated"][0].ID != "pavilion.glb" {
		t.Errorf("curated group: got %+v", groups["curated"])
	}
}
