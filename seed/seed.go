// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package seed loads the curated-model manifest at startup and upserts
// its entries into the metadata index, so a fresh deployment lists the
// built-in models next to user uploads.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/showroom3d/showroom/assetindex"
	"github.com/showroom3d/showroom/assetstore"
)

// CuratedCategory is the category every seeded model lands in unless
// its manifest entry says otherwise.
const CuratedCategory = "curated"

// Manifest is the curated-model manifest. The on-disk format is JSONC:
// JSON extended with // line comments, /* block comments */, and
// trailing commas.
type Manifest struct {
	Models []Entry `json:"models"`
}

// Entry is one curated model.
type Entry struct {
	// ID is the asset id, typically a .glb file name. Required.
	ID string `json:"id"`

	// Author is the display attribution. Empty means "Anonymous".
	Author string `json:"author,omitempty"`

	// Category overrides CuratedCategory for this entry.
	Category string `json:"category,omitempty"`

	// URL is the model's public URL. When empty the URL is derived
	// from the asset store, which assumes the blob was shipped into
	// the store's data directory.
	URL string `json:"url,omitempty"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	stripped := jsonc.ToJSON(data)

	var manifest Manifest
	if err := json.Unmarshal(stripped, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	for i, entry := range manifest.Models {
		if entry.ID == "" {
			return nil, fmt.Errorf("manifest entry %d has no id", i)
		}
	}
	return &manifest, nil
}

// ReadFile reads a JSONC manifest from disk and parses it.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data)
}

// Apply upserts every manifest entry into the index. Re-applying the
// same manifest is idempotent: entries are keyed by asset id and the
// index does last-write-wins upserts. Returns the number of entries
// applied.
func Apply(ctx context.Context, manifest *Manifest, index *assetindex.Index, store assetstore.Store, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for _, entry := range manifest.Models {
		category := entry.Category
		if category == "" {
			category = CuratedCategory
		}
		url := entry.URL
		if url == "" {
			url = store.PublicURL(assetstore.Key(category, entry.ID))
		}
		record := assetindex.Record{
			ID:         entry.ID,
			Author:     entry.Author,
			Category:   category,
			StorageURL: url,
		}
		if err := index.Put(ctx, record); err != nil {
			return 0, fmt.Errorf("seeding %s: %w", entry.ID, err)
		}
		logger.Debug("seeded curated model", "id", entry.ID, "category", category)
	}
	return len(manifest.Models), nil
}
