// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest orchestrates the asset ingestion pipeline: signed
// upload URL issuance, post-upload fetch and compression, metadata
// commit, and the model_uploaded announcement.
//
// Each asset moves through the stages Requested → URLIssued →
// AwaitingCompletion → Compressing → MetadataCommitted → Announced,
// with Failed reachable from any active stage. The pipeline is
// deliberately non-transactional: a failure terminates the run at its
// current stage with no compensation, so a failed compression can
// leave an uncompressed blob in the store with no index record (an
// orphan). Orphans never appear in listings — the record is written
// only after the blob — and are cleaned up out of band.
//
// The client's direct upload between URLIssued and upload_complete is
// invisible to the server; AwaitingCompletion is exited only by the
// client's word that the upload finished.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/showroom3d/showroom/assetindex"
	"github.com/showroom3d/showroom/assetstore"
	"github.com/showroom3d/showroom/glbpack"
	"github.com/showroom3d/showroom/protocol"
)

// Stage identifies a pipeline state.
type Stage string

const (
	StageRequested          Stage = "requested"
	StageURLIssued          Stage = "url_issued"
	StageAwaitingCompletion Stage = "awaiting_completion"
	StageCompressing        Stage = "compressing"
	StageMetadataCommitted  Stage = "metadata_committed"
	StageAnnounced          Stage = "announced"
)

// StageError reports a pipeline failure and the stage it happened in.
// The run terminates at that stage; nothing already done is undone.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// DefaultURLTTL is the signed upload URL lifetime.
const DefaultURLTTL = 5 * time.Minute

// Pipeline runs asset ingestions. Runs for different asset ids share
// no mutable state beyond the store and index, so they may execute
// concurrently; the caller provides that concurrency (one goroutine
// per upload_complete).
type Pipeline struct {
	store    assetstore.Store
	index    *assetindex.Index
	codec    glbpack.Codec
	urlTTL   time.Duration
	announce func(protocol.ModelUploaded)
	logger   *slog.Logger
}

// Config holds the pipeline's collaborators.
type Config struct {
	// Store is the asset blob store. Required.
	Store assetstore.Store

	// Index is the asset metadata index. Required.
	Index *assetindex.Index

	// Codec is the compression codec applied to uploaded models.
	Codec glbpack.Codec

	// URLTTL is the signed upload URL lifetime. Defaults to
	// DefaultURLTTL.
	URLTTL time.Duration

	// Announce is called with the model_uploaded payload after a
	// successful commit. The server wires this to a broadcast over
	// every live connection. Required.
	Announce func(protocol.ModelUploaded)

	// Logger receives per-run operational messages. If nil, logs are
	// discarded.
	Logger *slog.Logger
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Store == nil {
		panic("ingest: Store is required")
	}
	if cfg.Index == nil {
		panic("ingest: Index is required")
	}
	if cfg.Announce == nil {
		panic("ingest: Announce is required")
	}
	ttl := cfg.URLTTL
	if ttl == 0 {
		ttl = DefaultURLTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		store:    cfg.Store,
		index:    cfg.Index,
		codec:    cfg.Codec,
		urlTTL:   ttl,
		announce: cfg.Announce,
		logger:   logger,
	}
}

// IssueUploadURL returns a signed upload URL for the asset, valid for
// the configured TTL. The URL is a one-shot capability: the server
// keeps no record of it, and an unused URL simply expires.
func (p *Pipeline) IssueUploadURL(assetID, category string) (string, error) {
	key := assetstore.Key(category, assetID)
	url, err := p.store.SignWrite(key, p.urlTTL)
	if err != nil {
		return "", &StageError{Stage: StageRequested, Err: err}
	}
	p.logger.Debug("upload url issued", "asset", assetID, "category", category)
	return url, nil
}

// Complete runs the server half of an ingestion after the client's
// direct upload: fetch the uploaded blob, compress it, overwrite the
// same key, commit the metadata record, and announce the asset.
//
// assetID is the sole identity — repeating Complete for the same id
// repeats the pipeline and overwrites both blob and record, last
// write wins. A repeat against an already-compressed blob skips the
// recompression and recommits, keeping delivery at-least-once safe.
func (p *Pipeline) Complete(ctx context.Context, assetID, author, category string) (assetindex.Record, error) {
	key := assetstore.Key(category, assetID)

	data, err := p.store.Get(ctx, key)
	if err != nil {
		return assetindex.Record{}, &StageError{Stage: StageCompressing, Err: fmt.Errorf("fetching uploaded blob: %w", err)}
	}

	packed := data
	if !glbpack.IsPacked(data) {
		packed, err = glbpack.Pack(data, p.codec)
		if err != nil {
			return assetindex.Record{}, &StageError{Stage: StageCompressing, Err: err}
		}
		if err := p.store.Put(ctx, key, packed, "model/gltf-binary"); err != nil {
			return assetindex.Record{}, &StageError{Stage: StageCompressing, Err: fmt.Errorf("writing compressed blob: %w", err)}
		}
	}

	hash := blake3.Sum256(packed)
	record := assetindex.Record{
		ID:          assetID,
		Author:      author,
		StorageURL:  p.store.PublicURL(key),
		Category:    category,
		ContentHash: fmt.Sprintf("%x", hash),
		Size:        int64(len(packed)),
	}
	if err := p.index.Put(ctx, record); err != nil {
		// The compressed blob is already in place: an orphan until
		// a retry or cleanup reconciles it.
		return assetindex.Record{}, &StageError{Stage: StageMetadataCommitted, Err: err}
	}

	// Re-read so the returned record carries the stored defaults
	// (anonymous author, commit timestamp).
	record, err = p.index.Get(ctx, assetID)
	if err != nil {
		return assetindex.Record{}, &StageError{Stage: StageMetadataCommitted, Err: err}
	}

	p.announce(protocol.ModelUploaded{
		FileName: record.ID,
		Author:   record.Author,
		Category: record.Category,
		ModelURL: record.StorageURL,
	})

	p.logger.Info("asset ingested",
		"asset", assetID,
		"category", category,
		"author", record.Author,
		"original_size", len(data),
		"packed_size", len(packed),
	)
	return record, nil
}
