// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package assetindex implements the metadata side of an asset: one
// record per asset id, stored in SQLite. The index is deliberately
// dumb — get/put/scan/delete with per-key atomicity and nothing
// cross-key. Consistency with the blob store is the ingestion
// pipeline's problem, and the pipeline's answer is "eventual and best
// effort" (see the delete and failure paths in package ingest).
package assetindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrNotFound reports an asset id with no record.
var ErrNotFound = errors.New("assetindex: record not found")

// AnonymousAuthor is substituted when a record has no author.
const AnonymousAuthor = "Anonymous"

// Record is one asset's persisted metadata. ID doubles as the storage
// object key's file-name half; StorageURL is derived at write time and
// must not be treated as independently trusted.
type Record struct {
	ID          string
	Author      string
	StorageURL  string
	Category    string
	ContentHash string
	Size        int64
	UpdatedAt   time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS assets (
    id           TEXT PRIMARY KEY,
    author       TEXT NOT NULL,
    storage_url  TEXT NOT NULL,
    category     TEXT NOT NULL,
    content_hash TEXT NOT NULL DEFAULT '',
    size         INTEGER NOT NULL DEFAULT 0,
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS assets_category ON assets (category);
`

// Index is the SQLite-backed metadata index. Safe for concurrent use;
// each operation borrows a pooled connection.
type Index struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Config holds the parameters for opening an index.
type Config struct {
	// Path is the SQLite database file. Use ":memory:" with PoolSize
	// 1 for tests.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. If nil, logs are
	// discarded.
	Logger *slog.Logger
}

// Open creates the index, applying standard pragmas and the schema to
// every pooled connection. The caller must Close the index when done.
func Open(cfg Config) (*Index, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("assetindex: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("assetindex: opening %s: %w", cfg.Path, err)
	}

	logger.Info("asset index opened", "path", cfg.Path, "pool_size", poolSize)
	return &Index{pool: pool, logger: logger, path: cfg.Path}, nil
}

// prepareConnection applies pragmas and the schema. Runs once per
// pooled connection on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("assetindex: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("assetindex: applying schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (x *Index) Close() error {
	if err := x.pool.Close(); err != nil {
		return fmt.Errorf("assetindex: closing %s: %w", x.path, err)
	}
	x.logger.Info("asset index closed", "path", x.path)
	return nil
}

// Get returns the record for id, or ErrNotFound.
func (x *Index) Get(ctx context.Context, id string) (Record, error) {
	conn, err := x.pool.Take(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("assetindex: take: %w", err)
	}
	defer x.pool.Put(conn)

	var record Record
	found := false
	err = sqlitex.Execute(conn,
		`SELECT id, author, storage_url, category, content_hash, size, updated_at
		 FROM assets WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				record = recordFromRow(stmt)
				return nil
			},
		})
	if err != nil {
		return Record{}, fmt.Errorf("assetindex: get %s: %w", id, err)
	}
	if !found {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return record, nil
}

// Put upserts the record keyed by its ID. A record with an empty
// author is stored with AnonymousAuthor. Last write wins; there is no
// version conflict detection.
func (x *Index) Put(ctx context.Context, record Record) error {
	if record.ID == "" {
		return fmt.Errorf("assetindex: record has no id")
	}
	if record.Author == "" {
		record.Author = AnonymousAuthor
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	conn, err := x.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("assetindex: take: %w", err)
	}
	defer x.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO assets (id, author, storage_url, category, content_hash, size, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     author = excluded.author,
		     storage_url = excluded.storage_url,
		     category = excluded.category,
		     content_hash = excluded.content_hash,
		     size = excluded.size,
		     updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.ID,
				record.Author,
				record.StorageURL,
				record.Category,
				record.ContentHash,
				record.Size,
				record.UpdatedAt.Unix(),
			},
		})
	if err != nil {
		return fmt.Errorf("assetindex: put %s: %w", record.ID, err)
	}
	return nil
}

// Scan returns every record, ordered by id.
func (x *Index) Scan(ctx context.Context) ([]Record, error) {
	conn, err := x.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("assetindex: take: %w", err)
	}
	defer x.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn,
		`SELECT id, author, storage_url, category, content_hash, size, updated_at
		 FROM assets ORDER BY id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, recordFromRow(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("assetindex: scan: %w", err)
	}
	return records, nil
}

// Delete removes the record for id. Deleting an absent record is a
// no-op, matching the blob-store-first delete flow: the caller may
// retry a partially failed delete without a conflict on the half that
// already succeeded.
func (x *Index) Delete(ctx context.Context, id string) error {
	conn, err := x.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("assetindex: take: %w", err)
	}
	defer x.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM assets WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("assetindex: delete %s: %w", id, err)
	}
	return nil
}

// Author returns the stored author for id, or AnonymousAuthor when
// the record is missing or has no author.
func (x *Index) Author(ctx context.Context, id string) string {
	record, err := x.Get(ctx, id)
	if err != nil || record.Author == "" {
		return AnonymousAuthor
	}
	return record.Author
}

// GroupByCategory partitions records into named groups. Entries within
// a group keep their input order (Scan returns them sorted by id).
func GroupByCategory(records []Record) map[string][]Record {
	groups := make(map[string][]Record)
	for _, record := range records {
		groups[record.Category] = append(groups[record.Category], record)
	}
	return groups
}

// Categories returns the group names of a grouped view, sorted.
func Categories(groups map[string][]Record) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func recordFromRow(stmt *sqlite.Stmt) Record {
	return Record{
		ID:          stmt.ColumnText(0),
		Author:      stmt.ColumnText(1),
		StorageURL:  stmt.ColumnText(2),
		Category:    stmt.ColumnText(3),
		ContentHash: stmt.ColumnText(4),
		Size:        stmt.ColumnInt64(5),
		UpdatedAt:   time.Unix(stmt.ColumnInt64(6), 0).UTC(),
	}
}
