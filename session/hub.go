// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/showroom3d/showroom/assetindex"
	"github.com/showroom3d/showroom/assetstore"
	"github.com/showroom3d/showroom/protocol"
)

// Ingestor is the upload pipeline surface the hub drives: issuing
// signed upload URLs and completing ingestion after the client's
// direct upload.
type Ingestor interface {
	IssueUploadURL(assetID, category string) (string, error)
	Complete(ctx context.Context, assetID, author, category string) (assetindex.Record, error)
}

// Config carries the hub's collaborators. Store, Index, and Ingest are
// required; Logger defaults to slog.Default().
type Config struct {
	Store  assetstore.Store
	Index  *assetindex.Index
	Ingest Ingestor
	Logger *slog.Logger
}

// Hub owns the connection registry and routes every client event: it
// answers lease requests, relays gated scene mutations, and hands the
// asset operations to the store, index, and ingest pipeline.
type Hub struct {
	arbiter *Arbiter
	store   assetstore.Store
	index   *assetindex.Index
	ingest  Ingestor
	logger  *slog.Logger

	nextID atomic.Uint64

	mu    sync.Mutex
	conns map[string]*conn
}

func NewHub(cfg Config) *Hub {
	if cfg.Store == nil {
		panic("session: Store is required")
	}
	if cfg.Index == nil {
		panic("session: Index is required")
	}
	if cfg.Ingest == nil {
		panic("session: Ingest is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		arbiter: NewArbiter(),
		store:   cfg.Store,
		index:   cfg.Index,
		ingest:  cfg.Ingest,
		logger:  logger,
		conns:   make(map[string]*conn),
	}
}

// Arbiter returns the hub's lease arbiter.
func (h *Hub) Arbiter() *Arbiter {
	return h.arbiter
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeConn runs one connection to completion: it registers the
// connection, reads envelopes until the socket fails or ctx is
// cancelled, and then releases any lease the connection held. Call it
// from the accept loop, one goroutine per connection.
func (h *Hub) ServeConn(ctx context.Context, netConn net.Conn) {
	id := "c" + strconv.FormatUint(h.nextID.Add(1), 10)
	c := newConn(id, netConn, h.logger)

	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()

	go c.writeLoop()

	// Cancellation closes the socket, which fails the blocking read.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-watchDone:
		}
	}()

	c.logger.Info("connection opened", "remote", netConn.RemoteAddr())
	defer func() {
		close(watchDone)
		c.close()
		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()
		h.arbiter.Release(id)
		c.logger.Info("connection closed")
	}()

	for {
		envelope, err := protocol.ReadEnvelope(netConn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		h.dispatch(ctx, c, envelope)
	}
}

// send queues an envelope for one connection, pruning it on overflow.
func (h *Hub) send(c *conn, envelope protocol.Envelope) {
	if !c.send(envelope) {
		c.logger.Warn("outbound buffer full, dropping connection", "kind", envelope.Kind)
		c.close()
	}
}

// sendTo queues an envelope for the connection with the given id, if
// it is still registered. Asset operations run in goroutines and their
// connection may be gone by the time the result is ready.
func (h *Hub) sendTo(id string, envelope protocol.Envelope) {
	h.mu.Lock()
	c, ok := h.conns[id]
	h.mu.Unlock()
	if ok {
		h.send(c, envelope)
	}
}

// broadcast queues an envelope for every connection except the one
// with senderID. Pass senderID "" to reach every connection.
func (h *Hub) broadcast(senderID string, envelope protocol.Envelope) {
	h.mu.Lock()
	targets := make([]*conn, 0, len(h.conns))
	for id, c := range h.conns {
		if id == senderID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		h.send(c, envelope)
	}
}

// AnnounceUpload broadcasts a model_uploaded event to every
// connection, the uploader included. The ingest pipeline calls this
// after the metadata commit.
func (h *Hub) AnnounceUpload(event protocol.ModelUploaded) {
	envelope, err := protocol.NewEnvelope(protocol.KindModelUploaded, event)
	if err != nil {
		h.logger.Error("encoding model_uploaded failed", "error", err)
		return
	}
	h.broadcast("", envelope)
}

// errorEnvelope builds an error-kind envelope, formatting the message
// for the client.
func errorEnvelope(kind, format string, args ...any) protocol.Envelope {
	return protocol.MustEnvelope(kind, protocol.Error{
		Message: fmt.Sprintf(format, args...),
	})
}
