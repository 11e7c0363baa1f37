// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/showroom3d/showroom/assetindex"
	"github.com/showroom3d/showroom/assetstore"
	"github.com/showroom3d/showroom/protocol"
)

// dispatch routes one client envelope. Relay kinds are handled inline
// so ordering between a holder's camera frames is preserved; asset
// operations touch the store and index and run in their own
// goroutines so a slow disk or database never stalls the relay path.
func (h *Hub) dispatch(ctx context.Context, c *conn, envelope protocol.Envelope) {
	switch envelope.Kind {
	case protocol.KindRequestControl:
		h.handleRequestControl(c)

	case protocol.KindCameraUpdate, protocol.KindSettingsUpdate:
		h.relayFromHolder(c, envelope)

	case protocol.KindSettingsUpdateLocal:
		h.echoToHolder(c, envelope)

	case protocol.KindModelSwitch:
		// Not gated by the lease: any connection may switch the model
		// it displays, and everyone else follows.
		h.broadcast(c.id, protocol.Envelope{
			Kind:    protocol.KindUpdateIndex,
			Payload: envelope.Payload,
		})

	case protocol.KindGetFiles:
		go h.handleGetFiles(ctx, c.id)

	case protocol.KindDeleteFile:
		go h.handleDeleteFile(ctx, c.id, envelope)

	case protocol.KindRequestPresignedURL:
		go h.handlePresignRequest(c.id, envelope)

	case protocol.KindUploadComplete:
		go h.handleUploadComplete(ctx, c.id, envelope)

	default:
		// Unknown kinds are dropped, not fatal: an older server must
		// tolerate newer clients.
		c.logger.Debug("dropping unknown event kind", "kind", envelope.Kind)
	}
}

func (h *Hub) handleRequestControl(c *conn) {
	if h.arbiter.Request(c.id) {
		h.send(c, protocol.Envelope{Kind: protocol.KindControlGranted})
		return
	}
	h.send(c, protocol.Envelope{Kind: protocol.KindControlDenied})
}

// relayFromHolder forwards the envelope verbatim to every other
// connection, provided the sender holds the lease. Non-holder sends
// are dropped without a reply: a client that lost the lease to a
// disconnect race simply sees its updates stop propagating.
func (h *Hub) relayFromHolder(c *conn, envelope protocol.Envelope) {
	if !h.arbiter.HolderIs(c.id) {
		c.logger.Debug("dropping relay from non-holder", "kind", envelope.Kind)
		return
	}
	h.broadcast(c.id, envelope)
}

// echoToHolder sends the envelope back to the sender alone. Used by
// settings_update_local, where the holder wants the server-roundtrip
// confirmation without disturbing other viewers.
func (h *Hub) echoToHolder(c *conn, envelope protocol.Envelope) {
	if !h.arbiter.HolderIs(c.id) {
		c.logger.Debug("dropping relay from non-holder", "kind", envelope.Kind)
		return
	}
	h.send(c, envelope)
}

func (h *Hub) handleGetFiles(ctx context.Context, senderID string) {
	records, err := h.index.Scan(ctx)
	if err != nil {
		h.logger.Error("asset listing failed", "error", err)
		h.sendTo(senderID, errorEnvelope(protocol.KindFilesError, "listing assets: %v", err))
		return
	}

	groups := make(map[string][]protocol.ModelEntry)
	for category, grouped := range assetindex.GroupByCategory(records) {
		entries := make([]protocol.ModelEntry, 0, len(grouped))
		for _, record := range grouped {
			entries = append(entries, protocol.ModelEntry{
				ID:       record.ID,
				Author:   record.Author,
				Category: record.Category,
				URL:      record.StorageURL,
			})
		}
		groups[category] = entries
	}

	h.sendTo(senderID, protocol.MustEnvelope(protocol.KindFilesList, protocol.FilesList{
		Groups: groups,
	}))
}

// handleDeleteFile removes the blob first and the index record second.
// The two steps are not atomic: when one succeeds and the other fails
// the stores diverge, the requester hears about the first failure
// only, and nothing retries or compensates.
func (h *Hub) handleDeleteFile(ctx context.Context, senderID string, envelope protocol.Envelope) {
	var request protocol.DeleteFileRequest
	if err := protocol.DecodePayload(envelope, &request); err != nil {
		h.sendTo(senderID, errorEnvelope(protocol.KindDeleteError, "invalid delete request: %v", err))
		return
	}
	key := assetstore.Key(request.Category, request.FileName)
	if err := assetstore.ValidateKey(key); err != nil {
		h.sendTo(senderID, errorEnvelope(protocol.KindDeleteError, "invalid delete request: %v", err))
		return
	}

	if err := h.store.Delete(ctx, key); err != nil {
		h.logger.Error("blob delete failed", "key", key, "error", err)
		h.sendTo(senderID, errorEnvelope(protocol.KindDeleteError, "deleting %s: %v", request.FileName, err))
		return
	}
	if err := h.index.Delete(ctx, request.FileName); err != nil {
		h.logger.Error("index delete failed", "id", request.FileName, "error", err)
		h.sendTo(senderID, errorEnvelope(protocol.KindDeleteError, "deleting %s: %v", request.FileName, err))
		return
	}

	h.logger.Info("asset deleted", "key", key)
	h.sendTo(senderID, protocol.MustEnvelope(protocol.KindDeleteSuccess, protocol.DeleteSuccess{
		FileName: request.FileName,
	}))
}

func (h *Hub) handlePresignRequest(senderID string, envelope protocol.Envelope) {
	var request protocol.PresignRequest
	if err := protocol.DecodePayload(envelope, &request); err != nil {
		h.sendTo(senderID, errorEnvelope(protocol.KindPresignedURLError, "invalid upload request: %v", err))
		return
	}

	uploadURL, err := h.ingest.IssueUploadURL(request.FileName, request.Category)
	if err != nil {
		h.logger.Error("signing upload URL failed", "file", request.FileName, "error", err)
		h.sendTo(senderID, errorEnvelope(protocol.KindPresignedURLError, "signing upload URL for %s: %v", request.FileName, err))
		return
	}

	h.sendTo(senderID, protocol.MustEnvelope(protocol.KindPresignedURL, protocol.PresignResponse{
		UploadURL: uploadURL,
		FileName:  request.FileName,
	}))
}

// handleUploadComplete runs ingestion for a finished direct upload.
// The pipeline announces model_uploaded to every connection through
// the hub's announce hook; the upload_success acknowledgement goes to
// the uploader alone, and only after the announcement, so the uploader
// never sees the acknowledgement for an asset its listing cannot yet
// contain.
func (h *Hub) handleUploadComplete(ctx context.Context, senderID string, envelope protocol.Envelope) {
	var request protocol.UploadCompleteRequest
	if err := protocol.DecodePayload(envelope, &request); err != nil {
		h.sendTo(senderID, errorEnvelope(protocol.KindUploadError, "invalid upload completion: %v", err))
		return
	}

	record, err := h.ingest.Complete(ctx, request.FileName, request.Author, request.Category)
	if err != nil {
		h.logger.Error("ingestion failed",
			"file", request.FileName,
			"category", request.Category,
			"error", err,
		)
		h.sendTo(senderID, errorEnvelope(protocol.KindUploadError, "processing %s: %v", request.FileName, err))
		return
	}

	h.logger.Info("asset ingested", "id", record.ID, "category", record.Category, "author", record.Author)
	h.sendTo(senderID, protocol.MustEnvelope(protocol.KindUploadSuccess, protocol.UploadSuccess{
		FileName: record.ID,
	}))
}
