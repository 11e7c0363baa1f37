// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxUploadSize bounds a single model upload. Production GLB scenes
// run tens of megabytes; 512 MB leaves headroom without letting one
// client exhaust the disk.
const maxUploadSize = 512 * 1024 * 1024

// Handler serves the store's HTTP surface:
//
//	PUT /upload/{category}/{file}?expires=...&signature=...
//	GET /assets/{category}/{file}
//
// Uploads require a valid write-capability URL from the Signer.
// Downloads are public. The session channel never carries model
// bytes — this surface is the only road in and out of the store for
// clients.
func Handler(store *FS, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &httpHandler{store: store, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /upload/{category}/{file}", h.upload)
	mux.HandleFunc("GET /assets/{category}/{file}", h.download)
	return mux
}

type httpHandler struct {
	store  *FS
	logger *slog.Logger
}

func (h *httpHandler) upload(w http.ResponseWriter, r *http.Request) {
	key := Key(r.PathValue("category"), r.PathValue("file"))

	query := r.URL.Query()
	err := h.store.signer.VerifyWrite(key, query.Get("expires"), query.Get("signature"))
	switch {
	case errors.Is(err, ErrURLExpired):
		http.Error(w, "upload URL expired", http.StatusForbidden)
		return
	case err != nil:
		http.Error(w, "invalid upload URL", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize+1))
	if err != nil {
		http.Error(w, "reading upload body", http.StatusBadRequest)
		return
	}
	if len(body) > maxUploadSize {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeForKey(key)
	}

	if err := h.store.Put(r.Context(), key, body, contentType); err != nil {
		h.logger.Error("upload store write failed", "key", key, "error", err)
		http.Error(w, "storing object", http.StatusInternalServerError)
		return
	}

	h.logger.Info("object uploaded", "key", key, "size", len(body))
	w.WriteHeader(http.StatusOK)
}

func (h *httpHandler) download(w http.ResponseWriter, r *http.Request) {
	key := Key(r.PathValue("category"), r.PathValue("file"))
	if err := ValidateKey(key); err != nil {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}

	data, err := h.store.Get(r.Context(), key)
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("download store read failed", "key", key, "error", err)
		http.Error(w, "reading object", http.StatusInternalServerError)
		return
	}

	contentType, _, _, err := h.store.Info(key)
	if err != nil || contentType == "" {
		contentType = contentTypeForKey(key)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// contentTypeForKey picks a content type from the key's extension.
// Uploaded scene models are GLB; anything else is opaque bytes.
func contentTypeForKey(key string) string {
	if strings.HasSuffix(key, ".glb") {
		return "model/gltf-binary"
	}
	return "application/octet-stream"
}
