// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared scaffolding for the showroomd
// process: a standard structured logger, signal-driven shutdown
// context, and an HTTP server with graceful shutdown. The session
// listener in cmd/showroomd and the upload/download HTTP surface in
// assetstore both run under this lifecycle.
package service
