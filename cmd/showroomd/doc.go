// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// showroomd is the shared 3D scene viewing server. It runs two
// listeners:
//
//   - the session channel (TCP, length-prefixed CBOR envelopes): control
//     lease arbitration, camera and settings relays, model switching,
//     asset listing and deletion, and the upload handshake
//   - the asset HTTP surface: signed-URL model uploads and public model
//     downloads
//
// Configuration comes from a YAML file named by SHOWROOM_CONFIG or
// --config. At startup the server opens the asset store and metadata
// index, seeds the curated models if a manifest is configured, and
// serves until SIGINT or SIGTERM.
package main
