// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire format for the showroom session
// channel: a persistent bidirectional stream of named events between a
// client and the server.
//
// Each event is a frame: a 4-byte big-endian length prefix followed by
// a CBOR-encoded [Envelope]. The envelope names the event kind and
// carries an opaque CBOR payload. Relayed payloads (camera and
// settings updates) pass through the server verbatim — the server
// never decodes them beyond the envelope.
//
// The package is organized as:
//
//   - protocol.go: framing and the envelope type
//   - kinds.go: the event-kind catalog
//   - payloads.go: typed payload structs for server-interpreted events
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/showroom3d/showroom/lib/codec"
)

// MaxEnvelopeSize is the maximum encoded envelope size. Session events
// are control traffic — camera matrices, settings objects, file names.
// Model bytes never travel on the session channel (they go through
// signed upload URLs), so 1 MB is generous.
const MaxEnvelopeSize = 1 * 1024 * 1024

// Envelope is a single session event. Kind identifies the event;
// Payload is the event's CBOR-encoded body, empty for kinds that carry
// no data (request_control, get_files).
type Envelope struct {
	Kind    string           `cbor:"kind"`
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// WriteEnvelope encodes env and writes it to w with a 4-byte
// big-endian length prefix.
func WriteEnvelope(w io.Writer, env Envelope) error {
	data, err := codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if len(data) > MaxEnvelopeSize {
		return fmt.Errorf("envelope size %d exceeds maximum %d", len(data), MaxEnvelopeSize)
	}
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(data)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("writing envelope length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing envelope body: %w", err)
	}
	return nil
}

// ReadEnvelope reads one length-prefixed envelope from r. Returns an
// error if the stream is malformed or the envelope exceeds
// MaxEnvelopeSize.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return Envelope{}, fmt.Errorf("reading envelope length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > MaxEnvelopeSize {
		return Envelope{}, fmt.Errorf("envelope size %d exceeds maximum %d", length, MaxEnvelopeSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Envelope{}, fmt.Errorf("reading envelope body: %w", err)
	}

	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("envelope missing kind")
	}
	return env, nil
}

// NewEnvelope builds an envelope of the given kind with payload
// encoded from v. A nil v produces an envelope with no payload.
func NewEnvelope(kind string, v any) (Envelope, error) {
	if v == nil {
		return Envelope{Kind: kind}, nil
	}
	payload, err := codec.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return Envelope{Kind: kind, Payload: payload}, nil
}

// MustEnvelope is NewEnvelope for payload values that cannot fail to
// encode (the typed structs in this package). Panics on error.
func MustEnvelope(kind string, v any) Envelope {
	env, err := NewEnvelope(kind, v)
	if err != nil {
		panic("protocol: " + err.Error())
	}
	return env
}

// DecodePayload decodes an envelope's payload into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Kind)
	}
	if err := codec.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", env.Kind, err)
	}
	return nil
}
