// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package glbpack implements the server-side compression stage for
// uploaded 3D models. It validates a GLB (binary glTF) container and
// recompresses it into Showroom's packed form: a small tagged header
// followed by the original container compressed with zstd or LZ4.
//
// Pack is a pure transform — deterministic for identical input bytes —
// and Unpack inverts it exactly. Malformed input is rejected with
// [ErrMalformed]; the ingestion pipeline maps that to an upload_error
// for the uploader.
package glbpack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed reports input that is not a structurally valid GLB
// container. Wrapped by the specific validation failures; check with
// errors.Is.
var ErrMalformed = errors.New("glbpack: malformed GLB container")

// GLB container constants (glTF 2.0 specification §4.4).
const (
	// glbMagic is the little-endian uint32 form of "glTF".
	glbMagic = 0x46546C67

	// glbVersion is the only container version this package accepts.
	glbVersion = 2

	// glbHeaderSize is the fixed container header: magic, version,
	// total length (three uint32s).
	glbHeaderSize = 12

	// chunkHeaderSize is the per-chunk header: length and type.
	chunkHeaderSize = 8

	// chunkTypeJSON and chunkTypeBIN identify the two chunk kinds a
	// GLB may carry. The JSON chunk must come first.
	chunkTypeJSON = 0x4E4F534A
	chunkTypeBIN  = 0x004E4942
)

// ValidateGLB checks that data is a structurally valid GLB container:
// correct magic and version, a declared length matching the byte
// count, and a well-formed chunk table starting with a JSON chunk.
// Chunk payloads are not parsed — content validity is the renderer's
// problem, not the relay's.
func ValidateGLB(data []byte) error {
	if len(data) < glbHeaderSize {
		return fmt.Errorf("%w: %d bytes is shorter than the container header", ErrMalformed, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != glbMagic {
		return fmt.Errorf("%w: bad magic 0x%08x", ErrMalformed, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != glbVersion {
		return fmt.Errorf("%w: unsupported container version %d", ErrMalformed, version)
	}
	if declared := binary.LittleEndian.Uint32(data[8:12]); int(declared) != len(data) {
		return fmt.Errorf("%w: declared length %d does not match %d actual bytes", ErrMalformed, declared, len(data))
	}

	offset := glbHeaderSize
	first := true
	for offset < len(data) {
		if len(data)-offset < chunkHeaderSize {
			return fmt.Errorf("%w: truncated chunk header at offset %d", ErrMalformed, offset)
		}
		chunkLength := binary.LittleEndian.Uint32(data[offset : offset+4])
		chunkType := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		if chunkLength%4 != 0 {
			return fmt.Errorf("%w: chunk at offset %d has unaligned length %d", ErrMalformed, offset, chunkLength)
		}
		if first {
			if chunkType != chunkTypeJSON {
				return fmt.Errorf("%w: first chunk type 0x%08x is not JSON", ErrMalformed, chunkType)
			}
			first = false
		} else if chunkType != chunkTypeJSON && chunkType != chunkTypeBIN {
			return fmt.Errorf("%w: unknown chunk type 0x%08x at offset %d", ErrMalformed, chunkType, offset)
		}
		offset += chunkHeaderSize
		if len(data)-offset < int(chunkLength) {
			return fmt.Errorf("%w: chunk at offset %d declares %d bytes but only %d remain",
				ErrMalformed, offset-chunkHeaderSize, chunkLength, len(data)-offset)
		}
		offset += int(chunkLength)
	}
	if first {
		return fmt.Errorf("%w: container has no chunks", ErrMalformed)
	}
	return nil
}
