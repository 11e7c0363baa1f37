// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package glbpack

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression algorithm used in a packed model.
// Codec values are stored in packed headers (1 byte each) — changing
// them breaks every stored asset.
type Codec uint8

const (
	// CodecNone stores the container uncompressed. Pack falls back
	// to this when compression does not shrink the input (GLB files
	// with already-compressed textures are common).
	CodecNone Codec = 0

	// CodecLZ4 is LZ4 block compression: fast, modest ratio.
	CodecLZ4 Codec = 1

	// CodecZstd is zstd at the default level: the standard choice,
	// better ratio on JSON-heavy containers.
	CodecZstd Codec = 2
)

// String returns the codec's config-file name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec from its config-file name.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("glbpack: unknown codec %q", name)
	}
}

// Packed format constants. A packed model is:
// [4-byte magic "SRPK"] [1-byte format version] [1-byte codec]
// [2 reserved bytes] [4-byte big-endian uncompressed size]
// [compressed container bytes].
const (
	packMagic         = "SRPK"
	packFormatVersion = 1
	packHeaderSize    = 12
)

// ErrNotPacked reports input to Unpack that does not start with the
// packed-model header.
var ErrNotPacked = errors.New("glbpack: input is not a packed model")

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("glbpack: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("glbpack: zstd decoder initialization failed: " + err.Error())
	}
}

// Pack validates data as a GLB container and returns it in packed
// form using the requested codec. When the codec does not shrink the
// container, the result records CodecNone and carries the input
// verbatim, so Pack never inflates an asset beyond the fixed header.
//
// Pack is deterministic: identical input bytes and codec always
// produce identical output bytes.
func Pack(data []byte, codec Codec) ([]byte, error) {
	if err := ValidateGLB(data); err != nil {
		return nil, err
	}

	var compressed []byte
	switch codec {
	case CodecNone:
		compressed = data
	case CodecLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("glbpack: lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			codec = CodecNone
			compressed = data
		} else {
			compressed = destination[:written]
		}
	case CodecZstd:
		compressed = zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			codec = CodecNone
			compressed = data
		}
	default:
		return nil, fmt.Errorf("glbpack: unsupported codec %d", codec)
	}

	packed := make([]byte, packHeaderSize, packHeaderSize+len(compressed))
	copy(packed[0:4], packMagic)
	packed[4] = packFormatVersion
	packed[5] = byte(codec)
	binary.BigEndian.PutUint32(packed[8:12], uint32(len(data)))
	return append(packed, compressed...), nil
}

// Unpack decodes a packed model back to the original GLB container
// bytes.
func Unpack(packed []byte) ([]byte, error) {
	if len(packed) < packHeaderSize || string(packed[0:4]) != packMagic {
		return nil, ErrNotPacked
	}
	if version := packed[4]; version != packFormatVersion {
		return nil, fmt.Errorf("glbpack: unsupported format version %d", version)
	}
	codec := Codec(packed[5])
	uncompressedSize := int(binary.BigEndian.Uint32(packed[8:12]))
	compressed := packed[packHeaderSize:]

	switch codec {
	case CodecNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("glbpack: stored size %d does not match declared %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case CodecLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("glbpack: lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("glbpack: lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil
	case CodecZstd:
		destination, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("glbpack: zstd decompress: %w", err)
		}
		if len(destination) != uncompressedSize {
			return nil, fmt.Errorf("glbpack: zstd decompress: got %d bytes, expected %d", len(destination), uncompressedSize)
		}
		return destination, nil
	default:
		return nil, fmt.Errorf("glbpack: unsupported codec %d", codec)
	}
}

// IsPacked reports whether data begins with the packed-model header.
// The server uses this to keep re-running the pipeline idempotent: a
// blob that is already packed is never packed again.
func IsPacked(data []byte) bool {
	return len(data) >= packHeaderSize && string(data[0:4]) == packMagic
}
