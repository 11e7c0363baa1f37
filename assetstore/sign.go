// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/showroom3d/showroom/lib/clock"
)

// Errors returned by VerifyWrite.
var (
	ErrURLExpired   = errors.New("assetstore: upload URL has expired")
	ErrBadSignature = errors.New("assetstore: invalid upload URL signature")
)

// signingKeySize is the derived HMAC key length.
const signingKeySize = 32

// Signer issues and verifies write-capability URLs. A capability URL
// is scope-limited (one storage key, PUT only) and time-bounded; it
// carries an HMAC-SHA256 signature over the key and expiry, so the
// server can verify it statelessly — no record of issued URLs is
// kept, and an unused URL simply expires.
type Signer struct {
	key     []byte
	baseURL string
	clock   clock.Clock
}

// NewSigner derives the URL-signing key from masterSecret via
// HKDF-SHA256 and returns a signer whose URLs are rooted at baseURL
// (scheme://host:port, no trailing slash).
func NewSigner(masterSecret []byte, baseURL string, clk clock.Clock) (*Signer, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("assetstore: master secret is empty")
	}
	if baseURL == "" {
		return nil, errors.New("assetstore: base URL is required")
	}
	key := make([]byte, signingKeySize)
	reader := hkdf.New(sha256.New, masterSecret, nil, []byte("showroom upload url v1"))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("assetstore: deriving signing key: %w", err)
	}
	return &Signer{key: key, baseURL: baseURL, clock: clk}, nil
}

// SignWrite returns a URL permitting a direct PUT of the object at key
// until ttl elapses.
func (s *Signer) SignWrite(key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	expires := s.clock.Now().Add(ttl).Unix()
	signature := s.signature(key, expires)

	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("signature", signature)
	return fmt.Sprintf("%s/upload/%s?%s", s.baseURL, key, query.Encode()), nil
}

// VerifyWrite checks the expiry and signature of an upload request for
// key. Returns ErrURLExpired or ErrBadSignature on failure.
func (s *Signer) VerifyWrite(key, expiresValue, signatureValue string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	expires, err := strconv.ParseInt(expiresValue, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparseable expiry", ErrBadSignature)
	}

	// Check the signature before the expiry so a forged URL never
	// learns whether its guessed expiry was plausible.
	want := s.signature(key, expires)
	if !hmac.Equal([]byte(signatureValue), []byte(want)) {
		return ErrBadSignature
	}
	if s.clock.Now().Unix() > expires {
		return ErrURLExpired
	}
	return nil
}

// signature computes the hex HMAC-SHA256 over the capability scope:
// method, key, and expiry.
func (s *Signer) signature(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "PUT\n%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
