// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package assetstore

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/showroom3d/showroom/lib/clock"
)

// signedQuery extracts the expires and signature parameters from a
// signed URL.
func signedQuery(t *testing.T, signed string) (expires, signature string) {
	t.Helper()
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parsing signed URL %q: %v", signed, err)
	}
	return parsed.Query().Get("expires"), parsed.Query().Get("signature")
}

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	signer, err := NewSigner([]byte("secret"), "http://store.test", fake)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	signed, err := signer.SignWrite("user-models/cube.glb", 5*time.Minute)
	if err != nil {
		t.Fatalf("SignWrite: %v", err)
	}
	if !strings.HasPrefix(signed, "http://store.test/upload/user-models/cube.glb?") {
		t.Errorf("signed URL has unexpected shape: %q", signed)
	}

	expires, signature := signedQuery(t, signed)
	if err := signer.VerifyWrite("user-models/cube.glb", expires, signature); err != nil {
		t.Errorf("VerifyWrite: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	signer, err := NewSigner([]byte("secret"), "http://store.test", fake)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	signed, err := signer.SignWrite("user-models/cube.glb", 5*time.Minute)
	if err != nil {
		t.Fatalf("SignWrite: %v", err)
	}
	expires, signature := signedQuery(t, signed)

	// Still valid just before the deadline.
	fake.Advance(5 * time.Minute)
	if err := signer.VerifyWrite("user-models/cube.glb", expires, signature); err != nil {
		t.Errorf("VerifyWrite at deadline: %v", err)
	}

	fake.Advance(time.Second)
	err = signer.VerifyWrite("user-models/cube.glb", expires, signature)
	if !errors.Is(err, ErrURLExpired) {
		t.Errorf("VerifyWrite after expiry: got %v, want ErrURLExpired", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	signer, err := NewSigner([]byte("secret"), "http://store.test", fake)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	signed, err := signer.SignWrite("user-models/cube.glb", 5*time.Minute)
	if err != nil {
		t.Fatalf("SignWrite: %v", err)
	}
	expires, signature := signedQuery(t, signed)

	tests := []struct {
		name                    string
		key, expires, signature string
	}{
		{"different key", "user-models/other.glb", expires, signature},
		{"different category", "curated/cube.glb", expires, signature},
		{"stretched expiry", "user-models/cube.glb", "9999999999", signature},
		{"garbage signature", "user-models/cube.glb", expires, "deadbeef"},
		{"empty signature", "user-models/cube.glb", expires, ""},
		{"unparseable expiry", "user-models/cube.glb", "tomorrow", signature},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := signer.VerifyWrite(test.key, test.expires, test.signature); err == nil {
				t.Error("VerifyWrite accepted a tampered request")
			}
		})
	}
}

func TestSignerKeysDifferBySecret(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	first, err := NewSigner([]byte("secret one"), "http://store.test", fake)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	second, err := NewSigner([]byte("secret two"), "http://store.test", fake)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	signed, err := first.SignWrite("user-models/cube.glb", 5*time.Minute)
	if err != nil {
		t.Fatalf("SignWrite: %v", err)
	}
	expires, signature := signedQuery(t, signed)
	if err := second.VerifyWrite("user-models/cube.glb", expires, signature); err == nil {
		t.Error("signer with a different secret accepted the URL")
	}
}
