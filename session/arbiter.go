// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the shared viewing session: the control
// lease arbiter, the connection hub, and the dispatch of every client
// event kind over the framed CBOR protocol.
package session

import "sync"

// Arbiter hands out the scene control lease. At most one connection
// holds the lease at a time; every mutation relay (camera, settings)
// is gated on holding it. There is no queue and no timeout: a denied
// requester simply asks again later, and the lease frees only when the
// holder disconnects.
type Arbiter struct {
	mu     sync.Mutex
	holder string
}

// NewArbiter returns an arbiter with the lease free.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Request grants the lease to id when it is free, and reports whether
// id now holds it. Re-requesting while already the holder succeeds
// without changing anything, so a client that retries after a dropped
// response converges on the same answer.
func (a *Arbiter) Request(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == "" || a.holder == id {
		a.holder = id
		return true
	}
	return false
}

// Release frees the lease if id holds it. Releasing a lease held by
// someone else, or no lease at all, is a no-op: disconnect cleanup
// calls this unconditionally.
func (a *Arbiter) Release(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == id {
		a.holder = ""
	}
}

// Holder returns the id of the current lease holder, or "" when the
// lease is free.
func (a *Arbiter) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}

// HolderIs reports whether id currently holds the lease.
func (a *Arbiter) HolderIs(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder != "" && a.holder == id
}
