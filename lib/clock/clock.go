// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake() and advance it deterministically.
// Signed upload URLs carry wall-clock expiries, so every component
// that issues or verifies them takes a Clock instead of calling
// time.Now directly.
package clock

import "time"

// Clock provides the time operations Showroom needs. Production
// functions that would otherwise call time.Now or time.After accept a
// Clock parameter (or live on a struct with a Clock field).
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
