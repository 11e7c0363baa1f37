// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"net"
	"sync"

	"github.com/showroom3d/showroom/protocol"
)

// outboundChannelSize is the buffer size for a connection's outbound
// envelope channel. Camera relays arrive at display rate, so the
// buffer must absorb short write stalls; a connection that stays
// behind for this many envelopes is dropped rather than allowed to
// stall the hub.
const outboundChannelSize = 256

// conn is one registered connection. Envelopes are queued on the
// outbound channel by the hub's dispatch and broadcast paths and
// written to the socket by a single writer goroutine, so socket writes
// never happen under the hub lock.
type conn struct {
	id       string
	netConn  net.Conn
	outbound chan protocol.Envelope
	logger   *slog.Logger

	// closeOnce guards the transition to closed: the reader loop, the
	// writer goroutine, and the hub's overflow pruning can all race to
	// close the connection.
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(id string, netConn net.Conn, logger *slog.Logger) *conn {
	return &conn{
		id:       id,
		netConn:  netConn,
		outbound: make(chan protocol.Envelope, outboundChannelSize),
		logger:   logger.With("conn", id),
		closed:   make(chan struct{}),
	}
}

// send queues an envelope for the writer goroutine without blocking.
// Reports false when the connection is closed or its buffer is full;
// a full buffer means the peer has stopped reading and the caller
// should prune the connection.
func (c *conn) send(envelope protocol.Envelope) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.outbound <- envelope:
		return true
	default:
		return false
	}
}

// writeLoop drains the outbound channel onto the socket. Runs as a
// goroutine for the lifetime of the connection; a write error closes
// the connection, which in turn ends the reader loop.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case envelope := <-c.outbound:
			if err := protocol.WriteEnvelope(c.netConn, envelope); err != nil {
				c.logger.Debug("write failed, closing connection", "error", err)
				c.close()
				return
			}
		}
	}
}

// close shuts the socket down exactly once. Closing the socket unblocks
// the reader loop, whose cleanup path releases the lease and
// unregisters the connection.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.netConn.Close()
	})
}
