// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is a Go client for the showroom session channel. It
// dials the server's session listener, exchanges protocol envelopes,
// and performs direct uploads against signed URLs.
//
// The session channel is fully asynchronous: server events (relays,
// announcements) interleave with replies to the client's own requests.
// The client therefore exposes Send and Recv rather than call-style
// request/response methods; callers route received envelopes by kind.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/showroom3d/showroom/protocol"
)

// Client is one session connection. Send is safe for concurrent use;
// Recv must be called from a single goroutine.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	// httpClient performs direct uploads. Replaceable for tests.
	httpClient *http.Client
}

// Dial connects to the server's session listener.
func Dial(ctx context.Context, address string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing session channel: %w", err)
	}
	return &Client{
		conn:       conn,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Close tears down the connection. The server releases any control
// lease the connection held.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes one event. A nil payload sends a bare kind.
func (c *Client) Send(kind string, payload any) error {
	envelope, err := protocol.NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteEnvelope(c.conn, envelope)
}

// Recv blocks until the next server event arrives.
func (c *Client) Recv() (protocol.Envelope, error) {
	return protocol.ReadEnvelope(c.conn)
}

// RecvTimeout is Recv with a read deadline. The deadline is cleared
// before returning.
func (c *Client) RecvTimeout(timeout time.Duration) (protocol.Envelope, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Envelope{}, err
	}
	defer c.conn.SetReadDeadline(time.Time{})
	return protocol.ReadEnvelope(c.conn)
}

// RequestControl asks for the scene control lease. The server answers
// with control_granted or control_denied on the event stream.
func (c *Client) RequestControl() error {
	return c.Send(protocol.KindRequestControl, nil)
}

// GetFiles requests the grouped asset listing.
func (c *Client) GetFiles() error {
	return c.Send(protocol.KindGetFiles, nil)
}

// RequestUploadURL asks for a signed upload URL for a new asset.
func (c *Client) RequestUploadURL(fileName, category string) error {
	return c.Send(protocol.KindRequestPresignedURL, protocol.PresignRequest{
		FileName: fileName,
		Category: category,
	})
}

// CompleteUpload notifies the server that the direct upload finished.
func (c *Client) CompleteUpload(fileName, author, category string) error {
	return c.Send(protocol.KindUploadComplete, protocol.UploadCompleteRequest{
		FileName: fileName,
		Author:   author,
		Category: category,
	})
}

// DeleteFile requests deletion of an asset.
func (c *Client) DeleteFile(fileName, category string) error {
	return c.Send(protocol.KindDeleteFile, protocol.DeleteFileRequest{
		FileName: fileName,
		Category: category,
	})
}

// Upload PUTs model bytes to a signed upload URL. The URL comes from a
// presigned_url reply and is only honored by the store until its
// expiry.
func (c *Client) Upload(ctx context.Context, uploadURL string, data []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	request.Header.Set("Content-Type", "model/gltf-binary")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("upload rejected: %s: %s", response.Status, bytes.TrimSpace(body))
	}
	return nil
}
