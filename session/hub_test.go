// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/showroom3d/showroom/assetindex"
	"github.com/showroom3d/showroom/assetstore"
	"github.com/showroom3d/showroom/glbpack"
	"github.com/showroom3d/showroom/ingest"
	"github.com/showroom3d/showroom/lib/clock"
	"github.com/showroom3d/showroom/protocol"
)

// hubFixture wires a hub to a real store, index, and ingest pipeline,
// the way main does, and hands out in-process client connections.
type hubFixture struct {
	t     *testing.T
	hub   *Hub
	store *assetstore.FS
	index *assetindex.Index
	ctx   context.Context
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	signer, err := assetstore.NewSigner([]byte("hub test secret"), "http://store.test", clock.Real())
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	store, err := assetstore.NewFS(t.TempDir(), signer)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	index, err := assetindex.Open(assetindex.Config{
		Path: filepath.Join(t.TempDir(), "index.db"),
	})
	if err != nil {
		t.Fatalf("Open index: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &hubFixture{t: t, store: store, index: index, ctx: ctx}
	var hub *Hub
	pipeline := ingest.New(ingest.Config{
		Store: store,
		Index: index,
		Codec: glbpack.CodecZstd,
		Announce: func(event protocol.ModelUploaded) {
			hub.AnnounceUpload(event)
		},
	})
	hub = NewHub(Config{
		Store:  store,
		Index:  index,
		Ingest: pipeline,
	})
	f.hub = hub
	return f
}

// connect opens one in-process connection served by the hub.
func (f *hubFixture) connect() *testClient {
	f.t.Helper()
	clientSide, serverSide := net.Pipe()
	before := f.hub.ConnCount()
	go f.hub.ServeConn(f.ctx, serverSide)
	f.t.Cleanup(func() { clientSide.Close() })

	waitFor(f.t, func() bool { return f.hub.ConnCount() > before })
	return &testClient{t: f.t, conn: clientSide}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached within 5s")
		}
		time.Sleep(time.Millisecond)
	}
}

type testClient struct {
	t    *testing.T
	conn net.Conn
}

func (tc *testClient) send(kind string, payload any) {
	tc.t.Helper()
	envelope, err := protocol.NewEnvelope(kind, payload)
	if err != nil {
		tc.t.Fatalf("encoding %s: %v", kind, err)
	}
	if err := protocol.WriteEnvelope(tc.conn, envelope); err != nil {
		tc.t.Fatalf("sending %s: %v", kind, err)
	}
}

func (tc *testClient) sendKind(kind string) {
	tc.t.Helper()
	if err := protocol.WriteEnvelope(tc.conn, protocol.Envelope{Kind: kind}); err != nil {
		tc.t.Fatalf("sending %s: %v", kind, err)
	}
}

func (tc *testClient) recv() protocol.Envelope {
	tc.t.Helper()
	tc.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	envelope, err := protocol.ReadEnvelope(tc.conn)
	if err != nil {
		tc.t.Fatalf("reading envelope: %v", err)
	}
	return envelope
}

func (tc *testClient) expectKind(kind string) protocol.Envelope {
	tc.t.Helper()
	envelope := tc.recv()
	if envelope.Kind != kind {
		tc.t.Fatalf("received %q, want %q", envelope.Kind, kind)
	}
	return envelope
}

// expectNothing asserts that no envelope arrives within a short
// window. Used to verify silent drops.
func (tc *testClient) expectNothing() {
	tc.t.Helper()
	tc.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	defer tc.conn.SetReadDeadline(time.Time{})
	envelope, err := protocol.ReadEnvelope(tc.conn)
	if err == nil {
		tc.t.Fatalf("received unexpected %q envelope", envelope.Kind)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		tc.t.Fatalf("read failed with %v, want deadline exceeded", err)
	}
}

func hubTestGLB(t *testing.T) []byte {
	t.Helper()
	jsonChunk := []byte(`{"asset":{"version":"2.0"}}`)
	for len(jsonChunk)%4 != 0 {
		jsonChunk = append(jsonChunk, ' ')
	}
	var buffer bytes.Buffer
	writeUint32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buffer.Write(b[:])
	}
	writeUint32(0x46546C67)
	writeUint32(2)
	writeUint32(uint32(12 + 8 + len(jsonChunk)))
	writeUint32(uint32(len(jsonChunk)))
	writeUint32(0x4E4F534A)
	buffer.Write(jsonChunk)
	return buffer.Bytes()
}

func TestControlMutualExclusion(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	clients := []*testClient{f.connect(), f.connect(), f.connect()}
	granted := 0
	for _, client := range clients {
		client.sendKind(protocol.KindRequestControl)
		switch envelope := client.recv(); envelope.Kind {
		case protocol.KindControlGranted:
			granted++
		case protocol.KindControlDenied:
		default:
			t.Fatalf("unexpected reply %q", envelope.Kind)
		}
	}
	if granted != 1 {
		t.Errorf("granted to %d connections, want 1", granted)
	}
}

func TestControlIdempotentRegrant(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	holder := f.connect()
	for i := 0; i < 3; i++ {
		holder.sendKind(protocol.KindRequestControl)
		holder.expectKind(protocol.KindControlGranted)
	}
}

func TestControlReleasedOnDisconnect(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	holder := f.connect()
	holder.sendKind(protocol.KindRequestControl)
	holder.expectKind(protocol.KindControlGranted)

	other := f.connect()
	other.sendKind(protocol.KindRequestControl)
	other.expectKind(protocol.KindControlDenied)

	holder.conn.Close()
	waitFor(t, func() bool { return f.hub.Arbiter().Holder() == "" })

	other.sendKind(protocol.KindRequestControl)
	other.expectKind(protocol.KindControlGranted)
}

func TestCameraRelayExcludesSender(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	holder := f.connect()
	viewerA := f.connect()
	viewerB := f.connect()

	holder.sendKind(protocol.KindRequestControl)
	holder.expectKind(protocol.KindControlGranted)

	camera := map[string]any{"position": []float64{1, 2, 3}}
	holder.send(protocol.KindCameraUpdate, camera)

	for _, viewer := range []*testClient{viewerA, viewerB} {
		envelope := viewer.expectKind(protocol.KindCameraUpdate)
		var relayed map[string]any
		if err := protocol.DecodePayload(envelope, &relayed); err != nil {
			t.Fatalf("decoding relayed camera payload: %v", err)
		}
		if _, ok := relayed["position"]; !ok {
			t.Errorf("relayed payload lost the position field: %v", relayed)
		}
	}
	holder.expectNothing()
}

func TestRelayFromNonHolderIsDropped(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	holder := f.connect()
	intruder := f.connect()
	viewer := f.connect()

	holder.sendKind(protocol.KindRequestControl)
	holder.expectKind(protocol.KindControlGranted)

	intruder.send(protocol.KindCameraUpdate, map[string]any{"position": []float64{9, 9, 9}})
	intruder.send(protocol.KindSettingsUpdate, map[string]any{"exposure": 2.0})
	intruder.send(protocol.KindSettingsUpdateLocal, map[string]any{"exposure": 2.0})

	// Synchronize: a request_control reply proves the intruder's
	// earlier events have been dispatched.
	intruder.sendKind(protocol.KindRequestControl)
	intruder.expectKind(protocol.KindControlDenied)

	viewer.expectNothing()
	intruder.expectNothing()
}

func TestSettingsUpdateLocalEchoesToSenderOnly(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	holder := f.connect()
	viewer := f.connect()

	holder.sendKind(protocol.KindRequestControl)
	holder.expectKind(protocol.KindControlGranted)

	holder.send(protocol.KindSettingsUpdateLocal, map[string]any{"exposure": 1.5})
	holder.expectKind(protocol.KindSettingsUpdateLocal)
	viewer.expectNothing()
}

func TestModelSwitchIsNotGated(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	holder := f.connect()
	switcher := f.connect()
	viewer := f.connect()

	holder.sendKind(protocol.KindRequestControl)
	holder.expectKind(protocol.KindControlGranted)

	// The switcher does not hold the lease, and still drives the
	// model index of every other connection.
	switcher.send(protocol.KindModelSwitch, protocol.ModelSwitch{Index: 2})

	for _, receiver := range []*testClient{holder, viewer} {
		envelope := receiver.expectKind(protocol.KindUpdateIndex)
		var payload protocol.ModelSwitch
		if err := protocol.DecodePayload(envelope, &payload); err != nil {
			t.Fatalf("decoding update_index: %v", err)
		}
		if payload.Index != 2 {
			t.Errorf("relayed index: got %d, want 2", payload.Index)
		}
	}
	switcher.expectNothing()
}

func TestGetFilesGroupsByCategory(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)
	ctx := context.Background()

	for _, record := range []assetindex.Record{
		{ID: "chair.glb", Author: "Alice", Category: "curated", StorageURL: "http://store.test/assets/curated/chair.glb"},
		{ID: "lamp.glb", Author: "Bob", Category: "user-models", StorageURL: "http://store.test/assets/user-models/lamp.glb"},
	} {
		if err := f.index.Put(ctx, record); err != nil {
			t.Fatalf("seeding index: %v", err)
		}
	}

	client := f.connect()
	client.sendKind(protocol.KindGetFiles)
	envelope := client.expectKind(protocol.KindFilesList)

	var list protocol.FilesList
	if err := protocol.DecodePayload(envelope, &list); err != nil {
		t.Fatalf("decoding files_list: %v", err)
	}
	if len(list.Groups) != 2 {
		t.Fatalf("groups: got %d, want 2: %v", len(list.Groups), list.Groups)
	}
	curated := list.Groups["curated"]
	if len(curated) != 1 || curated[0].ID != "chair.glb" || curated[0].Author != "Alice" {
		t.Errorf("curated group: got %+v", curated)
	}
	userModels := list.Groups["user-models"]
	if len(userModels) != 1 || userModels[0].URL != "http://store.test/assets/user-models/lamp.glb" {
		t.Errorf("user-models group: got %+v", userModels)
	}
}

func TestUploadPipelineOverTheWire(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)
	ctx := context.Background()

	uploader := f.connect()
	viewer := f.connect()

	uploader.send(protocol.KindRequestPresignedURL, protocol.PresignRequest{
		FileName: "cube.glb",
		Category: "user-models",
	})
	envelope := uploader.expectKind(protocol.KindPresignedURL)
	var presigned protocol.PresignResponse
	if err := protocol.DecodePayload(envelope, &presigned); err != nil {
		t.Fatalf("decoding presigned_url: %v", err)
	}
	if presigned.FileName != "cube.glb" {
		t.Errorf("echoed file name: got %q", presigned.FileName)
	}
	if !strings.Contains(presigned.UploadURL, "user-models/cube.glb") {
		t.Errorf("upload URL %q does not contain the storage key", presigned.UploadURL)
	}

	// The direct upload happens outside the event channel.
	key := assetstore.Key("user-models", "cube.glb")
	if err := f.store.Put(ctx, key, hubTestGLB(t), "model/gltf-binary"); err != nil {
		t.Fatalf("simulated upload: %v", err)
	}

	uploader.send(protocol.KindUploadComplete, protocol.UploadCompleteRequest{
		FileName: "cube.glb",
		Author:   "Alice",
		Category: "user-models",
	})

	// Every connection hears model_uploaded exactly once; the uploader
	// additionally gets upload_success, after the announcement.
	announced := uploader.expectKind(protocol.KindModelUploaded)
	var event protocol.ModelUploaded
	if err := protocol.DecodePayload(announced, &event); err != nil {
		t.Fatalf("decoding model_uploaded: %v", err)
	}
	if event.FileName != "cube.glb" || event.Author != "Alice" || event.Category != "user-models" {
		t.Errorf("announcement: got %+v", event)
	}
	if !strings.Contains(event.ModelURL, "user-models") || !strings.Contains(event.ModelURL, "cube.glb") {
		t.Errorf("model URL %q does not contain category and id", event.ModelURL)
	}
	uploader.expectKind(protocol.KindUploadSuccess)
	viewer.expectKind(protocol.KindModelUploaded)
	viewer.expectNothing()

	// The asset is now listed.
	uploader.sendKind(protocol.KindGetFiles)
	listEnvelope := uploader.expectKind(protocol.KindFilesList)
	var list protocol.FilesList
	if err := protocol.DecodePayload(listEnvelope, &list); err != nil {
		t.Fatalf("decoding files_list: %v", err)
	}
	if len(list.Groups["user-models"]) != 1 {
		t.Errorf("listing after upload: got %v", list.Groups)
	}
}

func TestUploadErrorOnMalformedAsset(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)
	ctx := context.Background()

	uploader := f.connect()
	viewer := f.connect()

	key := assetstore.Key("user-models", "broken.glb")
	if err := f.store.Put(ctx, key, []byte("not a model"), "model/gltf-binary"); err != nil {
		t.Fatalf("simulated upload: %v", err)
	}

	uploader.send(protocol.KindUploadComplete, protocol.UploadCompleteRequest{
		FileName: "broken.glb",
		Author:   "Alice",
		Category: "user-models",
	})
	envelope := uploader.expectKind(protocol.KindUploadError)
	var failure protocol.Error
	if err := protocol.DecodePayload(envelope, &failure); err != nil {
		t.Fatalf("decoding upload_error: %v", err)
	}
	if failure.Message == "" {
		t.Error("upload_error carries no message")
	}
	viewer.expectNothing()

	if _, err := f.index.Get(ctx, "broken.glb"); !errors.Is(err, assetindex.ErrNotFound) {
		t.Errorf("index after failed upload: got %v, want ErrNotFound", err)
	}
}

func TestDeleteFileRemovesBlobAndRecord(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)
	ctx := context.Background()

	key := assetstore.Key("user-models", "cube.glb")
	if err := f.store.Put(ctx, key, hubTestGLB(t), "model/gltf-binary"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := f.index.Put(ctx, assetindex.Record{
		ID:       "cube.glb",
		Category: "user-models",
	}); err != nil {
		t.Fatalf("index Put: %v", err)
	}

	client := f.connect()
	client.send(protocol.KindDeleteFile, protocol.DeleteFileRequest{
		FileName: "cube.glb",
		Category: "user-models",
	})
	envelope := client.expectKind(protocol.KindDeleteSuccess)
	var success protocol.DeleteSuccess
	if err := protocol.DecodePayload(envelope, &success); err != nil {
		t.Fatalf("decoding delete_success: %v", err)
	}
	if success.FileName != "cube.glb" {
		t.Errorf("deleted file name: got %q", success.FileName)
	}

	if _, err := f.store.Get(ctx, key); !errors.Is(err, assetstore.ErrNotFound) {
		t.Errorf("blob after delete: got %v, want ErrNotFound", err)
	}
	if _, err := f.index.Get(ctx, "cube.glb"); !errors.Is(err, assetindex.ErrNotFound) {
		t.Errorf("record after delete: got %v, want ErrNotFound", err)
	}

	client.sendKind(protocol.KindGetFiles)
	listEnvelope := client.expectKind(protocol.KindFilesList)
	var list protocol.FilesList
	if err := protocol.DecodePayload(listEnvelope, &list); err != nil {
		t.Fatalf("decoding files_list: %v", err)
	}
	if len(list.Groups["user-models"]) != 0 {
		t.Errorf("listing after delete still contains the asset: %v", list.Groups)
	}
}

func TestDeleteMissingBlobReportsError(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	client := f.connect()
	client.send(protocol.KindDeleteFile, protocol.DeleteFileRequest{
		FileName: "ghost.glb",
		Category: "user-models",
	})
	client.expectKind(protocol.KindDeleteError)
}

func TestUnknownKindIsIgnored(t *testing.T) {
	t.Parallel()
	f := newHubFixture(t)

	client := f.connect()
	client.sendKind("future_event")

	// The connection survives and keeps working.
	client.sendKind(protocol.KindRequestControl)
	client.expectKind(protocol.KindControlGranted)
}
