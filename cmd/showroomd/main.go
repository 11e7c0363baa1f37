// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/spf13/pflag"

	"github.com/showroom3d/showroom/assetindex"
	"github.com/showroom3d/showroom/assetstore"
	"github.com/showroom3d/showroom/ingest"
	"github.com/showroom3d/showroom/lib/clock"
	"github.com/showroom3d/showroom/lib/config"
	"github.com/showroom3d/showroom/lib/service"
	"github.com/showroom3d/showroom/lib/version"
	"github.com/showroom3d/showroom/protocol"
	"github.com/showroom3d/showroom/seed"
	"github.com/showroom3d/showroom/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("showroomd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to showroom.yaml (overrides SHOWROOM_CONFIG)")

	// Handle --version before flag parsing to match other showroom
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("showroomd")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := service.NewLogger()

	ctx, stop := service.SignalContext()
	defer stop()

	secret, err := cfg.SigningSecret()
	if err != nil {
		return err
	}
	signer, err := assetstore.NewSigner(secret, cfg.Storage.PublicBaseURL, clock.Real())
	if err != nil {
		return fmt.Errorf("creating URL signer: %w", err)
	}
	store, err := assetstore.NewFS(cfg.Storage.Root, signer)
	if err != nil {
		return fmt.Errorf("opening asset store: %w", err)
	}
	index, err := assetindex.Open(assetindex.Config{
		Path:   cfg.Storage.IndexPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening metadata index: %w", err)
	}
	defer index.Close()

	if cfg.SeedManifest != "" {
		manifest, err := seed.ReadFile(cfg.SeedManifest)
		if err != nil {
			return fmt.Errorf("loading seed manifest: %w", err)
		}
		applied, err := seed.Apply(ctx, manifest, index, store, logger)
		if err != nil {
			return fmt.Errorf("seeding curated models: %w", err)
		}
		logger.Info("curated models seeded", "manifest", cfg.SeedManifest, "models", applied)
	}

	codec, err := cfg.ParsedCodec()
	if err != nil {
		return err
	}
	urlTTL, err := cfg.ParsedURLTTL()
	if err != nil {
		return err
	}

	// The pipeline announces through the hub; the hub drives the
	// pipeline. The closure breaks the construction cycle: nothing
	// announces before the hub serves its first connection.
	var hub *session.Hub
	pipeline := ingest.New(ingest.Config{
		Store:  store,
		Index:  index,
		Codec:  codec,
		URLTTL: urlTTL,
		Announce: func(event protocol.ModelUploaded) {
			hub.AnnounceUpload(event)
		},
		Logger: logger,
	})
	hub = session.NewHub(session.Config{
		Store:  store,
		Index:  index,
		Ingest: pipeline,
		Logger: logger,
	})

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Listen.HTTP,
		Handler: assetstore.Handler(store, logger),
		Logger:  logger,
	})
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.Serve(ctx)
	}()

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- serveSession(ctx, cfg.Listen.Session, hub, logger)
	}()

	logger.Info("showroomd running",
		"session", cfg.Listen.Session,
		"http", cfg.Listen.HTTP,
		"store", cfg.Storage.Root,
		"codec", codec.String(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-sessionDone; err != nil {
		logger.Error("session listener error", "error", err)
	}
	if err := <-httpDone; err != nil {
		logger.Error("http server error", "error", err)
	}
	return nil
}

// serveSession accepts session connections until ctx is cancelled,
// then waits for the per-connection goroutines to finish. Connection
// teardown is driven by ServeConn, which closes sockets when the
// context ends.
func serveSession(ctx context.Context, address string, hub *session.Hub, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger.Info("session listener ready", "address", listener.Addr())

	var connections sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("accepting session connection: %w", err)
		}
		connections.Add(1)
		go func() {
			defer connections.Done()
			hub.ServeConn(ctx, conn)
		}()
	}
	connections.Wait()
	return nil
}
