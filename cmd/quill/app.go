package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quillpress/quill/internal/engine"
	"github.com/quillpress/quill/internal/netcheck"
	"github.com/quillpress/quill/internal/remote"
	"github.com/quillpress/quill/internal/store"
)

func openStore(ctx context.Context) *store.Store {
	st, err := store.OpenContext(ctx, cfg.DB)
	if err != nil {
		fatal("failed to open article store: %v", err)
	}
	return st
}

func newClient() *remote.Client {
	if cfg.Server.URL == "" {
		fatal("no sync server configured (set server.url, QUILL_SERVER_URL or --server)")
	}
	client, err := remote.New(remote.Config{
		BaseURL: cfg.Server.URL,
		Token:   cfg.Server.Token,
		Timeout: cfg.Server.Timeout,
		Logger:  logger,
	})
	if err != nil {
		fatal("%v", err)
	}
	return client
}

// newEngine wires the store, the client and a connectivity probe that
// pings the sync server.
func newEngine(st *store.Store, client *remote.Client, observer engine.Observer) *engine.Engine {
	probe := netcheck.NewPingProbe(client, 0, 0, logger)

	eng, err := engine.New(st, client, probe, &engine.Config{
		PushPacing:   cfg.Sync.Pacing,
		RetryBase:    cfg.Sync.RetryBase,
		RetryMax:     cfg.Sync.RetryMax,
		MaxRetries:   cfg.Sync.MaxRetries,
		SyncOnCreate: cfg.Sync.OnCreate,
		Confirm:      engine.ConfirmMode(cfg.Sync.Confirm),
		Logger:       logger,
		Observer:     observer,
	})
	if err != nil {
		fatal("%v", err)
	}
	return eng
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
