package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	internalauth "scfingest/internal/auth"
	"scfingest/internal/blobstore"
	"scfingest/internal/config"
	"scfingest/internal/ingest"
	"scfingest/internal/server"
	"scfingest/internal/store"
)

const testPassword = "Secret123"

// captureOutput redirects command output for the duration of the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := outputWriter
	outputWriter = &buf
	t.Cleanup(func() { outputWriter = prev })
	return &buf
}

func withStdin(t *testing.T, value string) {
	t.Helper()
	prev := stdin
	stdin = strings.NewReader(value)
	t.Cleanup(func() { stdin = prev })
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "scfingest.db")
	cfg.Namespace = "scf"
	cfg.Upload.MaxFileBytes = 1024
	return &cfg
}

type testServer struct {
	cfg   *config.Config
	store *store.Store
	blobs *blobstore.MemoryStore
}

// startTestServer runs a real server over a temporary database and an
// in-memory blob store, with one account "alice".
func startTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig(t)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	hash, err := internalauth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := st.CreateUser(context.Background(), store.NewUser{Username: "alice", PasswordHash: hash}, time.Now().UTC()); err != nil {
		t.Fatalf("create user: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	blobs := blobstore.NewMemoryStore()
	srv, err := server.New(server.Options{
		Users:      st,
		Sessions:   st,
		Ledger:     st,
		Blobs:      blobs,
		Gateway:    ingest.NewGateway(blobs, ingest.WithNamespace(cfg.Namespace), ingest.WithLogger(logger)),
		Manifest:   ingest.DefaultManifest(cfg.Upload.MaxFileBytes),
		Health:     st.Ping,
		Logger:     logger,
		SessionTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg.APIURL = ts.URL
	return &testServer{cfg: cfg, store: st, blobs: blobs}
}
