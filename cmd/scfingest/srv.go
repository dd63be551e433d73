package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"scfingest/internal/blobstore"
	"scfingest/internal/config"
	"scfingest/internal/ingest"
	"scfingest/internal/metrics"
	"scfingest/internal/server"
	"scfingest/internal/store"
)

const sessionSweepInterval = time.Hour

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the scfingest web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Default().With("component", "server")

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			manifest, err := loadManifest(cfg)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			observer, err := metrics.NewObserver("", registry)
			if err != nil {
				return err
			}

			logger.Info("opening blob store", "backend", cfg.Storage.Backend)
			blobs, err := blobstore.Open(ctx, blobStoreConfig(cfg), observer)
			if err != nil {
				return err
			}

			gateway := ingest.NewGateway(blobs,
				ingest.WithNamespace(cfg.Namespace),
				ingest.WithConcurrency(cfg.Upload.Concurrency),
				ingest.WithObserver(observer),
				ingest.WithLogger(slog.Default().With("component", "ingest")),
			)

			srv, err := server.New(server.Options{
				Addr:               cfg.ListenAddr,
				Users:              st,
				Sessions:           st,
				Ledger:             st,
				Blobs:              blobs,
				Gateway:            gateway,
				Manifest:           manifest,
				Metrics:            metrics.Handler(registry),
				Health:             st.Ping,
				Logger:             logger,
				MaxRequestBytes:    cfg.Upload.MaxRequestBytes,
				MultipartMaxMemory: cfg.Upload.MultipartMaxMemory,
				SessionTTL:         cfg.Auth.SessionTTL,
				AllowRegistration:  cfg.Auth.AllowRegistration,
				SecureCookies:      cfg.Auth.SecureCookies,
				LoginMaxFailures:   cfg.Auth.LoginMaxFailures,
				LoginWindow:        cfg.Auth.LoginWindow,
				LoginBlock:         cfg.Auth.LoginBlock,
			})
			if err != nil {
				return err
			}

			go sweepExpiredSessions(ctx, st, logger)
			return srv.Run(ctx)
		},
	}
}

func blobStoreConfig(cfg *config.Config) blobstore.Config {
	return blobstore.Config{
		Backend: cfg.Storage.Backend,
		Root:    cfg.Storage.Root,
		S3: blobstore.S3Config{
			Bucket:       cfg.Storage.Bucket,
			Prefix:       cfg.Storage.Prefix,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.PathStyle,
		},
		Retry: blobstore.RetryOptions{
			AttemptTimeout: cfg.Storage.PutTimeout,
			MaxRetries:     cfg.Storage.MaxRetries,
		},
	}
}

func sweepExpiredSessions(ctx context.Context, st store.SessionStore, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := st.DeleteExpiredSessions(ctx, now.UTC())
			if err != nil {
				logger.Warn("sweep expired sessions", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("swept expired sessions", "count", removed)
			}
		}
	}
}
