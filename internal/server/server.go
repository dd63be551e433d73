package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"scfingest/internal/blobstore"
	"scfingest/internal/ingest"
	"scfingest/internal/store"
)

const (
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 2 * time.Minute
	writeTimeout           = 5 * time.Minute
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 15 * time.Second
	uploadConcurrencyLimit = 8

	defaultMaxRequestBytes    int64 = 64 << 20 // 64 MiB
	defaultMultipartMaxMemory int64 = 8 << 20  // 8 MiB

	appName = "SCF Data Ingest"
)

// Options is everything the server needs. Users, Sessions, Blobs, Gateway
// and Manifest are required; the rest may be left zero.
type Options struct {
	Addr     string
	Users    store.UserStore
	Sessions store.SessionStore
	Ledger   store.IngestLedger
	Blobs    blobstore.BlobStore
	Gateway  *ingest.Gateway
	Manifest *ingest.Manifest
	Metrics  http.Handler
	Health   func(ctx context.Context) error
	Logger   *slog.Logger

	MaxRequestBytes    int64
	MultipartMaxMemory int64

	SessionTTL        time.Duration
	AllowRegistration bool
	SecureCookies     bool
	LoginMaxFailures  int
	LoginWindow       time.Duration
	LoginBlock        time.Duration
}

// Server serves the sign-in pages, the members page and the ingest API.
type Server struct {
	addr          string
	auth          *AuthService
	authenticator Authenticator
	ledger        store.IngestLedger
	blobs         blobstore.BlobStore
	gateway       *ingest.Gateway
	manifest      *ingest.Manifest
	metrics       http.Handler
	health        func(ctx context.Context) error
	logger        *slog.Logger
	pages         map[string]*template.Template

	maxRequestBytes    int64
	multipartMaxMemory int64
	allowRegistration  bool
	secureCookies      bool
	loginLimiter       *loginRateLimiter
	uploadLimiter      chan struct{}
}

// New validates opts and builds a server.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Users == nil || opts.Sessions == nil:
		return nil, errors.New("user and session stores are required")
	case opts.Blobs == nil:
		return nil, errors.New("blob store is required")
	case opts.Gateway == nil:
		return nil, errors.New("ingest gateway is required")
	case opts.Manifest.Len() == 0:
		return nil, errors.New("manifest is required")
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRequest := opts.MaxRequestBytes
	if maxRequest <= 0 {
		maxRequest = defaultMaxRequestBytes
	}
	maxMemory := opts.MultipartMaxMemory
	if maxMemory <= 0 {
		maxMemory = defaultMultipartMaxMemory
	}

	authService := NewAuthService(opts.Users, opts.Sessions, opts.SessionTTL)
	return &Server{
		addr:               opts.Addr,
		auth:               authService,
		authenticator:      authService,
		ledger:             opts.Ledger,
		blobs:              opts.Blobs,
		gateway:            opts.Gateway,
		manifest:           opts.Manifest,
		metrics:            opts.Metrics,
		health:             opts.Health,
		logger:             logger,
		pages:              pages,
		maxRequestBytes:    maxRequest,
		multipartMaxMemory: maxMemory,
		allowRegistration:  opts.AllowRegistration,
		secureCookies:      opts.SecureCookies,
		loginLimiter:       newLoginRateLimiter(opts.LoginMaxFailures, opts.LoginWindow, opts.LoginBlock),
		uploadLimiter:      make(chan struct{}, uploadConcurrencyLimit),
	}, nil
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.routes())
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.log().Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log().Info("starting server", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := makeAPIError(http.StatusTooManyRequests, "resource_exhausted", ErrCodeResourceExhausted,
			fmt.Errorf("too many concurrent %s requests", name))
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
