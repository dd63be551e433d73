package server

import (
	"net/http"
)

const membersPath = "/members"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET "+membersPath, s.guard(s.handleMembers))

	// Accounts.
	mux.HandleFunc("GET /user/register", s.handleRegisterPage)
	mux.HandleFunc("POST /user/register", s.handleRegister)
	mux.HandleFunc("GET "+signInPath, s.handleSignInPage)
	mux.HandleFunc("POST "+signInPath, s.handleSignIn)
	mux.HandleFunc("GET /user/sign-out", s.handleSignOut)
	mux.HandleFunc("POST /user/sign-out", s.handleSignOut)
	mux.Handle("GET /user/me", s.guard(s.handleMe))

	// Ingest.
	mux.Handle("POST /upload", s.guard(s.handleUpload))
	mux.Handle("GET /uploads", s.guard(s.handleListUploads))
	mux.Handle("GET /uploads/{id}", s.guard(s.handleGetUpload))
	mux.Handle("GET /manifest", s.guard(s.handleManifest))
	mux.Handle("GET /files/{slot}", s.guard(s.handleDownload))

	return mux
}
