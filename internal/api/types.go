package api

import "time"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SignInRequest is the JSON body of POST /user/sign-in.
type SignInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the JSON body of POST /user/register.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// MeResponse describes the signed-in user.
type MeResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
}

// PartResponse is the outcome of one slot.
type PartResponse struct {
	Slot       string `json:"slot"`
	Status     string `json:"status"`
	StorageKey string `json:"storage_key,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Filename   string `json:"filename,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

// UploadResponse is the body of POST /upload for every outcome: 200 when all
// parts were stored, 207 for a partial failure, 400 when rejected.
type UploadResponse struct {
	ID      string         `json:"id,omitempty"`
	Overall string         `json:"overall"`
	Parts   []PartResponse `json:"parts"`
}

// IngestSummary is one ledger entry returned by GET /uploads.
type IngestSummary struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Namespace string         `json:"namespace,omitempty"`
	Overall   string         `json:"overall"`
	CreatedAt time.Time      `json:"created_at"`
	Parts     []PartResponse `json:"parts"`
}

// SlotResponse describes one manifest slot.
type SlotResponse struct {
	Name         string   `json:"name"`
	Required     bool     `json:"required"`
	Extensions   []string `json:"extensions"`
	MaxSizeBytes int64    `json:"max_size_bytes"`
	StorageKey   string   `json:"storage_key"`
}
