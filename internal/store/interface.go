package store

import (
	"context"
	"time"
)

// UserStore manages registered accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user NewUser, now time.Time) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*User, error)
	DeleteUser(ctx context.Context, username string) (bool, error)
}

// SessionStore persists browser sessions by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error
	GetUserBySessionTokenHash(ctx context.Context, tokenHash string, now time.Time) (*User, error)
	RevokeSessionByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// IngestLedger records ingest outcomes.
type IngestLedger interface {
	RecordIngest(ctx context.Context, rec *IngestRecord) error
	GetIngest(ctx context.Context, id string) (*IngestRecord, error)
	ListIngests(ctx context.Context, filter IngestFilter) ([]IngestRecord, error)
}

var (
	_ UserStore    = (*Store)(nil)
	_ SessionStore = (*Store)(nil)
	_ IngestLedger = (*Store)(nil)
)
