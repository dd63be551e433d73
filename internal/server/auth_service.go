package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	internalauth "scfingest/internal/auth"
	"scfingest/internal/store"
)

const (
	sessionCookieName = "scfingest_session"
	defaultSessionTTL = 24 * time.Hour
)

// AuthService handles registration, sign-in and cookie sessions.
type AuthService struct {
	users      store.UserStore
	sessions   store.SessionStore
	sessionTTL time.Duration
	now        func() time.Time
}

type signInResult struct {
	User      *store.User
	Token     string
	ExpiresAt time.Time
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
}

func NewAuthService(users store.UserStore, sessions store.SessionStore, sessionTTL time.Duration) *AuthService {
	if users == nil || sessions == nil {
		return nil
	}
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &AuthService{users: users, sessions: sessions, sessionTTL: sessionTTL, now: time.Now}
}

// Register validates and creates an account. Validation failures come back
// as 400 apiErrors and a taken username as 409.
func (a *AuthService) Register(ctx context.Context, in RegisterInput, now time.Time) (*store.User, error) {
	if a == nil {
		return nil, fmt.Errorf("auth store is required")
	}

	username, err := internalauth.NormalizeUsername(in.Username)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidAccount)
	}
	if err := internalauth.ValidatePassword(in.Password); err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidAccount)
	}
	firstName, err := internalauth.NormalizeName(in.FirstName)
	if err != nil {
		return nil, badRequestCode(fmt.Errorf("first name: %w", err), ErrCodeInvalidAccount)
	}
	lastName, err := internalauth.NormalizeName(in.LastName)
	if err != nil {
		return nil, badRequestCode(fmt.Errorf("last name: %w", err), ErrCodeInvalidAccount)
	}
	hash, err := internalauth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user, err := a.users.CreateUser(ctx, store.NewUser{
		Username:     username,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
	}, now)
	if errors.Is(err, store.ErrUsernameTaken) {
		return nil, makeAPIError(http.StatusConflict, "conflict", ErrCodeUsernameTaken, err)
	}
	return user, err
}

// SignIn checks credentials and opens a session. Unknown users, disabled
// users and wrong passwords all return internalauth.ErrInvalidCredentials.
func (a *AuthService) SignIn(ctx context.Context, username, password string, now time.Time) (*signInResult, error) {
	if a == nil {
		return nil, fmt.Errorf("auth store is required")
	}

	normalized, err := internalauth.NormalizeUsername(username)
	if err != nil || password == "" {
		return nil, internalauth.ErrInvalidCredentials
	}

	user, err := a.users.GetUserByUsername(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Disabled || !internalauth.VerifyPassword(user.PasswordHash, password) {
		return nil, internalauth.ErrInvalidCredentials
	}
	return a.startSession(ctx, user, now)
}

func (a *AuthService) startSession(ctx context.Context, user *store.User, now time.Time) (*signInResult, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(a.sessionTTL)
	if err := a.sessions.CreateSession(ctx, user.ID, hashSessionToken(token), expiresAt, now); err != nil {
		return nil, err
	}
	return &signInResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves the session cookie of r.
func (a *AuthService) Authenticate(r *http.Request) (Session, error) {
	if a == nil {
		return Session{}, nil
	}
	token := sessionTokenFromRequest(r)
	if token == "" {
		return Session{}, nil
	}
	user, err := a.sessions.GetUserBySessionTokenHash(r.Context(), hashSessionToken(token), a.now().UTC())
	if err != nil {
		return Session{}, err
	}
	if user == nil {
		return Session{}, nil
	}
	return Session{Authenticated: true, User: user}, nil
}

// SignOut revokes the session behind token.
func (a *AuthService) SignOut(ctx context.Context, token string, now time.Time) error {
	if a == nil {
		return nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return a.sessions.RevokeSessionByTokenHash(ctx, hashSessionToken(token), now)
}

func sessionTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func hashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
