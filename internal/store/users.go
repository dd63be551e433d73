package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userColumns = "id, username, password_hash, first_name, last_name, disabled, created_at, updated_at"

// CountEnabledUsers returns the number of non-disabled users.
func (s *Store) CountEnabledUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE disabled = 0").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CreateUser inserts one user. The username is stored lowercased; a
// duplicate returns ErrUsernameTaken.
func (s *Store) CreateUser(ctx context.Context, in NewUser, now time.Time) (*User, error) {
	username := normalizeUsername(in.Username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return nil, fmt.Errorf("password hash is required")
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: in.PasswordHash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, first_name, last_name, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, user.ID, user.Username, user.PasswordHash, user.FirstName, user.LastName, dbFormatTime(now), dbFormatTime(now))
	if isUniqueViolation(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername returns a user by username, or nil when none exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", username)
	return scanUser(row)
}

// GetUserByID returns a user by id, or nil when none exists.
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
	return scanUser(row)
}

// ListUsers returns all users sorted by username.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY username ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if user != nil {
			users = append(users, *user)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// SetUserDisabled updates one user's disabled state. Disabling also revokes
// the user's open sessions. Returns nil when the user does not exist.
func (s *Store) SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	disabledInt := 0
	if disabled {
		disabledInt = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET disabled = ?, updated_at = ?
		WHERE username = ?
	`, disabledInt, dbFormatTime(now), username)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	if disabled {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET revoked_at = ?
			WHERE revoked_at IS NULL
			  AND user_id = (SELECT id FROM users WHERE username = ?)
		`, dbFormatTime(now), username); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetUserByUsername(ctx, username)
}

// DeleteUser deletes one user and, by cascade, their sessions. Ledger
// entries keep the username.
func (s *Store) DeleteUser(ctx context.Context, username string) (bool, error) {
	username = normalizeUsername(username)
	if username == "" {
		return false, fmt.Errorf("username is required")
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanUser(scanner interface {
	Scan(dest ...any) error
}) (*User, error) {
	var user User
	var disabled int
	var createdAt, updatedAt string
	if err := scanner.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.FirstName, &user.LastName, &disabled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.Disabled = disabled != 0

	var err error
	if user.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}
