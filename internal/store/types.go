package store

import (
	"errors"
	"strings"
	"time"
)

// ErrUsernameTaken is returned when a username is already registered.
var ErrUsernameTaken = errors.New("username already taken")

// Fixed-width so stored timestamps compare correctly as strings.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// User is one registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName returns "First Last" when set, otherwise the username.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// NewUser holds the fields needed to register a user.
type NewUser struct {
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
}

// IngestRecord is one ledger entry.
type IngestRecord struct {
	ID        string
	UserID    string
	Username  string
	Namespace string
	Overall   string
	CreatedAt time.Time
	Parts     []IngestPartRecord
}

// IngestPartRecord is the recorded outcome of one slot.
type IngestPartRecord struct {
	Slot       string
	Status     string
	StorageKey string
	Reason     string
	Filename   string
	SizeBytes  int64
}

// IngestFilter narrows ListIngests.
type IngestFilter struct {
	UserID string
	Limit  int
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func dbParseTime(value string) (time.Time, error) {
	t, err := time.Parse(dbTimeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
