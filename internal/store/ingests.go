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

const (
	defaultIngestListLimit = 50
	maxIngestListLimit     = 500
)

// RecordIngest writes one ingest and its parts in a single transaction. An
// empty ID is filled with a new UUID and a zero CreatedAt with now.
func (s *Store) RecordIngest(ctx context.Context, rec *IngestRecord) error {
	if rec == nil {
		return fmt.Errorf("ingest record is required")
	}
	if strings.TrimSpace(rec.Overall) == "" {
		return fmt.Errorf("ingest overall status is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var userID any
	if rec.UserID != "" {
		userID = rec.UserID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ingests (id, user_id, username, namespace, overall, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, userID, rec.Username, rec.Namespace, rec.Overall, dbFormatTime(rec.CreatedAt)); err != nil {
		return fmt.Errorf("insert ingest: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ingest_parts (ingest_id, position, slot, status, storage_key, reason, filename, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range rec.Parts {
		if _, err := stmt.ExecContext(ctx, rec.ID, i, p.Slot, p.Status, p.StorageKey, p.Reason, p.Filename, p.SizeBytes); err != nil {
			return fmt.Errorf("insert ingest part %q: %w", p.Slot, err)
		}
	}
	return tx.Commit()
}

// GetIngest returns one ingest with its parts, or nil when it does not exist.
func (s *Store) GetIngest(ctx context.Context, id string) (*IngestRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(user_id, ''), username, namespace, overall, created_at
		FROM ingests
		WHERE id = ?
	`, strings.TrimSpace(id))
	rec, err := scanIngest(row)
	if err != nil || rec == nil {
		return rec, err
	}
	parts, err := s.listIngestParts(ctx, []string{rec.ID})
	if err != nil {
		return nil, err
	}
	rec.Parts = parts[rec.ID]
	return rec, nil
}

// ListIngests returns the most recent ingests first, optionally for one user.
func (s *Store) ListIngests(ctx context.Context, filter IngestFilter) ([]IngestRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultIngestListLimit
	}
	if limit > maxIngestListLimit {
		limit = maxIngestListLimit
	}

	query := `SELECT id, COALESCE(user_id, ''), username, namespace, overall, created_at FROM ingests`
	args := make([]any, 0, 2)
	if filter.UserID != "" {
		query += " WHERE user_id = ?"
		args = append(args, filter.UserID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]IngestRecord, 0)
	ids := make([]string, 0)
	for rows.Next() {
		rec, err := scanIngest(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return records, nil
	}

	parts, err := s.listIngestParts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Parts = parts[records[i].ID]
	}
	return records, nil
}

func (s *Store) listIngestParts(ctx context.Context, ids []string) (map[string][]IngestPartRecord, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ingest_id, slot, status, storage_key, reason, filename, size_bytes
		FROM ingest_parts
		WHERE ingest_id IN (`+placeholders+`)
		ORDER BY ingest_id, position
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]IngestPartRecord, len(ids))
	for rows.Next() {
		var ingestID string
		var p IngestPartRecord
		if err := rows.Scan(&ingestID, &p.Slot, &p.Status, &p.StorageKey, &p.Reason, &p.Filename, &p.SizeBytes); err != nil {
			return nil, err
		}
		out[ingestID] = append(out[ingestID], p)
	}
	return out, rows.Err()
}

func scanIngest(scanner interface {
	Scan(dest ...any) error
}) (*IngestRecord, error) {
	var rec IngestRecord
	var createdAt string
	if err := scanner.Scan(&rec.ID, &rec.UserID, &rec.Username, &rec.Namespace, &rec.Overall, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = parsed
	return &rec, nil
}
