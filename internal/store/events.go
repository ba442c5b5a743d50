package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/donorledger/internal/events"
)

const eventColumns = `id, type, payload, attempts, received_at, processed_at, last_error`

func scanEvent(s scanner) (*events.Record, error) {
	var r events.Record

	var lastError sql.NullString

	if err := s.Scan(&r.ID, &r.Type, &r.Payload, &r.Attempts, &r.ReceivedAt, &r.ProcessedAt, &lastError); err != nil {
		return nil, err
	}

	r.LastError = lastError.String

	return &r, nil
}

func (s *Store) SaveEvent(ctx context.Context, r *events.Record) error {
	query := `
		INSERT INTO events (id, type, payload, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, r.ID, r.Type, string(r.Payload), r.ReceivedAt); err != nil {
		return fmt.Errorf("saving event: %w", err)
	}

	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*events.Record, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	r, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, events.ErrNotFound
		}

		return nil, fmt.Errorf("getting event: %w", err)
	}

	return r, nil
}

func (s *Store) ListEvents(ctx context.Context, filter events.ListFilter) ([]*events.Record, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.FailedOnly {
		query += " AND last_error IS NOT NULL"
	}

	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)

		args = append(args, filter.Type)
		argIdx++
	}

	query += " ORDER BY received_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var records []*events.Record

	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return records, nil
}

func (s *Store) RecordAttempt(ctx context.Context, id string, processedAt *time.Time, lastError string) error {
	query := `
		UPDATE events
		SET attempts = attempts + 1,
			processed_at = COALESCE($2, processed_at),
			last_error = $3
		WHERE id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, id, processedAt, nullable(lastError)); err != nil {
		return fmt.Errorf("recording event attempt: %w", err)
	}

	return nil
}
