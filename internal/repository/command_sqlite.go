package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
)

type sqliteCommandRepository struct {
	db *sql.DB
}

func NewSQLiteCommandRepository(db *sql.DB) CommandRepository {
	return &sqliteCommandRepository{db: db}
}

func (r *sqliteCommandRepository) Save(ctx context.Context, rec *domain.CommandRecord) error {
	payload, err := json.Marshal(rec.Command)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	var dispatchedAt sql.NullTime
	if rec.DispatchedAt != nil {
		dispatchedAt = sql.NullTime{Time: rec.DispatchedAt.UTC(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO commands (id, action, status, attempts, last_error, payload, created_at, updated_at, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at,
			dispatched_at = excluded.dispatched_at`,
		rec.Command.ID,
		string(rec.Command.Action),
		string(rec.Status),
		rec.Attempts,
		rec.LastError,
		payload,
		rec.Command.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
		dispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save command: %w", err)
	}

	return nil
}

func (r *sqliteCommandRepository) FindByID(ctx context.Context, id string) (*domain.CommandRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT status, attempts, last_error, payload, updated_at, dispatched_at
		FROM commands WHERE id = ?`, id)

	rec, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find command: %w", err)
	}

	return rec, nil
}

func (r *sqliteCommandRepository) List(ctx context.Context, status domain.CommandStatus, limit int) ([]*domain.CommandRecord, error) {
	query := `SELECT status, attempts, last_error, payload, updated_at, dispatched_at FROM commands`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	defer rows.Close()

	var records []*domain.CommandRecord
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCommand(s scanner) (*domain.CommandRecord, error) {
	var (
		rec          domain.CommandRecord
		status       string
		lastError    sql.NullString
		payload      []byte
		dispatchedAt sql.NullTime
	)
	if err := s.Scan(&status, &rec.Attempts, &lastError, &payload, &rec.UpdatedAt, &dispatchedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Command); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	rec.Status = domain.CommandStatus(status)
	rec.LastError = lastError.String
	if dispatchedAt.Valid {
		t := dispatchedAt.Time
		rec.DispatchedAt = &t
	}
	rec.UpdatedAt = rec.UpdatedAt.In(time.UTC)

	return &rec, nil
}
