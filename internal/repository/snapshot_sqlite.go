package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
)

var snapshotBuckets = []string{"meta", "equipment", "users", "sessions", "history", "assignments"}

type snapshotMeta struct {
	Version  int64     `json:"version"`
	SyncedAt time.Time `json:"synced_at"`
}

type sqliteSnapshotRepository struct {
	db *sql.DB
}

func NewSQLiteSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &sqliteSnapshotRepository{db: db}
}

func (r *sqliteSnapshotRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer rows.Close()

	snap := domain.NewSnapshot()
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		found = true

		var target any
		switch bucket {
		case "meta":
			var meta snapshotMeta
			if err := json.Unmarshal(payload, &meta); err != nil {
				return nil, fmt.Errorf("decode meta: %w", err)
			}
			snap.Version = meta.Version
			snap.SyncedAt = meta.SyncedAt
			continue
		case "equipment":
			target = &snap.Equipment
		case "users":
			target = &snap.Users
		case "sessions":
			target = &snap.Sessions
		case "history":
			target = &snap.History
		case "assignments":
			target = &snap.Assignments
		default:
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}

	return snap, nil
}

func (r *sqliteSnapshotRepository) Save(ctx context.Context, snap *domain.Snapshot) (retErr error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, bucket := range snapshotBuckets {
		var value any
		switch bucket {
		case "meta":
			value = snapshotMeta{Version: snap.Version, SyncedAt: snap.SyncedAt}
		case "equipment":
			value = snap.Equipment
		case "users":
			value = snap.Users
		case "sessions":
			value = snap.Sessions
		case "history":
			value = snap.History
		case "assignments":
			value = snap.Assignments
		}

		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket, payload) VALUES(?, ?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			bucket, data,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}

	return tx.Commit()
}
