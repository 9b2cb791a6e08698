package repository

import (
	"context"
	"errors"

	"github.com/DGApex/CRT-INV/internal/domain"
)

var ErrNotFound = errors.New("not found")

// SnapshotRepository persists the latest reconciled snapshot so a restart
// does not lose pending local sessions or assignments.
type SnapshotRepository interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snap *domain.Snapshot) error
}

// CommandRepository is the outbox command log.
type CommandRepository interface {
	Save(ctx context.Context, rec *domain.CommandRecord) error
	FindByID(ctx context.Context, id string) (*domain.CommandRecord, error)
	// List returns the most recent records first. An empty status matches
	// every record; limit <= 0 means no limit.
	List(ctx context.Context, status domain.CommandStatus, limit int) ([]*domain.CommandRecord, error)
}
