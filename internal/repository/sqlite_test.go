package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestSQLiteSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteSnapshotRepository(newTestDB(t))

	if _, err := repo.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	snap := domain.NewSnapshot()
	snap.Version = 7
	snap.SyncedAt = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	snap.Equipment = []domain.Equipment{{ID: "CAM", Name: "Camera", Status: domain.StatusInUse, Condition: "SESION|S1|Expo|||U7|Evento"}}
	snap.Sessions = []domain.Session{{ID: "S1", UserID: "U7", Status: domain.SessionActive, Items: []string{"CAM"}}}
	snap.Assignments = []domain.Assignment{{ID: "A1", EquipmentID: "TRI", Status: domain.AssignmentActive}}

	if err := repo.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap.Version = 8
	snap.Sessions = nil
	if err := repo.Save(ctx, snap); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != 8 || !got.SyncedAt.Equal(snap.SyncedAt) {
		t.Errorf("unexpected meta %d %v", got.Version, got.SyncedAt)
	}
	if len(got.Sessions) != 0 {
		t.Errorf("expected sessions overwritten, got %+v", got.Sessions)
	}
	if len(got.Equipment) != 1 || got.Equipment[0].Condition != snap.Equipment[0].Condition {
		t.Errorf("equipment not persisted: %+v", got.Equipment)
	}
	if len(got.Assignments) != 1 || got.Assignments[0].ID != "A1" {
		t.Errorf("assignments not persisted: %+v", got.Assignments)
	}
}

func TestSQLiteCommandLog(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteCommandRepository(newTestDB(t))
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	first := &domain.CommandRecord{
		Command: domain.Command{
			ID:        "c1",
			Action:    domain.ActionUpdateStatus,
			Updates:   []domain.StatusUpdate{{EquipmentID: "CAM", Status: domain.StatusInUse}},
			CreatedAt: base,
		},
		Status:    domain.CommandPending,
		UpdatedAt: base,
	}
	second := &domain.CommandRecord{
		Command: domain.Command{
			ID:        "c2",
			Action:    domain.ActionLogSession,
			LogData:   &domain.SessionLog{SessionID: "S1"},
			CreatedAt: base.Add(time.Minute),
		},
		Status:    domain.CommandPending,
		UpdatedAt: base.Add(time.Minute),
	}

	for _, rec := range []*domain.CommandRecord{first, second} {
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.Command.ID, err)
		}
	}

	dispatched := base.Add(2 * time.Minute)
	first.Status = domain.CommandDispatched
	first.Attempts = 1
	first.UpdatedAt = dispatched
	first.DispatchedAt = &dispatched
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.FindByID(ctx, "c1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != domain.CommandDispatched || got.Attempts != 1 || got.DispatchedAt == nil {
		t.Errorf("unexpected record %+v", got)
	}
	if len(got.Command.Updates) != 1 || got.Command.Updates[0].EquipmentID != "CAM" {
		t.Errorf("payload not persisted: %+v", got.Command)
	}

	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := repo.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Command.ID != "c2" {
		t.Errorf("expected newest first, got %d records", len(all))
	}

	pending, err := repo.List(ctx, domain.CommandPending, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Command.LogData == nil || pending[0].Command.LogData.SessionID != "S1" {
		t.Errorf("unexpected pending records %+v", pending)
	}

	limited, err := repo.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 record, got %d", len(limited))
	}
}
