package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/DGApex/CRT-INV/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const snapshotDocID = "snapshot:current"

type snapshotDoc struct {
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.Snapshot
}

type couchSnapshotRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchSnapshotRepository(client *kivik.Client, dbName string) SnapshotRepository {
	return &couchSnapshotRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *couchSnapshotRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	db := r.client.DB(r.dbName)

	var doc snapshotDoc
	if err := db.Get(ctx, snapshotDocID).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap := doc.Snapshot
	return &snap, nil
}

func (r *couchSnapshotRepository) Save(ctx context.Context, snap *domain.Snapshot) error {
	db := r.client.DB(r.dbName)

	rev, err := db.GetRev(ctx, snapshotDocID)
	if err != nil && kivik.HTTPStatus(err) != http.StatusNotFound {
		return fmt.Errorf("failed to fetch snapshot revision: %w", err)
	}

	doc := snapshotDoc{Rev: rev, Type: "snapshot", Snapshot: *snap}
	if _, err := db.Put(ctx, snapshotDocID, doc); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}
