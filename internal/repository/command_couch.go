package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/DGApex/CRT-INV/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type commandDoc struct {
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	domain.CommandRecord
}

type couchCommandRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchCommandRepository(client *kivik.Client, dbName string) CommandRepository {
	return &couchCommandRepository{
		client: client,
		dbName: dbName,
	}
}

// listAllLimit stands in for "no limit": _find otherwise stops at 25 docs.
const listAllLimit = 100000

var commandIndexFields = []string{"type", "command.created_at"}

// EnsureCouchIndexes creates the Mango index List sorts on. Creating an
// existing index is a no-op.
func EnsureCouchIndexes(ctx context.Context, client *kivik.Client, dbName string) error {
	db := client.DB(dbName)
	index := map[string]interface{}{"fields": commandIndexFields}
	if err := db.CreateIndex(ctx, "commands", "by-created-at", index); err != nil {
		return fmt.Errorf("failed to create command index: %w", err)
	}
	return nil
}

func commandDocID(id string) string {
	return fmt.Sprintf("command:%s", id)
}

func (r *couchCommandRepository) Save(ctx context.Context, rec *domain.CommandRecord) error {
	db := r.client.DB(r.dbName)
	docID := commandDocID(rec.Command.ID)

	rev, err := db.GetRev(ctx, docID)
	if err != nil && kivik.HTTPStatus(err) != http.StatusNotFound {
		return fmt.Errorf("failed to fetch command revision: %w", err)
	}

	doc := commandDoc{Rev: rev, Type: "command", CommandRecord: *rec}
	if _, err := db.Put(ctx, docID, doc); err != nil {
		return fmt.Errorf("failed to save command: %w", err)
	}

	return nil
}

func (r *couchCommandRepository) FindByID(ctx context.Context, id string) (*domain.CommandRecord, error) {
	db := r.client.DB(r.dbName)

	var doc commandDoc
	if err := db.Get(ctx, commandDocID(id)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find command: %w", err)
	}

	rec := doc.CommandRecord
	return &rec, nil
}

func (r *couchCommandRepository) List(ctx context.Context, status domain.CommandStatus, limit int) ([]*domain.CommandRecord, error) {
	db := r.client.DB(r.dbName)

	rows := db.Find(ctx, commandListQuery(status, limit))
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	defer rows.Close()

	records := []*domain.CommandRecord{}
	for rows.Next() {
		var doc commandDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode command: %w", err)
		}
		rec := doc.CommandRecord
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}

	return records, nil
}

// commandListQuery selects command docs newest first. The sort matches the
// index from EnsureCouchIndexes.
func commandListQuery(status domain.CommandStatus, limit int) map[string]interface{} {
	selector := map[string]interface{}{"type": "command"}
	if status != "" {
		selector["status"] = string(status)
	}
	if limit <= 0 {
		limit = listAllLimit
	}

	sort := make([]map[string]string, 0, len(commandIndexFields))
	for _, field := range commandIndexFields {
		sort = append(sort, map[string]string{field: "desc"})
	}

	return map[string]interface{}{
		"selector": selector,
		"sort":     sort,
		"limit":    limit,
	}
}
