package handler

import (
	"net/http"
	"time"

	"github.com/DGApex/CRT-INV/pkg/response"
)

type HealthHandler struct {
	service InventoryService
	started time.Time
}

func NewHealthHandler(service InventoryService) *HealthHandler {
	return &HealthHandler{service: service, started: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()

	var syncedAt *time.Time
	if !snap.SyncedAt.IsZero() {
		syncedAt = &snap.SyncedAt
	}

	response.Success(w, map[string]interface{}{
		"status":           "healthy",
		"service":          "crt-inv",
		"uptime":           time.Since(h.started).Round(time.Second).String(),
		"snapshot_version": snap.Version,
		"synced_at":        syncedAt,
	})
}
