package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/reconcile"
	"github.com/DGApex/CRT-INV/internal/service"
	"github.com/DGApex/CRT-INV/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type InventoryService interface {
	Snapshot() *domain.Snapshot
	Apply(ctx context.Context, m reconcile.Mutation) (*domain.Snapshot, error)
	Sync(ctx context.Context) (service.SyncReport, error)
	ListCommands(ctx context.Context, status domain.CommandStatus, limit int) ([]*domain.CommandRecord, error)
}

type InventoryHandler struct {
	service  InventoryService
	validate *validator.Validate
	now      func() time.Time
}

func NewInventoryHandler(service InventoryService) *InventoryHandler {
	return &InventoryHandler{
		service:  service,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (h *InventoryHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.service.Snapshot())
}

// Equipment lists items, optionally filtered by ?status= and ?category=.
func (h *InventoryHandler) Equipment(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	category := r.URL.Query().Get("category")

	items := make([]domain.Equipment, 0)
	for _, e := range h.service.Snapshot().Equipment {
		if status != "" && string(e.Status) != status {
			continue
		}
		if category != "" && !strings.EqualFold(e.Category, category) {
			continue
		}
		items = append(items, e)
	}

	response.Success(w, items)
}

func (h *InventoryHandler) GetEquipment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snap := h.service.Snapshot()
	i := snap.EquipmentIndex(id)
	if i < 0 {
		response.NotFound(w, "Equipment not found")
		return
	}

	response.Success(w, snap.Equipment[i])
}

func (h *InventoryHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.service.Snapshot().Sessions)
}

func (h *InventoryHandler) OverdueSessions(w http.ResponseWriter, r *http.Request) {
	overdue := h.service.Snapshot().OverdueSessions(h.now())
	if overdue == nil {
		overdue = []domain.Session{}
	}
	response.Success(w, overdue)
}

// History lists closed sessions, newest first. ?limit= caps the result.
func (h *InventoryHandler) History(w http.ResponseWriter, r *http.Request) {
	history := h.service.Snapshot().History
	if limit := queryInt(r, "limit"); limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	response.Success(w, history)
}

// Assignments lists assignments; ?active=true keeps only active ones.
func (h *InventoryHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()

	assignments := snap.Assignments
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		assignments = snap.ActiveAssignments()
		if assignments == nil {
			assignments = []domain.Assignment{}
		}
	}

	response.Success(w, assignments)
}

func (h *InventoryHandler) Commands(w http.ResponseWriter, r *http.Request) {
	status := domain.CommandStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.CommandPending, domain.CommandDispatched, domain.CommandFailed:
	default:
		response.BadRequest(w, "status must be one of: pending dispatched failed")
		return
	}

	limit := queryInt(r, "limit")
	if limit <= 0 {
		limit = 100
	}

	records, err := h.service.ListCommands(r.Context(), status, limit)
	if err != nil {
		response.InternalError(w, "Failed to list commands")
		return
	}
	if records == nil {
		records = []*domain.CommandRecord{}
	}

	response.Success(w, records)
}

func (h *InventoryHandler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Sync(r.Context())
	if err != nil {
		response.Message(w, http.StatusBadGateway, report.Summary, nil)
		return
	}

	response.Message(w, http.StatusOK, report.Summary, map[string]interface{}{
		"version":          report.Version,
		"pending_sessions": report.Pending,
	})
}

func (h *InventoryHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := h.service.Apply(r.Context(), reconcile.CreateSession(req))
	if err != nil {
		writeMutationError(w, err)
		return
	}

	response.Created(w, snap.Sessions[0])
}

func (h *InventoryHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req domain.SessionItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := h.service.Apply(r.Context(), reconcile.AddItem{SessionID: sessionID, EquipmentID: req.EquipmentID})
	if err != nil {
		writeMutationError(w, err)
		return
	}

	response.Success(w, snap.Sessions[snap.SessionIndex(sessionID)])
}

func (h *InventoryHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]

	snap, err := h.service.Apply(r.Context(), reconcile.RemoveItem{SessionID: sessionID, EquipmentID: vars["itemId"]})
	if err != nil {
		writeMutationError(w, err)
		return
	}

	response.Success(w, snap.Sessions[snap.SessionIndex(sessionID)])
}

func (h *InventoryHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req domain.CloseSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}

	snap, err := h.service.Apply(r.Context(), reconcile.CloseSession{SessionID: sessionID, Comment: req.Comment})
	if err != nil {
		writeMutationError(w, err)
		return
	}

	response.Success(w, snap.History[0])
}

func (h *InventoryHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := h.service.Apply(r.Context(), reconcile.AddAssignment(req))
	if err != nil {
		writeMutationError(w, err)
		return
	}

	response.Created(w, snap.Assignments[0])
}

func (h *InventoryHandler) ReturnAssignment(w http.ResponseWriter, r *http.Request) {
	assignmentID := mux.Vars(r)["id"]

	var req domain.ReturnAssignmentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}

	snap, err := h.service.Apply(r.Context(), reconcile.ReturnAssignment{AssignmentID: assignmentID, ReturnCondition: req.ReturnCondition})
	if err != nil {
		writeMutationError(w, err)
		return
	}

	response.Success(w, snap.Assignments[snap.AssignmentIndex(assignmentID)])
}

func (h *InventoryHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		response.ValidationError(w, err)
		return false
	}
	return true
}

func writeMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconcile.ErrSessionNotFound),
		errors.Is(err, reconcile.ErrAssignmentNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, reconcile.ErrUnavailable),
		errors.Is(err, reconcile.ErrSessionExists),
		errors.Is(err, reconcile.ErrAlreadyMember),
		errors.Is(err, reconcile.ErrAlreadyReturned):
		response.Conflict(w, err.Error())
	case errors.Is(err, reconcile.ErrNotMember):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrStopped):
		response.Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		response.InternalError(w, "Failed to apply change")
	}
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
