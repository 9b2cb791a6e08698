package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/reconcile"
	"github.com/DGApex/CRT-INV/internal/service"
	"github.com/DGApex/CRT-INV/pkg/jwt"

	"github.com/gorilla/mux"
)

var testNow = time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

type mockInventoryService struct {
	mu         sync.Mutex
	reconciler *reconcile.Reconciler
	snap       *domain.Snapshot
	syncErr    error
	commands   []*domain.CommandRecord
}

func newMockInventoryService() *mockInventoryService {
	snap := domain.NewSnapshot()
	snap.Version = 1
	snap.Users = []domain.User{{ID: "U7", Name: "Eva Externa", Role: domain.RoleExternal, Active: true}}
	snap.Equipment = []domain.Equipment{
		{ID: "CAM", Name: "Camera", Category: "Video", Status: domain.StatusAvailable, Condition: "Ok"},
		{ID: "MIC", Name: "Mic", Category: "Audio profesional", Status: domain.StatusAvailable, Condition: "Ok"},
		{ID: "LED", Name: "Led", Category: "Iluminación", Status: domain.StatusMaintenance},
	}
	return &mockInventoryService{
		reconciler: reconcile.New(
			reconcile.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			reconcile.WithClock(func() time.Time { return testNow }),
		),
		snap: snap,
	}
}

func (m *mockInventoryService) Snapshot() *domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockInventoryService) Apply(ctx context.Context, mutation reconcile.Mutation) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, _, err := m.reconciler.Apply(m.snap, mutation)
	if err != nil {
		return m.snap, err
	}
	m.snap = next
	return next, nil
}

func (m *mockInventoryService) Sync(ctx context.Context) (service.SyncReport, error) {
	if m.syncErr != nil {
		return service.SyncReport{Summary: "Error: " + m.syncErr.Error()}, m.syncErr
	}
	return service.SyncReport{Summary: "Sync OK: 3 items, 0 active sessions.", Version: 2}, nil
}

func (m *mockInventoryService) ListCommands(ctx context.Context, status domain.CommandStatus, limit int) ([]*domain.CommandRecord, error) {
	return m.commands, nil
}

func newTestRouter(svc InventoryService) *mux.Router {
	h := NewInventoryHandler(svc)
	h.now = func() time.Time { return testNow }

	r := mux.NewRouter()
	r.HandleFunc("/snapshot", h.Snapshot).Methods("GET")
	r.HandleFunc("/equipment", h.Equipment).Methods("GET")
	r.HandleFunc("/equipment/{id}", h.GetEquipment).Methods("GET")
	r.HandleFunc("/sessions", h.Sessions).Methods("GET")
	r.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/sessions/overdue", h.OverdueSessions).Methods("GET")
	r.HandleFunc("/sessions/{id}/items", h.AddItem).Methods("POST")
	r.HandleFunc("/sessions/{id}/items/{itemId}", h.RemoveItem).Methods("DELETE")
	r.HandleFunc("/sessions/{id}/close", h.CloseSession).Methods("POST")
	r.HandleFunc("/history", h.History).Methods("GET")
	r.HandleFunc("/assignments", h.Assignments).Methods("GET")
	r.HandleFunc("/assignments", h.CreateAssignment).Methods("POST")
	r.HandleFunc("/assignments/{id}/return", h.ReturnAssignment).Methods("POST")
	r.HandleFunc("/commands", h.Commands).Methods("GET")
	r.HandleFunc("/sync", h.Sync).Methods("POST")
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON body %q", method, path, rec.Body.String())
	}
	return rec.Code, env
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{
			name:       "valid",
			body:       `{"user_id":"U7","project_name":"Rodaje","type":"Evento","start_date":"2024-01-10","end_date":"2024-01-12","items":["CAM","MIC"]}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "multi word type",
			body:       `{"user_id":"U7","project_name":"Archivo","type":"Producción interna","start_date":"2024-01-10","items":["CAM"]}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "unavailable item",
			body:       `{"user_id":"U7","project_name":"Rodaje","type":"Evento","start_date":"2024-01-10","items":["LED"]}`,
			wantStatus: http.StatusConflict,
			wantErr:    "equipment unavailable",
		},
		{
			name:       "unknown type",
			body:       `{"user_id":"U7","project_name":"Rodaje","type":"Fiesta","start_date":"2024-01-10","items":["CAM"]}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "Type must be one of",
		},
		{
			name:       "no items",
			body:       `{"user_id":"U7","project_name":"Rodaje","type":"Evento","start_date":"2024-01-10","items":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad json",
			body:       `{"user_id":`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(newMockInventoryService())

			status, env := do(t, r, http.MethodPost, "/sessions", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", status, tt.wantStatus, env.Error)
			}
			if tt.wantErr != "" && !strings.Contains(env.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", env.Error, tt.wantErr)
			}
			if status == http.StatusCreated {
				var s domain.Session
				json.Unmarshal(env.Data, &s)
				if s.ID == "" || s.Status != domain.SessionActive || len(s.Items) == 0 {
					t.Errorf("unexpected session %+v", s)
				}
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc := newMockInventoryService()
	r := newTestRouter(svc)

	status, env := do(t, r, http.MethodPost, "/sessions",
		`{"id":"S1","user_id":"U7","project_name":"Expo","type":"Evento","start_date":"2024-01-08","end_date":"2024-01-09","items":["CAM"]}`)
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, env.Error)
	}

	if status, env = do(t, r, http.MethodPost, "/sessions/S1/items", `{"equipment_id":"MIC"}`); status != http.StatusOK {
		t.Fatalf("add item: %d %s", status, env.Error)
	}
	if status, _ = do(t, r, http.MethodPost, "/sessions/S1/items", `{"equipment_id":"MIC"}`); status != http.StatusConflict {
		t.Errorf("adding a member twice: status %d, want 409", status)
	}

	status, env = do(t, r, http.MethodGet, "/sessions/overdue", "")
	var overdue []domain.Session
	json.Unmarshal(env.Data, &overdue)
	if status != http.StatusOK || len(overdue) != 1 || overdue[0].ID != "S1" {
		t.Errorf("expected S1 overdue, got %d %+v", status, overdue)
	}

	if status, env = do(t, r, http.MethodDelete, "/sessions/S1/items/CAM", ""); status != http.StatusOK {
		t.Fatalf("remove item: %d %s", status, env.Error)
	}
	if status, _ = do(t, r, http.MethodDelete, "/sessions/S1/items/CAM", ""); status != http.StatusBadRequest {
		t.Errorf("removing a non-member: status %d, want 400", status)
	}

	status, env = do(t, r, http.MethodPost, "/sessions/S1/close", "")
	if status != http.StatusOK {
		t.Fatalf("close: %d %s", status, env.Error)
	}
	var closed domain.Session
	json.Unmarshal(env.Data, &closed)
	if closed.Status != domain.SessionClosed || closed.Observations != domain.ConditionReturnedOK {
		t.Errorf("unexpected closed session %+v", closed)
	}

	if status, _ = do(t, r, http.MethodPost, "/sessions/S1/close", `{"comment":"x"}`); status != http.StatusNotFound {
		t.Errorf("closing twice: status %d, want 404", status)
	}

	status, env = do(t, r, http.MethodGet, "/history?limit=1", "")
	var history []domain.Session
	json.Unmarshal(env.Data, &history)
	if status != http.StatusOK || len(history) != 1 || history[0].ID != "S1" {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestAssignmentEndpoints(t *testing.T) {
	r := newTestRouter(newMockInventoryService())

	status, env := do(t, r, http.MethodPost, "/assignments", `{"user_id":"U7","equipment_id":"CAM"}`)
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, env.Error)
	}
	var a domain.Assignment
	json.Unmarshal(env.Data, &a)

	status, env = do(t, r, http.MethodGet, "/assignments?active=true", "")
	var active []domain.Assignment
	json.Unmarshal(env.Data, &active)
	if status != http.StatusOK || len(active) != 1 {
		t.Errorf("expected 1 active assignment, got %+v", active)
	}

	status, env = do(t, r, http.MethodGet, "/equipment?status="+url.QueryEscape(string(domain.StatusAssignedInternal)), "")
	var items []domain.Equipment
	json.Unmarshal(env.Data, &items)
	if len(items) != 1 || items[0].ID != "CAM" {
		t.Errorf("status filter returned %+v", items)
	}

	if status, env = do(t, r, http.MethodPost, "/assignments/"+a.ID+"/return", `{"return_condition":"Rayado"}`); status != http.StatusOK {
		t.Fatalf("return: %d %s", status, env.Error)
	}
	if status, _ = do(t, r, http.MethodPost, "/assignments/"+a.ID+"/return", ""); status != http.StatusConflict {
		t.Errorf("double return: status %d, want 409", status)
	}
	if status, _ = do(t, r, http.MethodPost, "/assignments/nope/return", ""); status != http.StatusNotFound {
		t.Errorf("unknown assignment: status %d, want 404", status)
	}
}

func TestSyncEndpoint(t *testing.T) {
	svc := newMockInventoryService()
	r := newTestRouter(svc)

	status, env := do(t, r, http.MethodPost, "/sync", "")
	if status != http.StatusOK || env.Message != "Sync OK: 3 items, 0 active sessions." {
		t.Errorf("unexpected sync response %d %+v", status, env)
	}

	svc.syncErr = errors.New("remote returned HTML instead of JSON")
	status, env = do(t, r, http.MethodPost, "/sync", "")
	if status != http.StatusBadGateway || !strings.HasPrefix(env.Message, "Error: ") || env.Success {
		t.Errorf("unexpected failed sync response %d %+v", status, env)
	}
}

func TestReadEndpoints(t *testing.T) {
	svc := newMockInventoryService()
	svc.commands = []*domain.CommandRecord{{Command: domain.Command{ID: "c1"}, Status: domain.CommandFailed}}
	r := newTestRouter(svc)

	if status, _ := do(t, r, http.MethodGet, "/equipment/CAM", ""); status != http.StatusOK {
		t.Errorf("get equipment: %d", status)
	}
	if status, _ := do(t, r, http.MethodGet, "/equipment/NOPE", ""); status != http.StatusNotFound {
		t.Errorf("unknown equipment: %d", status)
	}
	if status, _ := do(t, r, http.MethodGet, "/commands?status=bogus", ""); status != http.StatusBadRequest {
		t.Errorf("bad command status filter: %d", status)
	}

	status, env := do(t, r, http.MethodGet, "/commands?status=failed", "")
	var records []domain.CommandRecord
	json.Unmarshal(env.Data, &records)
	if status != http.StatusOK || len(records) != 1 {
		t.Errorf("unexpected commands %d %+v", status, records)
	}

	status, env = do(t, r, http.MethodGet, "/snapshot", "")
	var snap domain.Snapshot
	json.Unmarshal(env.Data, &snap)
	if status != http.StatusOK || len(snap.Equipment) != 3 {
		t.Errorf("unexpected snapshot %d %+v", status, snap)
	}
}

func TestAuthToken(t *testing.T) {
	h := NewAuthHandler("shared", "secret", time.Hour)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantClient string
	}{
		{name: "valid key", body: `{"access_key":"shared","client_id":"kiosk"}`, wantStatus: http.StatusOK, wantClient: "kiosk"},
		{name: "default client", body: `{"access_key":"shared"}`, wantStatus: http.StatusOK, wantClient: "web"},
		{name: "wrong key", body: `{"access_key":"nope"}`, wantStatus: http.StatusUnauthorized},
		{name: "missing key", body: `{}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Token(rec, httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewBufferString(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantClient == "" {
				return
			}

			var env struct {
				Data TokenResponse `json:"data"`
			}
			json.Unmarshal(rec.Body.Bytes(), &env)
			claims, err := jwt.ValidateToken(env.Data.Token, "secret")
			if err != nil {
				t.Fatalf("issued token invalid: %v", err)
			}
			if claims.ClientID != tt.wantClient {
				t.Errorf("client = %q, want %q", claims.ClientID, tt.wantClient)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(newMockInventoryService()).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"snapshot_version":1`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}
