package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/metrics"
	"github.com/DGApex/CRT-INV/internal/reconcile"
	"github.com/DGApex/CRT-INV/internal/repository"
	"github.com/DGApex/CRT-INV/internal/websocket"
)

type mockFetcher struct {
	mu    sync.Mutex
	feed  *domain.Feed
	err   error
	calls int
}

func (m *mockFetcher) Fetch(ctx context.Context) (*domain.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.feed, m.err
}

func (m *mockFetcher) set(feed *domain.Feed, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feed = feed
	m.err = err
}

type mockQueue struct {
	mu   sync.Mutex
	cmds []domain.Command
}

func (m *mockQueue) Enqueue(ctx context.Context, cmds ...domain.Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, cmds...)
}

func (m *mockQueue) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cmds)
}

type mockSnapshotRepo struct {
	mu    sync.Mutex
	saved *domain.Snapshot
	saves int
}

func (m *mockSnapshotRepo) Load(ctx context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, repository.ErrNotFound
	}
	return m.saved, nil
}

func (m *mockSnapshotRepo) Save(ctx context.Context, snap *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = snap
	m.saves++
	return nil
}

type mockBroadcaster struct {
	mu       sync.Mutex
	messages []*websocket.Message
}

func (m *mockBroadcaster) Broadcast(message *websocket.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type fixture struct {
	service     *InventoryService
	fetcher     *mockFetcher
	queue       *mockQueue
	snapshots   *mockSnapshotRepo
	broadcaster *mockBroadcaster
}

func inventoryFeed(rows ...domain.Row) *domain.Feed {
	return &domain.Feed{
		Inventory: rows,
		Users:     []domain.Row{{"Usuario_ID": "U7", "Nombre_Completo": "Eva Externa", "Tipo_Usuario": "Externo"}},
	}
}

func row(id, name, status, condition string) domain.Row {
	return domain.Row{"Equipo_ID": id, "Nombre_Equipo": name, "Categoría": "Video", "Estado": status, "Observaciones": condition}
}

func newFixture(feed *domain.Feed) *fixture {
	n := 0
	var mu sync.Mutex
	r := reconcile.New(
		reconcile.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		reconcile.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)

	f := &fixture{
		fetcher:     &mockFetcher{feed: feed},
		queue:       &mockQueue{},
		snapshots:   &mockSnapshotRepo{},
		broadcaster: &mockBroadcaster{},
	}
	f.service = NewInventoryService(r, f.fetcher, f.queue, f.snapshots, nil, f.broadcaster, metrics.New(),
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	return f
}

func (f *fixture) start(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.service.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	if _, err := f.service.Sync(ctx); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	return ctx
}

func TestInventoryService_SyncPublishes(t *testing.T) {
	f := newFixture(inventoryFeed(
		row("EQ-1", "Camera", "En uso", "SESION|S1|Expo|2024-01-01|2024-01-05|U7|Evento"),
		row("EQ-2", "Tripod", "Disponible", ""),
	))
	ctx := f.start(t)

	report, err := f.service.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Summary != "Sync OK: 2 items, 1 active sessions." {
		t.Errorf("unexpected summary %q", report.Summary)
	}

	snap := f.service.Snapshot()
	if snap.Version != report.Version {
		t.Errorf("published version %d, report %d", snap.Version, report.Version)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != "S1" {
		t.Errorf("unexpected sessions %+v", snap.Sessions)
	}
	if f.snapshots.saved == nil || f.snapshots.saved.Version != snap.Version {
		t.Errorf("snapshot not persisted")
	}
	if f.broadcaster.count() == 0 {
		t.Errorf("snapshot not broadcast")
	}
}

func TestInventoryService_MalformedPayloadLeavesStateUntouched(t *testing.T) {
	f := newFixture(inventoryFeed(row("EQ-1", "Camera", "Disponible", "")))
	ctx := f.start(t)
	before := f.service.Snapshot()

	f.fetcher.set(nil, errors.New("failed to decode feed: unexpected EOF"))
	report, err := f.service.Sync(ctx)

	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(report.Summary, "Error: ") {
		t.Errorf("expected human readable error, got %q", report.Summary)
	}
	if f.service.Snapshot() != before {
		t.Errorf("snapshot replaced after failed sync")
	}
}

func TestInventoryService_ApplyMutation(t *testing.T) {
	f := newFixture(inventoryFeed(
		row("CAM", "Camera", "Disponible", "Ok"),
		row("MIC", "Mic", "En uso", "SESION|S1|Expo|2024-01-01|2024-01-05|U7|Evento"),
	))
	ctx := f.start(t)

	snap, err := f.service.Apply(ctx, reconcile.CreateSession{
		UserID: "U7", ProjectName: "Rodaje", Type: domain.SessionTypeEvent, Items: []string{"CAM"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.service.Snapshot() != snap {
		t.Errorf("applied snapshot not published")
	}
	if len(snap.Sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(snap.Sessions))
	}
	if f.queue.count() != 1 {
		t.Errorf("expected 1 queued command, got %d", f.queue.count())
	}

	before := f.service.Snapshot()
	_, err = f.service.Apply(ctx, reconcile.CreateSession{
		UserID: "U7", ProjectName: "Otro", Type: domain.SessionTypeEvent, Items: []string{"MIC"},
	})
	if !errors.Is(err, reconcile.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if f.service.Snapshot() != before {
		t.Errorf("rejected mutation changed the snapshot")
	}
	if f.queue.count() != 1 {
		t.Errorf("rejected mutation queued commands")
	}
}

func TestInventoryService_PendingSessionSurvivesStaleSync(t *testing.T) {
	f := newFixture(inventoryFeed(row("CAM", "Camera", "Disponible", "Ok")))
	ctx := f.start(t)

	if _, err := f.service.Apply(ctx, reconcile.CreateSession{
		ID: "L1", UserID: "U7", ProjectName: "Rodaje", Type: domain.SessionTypeEvent, Items: []string{"CAM"},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	report, err := f.service.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Pending != 1 {
		t.Errorf("expected 1 pending session, got %d", report.Pending)
	}
	snap := f.service.Snapshot()
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != "L1" {
		t.Errorf("pending session lost: %+v", snap.Sessions)
	}
	if snap.Equipment[0].Status != domain.StatusInUse {
		t.Errorf("pending claim reverted: %+v", snap.Equipment[0])
	}
}

func TestInventoryService_Restore(t *testing.T) {
	f := newFixture(inventoryFeed())
	persisted := domain.NewSnapshot()
	persisted.Version = 41
	persisted.Assignments = []domain.Assignment{{ID: "A1", EquipmentID: "TRI", Status: domain.AssignmentActive}}
	f.snapshots.saved = persisted

	if err := f.service.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if f.service.Snapshot().Version != 41 {
		t.Errorf("snapshot not restored")
	}

	report, err := f.service.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("sync once: %v", err)
	}
	if report.Version != 42 {
		t.Errorf("expected version 42, got %d", report.Version)
	}
	if len(f.service.Snapshot().Assignments) != 1 {
		t.Errorf("local assignment lost across sync")
	}
}

func TestInventoryService_StoppedService(t *testing.T) {
	f := newFixture(inventoryFeed())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.service.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if _, err := f.service.Sync(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if _, err := f.service.Apply(context.Background(), reconcile.CloseSession{SessionID: "x"}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}
