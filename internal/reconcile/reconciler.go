// Package reconcile holds the inventory reconciliation engine: it rebuilds
// sessions from item tags, merges remote reads with pending local writes and
// applies optimistic mutations. Everything here is pure; a Reconciler never
// performs I/O and never modifies a snapshot it was given.
package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/feed"
	"github.com/google/uuid"
)

type Reconciler struct {
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	idPrefix string
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithIDGenerator replaces the UUID source used for new sessions,
// assignments and commands.
func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) { r.newID = newID }
}

func WithIDPrefix(prefix string) Option {
	return func(r *Reconciler) { r.idPrefix = prefix }
}

func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		logger:   slog.Default(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		idPrefix: feed.DefaultIDPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type SyncResult struct {
	Snapshot       *domain.Snapshot
	Pending        []string
	Dropped        []string
	Superseded     []string
	SkippedTags    int
	InventoryKept  bool
	HistoryKept    bool
	RemoteSessions int
}

// Summary is the human readable outcome shown to whoever asked for the sync.
func (r *SyncResult) Summary() string {
	return fmt.Sprintf("Sync OK: %d items, %d active sessions.", len(r.Snapshot.Equipment), len(r.Snapshot.Sessions))
}

// Sync builds the next snapshot from a remote read and the previous local
// snapshot.
func (r *Reconciler) Sync(prev *domain.Snapshot, f *domain.Feed) (*SyncResult, error) {
	if f == nil {
		return nil, ErrNoFeed
	}
	if prev == nil {
		prev = domain.NewSnapshot()
	}

	items := feed.ParseInventory(f.Inventory, r.idPrefix)
	inventoryKept := len(items) == 0
	var remoteSessions []domain.Session
	skipped := 0
	if inventoryKept {
		items = append([]domain.Equipment{}, prev.Equipment...)
	} else {
		remoteSessions, skipped = ReconstructSessions(items, r.logger)
	}

	users := feed.ParseUsers(f.Users)
	if len(users) == 0 {
		users = append([]domain.User{}, prev.Users...)
	}

	now := r.now()
	merged := Merge(MergeInput{
		RemoteSessions: remoteSessions,
		RemoteItems:    items,
		RemoteHistory:  feed.ParseHistory(f.Logs),
		Users:          users,
		Previous:       prev,
		Now:            now,
	})

	next := &domain.Snapshot{
		Version:     prev.Version + 1,
		SyncedAt:    now,
		Equipment:   merged.Equipment,
		Users:       users,
		Sessions:    merged.Sessions,
		History:     merged.History,
		Assignments: merged.Assignments,
	}

	for _, id := range merged.Dropped {
		r.logger.Info("session no longer reported by the remote", "session_id", id)
	}
	for _, id := range merged.Superseded {
		r.logger.Warn("local assignment superseded by a session", "assignment_id", id)
	}

	return &SyncResult{
		Snapshot:       next,
		Pending:        merged.Pending,
		Dropped:        merged.Dropped,
		Superseded:     merged.Superseded,
		SkippedTags:    skipped,
		InventoryKept:  inventoryKept,
		HistoryKept:    len(f.Logs) == 0,
		RemoteSessions: len(remoteSessions),
	}, nil
}

// Apply runs a mutation against prev. On success it returns the new
// snapshot and the remote commands that propagate the change; on rejection
// it returns prev untouched.
func (r *Reconciler) Apply(prev *domain.Snapshot, m Mutation) (*domain.Snapshot, []domain.Command, error) {
	if prev == nil {
		prev = domain.NewSnapshot()
	}

	mu := &mutator{
		r:    r,
		snap: prev.Clone(),
		now:  r.now(),
	}
	if err := m.apply(mu); err != nil {
		return prev, nil, err
	}
	mu.snap.Version = prev.Version + 1
	return mu.snap, mu.commands, nil
}
