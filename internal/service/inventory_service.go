package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/metrics"
	"github.com/DGApex/CRT-INV/internal/reconcile"
	"github.com/DGApex/CRT-INV/internal/repository"
	"github.com/DGApex/CRT-INV/internal/websocket"
)

var ErrStopped = errors.New("inventory service stopped")

type Fetcher interface {
	Fetch(ctx context.Context) (*domain.Feed, error)
}

type CommandQueue interface {
	Enqueue(ctx context.Context, cmds ...domain.Command)
}

type Broadcaster interface {
	Broadcast(message *websocket.Message) error
}

// SyncReport is the outcome of one sync cycle.
type SyncReport struct {
	Summary string
	Version int64
	Pending int
}

type mutationReply struct {
	snap *domain.Snapshot
	err  error
}

type syncReply struct {
	report SyncReport
	err    error
}

type request struct {
	mutation reconcile.Mutation
	mutated  chan mutationReply
	synced   chan syncReply
}

type fetchResult struct {
	feed     *domain.Feed
	err      error
	duration time.Duration
}

// InventoryService owns the current snapshot. Run is the only goroutine
// that replaces it; readers get the latest published snapshot without
// locking.
type InventoryService struct {
	reconciler   *reconcile.Reconciler
	fetcher      Fetcher
	outbox       CommandQueue
	snapshots    repository.SnapshotRepository
	commands     repository.CommandRepository
	broadcaster  Broadcaster
	metrics      *metrics.Metrics
	logger       *slog.Logger
	pollInterval time.Duration

	current  atomic.Pointer[domain.Snapshot]
	requests chan request
	fetched  chan fetchResult
	done     chan struct{}
}

func NewInventoryService(
	reconciler *reconcile.Reconciler,
	fetcher Fetcher,
	outbox CommandQueue,
	snapshots repository.SnapshotRepository,
	commands repository.CommandRepository,
	broadcaster Broadcaster,
	m *metrics.Metrics,
	logger *slog.Logger,
	pollInterval time.Duration,
) *InventoryService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &InventoryService{
		reconciler:   reconciler,
		fetcher:      fetcher,
		outbox:       outbox,
		snapshots:    snapshots,
		commands:     commands,
		broadcaster:  broadcaster,
		metrics:      m,
		logger:       logger.With("component", "inventory"),
		pollInterval: pollInterval,
		requests:     make(chan request),
		fetched:      make(chan fetchResult, 1),
		done:         make(chan struct{}),
	}
	s.current.Store(domain.NewSnapshot())
	return s
}

// Snapshot returns the latest published snapshot. Callers must not modify it.
func (s *InventoryService) Snapshot() *domain.Snapshot {
	return s.current.Load()
}

// Restore loads the persisted snapshot, if any.
func (s *InventoryService) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap, err := s.snapshots.Load(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	s.current.Store(snap)
	s.logger.Info("snapshot restored",
		"version", snap.Version,
		"equipment", len(snap.Equipment),
		"sessions", len(snap.Sessions),
		"assignments", len(snap.Assignments),
	)
	return nil
}

// Apply submits a mutation to the event loop and waits for its outcome.
func (s *InventoryService) Apply(ctx context.Context, m reconcile.Mutation) (*domain.Snapshot, error) {
	req := request{mutation: m, mutated: make(chan mutationReply, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case reply := <-req.mutated:
		return reply.snap, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Sync asks the event loop for a fresh remote read and waits for it. On
// failure the report summary reads "Error: ..." and the snapshot is left
// as it was.
func (s *InventoryService) Sync(ctx context.Context) (SyncReport, error) {
	req := request{synced: make(chan syncReply, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return SyncReport{}, ErrStopped
	case <-ctx.Done():
		return SyncReport{}, ctx.Err()
	}

	select {
	case reply := <-req.synced:
		return reply.report, reply.err
	case <-ctx.Done():
		return SyncReport{}, ctx.Err()
	}
}

func (s *InventoryService) ListCommands(ctx context.Context, status domain.CommandStatus, limit int) ([]*domain.CommandRecord, error) {
	if s.commands == nil {
		return []*domain.CommandRecord{}, nil
	}
	return s.commands.List(ctx, status, limit)
}

// Run is the event loop. It polls the remote every pollInterval, serves
// mutation and sync requests, and returns when ctx is cancelled.
func (s *InventoryService) Run(ctx context.Context) {
	defer close(s.done)

	interval := s.pollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		fetching bool
		inflight []chan syncReply
		queued   []chan syncReply
	)

	startFetch := func() {
		fetching = true
		go func() {
			start := time.Now()
			f, err := s.fetcher.Fetch(ctx)
			s.fetched <- fetchResult{feed: f, err: err, duration: time.Since(start)}
		}()
	}

	startFetch()

	for {
		select {
		case <-ticker.C:
			if !fetching {
				startFetch()
			}

		case res := <-s.fetched:
			fetching = false
			report, err := s.completeSync(ctx, res)
			for _, ch := range inflight {
				ch <- syncReply{report: report, err: err}
			}
			inflight, queued = queued, nil
			if len(inflight) > 0 {
				startFetch()
			}

		case req := <-s.requests:
			if req.mutation != nil {
				snap, err := s.applyMutation(ctx, req.mutation)
				req.mutated <- mutationReply{snap: snap, err: err}
				continue
			}
			if fetching {
				queued = append(queued, req.synced)
				continue
			}
			inflight = append(inflight, req.synced)
			startFetch()

		case <-ctx.Done():
			err := ctx.Err()
			for _, ch := range append(inflight, queued...) {
				ch <- syncReply{report: SyncReport{Summary: "Error: " + err.Error()}, err: err}
			}
			return
		}
	}
}

// SyncOnce fetches and reconciles once without starting the event loop.
// It must not be used while Run is active.
func (s *InventoryService) SyncOnce(ctx context.Context) (SyncReport, error) {
	start := time.Now()
	f, err := s.fetcher.Fetch(ctx)
	return s.completeSync(ctx, fetchResult{feed: f, err: err, duration: time.Since(start)})
}

func (s *InventoryService) completeSync(ctx context.Context, res fetchResult) (SyncReport, error) {
	if s.metrics != nil {
		s.metrics.SyncDuration.Observe(res.duration.Seconds())
	}

	prev := s.current.Load()
	if res.err != nil {
		return s.syncFailed(prev, res.err)
	}

	result, err := s.reconciler.Sync(prev, res.feed)
	if err != nil {
		return s.syncFailed(prev, err)
	}

	s.publish(ctx, result.Snapshot)

	report := SyncReport{
		Summary: result.Summary(),
		Version: result.Snapshot.Version,
		Pending: len(result.Pending),
	}
	if s.metrics != nil {
		s.metrics.SyncTotal.WithLabelValues(metrics.ResultOK).Inc()
		s.metrics.PendingSessions.Set(float64(len(result.Pending)))
	}

	s.logger.Info(report.Summary,
		"version", report.Version,
		"remote_sessions", result.RemoteSessions,
		"pending_sessions", len(result.Pending),
		"superseded_assignments", len(result.Superseded),
		"skipped_tags", result.SkippedTags,
		"inventory_kept", result.InventoryKept,
		"history_kept", result.HistoryKept,
		"duration", res.duration,
	)
	return report, nil
}

func (s *InventoryService) syncFailed(prev *domain.Snapshot, err error) (SyncReport, error) {
	if s.metrics != nil {
		s.metrics.SyncTotal.WithLabelValues(metrics.ResultError).Inc()
	}
	s.logger.Error("sync failed", "error", err)
	return SyncReport{Summary: "Error: " + err.Error(), Version: prev.Version}, err
}

func (s *InventoryService) applyMutation(ctx context.Context, m reconcile.Mutation) (*domain.Snapshot, error) {
	prev := s.current.Load()
	next, cmds, err := s.reconciler.Apply(prev, m)
	if err != nil {
		s.countMutation(m.Kind(), metrics.ResultRejected)
		s.logger.Info("mutation rejected", "kind", m.Kind(), "error", err)
		return prev, err
	}

	s.publish(ctx, next)
	s.countMutation(m.Kind(), metrics.ResultOK)
	s.logger.Info("mutation applied", "kind", m.Kind(), "version", next.Version, "commands", len(cmds))

	if s.outbox != nil && len(cmds) > 0 {
		s.outbox.Enqueue(ctx, cmds...)
	}
	return next, nil
}

func (s *InventoryService) publish(ctx context.Context, snap *domain.Snapshot) {
	s.current.Store(snap)

	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(len(snap.Sessions)))
	}

	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, snap); err != nil {
			s.logger.Error("failed to persist snapshot", "version", snap.Version, "error", err)
		}
	}

	if s.broadcaster != nil {
		msg, err := websocket.NewMessage(websocket.TypeSnapshot, snap)
		if err != nil {
			s.logger.Error("failed to encode snapshot message", "error", err)
			return
		}
		if err := s.broadcaster.Broadcast(msg); err != nil {
			s.logger.Warn("failed to broadcast snapshot", "error", err)
		}
	}
}

func (s *InventoryService) countMutation(kind, result string) {
	if s.metrics != nil {
		s.metrics.MutationsTotal.WithLabelValues(kind, result).Inc()
	}
}
