// Package outbox delivers remote commands in the background. Delivery is
// fire-and-forget: callers never wait for the remote, and a failed command
// is logged and recorded but never rolled back.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DGApex/CRT-INV/internal/domain"
	"github.com/DGApex/CRT-INV/internal/metrics"
	"github.com/DGApex/CRT-INV/internal/repository"
)

type Sender interface {
	Send(ctx context.Context, cmd domain.Command) error
}

type Config struct {
	// Timeout bounds a single delivery attempt.
	Timeout     time.Duration
	MaxAttempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff   time.Duration
	QueueSize int
}

type Dispatcher struct {
	sender  Sender
	repo    repository.CommandRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
	queue   chan domain.Command
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(sender Sender, repo repository.CommandRepository, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender:  sender,
		repo:    repo,
		metrics: m,
		logger:  logger.With("component", "outbox"),
		cfg:     cfg,
		queue:   make(chan domain.Command, cfg.QueueSize),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Enqueue records the commands as pending and hands them to the worker.
// It never blocks; a command that does not fit in the queue is marked
// failed.
func (d *Dispatcher) Enqueue(ctx context.Context, cmds ...domain.Command) {
	for _, cmd := range cmds {
		rec := &domain.CommandRecord{
			Command:   cmd,
			Status:    domain.CommandPending,
			UpdatedAt: d.now(),
		}
		d.save(ctx, rec)

		select {
		case d.queue <- cmd:
		default:
			d.logger.Error("outbox queue full, dropping command",
				"command_id", cmd.ID,
				"action", cmd.Action,
			)
			rec.Status = domain.CommandFailed
			rec.LastError = "queue full"
			rec.UpdatedAt = d.now()
			d.save(ctx, rec)
			d.count(cmd.Action, metrics.ResultError)
		}
	}
}

// Run delivers queued commands until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-d.queue:
			d.dispatch(ctx, cmd)
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.logger.Warn("outbox stopped with undelivered commands", "count", n)
			}
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd domain.Command) {
	rec := &domain.CommandRecord{Command: cmd, Status: domain.CommandPending}

	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if serr := d.sleep(ctx, time.Duration(attempt-1)*d.cfg.Backoff); serr != nil {
				err = serr
				break
			}
		}

		rec.Attempts = attempt
		err = d.send(ctx, cmd)
		if err == nil {
			break
		}
		d.logger.Warn("command delivery failed",
			"command_id", cmd.ID,
			"action", cmd.Action,
			"attempt", attempt,
			"error", err,
		)
	}

	now := d.now()
	rec.UpdatedAt = now
	if err != nil {
		rec.Status = domain.CommandFailed
		rec.LastError = err.Error()
		d.logger.Error("command not delivered",
			"command_id", cmd.ID,
			"action", cmd.Action,
			"attempts", rec.Attempts,
			"error", err,
		)
		d.count(cmd.Action, metrics.ResultError)
	} else {
		rec.Status = domain.CommandDispatched
		rec.DispatchedAt = &now
		d.logger.Debug("command delivered", "command_id", cmd.ID, "action", cmd.Action)
		d.count(cmd.Action, metrics.ResultOK)
	}
	d.save(context.WithoutCancel(ctx), rec)
}

func (d *Dispatcher) send(ctx context.Context, cmd domain.Command) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	if err := d.sender.Send(ctx, cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.ID, err)
	}
	return nil
}

func (d *Dispatcher) save(ctx context.Context, rec *domain.CommandRecord) {
	if d.repo == nil {
		return
	}
	if err := d.repo.Save(ctx, rec); err != nil {
		d.logger.Error("failed to record command", "command_id", rec.Command.ID, "error", err)
	}
}

func (d *Dispatcher) count(action domain.CommandAction, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.CommandsTotal.WithLabelValues(string(action), result).Inc()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
