// Package syncer reconciles the local store with the remote service.
//
// Two independent axes, both idempotent and safe to retry: structural sync
// moves deck/note/card identity (server truth), event sync moves review
// events in both directions (local truth for scheduling). The asymmetry is
// deliberate: sync may create or delete cards, but it never overwrites the
// scheduling state of a card that already exists locally.
package syncer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Phase tags a progress update with the sync stage it belongs to.
type Phase string

const (
	PhaseStructural Phase = "structural"
	PhaseEventsUp   Phase = "events-up"
	PhaseEventsDown Phase = "events-down"
	PhaseCleanup    Phase = "cleanup"
	PhaseDone       Phase = "done"
)

type Progress struct {
	Phase   Phase
	Pending int
}

type Options struct {
	BatchSize       int
	RetentionDays   int
	CheckpointEvery int
	MaxRetries      uint64
	OnProgress      func(Progress)
}

// Engine owns the sync loop. At most one sync is in flight at a time:
// concurrent Sync callers join the in-flight run via singleflight, and
// fire-and-forget triggers coalesce in a capacity-one queue consumed by the
// background worker. A sync always runs to completion once started.
type Engine struct {
	repo      models.Repository
	transport Transport
	settings  srs.Settings

	batchSize       int
	retentionDays   int
	checkpointEvery int
	maxRetries      uint64
	onProgress      func(Progress)

	group   singleflight.Group
	syncing atomic.Bool
	trigger chan struct{}
}

func NewEngine(repo models.Repository, transport Transport, settings srs.Settings, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 7
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = 10
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}

	return &Engine{
		repo:            repo,
		transport:       transport,
		settings:        settings,
		batchSize:       opts.BatchSize,
		retentionDays:   opts.RetentionDays,
		checkpointEvery: opts.CheckpointEvery,
		maxRetries:      opts.MaxRetries,
		onProgress:      opts.OnProgress,
		trigger:         make(chan struct{}, 1),
	}
}

// Sync runs one full pass: structural, events up, events down, cleanup.
// Callers arriving while a pass is in flight await that pass instead of
// starting another.
func (e *Engine) Sync(ctx context.Context) error {
	_, err, _ := e.group.Do("sync", func() (any, error) {
		return nil, e.runSync(ctx)
	})
	return err
}

// RequestSync queues a background sync without waiting. Requests made while
// a pass is in flight are coalesced into exactly one follow-up pass, never
// dropped and never run concurrently.
func (e *Engine) RequestSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Start launches the single background worker that consumes queued sync
// requests. It returns when ctx is cancelled; a pass already started runs
// to completion.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.trigger:
				if err := e.Sync(context.WithoutCancel(ctx)); err != nil {
					zap.S().Warn("background sync failed", zap.Error(err))
				}
			}
		}
	}()
}

func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// PendingEvents reports how many local events still await upload, for the
// offline indicator.
func (e *Engine) PendingEvents(ctx context.Context) (int, error) {
	return e.repo.CountUnsyncedEvents(ctx)
}

// ForceFullResync clears the sync cursors so the next pass re-requests
// everything. Local events and card state are preserved.
func (e *Engine) ForceFullResync(ctx context.Context) error {
	cursor := &models.SyncCursor{}
	if err := e.repo.SaveSyncCursor(ctx, cursor); err != nil {
		return fmt.Errorf("reset sync cursors: %w", err)
	}

	zap.S().Info("sync cursors reset, next sync will be full")
	return nil
}

// ForceFreshSync wipes ALL local data, including events that were never
// uploaded, then full-syncs from the server. Unsynced local progress is
// lost; callers must warn the user before invoking this.
func (e *Engine) ForceFreshSync(ctx context.Context) error {
	if err := e.repo.WipeAll(ctx); err != nil {
		return fmt.Errorf("wipe local data: %w", err)
	}

	zap.S().Warn("local data wiped for fresh sync")
	return e.Sync(ctx)
}

func (e *Engine) runSync(ctx context.Context) error {
	e.syncing.Store(true)
	defer e.syncing.Store(false)

	started := time.Now()

	e.emit(PhaseStructural)
	if err := e.structuralSync(ctx); err != nil {
		return fmt.Errorf("structural sync: %w", err)
	}

	e.emit(PhaseEventsUp)
	if err := e.pushEvents(ctx); err != nil {
		return fmt.Errorf("push events: %w", err)
	}

	e.emit(PhaseEventsDown)
	if err := e.pullEvents(ctx); err != nil {
		return fmt.Errorf("pull events: %w", err)
	}

	e.emit(PhaseCleanup)
	if err := e.cleanup(ctx); err != nil {
		// Cleanup is housekeeping; a failure must not mark the sync failed.
		zap.S().Warn("sync cleanup", zap.Error(err))
	}

	e.emit(PhaseDone)
	zap.S().Info("sync complete", zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (e *Engine) structuralSync(ctx context.Context) error {
	cursor, err := e.repo.GetSyncCursor(ctx)
	if err != nil {
		return err
	}

	if cursor.LastFullSyncAt == nil {
		return e.fullSync(ctx)
	}
	return e.incrementalSync(ctx, cursor)
}

func (e *Engine) emit(phase Phase) {
	if e.onProgress == nil {
		return
	}
	pending, err := e.repo.CountUnsyncedEvents(context.Background())
	if err != nil {
		pending = -1
	}
	e.onProgress(Progress{Phase: phase, Pending: pending})
}

// withRetry wraps a transport call in capped exponential backoff. Transient
// network failures are retried here; anything still failing surfaces to the
// caller and is retried on the next sync trigger.
func (e *Engine) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			zap.S().Debug("transport call failed, will retry", zap.String("op", op), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
