package syncer

import (
	"context"
	"errors"
	"os"
	"slices"
	"time"

	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/rebuild"
	"github.com/yourusername/cardsync/internal/repository"
	"github.com/yourusername/cardsync/internal/srs"
	"github.com/yourusername/cardsync/pkg/utils"
	"go.uber.org/zap"
)

// pushEvents uploads unsynced events in batches. The server deduplicates by
// event id, so created and skipped are both success and the whole batch is
// marked synced either way; a failed batch stays unsynced and is retried
// wholesale on the next pass.
func (e *Engine) pushEvents(ctx context.Context) error {
	for {
		events, err := e.repo.UnsyncedEvents(ctx, e.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		remote := make([]RemoteEvent, 0, len(events))
		ids := make([]string, 0, len(events))
		for _, event := range events {
			remote = append(remote, RemoteEvent{
				ID:          event.ID,
				CardID:      event.CardID,
				Rating:      int(event.Rating),
				ReviewedAt:  event.ReviewedAt,
				TimeSpentMS: event.TimeSpentMS,
				Answer:      event.Answer,
			})
			ids = append(ids, event.ID)
		}

		var result *PushResult
		err = e.withRetry(ctx, "push reviews", func(ctx context.Context) error {
			res, err := e.transport.PushReviews(ctx, remote)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
		if err != nil {
			return err
		}

		if err := e.repo.MarkEventsSynced(ctx, ids); err != nil {
			return err
		}

		zap.S().Info("review events uploaded",
			zap.Int("created", result.Created), zap.Int("skipped", result.Skipped))

		e.uploadRecordings(ctx, events)

		if len(events) < e.batchSize {
			return nil
		}
	}
}

// uploadRecordings ships review audio best-effort. Failures are logged and
// never fail the sync; the files stay on disk for a later attempt.
func (e *Engine) uploadRecordings(ctx context.Context, events []models.ReviewEvent) {
	for _, event := range events {
		if event.RecordingPath == nil || *event.RecordingPath == "" {
			continue
		}

		file, err := os.Open(*event.RecordingPath)
		if err != nil {
			zap.S().Warn("open recording", zap.Error(err), zap.String("event_id", event.ID))
			continue
		}

		if err := e.transport.UploadRecording(ctx, event.ID, file); err != nil {
			zap.S().Warn("upload recording", zap.Error(err), zap.String("event_id", event.ID))
		}
		_ = file.Close()
	}
}

// pullEvents downloads events created remotely since the event cursor,
// inserts the ones not already present, and re-reconstructs every card a
// new event touched so local scheduling reflects the merged timeline.
func (e *Engine) pullEvents(ctx context.Context) error {
	cursor, err := e.repo.GetSyncCursor(ctx)
	if err != nil {
		return err
	}

	since := time.Time{}
	if cursor.LastEventSyncAt != nil {
		since = *cursor.LastEventSyncAt
	}

	touched := make(map[string]bool)
	var serverTime time.Time

	for {
		var page *PullPage
		err := e.withRetry(ctx, "pull reviews", func(ctx context.Context) error {
			result, err := e.transport.PullReviews(ctx, since)
			if err != nil {
				return err
			}
			page = result
			return nil
		})
		if err != nil {
			return err
		}

		for _, remote := range page.Events {
			inserted, err := e.insertRemoteEvent(ctx, remote)
			if err != nil {
				return err
			}
			if inserted {
				touched[remote.CardID] = true
			}
		}

		serverTime = page.ServerTime
		if !page.HasMore {
			break
		}
		if len(page.Events) > 0 {
			since = page.Events[len(page.Events)-1].ReviewedAt
		} else {
			break
		}
	}

	// Deterministic repair order keeps logs and tests stable.
	cardIDs := make([]string, 0, len(touched))
	for cardID := range touched {
		cardIDs = append(cardIDs, cardID)
	}
	slices.Sort(cardIDs)

	now := utils.NowUTC()
	for _, cardID := range cardIDs {
		if err := rebuild.Fix(ctx, e.repo, cardID, e.settings, now); err != nil {
			zap.S().Error("fix card state after download", zap.Error(err), zap.String("card_id", cardID))
		}
	}

	if !serverTime.IsZero() {
		cursor.LastEventSyncAt = &serverTime
		if err := e.repo.SaveSyncCursor(ctx, cursor); err != nil {
			return err
		}
	}

	if len(touched) > 0 {
		zap.S().Info("review events downloaded", zap.Int("cards_touched", len(touched)))
	}
	return nil
}

func (e *Engine) insertRemoteEvent(ctx context.Context, remote RemoteEvent) (bool, error) {
	// Structural sync may not have delivered this card yet; skip and let a
	// later pass pick the event up after the card exists.
	if _, err := e.repo.GetCard(ctx, remote.CardID); err != nil {
		if errors.Is(err, repository.ErrCardNotFound) {
			zap.S().Warn("downloaded event for unknown card",
				zap.String("event_id", remote.ID), zap.String("card_id", remote.CardID))
			return false, nil
		}
		return false, err
	}

	// The local log is immutable, so a malformed rating must never get in:
	// every replay of the card would fail on it forever.
	rating := srs.Rating(remote.Rating)
	if !rating.IsValid() {
		zap.S().Warn("downloaded event with invalid rating",
			zap.String("event_id", remote.ID), zap.String("card_id", remote.CardID),
			zap.Int("rating", remote.Rating))
		return false, nil
	}

	event := &models.ReviewEvent{
		ID:          remote.ID,
		CardID:      remote.CardID,
		Rating:      rating,
		ReviewedAt:  remote.ReviewedAt,
		TimeSpentMS: remote.TimeSpentMS,
		Answer:      remote.Answer,
		Synced:      true,
		CreatedAt:   utils.NowUTC(),
	}

	return e.repo.AppendEvent(ctx, event)
}

// cleanup advances checkpoints and prunes old synced events. The ordering
// invariant is absolute: an event may only be deleted once a checkpoint
// covers it, so replay never loses information.
func (e *Engine) cleanup(ctx context.Context) error {
	cardIDs, err := e.repo.ListCardIDs(ctx)
	if err != nil {
		return err
	}

	cutoff := utils.NowUTC().AddDate(0, 0, -e.retentionDays)
	pruned := 0

	for _, cardID := range cardIDs {
		n, err := e.cleanupCard(ctx, cardID, cutoff)
		if err != nil {
			zap.S().Warn("cleanup card", zap.Error(err), zap.String("card_id", cardID))
			continue
		}
		pruned += n
	}

	if pruned > 0 {
		zap.S().Info("pruned synced events", zap.Int("events", pruned))
	}
	return nil
}

func (e *Engine) cleanupCard(ctx context.Context, cardID string, cutoff time.Time) (int, error) {
	events, err := e.repo.EventsForCard(ctx, cardID)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	rebuild.SortEvents(events)

	checkpoint, err := e.repo.GetCheckpoint(ctx, cardID)
	if err != nil {
		return 0, err
	}

	// A downloaded event older than the checkpoint boundary invalidates the
	// checkpoint: its covered prefix no longer matches the sorted log. Drop
	// it and rebuild from scratch below.
	if checkpoint != nil && !rebuild.CheckpointApplies(events, checkpoint) {
		if checkpoint.PrunedCount > 0 {
			zap.S().Warn("checkpoint invalidated after pruning, replay starts from stored events only",
				zap.String("card_id", cardID), zap.Int("pruned_count", checkpoint.PrunedCount))
		}
		if err := e.repo.DeleteCheckpoint(ctx, cardID); err != nil {
			return 0, err
		}
		checkpoint = nil
	}

	prunedBefore := 0
	if checkpoint != nil {
		prunedBefore = checkpoint.PrunedCount
	}

	// Advance the checkpoint to the latest multiple of the interval.
	total := len(events) + prunedBefore
	target := (total / e.checkpointEvery) * e.checkpointEvery
	if target > prunedBefore && (checkpoint == nil || checkpoint.EventCount < target) {
		prefix := target - prunedBefore
		state, err := rebuild.ComputeState(events[:prefix], e.settings, checkpoint)
		if err != nil {
			return 0, err
		}
		checkpoint = &models.Checkpoint{
			CardID:      cardID,
			EventCount:  target,
			PrunedCount: prunedBefore,
			LastEventID: events[prefix-1].ID,
			State:       state,
			UpdatedAt:   utils.NowUTC(),
		}
		if err := e.repo.UpsertCheckpoint(ctx, checkpoint); err != nil {
			return 0, err
		}
	}

	if checkpoint == nil {
		return 0, nil
	}

	// Only events the checkpoint already covers are prunable.
	covered := checkpoint.StoredPrefix()
	if covered > len(events) {
		covered = len(events)
	}

	var prunable []string
	for _, event := range events[:covered] {
		if event.Synced && event.ReviewedAt.Before(cutoff) {
			prunable = append(prunable, event.ID)
		}
	}
	if len(prunable) == 0 {
		return 0, nil
	}

	if err := e.repo.DeleteEvents(ctx, prunable); err != nil {
		return 0, err
	}

	checkpoint.PrunedCount += len(prunable)
	if err := e.repo.UpsertCheckpoint(ctx, checkpoint); err != nil {
		return 0, err
	}

	return len(prunable), nil
}
