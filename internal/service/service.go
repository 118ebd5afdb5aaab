// Package service is the application layer: it composes the pure scheduler,
// the queue selector and the repository into the operations a UI calls.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/queue"
	"github.com/yourusername/cardsync/internal/rebuild"
	"github.com/yourusername/cardsync/internal/srs"
	"github.com/yourusername/cardsync/pkg/utils"
	"go.uber.org/zap"
)

// SyncNotifier queues a background sync. Satisfied by syncer.Engine; nil is
// allowed for offline-only operation and tests.
type SyncNotifier interface {
	RequestSync()
}

type CardSync struct {
	repo            models.Repository
	notifier        SyncNotifier
	settings        srs.Settings
	checkpointEvery int
}

func NewCardSync(repo models.Repository, notifier SyncNotifier, settings srs.Settings, checkpointEvery int) *CardSync {
	if checkpointEvery <= 0 {
		checkpointEvery = 10
	}
	return &CardSync{
		repo:            repo,
		notifier:        notifier,
		settings:        settings,
		checkpointEvery: checkpointEvery,
	}
}

// SubmitReview records one study action: it appends the review event, applies
// the scheduler to the card, bumps the daily new-card counter when the card
// left the new queue, and refreshes the checkpoint on every Nth event. All of
// it commits in one transaction; a crash either keeps the whole review or
// none of it.
func (s *CardSync) SubmitReview(ctx context.Context, cardID string, rating srs.Rating, meta models.ReviewMeta) (*models.ReviewResult, error) {
	if !rating.IsValid() {
		return nil, fmt.Errorf("submit review (rating: %d): %w", int(rating), srs.ErrInvalidRating)
	}

	now := utils.NowUTC()
	var result *models.ReviewResult

	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		card, err := repo.GetCard(ctx, cardID)
		if err != nil {
			return fmt.Errorf("load card (card_id: %s): %w", cardID, err)
		}
		wasNew := card.Queue == srs.QueueNew

		next, err := srs.Apply(card.State(), rating, s.settings, now)
		if err != nil {
			return err
		}

		event := &models.ReviewEvent{
			ID:            uuid.NewString(),
			CardID:        cardID,
			Rating:        rating,
			ReviewedAt:    now,
			TimeSpentMS:   meta.TimeSpentMS,
			Answer:        meta.Answer,
			RecordingPath: meta.RecordingPath,
			CreatedAt:     now,
		}
		if _, err := repo.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("append review event (card_id: %s): %w", cardID, err)
		}

		if err := repo.UpdateCardState(ctx, cardID, next, now); err != nil {
			return fmt.Errorf("update card state (card_id: %s): %w", cardID, err)
		}

		if wasNew {
			if err := repo.IncrementNewStudied(ctx, card.DeckID, utils.DayKey(now)); err != nil {
				return fmt.Errorf("increment new studied (deck_id: %s): %w", card.DeckID, err)
			}
		}

		if err := s.maybeCheckpoint(ctx, repo, cardID, now); err != nil {
			return err
		}

		nextDue := next.DueDate
		if next.Queue.Stepped() {
			nextDue = next.DueAt
		}
		result = &models.ReviewResult{
			EventID:      event.ID,
			NewQueue:     next.Queue,
			IntervalDays: next.IntervalDays,
			NextDue:      nextDue,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.RequestSync()
	}
	return result, nil
}

// maybeCheckpoint refreshes the card's checkpoint when the total number of
// events ever folded hits a multiple of the interval. The stored state is
// always derived from the log, never copied from the cards table.
func (s *CardSync) maybeCheckpoint(ctx context.Context, repo models.Repository, cardID string, now time.Time) error {
	stored, err := repo.CountEventsForCard(ctx, cardID)
	if err != nil {
		return fmt.Errorf("count events (card_id: %s): %w", cardID, err)
	}

	checkpoint, err := repo.GetCheckpoint(ctx, cardID)
	if err != nil {
		return fmt.Errorf("load checkpoint (card_id: %s): %w", cardID, err)
	}
	pruned := 0
	if checkpoint != nil {
		pruned = checkpoint.PrunedCount
	}

	total := stored + pruned
	if total%s.checkpointEvery != 0 {
		return nil
	}

	events, err := repo.EventsForCard(ctx, cardID)
	if err != nil {
		return fmt.Errorf("load events (card_id: %s): %w", cardID, err)
	}
	state, err := rebuild.ComputeState(events, s.settings, checkpoint)
	if err != nil {
		return err
	}

	// ComputeState sorted the slice, so the last element is the boundary
	// event the checkpoint folds up to.
	return repo.UpsertCheckpoint(ctx, &models.Checkpoint{
		CardID:      cardID,
		EventCount:  total,
		PrunedCount: pruned,
		LastEventID: events[len(events)-1].ID,
		State:       state,
		UpdatedAt:   now,
	})
}

// PreviewIntervals returns what each rating would do to the card, without
// recording anything.
func (s *CardSync) PreviewIntervals(ctx context.Context, cardID string, now time.Time) (map[srs.Rating]srs.Outcome, error) {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("load card (card_id: %s): %w", cardID, err)
	}
	return srs.Preview(card.State(), s.settings, now)
}

func (s *CardSync) GetDueCards(ctx context.Context, scope models.Scope, bonusNewCards int) ([]models.Card, error) {
	snapshot, err := s.buildSnapshot(ctx, scope, bonusNewCards, utils.NowUTC())
	if err != nil {
		return nil, err
	}
	return snapshot.DueCards(), nil
}

func (s *CardSync) GetQueueCounts(ctx context.Context, scope models.Scope, bonusNewCards int) (models.QueueCounts, error) {
	snapshot, err := s.buildSnapshot(ctx, scope, bonusNewCards, utils.NowUTC())
	if err != nil {
		return models.QueueCounts{}, err
	}
	return snapshot.Counts, nil
}

func (s *CardSync) SelectNextCard(ctx context.Context, scope models.Scope, bonusNewCards int, session models.SessionState, rng *rand.Rand) (*models.Card, error) {
	snapshot, err := s.buildSnapshot(ctx, scope, bonusNewCards, utils.NowUTC())
	if err != nil {
		return nil, err
	}
	return queue.SelectNext(snapshot, queue.Session{
		CurrentCardID: session.CurrentCardID,
		RecentNoteIDs: session.RecentNoteIDs,
	}, rng), nil
}

// NewStudiedToday reports how many new cards were introduced today. The event
// log is the ground truth; the daily counter row is a cache that is repaired
// in place whenever it disagrees, so downloaded or pruned events cannot skew
// the daily limit.
func (s *CardSync) NewStudiedToday(ctx context.Context, deckID string, now time.Time) (int, error) {
	from := utils.StartOfDay(now)
	to := from.AddDate(0, 0, 1)

	truth, err := s.repo.CountCardsFirstReviewedBetween(ctx, deckID, from, to)
	if err != nil {
		return 0, fmt.Errorf("count first reviews (deck_id: %s): %w", deckID, err)
	}

	day := utils.DayKey(now)
	cached, err := s.repo.GetNewStudied(ctx, deckID, day)
	if err != nil {
		return 0, fmt.Errorf("load new studied (deck_id: %s, day: %s): %w", deckID, day, err)
	}
	if cached != truth {
		zap.S().Warn("daily new counter drifted, repairing",
			zap.String("deck_id", deckID), zap.Int("cached", cached), zap.Int("actual", truth))
		if err := s.repo.SetNewStudied(ctx, deckID, day, truth); err != nil {
			return 0, fmt.Errorf("repair new studied (deck_id: %s): %w", deckID, err)
		}
	}

	return truth, nil
}

func (s *CardSync) buildSnapshot(ctx context.Context, scope models.Scope, bonus int, now time.Time) (queue.Snapshot, error) {
	cards, err := s.repo.ListCards(ctx, scope)
	if err != nil {
		return queue.Snapshot{}, fmt.Errorf("list cards (deck_id: %s): %w", scope.DeckID, err)
	}

	limit := s.settings.NewCardsPerDay
	if !scope.AllDecks() {
		deck, err := s.repo.GetDeck(ctx, scope.DeckID)
		if err != nil {
			return queue.Snapshot{}, fmt.Errorf("load deck (deck_id: %s): %w", scope.DeckID, err)
		}
		if deck.NewCardsPerDay > 0 {
			limit = deck.NewCardsPerDay
		}
	}

	studied, err := s.NewStudiedToday(ctx, scope.DeckID, now)
	if err != nil {
		return queue.Snapshot{}, err
	}

	allowance := queue.Allowance(limit, bonus, studied)
	return queue.BuildSnapshot(cards, now, allowance), nil
}

func (s *CardSync) RecomputeCardState(ctx context.Context, cardID string) (srs.CardState, error) {
	return rebuild.Recompute(ctx, s.repo, cardID, s.settings)
}

func (s *CardSync) VerifyCardState(ctx context.Context, cardID string) (*models.VerifyReport, error) {
	return rebuild.Verify(ctx, s.repo, cardID, s.settings)
}

func (s *CardSync) FixCardState(ctx context.Context, cardID string) error {
	return rebuild.Fix(ctx, s.repo, cardID, s.settings, utils.NowUTC())
}

func (s *CardSync) FixAllCardStates(ctx context.Context) (models.RepairSummary, error) {
	return rebuild.FixAll(ctx, s.repo, s.settings, utils.NowUTC())
}
