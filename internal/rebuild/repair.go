package rebuild

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
	"go.uber.org/zap"
)

// Recompute derives a card's state from its event log and checkpoint
// without touching the stored card.
func Recompute(ctx context.Context, repo models.Repository, cardID string, settings srs.Settings) (srs.CardState, error) {
	events, err := repo.EventsForCard(ctx, cardID)
	if err != nil {
		return srs.CardState{}, fmt.Errorf("load events (card_id: %s): %w", cardID, err)
	}

	checkpoint, err := repo.GetCheckpoint(ctx, cardID)
	if err != nil {
		return srs.CardState{}, fmt.Errorf("load checkpoint (card_id: %s): %w", cardID, err)
	}

	state, err := ComputeState(events, settings, checkpoint)
	if err != nil {
		return srs.CardState{}, fmt.Errorf("compute state (card_id: %s): %w", cardID, err)
	}

	return state, nil
}

// Verify compares stored against recomputed state and reports the mismatch
// without mutating anything.
func Verify(ctx context.Context, repo models.Repository, cardID string, settings srs.Settings) (*models.VerifyReport, error) {
	card, err := repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	recomputed, err := Recompute(ctx, repo, cardID, settings)
	if err != nil {
		return nil, err
	}

	stored := card.State()
	return &models.VerifyReport{
		CardID:     cardID,
		Matches:    stored == recomputed,
		Stored:     stored,
		Recomputed: recomputed,
	}, nil
}

// Fix recomputes a card's state from the log and persists it. This is the
// self-healing path used after event downloads and on detected drift.
func Fix(ctx context.Context, repo models.Repository, cardID string, settings srs.Settings, now time.Time) error {
	state, err := Recompute(ctx, repo, cardID, settings)
	if err != nil {
		return err
	}

	if err := repo.UpdateCardState(ctx, cardID, state, now); err != nil {
		return fmt.Errorf("persist recomputed state (card_id: %s): %w", cardID, err)
	}
	return nil
}

// FixAll repairs every card, continuing past individual failures.
func FixAll(ctx context.Context, repo models.Repository, settings srs.Settings, now time.Time) (models.RepairSummary, error) {
	cardIDs, err := repo.ListCardIDs(ctx)
	if err != nil {
		return models.RepairSummary{}, fmt.Errorf("list cards for repair: %w", err)
	}

	summary := models.RepairSummary{Total: len(cardIDs)}
	for _, cardID := range cardIDs {
		if err := Fix(ctx, repo, cardID, settings, now); err != nil {
			zap.S().Error("fix card state", zap.Error(err), zap.String("card_id", cardID))
			summary.Errors++
			continue
		}
		summary.Fixed++
	}

	return summary, nil
}
