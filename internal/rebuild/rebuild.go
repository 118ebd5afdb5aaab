// Package rebuild derives card scheduling state from the review event log.
//
// State is never trusted on its own: folding the ordered log through the
// scheduler is the source of truth, and this package is the repair path when
// cached state drifts from it.
package rebuild

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
)

// SortEvents orders events by reviewed_at, ties broken by event id so the
// fold is deterministic regardless of network arrival order.
func SortEvents(events []models.ReviewEvent) {
	slices.SortFunc(events, func(a, b models.ReviewEvent) int {
		if c := a.ReviewedAt.Compare(b.ReviewedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// CheckpointApplies reports whether the checkpoint still covers a prefix of
// the sorted log. A downloaded event with a reviewed_at earlier than events
// the checkpoint already folded displaces the boundary event out of the
// prefix, so the last folded id no longer sits at the prefix boundary and the
// checkpoint must not be used. The events slice must already be sorted.
func CheckpointApplies(events []models.ReviewEvent, checkpoint *models.Checkpoint) bool {
	prefix := checkpoint.StoredPrefix()
	if prefix < 0 || prefix > len(events) {
		return false
	}
	return prefix == 0 || events[prefix-1].ID == checkpoint.LastEventID
}

// ComputeState folds the card's events through the scheduler. When a
// checkpoint still covers a prefix of the log, the fold starts from its state
// and only replays the tail; the result is identical to replaying everything.
// A checkpoint invalidated by out-of-order arrivals is ignored and the whole
// log is replayed. The events slice is sorted in place.
func ComputeState(events []models.ReviewEvent, settings srs.Settings, checkpoint *models.Checkpoint) (srs.CardState, error) {
	SortEvents(events)

	state := srs.NewCardState(settings)
	start := 0
	if checkpoint != nil && CheckpointApplies(events, checkpoint) {
		state = checkpoint.State
		start = checkpoint.StoredPrefix()
	}

	for _, event := range events[start:] {
		next, err := srs.Apply(state, event.Rating, settings, event.ReviewedAt)
		if err != nil {
			return srs.CardState{}, fmt.Errorf("fold event (event_id: %s, card_id: %s): %w", event.ID, event.CardID, err)
		}
		state = next
	}

	return state, nil
}
