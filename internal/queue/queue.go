// Package queue decides which due card to study next. Everything here is
// pure: callers pass the card snapshot, the clock and the session state, and
// randomness comes in as an explicit source.
package queue

import (
	"cmp"
	"math/rand"
	"slices"
	"time"

	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
	"github.com/yourusername/cardsync/pkg/utils"
)

// Snapshot is the ephemeral due-card view for one scope at one instant.
// Learning holds every learning/relearning card (sorted by due instant) so
// the selector can fall back to not-yet-due cards; Counts only counts the
// ones actually due.
type Snapshot struct {
	Now      time.Time
	New      []models.Card
	Learning []models.Card
	Review   []models.Card
	Counts   models.QueueCounts
}

// Session is the piece of study-session state the selector needs: the card
// currently on screen (anti-flicker) and a short rolling window of recently
// studied notes to avoid immediate repeats.
type Session struct {
	CurrentCardID string
	RecentNoteIDs []string
}

// RecentNotesWindow is how many recently studied notes are excluded from
// new/review selection.
const RecentNotesWindow = 5

// Allowance returns how many new cards may still be introduced today.
func Allowance(perDayLimit, bonus, studiedToday int) int {
	remaining := perDayLimit + bonus - studiedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BuildSnapshot computes the due set at now. New cards are capped by the
// remaining daily allowance; review cards are due when their due date falls
// on or before the end of the current calendar day; learning cards are due
// when their timer has passed.
func BuildSnapshot(cards []models.Card, now time.Time, newAllowance int) Snapshot {
	snapshot := Snapshot{Now: now}
	endOfDay := utils.EndOfDay(now)

	for _, card := range cards {
		switch card.Queue {
		case srs.QueueNew:
			snapshot.New = append(snapshot.New, card)
		case srs.QueueLearning, srs.QueueRelearning:
			snapshot.Learning = append(snapshot.Learning, card)
			if card.DueAt != nil && !card.DueAt.After(now) {
				snapshot.Counts.Learning++
			}
		case srs.QueueReview:
			if card.DueDate != nil && card.DueDate.Before(endOfDay) {
				snapshot.Review = append(snapshot.Review, card)
			}
		}
	}

	slices.SortFunc(snapshot.New, func(a, b models.Card) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if newAllowance < 0 {
		newAllowance = 0
	}
	if len(snapshot.New) > newAllowance {
		snapshot.New = snapshot.New[:newAllowance]
	}

	slices.SortFunc(snapshot.Learning, func(a, b models.Card) int {
		if c := compareDueAt(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	slices.SortFunc(snapshot.Review, func(a, b models.Card) int {
		if c := compareDueDate(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	snapshot.Counts.New = len(snapshot.New)
	snapshot.Counts.Review = len(snapshot.Review)

	return snapshot
}

// DueCards flattens the snapshot into the list of cards studyable right now.
func (s Snapshot) DueCards() []models.Card {
	due := make([]models.Card, 0, len(s.New)+len(s.Learning)+len(s.Review))
	due = append(due, s.New...)
	for _, card := range s.Learning {
		if card.DueAt != nil && !card.DueAt.After(s.Now) {
			due = append(due, card)
		}
	}
	due = append(due, s.Review...)
	return due
}

// SelectNext picks the next card to present:
//
//  1. a learning/relearning card whose timer has passed, earliest due first;
//  2. the currently displayed card, if it is still eligible;
//  3. a proportional random mix of new vs review cards;
//  4. the soonest-due learning/relearning card even if not due yet, so the
//     session is never blocked while timers run.
//
// Recently studied notes are excluded from new/review selection but never
// from learning selection. Returns nil when the snapshot is exhausted.
func SelectNext(snapshot Snapshot, session Session, rng *rand.Rand) *models.Card {
	if card := dueLearning(snapshot); card != nil {
		return card
	}

	if card := currentIfEligible(snapshot, session); card != nil {
		return card
	}

	recent := make(map[string]bool, len(session.RecentNoteIDs))
	for _, noteID := range session.RecentNoteIDs {
		recent[noteID] = true
	}
	newCards := excludeNotes(snapshot.New, recent)
	reviewCards := excludeNotes(snapshot.Review, recent)

	total := len(newCards) + len(reviewCards)
	if total > 0 {
		pNew := float64(len(newCards)) / float64(total)
		if len(newCards) > 0 && (len(reviewCards) == 0 || rng.Float64() < pNew) {
			card := newCards[rng.Intn(len(newCards))]
			return &card
		}
		card := reviewCards[rng.Intn(len(reviewCards))]
		return &card
	}

	// Nothing else qualifies: hand back the soonest learning card.
	if len(snapshot.Learning) > 0 {
		card := snapshot.Learning[0]
		return &card
	}

	return nil
}

func dueLearning(snapshot Snapshot) *models.Card {
	for _, card := range snapshot.Learning {
		if card.DueAt != nil && !card.DueAt.After(snapshot.Now) {
			due := card
			return &due
		}
	}
	return nil
}

func currentIfEligible(snapshot Snapshot, session Session) *models.Card {
	if session.CurrentCardID == "" {
		return nil
	}
	for _, card := range snapshot.DueCards() {
		if card.ID == session.CurrentCardID {
			current := card
			return &current
		}
	}
	return nil
}

func excludeNotes(cards []models.Card, recent map[string]bool) []models.Card {
	if len(recent) == 0 {
		return cards
	}
	kept := make([]models.Card, 0, len(cards))
	for _, card := range cards {
		if !recent[card.NoteID] {
			kept = append(kept, card)
		}
	}
	return kept
}

func compareDueAt(a, b models.Card) int {
	switch {
	case a.DueAt == nil && b.DueAt == nil:
		return 0
	case a.DueAt == nil:
		return 1
	case b.DueAt == nil:
		return -1
	default:
		return a.DueAt.Compare(*b.DueAt)
	}
}

func compareDueDate(a, b models.Card) int {
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	default:
		return a.DueDate.Compare(*b.DueDate)
	}
}
