package models

import (
	"context"
	"math/rand"
	"time"

	"github.com/yourusername/cardsync/internal/srs"
)

type Repository interface {
	RunInTx(ctx context.Context, fn func(Repository) error) error

	UpsertDeck(ctx context.Context, deck *Deck) error
	GetDeck(ctx context.Context, deckID string) (*Deck, error)
	ListDecks(ctx context.Context) ([]*Deck, error)
	DeleteDecks(ctx context.Context, deckIDs []string) error

	UpsertNote(ctx context.Context, note *Note) error
	ListNoteIDs(ctx context.Context) ([]string, error)
	DeleteNotes(ctx context.Context, noteIDs []string) error

	InsertCardIfAbsent(ctx context.Context, card *Card) (bool, error)
	UpdateCardIdentity(ctx context.Context, cardID, noteID, deckID string, variant int) error
	UpdateCardState(ctx context.Context, cardID string, state srs.CardState, updatedAt time.Time) error
	GetCard(ctx context.Context, cardID string) (*Card, error)
	ListCards(ctx context.Context, scope Scope) ([]Card, error)
	ListCardIDs(ctx context.Context) ([]string, error)
	DeleteCards(ctx context.Context, cardIDs []string) error

	AppendEvent(ctx context.Context, event *ReviewEvent) (bool, error)
	EventsForCard(ctx context.Context, cardID string) ([]ReviewEvent, error)
	CountEventsForCard(ctx context.Context, cardID string) (int, error)
	UnsyncedEvents(ctx context.Context, limit int) ([]ReviewEvent, error)
	CountUnsyncedEvents(ctx context.Context) (int, error)
	MarkEventsSynced(ctx context.Context, eventIDs []string) error
	DeleteEvents(ctx context.Context, eventIDs []string) error
	CountCardsFirstReviewedBetween(ctx context.Context, deckID string, from, to time.Time) (int, error)

	UpsertCheckpoint(ctx context.Context, checkpoint *Checkpoint) error
	GetCheckpoint(ctx context.Context, cardID string) (*Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, cardID string) error

	GetNewStudied(ctx context.Context, deckID, day string) (int, error)
	IncrementNewStudied(ctx context.Context, deckID, day string) error
	SetNewStudied(ctx context.Context, deckID, day string, count int) error

	GetSyncCursor(ctx context.Context) (*SyncCursor, error)
	SaveSyncCursor(ctx context.Context, cursor *SyncCursor) error

	WipeAll(ctx context.Context) error
}

type Service interface {
	SubmitReview(ctx context.Context, cardID string, rating srs.Rating, meta ReviewMeta) (*ReviewResult, error)
	PreviewIntervals(ctx context.Context, cardID string, now time.Time) (map[srs.Rating]srs.Outcome, error)

	GetDueCards(ctx context.Context, scope Scope, bonusNewCards int) ([]Card, error)
	GetQueueCounts(ctx context.Context, scope Scope, bonusNewCards int) (QueueCounts, error)
	SelectNextCard(ctx context.Context, scope Scope, bonusNewCards int, session SessionState, rng *rand.Rand) (*Card, error)
	NewStudiedToday(ctx context.Context, deckID string, now time.Time) (int, error)

	RecomputeCardState(ctx context.Context, cardID string) (srs.CardState, error)
	VerifyCardState(ctx context.Context, cardID string) (*VerifyReport, error)
	FixCardState(ctx context.Context, cardID string) error
	FixAllCardStates(ctx context.Context) (RepairSummary, error)
}

// SessionState is the explicit study-session state threaded through card
// selection instead of a module-level "currently displayed card" flag.
type SessionState struct {
	CurrentCardID string
	RecentNoteIDs []string
}
