package models

import (
	"time"

	"github.com/yourusername/cardsync/internal/srs"
)

type Deck struct {
	ID             string     `db:"id"`
	Name           string     `db:"name"`
	NewCardsPerDay int        `db:"new_cards_per_day"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at"`
}

type Note struct {
	ID        string     `db:"id"`
	DeckID    string     `db:"deck_id"`
	Front     string     `db:"front"`
	Back      string     `db:"back"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

// Card combines server-authoritative identity (id, note_id, deck_id, variant)
// with locally-authoritative scheduling state. The scheduling columns are a
// cache of folding the card's review events through the scheduler; once an
// event exists they are never overwritten by sync.
type Card struct {
	ID      string `db:"id"`
	NoteID  string `db:"note_id"`
	DeckID  string `db:"deck_id"`
	Variant int    `db:"variant"`

	Queue        srs.Queue  `db:"queue"`
	Step         int        `db:"step"`
	Ease         float64    `db:"ease"`
	IntervalDays int        `db:"interval_days"`
	Reps         int        `db:"reps"`
	Lapses       int        `db:"lapses"`
	DueAt        *time.Time `db:"due_at"`
	DueDate      *time.Time `db:"due_date"`

	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

// State maps the card's scheduling columns into the scheduler's value type.
func (c *Card) State() srs.CardState {
	state := srs.CardState{
		Queue:        c.Queue,
		Step:         c.Step,
		Ease:         c.Ease,
		IntervalDays: c.IntervalDays,
		Reps:         c.Reps,
		Lapses:       c.Lapses,
	}
	if c.DueAt != nil {
		state.DueAt = *c.DueAt
	}
	if c.DueDate != nil {
		state.DueDate = *c.DueDate
	}
	return state
}

// SetState writes scheduler state back into the scheduling columns.
func (c *Card) SetState(state srs.CardState) {
	c.Queue = state.Queue
	c.Step = state.Step
	c.Ease = state.Ease
	c.IntervalDays = state.IntervalDays
	c.Reps = state.Reps
	c.Lapses = state.Lapses
	c.DueAt = nil
	c.DueDate = nil
	if !state.DueAt.IsZero() {
		due := state.DueAt
		c.DueAt = &due
	}
	if !state.DueDate.IsZero() {
		due := state.DueDate
		c.DueDate = &due
	}
}

// ReviewEvent is an immutable fact recording one study action. Only the
// Synced flag changes after creation; events are never updated or deleted
// outside the checkpoint-guarded retention sweep.
type ReviewEvent struct {
	ID            string     `db:"id"`
	CardID        string     `db:"card_id"`
	Rating        srs.Rating `db:"rating"`
	ReviewedAt    time.Time  `db:"reviewed_at"`
	TimeSpentMS   *int64     `db:"time_spent_ms"`
	Answer        *string    `db:"answer"`
	RecordingPath *string    `db:"recording_path"`
	Synced        bool       `db:"synced"`
	CreatedAt     time.Time  `db:"created_at"`
}

// Checkpoint snapshots a card's state after a known number of events so
// replay only folds the tail of the log. It must be observationally
// transparent: replay from the checkpoint equals replay from scratch.
//
// EventCount counts every event ever folded, including ones later removed
// by the retention sweep; PrunedCount says how many of those no longer
// exist in the store. Only events covered by a checkpoint may be pruned.
//
// LastEventID is the id of the final event the checkpoint folded. Replay
// uses it to detect a checkpoint whose covered prefix no longer matches the
// sorted log, which happens when a downloaded event carries a reviewed_at
// earlier than events already folded.
type Checkpoint struct {
	CardID      string
	EventCount  int
	PrunedCount int
	LastEventID string
	State       srs.CardState
	UpdatedAt   time.Time
}

// StoredPrefix is how many events still in the store precede the checkpoint.
func (c *Checkpoint) StoredPrefix() int {
	return c.EventCount - c.PrunedCount
}

// SyncCursor holds the high-water marks used to request only deltas.
// Single-user store: exactly one row.
type SyncCursor struct {
	LastFullSyncAt        *time.Time `db:"last_full_sync_at"`
	LastIncrementalSyncAt *time.Time `db:"last_incremental_sync_at"`
	LastEventSyncAt       *time.Time `db:"last_event_sync_at"`
}

// Scope narrows study operations to one deck. The zero value means all decks.
type Scope struct {
	DeckID string
}

func (s Scope) AllDecks() bool { return s.DeckID == "" }

type QueueCounts struct {
	New      int `json:"new"`
	Learning int `json:"learning"`
	Review   int `json:"review"`
}

// ReviewMeta carries the optional per-review metadata captured by the UI.
type ReviewMeta struct {
	TimeSpentMS   *int64
	Answer        *string
	RecordingPath *string
}

// ReviewResult is what SubmitReview reports back for immediate UI feedback.
type ReviewResult struct {
	EventID      string
	NewQueue     srs.Queue
	IntervalDays int
	NextDue      time.Time
}

// VerifyReport is the outcome of comparing stored against recomputed state.
type VerifyReport struct {
	CardID     string
	Matches    bool
	Stored     srs.CardState
	Recomputed srs.CardState
}

// RepairSummary reports a batch state repair run.
type RepairSummary struct {
	Total  int
	Fixed  int
	Errors int
}
