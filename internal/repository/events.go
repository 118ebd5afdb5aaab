package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
)

// AppendEvent inserts a review event and reports whether a row was created.
// Inserting an id that already exists is a no-op, which makes replayed
// uploads and downloads idempotent.
func (r *SQLite) AppendEvent(ctx context.Context, event *models.ReviewEvent) (bool, error) {
	query := r.psql.Insert("review_events").
		Columns("id", "card_id", "rating", "reviewed_at", "time_spent_ms", "answer", "recording_path", "synced", "created_at").
		Values(event.ID, event.CardID, event.Rating, event.ReviewedAt, event.TimeSpentMS, event.Answer, event.RecordingPath, event.Synced, event.CreatedAt).
		Suffix("ON CONFLICT(id) DO NOTHING")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build SQL query (event_id: %s): %w", event.ID, err)
	}

	res, err := r.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("append event (event_id: %s, card_id: %s): %w", event.ID, event.CardID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected (event_id: %s): %w", event.ID, err)
	}
	return inserted > 0, nil
}

func (r *SQLite) EventsForCard(ctx context.Context, cardID string) ([]models.ReviewEvent, error) {
	query := `
		SELECT id, card_id, rating, reviewed_at, time_spent_ms, answer, recording_path, synced, created_at
		FROM review_events
		WHERE card_id = ?
		ORDER BY reviewed_at ASC, id ASC
	`

	var events []models.ReviewEvent
	if err := r.SelectContext(ctx, &events, query, cardID); err != nil {
		return nil, fmt.Errorf("events for card (card_id: %s): %w", cardID, err)
	}

	return events, nil
}

func (r *SQLite) CountEventsForCard(ctx context.Context, cardID string) (int, error) {
	query := `SELECT COUNT(*) FROM review_events WHERE card_id = ?`

	var count int
	if err := r.QueryRowxContext(ctx, query, cardID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events (card_id: %s): %w", cardID, err)
	}
	return count, nil
}

func (r *SQLite) UnsyncedEvents(ctx context.Context, limit int) ([]models.ReviewEvent, error) {
	query := `
		SELECT id, card_id, rating, reviewed_at, time_spent_ms, answer, recording_path, synced, created_at
		FROM review_events
		WHERE synced = 0
		ORDER BY reviewed_at ASC, id ASC
		LIMIT ?
	`

	var events []models.ReviewEvent
	if err := r.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("unsynced events (limit: %d): %w", limit, err)
	}

	return events, nil
}

func (r *SQLite) CountUnsyncedEvents(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM review_events WHERE synced = 0`

	var count int
	if err := r.QueryRowxContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unsynced events: %w", err)
	}
	return count, nil
}

func (r *SQLite) MarkEventsSynced(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	query := r.psql.Update("review_events").
		Set("synced", true).
		Where(squirrel.Eq{"id": eventIDs})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (event_count: %d): %w", len(eventIDs), err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("mark events synced (event_count: %d): %w", len(eventIDs), err)
	}
	return nil
}

func (r *SQLite) DeleteEvents(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	query := r.psql.Delete("review_events").Where(squirrel.Eq{"id": eventIDs})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (event_count: %d): %w", len(eventIDs), err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete events (event_count: %d): %w", len(eventIDs), err)
	}
	return nil
}

// CountCardsFirstReviewedBetween counts distinct cards whose very first
// review fell inside [from, to). A card's first review is the moment it left
// the new queue, so this is the event-log ground truth for "new cards
// studied today".
func (r *SQLite) CountCardsFirstReviewedBetween(ctx context.Context, deckID string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM (
			SELECT e.card_id, MIN(e.reviewed_at) AS first_reviewed_at
			FROM review_events e
			JOIN cards c ON c.id = e.card_id
			WHERE (? = '' OR c.deck_id = ?)
			GROUP BY e.card_id
		)
		WHERE first_reviewed_at >= ? AND first_reviewed_at < ?
	`

	var count int
	if err := r.QueryRowxContext(ctx, query, deckID, deckID, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("count first reviews (deck_id: %q): %w", deckID, err)
	}
	return count, nil
}

type checkpointRow struct {
	CardID      string    `db:"card_id"`
	EventCount  int       `db:"event_count"`
	PrunedCount int       `db:"pruned_count"`
	LastEventID string    `db:"last_event_id"`
	State       string    `db:"state"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *SQLite) UpsertCheckpoint(ctx context.Context, checkpoint *models.Checkpoint) error {
	stateJSON, err := json.Marshal(checkpoint.State)
	if err != nil {
		return fmt.Errorf("marshal checkpoint state (card_id: %s): %w", checkpoint.CardID, err)
	}

	query := r.psql.Insert("checkpoints").
		Columns("card_id", "event_count", "pruned_count", "last_event_id", "state", "updated_at").
		Values(checkpoint.CardID, checkpoint.EventCount, checkpoint.PrunedCount, checkpoint.LastEventID, string(stateJSON), checkpoint.UpdatedAt).
		Suffix("ON CONFLICT(card_id) DO UPDATE SET event_count = excluded.event_count, pruned_count = excluded.pruned_count, last_event_id = excluded.last_event_id, state = excluded.state, updated_at = excluded.updated_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (card_id: %s): %w", checkpoint.CardID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert checkpoint (card_id: %s, event_count: %d): %w", checkpoint.CardID, checkpoint.EventCount, err)
	}
	return nil
}

// GetCheckpoint returns nil when no checkpoint exists for the card.
func (r *SQLite) GetCheckpoint(ctx context.Context, cardID string) (*models.Checkpoint, error) {
	query := `
		SELECT card_id, event_count, pruned_count, last_event_id, state, updated_at
		FROM checkpoints
		WHERE card_id = ?
	`

	var row checkpointRow
	if err := r.GetContext(ctx, &row, query, cardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkpoint (card_id: %s): %w", cardID, err)
	}

	var state srs.CardState
	if err := json.Unmarshal([]byte(row.State), &state); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint state (card_id: %s): %w", cardID, err)
	}

	return &models.Checkpoint{
		CardID:      row.CardID,
		EventCount:  row.EventCount,
		PrunedCount: row.PrunedCount,
		LastEventID: row.LastEventID,
		State:       state,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func (r *SQLite) DeleteCheckpoint(ctx context.Context, cardID string) error {
	query := r.psql.Delete("checkpoints").Where("card_id = ?", cardID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (card_id: %s): %w", cardID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete checkpoint (card_id: %s): %w", cardID, err)
	}
	return nil
}
