package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
)

// ErrCardNotFound is returned when an operation targets a card id that does
// not exist locally.
var ErrCardNotFound = errors.New("card not found")

func (r *SQLite) UpsertDeck(ctx context.Context, deck *models.Deck) error {
	query := r.psql.Insert("decks").
		Columns("id", "name", "new_cards_per_day", "created_at", "updated_at").
		Values(deck.ID, deck.Name, deck.NewCardsPerDay, deck.CreatedAt, deck.UpdatedAt).
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, new_cards_per_day = excluded.new_cards_per_day, updated_at = excluded.updated_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (deck_id: %s): %w", deck.ID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert deck (deck_id: %s): %w", deck.ID, err)
	}
	return nil
}

func (r *SQLite) GetDeck(ctx context.Context, deckID string) (*models.Deck, error) {
	query := `
		SELECT id, name, new_cards_per_day, created_at, updated_at
		FROM decks
		WHERE id = ?
	`

	var deck models.Deck
	if err := r.GetContext(ctx, &deck, query, deckID); err != nil {
		return nil, fmt.Errorf("get deck (deck_id: %s): %w", deckID, err)
	}

	return &deck, nil
}

func (r *SQLite) ListDecks(ctx context.Context) ([]*models.Deck, error) {
	query := `
		SELECT id, name, new_cards_per_day, created_at, updated_at
		FROM decks
		ORDER BY name ASC
	`

	var decks []*models.Deck
	if err := r.SelectContext(ctx, &decks, query); err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}

	return decks, nil
}

func (r *SQLite) DeleteDecks(ctx context.Context, deckIDs []string) error {
	if len(deckIDs) == 0 {
		return nil
	}

	query := r.psql.Delete("decks").Where(squirrel.Eq{"id": deckIDs})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (deck_count: %d): %w", len(deckIDs), err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete decks (deck_count: %d): %w", len(deckIDs), err)
	}
	return nil
}

func (r *SQLite) UpsertNote(ctx context.Context, note *models.Note) error {
	query := r.psql.Insert("notes").
		Columns("id", "deck_id", "front", "back", "created_at", "updated_at").
		Values(note.ID, note.DeckID, note.Front, note.Back, note.CreatedAt, note.UpdatedAt).
		Suffix("ON CONFLICT(id) DO UPDATE SET deck_id = excluded.deck_id, front = excluded.front, back = excluded.back, updated_at = excluded.updated_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (note_id: %s): %w", note.ID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert note (note_id: %s): %w", note.ID, err)
	}
	return nil
}

func (r *SQLite) ListNoteIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM notes ORDER BY id ASC`

	var noteIDs []string
	if err := r.SelectContext(ctx, &noteIDs, query); err != nil {
		return nil, fmt.Errorf("list note IDs: %w", err)
	}

	return noteIDs, nil
}

func (r *SQLite) DeleteNotes(ctx context.Context, noteIDs []string) error {
	if len(noteIDs) == 0 {
		return nil
	}

	query := r.psql.Delete("notes").Where(squirrel.Eq{"id": noteIDs})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (note_count: %d): %w", len(noteIDs), err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete notes (note_count: %d): %w", len(noteIDs), err)
	}
	return nil
}

// InsertCardIfAbsent inserts a card with its initial scheduling state and
// reports whether a row was created. Existing cards are left untouched:
// scheduling state is locally authoritative and sync must never reset it.
func (r *SQLite) InsertCardIfAbsent(ctx context.Context, card *models.Card) (bool, error) {
	query := r.psql.Insert("cards").
		Columns("id", "note_id", "deck_id", "variant", "queue", "step", "ease", "interval_days", "reps", "lapses", "due_at", "due_date", "created_at", "updated_at").
		Values(card.ID, card.NoteID, card.DeckID, card.Variant, card.Queue, card.Step, card.Ease, card.IntervalDays, card.Reps, card.Lapses, card.DueAt, card.DueDate, card.CreatedAt, card.UpdatedAt).
		Suffix("ON CONFLICT(id) DO NOTHING")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build SQL query (card_id: %s): %w", card.ID, err)
	}

	res, err := r.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("insert card (card_id: %s): %w", card.ID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected (card_id: %s): %w", card.ID, err)
	}
	return inserted > 0, nil
}

// UpdateCardIdentity updates only the server-authoritative identity columns.
func (r *SQLite) UpdateCardIdentity(ctx context.Context, cardID, noteID, deckID string, variant int) error {
	query := r.psql.Update("cards").
		Set("note_id", noteID).
		Set("deck_id", deckID).
		Set("variant", variant).
		Where("id = ?", cardID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (card_id: %s): %w", cardID, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update card identity (card_id: %s): %w", cardID, err)
	}
	return nil
}

func (r *SQLite) UpdateCardState(ctx context.Context, cardID string, state srs.CardState, updatedAt time.Time) error {
	var dueAt, dueDate *time.Time
	if !state.DueAt.IsZero() {
		dueAt = &state.DueAt
	}
	if !state.DueDate.IsZero() {
		dueDate = &state.DueDate
	}

	query := r.psql.Update("cards").
		Set("queue", state.Queue).
		Set("step", state.Step).
		Set("ease", state.Ease).
		Set("interval_days", state.IntervalDays).
		Set("reps", state.Reps).
		Set("lapses", state.Lapses).
		Set("due_at", dueAt).
		Set("due_date", dueDate).
		Set("updated_at", updatedAt).
		Where("id = ?", cardID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (card_id: %s): %w", cardID, err)
	}

	res, err := r.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update card state (card_id: %s): %w", cardID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected (card_id: %s): %w", cardID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update card state (card_id: %s): %w", cardID, ErrCardNotFound)
	}
	return nil
}

func (r *SQLite) GetCard(ctx context.Context, cardID string) (*models.Card, error) {
	query := `
		SELECT id, note_id, deck_id, variant, queue, step, ease, interval_days, reps, lapses, due_at, due_date, created_at, updated_at
		FROM cards
		WHERE id = ?
	`

	var card models.Card
	if err := r.GetContext(ctx, &card, query, cardID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get card (card_id: %s): %w", cardID, ErrCardNotFound)
		}
		return nil, fmt.Errorf("get card (card_id: %s): %w", cardID, err)
	}

	return &card, nil
}

func (r *SQLite) ListCards(ctx context.Context, scope models.Scope) ([]models.Card, error) {
	query := `
		SELECT id, note_id, deck_id, variant, queue, step, ease, interval_days, reps, lapses, due_at, due_date, created_at, updated_at
		FROM cards
	`
	var args []any
	if !scope.AllDecks() {
		query += ` WHERE deck_id = ?`
		args = append(args, scope.DeckID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var cards []models.Card
	if err := r.SelectContext(ctx, &cards, query, args...); err != nil {
		return nil, fmt.Errorf("list cards (deck_id: %q): %w", scope.DeckID, err)
	}

	return cards, nil
}

func (r *SQLite) ListCardIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM cards ORDER BY id ASC`

	var cardIDs []string
	if err := r.SelectContext(ctx, &cardIDs, query); err != nil {
		return nil, fmt.Errorf("list card IDs: %w", err)
	}

	return cardIDs, nil
}

func (r *SQLite) DeleteCards(ctx context.Context, cardIDs []string) error {
	if len(cardIDs) == 0 {
		return nil
	}

	query := r.psql.Delete("cards").Where(squirrel.Eq{"id": cardIDs})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (card_count: %d): %w", len(cardIDs), err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete cards (card_count: %d): %w", len(cardIDs), err)
	}
	return nil
}
