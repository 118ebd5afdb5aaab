package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yourusername/cardsync/internal/models"
)

func (r *SQLite) GetSyncCursor(ctx context.Context) (*models.SyncCursor, error) {
	query := `
		SELECT last_full_sync_at, last_incremental_sync_at, last_event_sync_at
		FROM sync_cursors
		WHERE id = 1
	`

	var cursor models.SyncCursor
	if err := r.GetContext(ctx, &cursor, query); err != nil {
		return nil, fmt.Errorf("get sync cursor: %w", err)
	}

	return &cursor, nil
}

func (r *SQLite) SaveSyncCursor(ctx context.Context, cursor *models.SyncCursor) error {
	query := r.psql.Update("sync_cursors").
		Set("last_full_sync_at", cursor.LastFullSyncAt).
		Set("last_incremental_sync_at", cursor.LastIncrementalSyncAt).
		Set("last_event_sync_at", cursor.LastEventSyncAt).
		Where("id = ?", 1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query: %w", err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("save sync cursor: %w", err)
	}
	return nil
}

func (r *SQLite) GetNewStudied(ctx context.Context, deckID, day string) (int, error) {
	query := `SELECT studied FROM daily_new_counts WHERE deck_id = ? AND day = ?`

	var studied int
	err := r.QueryRowxContext(ctx, query, deckID, day).Scan(&studied)
	if err != nil {
		// No row yet for this day means nothing studied.
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get new studied (deck_id: %s, day: %s): %w", deckID, day, err)
	}
	return studied, nil
}

func (r *SQLite) IncrementNewStudied(ctx context.Context, deckID, day string) error {
	query := r.psql.Insert("daily_new_counts").
		Columns("deck_id", "day", "studied").
		Values(deckID, day, 1).
		Suffix("ON CONFLICT(deck_id, day) DO UPDATE SET studied = studied + 1")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (deck_id: %s, day: %s): %w", deckID, day, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("increment new studied (deck_id: %s, day: %s): %w", deckID, day, err)
	}
	return nil
}

func (r *SQLite) SetNewStudied(ctx context.Context, deckID, day string, count int) error {
	query := r.psql.Insert("daily_new_counts").
		Columns("deck_id", "day", "studied").
		Values(deckID, day, count).
		Suffix("ON CONFLICT(deck_id, day) DO UPDATE SET studied = excluded.studied")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (deck_id: %s, day: %s): %w", deckID, day, err)
	}

	if _, err = r.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("set new studied (deck_id: %s, day: %s, count: %d): %w", deckID, day, count, err)
	}
	return nil
}

// WipeAll clears every local table including unsynced events. Only the
// destructive fresh-sync path calls this.
func (r *SQLite) WipeAll(ctx context.Context) error {
	statements := []string{
		`DELETE FROM daily_new_counts`,
		`DELETE FROM checkpoints`,
		`DELETE FROM review_events`,
		`DELETE FROM cards`,
		`DELETE FROM notes`,
		`DELETE FROM decks`,
		`UPDATE sync_cursors SET last_full_sync_at = NULL, last_incremental_sync_at = NULL, last_event_sync_at = NULL WHERE id = 1`,
	}

	for _, statement := range statements {
		if _, err := r.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("wipe local data: %w", err)
		}
	}
	return nil
}
