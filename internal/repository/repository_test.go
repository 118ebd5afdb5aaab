package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SQLite {
	t.Helper()

	repo, err := NewDB(filepath.Join(t.TempDir(), "cardsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Up())
	return repo
}

func seedCard(t *testing.T, repo *SQLite, cardID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, repo.UpsertDeck(ctx, &models.Deck{
		ID: "deck-1", Name: "Spanish", NewCardsPerDay: 20, CreatedAt: testNow,
	}))
	require.NoError(t, repo.UpsertNote(ctx, &models.Note{
		ID: "note-" + cardID, DeckID: "deck-1", Front: "hola", Back: "hello", CreatedAt: testNow,
	}))

	card := &models.Card{ID: cardID, NoteID: "note-" + cardID, DeckID: "deck-1", CreatedAt: testNow}
	card.SetState(srs.NewCardState(srs.DefaultSettings()))
	inserted, err := repo.InsertCardIfAbsent(ctx, card)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestAppendEvent_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCard(t, repo, "card-1")

	event := &models.ReviewEvent{
		ID: "evt-1", CardID: "card-1", Rating: srs.Good, ReviewedAt: testNow, CreatedAt: testNow,
	}

	inserted, err := repo.AppendEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.AppendEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, inserted, "replaying the same event id must be a no-op")

	count, err := repo.CountEventsForCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsertCardIfAbsent_PreservesScheduling(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCard(t, repo, "card-1")

	reviewed := srs.CardState{
		Queue: srs.QueueReview, Ease: 2.35, IntervalDays: 12, Reps: 4, Lapses: 1,
		DueDate: testNow.AddDate(0, 0, 12),
	}
	require.NoError(t, repo.UpdateCardState(ctx, "card-1", reviewed, testNow))

	// A second structural delivery of the same card must not reset anything.
	duplicate := &models.Card{ID: "card-1", NoteID: "note-card-1", DeckID: "deck-1", CreatedAt: testNow}
	duplicate.SetState(srs.NewCardState(srs.DefaultSettings()))
	inserted, err := repo.InsertCardIfAbsent(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, repo.UpdateCardIdentity(ctx, "card-1", "note-card-1", "deck-1", 2))

	card, err := repo.GetCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, 2, card.Variant)

	state := card.State()
	assert.Equal(t, srs.QueueReview, state.Queue)
	assert.Equal(t, 12, state.IntervalDays)
	assert.Equal(t, 4, state.Reps)
	assert.Equal(t, 1, state.Lapses)
	assert.InDelta(t, 2.35, state.Ease, 1e-9)
	assert.True(t, state.DueDate.Equal(reviewed.DueDate))
}

func TestUpdateCardState_MissingCard(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.UpdateCardState(context.Background(), "ghost", srs.CardState{Queue: srs.QueueNew, Ease: 2.5}, testNow)
	require.ErrorIs(t, err, ErrCardNotFound)
}

func TestGetCard_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetCard(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrCardNotFound)
}

func TestUnsyncedEvents_OldestFirstAndMarking(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCard(t, repo, "card-1")

	for i, id := range []string{"evt-b", "evt-a", "evt-c"} {
		_, err := repo.AppendEvent(ctx, &models.ReviewEvent{
			ID: id, CardID: "card-1", Rating: srs.Good,
			ReviewedAt: testNow.Add(time.Duration(i) * time.Minute), CreatedAt: testNow,
		})
		require.NoError(t, err)
	}

	events, err := repo.UnsyncedEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-b", events[0].ID)
	assert.Equal(t, "evt-a", events[1].ID)

	require.NoError(t, repo.MarkEventsSynced(ctx, []string{"evt-b", "evt-a"}))

	pending, err := repo.CountUnsyncedEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestCountCardsFirstReviewedBetween(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCard(t, repo, "card-1")
	seedCard(t, repo, "card-2")

	yesterday := testNow.AddDate(0, 0, -1)

	// card-1 first reviewed yesterday, again today: not new today.
	_, err := repo.AppendEvent(ctx, &models.ReviewEvent{
		ID: "evt-1", CardID: "card-1", Rating: srs.Good, ReviewedAt: yesterday, CreatedAt: yesterday,
	})
	require.NoError(t, err)
	_, err = repo.AppendEvent(ctx, &models.ReviewEvent{
		ID: "evt-2", CardID: "card-1", Rating: srs.Good, ReviewedAt: testNow, CreatedAt: testNow,
	})
	require.NoError(t, err)

	// card-2 first reviewed today.
	_, err = repo.AppendEvent(ctx, &models.ReviewEvent{
		ID: "evt-3", CardID: "card-2", Rating: srs.Good, ReviewedAt: testNow, CreatedAt: testNow,
	})
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	count, err := repo.CountCardsFirstReviewedBetween(ctx, "deck-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.CountCardsFirstReviewedBetween(ctx, "", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.CountCardsFirstReviewedBetween(ctx, "other-deck", from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCheckpointRoundtrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCard(t, repo, "card-1")

	missing, err := repo.GetCheckpoint(ctx, "card-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	checkpoint := &models.Checkpoint{
		CardID:      "card-1",
		EventCount:  10,
		PrunedCount: 3,
		LastEventID: "evt-010",
		State:       srs.CardState{Queue: srs.QueueReview, Ease: 2.35, IntervalDays: 12, Reps: 10},
		UpdatedAt:   testNow,
	}
	require.NoError(t, repo.UpsertCheckpoint(ctx, checkpoint))

	got, err := repo.GetCheckpoint(ctx, "card-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10, got.EventCount)
	assert.Equal(t, 3, got.PrunedCount)
	assert.Equal(t, 7, got.StoredPrefix())
	assert.Equal(t, "evt-010", got.LastEventID)
	assert.Equal(t, checkpoint.State, got.State)

	// Upsert replaces, never duplicates.
	checkpoint.EventCount = 20
	checkpoint.LastEventID = "evt-020"
	require.NoError(t, repo.UpsertCheckpoint(ctx, checkpoint))
	got, err = repo.GetCheckpoint(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.EventCount)
	assert.Equal(t, "evt-020", got.LastEventID)

	require.NoError(t, repo.DeleteCheckpoint(ctx, "card-1"))
	got, err = repo.GetCheckpoint(ctx, "card-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSyncCursorRoundtrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cursor, err := repo.GetSyncCursor(ctx)
	require.NoError(t, err)
	assert.Nil(t, cursor.LastFullSyncAt)
	assert.Nil(t, cursor.LastEventSyncAt)

	cursor.LastFullSyncAt = &testNow
	cursor.LastEventSyncAt = &testNow
	require.NoError(t, repo.SaveSyncCursor(ctx, cursor))

	got, err := repo.GetSyncCursor(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.LastFullSyncAt)
	assert.True(t, got.LastFullSyncAt.Equal(testNow))
	assert.Nil(t, got.LastIncrementalSyncAt)
}

func TestNewStudiedCounters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	count, err := repo.GetNewStudied(ctx, "deck-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, repo.IncrementNewStudied(ctx, "deck-1", "2026-03-01"))
	require.NoError(t, repo.IncrementNewStudied(ctx, "deck-1", "2026-03-01"))

	count, err = repo.GetNewStudied(ctx, "deck-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, repo.SetNewStudied(ctx, "deck-1", "2026-03-01", 7))
	count, err = repo.GetNewStudied(ctx, "deck-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	// Different day key is independent.
	count, err = repo.GetNewStudied(ctx, "deck-1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGetNewStudied_PropagatesQueryErrors(t *testing.T) {
	repo := newTestRepo(t)

	// Only a missing row may read as zero; real failures must surface.
	require.NoError(t, repo.Close())

	_, err := repo.GetNewStudied(context.Background(), "deck-1", "2026-03-01")
	require.Error(t, err)
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCard(t, repo, "card-1")

	boom := errors.New("boom")
	err := repo.RunInTx(ctx, func(txRepo models.Repository) error {
		if _, err := txRepo.AppendEvent(ctx, &models.ReviewEvent{
			ID: "evt-1", CardID: "card-1", Rating: srs.Good, ReviewedAt: testNow, CreatedAt: testNow,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	count, err := repo.CountEventsForCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDeleteDecks_CascadesToEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCard(t, repo, "card-1")

	_, err := repo.AppendEvent(ctx, &models.ReviewEvent{
		ID: "evt-1", CardID: "card-1", Rating: srs.Good, ReviewedAt: testNow, CreatedAt: testNow,
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteDecks(ctx, []string{"deck-1"}))

	_, err = repo.GetCard(ctx, "card-1")
	require.ErrorIs(t, err, ErrCardNotFound)

	count, err := repo.CountEventsForCard(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestWipeAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCard(t, repo, "card-1")

	cursor, err := repo.GetSyncCursor(ctx)
	require.NoError(t, err)
	cursor.LastFullSyncAt = &testNow
	require.NoError(t, repo.SaveSyncCursor(ctx, cursor))

	require.NoError(t, repo.WipeAll(ctx))

	ids, err := repo.ListCardIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	cursor, err = repo.GetSyncCursor(ctx)
	require.NoError(t, err)
	assert.Nil(t, cursor.LastFullSyncAt)
}
