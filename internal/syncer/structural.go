package syncer

import (
	"context"
	"time"

	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
	"github.com/yourusername/cardsync/pkg/utils"
	"go.uber.org/zap"
)

// fullSync downloads every deck with its notes and cards and replaces the
// local structural tables. Scheduling state of cards that already exist
// locally is preserved; cards and decks whose identity no longer exists
// remotely are deleted.
func (e *Engine) fullSync(ctx context.Context) error {
	var decks []RemoteDeck
	err := e.withRetry(ctx, "get decks", func(ctx context.Context) error {
		result, err := e.transport.GetDecks(ctx)
		if err != nil {
			return err
		}
		decks = result
		return nil
	})
	if err != nil {
		return err
	}

	remoteDeckIDs := make(map[string]bool, len(decks))
	remoteNoteIDs := make(map[string]bool)
	remoteCardIDs := make(map[string]bool)

	for _, deck := range decks {
		remoteDeckIDs[deck.ID] = true

		var bundle *DeckBundle
		err := e.withRetry(ctx, "get deck bundle", func(ctx context.Context) error {
			result, err := e.transport.GetDeckBundle(ctx, deck.ID)
			if err != nil {
				return err
			}
			bundle = result
			return nil
		})
		if err != nil {
			return err
		}

		for _, note := range bundle.Notes {
			remoteNoteIDs[note.ID] = true
		}
		for _, card := range bundle.Cards {
			remoteCardIDs[card.ID] = true
		}

		if err := e.applyDeckBundle(ctx, bundle); err != nil {
			return err
		}
	}

	if err := e.deleteMissing(ctx, remoteDeckIDs, remoteNoteIDs, remoteCardIDs); err != nil {
		return err
	}

	now := utils.NowUTC()
	cursor, err := e.repo.GetSyncCursor(ctx)
	if err != nil {
		return err
	}
	cursor.LastFullSyncAt = &now
	cursor.LastIncrementalSyncAt = &now
	if err := e.repo.SaveSyncCursor(ctx, cursor); err != nil {
		return err
	}

	zap.S().Info("full sync applied", zap.Int("decks", len(decks)), zap.Int("cards", len(remoteCardIDs)))
	return nil
}

func (e *Engine) applyDeckBundle(ctx context.Context, bundle *DeckBundle) error {
	now := utils.NowUTC()

	return e.repo.RunInTx(ctx, func(repo models.Repository) error {
		if err := repo.UpsertDeck(ctx, remoteDeckToModel(bundle.Deck, now)); err != nil {
			return err
		}

		for _, note := range bundle.Notes {
			if err := repo.UpsertNote(ctx, remoteNoteToModel(note, now)); err != nil {
				return err
			}
		}

		for _, card := range bundle.Cards {
			if err := upsertCardIdentity(ctx, repo, card, e.settings, now); err != nil {
				return err
			}
		}

		return nil
	})
}

// incrementalSync requests only changes since the structural cursor.
// Deletions apply first, then deck/note upserts, then cards — and existing
// cards only ever get identity updates.
func (e *Engine) incrementalSync(ctx context.Context, cursor *models.SyncCursor) error {
	since := time.Time{}
	if cursor.LastIncrementalSyncAt != nil {
		since = *cursor.LastIncrementalSyncAt
	}

	var changes *ChangesResponse
	err := e.withRetry(ctx, "get changes", func(ctx context.Context) error {
		result, err := e.transport.GetChanges(ctx, since)
		if err != nil {
			return err
		}
		changes = result
		return nil
	})
	if err != nil {
		return err
	}

	now := utils.NowUTC()
	err = e.repo.RunInTx(ctx, func(repo models.Repository) error {
		if err := repo.DeleteCards(ctx, changes.Deleted.CardIDs); err != nil {
			return err
		}
		if err := repo.DeleteNotes(ctx, changes.Deleted.NoteIDs); err != nil {
			return err
		}
		if err := repo.DeleteDecks(ctx, changes.Deleted.DeckIDs); err != nil {
			return err
		}

		for _, deck := range changes.Decks {
			if err := repo.UpsertDeck(ctx, remoteDeckToModel(deck, now)); err != nil {
				return err
			}
		}
		for _, note := range changes.Notes {
			if err := repo.UpsertNote(ctx, remoteNoteToModel(note, now)); err != nil {
				return err
			}
		}
		for _, card := range changes.Cards {
			if err := upsertCardIdentity(ctx, repo, card, e.settings, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	serverTime := changes.ServerTime
	if serverTime.IsZero() {
		serverTime = now
	}
	cursor.LastIncrementalSyncAt = &serverTime
	if err := e.repo.SaveSyncCursor(ctx, cursor); err != nil {
		return err
	}

	zap.S().Info("incremental sync applied",
		zap.Int("decks", len(changes.Decks)),
		zap.Int("notes", len(changes.Notes)),
		zap.Int("cards", len(changes.Cards)),
		zap.Int("deleted_cards", len(changes.Deleted.CardIDs)))
	return nil
}

// upsertCardIdentity inserts a brand-new card with fresh scheduling state,
// or updates only the identity columns of an existing one. This is the
// asymmetric merge rule: identity is server truth, scheduling is local truth.
func upsertCardIdentity(ctx context.Context, repo models.Repository, card RemoteCard, settings srs.Settings, now time.Time) error {
	local := &models.Card{
		ID:        card.ID,
		NoteID:    card.NoteID,
		DeckID:    card.DeckID,
		Variant:   card.Variant,
		CreatedAt: now,
	}
	local.SetState(srs.NewCardState(settings))

	inserted, err := repo.InsertCardIfAbsent(ctx, local)
	if err != nil {
		return err
	}
	if inserted {
		return nil
	}

	return repo.UpdateCardIdentity(ctx, card.ID, card.NoteID, card.DeckID, card.Variant)
}

func (e *Engine) deleteMissing(ctx context.Context, remoteDeckIDs, remoteNoteIDs, remoteCardIDs map[string]bool) error {
	localDecks, err := e.repo.ListDecks(ctx)
	if err != nil {
		return err
	}

	var staleDecks []string
	for _, deck := range localDecks {
		if !remoteDeckIDs[deck.ID] {
			staleDecks = append(staleDecks, deck.ID)
		}
	}
	if err := e.repo.DeleteDecks(ctx, staleDecks); err != nil {
		return err
	}

	// Deck deletion cascades, but a note removed from a surviving deck has to
	// go explicitly.
	localNoteIDs, err := e.repo.ListNoteIDs(ctx)
	if err != nil {
		return err
	}

	var staleNotes []string
	for _, noteID := range localNoteIDs {
		if !remoteNoteIDs[noteID] {
			staleNotes = append(staleNotes, noteID)
		}
	}
	if err := e.repo.DeleteNotes(ctx, staleNotes); err != nil {
		return err
	}

	localCardIDs, err := e.repo.ListCardIDs(ctx)
	if err != nil {
		return err
	}

	var staleCards []string
	for _, cardID := range localCardIDs {
		if !remoteCardIDs[cardID] {
			staleCards = append(staleCards, cardID)
		}
	}
	if err := e.repo.DeleteCards(ctx, staleCards); err != nil {
		return err
	}

	if len(staleDecks) > 0 || len(staleNotes) > 0 || len(staleCards) > 0 {
		zap.S().Info("removed stale local structure",
			zap.Int("decks", len(staleDecks)), zap.Int("notes", len(staleNotes)), zap.Int("cards", len(staleCards)))
	}
	return nil
}

func remoteDeckToModel(deck RemoteDeck, now time.Time) *models.Deck {
	return &models.Deck{
		ID:             deck.ID,
		Name:           deck.Name,
		NewCardsPerDay: deck.NewCardsPerDay,
		CreatedAt:      now,
		UpdatedAt:      &now,
	}
}

func remoteNoteToModel(note RemoteNote, now time.Time) *models.Note {
	return &models.Note{
		ID:        note.ID,
		DeckID:    note.DeckID,
		Front:     note.Front,
		Back:      note.Back,
		CreatedAt: now,
		UpdatedAt: &now,
	}
}
