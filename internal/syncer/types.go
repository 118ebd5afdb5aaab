package syncer

import (
	"context"
	"io"
	"time"
)

// Wire types for the remote flashcard service. The server owns deck, note
// and card identity; it never ships scheduling state.

type RemoteDeck struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NewCardsPerDay int    `json:"new_cards_per_day"`
}

type RemoteNote struct {
	ID     string `json:"id"`
	DeckID string `json:"deck_id"`
	Front  string `json:"front"`
	Back   string `json:"back"`
}

type RemoteCard struct {
	ID      string `json:"id"`
	NoteID  string `json:"note_id"`
	DeckID  string `json:"deck_id"`
	Variant int    `json:"variant"`
}

type DeckBundle struct {
	Deck  RemoteDeck   `json:"deck"`
	Notes []RemoteNote `json:"notes"`
	Cards []RemoteCard `json:"cards"`
}

type DeletedIDs struct {
	DeckIDs []string `json:"deck_ids"`
	NoteIDs []string `json:"note_ids"`
	CardIDs []string `json:"card_ids"`
}

type ChangesResponse struct {
	Decks      []RemoteDeck `json:"decks"`
	Notes      []RemoteNote `json:"notes"`
	Cards      []RemoteCard `json:"cards"`
	Deleted    DeletedIDs   `json:"deleted"`
	ServerTime time.Time    `json:"server_time"`
}

type RemoteEvent struct {
	ID          string    `json:"id"`
	CardID      string    `json:"card_id"`
	Rating      int       `json:"rating"`
	ReviewedAt  time.Time `json:"reviewed_at"`
	TimeSpentMS *int64    `json:"time_spent_ms,omitempty"`
	Answer      *string   `json:"answer,omitempty"`
}

// PushResult reports server-side dedup by event id. Created and skipped are
// both success: either way the event is durably on the server.
type PushResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type PullPage struct {
	Events     []RemoteEvent `json:"events"`
	HasMore    bool          `json:"has_more"`
	ServerTime time.Time     `json:"server_time"`
}

// Transport is the narrow contract against the remote service. The HTTP
// implementation lives in Client; tests substitute a fake.
type Transport interface {
	GetDecks(ctx context.Context) ([]RemoteDeck, error)
	GetDeckBundle(ctx context.Context, deckID string) (*DeckBundle, error)
	GetChanges(ctx context.Context, since time.Time) (*ChangesResponse, error)
	PushReviews(ctx context.Context, events []RemoteEvent) (*PushResult, error)
	PullReviews(ctx context.Context, since time.Time) (*PullPage, error)
	UploadRecording(ctx context.Context, reviewID string, recording io.Reader) error
}
