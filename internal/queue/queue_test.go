package queue

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/srs"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newCard(id, noteID string, createdAt time.Time) models.Card {
	return models.Card{ID: id, NoteID: noteID, Queue: srs.QueueNew, Ease: 2.5, CreatedAt: createdAt}
}

func learningCard(id string, dueAt time.Time) models.Card {
	return models.Card{ID: id, NoteID: "note-" + id, Queue: srs.QueueLearning, Ease: 2.5, DueAt: &dueAt}
}

func reviewCard(id string, dueDate time.Time) models.Card {
	return models.Card{ID: id, NoteID: "note-" + id, Queue: srs.QueueReview, Ease: 2.5, IntervalDays: 3, DueDate: &dueDate}
}

func TestAllowance(t *testing.T) {
	tests := []struct {
		name                  string
		limit, bonus, studied int
		want                  int
	}{
		{"fresh day", 20, 0, 0, 20},
		{"partially used", 20, 0, 15, 5},
		{"exactly exhausted", 20, 0, 20, 0},
		{"over limit clamps to zero", 20, 0, 25, 0},
		{"bonus extends", 20, 5, 20, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowance(tt.limit, tt.bonus, tt.studied))
		})
	}
}

func TestBuildSnapshot_CapsNewByAllowance(t *testing.T) {
	cards := []models.Card{
		newCard("c", "n3", testNow.Add(-1*time.Hour)),
		newCard("a", "n1", testNow.Add(-3*time.Hour)),
		newCard("b", "n2", testNow.Add(-2*time.Hour)),
	}

	snapshot := BuildSnapshot(cards, testNow, 2)

	require.Len(t, snapshot.New, 2)
	// Oldest first.
	assert.Equal(t, "a", snapshot.New[0].ID)
	assert.Equal(t, "b", snapshot.New[1].ID)
	assert.Equal(t, 2, snapshot.Counts.New)
}

func TestBuildSnapshot_ZeroAllowanceExcludesAllNew(t *testing.T) {
	cards := []models.Card{newCard("a", "n1", testNow)}

	snapshot := BuildSnapshot(cards, testNow, 0)

	assert.Empty(t, snapshot.New)
	assert.Equal(t, 0, snapshot.Counts.New)
}

func TestBuildSnapshot_NegativeAllowanceTreatedAsZero(t *testing.T) {
	cards := []models.Card{
		newCard("a", "n1", testNow),
		newCard("b", "n2", testNow),
	}

	// Callers can pass a negative remainder when the studied count runs
	// ahead of the limit mid-day.
	snapshot := BuildSnapshot(cards, testNow, -3)

	assert.Empty(t, snapshot.New)
	assert.Equal(t, 0, snapshot.Counts.New)
}

func TestBuildSnapshot_ReviewDueWithinToday(t *testing.T) {
	cards := []models.Card{
		reviewCard("overdue", testNow.AddDate(0, 0, -2)),
		reviewCard("today", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		reviewCard("tomorrow", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)),
	}

	snapshot := BuildSnapshot(cards, testNow, 0)

	require.Len(t, snapshot.Review, 2)
	assert.Equal(t, "overdue", snapshot.Review[0].ID)
	assert.Equal(t, "today", snapshot.Review[1].ID)
}

func TestBuildSnapshot_LearningCountsOnlyDue(t *testing.T) {
	cards := []models.Card{
		learningCard("due", testNow.Add(-time.Minute)),
		learningCard("later", testNow.Add(9*time.Minute)),
	}

	snapshot := BuildSnapshot(cards, testNow, 0)

	// Both kept for the fallback, only one counted as due.
	assert.Len(t, snapshot.Learning, 2)
	assert.Equal(t, 1, snapshot.Counts.Learning)
	assert.Equal(t, "due", snapshot.Learning[0].ID)
}

func TestSelectNext_DueLearningWinsOverEverything(t *testing.T) {
	snapshot := BuildSnapshot([]models.Card{
		newCard("new", "n1", testNow),
		reviewCard("rev", testNow.AddDate(0, 0, -1)),
		learningCard("learn", testNow.Add(-time.Minute)),
	}, testNow, 10)

	rng := rand.New(rand.NewSource(1))
	card := SelectNext(snapshot, Session{}, rng)

	require.NotNil(t, card)
	assert.Equal(t, "learn", card.ID)
}

func TestSelectNext_KeepsCurrentCard(t *testing.T) {
	snapshot := BuildSnapshot([]models.Card{
		newCard("new-1", "n1", testNow),
		reviewCard("rev-1", testNow.AddDate(0, 0, -1)),
	}, testNow, 10)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		card := SelectNext(snapshot, Session{CurrentCardID: "rev-1"}, rng)
		require.NotNil(t, card)
		assert.Equal(t, "rev-1", card.ID, "displayed card must not flicker away")
	}
}

func TestSelectNext_ExcludesRecentNotes(t *testing.T) {
	snapshot := BuildSnapshot([]models.Card{
		newCard("new-1", "note-recent", testNow),
		reviewCard("rev-1", testNow.AddDate(0, 0, -1)),
	}, testNow, 10)

	session := Session{RecentNoteIDs: []string{"note-recent"}}
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		card := SelectNext(snapshot, session, rng)
		require.NotNil(t, card)
		assert.Equal(t, "rev-1", card.ID)
	}
}

func TestSelectNext_FallsBackToSoonestLearning(t *testing.T) {
	snapshot := BuildSnapshot([]models.Card{
		learningCard("far", testNow.Add(30*time.Minute)),
		learningCard("soon", testNow.Add(5*time.Minute)),
	}, testNow, 10)

	rng := rand.New(rand.NewSource(1))
	card := SelectNext(snapshot, Session{}, rng)

	require.NotNil(t, card)
	assert.Equal(t, "soon", card.ID)
}

func TestSelectNext_ExhaustedReturnsNil(t *testing.T) {
	snapshot := BuildSnapshot(nil, testNow, 10)

	rng := rand.New(rand.NewSource(1))
	assert.Nil(t, SelectNext(snapshot, Session{}, rng))
}

func TestSelectNext_MixesNewAndReview(t *testing.T) {
	snapshot := BuildSnapshot([]models.Card{
		newCard("new-1", "n1", testNow),
		reviewCard("rev-1", testNow.AddDate(0, 0, -1)),
	}, testNow, 10)

	rng := rand.New(rand.NewSource(42))
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		card := SelectNext(snapshot, Session{}, rng)
		require.NotNil(t, card)
		seen[card.ID] = true
	}

	assert.True(t, seen["new-1"], "new cards should appear in the mix")
	assert.True(t, seen["rev-1"], "review cards should appear in the mix")
}
