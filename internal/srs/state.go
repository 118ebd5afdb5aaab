package srs

import "time"

// CardState is the computed scheduling state of a card. It is a pure value:
// always derivable by folding the card's review events through Apply.
//
// DueAt is set for timer-driven queues (new/learning/relearning), DueDate for
// the day-granular review queue; the unused one is the zero time.
type CardState struct {
	Queue        Queue     `json:"queue"`
	Step         int       `json:"step"`
	Ease         float64   `json:"ease"`
	IntervalDays int       `json:"interval_days"`
	Reps         int       `json:"reps"`
	Lapses       int       `json:"lapses"`
	DueAt        time.Time `json:"due_at"`
	DueDate      time.Time `json:"due_date"`
}

// NewCardState is the fixed brand-new card state every reconstruction
// starts from when no checkpoint applies.
func NewCardState(settings Settings) CardState {
	return CardState{
		Queue: QueueNew,
		Ease:  settings.StartingEase,
	}
}
