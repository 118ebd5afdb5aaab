package srs

import "fmt"

// Queue is the coarse scheduling state of a card.
type Queue int

const (
	QueueNew Queue = iota
	QueueLearning
	QueueReview
	QueueRelearning
)

var queueNames = [...]string{
	QueueNew:        "new",
	QueueLearning:   "learning",
	QueueReview:     "review",
	QueueRelearning: "relearning",
}

func (q Queue) String() string {
	if q.IsValid() {
		return queueNames[q]
	}
	return fmt.Sprintf("Queue(%d)", int(q))
}

func (q Queue) IsValid() bool {
	return q >= QueueNew && q <= QueueRelearning
}

// Stepped reports whether the queue is driven by learning-step timers.
func (q Queue) Stepped() bool {
	return q == QueueNew || q == QueueLearning || q == QueueRelearning
}
