package srs

import (
	"fmt"
	"math"
	"time"

	"github.com/yourusername/cardsync/pkg/utils"
)

// Apply advances a card's scheduling state by one review. It is pure and
// deterministic: same state, rating, settings and now always produce the
// same result. The caller owns persistence; Apply never touches I/O.
func Apply(state CardState, rating Rating, settings Settings, now time.Time) (CardState, error) {
	if !rating.IsValid() {
		return CardState{}, fmt.Errorf("apply review (rating: %d): %w", int(rating), ErrInvalidRating)
	}
	if !state.Queue.IsValid() {
		return CardState{}, fmt.Errorf("apply review (queue: %d): %w", int(state.Queue), ErrInvalidQueue)
	}

	next := state
	next.Reps++

	switch state.Queue {
	case QueueNew, QueueLearning:
		applyLearning(&next, rating, settings.LearningSteps, settings, now)
	case QueueRelearning:
		applyRelearning(&next, rating, settings, now)
	case QueueReview:
		applyReview(&next, rating, settings, now)
	}

	return next, nil
}

// Outcome is what one rating would do to a card, for preview display.
type Outcome struct {
	Queue        Queue
	IntervalDays int
	Due          time.Time
}

// Preview returns the result each rating would produce. It runs the same
// Apply code path on a copy, so the preview can never diverge from the
// committed schedule.
func Preview(state CardState, settings Settings, now time.Time) (map[Rating]Outcome, error) {
	outcomes := make(map[Rating]Outcome, 4)
	for _, rating := range Ratings() {
		next, err := Apply(state, rating, settings, now)
		if err != nil {
			return nil, fmt.Errorf("preview (rating: %s): %w", rating, err)
		}
		due := next.DueDate
		if next.Queue.Stepped() {
			due = next.DueAt
		}
		outcomes[rating] = Outcome{
			Queue:        next.Queue,
			IntervalDays: next.IntervalDays,
			Due:          due,
		}
	}
	return outcomes, nil
}

func applyLearning(next *CardState, rating Rating, steps []int, settings Settings, now time.Time) {
	step := next.Step
	if step >= len(steps) {
		step = len(steps) - 1
	}

	switch rating {
	case Again:
		next.Queue = QueueLearning
		next.Step = 0
		setStepDue(next, now, steps[0])

	case Hard:
		next.Queue = QueueLearning
		next.Step = step
		delay := steps[step]
		if step+1 < len(steps) {
			delay = (steps[step] + steps[step+1]) / 2
		}
		setStepDue(next, now, delay)

	case Good:
		if step+1 >= len(steps) {
			graduate(next, settings.GraduatingIntervalDays, now)
			return
		}
		next.Queue = QueueLearning
		next.Step = step + 1
		setStepDue(next, now, steps[step+1])

	case Easy:
		next.Ease = settings.clampEase(next.Ease + settings.EasyGraduationBonus)
		graduate(next, settings.EasyIntervalDays, now)
	}
}

func applyRelearning(next *CardState, rating Rating, settings Settings, now time.Time) {
	steps := settings.RelearningSteps
	step := next.Step
	if step >= len(steps) {
		step = len(steps) - 1
	}

	switch rating {
	case Again:
		next.Step = 0
		setStepDue(next, now, steps[0])

	case Hard:
		next.Step = step
		setStepDue(next, now, steps[step])

	case Good, Easy:
		if step+1 >= len(steps) {
			// Graduate back at the interval held before the lapse.
			graduate(next, next.IntervalDays, now)
			return
		}
		next.Step = step + 1
		setStepDue(next, now, steps[step+1])
	}
}

func applyReview(next *CardState, rating Rating, settings Settings, now time.Time) {
	if rating == Again {
		next.Ease = settings.clampEase(next.Ease - settings.LapseEasePenalty)
		next.Lapses++
		next.Queue = QueueRelearning
		next.Step = 0
		setStepDue(next, now, settings.RelearningSteps[0])
		return
	}

	hardIvl, goodIvl, easyIvl := ReviewIntervals(*next, settings)

	switch rating {
	case Hard:
		next.Ease = settings.clampEase(next.Ease - 0.15)
		next.IntervalDays = hardIvl
	case Good:
		next.IntervalDays = goodIvl
	case Easy:
		next.Ease = settings.clampEase(next.Ease + 0.15)
		next.IntervalDays = easyIvl
	}

	next.DueAt = time.Time{}
	next.DueDate = utils.StartOfDay(now).AddDate(0, 0, next.IntervalDays)
}

// ReviewIntervals computes the three success intervals for a review-queue
// card in one place. Hard < Good < Easy is enforced strictly even after
// rounding: a tier that collapses onto the one below is bumped to one day
// above it.
func ReviewIntervals(state CardState, settings Settings) (hard, good, easy int) {
	hard = scaleInterval(float64(state.IntervalDays)*settings.HardMultiplier, settings)
	good = scaleInterval(float64(state.IntervalDays)*state.Ease, settings)
	if good <= hard {
		good = hard + 1
	}
	easy = scaleInterval(float64(state.IntervalDays)*state.Ease*settings.EasyBonus, settings)
	if easy <= good {
		easy = good + 1
	}
	return hard, good, easy
}

func scaleInterval(days float64, settings Settings) int {
	scaled := int(math.Round(days * settings.IntervalModifier))
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}

func graduate(next *CardState, intervalDays int, now time.Time) {
	if intervalDays < 1 {
		intervalDays = 1
	}
	next.Queue = QueueReview
	next.Step = 0
	next.IntervalDays = intervalDays
	next.DueAt = time.Time{}
	next.DueDate = utils.StartOfDay(now).AddDate(0, 0, intervalDays)
}

func setStepDue(next *CardState, now time.Time, minutes int) {
	next.DueAt = now.Add(time.Duration(minutes) * time.Minute)
	next.DueDate = time.Time{}
}
