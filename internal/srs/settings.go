package srs

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Settings holds the per-deck scheduling parameters. Ease values are decimal
// multipliers (2.5 means 250%); steps are minutes; intervals are whole days.
type Settings struct {
	LearningSteps          []int   `koanf:"learning_steps" validate:"required,min=1,dive,gt=0"`
	RelearningSteps        []int   `koanf:"relearning_steps" validate:"required,min=1,dive,gt=0"`
	GraduatingIntervalDays int     `koanf:"graduating_interval_days" validate:"gte=1"`
	EasyIntervalDays       int     `koanf:"easy_interval_days" validate:"gte=1"`
	StartingEase           float64 `koanf:"starting_ease" validate:"gt=1"`
	MinimumEase            float64 `koanf:"minimum_ease" validate:"gt=1"`
	MaximumEase            float64 `koanf:"maximum_ease" validate:"gtfield=MinimumEase"`
	EasyBonus              float64 `koanf:"easy_bonus" validate:"gte=1"`
	HardMultiplier         float64 `koanf:"hard_multiplier" validate:"gt=0,lt=2"`
	IntervalModifier       float64 `koanf:"interval_modifier" validate:"gt=0"`
	LapseEasePenalty       float64 `koanf:"lapse_ease_penalty" validate:"gte=0"`
	EasyGraduationBonus    float64 `koanf:"easy_graduation_bonus" validate:"gte=0"`
	NewCardsPerDay         int     `koanf:"new_cards_per_day" validate:"gte=0"`
}

func DefaultSettings() Settings {
	return Settings{
		LearningSteps:          []int{1, 10},
		RelearningSteps:        []int{10},
		GraduatingIntervalDays: 1,
		EasyIntervalDays:       4,
		StartingEase:           2.5,
		MinimumEase:            1.3,
		MaximumEase:            3.0,
		EasyBonus:              1.3,
		HardMultiplier:         1.2,
		IntervalModifier:       1.0,
		LapseEasePenalty:       0.2,
		EasyGraduationBonus:    0.15,
		NewCardsPerDay:         20,
	}
}

var validate = validator.New()

func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validate scheduler settings: %w", err)
	}
	return nil
}

func (s Settings) clampEase(ease float64) float64 {
	if ease < s.MinimumEase {
		return s.MinimumEase
	}
	if ease > s.MaximumEase {
		return s.MaximumEase
	}
	return ease
}
