package srs

import "errors"

var (
	ErrInvalidRating = errors.New("invalid rating")
	ErrInvalidQueue  = errors.New("invalid queue")
)
