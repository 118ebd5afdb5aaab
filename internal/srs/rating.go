package srs

import "fmt"

// Rating is the user's assessment of recall quality, ordered worst to best.
type Rating int

const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

// Ratings lists all valid ratings in ascending order.
func Ratings() []Rating {
	return []Rating{Again, Hard, Good, Easy}
}
