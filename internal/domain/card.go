package domain

import "time"

// Card represents a single front/back flashcard and its scheduling state.
type Card struct {
	ID          string     `json:"id" validate:"required"`
	Front       string     `json:"front" validate:"required"`
	Back        string     `json:"back" validate:"required"`
	Tags        []string   `json:"tags" validate:"unique,dive,tag"`
	Easiness    float64    `json:"easiness" validate:"gte=1.3,lte=3"`
	Interval    int        `json:"interval" validate:"gte=1"`
	Repetitions int        `json:"repetitions" validate:"gte=0"`
	NextReview  time.Time  `json:"nextReview" validate:"required"`
	LastReview  *time.Time `json:"lastReview,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" validate:"required"`
	Source      string     `json:"source,omitempty"`
}

// HasTag reports whether the card carries the given normalized tag.
func (c Card) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Quality is the user's rating of how well a card was recalled.
// 0: total failure
// 1: wrong, but recognised the answer
// 2: wrong, answer felt familiar
// 3: correct with effort
// 4: perfect recall
type Quality int

const (
	Blackout Quality = 0
	Wrong    Quality = 1
	Hard     Quality = 2
	Good     Quality = 3
	Perfect  Quality = 4
)

// Valid reports whether q is within the 0-4 rating scale.
func (q Quality) Valid() bool {
	return q >= Blackout && q <= Perfect
}

// Correct reports whether the rating counts as a successful recall.
func (q Quality) Correct() bool {
	return q >= Good
}
