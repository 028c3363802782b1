package classify

import (
	"fmt"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Difficulty buckets a card by how established its schedule is.
type Difficulty string

const (
	New      Difficulty = "new"
	Learning Difficulty = "learning"
	Young    Difficulty = "young"
	Mature   Difficulty = "mature"
)

// Thresholds are the inclusive upper interval bounds, in days, of each bucket.
// Anything above YoungMax is mature.
type Thresholds struct {
	NewMax      int
	LearningMax int
	YoungMax    int
}

// DefaultThresholds: new <= 1, learning 2-7, young 8-30, mature > 30.
func DefaultThresholds() Thresholds {
	return Thresholds{NewMax: 1, LearningMax: 7, YoungMax: 30}
}

// Validate checks that the bounds are strictly increasing.
func (t Thresholds) Validate() error {
	if t.NewMax < 0 || t.LearningMax <= t.NewMax || t.YoungMax <= t.LearningMax {
		return fmt.Errorf("classify: thresholds must increase, got new<=%d learning<=%d young<=%d",
			t.NewMax, t.LearningMax, t.YoungMax)
	}
	return nil
}

// Classify maps a card to exactly one bucket by its interval.
func (t Thresholds) Classify(card domain.Card) Difficulty {
	switch {
	case card.Interval <= t.NewMax:
		return New
	case card.Interval <= t.LearningMax:
		return Learning
	case card.Interval <= t.YoungMax:
		return Young
	default:
		return Mature
	}
}

// IsDue reports whether the card's next review falls on or before the
// reference date. Only the calendar day is compared.
func IsDue(card domain.Card, ref time.Time) bool {
	return domain.CalendarDays(card.NextReview.In(ref.Location()), ref) >= 0
}

// Due returns the cards that are due on the reference date, in input order.
func Due(cards []domain.Card, ref time.Time) []domain.Card {
	var due []domain.Card
	for _, c := range cards {
		if IsDue(c, ref) {
			due = append(due, c)
		}
	}
	return due
}

// Filter narrows a card set for a custom session.
// Zero-value fields do not filter.
type Filter struct {
	Tags       []string
	Difficulty Difficulty
	DueOnly    bool
	Limit      int
}

// Apply returns the cards matching every set criterion.
// A card matches Tags when it carries at least one of them.
func (f Filter) Apply(cards []domain.Card, t Thresholds, ref time.Time) []domain.Card {
	var out []domain.Card
	for _, c := range cards {
		if f.DueOnly && !IsDue(c, ref) {
			continue
		}
		if f.Difficulty != "" && t.Classify(c) != f.Difficulty {
			continue
		}
		if len(f.Tags) > 0 && !hasAnyTag(c, f.Tags) {
			continue
		}
		out = append(out, c)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func hasAnyTag(c domain.Card, tags []string) bool {
	for _, tag := range tags {
		if c.HasTag(tag) {
			return true
		}
	}
	return false
}
