package sm2

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Params holds the easiness bounds for the SM-2 scheduler.
type Params struct {
	DefaultEasiness float64 // easiness given to new cards
	MinEasiness     float64 // lower clamp applied after every review
	MaxEasiness     float64 // upper clamp applied after every review
}

// DefaultParams provides the classic SM-2 bounds.
func DefaultParams() *Params {
	return &Params{
		DefaultEasiness: 2.5,
		MinEasiness:     1.3,
		MaxEasiness:     3.0,
	}
}

// Validate checks that the bounds are usable.
func (p *Params) Validate() error {
	if p.MinEasiness <= 0 || p.MaxEasiness < p.MinEasiness {
		return fmt.Errorf("sm2: easiness bounds [%.2f, %.2f] are invalid", p.MinEasiness, p.MaxEasiness)
	}
	if p.DefaultEasiness < p.MinEasiness || p.DefaultEasiness > p.MaxEasiness {
		return fmt.Errorf("sm2: default easiness %.2f outside [%.2f, %.2f]", p.DefaultEasiness, p.MinEasiness, p.MaxEasiness)
	}
	return nil
}

// NewCard fills in the scheduling state of a card that has never been reviewed.
// The card is due immediately.
func (p *Params) NewCard(card domain.Card, now time.Time) domain.Card {
	card.Easiness = p.DefaultEasiness
	card.Interval = 1
	card.Repetitions = 0
	card.CreatedAt = now
	card.NextReview = now
	card.LastReview = nil
	return card
}

// Review calculates the card's next scheduling state after a review with the given quality.
// The input card is not modified.
func (p *Params) Review(card domain.Card, quality domain.Quality, now time.Time) (domain.Card, error) {
	if !quality.Valid() {
		return card, fmt.Errorf("sm2: review of card %s with quality %d: %w", card.ID, quality, domain.ErrInvalidQuality)
	}

	if quality.Correct() {
		card.Repetitions++
		card.Interval = NextInterval(card.Repetitions, card.Interval, card.Easiness)
	} else {
		card.Repetitions = 0
		card.Interval = 1
	}
	card.Easiness = p.nextEasiness(card.Easiness, quality)

	reviewed := now
	card.LastReview = &reviewed
	card.NextReview = now.AddDate(0, 0, card.Interval)
	return card, nil
}

// NextInterval returns the interval in days for a card that has just reached
// the given count of consecutive successful reviews.
func NextInterval(repetitions, previousInterval int, easiness float64) int {
	switch repetitions {
	case 1:
		return 1
	case 2:
		return 6
	}
	if previousInterval < 1 {
		previousInterval = 1
	}
	next := int(math.Round(float64(previousInterval) * easiness))
	if next < 1 {
		return 1
	}
	return next
}

// nextEasiness applies the SM-2 easiness adjustment on a 0-4 quality scale.
func (p *Params) nextEasiness(easiness float64, quality domain.Quality) float64 {
	// EF' = EF + (0.1 - (4-q) * (0.08 + (4-q)*0.02))
	miss := float64(domain.Perfect - quality)
	next := easiness + (0.1 - miss*(0.08+miss*0.02))
	return math.Max(p.MinEasiness, math.Min(p.MaxEasiness, next))
}
