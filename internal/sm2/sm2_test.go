package sm2

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
)

var t0 = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func newCard(params *Params) domain.Card {
	return params.NewCard(domain.Card{ID: "c1", Front: "Q", Back: "A"}, t0)
}

func TestNextEasiness(t *testing.T) {
	params := DefaultParams()
	testCases := []struct {
		name     string
		easiness float64
		quality  domain.Quality
		expected float64
	}{
		{"perfect raises by 0.1", 2.5, domain.Perfect, 2.6},
		{"good keeps easiness", 2.5, domain.Good, 2.5},
		{"hard lowers by 0.14", 2.5, domain.Hard, 2.36},
		{"wrong lowers by 0.32", 2.5, domain.Wrong, 2.18},
		{"blackout lowers by 0.54", 2.5, domain.Blackout, 1.96},
		{"clamped at minimum", 1.4, domain.Blackout, 1.3},
		{"clamped at maximum", 2.95, domain.Perfect, 3.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := params.nextEasiness(tc.easiness, tc.quality)
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("Expected easiness %.2f, but got %.4f", tc.expected, got)
			}
		})
	}
}

func TestNextInterval(t *testing.T) {
	testCases := []struct {
		repetitions int
		previous    int
		easiness    float64
		expected    int
	}{
		{1, 1, 2.5, 1},
		{2, 1, 2.5, 6},
		{3, 6, 2.5, 15},
		{4, 15, 2.6, 39},
		{3, 0, 1.3, 1},
	}
	for _, tc := range testCases {
		got := NextInterval(tc.repetitions, tc.previous, tc.easiness)
		if got != tc.expected {
			t.Errorf("NextInterval(%d, %d, %.1f) = %d, want %d", tc.repetitions, tc.previous, tc.easiness, got, tc.expected)
		}
	}
}

func TestReview(t *testing.T) {
	params := DefaultParams()

	t.Run("failure resets repetitions and interval", func(t *testing.T) {
		card := newCard(params)
		card.Repetitions = 5
		card.Interval = 40
		for q := domain.Blackout; q < domain.Good; q++ {
			got, err := params.Review(card, q, t0)
			if err != nil {
				t.Fatalf("Review returned error: %v", err)
			}
			if got.Repetitions != 0 || got.Interval != 1 {
				t.Errorf("quality %d: expected repetitions 0 and interval 1, got %d and %d", q, got.Repetitions, got.Interval)
			}
		}
	})

	t.Run("easiness stays within bounds", func(t *testing.T) {
		for _, start := range []float64{1.3, 1.5, 2.5, 2.9, 3.0} {
			for q := domain.Blackout; q <= domain.Perfect; q++ {
				card := newCard(params)
				card.Easiness = start
				got, err := params.Review(card, q, t0)
				if err != nil {
					t.Fatalf("Review returned error: %v", err)
				}
				if got.Easiness < 1.3 || got.Easiness > 3.0 {
					t.Errorf("easiness %.2f after quality %d from %.2f is out of bounds", got.Easiness, q, start)
				}
			}
		}
	})

	t.Run("third success multiplies previous interval", func(t *testing.T) {
		card := newCard(params)
		card.Repetitions = 2
		card.Interval = 6
		card.Easiness = 2.5
		got, err := params.Review(card, domain.Good, t0)
		if err != nil {
			t.Fatalf("Review returned error: %v", err)
		}
		if got.Interval != 15 {
			t.Errorf("Expected interval 15, but got %d", got.Interval)
		}
	})

	t.Run("sets review dates", func(t *testing.T) {
		card := newCard(params)
		card.Repetitions = 1
		got, err := params.Review(card, domain.Perfect, t0)
		if err != nil {
			t.Fatalf("Review returned error: %v", err)
		}
		if got.LastReview == nil || !got.LastReview.Equal(t0) {
			t.Errorf("Expected last review %v, got %v", t0, got.LastReview)
		}
		if want := t0.AddDate(0, 0, 6); !got.NextReview.Equal(want) {
			t.Errorf("Expected next review %v, got %v", want, got.NextReview)
		}
	})

	t.Run("does not modify input", func(t *testing.T) {
		card := newCard(params)
		if _, err := params.Review(card, domain.Perfect, t0); err != nil {
			t.Fatalf("Review returned error: %v", err)
		}
		if card.Repetitions != 0 || card.LastReview != nil {
			t.Error("Expected input card to be unchanged")
		}
	})

	t.Run("rejects invalid quality", func(t *testing.T) {
		card := newCard(params)
		for _, q := range []domain.Quality{-1, 5} {
			if _, err := params.Review(card, q, t0); !errors.Is(err, domain.ErrInvalidQuality) {
				t.Errorf("quality %d: expected ErrInvalidQuality, got %v", q, err)
			}
		}
	})
}

func TestReviewSequence(t *testing.T) {
	params := DefaultParams()
	card := newCard(params)

	card, _ = params.Review(card, domain.Perfect, t0)
	if card.Interval != 1 || card.Repetitions != 1 {
		t.Fatalf("day 0: expected interval 1, repetitions 1, got %d, %d", card.Interval, card.Repetitions)
	}

	card, _ = params.Review(card, domain.Perfect, t0.AddDate(0, 0, 1))
	if card.Interval != 6 || card.Repetitions != 2 {
		t.Fatalf("day 1: expected interval 6, repetitions 2, got %d, %d", card.Interval, card.Repetitions)
	}
	before := card.Easiness

	card, _ = params.Review(card, domain.Hard, t0.AddDate(0, 0, 7))
	if card.Interval != 1 || card.Repetitions != 0 {
		t.Fatalf("day 7: expected interval 1, repetitions 0, got %d, %d", card.Interval, card.Repetitions)
	}
	if card.Easiness >= before || card.Easiness < 1.3 {
		t.Errorf("day 7: expected easiness below %.2f and at least 1.3, got %.2f", before, card.Easiness)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Errorf("Expected default params to be valid, got %v", err)
	}
	bad := &Params{DefaultEasiness: 4, MinEasiness: 1.3, MaxEasiness: 3}
	if err := bad.Validate(); err == nil {
		t.Error("Expected default easiness above max to be rejected")
	}
}
