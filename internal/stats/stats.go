package stats

import (
	"cmp"
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/conorfennell/knolstudy/internal/classify"
	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/streak"
)

// DefaultEasiness is reported as the average when there are no cards.
const DefaultEasiness = 2.5

// Basic counts cards by due-ness and difficulty bucket.
type Basic struct {
	TotalCards    int `json:"totalCards"`
	DueToday      int `json:"dueToday"`
	NewCards      int `json:"newCards"`
	LearningCards int `json:"learningCards"`
	YoungCards    int `json:"youngCards"`
	MatureCards   int `json:"matureCards"`
}

// Extended is the cumulative study summary.
// TotalStudyTime is encoded in JSON as whole milliseconds.
type Extended struct {
	TotalReviews    int           `json:"totalReviews"`
	AverageEasiness float64       `json:"averageEasiness"`
	TotalStudyTime  time.Duration `json:"totalStudyTime"`
	AccuracyRate    float64       `json:"accuracyRate"`
	StreakDays      int           `json:"streakDays"`
	SessionsCount   int           `json:"sessionsCount"`
}

// MarshalJSON writes TotalStudyTime in milliseconds.
func (e Extended) MarshalJSON() ([]byte, error) {
	type plain Extended
	return json.Marshal(struct {
		plain
		TotalStudyTime int64 `json:"totalStudyTime"`
	}{plain(e), e.TotalStudyTime.Milliseconds()})
}

// UnmarshalJSON reads TotalStudyTime in milliseconds.
func (e *Extended) UnmarshalJSON(b []byte) error {
	type plain Extended
	aux := struct {
		*plain
		TotalStudyTime int64 `json:"totalStudyTime"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.TotalStudyTime = time.Duration(aux.TotalStudyTime) * time.Millisecond
	return nil
}

// TagCount is one tag's share of all tag occurrences.
type TagCount struct {
	Tag        string  `json:"tag"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DayProgress sums the sessions started on one calendar day.
type DayProgress struct {
	Date           string `json:"date"`
	CardsStudied   int    `json:"cardsStudied"`
	CorrectAnswers int    `json:"correctAnswers"`
	Accuracy       int    `json:"accuracy"`
}

// BasicStats makes a single pass over the cards.
func BasicStats(cards []domain.Card, th classify.Thresholds, ref time.Time) Basic {
	b := Basic{TotalCards: len(cards)}
	for _, c := range cards {
		if classify.IsDue(c, ref) {
			b.DueToday++
		}
		switch th.Classify(c) {
		case classify.New:
			b.NewCards++
		case classify.Learning:
			b.LearningCards++
		case classify.Young:
			b.YoungCards++
		case classify.Mature:
			b.MatureCards++
		}
	}
	return b
}

// ExtendedStats folds cards, completed sessions and the streak into totals.
// StreakDays is the current streak as of today, so a lapsed streak reads 0.
// Easiness is rounded to 2 decimals and accuracy to 1.
func ExtendedStats(cards []domain.Card, sessions []domain.StudySession, s domain.LearningStreak, today time.Time) Extended {
	e := Extended{
		AverageEasiness: DefaultEasiness,
		StreakDays:      s.CurrentStreak,
		SessionsCount:   len(sessions),
	}
	if res, err := streak.Calculate(s.StudyDates, today); err == nil {
		e.StreakDays = res.Current
	}

	var easiness float64
	for _, c := range cards {
		e.TotalReviews += c.Repetitions
		easiness += c.Easiness
	}
	if len(cards) > 0 {
		e.AverageEasiness = roundTo(easiness/float64(len(cards)), 2)
	}

	var correct, studied int
	for _, sess := range sessions {
		e.TotalStudyTime += sess.Duration
		correct += sess.CorrectAnswers
		studied += sess.CardsStudied
	}
	if studied > 0 {
		e.AccuracyRate = roundTo(float64(correct)/float64(studied)*100, 1)
	}
	return e
}

// TagDistribution counts each tag once per card carrying it.
// The result is ordered by count descending, then tag.
func TagDistribution(cards []domain.Card) []TagCount {
	counts := make(map[string]int)
	total := 0
	for _, c := range cards {
		for _, t := range c.Tags {
			counts[t]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{
			Tag:        tag,
			Count:      n,
			Percentage: roundTo(float64(n)/float64(total)*100, 1),
		})
	}
	slices.SortFunc(out, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	return out
}

// ProgressOverTime groups sessions started within the trailing days-long
// window ending today by calendar day, oldest first. Days without sessions
// are omitted.
func ProgressOverTime(sessions []domain.StudySession, today time.Time, days int) []DayProgress {
	if days <= 0 {
		return nil
	}
	first := domain.StartOfDay(today).AddDate(0, 0, -(days - 1))

	byDay := make(map[string]*DayProgress)
	for _, s := range sessions {
		start := s.StartTime.In(today.Location())
		if d := domain.CalendarDays(first, start); d < 0 || d >= days {
			continue
		}
		key := domain.Day(start)
		p, ok := byDay[key]
		if !ok {
			p = &DayProgress{Date: key}
			byDay[key] = p
		}
		p.CardsStudied += s.CardsStudied
		p.CorrectAnswers += s.CorrectAnswers
	}

	out := make([]DayProgress, 0, len(byDay))
	for _, p := range byDay {
		if p.CardsStudied > 0 {
			p.Accuracy = int(math.Round(float64(p.CorrectAnswers) / float64(p.CardsStudied) * 100))
		}
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b DayProgress) int { return cmp.Compare(a.Date, b.Date) })
	return out
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
