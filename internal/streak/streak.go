package streak

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Result holds the computed streak lengths in days.
type Result struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Normalize validates, deduplicates and sorts study dates ascending.
func Normalize(dates []string) ([]string, error) {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, err := domain.ParseDay(d); err != nil {
			return nil, fmt.Errorf("invalid study date %q: %w", d, err)
		}
		out = append(out, d)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Calculate computes the current and longest streaks for the given study dates.
// The current streak is still alive when the last study day was yesterday.
func Calculate(dates []string, today time.Time) (Result, error) {
	days, err := Normalize(dates)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Current: current(days, today),
		Longest: longest(days),
	}, nil
}

func current(days []string, today time.Time) int {
	studied := make(map[string]bool, len(days))
	for _, d := range days {
		studied[d] = true
	}

	start := domain.StartOfDay(today)
	if !studied[domain.Day(start)] {
		start = start.AddDate(0, 0, -1)
		if !studied[domain.Day(start)] {
			return 0
		}
	}

	n := 0
	for d := start; studied[domain.Day(d)]; d = d.AddDate(0, 0, -1) {
		n++
	}
	return n
}

// longest expects days sorted ascending and unique.
func longest(days []string) int {
	best, run := 0, 0
	var prev time.Time
	for i, s := range days {
		d, _ := domain.ParseDay(s)
		if i > 0 && domain.CalendarDays(prev, d) == 1 {
			run++
		} else {
			run = 1
		}
		best = max(best, run)
		prev = d
	}
	return best
}

// Update records a study day on the streak. Recording a day that is already
// present leaves the study dates unchanged. LongestStreak never decreases.
func Update(s domain.LearningStreak, date, today time.Time) (domain.LearningStreak, error) {
	day := domain.Day(date)
	dates, err := Normalize(append(slices.Clone(s.StudyDates), day))
	if err != nil {
		return s, err
	}
	res, err := Calculate(dates, today)
	if err != nil {
		return s, err
	}

	s.StudyDates = dates
	s.CurrentStreak = res.Current
	s.LongestStreak = max(s.LongestStreak, res.Longest)
	s.LastStudyDate = day
	return s, nil
}

// Day is one entry of a streak visualization window.
type Day struct {
	Date    string `json:"date"`
	Studied bool   `json:"studied"`
	Today   bool   `json:"isToday"`
}

// Window yields the trailing days-long window ending today, oldest first.
// The sequence always has exactly days entries and can be ranged over repeatedly.
func Window(dates []string, today time.Time, days int) iter.Seq[Day] {
	studied := make(map[string]bool, len(dates))
	for _, d := range dates {
		studied[d] = true
	}
	end := domain.StartOfDay(today)
	return func(yield func(Day) bool) {
		for i := days - 1; i >= 0; i-- {
			d := domain.Day(end.AddDate(0, 0, -i))
			if !yield(Day{Date: d, Studied: studied[d], Today: i == 0}) {
				return
			}
		}
	}
}

// Source loads the persisted streak record.
type Source interface {
	LoadStreak(ctx context.Context) (domain.LearningStreak, error)
}

// Tracker answers streak queries against a Source, evaluated relative to now.
// Every accessor returns the load error instead of hiding it; callers that
// prefer a default wrap the call with report.OrDefault.
type Tracker struct {
	src Source
	now func() time.Time
}

// NewTracker creates a Tracker. A nil now uses time.Now.
func NewTracker(src Source, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{src: src, now: now}
}

// Summary is the reporting view of a streak.
type Summary struct {
	Current       int    `json:"currentStreak"`
	Longest       int    `json:"longestStreak"`
	LastStudyDate string `json:"lastStudyDate,omitempty"`
	StudiedToday  bool   `json:"studiedToday"`
	TotalDays     int    `json:"totalDays"`
}

// Summary recomputes the current streak as of today.
func (t *Tracker) Summary(ctx context.Context) (Summary, error) {
	s, err := t.src.LoadStreak(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load streak: %w", err)
	}
	today := t.now()
	res, err := Calculate(s.StudyDates, today)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Current:       res.Current,
		Longest:       max(s.LongestStreak, res.Longest),
		LastStudyDate: s.LastStudyDate,
		StudiedToday:  slices.Contains(s.StudyDates, domain.Day(today)),
		TotalDays:     len(s.StudyDates),
	}, nil
}

// Visualization returns the trailing window of study days ending today.
func (t *Tracker) Visualization(ctx context.Context, days int) (iter.Seq[Day], error) {
	s, err := t.src.LoadStreak(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load streak: %w", err)
	}
	return Window(s.StudyDates, t.now(), days), nil
}

// Current returns the current streak as of today.
func (t *Tracker) Current(ctx context.Context) (int, error) {
	sum, err := t.Summary(ctx)
	return sum.Current, err
}

// Longest returns the longest streak ever recorded.
func (t *Tracker) Longest(ctx context.Context) (int, error) {
	sum, err := t.Summary(ctx)
	return sum.Longest, err
}
