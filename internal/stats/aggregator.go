package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/knolstudy/internal/classify"
	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/report"
)

// Source loads the snapshot the aggregator reports on.
type Source interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
}

// Aggregator computes reporting views over a Source.
// Each view has an error-returning form and an OrDefault form that degrades
// to an empty result and logs the failure.
type Aggregator struct {
	src        Source
	thresholds classify.Thresholds
	now        func() time.Time
	logger     *slog.Logger
}

// NewAggregator creates an Aggregator. A nil now uses time.Now.
func NewAggregator(src Source, th classify.Thresholds, now func() time.Time, logger *slog.Logger) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{src: src, thresholds: th, now: now, logger: logger}
}

func (a *Aggregator) load(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := a.src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for stats: %w", err)
	}
	return snap, nil
}

// Basic returns card counts as of now.
func (a *Aggregator) Basic(ctx context.Context) (Basic, error) {
	snap, err := a.load(ctx)
	if err != nil {
		return Basic{}, err
	}
	return BasicStats(snap.Cards, a.thresholds, a.now()), nil
}

// Extended returns cumulative totals.
func (a *Aggregator) Extended(ctx context.Context) (Extended, error) {
	snap, err := a.load(ctx)
	if err != nil {
		return Extended{}, err
	}
	return ExtendedStats(snap.Cards, snap.Sessions, snap.Streak, a.now()), nil
}

// Tags returns the tag distribution.
func (a *Aggregator) Tags(ctx context.Context) ([]TagCount, error) {
	snap, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return TagDistribution(snap.Cards), nil
}

// Progress returns per-day progress for the trailing window.
func (a *Aggregator) Progress(ctx context.Context, days int) ([]DayProgress, error) {
	snap, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	return ProgressOverTime(snap.Sessions, a.now(), days), nil
}

// BasicOrDefault is Basic with empty counts on failure.
func (a *Aggregator) BasicOrDefault(ctx context.Context) Basic {
	v, err := a.Basic(ctx)
	return report.Zero(a.logger, "stats.basic", v, err)
}

// ExtendedOrDefault is Extended with zero totals and the default easiness on failure.
func (a *Aggregator) ExtendedOrDefault(ctx context.Context) Extended {
	v, err := a.Extended(ctx)
	return report.OrDefault(a.logger, "stats.extended", v, err, Extended{AverageEasiness: DefaultEasiness})
}

// TagsOrDefault is Tags with no tags on failure.
func (a *Aggregator) TagsOrDefault(ctx context.Context) []TagCount {
	v, err := a.Tags(ctx)
	return report.Zero(a.logger, "stats.tags", v, err)
}

// ProgressOrDefault is Progress with no days on failure.
func (a *Aggregator) ProgressOrDefault(ctx context.Context, days int) []DayProgress {
	v, err := a.Progress(ctx, days)
	return report.Zero(a.logger, "stats.progress", v, err)
}
