package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolstudy/internal/domain"
)

var t0 = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

// stepClock advances by one minute on every call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	cur := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := cur
		cur = cur.Add(time.Minute)
		return now
	}
}

func TestLedgerLifecycle(t *testing.T) {
	l := NewLedger(WithClock(stepClock()))

	s, err := l.Create(domain.SessionDue)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, t0, s.StartTime)
	assert.False(t, s.Ended())

	active, ok := l.Active()
	require.True(t, ok)
	assert.Equal(t, s.ID, active.ID)

	wantAvg := []float64{4, 3, 3}
	for i, q := range []domain.Quality{domain.Perfect, domain.Hard, domain.Good} {
		got, err := l.RecordReview(s.ID, fmt.Sprintf("card-%d", i), q)
		require.NoError(t, err)
		assert.InDelta(t, wantAvg[i], got.AverageDifficulty, 1e-9, "after review %d", i+1)
	}

	got, err := l.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CardsStudied)
	assert.Equal(t, 2, got.CorrectAnswers)
	assert.Equal(t, 1, got.IncorrectAnswers)
	assert.Len(t, got.Reviews, 3)

	ended, err := l.End(s.ID, &domain.SessionResults{CardsStudied: 3, CorrectAnswers: 2, IncorrectAnswers: 1, QuitEarly: true})
	require.NoError(t, err)
	require.NotNil(t, ended.EndTime)
	assert.Equal(t, 4*time.Minute, ended.Duration)
	assert.True(t, ended.QuitEarly)

	_, ok = l.Active()
	assert.False(t, ok)
}

func TestLedgerEndedSessionIsTerminal(t *testing.T) {
	l := NewLedger()
	s, err := l.Create(domain.SessionAll)
	require.NoError(t, err)
	_, err = l.End(s.ID, nil)
	require.NoError(t, err)

	_, err = l.RecordReview(s.ID, "c", domain.Good)
	assert.ErrorIs(t, err, domain.ErrSessionEnded)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = l.End(s.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerUnknownSession(t *testing.T) {
	l := NewLedger()
	_, err := l.RecordReview("missing", "c", domain.Good)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.End("missing", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerSingleActiveSession(t *testing.T) {
	l := NewLedger()
	first, err := l.Create(domain.SessionNew)
	require.NoError(t, err)

	_, err = l.Create(domain.SessionDue)
	assert.ErrorIs(t, err, domain.ErrSessionActive)

	_, err = l.End(first.ID, nil)
	require.NoError(t, err)
	_, err = l.Create(domain.SessionDue)
	assert.NoError(t, err)
}

func TestLedgerConcurrentCreate(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Create(domain.SessionDue); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrSessionActive) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestLedgerRejectsBadInput(t *testing.T) {
	l := NewLedger()
	_, err := l.Create("weekly")
	assert.Error(t, err)

	s, err := l.Create(domain.SessionCustom)
	require.NoError(t, err)
	_, err = l.RecordReview(s.ID, "c", 7)
	assert.ErrorIs(t, err, domain.ErrInvalidQuality)
}

func TestLedgerReturnsCopies(t *testing.T) {
	l := NewLedger()
	s, err := l.Create(domain.SessionDue)
	require.NoError(t, err)
	got, err := l.RecordReview(s.ID, "c", domain.Good)
	require.NoError(t, err)
	got.Reviews[0].CardID = "mutated"

	stored, err := l.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", stored.Reviews[0].CardID)
}

func TestLedgerFinishThenCommit(t *testing.T) {
	l := NewLedger(WithClock(stepClock()))
	s, err := l.Create(domain.SessionDue)
	require.NoError(t, err)
	_, err = l.RecordReview(s.ID, "c1", domain.Good)
	require.NoError(t, err)

	ended, err := l.Finish(s.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, ended.EndTime)
	assert.Equal(t, 1, ended.CardsStudied)

	// Finish alone leaves the session open, so a failed save can retry.
	stored, err := l.Get(s.ID)
	require.NoError(t, err)
	assert.False(t, stored.Ended())
	active, ok := l.Active()
	require.True(t, ok)
	assert.Equal(t, s.ID, active.ID)

	again, err := l.Finish(s.ID, nil)
	require.NoError(t, err)
	require.NoError(t, l.Commit(again))

	stored, err = l.Get(s.ID)
	require.NoError(t, err)
	assert.True(t, stored.Ended())
	assert.Equal(t, again.EndTime, stored.EndTime)
	_, ok = l.Active()
	assert.False(t, ok)

	assert.ErrorIs(t, l.Commit(again), domain.ErrSessionEnded)
}

func TestLedgerCommitRejectsStaleFinish(t *testing.T) {
	l := NewLedger()
	s, err := l.Create(domain.SessionDue)
	require.NoError(t, err)

	ended, err := l.Finish(s.ID, nil)
	require.NoError(t, err)
	_, err = l.RecordReview(s.ID, "c1", domain.Hard)
	require.NoError(t, err)
	assert.Error(t, l.Commit(ended))

	s.EndTime = nil
	assert.Error(t, l.Commit(s))
}
