package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Ledger tracks the lifecycle of study sessions for the life of the process.
// At most one session is active at a time. Ended sessions are immutable.
type Ledger struct {
	mu       sync.Mutex
	sessions map[string]*domain.StudySession
	activeID string
	now      func() time.Time
	newID    func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source used for start and end stamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		sessions: make(map[string]*domain.StudySession),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create starts a new session and makes it the active one.
// It fails with ErrSessionActive while another session is still active.
func (l *Ledger) Create(t domain.SessionType) (domain.StudySession, error) {
	if !t.Valid() {
		return domain.StudySession{}, fmt.Errorf("unknown session type %q", t)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.activeID != "" {
		return domain.StudySession{}, fmt.Errorf("cannot start %s session, %s is open: %w", t, l.activeID, domain.ErrSessionActive)
	}

	id := l.newID()
	for l.sessions[id] != nil {
		id = l.newID()
	}
	s := &domain.StudySession{
		ID:        id,
		StartTime: l.now(),
		Type:      t,
	}
	l.sessions[id] = s
	l.activeID = id
	return *s, nil
}

// RecordReview counts one card review against an active session and updates
// its running average difficulty.
func (l *Ledger) RecordReview(sessionID, cardID string, quality domain.Quality) (domain.StudySession, error) {
	if !quality.Valid() {
		return domain.StudySession{}, fmt.Errorf("review of card %s: %w", cardID, domain.ErrInvalidQuality)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.open(sessionID)
	if err != nil {
		return domain.StudySession{}, err
	}

	s.CardsStudied++
	if quality.Correct() {
		s.CorrectAnswers++
	} else {
		s.IncorrectAnswers++
	}
	n := float64(s.CardsStudied)
	s.AverageDifficulty = (s.AverageDifficulty*(n-1) + float64(quality)) / n
	s.Reviews = append(s.Reviews, domain.ReviewEvent{
		CardID:    cardID,
		Quality:   quality,
		Timestamp: l.now(),
	})
	return clone(s), nil
}

// End closes a session, stamping its end time and duration and taking the
// final counts from results. A nil results keeps the recorded counts.
func (l *Ledger) End(sessionID string, results *domain.SessionResults) (domain.StudySession, error) {
	ended, err := l.Finish(sessionID, results)
	if err != nil {
		return domain.StudySession{}, err
	}
	if err := l.Commit(ended); err != nil {
		return domain.StudySession{}, err
	}
	return ended, nil
}

// Finish returns the session as End would leave it, without closing it.
// The session stays active until the result is passed to Commit.
func (l *Ledger) Finish(sessionID string, results *domain.SessionResults) (domain.StudySession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.open(sessionID)
	if err != nil {
		return domain.StudySession{}, err
	}

	ended := clone(s)
	end := l.now()
	if end.Before(ended.StartTime) {
		end = ended.StartTime
	}
	ended.EndTime = &end
	ended.Duration = end.Sub(ended.StartTime)
	if results != nil {
		ended.CardsStudied = results.CardsStudied
		ended.CorrectAnswers = results.CorrectAnswers
		ended.IncorrectAnswers = results.IncorrectAnswers
		ended.QuitEarly = results.QuitEarly
	}
	return ended, nil
}

// Commit closes the session using a result of Finish. It fails if the
// session was closed or received reviews since Finish.
func (l *Ledger) Commit(ended domain.StudySession) error {
	if !ended.Ended() {
		return fmt.Errorf("session %s: commit without end time", ended.ID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.open(ended.ID)
	if err != nil {
		return err
	}
	if len(s.Reviews) != len(ended.Reviews) {
		return fmt.Errorf("session %s changed since it was finished", ended.ID)
	}
	*s = clone(&ended)
	if l.activeID == ended.ID {
		l.activeID = ""
	}
	return nil
}

// Get returns a copy of the session with the given ID.
func (l *Ledger) Get(sessionID string) (domain.StudySession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		return domain.StudySession{}, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return clone(s), nil
}

// Active returns the active session, if any.
func (l *Ledger) Active() (domain.StudySession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.activeID == "" {
		return domain.StudySession{}, false
	}
	return clone(l.sessions[l.activeID]), true
}

func (l *Ledger) open(sessionID string) (*domain.StudySession, error) {
	s, ok := l.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	if s.Ended() {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionEnded)
	}
	return s, nil
}

func clone(s *domain.StudySession) domain.StudySession {
	out := *s
	out.Reviews = append([]domain.ReviewEvent(nil), s.Reviews...)
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	return out
}
