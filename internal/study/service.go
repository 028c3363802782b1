package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/knolstudy/internal/achievement"
	"github.com/conorfennell/knolstudy/internal/classify"
	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/importer"
	"github.com/conorfennell/knolstudy/internal/integrity"
	"github.com/conorfennell/knolstudy/internal/session"
	"github.com/conorfennell/knolstudy/internal/sm2"
	"github.com/conorfennell/knolstudy/internal/storage"
	"github.com/conorfennell/knolstudy/internal/streak"
)

// Observer receives study events, e.g. for metrics.
type Observer interface {
	ObserveReview(q domain.Quality)
	ObserveSession(s domain.StudySession)
	SetCardsDue(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveReview(domain.Quality)       {}
func (nopObserver) ObserveSession(domain.StudySession) {}
func (nopObserver) SetCardsDue(int)                    {}

// Deps are the collaborators of a Service. Nil fields get defaults.
type Deps struct {
	Store          storage.Store
	Params         *sm2.Params
	Thresholds     classify.Thresholds
	Ledger         *session.Ledger
	Validator      *integrity.Validator
	Achievements   *achievement.Evaluator
	Importer       *importer.Importer
	Observer       Observer
	Logger         *slog.Logger
	Now            func() time.Time
	ValidateOnLoad bool
}

// Service runs study sessions against a stored snapshot.
// Every mutating call loads the snapshot, applies the change and saves it
// again while holding the service lock.
type Service struct {
	mu             sync.Mutex
	store          storage.Store
	params         *sm2.Params
	thresholds     classify.Thresholds
	ledger         *session.Ledger
	validator      *integrity.Validator
	achievements   *achievement.Evaluator
	importer       *importer.Importer
	observer       Observer
	logger         *slog.Logger
	now            func() time.Time
	validateOnLoad bool
}

// NewService wires a Service from its dependencies.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Params == nil {
		d.Params = sm2.DefaultParams()
	}
	if d.Thresholds == (classify.Thresholds{}) {
		d.Thresholds = classify.DefaultThresholds()
	}
	if d.Ledger == nil {
		d.Ledger = session.NewLedger(session.WithClock(d.Now))
	}
	if d.Validator == nil {
		d.Validator = integrity.New(d.Now)
	}
	if d.Achievements == nil {
		d.Achievements = achievement.NewEvaluator(nil, d.Thresholds)
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	return &Service{
		store:          d.Store,
		params:         d.Params,
		thresholds:     d.Thresholds,
		ledger:         d.Ledger,
		validator:      d.Validator,
		achievements:   d.Achievements,
		importer:       d.Importer,
		observer:       d.Observer,
		logger:         d.Logger,
		now:            d.Now,
		validateOnLoad: d.ValidateOnLoad,
	}
}

// Load returns the stored snapshot. With ValidateOnLoad set, a snapshot with
// error-severity issues is rejected with a *domain.ValidationError.
func (s *Service) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.validateOnLoad {
		res := s.validator.Validate(snap)
		for _, w := range res.Warnings {
			s.logger.Warn("data integrity warning", "issue", w.String())
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// LoadStreak implements streak.Source.
func (s *Service) LoadStreak(ctx context.Context) (domain.LearningStreak, error) {
	return s.store.LoadStreak(ctx)
}

// Validate checks the stored snapshot without rejecting it.
func (s *Service) Validate(ctx context.Context) (integrity.Result, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return integrity.Result{}, err
	}
	return s.validator.Validate(snap), nil
}

// save refuses to persist a snapshot that has error-severity issues.
func (s *Service) save(ctx context.Context, snap *domain.Snapshot) error {
	if err := s.validator.Validate(snap).Err(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return err
	}
	s.observer.SetCardsDue(len(classify.Due(snap.Cards, s.now())))
	return nil
}

// SelectCards returns the cards a session of type t would study.
// The filter narrows every type; for custom sessions it is the only criterion.
func (s *Service) SelectCards(ctx context.Context, t domain.SessionType, f classify.Filter) ([]domain.Card, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown session type %q", t)
	}
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var pool []domain.Card
	for _, c := range snap.Cards {
		due := classify.IsDue(c, now)
		switch t {
		case domain.SessionDue:
			if !due {
				continue
			}
		case domain.SessionNew:
			if c.Repetitions != 0 {
				continue
			}
		case domain.SessionReview:
			if !due || c.Repetitions == 0 {
				continue
			}
		}
		pool = append(pool, c)
	}
	return f.Apply(pool, s.thresholds, now), nil
}

// Card returns the card with the given ID.
func (s *Service) Card(ctx context.Context, id string) (domain.Card, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return domain.Card{}, err
	}
	i := snap.CardIndex(id)
	if i < 0 {
		return domain.Card{}, fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
	}
	return snap.Cards[i], nil
}

// StartSession opens a new study session.
func (s *Service) StartSession(t domain.SessionType) (domain.StudySession, error) {
	sess, err := s.ledger.Create(t)
	if err != nil {
		return domain.StudySession{}, err
	}
	s.logger.Info("study session started", "session_id", sess.ID, "type", sess.Type)
	return sess, nil
}

// Session returns a session known to the ledger.
func (s *Service) Session(id string) (domain.StudySession, error) {
	return s.ledger.Get(id)
}

// ActiveSession returns the open session, if any.
func (s *Service) ActiveSession() (domain.StudySession, bool) {
	return s.ledger.Active()
}

// Review reschedules a card and counts the review against an open session.
func (s *Service) Review(ctx context.Context, sessionID, cardID string, q domain.Quality) (domain.Card, domain.StudySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ledger.Get(sessionID)
	if err != nil {
		return domain.Card{}, domain.StudySession{}, err
	}
	if sess.Ended() {
		return domain.Card{}, domain.StudySession{}, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionEnded)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		return domain.Card{}, domain.StudySession{}, err
	}
	i := snap.CardIndex(cardID)
	if i < 0 {
		return domain.Card{}, domain.StudySession{}, fmt.Errorf("card %s: %w", cardID, domain.ErrNotFound)
	}

	updated, err := s.params.Review(snap.Cards[i], q, s.now())
	if err != nil {
		return domain.Card{}, domain.StudySession{}, err
	}
	snap.Cards[i] = updated
	if err := s.save(ctx, snap); err != nil {
		return domain.Card{}, domain.StudySession{}, fmt.Errorf("failed to save review of card %s: %w", cardID, err)
	}

	sess, err = s.ledger.RecordReview(sessionID, cardID, q)
	if err != nil {
		return domain.Card{}, domain.StudySession{}, err
	}
	s.observer.ObserveReview(q)
	s.logger.Debug("card reviewed",
		"session_id", sessionID,
		"card_id", cardID,
		"quality", int(q),
		"interval", updated.Interval,
		"easiness", updated.Easiness,
	)
	return updated, sess, nil
}

// EndResult is what a completed session produced.
type EndResult struct {
	Session  domain.StudySession   `json:"session"`
	Streak   domain.LearningStreak `json:"streak"`
	Unlocked []domain.Achievement  `json:"unlocked"`
}

// EndSession closes a session, appends it to the history, records the study
// day when at least one card was reviewed, and evaluates achievements.
func (s *Service) EndSession(ctx context.Context, sessionID string, quitEarly bool) (EndResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Load(ctx)
	if err != nil {
		return EndResult{}, err
	}

	open, err := s.ledger.Get(sessionID)
	if err != nil {
		return EndResult{}, err
	}
	// The ledger only closes the session once the snapshot is saved, so a
	// failed save leaves it open for a retry.
	ended, err := s.ledger.Finish(sessionID, &domain.SessionResults{
		CardsStudied:     open.CardsStudied,
		CorrectAnswers:   open.CorrectAnswers,
		IncorrectAnswers: open.IncorrectAnswers,
		QuitEarly:        quitEarly,
	})
	if err != nil {
		return EndResult{}, err
	}

	snap.Sessions = append(snap.Sessions, ended)
	now := s.now()
	if ended.CardsStudied > 0 {
		snap.Streak, err = streak.Update(snap.Streak, *ended.EndTime, now)
		if err != nil {
			return EndResult{}, fmt.Errorf("failed to update streak: %w", err)
		}
	}
	var unlocked []domain.Achievement
	snap.Achievements, unlocked = s.achievements.Evaluate(snap, now)

	if err := s.save(ctx, snap); err != nil {
		return EndResult{}, fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	if err := s.ledger.Commit(ended); err != nil {
		return EndResult{}, err
	}
	s.observer.ObserveSession(ended)
	s.logger.Info("study session ended",
		"session_id", ended.ID,
		"cards_studied", ended.CardsStudied,
		"accuracy", ended.Accuracy(),
		"duration", ended.Duration,
		"quit_early", ended.QuitEarly,
	)
	for _, a := range unlocked {
		s.logger.Info("achievement unlocked", "id", a.ID, "name", a.Name)
	}
	return EndResult{Session: ended, Streak: snap.Streak, Unlocked: unlocked}, nil
}

// Achievements returns the stored achievements.
func (s *Service) Achievements(ctx context.Context) ([]domain.Achievement, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Achievements, nil
}

// ErrNoImporter is returned by Import when the service has no importer.
var ErrNoImporter = errors.New("no deck importer configured")

// Import merges the decks found at source into the stored cards.
func (s *Service) Import(ctx context.Context, source string) (importer.Report, error) {
	if s.importer == nil {
		return importer.Report{}, ErrNoImporter
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Load(ctx)
	if err != nil {
		return importer.Report{}, err
	}
	report, err := s.importer.Import(ctx, snap, source)
	if err != nil {
		return report, err
	}
	snap.Achievements, _ = s.achievements.Evaluate(snap, s.now())
	if err := s.save(ctx, snap); err != nil {
		return report, fmt.Errorf("failed to save imported cards: %w", err)
	}
	return report, nil
}
