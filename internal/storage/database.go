package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB is a Store backed by a SQLite database.
type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap("open", fmt.Errorf("failed to open database: %w", err))
	}
	// A single connection keeps ":memory:" databases and transactions consistent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, wrap("open", fmt.Errorf("failed to connect to database: %w", err))
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, wrap("open", fmt.Errorf("failed to apply schema: %w", err))
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Load reads the full snapshot.
func (db *DB) Load(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var err error

	if snap.Cards, err = db.loadCards(ctx); err != nil {
		return nil, wrap("load", err)
	}
	if snap.Sessions, err = db.loadSessions(ctx); err != nil {
		return nil, wrap("load", err)
	}
	if snap.Streak, err = db.loadStreak(ctx); err != nil {
		return nil, wrap("load", err)
	}
	if snap.Achievements, err = db.loadAchievements(ctx); err != nil {
		return nil, wrap("load", err)
	}
	return &snap, nil
}

// LoadStreak reads only the streak record.
func (db *DB) LoadStreak(ctx context.Context) (domain.LearningStreak, error) {
	s, err := db.loadStreak(ctx)
	return s, wrap("load streak", err)
}

// Save replaces the stored snapshot in a single transaction.
func (db *DB) Save(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrap("save", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	for _, table := range []string{"cards", "sessions", "study_dates", "streak", "achievements"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return wrap("save", fmt.Errorf("failed to clear %s: %w", table, err))
		}
	}

	if err := saveCards(ctx, tx, snap.Cards); err != nil {
		return wrap("save", err)
	}
	if err := saveSessions(ctx, tx, snap.Sessions); err != nil {
		return wrap("save", err)
	}
	if err := saveStreak(ctx, tx, snap.Streak); err != nil {
		return wrap("save", err)
	}
	if err := saveAchievements(ctx, tx, snap.Achievements); err != nil {
		return wrap("save", err)
	}

	if err := tx.Commit(); err != nil {
		return wrap("save", fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

func (db *DB) loadCards(ctx context.Context) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, front, back, tags, easiness, interval_days, repetitions,
		       next_review, last_review, created_at, source
		FROM cards ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		var tags string
		var lastReview sql.NullTime
		var source sql.NullString
		if err := rows.Scan(
			&c.ID,
			&c.Front,
			&c.Back,
			&tags,
			&c.Easiness,
			&c.Interval,
			&c.Repetitions,
			&c.NextReview,
			&lastReview,
			&c.CreatedAt,
			&source,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for card %s: %w", c.ID, err)
		}
		if lastReview.Valid {
			t := lastReview.Time
			c.LastReview = &t
		}
		c.Source = source.String
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func saveCards(ctx context.Context, tx *sql.Tx, cards []domain.Card) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (id, front, back, tags, easiness, interval_days, repetitions,
		                   next_review, last_review, created_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare card insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cards {
		tags, err := json.Marshal(nonNil(c.Tags))
		if err != nil {
			return fmt.Errorf("failed to encode tags for card %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID,
			c.Front,
			c.Back,
			string(tags),
			c.Easiness,
			c.Interval,
			c.Repetitions,
			c.NextReview,
			nullTime(c.LastReview),
			c.CreatedAt,
			c.Source,
		); err != nil {
			return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
		}
	}
	return nil
}

func (db *DB) loadSessions(ctx context.Context) ([]domain.StudySession, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, start_time, end_time, session_type, cards_studied, correct_answers,
		       incorrect_answers, average_difficulty, duration_ms, quit_early, reviews_json
		FROM sessions ORDER BY start_time, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.StudySession
	for rows.Next() {
		var s domain.StudySession
		var endTime sql.NullTime
		var durationMS int64
		var reviews string
		if err := rows.Scan(
			&s.ID,
			&s.StartTime,
			&endTime,
			&s.Type,
			&s.CardsStudied,
			&s.CorrectAnswers,
			&s.IncorrectAnswers,
			&s.AverageDifficulty,
			&durationMS,
			&s.QuitEarly,
			&reviews,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if endTime.Valid {
			t := endTime.Time
			s.EndTime = &t
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(reviews), &s.Reviews); err != nil {
			return nil, fmt.Errorf("failed to decode reviews for session %s: %w", s.ID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func saveSessions(ctx context.Context, tx *sql.Tx, sessions []domain.StudySession) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sessions (id, start_time, end_time, session_type, cards_studied, correct_answers,
		                      incorrect_answers, average_difficulty, duration_ms, quit_early, reviews_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare session insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range sessions {
		reviews, err := json.Marshal(nonNil(s.Reviews))
		if err != nil {
			return fmt.Errorf("failed to encode reviews for session %s: %w", s.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			s.ID,
			s.StartTime,
			nullTime(s.EndTime),
			string(s.Type),
			s.CardsStudied,
			s.CorrectAnswers,
			s.IncorrectAnswers,
			s.AverageDifficulty,
			s.Duration.Milliseconds(),
			s.QuitEarly,
			string(reviews),
		); err != nil {
			return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
		}
	}
	return nil
}

func (db *DB) loadStreak(ctx context.Context) (domain.LearningStreak, error) {
	var s domain.LearningStreak
	var last sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT current_streak, longest_streak, last_study_date FROM streak WHERE id = 1
	`).Scan(&s.CurrentStreak, &s.LongestStreak, &last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("failed to query streak: %w", err)
	}
	s.LastStudyDate = last.String

	rows, err := db.conn.QueryContext(ctx, `SELECT day FROM study_dates ORDER BY day`)
	if err != nil {
		return s, fmt.Errorf("failed to query study dates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return s, fmt.Errorf("failed to scan study date: %w", err)
		}
		s.StudyDates = append(s.StudyDates, day)
	}
	return s, rows.Err()
}

func saveStreak(ctx context.Context, tx *sql.Tx, s domain.LearningStreak) error {
	var last sql.NullString
	if s.LastStudyDate != "" {
		last = sql.NullString{String: s.LastStudyDate, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO streak (id, current_streak, longest_streak, last_study_date) VALUES (1, ?, ?, ?)
	`, s.CurrentStreak, s.LongestStreak, last); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	for _, day := range s.StudyDates {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO study_dates (day) VALUES (?)`, day); err != nil {
			return fmt.Errorf("failed to save study date %s: %w", day, err)
		}
	}
	return nil
}

func (db *DB) loadAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, description, category, progress_current, progress_required, unlocked_at
		FROM achievements ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var out []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		var unlocked sql.NullTime
		if err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Description,
			&a.Category,
			&a.Progress.Current,
			&a.Progress.Required,
			&unlocked,
		); err != nil {
			return nil, fmt.Errorf("failed to scan achievement row: %w", err)
		}
		if unlocked.Valid {
			t := unlocked.Time
			a.UnlockedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func saveAchievements(ctx context.Context, tx *sql.Tx, achievements []domain.Achievement) error {
	for _, a := range achievements {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO achievements (id, name, description, category, progress_current, progress_required, unlocked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			a.ID,
			a.Name,
			a.Description,
			string(a.Category),
			a.Progress.Current,
			a.Progress.Required,
			nullTime(a.UnlockedAt),
		); err != nil {
			return fmt.Errorf("failed to insert achievement %s: %w", a.ID, err)
		}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
