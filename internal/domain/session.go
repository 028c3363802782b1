package domain

import (
	"encoding/json"
	"time"
)

// SessionType selects which cards a study session draws from.
type SessionType string

const (
	SessionDue    SessionType = "due"
	SessionCustom SessionType = "custom"
	SessionNew    SessionType = "new"
	SessionReview SessionType = "review"
	SessionAll    SessionType = "all"
)

// SessionTypes lists every accepted session type.
var SessionTypes = []SessionType{SessionDue, SessionCustom, SessionNew, SessionReview, SessionAll}

// Valid reports whether t is one of the known session types.
func (t SessionType) Valid() bool {
	for _, known := range SessionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// StudySession records one bounded study interval.
// EndTime is nil while the session is active. Duration is encoded in JSON
// as whole milliseconds.
type StudySession struct {
	ID                string        `json:"id" validate:"required"`
	StartTime         time.Time     `json:"startTime" validate:"required"`
	EndTime           *time.Time    `json:"endTime,omitempty"`
	Type              SessionType   `json:"sessionType" validate:"oneof=due custom new review all"`
	CardsStudied      int           `json:"cardsStudied" validate:"gte=0"`
	CorrectAnswers    int           `json:"correctAnswers" validate:"gte=0"`
	IncorrectAnswers  int           `json:"incorrectAnswers" validate:"gte=0"`
	AverageDifficulty float64       `json:"averageDifficulty" validate:"gte=0,lte=4"`
	Duration          time.Duration `json:"duration" validate:"gte=0"`
	QuitEarly         bool          `json:"quitEarly"`
	Reviews           []ReviewEvent `json:"reviews,omitempty"`
}

// MarshalJSON writes Duration in milliseconds.
func (s StudySession) MarshalJSON() ([]byte, error) {
	type plain StudySession
	return json.Marshal(struct {
		plain
		Duration int64 `json:"duration"`
	}{plain(s), s.Duration.Milliseconds()})
}

// UnmarshalJSON reads Duration in milliseconds.
func (s *StudySession) UnmarshalJSON(b []byte) error {
	type plain StudySession
	aux := struct {
		*plain
		Duration int64 `json:"duration"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.Duration = time.Duration(aux.Duration) * time.Millisecond
	return nil
}

// Ended reports whether the session has reached its terminal state.
func (s StudySession) Ended() bool {
	return s.EndTime != nil
}

// Accuracy returns the percentage of correct answers, or 0 when nothing was studied.
func (s StudySession) Accuracy() float64 {
	if s.CardsStudied == 0 {
		return 0
	}
	return float64(s.CorrectAnswers) / float64(s.CardsStudied) * 100
}

// ReviewEvent records a single review made during a session.
type ReviewEvent struct {
	CardID    string    `json:"cardId"`
	Quality   Quality   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionResults carries the final counts supplied when a session ends.
type SessionResults struct {
	CardsStudied     int
	CorrectAnswers   int
	IncorrectAnswers int
	QuitEarly        bool
}
