package domain

import "time"

// LearningStreak tracks consecutive study days.
// StudyDates holds unique YYYY-MM-DD strings sorted ascending.
type LearningStreak struct {
	CurrentStreak int      `json:"currentStreak" validate:"gte=0"`
	LongestStreak int      `json:"longestStreak" validate:"gte=0"`
	LastStudyDate string   `json:"lastStudyDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StudyDates    []string `json:"studyDates" validate:"dive,datetime=2006-01-02"`
}

// AchievementCategory groups achievements by what they measure.
type AchievementCategory string

const (
	CategoryCards    AchievementCategory = "cards"
	CategorySessions AchievementCategory = "sessions"
	CategoryStreaks  AchievementCategory = "streaks"
	CategoryMastery  AchievementCategory = "mastery"
)

// Achievement is a milestone that unlocks once its progress reaches the requirement.
// UnlockedAt is never cleared once set.
type Achievement struct {
	ID          string              `json:"id" validate:"required"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    AchievementCategory `json:"category" validate:"oneof=cards sessions streaks mastery"`
	Progress    AchievementProgress `json:"progress"`
	UnlockedAt  *time.Time          `json:"unlockedAt,omitempty"`
}

// AchievementProgress is the current count measured against the unlock requirement.
type AchievementProgress struct {
	Current  int `json:"current" validate:"gte=0"`
	Required int `json:"required" validate:"gte=0"`
}

// Unlocked reports whether the achievement has been earned.
func (a Achievement) Unlocked() bool {
	return a.UnlockedAt != nil
}

// Snapshot is the full persisted state handed between storage and the core.
type Snapshot struct {
	Cards        []Card         `json:"cards"`
	Sessions     []StudySession `json:"sessionHistory"`
	Streak       LearningStreak `json:"learningStreak"`
	Achievements []Achievement  `json:"achievements"`
}

// CardIndex returns the position of the card with the given ID, or -1.
func (s *Snapshot) CardIndex(id string) int {
	for i := range s.Cards {
		if s.Cards[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Cards:        make([]Card, len(s.Cards)),
		Sessions:     make([]StudySession, len(s.Sessions)),
		Achievements: make([]Achievement, len(s.Achievements)),
		Streak:       s.Streak,
	}
	out.Streak.StudyDates = append([]string(nil), s.Streak.StudyDates...)
	for i, c := range s.Cards {
		c.Tags = append([]string(nil), c.Tags...)
		c.LastReview = cloneTime(c.LastReview)
		out.Cards[i] = c
	}
	for i, sess := range s.Sessions {
		sess.EndTime = cloneTime(sess.EndTime)
		sess.Reviews = append([]ReviewEvent(nil), sess.Reviews...)
		out.Sessions[i] = sess
	}
	for i, a := range s.Achievements {
		a.UnlockedAt = cloneTime(a.UnlockedAt)
		out.Achievements[i] = a
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
