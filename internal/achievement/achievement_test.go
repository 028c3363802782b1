package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolstudy/internal/classify"
	"github.com/conorfennell/knolstudy/internal/domain"
)

var t0 = time.Date(2024, 7, 4, 20, 0, 0, 0, time.UTC)

func byID(as []domain.Achievement) map[string]domain.Achievement {
	m := make(map[string]domain.Achievement, len(as))
	for _, a := range as {
		m[a.ID] = a
	}
	return m
}

func TestEvaluate(t *testing.T) {
	e := NewEvaluator(nil, classify.DefaultThresholds())
	end := t0
	snap := &domain.Snapshot{
		Cards:    []domain.Card{{ID: "a", Interval: 40}, {ID: "b", Interval: 3}},
		Sessions: []domain.StudySession{{ID: "s", EndTime: &end}, {ID: "open"}},
		Streak:   domain.LearningStreak{LongestStreak: 3},
	}

	all, unlocked := e.Evaluate(snap, t0)
	require.Len(t, all, len(Catalog))

	ids := make([]string, 0, len(unlocked))
	for _, a := range unlocked {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"first_card", "first_session", "first_mature"}, ids)

	m := byID(all)
	assert.Equal(t, domain.AchievementProgress{Current: 2, Required: 50}, m["card_collector"].Progress)
	assert.Equal(t, domain.AchievementProgress{Current: 1, Required: 1}, m["first_card"].Progress)
	assert.Equal(t, domain.AchievementProgress{Current: 3, Required: 7}, m["week_streak"].Progress)
	assert.Nil(t, m["week_streak"].UnlockedAt)
	require.NotNil(t, m["first_card"].UnlockedAt)
	assert.Equal(t, t0, *m["first_card"].UnlockedAt)
}

func TestEvaluateNeverRelocks(t *testing.T) {
	e := NewEvaluator(nil, classify.DefaultThresholds())
	earlier := t0.AddDate(0, -1, 0)
	snap := &domain.Snapshot{
		Achievements: []domain.Achievement{
			{ID: "first_card", UnlockedAt: &earlier},
			{ID: "retired", Name: "Old", Category: domain.CategoryCards},
		},
	}

	all, unlocked := e.Evaluate(snap, t0)
	assert.Empty(t, unlocked)

	m := byID(all)
	require.NotNil(t, m["first_card"].UnlockedAt)
	assert.Equal(t, earlier, *m["first_card"].UnlockedAt)
	assert.Equal(t, "Old", m["retired"].Name)
	assert.Len(t, all, len(Catalog)+1)
}
