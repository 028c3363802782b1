package achievement

import (
	"time"

	"github.com/conorfennell/knolstudy/internal/classify"
	"github.com/conorfennell/knolstudy/internal/domain"
)

// Definition describes an achievement and the count it requires.
type Definition struct {
	ID          string
	Name        string
	Description string
	Category    domain.AchievementCategory
	Required    int
}

// Catalog is the built-in set of achievements.
var Catalog = []Definition{
	{"first_card", "First Card", "Add your first card", domain.CategoryCards, 1},
	{"card_collector", "Card Collector", "Build a deck of 50 cards", domain.CategoryCards, 50},
	{"library", "Library", "Build a deck of 500 cards", domain.CategoryCards, 500},
	{"first_session", "First Steps", "Complete a study session", domain.CategorySessions, 1},
	{"dedicated", "Dedicated", "Complete 10 study sessions", domain.CategorySessions, 10},
	{"scholar", "Scholar", "Complete 100 study sessions", domain.CategorySessions, 100},
	{"week_streak", "Week Streak", "Study 7 days in a row", domain.CategoryStreaks, 7},
	{"month_streak", "Month Streak", "Study 30 days in a row", domain.CategoryStreaks, 30},
	{"first_mature", "Long Term Memory", "Grow a card to mature", domain.CategoryMastery, 1},
	{"mature_50", "Deep Roots", "Grow 50 cards to mature", domain.CategoryMastery, 50},
}

// Evaluator recomputes achievement progress from a snapshot.
type Evaluator struct {
	catalog    []Definition
	thresholds classify.Thresholds
}

// NewEvaluator creates an Evaluator over the given catalog; nil uses Catalog.
func NewEvaluator(catalog []Definition, th classify.Thresholds) *Evaluator {
	if catalog == nil {
		catalog = Catalog
	}
	return &Evaluator{catalog: catalog, thresholds: th}
}

// Evaluate returns the updated achievement list and the ones unlocked by this call.
// Unlocks are never reverted, and achievements missing from the catalog are kept untouched.
func (e *Evaluator) Evaluate(snap *domain.Snapshot, now time.Time) (all, unlocked []domain.Achievement) {
	existing := make(map[string]domain.Achievement, len(snap.Achievements))
	for _, a := range snap.Achievements {
		existing[a.ID] = a
	}
	counts := e.measure(snap)

	for _, def := range e.catalog {
		a, ok := existing[def.ID]
		if !ok {
			a = domain.Achievement{ID: def.ID}
		}
		delete(existing, def.ID)
		a.Name = def.Name
		a.Description = def.Description
		a.Category = def.Category
		a.Progress = domain.AchievementProgress{Current: counts[def.Category], Required: def.Required}

		if !a.Unlocked() && a.Progress.Current >= a.Progress.Required {
			at := now
			a.UnlockedAt = &at
			unlocked = append(unlocked, a)
		}
		if a.Unlocked() {
			a.Progress.Current = a.Progress.Required
		}
		all = append(all, a)
	}

	// Preserve input order for anything the catalog no longer defines.
	for _, a := range snap.Achievements {
		if _, ok := existing[a.ID]; ok {
			all = append(all, a)
		}
	}
	return all, unlocked
}

func (e *Evaluator) measure(snap *domain.Snapshot) map[domain.AchievementCategory]int {
	mature := 0
	for _, c := range snap.Cards {
		if e.thresholds.Classify(c) == classify.Mature {
			mature++
		}
	}
	completed := 0
	for _, s := range snap.Sessions {
		if s.Ended() {
			completed++
		}
	}
	return map[domain.AchievementCategory]int{
		domain.CategoryCards:    len(snap.Cards),
		domain.CategorySessions: completed,
		domain.CategoryStreaks:  snap.Streak.LongestStreak,
		domain.CategoryMastery:  mature,
	}
}
