package integrity

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/knol"
)

// Result partitions the issues found in a snapshot.
type Result struct {
	IsValid  bool           `json:"isValid"`
	Errors   []domain.Issue `json:"errors"`
	Warnings []domain.Issue `json:"warnings"`
}

// Err returns a *domain.ValidationError carrying every issue when the
// snapshot has at least one error-severity issue, and nil otherwise.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &domain.ValidationError{Issues: append(slices.Clone(r.Errors), r.Warnings...)}
}

// Validator checks persisted records against field and consistency rules.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// New creates a Validator. A nil now uses time.Now.
func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("tag", validateTag)
	return &Validator{validate: v, now: now}
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func validateTag(fl validator.FieldLevel) bool {
	tag := fl.Field().String()
	return tag != "" && knol.NormalizeTag(tag) == tag
}

// collector gathers issues for one validation run.
type collector struct {
	issues []domain.Issue
}

func (c *collector) add(kind domain.IssueKind, sev domain.Severity, entity, id, field, msg string) {
	c.issues = append(c.issues, domain.Issue{
		Kind: kind, Severity: sev, Entity: entity, RecordID: id, Field: field, Message: msg,
	})
}

// Validate checks every card, session, the streak and achievements.
func (v *Validator) Validate(snap *domain.Snapshot) Result {
	c := &collector{}
	v.cards(c, snap.Cards)
	v.sessions(c, snap.Sessions)
	v.streak(c, snap.Streak)
	v.achievements(c, snap.Achievements)

	r := Result{IsValid: true}
	for _, i := range c.issues {
		if i.Severity == domain.SeverityError {
			r.Errors = append(r.Errors, i)
			r.IsValid = false
		} else {
			r.Warnings = append(r.Warnings, i)
		}
	}
	return r
}

// structFields runs the struct tag rules and maps each failure to an issue.
func (v *Validator) structFields(c *collector, entity, id string, s any) {
	err := v.validate.Struct(s)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.add(domain.InvalidType, domain.SeverityError, entity, id, "", err.Error())
		return
	}
	for _, fe := range verrs {
		kind := domain.InvalidValue
		msg := fmt.Sprintf("must satisfy %s", constraint(fe))
		switch fe.Tag() {
		case "required":
			kind = domain.MissingField
			msg = "is required"
		case "datetime":
			kind = domain.InvalidType
			msg = fmt.Sprintf("%v is not a YYYY-MM-DD date", fe.Value())
		}
		c.add(kind, domain.SeverityError, entity, id, fe.Field(), msg)
	}
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func (v *Validator) cards(c *collector, cards []domain.Card) {
	now := v.now()
	seen := make(map[string]int, len(cards))
	for _, card := range cards {
		v.structFields(c, "card", card.ID, card)

		if card.ID != "" {
			seen[card.ID]++
			if seen[card.ID] == 2 {
				c.add(domain.DuplicateID, domain.SeverityError, "card", card.ID, "id", "card id is used more than once")
			}
		}
		if !card.NextReview.IsZero() && !card.CreatedAt.IsZero() && domain.CalendarDays(card.CreatedAt, card.NextReview) < 0 {
			c.add(domain.InvalidValue, domain.SeverityWarning, "card", card.ID, "nextReview", "is before createdAt")
		}
		if card.LastReview != nil && card.LastReview.After(now) {
			c.add(domain.InvalidValue, domain.SeverityWarning, "card", card.ID, "lastReview", "is in the future")
		}
		if card.Repetitions > 0 && card.LastReview == nil {
			c.add(domain.MissingField, domain.SeverityWarning, "card", card.ID, "lastReview", "is absent on a reviewed card")
		}
	}
}

func (v *Validator) sessions(c *collector, sessions []domain.StudySession) {
	seen := make(map[string]int, len(sessions))
	for _, s := range sessions {
		v.structFields(c, "session", s.ID, s)

		if s.ID != "" {
			seen[s.ID]++
			if seen[s.ID] == 2 {
				c.add(domain.DuplicateID, domain.SeverityError, "session", s.ID, "id", "session id is used more than once")
			}
		}
		if s.CardsStudied != s.CorrectAnswers+s.IncorrectAnswers {
			c.add(domain.InvalidValue, domain.SeverityError, "session", s.ID, "cardsStudied",
				fmt.Sprintf("%d does not equal correct %d plus incorrect %d", s.CardsStudied, s.CorrectAnswers, s.IncorrectAnswers))
		}
		if s.EndTime == nil {
			c.add(domain.MissingField, domain.SeverityWarning, "session", s.ID, "endTime", "session in history never ended")
			continue
		}
		if s.EndTime.Before(s.StartTime) {
			c.add(domain.InvalidValue, domain.SeverityError, "session", s.ID, "endTime", "is before startTime")
		} else if s.Duration.Truncate(time.Millisecond) != s.EndTime.Sub(s.StartTime).Truncate(time.Millisecond) {
			// Stores keep durations at millisecond precision.
			c.add(domain.InvalidValue, domain.SeverityWarning, "session", s.ID, "duration", "does not match endTime minus startTime")
		}
	}
}

func (v *Validator) streak(c *collector, s domain.LearningStreak) {
	before := len(c.issues)
	v.structFields(c, "streak", "", s)
	if len(c.issues) > before {
		// Date checks below need parseable dates.
		return
	}

	for i := 1; i < len(s.StudyDates); i++ {
		switch strings.Compare(s.StudyDates[i-1], s.StudyDates[i]) {
		case 0:
			c.add(domain.InvalidValue, domain.SeverityError, "streak", "", "studyDates",
				fmt.Sprintf("%s appears more than once", s.StudyDates[i]))
		case 1:
			c.add(domain.InvalidValue, domain.SeverityWarning, "streak", "", "studyDates", "dates are not sorted ascending")
		}
	}
	if s.LastStudyDate != "" && !slices.Contains(s.StudyDates, s.LastStudyDate) {
		c.add(domain.InvalidValue, domain.SeverityWarning, "streak", "", "lastStudyDate", "is not among the study dates")
	}
	if s.CurrentStreak > len(s.StudyDates) {
		c.add(domain.InvalidValue, domain.SeverityWarning, "streak", "", "currentStreak", "exceeds the number of study dates")
	}
}

func (v *Validator) achievements(c *collector, achievements []domain.Achievement) {
	seen := make(map[string]int, len(achievements))
	for _, a := range achievements {
		v.structFields(c, "achievement", a.ID, a)

		if a.ID != "" {
			seen[a.ID]++
			if seen[a.ID] == 2 {
				c.add(domain.DuplicateID, domain.SeverityError, "achievement", a.ID, "id", "achievement id is used more than once")
			}
		}
		if !a.Unlocked() && a.Progress.Required > 0 && a.Progress.Current >= a.Progress.Required {
			c.add(domain.InvalidValue, domain.SeverityWarning, "achievement", a.ID, "unlockedAt", "requirement met but not unlocked")
		}
	}
}
