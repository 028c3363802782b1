package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolstudy/internal/classify"
	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/metrics"
	"github.com/conorfennell/knolstudy/internal/stats"
	"github.com/conorfennell/knolstudy/internal/storage"
	"github.com/conorfennell/knolstudy/internal/streak"
	"github.com/conorfennell/knolstudy/internal/study"
)

var t0 = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func newCard(id string, tags ...string) domain.Card {
	return domain.Card{
		ID:         id,
		Front:      "front " + id,
		Back:       "back " + id,
		Tags:       tags,
		Easiness:   2.5,
		Interval:   1,
		NextReview: t0,
		CreatedAt:  t0.AddDate(0, 0, -1),
	}
}

func newTestServer(t *testing.T, snap *domain.Snapshot) *httptest.Server {
	t.Helper()
	now := func() time.Time { return t0 }
	logger := slog.New(slog.DiscardHandler)
	m := metrics.New()
	svc := study.NewService(study.Deps{
		Store:    storage.NewMemory(snap),
		Observer: m,
		Logger:   logger,
		Now:      now,
	})
	th := classify.DefaultThresholds()
	srv := NewServer(svc,
		stats.NewAggregator(svc, th, now, logger),
		streak.NewTracker(svc, now),
		logger,
		Options{Metrics: m.Handler()},
	)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body == "" {
		req.ContentLength = 0
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSessionEndpoints(t *testing.T) {
	ts := newTestServer(t, &domain.Snapshot{
		Cards: []domain.Card{newCard("a", "go"), newCard("b", "sql")},
	})

	var due []domain.Card
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/cards/due?tag=go", "", &due))
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].ID)

	var sess domain.StudySession
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, ts.URL+"/sessions", `{"type":"due"}`, &sess))
	assert.Equal(t, domain.SessionDue, sess.Type)

	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/sessions", `{"type":"all"}`, nil))

	reviewURL := fmt.Sprintf("%s/sessions/%s/reviews", ts.URL, sess.ID)
	var reviewed struct {
		Card    domain.Card         `json:"card"`
		Session domain.StudySession `json:"session"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, reviewURL, `{"cardId":"a","quality":4}`, &reviewed))
	assert.Equal(t, 1, reviewed.Card.Repetitions)
	assert.Equal(t, 1, reviewed.Session.CorrectAnswers)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, reviewURL, `{"cardId":"a","quality":9}`, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, reviewURL, `{"cardId":"a"}`, nil))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, reviewURL, `{"cardId":"zz","quality":3}`, nil))

	var ended study.EndResult
	endURL := fmt.Sprintf("%s/sessions/%s/end", ts.URL, sess.ID)
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, endURL, "", &ended))
	assert.Equal(t, 1, ended.Session.CardsStudied)
	assert.Equal(t, 1, ended.Streak.CurrentStreak)

	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, endURL, `{"quitEarly":true}`, nil))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/sessions/unknown", "", nil))

	var summary streak.Summary
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/streak", "", &summary))
	assert.Equal(t, 1, summary.Current)
	assert.True(t, summary.StudiedToday)

	var days []streak.Day
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/streak/visualization?days=3", "", &days))
	require.Len(t, days, 3)
	assert.True(t, days[2].Studied)
	assert.False(t, days[0].Studied)

	var achievements []domain.Achievement
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/achievements", "", &achievements))
	assert.NotEmpty(t, achievements)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `knolstudy_reviews_total{quality="4"} 1`)
}

func TestStatsEndpoints(t *testing.T) {
	ts := newTestServer(t, &domain.Snapshot{
		Cards: []domain.Card{newCard("a", "go"), newCard("b", "go", "sql")},
	})

	var basic stats.Basic
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/stats", "", &basic))
	assert.Equal(t, 2, basic.TotalCards)
	assert.Equal(t, 2, basic.DueToday)

	var ext stats.Extended
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/stats/extended", "", &ext))
	assert.Equal(t, 2.5, ext.AverageEasiness)

	var tags []stats.TagCount
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/stats/tags", "", &tags))
	require.Len(t, tags, 2)
	assert.Equal(t, "go", tags[0].Tag)

	var progress []stats.DayProgress
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/stats/progress?days=7", "", &progress))
	assert.Empty(t, progress)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/stats/progress?days=x", "", nil))
}

func TestImportWithoutImporter(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/sources", `{"path":" "}`, nil))
	assert.Equal(t, http.StatusNotImplemented, do(t, http.MethodPost, ts.URL+"/sources", `{"path":"/tmp/decks"}`, nil))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("card x: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("session x: %w", domain.ErrSessionEnded), http.StatusConflict},
		{domain.ErrSessionActive, http.StatusConflict},
		{domain.ErrInvalidQuality, http.StatusBadRequest},
		{&domain.ValidationError{}, http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCardsBySessionType(t *testing.T) {
	seen := newCard("r", "go")
	seen.Repetitions = 3
	seen.Interval = 10
	last := t0.AddDate(0, 0, -10)
	seen.LastReview = &last
	later := newCard("n2", "sql")
	later.NextReview = t0.AddDate(0, 0, 3)

	ts := newTestServer(t, &domain.Snapshot{
		Cards: []domain.Card{newCard("n1", "go"), later, seen},
	})

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"n1", "n2", "r"}},
		{"?type=new", []string{"n1", "n2"}},
		{"?type=new&dueOnly=true", []string{"n1"}},
		{"?type=review", []string{"r"}},
		{"?type=due&tag=go", []string{"n1", "r"}},
		{"?type=custom&difficulty=young", []string{"r"}},
		{"?type=custom&tag=sql&tag=go&limit=2", []string{"n1", "n2"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var cards []domain.Card
			require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/cards"+tt.query, "", &cards))
			var ids []string
			for _, c := range cards {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/cards?type=weekly", "", nil))
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/cards?limit=-1", "", nil))
}
