package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/conorfennell/knolstudy/internal/domain"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.ObserveReview(domain.Good)
	m.ObserveReview(domain.Good)
	m.ObserveReview(domain.Blackout)
	m.ObserveSession(domain.StudySession{Type: domain.SessionDue})
	m.SetCardsDue(12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reviews.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reviews.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("due")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.cardsDue))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `knolstudy_reviews_total{quality="3"} 2`), body)
	assert.Contains(t, body, "knolstudy_cards_due 12")
}
