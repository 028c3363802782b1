package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conorfennell/knolstudy/internal/classify"
	"github.com/conorfennell/knolstudy/internal/domain"
	"github.com/conorfennell/knolstudy/internal/report"
	"github.com/conorfennell/knolstudy/internal/stats"
	"github.com/conorfennell/knolstudy/internal/streak"
	"github.com/conorfennell/knolstudy/internal/study"
)

// Options configure the reporting windows served by default.
type Options struct {
	StreakDays   int
	ProgressDays int
	Metrics      http.Handler
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	svc     *study.Service
	stats   *stats.Aggregator
	streaks *streak.Tracker
	logger  *slog.Logger
	opts    Options
	router  chi.Router
}

// NewServer creates and configures a new server.
func NewServer(svc *study.Service, agg *stats.Aggregator, tracker *streak.Tracker, logger *slog.Logger, opts Options) *Server {
	if opts.StreakDays <= 0 {
		opts.StreakDays = 30
	}
	if opts.ProgressDays <= 0 {
		opts.ProgressDays = 7
	}
	s := &Server{
		svc:     svc,
		stats:   agg,
		streaks: tracker,
		logger:  logger,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/stats", s.handleBasicStats())
	s.router.Get("/stats/extended", s.handleExtendedStats())
	s.router.Get("/stats/tags", s.handleTagStats())
	s.router.Get("/stats/progress", s.handleProgress())

	s.router.Get("/streak", s.handleStreak())
	s.router.Get("/streak/visualization", s.handleStreakVisualization())

	s.router.Get("/cards", s.handleCards(""))
	s.router.Get("/cards/due", s.handleCards(domain.SessionDue))
	s.router.Get("/cards/{id}", s.handleGetCard())
	s.router.Get("/achievements", s.handleAchievements())

	s.router.Post("/sessions", s.handleStartSession())
	s.router.Get("/sessions/{id}", s.handleGetSession())
	s.router.Post("/sessions/{id}/reviews", s.handleReview())
	s.router.Post("/sessions/{id}/end", s.handleEndSession())

	s.router.Post("/sources", s.handleImport())
	s.router.Get("/integrity", s.handleIntegrity())

	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics)
	}
}

func (s *Server) handleBasicStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, s.stats.BasicOrDefault(r.Context()))
	}
}

func (s *Server) handleExtendedStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, s.stats.ExtendedOrDefault(r.Context()))
	}
}

func (s *Server) handleTagStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, nonNil(s.stats.TagsOrDefault(r.Context())))
	}
}

func (s *Server) handleProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := intParam(r, "days", s.opts.ProgressDays)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, nonNil(s.stats.ProgressOrDefault(r.Context(), days)))
	}
}

func (s *Server) handleStreak() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.streaks.Summary(r.Context())
		respondJSON(w, http.StatusOK, report.Zero(s.logger, "streak summary", sum, err))
	}
}

func (s *Server) handleStreakVisualization() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := intParam(r, "days", s.opts.StreakDays)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		seq, err := s.streaks.Visualization(r.Context(), days)
		if err != nil {
			s.logger.Warn("streak visualization unavailable", "error", err)
			respondJSON(w, http.StatusOK, []streak.Day{})
			return
		}
		respondJSON(w, http.StatusOK, nonNil(slices.Collect(seq)))
	}
}

// handleCards lists the card pool of a session type, taken from ?type= when
// fixed is empty. ?tag=, ?difficulty=, ?dueOnly= and ?limit= narrow the result.
func (s *Server) handleCards(fixed domain.SessionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		typ := fixed
		if typ == "" {
			typ = domain.SessionType(q.Get("type"))
			if typ == "" {
				typ = domain.SessionAll
			}
		}
		if !typ.Valid() {
			respondError(w, http.StatusBadRequest, "unknown session type "+strconv.Quote(string(typ)))
			return
		}
		limit, err := intParam(r, "limit", 0)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		f := classify.Filter{
			Tags:       q["tag"],
			Difficulty: classify.Difficulty(q.Get("difficulty")),
			DueOnly:    q.Get("dueOnly") == "true",
			Limit:      limit,
		}
		cards, err := s.svc.SelectCards(r.Context(), typ, f)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, nonNil(cards))
	}
}

func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := s.svc.Card(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, card)
	}
}

func (s *Server) handleAchievements() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.svc.Achievements(r.Context())
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, nonNil(list))
	}
}

func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type domain.SessionType `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Type == "" {
			req.Type = domain.SessionDue
		}
		if !req.Type.Valid() {
			respondError(w, http.StatusBadRequest, "unknown session type "+strconv.Quote(string(req.Type)))
			return
		}
		sess, err := s.svc.StartSession(req.Type)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, sess)
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.svc.Session(chi.URLParam(r, "id"))
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, sess)
	}
}

func (s *Server) handleReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CardID  string `json:"cardId"`
			Quality *int   `json:"quality"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CardID == "" || req.Quality == nil {
			respondError(w, http.StatusBadRequest, "cardId and quality are required")
			return
		}

		card, sess, err := s.svc.Review(r.Context(), chi.URLParam(r, "id"), req.CardID, domain.Quality(*req.Quality))
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"card":    card,
			"session": sess,
		})
	}
}

func (s *Server) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuitEarly bool `json:"quitEarly"`
		}
		// An empty body ends the session normally.
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		res, err := s.svc.EndSession(r.Context(), chi.URLParam(r, "id"), req.QuitEarly)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Path) == "" {
			respondError(w, http.StatusBadRequest, "path cannot be empty")
			return
		}
		rep, err := s.svc.Import(r.Context(), req.Path)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handleIntegrity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.svc.Validate(r.Context())
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrSessionEnded), errors.Is(err, domain.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuality):
		return http.StatusBadRequest
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, study.ErrNoImporter):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, status, map[string]any{"error": err.Error(), "issues": verr.Issues})
		return
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
