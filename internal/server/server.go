package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/store"
	"github.com/lazypower/rapport/internal/tier"
)

//go:generate mockgen -destination=mock_service_test.go -package=server . Service

// Service is the part of the engine the HTTP API exposes.
type Service interface {
	Ping(ctx context.Context) error
	ListTiers() []tier.Tier
	TierEffect(level int) (tier.Tier, error)

	EnsureProfile(ctx context.Context, key store.SessionKey, userID, nickname string) (*engine.Profile, error)
	Score(ctx context.Context, key store.SessionKey, userID, interactionType string, intensity int, evidence string) (*engine.ScoreResult, error)
	QueryByIdentifier(ctx context.Context, key store.SessionKey, identifier string) (*engine.Profile, error)
	SetAbsoluteLevel(ctx context.Context, key store.SessionKey, userID string, level int) (*engine.Profile, error)
	AddUser(ctx context.Context, key store.SessionKey, userID, nickname string) (*engine.Profile, error)
	RemoveUser(ctx context.Context, key store.SessionKey, userID string) error
	SetNickname(ctx context.Context, key store.SessionKey, userID, nickname string) (*engine.Profile, error)
	RemoveNickname(ctx context.Context, key store.SessionKey, userID, nickname string) error
	Ranking(ctx context.Context, key store.SessionKey, page, size int) (*store.RankingPage, error)
	RecentEvents(ctx context.Context, key store.SessionKey, userID string, limit int) ([]store.ScoreEvent, error)
}

var _ Service = (*engine.Engine)(nil)

// Server is the rapport HTTP API server.
type Server struct {
	svc     Service
	router  chi.Router
	version string
	started time.Time
	log     *zap.Logger
}

// New creates a new Server over svc. A nil logger discards request logs.
func New(svc Service, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:     svc,
		version: version,
		started: time.Now(),
		log:     log,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/tiers", s.handleListTiers)
		r.Get("/tiers/{level}", s.handleTierEffect)

		r.Route("/sessions/{sessionType}/{sessionID}", func(r chi.Router) {
			r.Get("/ranking", s.handleRanking)
			r.Get("/lookup/{identifier}", s.handleLookup)

			r.Post("/users", s.handleAddUser)
			r.Route("/users/{userID}", func(r chi.Router) {
				r.Put("/", s.handleEnsureProfile)
				r.Delete("/", s.handleRemoveUser)
				r.Put("/level", s.handleSetLevel)
				r.Put("/nickname", s.handleSetNickname)
				r.Delete("/nickname/{nickname}", s.handleRemoveNickname)
				r.Post("/events", s.handleScore)
				r.Get("/events", s.handleRecentEvents)
			})
		})
	})

	s.router = r
}

// logRequests writes one debug line per request, or a warning for 5xx.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.log.Warn("request", fields...)
			return
		}
		s.log.Debug("request", fields...)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.svc.Ping(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
