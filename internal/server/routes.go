package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/store"
)

type errorBody struct {
	Error      string   `json:"error"`
	Candidates []string `json:"candidates,omitempty"`
}

// writeError maps engine and store errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		amb     *store.AmbiguousLookupError
		rangeE  *engine.RangeError
		typeE   *engine.UnknownInteractionTypeError
		intensE *engine.InvalidIntensityError
	)
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &amb):
		status = http.StatusConflict
		body.Candidates = amb.UserIDs
	case errors.Is(err, store.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &rangeE), errors.As(err, &typeE), errors.As(err, &intensE),
		errors.Is(err, store.ErrInvalidSession), errors.Is(err, engine.ErrInvalidArgument):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

// pathParam returns the URL parameter. chi matches on RawPath when it is
// set, leaving the parameter escaped; otherwise it is already decoded.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func sessionKey(r *http.Request) (store.SessionKey, error) {
	return store.NewSessionKey(pathParam(r, "sessionType"), pathParam(r, "sessionID"))
}

// queryInt parses an optional integer query parameter, returning def when
// it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func (s *Server) handleListTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": s.svc.ListTiers()})
}

func (s *Server) handleTierEffect(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		badRequest(w, "level must be an integer")
		return
	}
	t, err := s.svc.TierEffect(level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	size, err := queryInt(r, "size", engine.DefaultPageSize)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	rp, err := s.svc.Ranking(r.Context(), key, page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.QueryByIdentifier(r.Context(), key, pathParam(r, "identifier"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		UserID   string `json:"user_id"`
		Nickname string `json:"nickname"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id required")
		return
	}

	p, err := s.svc.AddUser(r.Context(), key, req.UserID, req.Nickname)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleEnsureProfile(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Body is optional.
	var req struct {
		Nickname string `json:"nickname"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	p, err := s.svc.EnsureProfile(r.Context(), key, pathParam(r, "userID"), req.Nickname)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.RemoveUser(r.Context(), key, pathParam(r, "userID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Level *int `json:"level"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Level == nil {
		badRequest(w, "level required")
		return
	}

	p, err := s.svc.SetAbsoluteLevel(r.Context(), key, pathParam(r, "userID"), *req.Level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetNickname(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Nickname string `json:"nickname"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.svc.SetNickname(r.Context(), key, pathParam(r, "userID"), req.Nickname)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemoveNickname(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.svc.RemoveNickname(r.Context(), key, pathParam(r, "userID"), pathParam(r, "nickname"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		InteractionType string `json:"interaction_type"`
		Intensity       int    `json:"intensity"`
		Evidence        string `json:"evidence"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.svc.Score(r.Context(), key, pathParam(r, "userID"), req.InteractionType, req.Intensity, req.Evidence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	key, err := sessionKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	events, err := s.svc.RecentEvents(r.Context(), key, pathParam(r, "userID"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []store.ScoreEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
