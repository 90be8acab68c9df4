// Package client is a thin HTTP client for the rapport API, for hosting
// agents that run rapport as a sidecar.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/store"
	"github.com/lazypower/rapport/internal/tier"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 5 * time.Second
)

// Client talks to the rapport server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty serverURL respects the
// RAPPORT_URL env var and falls back to http://127.0.0.1:37778.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("RAPPORT_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

// APIError is a non-2xx response. Not-found and ambiguous responses are
// also reachable through errors.Is(err, store.ErrNotFound) and
// errors.As(err, **store.AmbiguousLookupError).
type APIError struct {
	Method     string
	Path       string
	Status     int
	Message    string
	Candidates []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == store.ErrNotFound && e.Status == http.StatusNotFound
}

func (e *APIError) As(target any) bool {
	amb, ok := target.(**store.AmbiguousLookupError)
	if !ok || e.Status != http.StatusConflict || len(e.Candidates) == 0 {
		return false
	}
	*amb = &store.AmbiguousLookupError{UserIDs: e.Candidates}
	return true
}

// do sends a request with an optional JSON body and decodes the JSON
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: string(data)}
		var eb struct {
			Error      string   `json:"error"`
			Candidates []string `json:"candidates"`
		}
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			apiErr.Message = eb.Error
			apiErr.Candidates = eb.Candidates
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func sessionPath(key store.SessionKey) string {
	return "/api/sessions/" + url.PathEscape(string(key.Type)) + "/" + url.PathEscape(key.ID)
}

func userPath(key store.SessionKey, userID string) string {
	return sessionPath(key) + "/users/" + url.PathEscape(userID)
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

// Score reports one classified interaction.
func (c *Client) Score(ctx context.Context, key store.SessionKey, userID, interactionType string, intensity int, evidence string) (*engine.ScoreResult, error) {
	req := map[string]any{
		"interaction_type": interactionType,
		"intensity":        intensity,
		"evidence":         evidence,
	}
	var res engine.ScoreResult
	if err := c.do(ctx, http.MethodPost, userPath(key, userID)+"/events", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EnsureProfile registers the user if needed and returns the profile.
func (c *Client) EnsureProfile(ctx context.Context, key store.SessionKey, userID, nickname string) (*engine.Profile, error) {
	var p engine.Profile
	req := map[string]string{"nickname": nickname}
	if err := c.do(ctx, http.MethodPut, userPath(key, userID), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Lookup resolves a user id or current nickname.
func (c *Client) Lookup(ctx context.Context, key store.SessionKey, identifier string) (*engine.Profile, error) {
	var p engine.Profile
	if err := c.do(ctx, http.MethodGet, sessionPath(key)+"/lookup/"+url.PathEscape(identifier), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ranking fetches one ranking page.
func (c *Client) Ranking(ctx context.Context, key store.SessionKey, page, size int) (*store.RankingPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	var rp store.RankingPage
	if err := c.do(ctx, http.MethodGet, sessionPath(key)+"/ranking?"+q.Encode(), nil, &rp); err != nil {
		return nil, err
	}
	return &rp, nil
}

// Tier resolves the tier for level.
func (c *Client) Tier(ctx context.Context, level int) (*tier.Tier, error) {
	var t tier.Tier
	if err := c.do(ctx, http.MethodGet, "/api/tiers/"+strconv.Itoa(level), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
