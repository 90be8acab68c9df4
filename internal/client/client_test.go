package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/server"
	"github.com/lazypower/rapport/internal/store"
)

var g1 = store.SessionKey{Type: store.SessionGroup, ID: "g1"}

func testClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Scoring.DayBoundary = "UTC"

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	table, err := cfg.TierTable()
	require.NoError(t, err)
	eng, err := engine.New(db, table, cfg)
	require.NoError(t, err)
	t.Cleanup(eng.Stop)

	ts := httptest.NewServer(server.New(eng, "test", nil))
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("RAPPORT_URL", "")
	assert.Equal(t, defaultServerURL, New("").serverURL)

	t.Setenv("RAPPORT_URL", "http://agent:9000")
	assert.Equal(t, "http://agent:9000", New("").serverURL)
	assert.Equal(t, "http://x", New("http://x").serverURL)
}

func TestHealthy(t *testing.T) {
	c := testClient(t)
	assert.True(t, c.Healthy(context.Background()))

	assert.False(t, New("http://127.0.0.1:1").Healthy(context.Background()))
}

func TestScoreAndLookup(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	p, err := c.EnsureProfile(ctx, g1, "u1", "big sam")
	require.NoError(t, err)
	assert.Equal(t, "big sam", p.Nickname)

	r, err := c.Score(ctx, g1, "u1", "thanks", 2, "thank you")
	require.NoError(t, err)
	assert.Equal(t, 5, r.Delta)
	assert.Equal(t, "neutral", r.Tier)

	p, err = c.Lookup(ctx, g1, "big sam")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, 5, p.Level)
	require.NotNil(t, p.LastInteractionAt)

	rp, err := c.Ranking(ctx, g1, 1, 5)
	require.NoError(t, err)
	require.Len(t, rp.Entries, 1)
	assert.Equal(t, 1, rp.Entries[0].Rank)
}

func TestErrors(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	_, err := c.Lookup(ctx, g1, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.EnsureProfile(ctx, g1, "u2", "sam")
	require.NoError(t, err)
	_, err = c.EnsureProfile(ctx, g1, "u3", "sam")
	require.NoError(t, err)

	_, err = c.Lookup(ctx, g1, "sam")
	var amb *store.AmbiguousLookupError
	require.True(t, errors.As(err, &amb), "got %v", err)
	assert.Equal(t, []string{"u2", "u3"}, amb.UserIDs)

	_, err = c.Score(ctx, g1, "u2", "thanks", 7, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status)
	assert.Contains(t, apiErr.Message, "intensity")
}

func TestTier(t *testing.T) {
	c := testClient(t)

	tr, err := c.Tier(context.Background(), -60)
	require.NoError(t, err)
	assert.Equal(t, "hostile", tr.Name)

	_, err = c.Tier(context.Background(), 1000)
	assert.Error(t, err)
}
