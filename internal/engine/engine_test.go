package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

var group = store.SessionKey{Type: store.SessionGroup, ID: "g1"}

func newTestEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *fakeClock) {
	t.Helper()
	cfg := config.Default()
	cfg.Scoring.DayBoundary = "UTC"
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	table, err := cfg.TierTable()
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	e, err := New(db, table, cfg, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e, clock
}

func score(t *testing.T, e *Engine, userID, typ string, intensity int) *ScoreResult {
	t.Helper()
	r, err := e.Score(context.Background(), group, userID, typ, intensity, "")
	require.NoError(t, err)
	return r
}

func TestRoundDiv(t *testing.T) {
	tests := []struct{ a, want int }{
		{460, 5}, {450, 5}, {449, 4}, {250, 3}, {150, 2}, {0, 0},
		{-160, -2}, {-150, -2}, {-149, -1}, {-1250, -13},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, roundDiv(tt.a, 100), "roundDiv(%d, 100)", tt.a)
	}
}

func TestThanksRepeatSequence(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	wantDeltas := []int{5, 4, 3, 2, 2}
	wantMul := []float64{1, 0.75, 0.5, 0.3, 0.3}
	level := 0
	for i := range wantDeltas {
		r := score(t, e, "u1", "thanks", 2)
		assert.Equal(t, 5, r.RawDelta, "event %d", i+1)
		assert.Equal(t, wantMul[i], r.AntiSpamMul, "event %d", i+1)
		assert.Equal(t, wantDeltas[i], r.Delta, "event %d", i+1)
		assert.LessOrEqual(t, r.Delta, 12)
		level += r.Delta
		assert.Equal(t, level, r.NewLevel)
		clock.Advance(10 * time.Second)
	}
	assert.Equal(t, 16, level)
}

func TestRepeatWindowBoundary(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	assert.Equal(t, 5, score(t, e, "u1", "thanks", 2).Delta)
	clock.Advance(120 * time.Second)
	assert.Equal(t, 4, score(t, e, "u1", "thanks", 2).Delta, "120s is still inside the window")

	e2, clock2 := newTestEngine(t, nil)
	assert.Equal(t, 5, score(t, e2, "u1", "thanks", 2).Delta)
	clock2.Advance(121 * time.Second)
	assert.Equal(t, 5, score(t, e2, "u1", "thanks", 2).Delta)
}

func TestRepeatDecayIsPerType(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	assert.Equal(t, 5, score(t, e, "u1", "thanks", 2).Delta)
	assert.Equal(t, 2, score(t, e, "u1", "small_talk", 2).Delta)
	assert.Equal(t, 4, score(t, e, "u1", "thanks", 2).Delta)
}

func TestNegativeEventsNeverDecayed(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	for i := 0; i < 6; i++ {
		r := score(t, e, "u1", "rude", 2)
		assert.Equal(t, -6, r.Delta, "event %d", i+1)
		assert.Equal(t, 1.0, r.AntiSpamMul)
		assert.Equal(t, 1.0, r.BiasMul)
	}

	r := score(t, e, "u1", "abuse", 3)
	assert.Equal(t, -13, r.RawDelta)
	assert.Equal(t, -12, r.Delta)
	assert.True(t, r.Clips.PerEvent)
	assert.Equal(t, -48, r.NewLevel)
}

func TestPerEventClamp(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	r := score(t, e, "u1", "celebration", 3)
	assert.Equal(t, 13, r.RawDelta)
	assert.Equal(t, 12, r.Delta)
	assert.True(t, r.Clips.PerEvent)
	assert.False(t, r.Clips.WindowPositive)
}

func TestTenMinuteCap(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	r := score(t, e, "u1", "celebration", 3)
	assert.Equal(t, 12, r.Delta)

	clock.Advance(time.Minute)
	r = score(t, e, "u1", "deep_talk", 3)
	assert.Equal(t, 8, r.Delta)
	assert.True(t, r.Clips.WindowPositive)

	clock.Advance(time.Minute)
	r = score(t, e, "u1", "helpful_dialogue", 3)
	assert.Equal(t, 0, r.Delta)
	assert.True(t, r.Clips.WindowPositive)
	assert.Equal(t, 20, r.NewLevel)

	// Negatives are not held back by the positive caps.
	r = score(t, e, "u1", "rude", 2)
	assert.Equal(t, -6, r.Delta)

	// The window slides: 10 minutes after the first event its gain drops out.
	clock.Set(time.Date(2026, 3, 1, 8, 10, 1, 0, time.UTC))
	r = score(t, e, "u1", "small_talk", 2)
	assert.Equal(t, 2, r.Delta)
}

func TestDailyCap(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	var deltas []int
	for i := 0; i < 6; i++ {
		deltas = append(deltas, score(t, e, "u1", "celebration", 3).Delta)
		clock.Advance(11 * time.Minute)
	}
	assert.Equal(t, []int{12, 12, 12, 12, 2, 0}, deltas)

	p, err := e.QueryByIdentifier(context.Background(), group, "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, p.Level)
	assert.Equal(t, 50, p.DailyPosGain)

	// Next calendar day in UTC resets the accumulator.
	clock.Set(time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC))
	r := score(t, e, "u1", "celebration", 3)
	assert.Equal(t, 12, r.Delta)
	assert.False(t, r.Clips.DailyPositive)
}

func TestDayBoundaryZones(t *testing.T) {
	fill := func(e *Engine, clock *fakeClock) {
		clock.Set(time.Date(2026, 3, 1, 13, 50, 0, 0, time.UTC))
		for i := 0; i < 5; i++ {
			score(t, e, "u1", "celebration", 3)
			clock.Advance(11 * time.Minute)
		}
	}
	after := time.Date(2026, 3, 1, 15, 10, 0, 0, time.UTC)

	// Tokyo midnight is 15:00 UTC, so 15:10 UTC is a new day there.
	tokyo, clock := newTestEngine(t, func(c *config.Config) { c.Scoring.DayBoundary = "Asia/Tokyo" })
	fill(tokyo, clock)
	clock.Set(after)
	r := score(t, tokyo, "u1", "celebration", 3)
	assert.Equal(t, 12, r.Delta)

	utc, clock := newTestEngine(t, nil)
	fill(utc, clock)
	clock.Set(after)
	r = score(t, utc, "u1", "celebration", 3)
	assert.Equal(t, 0, r.Delta)
	assert.True(t, r.Clips.DailyPositive)
}

func TestLevelBoundClamp(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.AddUser(ctx, group, "u1", "")
	require.NoError(t, err)
	_, err = e.SetAbsoluteLevel(ctx, group, "u1", 95)
	require.NoError(t, err)

	r := score(t, e, "u1", "celebration", 3)
	assert.Equal(t, 5, r.Delta)
	assert.Equal(t, 100, r.NewLevel)
	assert.True(t, r.Clips.LevelBound)

	events, err := e.RecentEvents(ctx, group, "u1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 5, events[0].FinalDelta, "audit row records the applied delta")
	assert.Contains(t, events[0].CapClips, "level_bound")

	p, err := e.QueryByIdentifier(ctx, group, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.DailyPosGain)
}

func TestScoreRegistersUser(t *testing.T) {
	e, clock := newTestEngine(t, func(c *config.Config) { c.Levels.Initial = 5 })

	r := score(t, e, "newbie", "small_talk", 2)
	assert.Equal(t, 5, r.OldLevel)
	assert.Equal(t, 7, r.NewLevel)
	assert.Equal(t, "neutral", r.Tier)
	assert.NotEmpty(t, r.EventID)

	p, err := e.QueryByIdentifier(context.Background(), group, "newbie")
	require.NoError(t, err)
	require.NotNil(t, p.LastInteractionAt)
	assert.True(t, p.LastInteractionAt.Equal(clock.Now()))
}

func TestScoreRejectsWithoutMutation(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.Score(ctx, group, "u1", "hug", 2, "")
	var ute *UnknownInteractionTypeError
	assert.True(t, errors.As(err, &ute), "got %v", err)

	for _, in := range []int{0, 4, -1} {
		_, err = e.Score(ctx, group, "u1", "thanks", in, "")
		var iie *InvalidIntensityError
		assert.True(t, errors.As(err, &iie), "intensity %d: got %v", in, err)
	}

	_, err = e.Score(ctx, store.SessionKey{Type: "channel", ID: "x"}, "u1", "thanks", 2, "")
	assert.ErrorIs(t, err, store.ErrInvalidSession)

	_, err = e.Score(ctx, group, "  ", "thanks", 2, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.QueryByIdentifier(ctx, group, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	events, err := e.RecentEvents(ctx, group, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEvidenceTruncated(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	long := strings.Repeat("谢", 200)
	_, err := e.Score(ctx, group, "u1", "thanks", 1, "  "+long+"  ")
	require.NoError(t, err)

	events, err := e.RecentEvents(ctx, group, "u1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, strings.Repeat("谢", 120), events[0].Evidence)
}

func TestCapsHoldUnderRandomSequences(t *testing.T) {
	e, clock := newTestEngine(t, func(c *config.Config) { c.Levels.Initial = 0 })
	ctx := context.Background()
	rng := newRand(42)
	types := InteractionTypes()

	type gain struct {
		at    time.Time
		delta int
	}
	var history []gain
	for i := 0; i < 400; i++ {
		clock.Advance(time.Duration(rng.Intn(240)) * time.Second)
		if rng.Intn(25) == 0 {
			_, err := e.SetAbsoluteLevel(ctx, group, "u1", rng.Intn(201)-100)
			require.NoError(t, err)
		}
		r := score(t, e, "u1", types[rng.Intn(len(types))], rng.Intn(3)+1)
		require.GreaterOrEqual(t, r.NewLevel, -100)
		require.LessOrEqual(t, r.NewLevel, 100)
		require.GreaterOrEqual(t, r.Delta, -12)
		require.LessOrEqual(t, r.Delta, 12)

		now := clock.Now()
		history = append(history, gain{at: now, delta: r.Delta})
		window, daily := 0, 0
		for _, g := range history {
			if g.delta <= 0 {
				continue
			}
			if !g.at.Before(now.Add(-10 * time.Minute)) {
				window += g.delta
			}
			if g.at.Format("2006-01-02") == now.Format("2006-01-02") {
				daily += g.delta
			}
		}
		require.LessOrEqual(t, window, 20, "event %d", i)
		require.LessOrEqual(t, daily, 50, "event %d", i)
	}
}

func TestConcurrentScoringSameUser(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Score(ctx, group, "u1", "thanks", 3, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// 6, 5, 3, 2, 2, 2 fills the 10-minute cap; the rest apply zero.
	p, err := e.QueryByIdentifier(ctx, group, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, p.Level)

	events, err := e.RecentEvents(ctx, group, "u1", 100)
	require.NoError(t, err)
	assert.Len(t, events, n)
	assert.Zero(t, e.locks.size())
}

func TestConcurrentScoringDistinctUsers(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				_, err := e.Score(ctx, group, id, "deep_talk", 2, "")
				assert.NoError(t, err)
			}
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()

	page, err := e.Ranking(ctx, group, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 10, page.Total)
	// deep_talk at intensity 2: 7, then 5, then 4
	for _, entry := range page.Entries {
		assert.Equal(t, 16, entry.Level, entry.UserID)
	}
}
