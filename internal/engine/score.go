package engine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lazypower/rapport/internal/store"
)

// CapClips records which limits reduced a scoring delta.
type CapClips struct {
	PerEvent       bool `json:"per_event"`
	WindowPositive bool `json:"window_positive"`
	DailyPositive  bool `json:"daily_positive"`
	LevelBound     bool `json:"level_bound"`
}

// Names lists the set flags in evaluation order.
func (c CapClips) Names() []string {
	var out []string
	if c.PerEvent {
		out = append(out, "per_event")
	}
	if c.WindowPositive {
		out = append(out, "window_positive")
	}
	if c.DailyPositive {
		out = append(out, "daily_positive")
	}
	if c.LevelBound {
		out = append(out, "level_bound")
	}
	return out
}

// ScoreResult describes one applied scoring event.
type ScoreResult struct {
	EventID         string           `json:"event_id"`
	Session         store.SessionKey `json:"session"`
	UserID          string           `json:"user_id"`
	InteractionType string           `json:"interaction_type"`
	Intensity       int              `json:"intensity"`
	OldLevel        int              `json:"old_level"`
	NewLevel        int              `json:"new_level"`
	BaseDelta       int              `json:"base_delta"`
	RawDelta        int              `json:"raw_delta"` // after intensity and bias, before anti-repeat
	Delta           int              `json:"delta"`     // what was actually applied
	IntensityMul    float64          `json:"intensity_mul"`
	BiasMul         float64          `json:"bias_mul"`
	AntiSpamMul     float64          `json:"anti_spam_mul"`
	Clips           CapClips         `json:"cap_clip"`
	Tier            string           `json:"tier"`
	Effect          string           `json:"effect"`
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Score applies one classified interaction to the user, registering the
// user first if needed. Invalid input is rejected before anything is
// written. The whole pipeline (bucket refresh, decay, delta, caps, record
// and audit row) commits or rolls back as one unit.
func (e *Engine) Score(ctx context.Context, key store.SessionKey, userID, interactionType string, intensity int, evidence string) (*ScoreResult, error) {
	typ := normalizeType(interactionType)
	base, ok := baseDelta[typ]
	if !ok {
		return nil, &UnknownInteractionTypeError{Type: interactionType}
	}
	intensityPct, ok := intensityPercent[intensity]
	if !ok {
		return nil, &InvalidIntensityError{Intensity: intensity}
	}
	evidence = truncateRunes(strings.TrimSpace(evidence), e.scoring.EvidenceMaxRunes)

	var res *ScoreResult
	err := e.withUser(ctx, key, userID, func(q *store.Queries, userID string) error {
		now := e.now()
		ts := now.Unix()

		u, _, err := e.getOrCreate(ctx, q, key, userID, "")
		if err != nil {
			return err
		}
		e.refreshDailyBucket(u, now)
		e.applyDecay(u, ts)

		r := &ScoreResult{
			Session:         key,
			UserID:          userID,
			InteractionType: typ,
			Intensity:       intensity,
			OldLevel:        u.Level,
			BaseDelta:       base,
			IntensityMul:    float64(intensityPct) / 100,
			BiasMul:         1,
			AntiSpamMul:     1,
		}

		raw := roundDiv(base*intensityPct, 100)
		if raw > 0 {
			r.BiasMul = float64(positiveBiasPercent) / 100
			raw = roundDiv(raw*positiveBiasPercent, 100)
		}
		r.RawDelta = raw

		delta := raw
		if raw > 0 {
			since := ts - int64(e.scoring.RepeatWindow.Seconds())
			prior, err := q.CountPositiveSince(ctx, key, userID, typ, since)
			if err != nil {
				return err
			}
			pct := repeatPercent(prior + 1)
			r.AntiSpamMul = float64(pct) / 100
			delta = roundDiv(raw*pct, 100)
		}

		clipped := clamp(delta, e.scoring.PerEventMin, e.scoring.PerEventMax)
		r.Clips.PerEvent = clipped != delta
		delta = clipped

		if delta > 0 {
			since := ts - int64(e.scoring.WindowCapSpan.Seconds())
			gained, err := q.SumPositiveSince(ctx, key, userID, since)
			if err != nil {
				return err
			}
			if room := max(0, e.scoring.WindowPositiveCap-gained); delta > room {
				delta = room
				r.Clips.WindowPositive = true
			}
			if room := max(0, e.scoring.DailyPositiveCap-u.DailyPosGain); delta > room {
				delta = room
				r.Clips.DailyPositive = true
			}
		}

		proposed := u.Level + delta
		r.NewLevel = e.Tiers.Clamp(proposed)
		r.Clips.LevelBound = r.NewLevel != proposed
		r.Delta = r.NewLevel - u.Level

		switch {
		case r.Delta > 0:
			u.DailyPosGain += r.Delta
		case r.Delta < 0:
			u.DailyNegGain += -r.Delta
		}
		u.Level = r.NewLevel
		u.LastInteractionAt = &ts
		if err := q.SaveBookkeeping(ctx, key, userID, u.Bookkeeping()); err != nil {
			return err
		}

		ev := &store.ScoreEvent{
			Session:         key,
			UserID:          userID,
			InteractionType: typ,
			Intensity:       intensity,
			BaseDelta:       base,
			IntensityMul:    r.IntensityMul,
			BiasMul:         r.BiasMul,
			AntiSpamMul:     r.AntiSpamMul,
			RawDelta:        r.RawDelta,
			FinalDelta:      r.Delta,
			NewLevel:        r.NewLevel,
			CapClips:        r.Clips.Names(),
			Evidence:        evidence,
			CreatedAt:       ts,
		}
		if err := q.InsertScoreEvent(ctx, ev); err != nil {
			return err
		}
		r.EventID = ev.EventID

		if t, ok := e.Tiers.Resolve(r.NewLevel); ok {
			r.Tier, r.Effect = t.Name, t.Effect
		}
		res = r
		return nil
	})
	if err != nil {
		e.log.Error("score failed",
			zap.Stringer("session", key), zap.String("user", userID), zap.String("type", typ), zap.Error(err))
		return nil, err
	}

	e.log.Info("score",
		zap.Stringer("session", key),
		zap.String("user", res.UserID),
		zap.String("type", res.InteractionType),
		zap.Int("intensity", res.Intensity),
		zap.Int("old", res.OldLevel),
		zap.Int("new", res.NewLevel),
		zap.Int("raw", res.RawDelta),
		zap.Int("final", res.Delta),
		zap.Float64("anti_spam_mul", res.AntiSpamMul),
		zap.Strings("cap_clip", res.Clips.Names()),
		zap.String("evidence", evidence),
	)
	return res, nil
}

// refreshDailyBucket zeroes the daily accumulators when the calendar day in
// the configured zone has changed since the last scored interaction.
func (e *Engine) refreshDailyBucket(u *store.User, now time.Time) {
	today := now.In(e.loc).Format("2006-01-02")
	if u.DailyBucket == today {
		return
	}
	u.DailyPosGain = 0
	u.DailyNegGain = 0
	u.DailyBucket = today
}
