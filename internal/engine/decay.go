package engine

// Decay pulls idle users toward zero:
//   - only when decay is enabled and the user has been scored at least once
//   - idle_days = floor((now - last_interaction_at) / 1 day)
//   - past the threshold, per_day points per extra day move the level toward
//     zero, never past it
//   - last_interaction_at is then settled to now - threshold days, so a
//     second pass at the same instant changes nothing
//   - decay is not an interaction: no audit row, no cap accounting
// It runs whenever a record is loaded for scoring or query, and on a timer
// via Engine.StartDecayTimer.

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/rapport/internal/store"
)

const secondsPerDay = 24 * 60 * 60

// applyDecay updates u in memory and reports whether it changed.
func (e *Engine) applyDecay(u *store.User, now int64) bool {
	if !e.decay.Enabled || u.LastInteractionAt == nil {
		return false
	}
	idleDays := max(0, (now-*u.LastInteractionAt)/secondsPerDay)
	threshold := int64(e.decay.IdleDaysThreshold)
	if idleDays <= threshold {
		return false
	}

	amount := int(idleDays-threshold) * e.decay.PerDay
	level := u.Level
	switch {
	case level > 0:
		level = max(0, level-amount)
	case level < 0:
		level = min(0, level+amount)
	}
	level = e.Tiers.Clamp(level)
	if level == u.Level {
		return false
	}

	settled := now - threshold*secondsPerDay
	e.log.Debug("decay",
		zap.Stringer("session", u.Session), zap.String("user", u.UserID),
		zap.Int64("idle_days", idleDays), zap.Int("old", u.Level), zap.Int("new", level))
	u.Level = level
	u.LastInteractionAt = &settled
	return true
}

func (e *Engine) decayAndSave(ctx context.Context, q *store.Queries, u *store.User) error {
	if !e.applyDecay(u, e.now().Unix()) {
		return nil
	}
	return q.SaveBookkeeping(ctx, u.Session, u.UserID, u.Bookkeeping())
}

// ApplyDecay applies any pending decay to one user and returns the profile.
func (e *Engine) ApplyDecay(ctx context.Context, key store.SessionKey, userID string) (*Profile, error) {
	var p *Profile
	err := e.withUser(ctx, key, userID, func(q *store.Queries, userID string) error {
		u, err := q.GetUser(ctx, key, userID)
		if err != nil {
			return err
		}
		if err := e.decayAndSave(ctx, q, u); err != nil {
			return err
		}
		p = e.profile(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SweepDecay applies decay to every user idle past the threshold, each
// under its own record lock. It returns how many users changed.
func (e *Engine) SweepDecay(ctx context.Context) (int, error) {
	if !e.decay.Enabled {
		return 0, nil
	}
	now := e.now().Unix()
	cutoff := now - int64(e.decay.IdleDaysThreshold+1)*secondsPerDay

	idle, err := e.DB.Queries().ListIdleUsers(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, iu := range idle {
		err := e.withUser(ctx, iu.Session, iu.UserID, func(q *store.Queries, userID string) error {
			u, err := q.GetUser(ctx, iu.Session, userID)
			if err != nil {
				return err
			}
			if !e.applyDecay(u, e.now().Unix()) {
				return nil
			}
			changed++
			return q.SaveBookkeeping(ctx, u.Session, u.UserID, u.Bookkeeping())
		})
		// Removed between listing and locking.
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// StartDecayTimer runs a decay sweep on startup and then every interval.
func (e *Engine) StartDecayTimer(interval time.Duration) {
	if !e.decay.Enabled || interval <= 0 {
		return
	}

	sweep := func() {
		if n, err := e.SweepDecay(context.Background()); err != nil {
			e.log.Error("decay sweep failed", zap.Error(err))
		} else if n > 0 {
			e.log.Info("decay sweep", zap.Int("updated", n))
		}
	}

	// Run once at startup
	sweep()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sweep()
			case <-e.stopCh:
				return
			}
		}
	}()
}
