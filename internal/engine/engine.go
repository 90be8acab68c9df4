package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/store"
	"github.com/lazypower/rapport/internal/tier"
)

// Engine owns scoring, decay and the admin operations over one store. All
// writes for a (session, user) pair are serialized through a keyed lock and
// run inside one immediate transaction.
type Engine struct {
	DB    *store.DB
	Tiers *tier.Table

	initial int
	decay   config.DecayConfig
	scoring config.ScoringConfig
	loc     *time.Location

	log   *zap.Logger
	now   func() time.Time
	locks *keyedMutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine. cfg must already be validated; tiers must cover
// cfg.Levels.
func New(db *store.DB, tiers *tier.Table, cfg config.Config, opts ...Option) (*Engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		DB:      db,
		Tiers:   tiers,
		initial: tiers.Clamp(cfg.Levels.Initial),
		decay:   cfg.Decay,
		scoring: cfg.Scoring,
		loc:     loc,
		log:     zap.NewNop(),
		now:     time.Now,
		locks:   newKeyedMutex(),
		stopCh:  make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Profile is a user's current standing in one session.
type Profile struct {
	Session           store.SessionKey `json:"session"`
	UserID            string           `json:"user_id"`
	Level             int              `json:"level"`
	Tier              string           `json:"tier"`
	Effect            string           `json:"effect"`
	Nickname          string           `json:"nickname,omitempty"`
	FormerNicknames   []string         `json:"former_nicknames,omitempty"`
	LastInteractionAt *time.Time       `json:"last_interaction_at,omitempty"`
	DailyPosGain      int              `json:"daily_pos_gain"`
	DailyNegGain      int              `json:"daily_neg_gain"`
}

// profile renders u as of now. Gains counted on an earlier day read as zero;
// the stored bucket rolls over on the next score.
func (e *Engine) profile(u *store.User) *Profile {
	cur := *u
	e.refreshDailyBucket(&cur, e.now())
	u = &cur

	p := &Profile{
		Session:         u.Session,
		UserID:          u.UserID,
		Level:           u.Level,
		Nickname:        u.CurrentNickname,
		FormerNicknames: u.FormerNicknames,
		DailyPosGain:    u.DailyPosGain,
		DailyNegGain:    u.DailyNegGain,
	}
	if t, ok := e.Tiers.Resolve(u.Level); ok {
		p.Tier, p.Effect = t.Name, t.Effect
	}
	if u.LastInteractionAt != nil {
		at := time.Unix(*u.LastInteractionAt, 0)
		p.LastInteractionAt = &at
	}
	return p
}

func lockKey(key store.SessionKey, userID string) string {
	return key.String() + "\x00" + userID
}

// withUser validates the key and user id, takes the record lock and runs fn
// inside one immediate transaction.
func (e *Engine) withUser(ctx context.Context, key store.SessionKey, userID string, fn func(q *store.Queries, userID string) error) error {
	if err := key.Validate(); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is empty", ErrInvalidArgument)
	}

	unlock := e.locks.Lock(lockKey(key, userID))
	defer unlock()

	return e.DB.InTx(ctx, func(q *store.Queries) error {
		return fn(q, userID)
	})
}

// normalizeNickname trims nickname and drops it when empty or equal to the
// user id.
func normalizeNickname(nickname, userID string) string {
	n := strings.TrimSpace(nickname)
	if n == userID {
		return ""
	}
	return n
}

// getOrCreate returns the user, registering it at the initial level with
// nickname as current when absent. An existing user's nickname is left
// untouched.
func (e *Engine) getOrCreate(ctx context.Context, q *store.Queries, key store.SessionKey, userID, nickname string) (*store.User, bool, error) {
	u, err := q.GetUser(ctx, key, userID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	if err := q.InsertUser(ctx, key, userID, e.initial); err != nil {
		return nil, false, err
	}
	if n := normalizeNickname(nickname, userID); n != "" {
		if err := q.SetCurrentNickname(ctx, key, userID, n, e.now().Unix()); err != nil {
			return nil, false, err
		}
	}
	u, err = q.GetUser(ctx, key, userID)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// EnsureProfile registers the user if needed, applies any pending decay and
// returns the profile.
func (e *Engine) EnsureProfile(ctx context.Context, key store.SessionKey, userID, nickname string) (*Profile, error) {
	var p *Profile
	err := e.withUser(ctx, key, userID, func(q *store.Queries, userID string) error {
		u, created, err := e.getOrCreate(ctx, q, key, userID, nickname)
		if err != nil {
			return err
		}
		if created {
			e.log.Info("registered user",
				zap.Stringer("session", key), zap.String("user", userID), zap.Int("level", u.Level))
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

// QueryByIdentifier resolves identifier as a user id first, then as a
// current nickname. Former nicknames never match. Several users sharing the
// nickname yield *store.AmbiguousLookupError.
func (e *Engine) QueryByIdentifier(ctx context.Context, key store.SessionKey, identifier string) (*Profile, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is empty", ErrInvalidArgument)
	}

	userID := identifier
	q := e.DB.Queries()
	if _, err := q.GetUser(ctx, key, identifier); errors.Is(err, store.ErrNotFound) {
		userID, err = q.FindByCurrentNickname(ctx, key, identifier)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

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

// SetAbsoluteLevel sets the user's level. Levels outside the configured
// bounds are rejected with *RangeError and nothing changes.
func (e *Engine) SetAbsoluteLevel(ctx context.Context, key store.SessionKey, userID string, level int) (*Profile, error) {
	if level < e.Tiers.MinLevel() || level > e.Tiers.MaxLevel() {
		return nil, &RangeError{Level: level, Min: e.Tiers.MinLevel(), Max: e.Tiers.MaxLevel()}
	}
	var p *Profile
	err := e.withUser(ctx, key, userID, func(q *store.Queries, userID string) error {
		if err := q.UpdateLevel(ctx, key, userID, level); err != nil {
			return err
		}
		u, err := q.GetUser(ctx, key, userID)
		if err != nil {
			return err
		}
		p = e.profile(u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("set level", zap.Stringer("session", key), zap.String("user", p.UserID), zap.Int("level", level))
	return p, nil
}

// AddUser registers a new user at the initial level. An empty nickname
// defaults to the user id. Registering an existing user fails with
// store.ErrUserExists.
func (e *Engine) AddUser(ctx context.Context, key store.SessionKey, userID, nickname string) (*Profile, error) {
	var p *Profile
	err := e.withUser(ctx, key, userID, func(q *store.Queries, userID string) error {
		if err := q.InsertUser(ctx, key, userID, e.initial); err != nil {
			return err
		}
		nick := strings.TrimSpace(nickname)
		if nick == "" {
			nick = userID
		}
		if err := q.SetCurrentNickname(ctx, key, userID, nick, e.now().Unix()); err != nil {
			return err
		}
		u, err := q.GetUser(ctx, key, userID)
		if err != nil {
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

// RemoveUser deletes the user and its nickname history. Removing a user
// that does not exist succeeds and changes nothing. Score events are kept.
func (e *Engine) RemoveUser(ctx context.Context, key store.SessionKey, userID string) error {
	return e.withUser(ctx, key, userID, func(q *store.Queries, userID string) error {
		removed, err := q.DeleteUser(ctx, key, userID)
		if err != nil {
			return err
		}
		if removed {
			e.log.Info("removed user", zap.Stringer("session", key), zap.String("user", userID))
		}
		return nil
	})
}

// SetNickname installs nickname as current; the previous one moves to the
// user's former nicknames.
func (e *Engine) SetNickname(ctx context.Context, key store.SessionKey, userID, nickname string) (*Profile, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, fmt.Errorf("%w: nickname is empty", ErrInvalidArgument)
	}
	var p *Profile
	err := e.withUser(ctx, key, userID, func(q *store.Queries, userID string) error {
		if _, err := q.GetUser(ctx, key, userID); err != nil {
			return err
		}
		if err := q.SetCurrentNickname(ctx, key, userID, nickname, e.now().Unix()); err != nil {
			return err
		}
		u, err := q.GetUser(ctx, key, userID)
		if err != nil {
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

// RemoveNickname clears the user's current nickname if it equals nickname.
// It fails with store.ErrNotFound for an unknown user or a nickname that is
// not current.
func (e *Engine) RemoveNickname(ctx context.Context, key store.SessionKey, userID, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	return e.withUser(ctx, key, userID, func(q *store.Queries, userID string) error {
		if _, err := q.GetUser(ctx, key, userID); err != nil {
			return err
		}
		return q.RemoveCurrentNickname(ctx, key, userID, nickname)
	})
}

// TierEffect resolves any level inside the bounds to its tier.
func (e *Engine) TierEffect(level int) (tier.Tier, error) {
	t, ok := e.Tiers.Resolve(level)
	if !ok {
		return tier.Tier{}, &RangeError{Level: level, Min: e.Tiers.MinLevel(), Max: e.Tiers.MaxLevel()}
	}
	return t, nil
}

// ListTiers returns the configured tiers in level order.
func (e *Engine) ListTiers() []tier.Tier {
	return e.Tiers.Tiers()
}

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.DB.PingContext(ctx)
}

// DefaultPageSize is used when Ranking gets a non-positive size.
const DefaultPageSize = 10

// Ranking returns one page of the session ranking, highest level first,
// ties broken by user id.
func (e *Engine) Ranking(ctx context.Context, key store.SessionKey, page, size int) (*store.RankingPage, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: page %d must be at least 1", ErrInvalidArgument, page)
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return e.DB.Queries().Ranking(ctx, key, page, size)
}

// RecentEvents returns up to limit of the user's score events, newest first.
func (e *Engine) RecentEvents(ctx context.Context, key store.SessionKey, userID string, limit int) ([]store.ScoreEvent, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return e.DB.Queries().RecentEvents(ctx, key, strings.TrimSpace(userID), limit)
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}
