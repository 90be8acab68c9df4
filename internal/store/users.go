package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// User is one relationship record within a session.
type User struct {
	Session         SessionKey
	UserID          string
	Level           int
	CurrentNickname string   // "" when the user has none
	FormerNicknames []string // newest first

	// Rate limiting and decay bookkeeping. Timestamps are unix seconds.
	LastInteractionAt *int64
	DailyPosGain      int
	DailyNegGain      int
	DailyBucket       string // "" until the first scored interaction
}

// Bookkeeping is the mutable per-user state written back after scoring or
// decay.
type Bookkeeping struct {
	Level             int
	LastInteractionAt *int64
	DailyPosGain      int
	DailyNegGain      int
	DailyBucket       string
}

// Bookkeeping returns the mutable part of u.
func (u *User) Bookkeeping() Bookkeeping {
	return Bookkeeping{
		Level:             u.Level,
		LastInteractionAt: u.LastInteractionAt,
		DailyPosGain:      u.DailyPosGain,
		DailyNegGain:      u.DailyNegGain,
		DailyBucket:       u.DailyBucket,
	}
}

// RankEntry is one row of a ranking page.
type RankEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
	Level    int    `json:"level"`
}

const userColumns = `session_type, session_id, user_id, level,
	last_interaction_at, daily_pos_gain, daily_neg_gain, COALESCE(daily_bucket, '')`

func scanUser(row interface{ Scan(...any) error }, u *User) error {
	var typ string
	err := row.Scan(&typ, &u.Session.ID, &u.UserID, &u.Level,
		&u.LastInteractionAt, &u.DailyPosGain, &u.DailyNegGain, &u.DailyBucket)
	u.Session.Type = SessionType(typ)
	return err
}

// GetUser returns the user with its nicknames, or ErrNotFound.
func (q *Queries) GetUser(ctx context.Context, key SessionKey, userID string) (*User, error) {
	var u User
	err := scanUser(q.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE session_type = ? AND session_id = ? AND user_id = ?
	`, string(key.Type), key.ID, userID), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := q.loadNicknames(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertUser creates a user at level with empty bookkeeping. It returns
// ErrUserExists when the user is already registered in the session.
func (q *Queries) InsertUser(ctx context.Context, key SessionKey, userID string, level int) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO users (session_type, session_id, user_id, level, daily_pos_gain, daily_neg_gain)
		VALUES (?, ?, ?, ?, 0, 0)
		ON CONFLICT (session_type, session_id, user_id) DO NOTHING
	`, string(key.Type), key.ID, userID, level)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserExists
	}
	return nil
}

// UpdateLevel sets the user's level without touching bookkeeping.
func (q *Queries) UpdateLevel(ctx context.Context, key SessionKey, userID string, level int) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE users SET level = ?
		WHERE session_type = ? AND session_id = ? AND user_id = ?
	`, level, string(key.Type), key.ID, userID)
	if err != nil {
		return fmt.Errorf("update level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveBookkeeping writes level and rate-limit state in one statement.
func (q *Queries) SaveBookkeeping(ctx context.Context, key SessionKey, userID string, b Bookkeeping) error {
	var bucket any
	if b.DailyBucket != "" {
		bucket = b.DailyBucket
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE users
		SET level = ?, last_interaction_at = ?, daily_pos_gain = ?, daily_neg_gain = ?, daily_bucket = ?
		WHERE session_type = ? AND session_id = ? AND user_id = ?
	`, b.Level, b.LastInteractionAt, b.DailyPosGain, b.DailyNegGain, bucket,
		string(key.Type), key.ID, userID)
	if err != nil {
		return fmt.Errorf("save bookkeeping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the user and its nickname history. Score events are
// kept. It reports whether a user was removed.
func (q *Queries) DeleteUser(ctx context.Context, key SessionKey, userID string) (bool, error) {
	// Explicit delete so stores whose connection runs without foreign keys
	// do not keep orphaned nicknames.
	if _, err := q.q.ExecContext(ctx, `
		DELETE FROM nicknames WHERE session_type = ? AND session_id = ? AND user_id = ?
	`, string(key.Type), key.ID, userID); err != nil {
		return false, fmt.Errorf("delete nicknames: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		DELETE FROM users WHERE session_type = ? AND session_id = ? AND user_id = ?
	`, string(key.Type), key.ID, userID)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// FindByCurrentNickname returns the single user whose current nickname
// matches exactly. It returns ErrNotFound for no match and
// *AmbiguousLookupError for several.
func (q *Queries) FindByCurrentNickname(ctx context.Context, key SessionKey, nickname string) (string, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT user_id FROM nicknames
		WHERE session_type = ? AND session_id = ? AND nickname = ? AND is_current = 1
		ORDER BY user_id
	`, string(key.Type), key.ID, nickname)
	if err != nil {
		return "", fmt.Errorf("find by nickname: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return "", &AmbiguousLookupError{Nickname: nickname, UserIDs: ids}
	}
}

// RankingPage is one page of a session's users ordered by level descending,
// then user id ascending.
type RankingPage struct {
	Session    SessionKey  `json:"session"`
	Page       int         `json:"page"`
	Size       int         `json:"size"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
	Entries    []RankEntry `json:"entries"`
}

// Ranking returns page (1-based) of the session ranking. A page past the end
// has no entries but still reports the totals.
func (q *Queries) Ranking(ctx context.Context, key SessionKey, page, size int) (*RankingPage, error) {
	rp := &RankingPage{Session: key, Page: page, Size: size, Entries: []RankEntry{}}
	if err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE session_type = ? AND session_id = ?
	`, string(key.Type), key.ID).Scan(&rp.Total); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	rp.TotalPages = (rp.Total + size - 1) / size

	offset := (page - 1) * size
	rows, err := q.q.QueryContext(ctx, `
		SELECT u.user_id, COALESCE(n.nickname, ''), u.level
		FROM users u
		LEFT JOIN nicknames n
			ON n.session_type = u.session_type
			AND n.session_id = u.session_id
			AND n.user_id = u.user_id
			AND n.is_current = 1
		WHERE u.session_type = ? AND u.session_id = ?
		ORDER BY u.level DESC, u.user_id ASC
		LIMIT ? OFFSET ?
	`, string(key.Type), key.ID, size, offset)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e := RankEntry{Rank: offset + len(rp.Entries) + 1}
		if err := rows.Scan(&e.UserID, &e.Nickname, &e.Level); err != nil {
			return nil, fmt.Errorf("scan rank entry: %w", err)
		}
		rp.Entries = append(rp.Entries, e)
	}
	return rp, rows.Err()
}

// IdleUser identifies a user for the decay sweep.
type IdleUser struct {
	Session SessionKey
	UserID  string
}

// ListIdleUsers returns users whose last interaction is at or before cutoff
// (unix seconds). Users never interacted with are not returned.
func (q *Queries) ListIdleUsers(ctx context.Context, cutoff int64) ([]IdleUser, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT session_type, session_id, user_id FROM users
		WHERE last_interaction_at IS NOT NULL AND last_interaction_at <= ?
		ORDER BY session_type, session_id, user_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list idle users: %w", err)
	}
	defer rows.Close()

	var out []IdleUser
	for rows.Next() {
		var (
			u   IdleUser
			typ string
		)
		if err := rows.Scan(&typ, &u.Session.ID, &u.UserID); err != nil {
			return nil, fmt.Errorf("scan idle user: %w", err)
		}
		u.Session.Type = SessionType(typ)
		out = append(out, u)
	}
	return out, rows.Err()
}
