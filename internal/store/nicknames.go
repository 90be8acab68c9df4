package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// loadNicknames fills the current and former nicknames of u.
func (q *Queries) loadNicknames(ctx context.Context, u *User) error {
	rows, err := q.q.QueryContext(ctx, `
		SELECT nickname, is_current FROM nicknames
		WHERE session_type = ? AND session_id = ? AND user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, string(u.Session.Type), u.Session.ID, u.UserID)
	if err != nil {
		return fmt.Errorf("load nicknames: %w", err)
	}
	defer rows.Close()

	u.CurrentNickname = ""
	u.FormerNicknames = nil
	for rows.Next() {
		var (
			nick    string
			current bool
		)
		if err := rows.Scan(&nick, &current); err != nil {
			return fmt.Errorf("scan nickname: %w", err)
		}
		if current {
			u.CurrentNickname = nick
		} else {
			u.FormerNicknames = append(u.FormerNicknames, nick)
		}
	}
	return rows.Err()
}

// CurrentNickname returns the user's current nickname, or "" if none.
func (q *Queries) CurrentNickname(ctx context.Context, key SessionKey, userID string) (string, error) {
	var nick string
	err := q.q.QueryRowContext(ctx, `
		SELECT nickname FROM nicknames
		WHERE session_type = ? AND session_id = ? AND user_id = ? AND is_current = 1
	`, string(key.Type), key.ID, userID).Scan(&nick)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("current nickname: %w", err)
	}
	return nick, nil
}

// SetCurrentNickname makes nickname the user's current nickname. The previous
// current one moves to history. A nickname already in the user's history is
// reactivated and becomes the newest entry; setting the current nickname
// again changes nothing.
//
// The caller must hold a transaction: the demote and the promote must land
// together.
func (q *Queries) SetCurrentNickname(ctx context.Context, key SessionKey, userID, nickname string, now int64) error {
	cur, err := q.CurrentNickname(ctx, key, userID)
	if err != nil {
		return err
	}
	if cur == nickname {
		return nil
	}

	if _, err := q.q.ExecContext(ctx, `
		UPDATE nicknames SET is_current = 0
		WHERE session_type = ? AND session_id = ? AND user_id = ? AND is_current = 1
	`, string(key.Type), key.ID, userID); err != nil {
		return fmt.Errorf("demote nickname: %w", err)
	}

	if _, err := q.q.ExecContext(ctx, `
		INSERT INTO nicknames (session_type, session_id, user_id, nickname, is_current, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (session_type, session_id, user_id, nickname)
		DO UPDATE SET is_current = 1, created_at = excluded.created_at
	`, string(key.Type), key.ID, userID, nickname, now); err != nil {
		return fmt.Errorf("set nickname: %w", err)
	}
	return nil
}

// RemoveCurrentNickname moves nickname to history if it is the user's
// current nickname. It returns ErrNotFound otherwise.
func (q *Queries) RemoveCurrentNickname(ctx context.Context, key SessionKey, userID, nickname string) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE nicknames SET is_current = 0
		WHERE session_type = ? AND session_id = ? AND user_id = ? AND nickname = ? AND is_current = 1
	`, string(key.Type), key.ID, userID, nickname)
	if err != nil {
		return fmt.Errorf("remove nickname: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
