package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ScoreEvent is one row of the append-only scoring audit log. Every Score
// call writes exactly one, including calls whose applied delta is zero.
type ScoreEvent struct {
	ID              int64      `json:"-"`
	EventID         string     `json:"event_id"`
	Session         SessionKey `json:"session"`
	UserID          string     `json:"user_id"`
	InteractionType string     `json:"interaction_type"`
	Intensity       int        `json:"intensity"`
	BaseDelta       int        `json:"base_delta"`
	IntensityMul    float64    `json:"intensity_mul"`
	BiasMul         float64    `json:"bias_mul"`
	AntiSpamMul     float64    `json:"anti_spam_mul"`
	RawDelta        int        `json:"raw_delta"`
	FinalDelta      int        `json:"final_delta"`
	NewLevel        int        `json:"new_level"`
	CapClips        []string   `json:"cap_clips,omitempty"`
	Evidence        string     `json:"evidence,omitempty"`
	CreatedAt       int64      `json:"created_at"`
}

// InsertScoreEvent appends e and fills in its ID and EventID.
func (q *Queries) InsertScoreEvent(ctx context.Context, e *ScoreEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO score_events (
			event_id, session_type, session_id, user_id, interaction_type, intensity,
			base_delta, intensity_mul, bias_mul, anti_spam_mul, raw_delta, final_delta,
			new_level, cap_clip, evidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EventID, string(e.Session.Type), e.Session.ID, e.UserID, e.InteractionType, e.Intensity,
		e.BaseDelta, e.IntensityMul, e.BiasMul, e.AntiSpamMul, e.RawDelta, e.FinalDelta,
		e.NewLevel, strings.Join(e.CapClips, ","), e.Evidence, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert score event: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// CountPositiveSince counts the user's events of interactionType with a
// positive applied delta at or after since.
func (q *Queries) CountPositiveSince(ctx context.Context, key SessionKey, userID, interactionType string, since int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM score_events
		WHERE session_type = ? AND session_id = ? AND user_id = ?
		  AND interaction_type = ? AND final_delta > 0 AND created_at >= ?
	`, string(key.Type), key.ID, userID, interactionType, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent events: %w", err)
	}
	return n, nil
}

// SumPositiveSince sums the user's positive applied deltas at or after since.
func (q *Queries) SumPositiveSince(ctx context.Context, key SessionKey, userID string, since int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(final_delta), 0) FROM score_events
		WHERE session_type = ? AND session_id = ? AND user_id = ?
		  AND final_delta > 0 AND created_at >= ?
	`, string(key.Type), key.ID, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum recent gains: %w", err)
	}
	return n, nil
}

// RecentEvents returns up to limit of the user's events, newest first.
func (q *Queries) RecentEvents(ctx context.Context, key SessionKey, userID string, limit int) ([]ScoreEvent, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, event_id, session_type, session_id, user_id, interaction_type, intensity,
			base_delta, intensity_mul, bias_mul, anti_spam_mul, raw_delta, final_delta,
			new_level, cap_clip, evidence, created_at
		FROM score_events
		WHERE session_type = ? AND session_id = ? AND user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, string(key.Type), key.ID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	events := []ScoreEvent{}
	for rows.Next() {
		var (
			e         ScoreEvent
			typ, clip string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &typ, &e.Session.ID, &e.UserID, &e.InteractionType, &e.Intensity,
			&e.BaseDelta, &e.IntensityMul, &e.BiasMul, &e.AntiSpamMul, &e.RawDelta, &e.FinalDelta,
			&e.NewLevel, &clip, &e.Evidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score event: %w", err)
		}
		e.Session.Type = SessionType(typ)
		if clip != "" {
			e.CapClips = strings.Split(clip, ",")
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
