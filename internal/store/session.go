package store

import (
	"fmt"
	"strings"
)

// SessionType partitions records by conversation kind.
type SessionType string

const (
	SessionGroup   SessionType = "group"
	SessionPrivate SessionType = "private"
)

// SessionKey identifies one conversation. For group sessions ID is the group
// identifier; for private sessions it is the sender identifier. No record is
// ever visible across session keys.
type SessionKey struct {
	Type SessionType `json:"session_type"`
	ID   string      `json:"session_id"`
}

// NewSessionKey normalizes and validates a session key.
func NewSessionKey(sessionType, sessionID string) (SessionKey, error) {
	k := SessionKey{
		Type: SessionType(strings.ToLower(strings.TrimSpace(sessionType))),
		ID:   strings.TrimSpace(sessionID),
	}
	return k, k.Validate()
}

// ParseSessionKey parses the "type:id" form produced by String.
func ParseSessionKey(s string) (SessionKey, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok {
		return SessionKey{}, fmt.Errorf("%w: %q is not type:id", ErrInvalidSession, s)
	}
	return NewSessionKey(typ, id)
}

// Validate reports ErrInvalidSession for an unknown type or empty id.
func (k SessionKey) Validate() error {
	switch k.Type {
	case SessionGroup, SessionPrivate:
	default:
		return fmt.Errorf("%w: unknown session type %q", ErrInvalidSession, k.Type)
	}
	if k.ID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}
	return nil
}

func (k SessionKey) String() string {
	return string(k.Type) + ":" + k.ID
}
