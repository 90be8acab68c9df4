package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a user (or a user's current nickname)
	// does not exist in the session.
	ErrNotFound = errors.New("not found")

	// ErrUserExists is returned when registering a user that already exists.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidSession is returned for a malformed session key.
	ErrInvalidSession = errors.New("invalid session key")
)

// AmbiguousLookupError is returned when a current nickname matches more than
// one user in a session. The caller should re-query by user id.
type AmbiguousLookupError struct {
	Nickname string
	UserIDs  []string
}

func (e *AmbiguousLookupError) Error() string {
	return fmt.Sprintf("nickname %q matches %d users: %s",
		e.Nickname, len(e.UserIDs), strings.Join(e.UserIDs, ", "))
}

// MigrationError is fatal at startup. The store is left at version From.
type MigrationError struct {
	From int
	To   int
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("schema migration v%d -> v%d: %v", e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
