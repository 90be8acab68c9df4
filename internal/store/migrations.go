package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SchemaVersion is the version this build reads and writes.
//
//	v1  implicit: users + nicknames, no meta table
//	v2  meta.schema_version = 2
//	v3  rate-limit/decay bookkeeping on users, score_events audit log
const SchemaVersion = 3

type migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, q queryer) error
}

// migrations upgrade an existing store one version at a time. A fresh store
// skips them and gets the current schema directly.
var migrations = []migration{
	{
		Version:     2,
		Description: "meta: explicit schema version marker",
		Up:          migrateV1ToV2,
	},
	{
		Version:     3,
		Description: "users bookkeeping columns, score_events audit log, nickname constraints",
		Up:          migrateV2ToV3,
	},
}

const usersTableV3 = `
CREATE TABLE users (
    session_type        TEXT NOT NULL,
    session_id          TEXT NOT NULL,
    user_id             TEXT NOT NULL,
    level               INTEGER NOT NULL,

    -- Rate limiting and decay
    last_interaction_at INTEGER,
    daily_pos_gain      INTEGER NOT NULL DEFAULT 0,
    daily_neg_gain      INTEGER NOT NULL DEFAULT 0,
    daily_bucket        TEXT,

    PRIMARY KEY (session_type, session_id, user_id)
);
`

const nicknamesTable = `
CREATE TABLE %s (
    session_type TEXT NOT NULL,
    session_id   TEXT NOT NULL,
    user_id      TEXT NOT NULL,
    nickname     TEXT NOT NULL,
    is_current   INTEGER NOT NULL DEFAULT 1 CHECK (is_current IN (0, 1)),
    created_at   INTEGER NOT NULL,
    FOREIGN KEY (session_type, session_id, user_id)
        REFERENCES users(session_type, session_id, user_id) ON DELETE CASCADE,
    UNIQUE (session_type, session_id, user_id, nickname)
);
`

const nicknameIndexes = `
CREATE INDEX IF NOT EXISTS idx_nick_lookup
    ON nicknames(session_type, session_id, nickname, is_current);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nick_current_unique
    ON nicknames(session_type, session_id, user_id)
    WHERE is_current = 1;
`

// score_events has no foreign key to users: audit rows outlive the user.
const scoreEventsTable = `
CREATE TABLE IF NOT EXISTS %s (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id         TEXT NOT NULL UNIQUE,
    session_type     TEXT NOT NULL,
    session_id       TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    interaction_type TEXT NOT NULL,
    intensity        INTEGER NOT NULL CHECK (intensity IN (1, 2, 3)),
    base_delta       INTEGER NOT NULL,
    intensity_mul    REAL NOT NULL,
    bias_mul         REAL NOT NULL,
    anti_spam_mul    REAL NOT NULL,
    raw_delta        INTEGER NOT NULL,
    final_delta      INTEGER NOT NULL,
    new_level        INTEGER NOT NULL,
    cap_clip         TEXT NOT NULL DEFAULT '',
    evidence         TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL
);
`

const scoreEventsIndexes = `
CREATE INDEX IF NOT EXISTS idx_score_events_user_time
    ON score_events(session_type, session_id, user_id, created_at);

CREATE INDEX IF NOT EXISTS idx_score_events_type_time
    ON score_events(session_type, session_id, user_id, interaction_type, created_at);
`

// scoreEventsColumns lists the audit log columns in table order, each with
// the expression used to fill it from an older layout that lacks it.
var scoreEventsColumns = []struct{ name, fill string }{
	{"id", "NULL"},
	{"event_id", "lower(hex(randomblob(16)))"},
	{"session_type", ""},
	{"session_id", ""},
	{"user_id", ""},
	{"interaction_type", ""},
	{"intensity", ""},
	{"base_delta", "0"},
	{"intensity_mul", "1"},
	{"bias_mul", "1"},
	{"anti_spam_mul", "1"},
	{"raw_delta", ""},
	{"final_delta", ""},
	{"new_level", "0"},
	{"cap_clip", "''"},
	{"evidence", "''"},
	{"created_at", ""},
}

const metaTable = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// migrate detects the stored version and brings the store to SchemaVersion.
// Detection and every step run in one immediate transaction: other writers
// are locked out, and a failure leaves the store exactly at its prior
// version.
func (db *DB) migrate(ctx context.Context) error {
	from := -1
	err := db.InTx(ctx, func(tx *Queries) error {
		v, err := detectVersion(ctx, tx.q)
		if err != nil {
			return &MigrationError{From: v, To: SchemaVersion, Err: err}
		}
		from = v

		switch {
		case v == 0:
			db.log.Info("creating schema", zap.Int("version", SchemaVersion))
			if err := createSchema(ctx, tx.q); err != nil {
				return &MigrationError{From: 0, To: SchemaVersion, Err: err}
			}
			v = SchemaVersion
		case v > SchemaVersion:
			return &MigrationError{From: v, To: SchemaVersion,
				Err: fmt.Errorf("store version %d is newer than supported version %d", v, SchemaVersion)}
		}

		for _, m := range migrations {
			if m.Version <= v {
				continue
			}
			db.log.Info("applying migration",
				zap.Int("version", m.Version), zap.String("description", m.Description))
			if err := m.Up(ctx, tx.q); err != nil {
				return &MigrationError{From: from, To: SchemaVersion,
					Err: fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)}
			}
			if err := setVersion(ctx, tx.q, m.Version); err != nil {
				return &MigrationError{From: from, To: SchemaVersion, Err: err}
			}
			v = m.Version
		}

		// Stores already marked v3 by older releases may carry a narrower
		// audit log.
		if err := reconcileScoreEvents(ctx, tx.q); err != nil {
			return &MigrationError{From: from, To: SchemaVersion, Err: err}
		}
		if _, err := tx.q.ExecContext(ctx, nicknameIndexes); err != nil {
			return &MigrationError{From: from, To: SchemaVersion, Err: fmt.Errorf("create nickname indexes: %w", err)}
		}

		if err := validateSchema(ctx, tx.q); err != nil {
			return &MigrationError{From: from, To: SchemaVersion, Err: err}
		}
		return nil
	})
	if err != nil {
		var me *MigrationError
		if !errors.As(err, &me) {
			err = &MigrationError{From: from, To: SchemaVersion, Err: err}
		}
		return err
	}
	return nil
}

// StoredVersion returns the schema version recorded in the store.
func (db *DB) StoredVersion(ctx context.Context) (int, error) {
	return detectVersion(ctx, db.DB)
}

// detectVersion returns 0 for an empty store, 1 for a pre-meta store, and
// the meta marker otherwise.
func detectVersion(ctx context.Context, q queryer) (int, error) {
	tables, err := tableNames(ctx, q)
	if err != nil {
		return 0, err
	}
	if !tables["meta"] && !tables["users"] && !tables["nicknames"] {
		return 0, nil
	}
	if !tables["meta"] {
		return 1, nil
	}

	var raw string
	err = q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("meta table has no schema_version")
	}
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid schema_version %q", raw)
	}
	return v, nil
}

func setVersion(ctx context.Context, q queryer, v int) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(v))
	if err != nil {
		return fmt.Errorf("set schema_version: %w", err)
	}
	return nil
}

func createSchema(ctx context.Context, q queryer) error {
	stmts := []string{
		metaTable,
		usersTableV3,
		fmt.Sprintf(nicknamesTable, "nicknames"),
		nicknameIndexes,
		fmt.Sprintf(scoreEventsTable, "score_events"),
		scoreEventsIndexes,
	}
	for _, s := range stmts {
		if _, err := q.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return setVersion(ctx, q, SchemaVersion)
}

// migrateV1ToV2 adopts a store that predates the meta table. The v1 and v2
// table layouts are identical; only the marker is new.
func migrateV1ToV2(ctx context.Context, q queryer) error {
	if err := requireColumns(ctx, q, "users", "session_type", "session_id", "user_id", "level"); err != nil {
		return err
	}
	if err := requireColumns(ctx, q, "nicknames",
		"session_type", "session_id", "user_id", "nickname", "is_current", "created_at"); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, metaTable); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}
	return nil
}

// migrateV2ToV3 adds the bookkeeping columns with their defaults, creates the
// audit log, and repairs nickname constraints older stores may lack. Existing
// levels and nickname rows are carried over unchanged. Every statement is
// guarded so a rerun after a rolled-back attempt is safe.
func migrateV2ToV3(ctx context.Context, q queryer) error {
	tables, err := tableNames(ctx, q)
	if err != nil {
		return err
	}
	for _, t := range []string{"users", "nicknames"} {
		if !tables[t] {
			return fmt.Errorf("v2 store is missing table %s", t)
		}
	}

	cols, err := columnNames(ctx, q, "users")
	if err != nil {
		return err
	}
	additions := []struct{ name, ddl string }{
		{"last_interaction_at", "ALTER TABLE users ADD COLUMN last_interaction_at INTEGER"},
		{"daily_pos_gain", "ALTER TABLE users ADD COLUMN daily_pos_gain INTEGER NOT NULL DEFAULT 0"},
		{"daily_neg_gain", "ALTER TABLE users ADD COLUMN daily_neg_gain INTEGER NOT NULL DEFAULT 0"},
		{"daily_bucket", "ALTER TABLE users ADD COLUMN daily_bucket TEXT"},
	}
	for _, a := range additions {
		if cols[a.name] {
			continue
		}
		if _, err := q.ExecContext(ctx, a.ddl); err != nil {
			return fmt.Errorf("add users.%s: %w", a.name, err)
		}
	}

	if err := reconcileScoreEvents(ctx, q); err != nil {
		return err
	}

	// At most one current nickname per user: newest wins.
	if _, err := q.ExecContext(ctx, `
		UPDATE nicknames SET is_current = 0
		WHERE is_current = 1 AND rowid <> (
			SELECT n2.rowid FROM nicknames n2
			WHERE n2.session_type = nicknames.session_type
			  AND n2.session_id = nicknames.session_id
			  AND n2.user_id = nicknames.user_id
			  AND n2.is_current = 1
			ORDER BY n2.created_at DESC, n2.rowid DESC
			LIMIT 1
		)
	`); err != nil {
		return fmt.Errorf("normalize current nicknames: %w", err)
	}

	hasFK, err := hasUsersForeignKey(ctx, q, "nicknames")
	if err != nil {
		return err
	}
	if !hasFK {
		if err := rebuildNicknames(ctx, q); err != nil {
			return err
		}
	}

	if _, err := q.ExecContext(ctx, nicknameIndexes); err != nil {
		return fmt.Errorf("create nickname indexes: %w", err)
	}
	return nil
}

// rebuildNicknames recreates the nickname table with its cascading foreign
// key, dropping rows whose user no longer exists.
func rebuildNicknames(ctx context.Context, q queryer) error {
	stmts := []string{
		`DROP TABLE IF EXISTS nicknames_v3`,
		fmt.Sprintf(nicknamesTable, "nicknames_v3"),
		`INSERT OR IGNORE INTO nicknames_v3
			(session_type, session_id, user_id, nickname, is_current, created_at)
		 SELECT n.session_type, n.session_id, n.user_id, n.nickname, n.is_current, n.created_at
		 FROM nicknames n
		 WHERE EXISTS (
			SELECT 1 FROM users u
			WHERE u.session_type = n.session_type
			  AND u.session_id = n.session_id
			  AND u.user_id = n.user_id
		 )
		 ORDER BY n.created_at ASC, n.rowid ASC`,
		`DROP TABLE nicknames`,
		`ALTER TABLE nicknames_v3 RENAME TO nicknames`,
	}
	for _, s := range stmts {
		if _, err := q.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("rebuild nicknames: %w", err)
		}
	}
	return nil
}

// reconcileScoreEvents creates the audit log, or rebuilds an older one
// that lacks columns or still cascades deletes from users. Existing rows are
// kept; missing columns get neutral values and fresh event ids.
func reconcileScoreEvents(ctx context.Context, q queryer) error {
	have, err := columnNames(ctx, q, "score_events")
	if err != nil {
		return err
	}
	if len(have) == 0 {
		if _, err := q.ExecContext(ctx, fmt.Sprintf(scoreEventsTable, "score_events")); err != nil {
			return fmt.Errorf("create score_events: %w", err)
		}
		if _, err := q.ExecContext(ctx, scoreEventsIndexes); err != nil {
			return fmt.Errorf("create score_events indexes: %w", err)
		}
		return nil
	}

	complete := true
	var targets, sources []string
	for _, c := range scoreEventsColumns {
		targets = append(targets, c.name)
		switch {
		case have[c.name]:
			sources = append(sources, c.name)
		case c.fill != "":
			complete = false
			sources = append(sources, c.fill)
		default:
			return fmt.Errorf("score_events is missing column %s", c.name)
		}
	}
	fks, err := foreignKeyCount(ctx, q, "score_events")
	if err != nil {
		return err
	}
	if complete && fks == 0 {
		_, err := q.ExecContext(ctx, scoreEventsIndexes)
		return err
	}

	stmts := []string{
		`DROP TABLE IF EXISTS score_events_v3`,
		fmt.Sprintf(scoreEventsTable, "score_events_v3"),
		fmt.Sprintf(`INSERT INTO score_events_v3 (%s) SELECT %s FROM score_events ORDER BY id`,
			strings.Join(targets, ", "), strings.Join(sources, ", ")),
		`DROP TABLE score_events`,
		`ALTER TABLE score_events_v3 RENAME TO score_events`,
		scoreEventsIndexes,
	}
	for _, s := range stmts {
		if _, err := q.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("rebuild score_events: %w", err)
		}
	}
	return nil
}

func foreignKeyCount(ctx context.Context, q queryer, table string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT count(*) FROM pragma_foreign_key_list('%s')`, table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("foreign keys %s: %w", table, err)
	}
	return n, nil
}

// validateSchema checks that every table and column this build relies on
// is present.
func validateSchema(ctx context.Context, q queryer) error {
	required := map[string][]string{
		"meta":  {"key", "value"},
		"users": {"session_type", "session_id", "user_id", "level", "last_interaction_at", "daily_pos_gain", "daily_neg_gain", "daily_bucket"},
		"nicknames": {"session_type", "session_id", "user_id", "nickname", "is_current", "created_at"},
		"score_events": {"id", "event_id", "session_type", "session_id", "user_id", "interaction_type", "intensity",
			"base_delta", "intensity_mul", "bias_mul", "anti_spam_mul", "raw_delta", "final_delta", "new_level",
			"cap_clip", "evidence", "created_at"},
	}
	for table, cols := range required {
		if err := requireColumns(ctx, q, table, cols...); err != nil {
			return err
		}
	}
	return nil
}

func requireColumns(ctx context.Context, q queryer, table string, want ...string) error {
	have, err := columnNames(ctx, q, table)
	if err != nil {
		return err
	}
	if len(have) == 0 {
		return fmt.Errorf("missing table %s", table)
	}
	var missing []string
	for _, c := range want {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns: %s", table, strings.Join(missing, ", "))
	}
	return nil
}

func tableNames(ctx context.Context, q queryer) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}

func columnNames(ctx context.Context, q queryer, table string) (map[string]bool, error) {
	// table names here are package constants, never user input
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info('%s')`, table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func hasUsersForeignKey(ctx context.Context, q queryer, table string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, "table", "from", on_delete FROM pragma_foreign_key_list('%s')`, table))
	if err != nil {
		return false, fmt.Errorf("foreign keys %s: %w", table, err)
	}
	defer rows.Close()

	type fk struct {
		cols    map[string]bool
		cascade bool
	}
	groups := make(map[int]*fk)
	for rows.Next() {
		var (
			id             int
			ref, from, del string
		)
		if err := rows.Scan(&id, &ref, &from, &del); err != nil {
			return false, fmt.Errorf("scan foreign key: %w", err)
		}
		if ref != "users" {
			continue
		}
		g, ok := groups[id]
		if !ok {
			g = &fk{cols: make(map[string]bool), cascade: strings.EqualFold(del, "CASCADE")}
			groups[id] = g
		}
		g.cols[from] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.cascade && g.cols["session_type"] && g.cols["session_id"] && g.cols["user_id"] && len(g.cols) == 3 {
			return true, nil
		}
	}
	return false, nil
}
