package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/logging"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	// Logger receives store diagnostics.
	Logger logging.Logger
	// BusyTimeout is passed to SQLite as _busy_timeout.
	BusyTimeout time.Duration
}

// SQLiteStore is a durable SessionStore backed by a single SQLite file. One
// row per session holds the serialized State; events live in their own table
// keyed by (session triple, position). Put runs in one transaction, so a
// failed or cancelled commit leaves nothing behind.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(path string, optFns ...func(o *SQLiteOptions)) (*SQLiteStore, error) {
	opts := SQLiteOptions{Logger: logging.NoOpLogger{}, BusyTimeout: 5 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d", path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, core.StoreError("open database", err)
	}
	// SQLite allows a single writer; one connection serializes transactions
	// instead of surfacing SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, core.StoreError("ping database", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, core.StoreError("run migrations", err)
	}

	opts.Logger.Debug("session.sqlite.opened", "path", path)
	return &SQLiteStore{db: db, logger: opts.Logger}, nil
}

// runMigrations applies every embedded migration not yet recorded in
// schema_migrations, in file name order.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if count > 0 {
			continue
		}

		migrationSQL, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(migrationSQL)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts a new session row and its initial events.
func (s *SQLiteStore) Create(ctx context.Context, sess *core.Session) (core.CommitToken, error) {
	if err := sess.Key.Validate(); err != nil {
		return core.CommitToken{}, err
	}
	stateJSON, err := json.Marshal(sess.StateSnapshot())
	if err != nil {
		return core.CommitToken{}, fmt.Errorf("encode state: %w", err)
	}

	now := time.Now().UTC()
	created := sess.Created
	if created.IsZero() {
		created = now
	}

	var seq int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM sessions`).Scan(&seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (app_name, user_id, session_id, state, version, seq, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
			sess.Key.AppName, sess.Key.UserID, sess.Key.SessionID, string(stateJSON), seq, created.UnixNano(), created.UnixNano())
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, sess.Key, sess.GetEvents(), 0)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.CommitToken{}, fmt.Errorf("create %s: %w", sess.Key, core.ErrAlreadyExists)
		}
		return core.CommitToken{}, storeErr("create", err)
	}

	sess.Version, sess.Seq, sess.Created = 1, seq, created
	s.logger.Debug("session.sqlite.created", "session", sess.Key.String(), "seq", seq)
	return core.CommitToken{Version: 1, CommittedAt: now}, nil
}

// Get loads the session row and its full event log.
func (s *SQLiteStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	var (
		stateJSON        string
		created, updated int64
		version, seq     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT state, version, seq, created_at, updated_at FROM sessions
		WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID).Scan(&stateJSON, &version, &seq, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get", err)
	}

	var state core.State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("decode state of %s: %w", key, err)
	}

	events, err := s.loadEvents(ctx, key)
	if err != nil {
		return nil, err
	}

	sess := core.NewSession(key, state)
	sess.Events = events
	sess.Created = time.Unix(0, created).UTC()
	sess.Updated = time.Unix(0, updated).UTC()
	sess.Version = version
	sess.Seq = seq
	return sess, nil
}

func (s *SQLiteStore) loadEvents(ctx context.Context, key core.SessionKey) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, payload FROM events
		WHERE app_name = ? AND user_id = ? AND session_id = ?
		ORDER BY position ASC`,
		key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return nil, storeErr("load events", err)
	}
	defer rows.Close()

	events := []core.Event{}
	for rows.Next() {
		var (
			pos     int64
			payload string
		)
		if err := rows.Scan(&pos, &payload); err != nil {
			return nil, storeErr("scan event", err)
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event %d of %s: %w", pos, key, err)
		}
		ev.Position = pos
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("load events", err)
	}
	return events, nil
}

// Put replaces the state, appends events newer than the stored log and bumps
// the version, all inside one transaction.
func (s *SQLiteStore) Put(ctx context.Context, sess *core.Session) (core.CommitToken, error) {
	stateJSON, err := json.Marshal(sess.StateSnapshot())
	if err != nil {
		return core.CommitToken{}, fmt.Errorf("encode state: %w", err)
	}
	now := time.Now().UTC()
	key := sess.Key

	var newVersion int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var stored, maxPos int64
		err := tx.QueryRowContext(ctx, `
			SELECT version,
			       (SELECT COALESCE(MAX(position), 0) FROM events
			        WHERE app_name = ? AND user_id = ? AND session_id = ?)
			FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
			key.AppName, key.UserID, key.SessionID,
			key.AppName, key.UserID, key.SessionID).Scan(&stored, &maxPos)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("put %s: %w", key, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if stored != sess.Version {
			return fmt.Errorf("put %s (have v%d, stored v%d): %w", key, sess.Version, stored, core.ErrConflict)
		}

		newVersion = stored + 1
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET state = ?, version = ?, updated_at = ?
			WHERE app_name = ? AND user_id = ? AND session_id = ? AND version = ?`,
			string(stateJSON), newVersion, now.UnixNano(),
			key.AppName, key.UserID, key.SessionID, stored); err != nil {
			return err
		}
		return insertEvents(ctx, tx, key, sess.GetEvents(), maxPos)
	})
	if err != nil {
		return core.CommitToken{}, storeErr("put", err)
	}

	sess.Version = newVersion
	return core.CommitToken{Version: newVersion, CommittedAt: now}, nil
}

// List returns summaries newest first (created_at desc, seq desc).
func (s *SQLiteStore) List(ctx context.Context, appName, userID string) ([]core.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.seq, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM events e
		        WHERE e.app_name = s.app_name AND e.user_id = s.user_id AND e.session_id = s.session_id)
		FROM sessions s
		WHERE s.app_name = ? AND s.user_id = ?
		ORDER BY s.created_at DESC, s.seq DESC`, appName, userID)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()

	out := make([]core.SessionSummary, 0)
	for rows.Next() {
		var (
			sum              core.SessionSummary
			created, updated int64
		)
		if err := rows.Scan(&sum.Key.SessionID, &sum.Seq, &created, &updated, &sum.EventCount); err != nil {
			return nil, storeErr("list", err)
		}
		sum.Key.AppName, sum.Key.UserID = appName, userID
		sum.Created = time.Unix(0, created).UTC()
		sum.Updated = time.Unix(0, updated).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return out, nil
}

// Delete removes the session row; events cascade.
func (s *SQLiteStore) Delete(ctx context.Context, key core.SessionKey) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return storeErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete", err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("session.sqlite.rollback_failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func insertEvents(ctx context.Context, tx *sql.Tx, key core.SessionKey, events []core.Event, after int64) error {
	for _, ev := range events {
		if ev.Position <= after {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (app_name, user_id, session_id, position, event_id, turn_id, author, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key.AppName, key.UserID, key.SessionID, ev.Position, ev.ID, ev.TurnID, ev.Author,
			string(payload), ev.Timestamp.UnixNano()); err != nil {
			return err
		}
	}
	return nil
}

// storeErr keeps domain sentinels and context errors as they are and marks
// everything else as a backend failure.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrConflict),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return core.StoreError(op, err)
	}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
