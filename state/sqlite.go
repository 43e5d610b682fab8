// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/luxfi/ids"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var _ Store = (*SQLite)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS adapter_state (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	authority BLOB    NOT NULL,
	registry  BLOB    NOT NULL,
	version   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS seen_messages (
	message_id BLOB    PRIMARY KEY,
	seen_at    INTEGER NOT NULL
) WITHOUT ROWID;
`

// SQLite persists the adapter state in a SQLite database. The replay ledger
// lives in its own append-only table indexed by message ID.
//
// The store holds a single connection, so updates are applied one at a time.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at [path].
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Initialize(ctx context.Context, state AdapterState) error {
	if err := state.Verify(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO adapter_state (id, authority, registry, version) VALUES (1, ?, ?, ?)`,
		state.Authority[:],
		state.Registry[:],
		int64(state.Version),
	)
	if isConstraintViolation(err) {
		return ErrAlreadyInitialized
	}
	if err != nil {
		return fmt.Errorf("initialize adapter state: %w", err)
	}
	return nil
}

func (s *SQLite) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	return fn(&sqliteTx{ctx: ctx, tx: tx, readOnly: true})
}

func (s *SQLite) Update(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// ForEachSeen must not be called from within View or Update; [fn] must not
// use the store.
func (s *SQLite) ForEachSeen(ctx context.Context, fn func(ids.ID) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id FROM seen_messages`)
	if err != nil {
		return fmt.Errorf("query seen messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan seen message: %w", err)
		}
		messageID, err := ids.ToID(raw)
		if err != nil {
			return fmt.Errorf("decode seen message: %w", err)
		}
		if err := fn(messageID); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqliteTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) State() (AdapterState, error) {
	var (
		authority, registry []byte
		version             int64
	)
	err := t.tx.QueryRowContext(
		t.ctx,
		`SELECT authority, registry, version FROM adapter_state WHERE id = 1`,
	).Scan(&authority, &registry, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return AdapterState{}, ErrNotInitialized
	}
	if err != nil {
		return AdapterState{}, fmt.Errorf("read adapter state: %w", err)
	}

	state := AdapterState{Version: uint64(version)}
	if state.Authority, err = ids.ToID(authority); err != nil {
		return AdapterState{}, fmt.Errorf("decode authority: %w", err)
	}
	if state.Registry, err = ids.ToID(registry); err != nil {
		return AdapterState{}, fmt.Errorf("decode registry: %w", err)
	}
	return state, nil
}

func (t *sqliteTx) SetState(state AdapterState) error {
	if t.readOnly {
		return errReadOnly
	}
	if err := state.Verify(); err != nil {
		return err
	}
	result, err := t.tx.ExecContext(
		t.ctx,
		`UPDATE adapter_state SET authority = ?, registry = ?, version = ? WHERE id = 1`,
		state.Authority[:],
		state.Registry[:],
		int64(state.Version),
	)
	if err != nil {
		return fmt.Errorf("write adapter state: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write adapter state: %w", err)
	}
	if updated == 0 {
		return ErrNotInitialized
	}
	return nil
}

func (t *sqliteTx) Seen(messageID ids.ID) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(
		t.ctx,
		`SELECT 1 FROM seen_messages WHERE message_id = ?`,
		messageID[:],
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read seen message: %w", err)
	default:
		return true, nil
	}
}

func (t *sqliteTx) MarkSeen(messageID ids.ID) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(
		t.ctx,
		`INSERT INTO seen_messages (message_id, seen_at) VALUES (?, ?)`,
		messageID[:],
		time.Now().UTC().UnixMilli(),
	)
	if isConstraintViolation(err) {
		return ErrAlreadySeen
	}
	if err != nil {
		return fmt.Errorf("mark message seen: %w", err)
	}
	return nil
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
