package repository

import (
	"context"
	"fmt"
)

// schema is applied in order on every start. Statements are idempotent and
// valid on both SQLite and PostgreSQL. Timestamps are unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cached_items (
		list_id  TEXT NOT NULL,
		rank     INTEGER NOT NULL,
		filename TEXT NOT NULL,
		name     TEXT NOT NULL,
		points   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (list_id, rank)
	)`,
	`CREATE INDEX IF NOT EXISTS cached_items_filename ON cached_items (list_id, filename)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		user_id      TEXT NOT NULL,
		list_id      TEXT NOT NULL,
		total_points DOUBLE PRECISION NOT NULL DEFAULT 0,
		mean_points  DOUBLE PRECISION NOT NULL DEFAULT 0,
		draw_count   INTEGER NOT NULL DEFAULT 0,
		updated_at   BIGINT NOT NULL,
		PRIMARY KEY (user_id, list_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_board ON ledger_entries (list_id, total_points DESC)`,

	`CREATE TABLE IF NOT EXISTS ledger_items (
		user_id  TEXT NOT NULL,
		list_id  TEXT NOT NULL,
		filename TEXT NOT NULL,
		count    INTEGER NOT NULL,
		PRIMARY KEY (user_id, list_id, filename)
	)`,

	`CREATE TABLE IF NOT EXISTS trade_sessions (
		id         TEXT PRIMARY KEY,
		list_id    TEXT NOT NULL,
		requester  TEXT NOT NULL,
		target     TEXT NOT NULL,
		give       TEXT NOT NULL,
		want       TEXT NOT NULL,
		state      TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		deadline   BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS trade_sessions_state ON trade_sessions (state, deadline)`,

	`CREATE TABLE IF NOT EXISTS user_settings (
		user_id      TEXT PRIMARY KEY,
		default_list TEXT NOT NULL,
		updated_at   BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS guild_settings (
		guild_id     TEXT PRIMARY KEY,
		default_list TEXT NOT NULL,
		updated_at   BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS guilds (
		guild_id     TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		member_count INTEGER NOT NULL DEFAULT 0,
		enabled      INTEGER NOT NULL DEFAULT 1,
		updated_at   BIGINT NOT NULL
	)`,
}

// Migrate creates missing tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate step %d: %w", ErrStorage, i, err)
		}
	}
	return nil
}
