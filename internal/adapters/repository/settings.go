package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/fishy/internal/domain/model"
)

// SetUserDefaultList implements SettingsStore.
func (s *SQLStore) SetUserDefaultList(ctx context.Context, userID, listID string) error {
	return s.upsertDefault(ctx, "user_settings", "user_id", userID, listID)
}

// UserDefaultList implements SettingsStore.
func (s *SQLStore) UserDefaultList(ctx context.Context, userID string) (string, error) {
	return s.defaultList(ctx, "user_settings", "user_id", userID)
}

// SetGuildDefaultList implements SettingsStore.
func (s *SQLStore) SetGuildDefaultList(ctx context.Context, guildID, listID string) error {
	return s.upsertDefault(ctx, "guild_settings", "guild_id", guildID, listID)
}

// GuildDefaultList implements SettingsStore.
func (s *SQLStore) GuildDefaultList(ctx context.Context, guildID string) (string, error) {
	return s.defaultList(ctx, "guild_settings", "guild_id", guildID)
}

// table and key are package constants, never user input.
func (s *SQLStore) upsertDefault(ctx context.Context, table, key, id, listID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO `+table+` (`+key+`, default_list, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (`+key+`) DO UPDATE SET
			default_list = EXCLUDED.default_list,
			updated_at   = EXCLUDED.updated_at`),
		id, listID, millis(s.now()))
	if err != nil {
		return s.fail("set_"+table, err)
	}
	return nil
}

func (s *SQLStore) defaultList(ctx context.Context, table, key, id string) (string, error) {
	var list string
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT default_list FROM `+table+` WHERE `+key+` = ?`), id).Scan(&list)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", s.fail("get_"+table, err)
	}
	return list, nil
}

// UpsertGuild implements SettingsStore. Joining re-enables a guild that left.
func (s *SQLStore) UpsertGuild(ctx context.Context, g model.Guild) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO guilds (guild_id, name, member_count, enabled, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			name         = EXCLUDED.name,
			member_count = EXCLUDED.member_count,
			enabled      = EXCLUDED.enabled,
			updated_at   = EXCLUDED.updated_at`),
		g.ID, g.Name, g.MemberCount, boolInt(g.Enabled), millis(s.now()))
	if err != nil {
		return s.fail("upsert_guild", err)
	}
	return nil
}

// SetGuildEnabled implements SettingsStore.
func (s *SQLStore) SetGuildEnabled(ctx context.Context, guildID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE guilds SET enabled = ?, updated_at = ? WHERE guild_id = ?`),
		boolInt(enabled), millis(s.now()), guildID)
	if err != nil {
		return s.fail("set_guild_enabled", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("set_guild_enabled", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: guild %s", ErrNotFound, guildID)
	}
	return nil
}

// Guild implements SettingsStore.
func (s *SQLStore) Guild(ctx context.Context, guildID string) (model.Guild, error) {
	var (
		g       model.Guild
		enabled int
		updated int64
	)
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT guild_id, name, member_count, enabled, updated_at FROM guilds WHERE guild_id = ?`),
		guildID).Scan(&g.ID, &g.Name, &g.MemberCount, &enabled, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Guild{}, fmt.Errorf("%w: guild %s", ErrNotFound, guildID)
	}
	if err != nil {
		return model.Guild{}, s.fail("guild", err)
	}
	g.Enabled = enabled != 0
	g.UpdatedAt = fromMillis(updated)
	return g, nil
}

// CountGuilds implements SettingsStore.
func (s *SQLStore) CountGuilds(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guilds WHERE enabled = 1`).Scan(&n); err != nil {
		return 0, s.fail("count_guilds", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
