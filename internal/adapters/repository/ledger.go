package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/fishy/internal/domain/model"
)

// RecordDraw implements LedgerStore. Both upserts do their arithmetic in SQL
// so concurrent draws for the same row never lose an update.
func (s *SQLStore) RecordDraw(ctx context.Context, userID string, item model.CachedItem) (model.DrawResult, error) {
	res := model.DrawResult{UserID: userID, ListID: item.ListID, Item: item, PointsAwarded: item.Points}
	now := millis(s.now())

	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`
			INSERT INTO ledger_entries (user_id, list_id, total_points, mean_points, draw_count, updated_at)
			VALUES (?, ?, ?, ?, 1, ?)
			ON CONFLICT (user_id, list_id) DO UPDATE SET
				total_points = ledger_entries.total_points + EXCLUDED.total_points,
				draw_count   = ledger_entries.draw_count + 1,
				mean_points  = (ledger_entries.total_points + EXCLUDED.total_points) / (ledger_entries.draw_count + 1),
				updated_at   = EXCLUDED.updated_at
			RETURNING total_points, mean_points, draw_count`),
			userID, item.ListID, item.Points, item.Points, now)
		if err := row.Scan(&res.NewTotal, &res.MeanPoints, &res.DrawCount); err != nil {
			return fmt.Errorf("upsert entry: %w", err)
		}

		row = tx.QueryRowContext(ctx, s.q(`
			INSERT INTO ledger_items (user_id, list_id, filename, count)
			VALUES (?, ?, ?, 1)
			ON CONFLICT (user_id, list_id, filename) DO UPDATE SET
				count = ledger_items.count + 1
			RETURNING count`),
			userID, item.ListID, item.Filename)
		if err := row.Scan(&res.ItemCount); err != nil {
			return fmt.Errorf("upsert item: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.DrawResult{}, s.fail("record_draw", err)
	}
	return res, nil
}

// Entry implements LedgerStore.
func (s *SQLStore) Entry(ctx context.Context, userID, listID string) (model.LedgerEntry, error) {
	e := model.LedgerEntry{UserID: userID, ListID: listID, Items: map[string]int{}}
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT total_points, mean_points, draw_count FROM ledger_entries WHERE user_id = ? AND list_id = ?`),
		userID, listID)
	err := row.Scan(&e.TotalPoints, &e.MeanPoints, &e.DrawCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerEntry{}, fmt.Errorf("%w: ledger %s/%s", ErrNotFound, userID, listID)
	}
	if err != nil {
		return model.LedgerEntry{}, s.fail("entry", err)
	}

	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT filename, count FROM ledger_items WHERE user_id = ? AND list_id = ?`), userID, listID)
	if err != nil {
		return model.LedgerEntry{}, s.fail("entry_items", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var f string
		var c int
		if err := rows.Scan(&f, &c); err != nil {
			return model.LedgerEntry{}, s.fail("entry_items", err)
		}
		e.Items[f] = c
	}
	if err := rows.Err(); err != nil {
		return model.LedgerEntry{}, s.fail("entry_items", err)
	}
	return e, nil
}

// ItemCount implements LedgerStore.
func (s *SQLStore) ItemCount(ctx context.Context, userID, listID, filename string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT count FROM ledger_items WHERE user_id = ? AND list_id = ? AND filename = ?`),
		userID, listID, filename).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, s.fail("item_count", err)
	}
	return n, nil
}

// Leaderboard implements LedgerStore.
func (s *SQLStore) Leaderboard(ctx context.Context, listID string, limit, offset int) ([]model.LedgerEntry, error) {
	if limit <= 0 || offset < 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT user_id, total_points, mean_points, draw_count FROM ledger_entries
		WHERE list_id = ?
		ORDER BY total_points DESC, user_id
		LIMIT ? OFFSET ?`), listID, limit, offset)
	if err != nil {
		return nil, s.fail("leaderboard", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.LedgerEntry
	for rows.Next() {
		e := model.LedgerEntry{ListID: listID}
		if err := rows.Scan(&e.UserID, &e.TotalPoints, &e.MeanPoints, &e.DrawCount); err != nil {
			return nil, s.fail("leaderboard", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("leaderboard", err)
	}
	return out, nil
}

// RankOf implements LedgerStore.
func (s *SQLStore) RankOf(ctx context.Context, listID string, total float64) (int, error) {
	var above int
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT COUNT(*) FROM ledger_entries WHERE list_id = ? AND total_points > ?`), listID, total).Scan(&above)
	if err != nil {
		return 0, s.fail("rank_of", err)
	}
	return above + 1, nil
}

// OwnedItems implements LedgerStore.
func (s *SQLStore) OwnedItems(ctx context.Context, userID, listID string) ([]model.OwnedItem, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT li.filename, COALESCE(MIN(ci.name), li.filename), COALESCE(MIN(ci.rank), 0), li.count
		FROM ledger_items li
		LEFT JOIN cached_items ci ON ci.list_id = li.list_id AND ci.filename = li.filename
		WHERE li.user_id = ? AND li.list_id = ?
		GROUP BY li.filename, li.count
		ORDER BY CASE WHEN MIN(ci.rank) IS NULL THEN 1 ELSE 0 END, MIN(ci.rank), li.filename`), userID, listID)
	if err != nil {
		return nil, s.fail("owned_items", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.OwnedItem
	for rows.Next() {
		var it model.OwnedItem
		if err := rows.Scan(&it.Filename, &it.Name, &it.Rank, &it.Count); err != nil {
			return nil, s.fail("owned_items", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("owned_items", err)
	}
	return out, nil
}
