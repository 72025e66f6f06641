package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/fishy/internal/domain/model"
)

// ReplaceItems implements CacheStore. Readers see the full old or the full new set.
func (s *SQLStore) ReplaceItems(ctx context.Context, listID string, items []model.CachedItem) error {
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM cached_items WHERE list_id = ?`), listID); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, s.q(
			`INSERT INTO cached_items (list_id, rank, filename, name, points) VALUES (?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, it := range items {
			if _, err := stmt.ExecContext(ctx, listID, it.Rank, it.Filename, it.Name, it.Points); err != nil {
				return fmt.Errorf("insert rank %d: %w", it.Rank, err)
			}
		}
		return nil
	})
	if err != nil {
		return s.fail("replace_items", err)
	}
	return nil
}

// ItemsUpTo implements CacheStore.
func (s *SQLStore) ItemsUpTo(ctx context.Context, listID string, limit int) ([]model.CachedItem, error) {
	query := `SELECT list_id, rank, filename, name, points FROM cached_items WHERE list_id = ? ORDER BY rank`
	args := []any{listID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	items, err := s.queryItems(ctx, query, args...)
	if err != nil {
		return nil, s.fail("items", err)
	}
	return items, nil
}

// ItemByFilename implements CacheStore.
func (s *SQLStore) ItemByFilename(ctx context.Context, listID, filename string) (model.CachedItem, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT list_id, rank, filename, name, points FROM cached_items
		 WHERE list_id = ? AND filename = ? ORDER BY rank LIMIT 1`), listID, filename)
	var it model.CachedItem
	err := row.Scan(&it.ListID, &it.Rank, &it.Filename, &it.Name, &it.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CachedItem{}, fmt.Errorf("%w: item %s/%s", ErrNotFound, listID, filename)
	}
	if err != nil {
		return model.CachedItem{}, s.fail("item_by_filename", err)
	}
	return it, nil
}

// SearchItems implements CacheStore.
func (s *SQLStore) SearchItems(ctx context.Context, listID, query string, limit int) ([]model.CachedItem, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	items, err := s.queryItems(ctx,
		`SELECT list_id, rank, filename, name, points FROM cached_items
		 WHERE list_id = ? AND LOWER(name) `+s.dialect.Like()+` ? ESCAPE '\'
		 ORDER BY rank LIMIT ?`, listID, pattern, limit)
	if err != nil {
		return nil, s.fail("search_items", err)
	}
	return items, nil
}

// ItemCounts implements CacheStore.
func (s *SQLStore) ItemCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT list_id, COUNT(*) FROM cached_items GROUP BY list_id`)
	if err != nil {
		return nil, s.fail("item_counts", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, s.fail("item_counts", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("item_counts", err)
	}
	return out, nil
}

func (s *SQLStore) queryItems(ctx context.Context, query string, args ...any) ([]model.CachedItem, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.CachedItem
	for rows.Next() {
		var it model.CachedItem
		if err := rows.Scan(&it.ListID, &it.Rank, &it.Filename, &it.Name, &it.Points); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
