package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/fishy/internal/domain/model"
)

const sessionColumns = `id, list_id, requester, target, give, want, state, reason, created_at, updated_at, deadline`

// Create implements SessionStore.
func (s *SQLStore) Create(ctx context.Context, ts model.TradeSession) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO trade_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ts.ID, ts.ListID, ts.Requester, ts.Target, ts.Give, ts.Want, string(ts.State), ts.Reason,
		millis(ts.CreatedAt), millis(ts.UpdatedAt), millis(ts.Deadline))
	if err != nil {
		return s.fail("create_session", err)
	}
	return nil
}

// Get implements SessionStore.
func (s *SQLStore) Get(ctx context.Context, id string) (model.TradeSession, error) {
	ts, err := scanSession(s.db.QueryRowContext(ctx, s.q(
		`SELECT `+sessionColumns+` FROM trade_sessions WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TradeSession{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return model.TradeSession{}, s.fail("get_session", err)
	}
	return ts, nil
}

// Transition implements SessionStore as a single compare-and-set statement.
func (s *SQLStore) Transition(ctx context.Context, id string, from, to model.TradeState, reason string, now time.Time) (model.TradeSession, error) {
	ts, err := scanSession(s.db.QueryRowContext(ctx, s.q(`
		UPDATE trade_sessions SET state = ?, reason = ?, updated_at = ?
		WHERE id = ? AND state = ?
		RETURNING `+sessionColumns),
		string(to), reason, millis(now), id, string(from)))
	if errors.Is(err, sql.ErrNoRows) {
		cur, gerr := s.Get(ctx, id)
		if gerr != nil {
			return model.TradeSession{}, gerr
		}
		return cur, fmt.Errorf("%w: session %s is %s, not %s", ErrConflict, id, cur.State, from)
	}
	if err != nil {
		return model.TradeSession{}, s.fail("transition", err)
	}
	return ts, nil
}

// Overdue implements SessionStore.
func (s *SQLStore) Overdue(ctx context.Context, now time.Time, limit int) ([]model.TradeSession, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	out, err := s.querySessions(ctx, `SELECT `+sessionColumns+` FROM trade_sessions
		WHERE state = ? AND deadline <= ? ORDER BY deadline LIMIT ?`,
		string(model.TradePending), millis(now), limit)
	if err != nil {
		return nil, s.fail("overdue", err)
	}
	return out, nil
}

// Stalled implements SessionStore.
func (s *SQLStore) Stalled(ctx context.Context, cutoff time.Time, limit int) ([]model.TradeSession, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	out, err := s.querySessions(ctx, `SELECT `+sessionColumns+` FROM trade_sessions
		WHERE state = ? AND updated_at <= ? ORDER BY updated_at LIMIT ?`,
		string(model.TradeProcessing), millis(cutoff), limit)
	if err != nil {
		return nil, s.fail("stalled", err)
	}
	return out, nil
}

// DeleteResolvedBefore implements SessionStore.
func (s *SQLStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM trade_sessions
		WHERE state IN (?, ?, ?, ?) AND updated_at < ?`),
		string(model.TradeAccepted), string(model.TradeRejected), string(model.TradeFailed),
		string(model.TradeExpired), millis(cutoff))
	if err != nil {
		return 0, s.fail("delete_sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.fail("delete_sessions", err)
	}
	return int(n), nil
}

// ListByUser implements SessionStore.
func (s *SQLStore) ListByUser(ctx context.Context, userID string, limit int) ([]model.TradeSession, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	out, err := s.querySessions(ctx, `SELECT `+sessionColumns+` FROM trade_sessions
		WHERE requester = ? OR target = ? ORDER BY created_at DESC, id LIMIT ?`,
		userID, userID, limit)
	if err != nil {
		return nil, s.fail("list_sessions", err)
	}
	return out, nil
}

func (s *SQLStore) querySessions(ctx context.Context, query string, args ...any) ([]model.TradeSession, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.TradeSession
	for rows.Next() {
		ts, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.TradeSession, error) {
	var ts model.TradeSession
	var state string
	var created, updated, deadline int64
	if err := row.Scan(&ts.ID, &ts.ListID, &ts.Requester, &ts.Target, &ts.Give, &ts.Want,
		&state, &ts.Reason, &created, &updated, &deadline); err != nil {
		return model.TradeSession{}, err
	}
	ts.State = model.TradeState(state)
	ts.CreatedAt = fromMillis(created)
	ts.UpdatedAt = fromMillis(updated)
	ts.Deadline = fromMillis(deadline)
	return ts, nil
}
