package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/fishy/internal/domain/model"
)

type holding struct {
	user     string
	filename string
}

// Swap implements Swapper.
func (s *SQLStore) Swap(ctx context.Context, req SwapRequest) error {
	out := []holding{{req.Requester, req.Give}, {req.Target, req.Want}}
	in := []holding{{req.Requester, req.Want}, {req.Target, req.Give}}

	// lock in a global order so two opposite swaps cannot deadlock
	locks := append(append([]holding(nil), out...), in...)
	sort.Slice(locks, func(i, j int) bool {
		if locks[i].user != locks[j].user {
			return locks[i].user < locks[j].user
		}
		return locks[i].filename < locks[j].filename
	})

	err := s.withTx(ctx, s.dialect.SwapTxOptions(), func(tx *sql.Tx) error {
		counts := make(map[holding]int, len(locks))
		for _, h := range locks {
			if _, seen := counts[h]; seen {
				continue
			}
			n, err := s.lockCount(ctx, tx, req.ListID, h)
			if err != nil {
				return err
			}
			counts[h] = n
		}
		for _, h := range out {
			if counts[h] < 1 {
				return fmt.Errorf("%w: %s does not hold %s", ErrNotOwned, h.user, h.filename)
			}
		}

		for _, h := range out {
			if _, err := tx.ExecContext(ctx, s.q(
				`UPDATE ledger_items SET count = count - 1
				 WHERE user_id = ? AND list_id = ? AND filename = ?`),
				h.user, req.ListID, h.filename); err != nil {
				return fmt.Errorf("decrement: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.q(
			`DELETE FROM ledger_items WHERE list_id = ? AND user_id IN (?, ?) AND count <= 0`),
			req.ListID, req.Requester, req.Target); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		for _, h := range in {
			if _, err := tx.ExecContext(ctx, s.q(`
				INSERT INTO ledger_items (user_id, list_id, filename, count)
				VALUES (?, ?, ?, 1)
				ON CONFLICT (user_id, list_id, filename) DO UPDATE SET
					count = ledger_items.count + 1`),
				h.user, req.ListID, h.filename); err != nil {
				return fmt.Errorf("increment: %w", err)
			}
		}
		if req.SessionID == "" {
			return nil
		}
		return s.acceptSession(ctx, tx, req.SessionID, req.At)
	})
	if err != nil {
		return s.fail("swap", err)
	}
	return nil
}

func (s *SQLStore) acceptSession(ctx context.Context, tx *sql.Tx, id string, at time.Time) error {
	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE trade_sessions SET state = ?, reason = '', updated_at = ?
		WHERE id = ? AND state = ?`),
		string(model.TradeAccepted), millis(at), id, string(model.TradeProcessing))
	if err != nil {
		return fmt.Errorf("accept session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("accept session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: session %s is no longer processing", ErrConflict, id)
	}
	return nil
}

func (s *SQLStore) lockCount(ctx context.Context, tx *sql.Tx, listID string, h holding) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, s.q(
		`SELECT count FROM ledger_items
		 WHERE user_id = ? AND list_id = ? AND filename = ?`+s.dialect.ForUpdate()),
		h.user, listID, h.filename).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lock %s/%s: %w", h.user, h.filename, err)
	}
	return n, nil
}
