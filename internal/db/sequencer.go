package db

import (
	"context"
	"database/sql"
	"fmt"
)

// AllocateAccountSeq atomically increments and returns an account's
// event sequence counter (§4.1). A single conditional UPDATE, never a
// read-then-write, so concurrent callers produce a gap-free,
// duplicate-free sequence (§8.2).
func (d *Database) AllocateAccountSeq(ctx context.Context, accountID string) (int64, error) {
	var seq int64
	err := d.db.QueryRowContext(ctx,
		`UPDATE accounts SET seq = seq + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1 RETURNING seq`,
		accountID,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("account not found: %s", accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to allocate account seq for %s: %w", accountID, err)
	}
	return seq, nil
}

// AllocateSessionSeq atomically increments and returns a session's
// message sequence counter (§4.1, §8.3).
func (d *Database) AllocateSessionSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := d.db.QueryRowContext(ctx,
		`UPDATE sessions SET seq = seq + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1 RETURNING seq`,
		sessionID,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to allocate session seq for %s: %w", sessionID, err)
	}
	return seq, nil
}
