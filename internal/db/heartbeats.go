package db

import (
	"context"
	"fmt"
	"time"
)

// DeactivateStaleSessions flips active=false for sessions whose
// last_active_at has passed the heartbeat staleness window (§5: "session/
// machine heartbeats older than 10 minutes are ignored"), used by the
// background sweeper.
func (d *Database) DeactivateStaleSessions(ctx context.Context, staleBefore time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE sessions SET active = false WHERE active = true AND last_active_at < $1`,
		staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale sessions: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// DeactivateStaleMachines is the machine equivalent of
// DeactivateStaleSessions.
func (d *Database) DeactivateStaleMachines(ctx context.Context, staleBefore time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE machines SET active = false WHERE active = true AND last_active_at < $1`,
		staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale machines: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
