package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is a container for one agent conversation, owned by one
// account (§3).
type Session struct {
	ID                string     `json:"id"`
	AccountID         string     `json:"accountId"`
	Tag               string     `json:"tag"`
	Seq               int64      `json:"seq"`
	Metadata          string     `json:"metadata"`
	MetadataVersion   int        `json:"metadataVersion"`
	AgentState        *string    `json:"agentState"`
	AgentStateVersion int        `json:"agentStateVersion"`
	DataEncryptionKey *string    `json:"dataEncryptionKey"`
	Active            bool       `json:"active"`
	LastActiveAt      time.Time  `json:"lastActiveAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

const sessionColumns = `id, account_id, tag, seq, metadata, metadata_version,
	agent_state, agent_state_version, data_encryption_key, active,
	last_active_at, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	s := &Session{}
	err := row.Scan(
		&s.ID, &s.AccountID, &s.Tag, &s.Seq, &s.Metadata, &s.MetadataVersion,
		&s.AgentState, &s.AgentStateVersion, &s.DataEncryptionKey, &s.Active,
		&s.LastActiveAt, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// GetSessionByTag returns the session for (accountID, tag) if one
// exists, used by POST /v1/sessions to implement tag idempotency
// (§4.4).
func (d *Database) GetSessionByTag(ctx context.Context, accountID, tag string) (*Session, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE account_id = $1 AND tag = $2`,
		accountID, tag,
	)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by tag %s/%s: %w", accountID, tag, err)
	}
	return s, nil
}

// GetSession returns a session by id, scoped to its owning account.
func (d *Database) GetSession(ctx context.Context, accountID, sessionID string) (*Session, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND account_id = $2`,
		sessionID, accountID,
	)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return s, nil
}

// CreateSession inserts a new session. Callers must have already
// checked tag idempotency via GetSessionByTag (§4.4: "if a session with
// (accountId, tag) exists, return it unchanged").
func (d *Database) CreateSession(ctx context.Context, accountID, tag, metadata string, agentState, dataEncryptionKey *string) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:                uuid.New().String(),
		AccountID:         accountID,
		Tag:               tag,
		Metadata:          metadata,
		MetadataVersion:   1,
		AgentState:        agentState,
		DataEncryptionKey: dataEncryptionKey,
		Active:            true,
		LastActiveAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if agentState != nil {
		s.AgentStateVersion = 1
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO sessions (
			id, account_id, tag, seq, metadata, metadata_version,
			agent_state, agent_state_version, data_encryption_key, active,
			last_active_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		s.ID, s.AccountID, s.Tag, s.Seq, s.Metadata, s.MetadataVersion,
		s.AgentState, s.AgentStateVersion, s.DataEncryptionKey, s.Active,
		s.LastActiveAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session %s for account %s: %w", s.ID, accountID, err)
	}
	return s, nil
}

// ListSessionsByAccount returns the account's 150 most-recently-updated
// sessions (§4.4 GET /v1/sessions).
func (d *Database) ListSessionsByAccount(ctx context.Context, accountID string) ([]*Session, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE account_id = $1 ORDER BY updated_at DESC LIMIT 150`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession deletes a session and all its messages in one
// transaction, scoped to the owning account (§4.4 DELETE
// /v1/sessions/:id, §8 scenario 6). Returns sql.ErrNoRows if the
// session doesn't exist or belongs to another account.
func (d *Database) DeleteSession(ctx context.Context, accountID, sessionID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1 AND account_id = $2`,
		sessionID, accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// UpdateSessionMetadata performs the conditional write for the
// optimistic-concurrency update-metadata protocol (§4.5). Returns
// sql.ErrNoRows if no row matched id+expectedVersion (not found, not
// owned, or a lost race), in which case the caller must re-read and
// report version-mismatch.
func (d *Database) UpdateSessionMetadata(ctx context.Context, accountID, sessionID, metadata string, expectedVersion int) (*Session, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE sessions SET metadata = $1, metadata_version = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $3 AND account_id = $4 AND metadata_version = $5`,
		metadata, expectedVersion+1, sessionID, accountID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update session metadata %s: %w", sessionID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, sql.ErrNoRows
	}
	return d.GetSession(ctx, accountID, sessionID)
}

// UpdateSessionAgentState performs the conditional write for
// update-state (§4.5), mirroring UpdateSessionMetadata.
func (d *Database) UpdateSessionAgentState(ctx context.Context, accountID, sessionID, agentState string, expectedVersion int) (*Session, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE sessions SET agent_state = $1, agent_state_version = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $3 AND account_id = $4 AND agent_state_version = $5`,
		agentState, expectedVersion+1, sessionID, accountID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update session agent state %s: %w", sessionID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, sql.ErrNoRows
	}
	return d.GetSession(ctx, accountID, sessionID)
}

// SetSessionActive updates the active flag and last-active timestamp
// for session-alive/session-end (§4.5).
func (d *Database) SetSessionActive(ctx context.Context, accountID, sessionID string, active bool, activeAt time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE sessions SET active = $1, last_active_at = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $3 AND account_id = $4`,
		active, activeAt, sessionID, accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to set session active=%v for %s: %w", active, sessionID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
