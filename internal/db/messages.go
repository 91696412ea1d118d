package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionMessage is an immutable append-only entry in a session (§3).
type SessionMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Seq       int64     `json:"seq"`
	Content   string    `json:"content"`
	LocalID   *string   `json:"localId"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetMessageByLocalID looks up a message by its client-supplied
// dedup key, used to silently drop same-localId re-sends (§4.5, §8.4).
func (d *Database) GetMessageByLocalID(ctx context.Context, sessionID, localID string) (*SessionMessage, error) {
	m := &SessionMessage{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, session_id, seq, content, local_id, created_at
		 FROM session_messages WHERE session_id = $1 AND local_id = $2`,
		sessionID, localID,
	).Scan(&m.ID, &m.SessionID, &m.Seq, &m.Content, &m.LocalID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by local id %s/%s: %w", sessionID, localID, err)
	}
	return m, nil
}

// InsertMessage appends a message to a session. seq must already be
// allocated via AllocateSessionSeq (§4.1).
func (d *Database) InsertMessage(ctx context.Context, sessionID string, seq int64, content string, localID *string) (*SessionMessage, error) {
	m := &SessionMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Seq:       seq,
		Content:   content,
		LocalID:   localID,
		CreatedAt: time.Now(),
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO session_messages (id, session_id, seq, content, local_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.SessionID, m.Seq, m.Content, m.LocalID, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message into session %s: %w", sessionID, err)
	}
	return m, nil
}

// ListMessagesBySession returns the 150 most-recent messages for a
// session, newest first (§4.4 GET /v1/sessions/:id/messages).
func (d *Database) ListMessagesBySession(ctx context.Context, sessionID string) ([]*SessionMessage, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, session_id, seq, content, local_id, created_at
		 FROM session_messages WHERE session_id = $1
		 ORDER BY created_at DESC LIMIT 150`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*SessionMessage
	for rows.Next() {
		m := &SessionMessage{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Content, &m.LocalID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
