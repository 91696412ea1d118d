package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PairingRequest maps a client-generated ephemeral public key to a
// pending or approved pairing (§3).
type PairingRequest struct {
	ID                string    `json:"id"`
	PublicKey         string    `json:"publicKey"`
	Response          *string   `json:"response"`
	ResponseAccountID *string   `json:"responseAccountId"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// GetOrCreatePairingRequest upserts a PairingRequest keyed by the
// ephemeral public key (§4.4 POST /v1/auth/account/request).
func (d *Database) GetOrCreatePairingRequest(ctx context.Context, publicKeyHex string) (*PairingRequest, error) {
	req, err := d.GetPairingRequestByPublicKey(ctx, publicKeyHex)
	if err == nil {
		return req, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now()
	req = &PairingRequest{
		ID:        uuid.New().String(),
		PublicKey: publicKeyHex,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO account_auth_requests (id, public_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (public_key) DO NOTHING`,
		req.ID, req.PublicKey, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pairing request for %s: %w", publicKeyHex, err)
	}

	return d.GetPairingRequestByPublicKey(ctx, publicKeyHex)
}

// GetPairingRequestByPublicKey looks up a pairing request by public
// key. Returns sql.ErrNoRows if not found.
func (d *Database) GetPairingRequestByPublicKey(ctx context.Context, publicKeyHex string) (*PairingRequest, error) {
	req := &PairingRequest{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, public_key, response, response_account_id, created_at, updated_at
		 FROM account_auth_requests WHERE public_key = $1`,
		publicKeyHex,
	).Scan(&req.ID, &req.PublicKey, &req.Response, &req.ResponseAccountID, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pairing request for %s: %w", publicKeyHex, err)
	}
	return req, nil
}

// SetPairingResponse writes the response and responding account to a
// pairing request, but only if unset (§4.4 POST /v1/auth/account/response:
// "idempotent: subsequent calls are silent no-ops").
func (d *Database) SetPairingResponse(ctx context.Context, publicKeyHex, response, responseAccountID string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE account_auth_requests
		 SET response = $1, response_account_id = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE public_key = $3 AND response IS NULL`,
		response, responseAccountID, publicKeyHex,
	)
	if err != nil {
		return fmt.Errorf("failed to set pairing response for %s: %w", publicKeyHex, err)
	}
	return nil
}

// DeleteStalePairingRequests removes unresolved pairing requests older
// than olderThan, used by the background sweeper (§5's 24h staleness
// window, an expansion beyond the core spec).
func (d *Database) DeleteStalePairingRequests(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`DELETE FROM account_auth_requests WHERE response IS NULL AND created_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale pairing requests: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
