package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is the authenticated identity, derived from an Ed25519 public
// key (§3).
type Account struct {
	ID        string    `json:"id"`
	PublicKey string    `json:"publicKey"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetOrCreateAccount upserts an account keyed by its hex-encoded public
// key, returning the existing row if one is already present (§4.4
// POST /v1/auth: "upsert an Account keyed by hex(publicKey)").
func (d *Database) GetOrCreateAccount(ctx context.Context, publicKeyHex string) (*Account, error) {
	account, err := d.GetAccountByPublicKey(ctx, publicKeyHex)
	if err == nil {
		return account, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	account = &Account{
		ID:        uuid.New().String(),
		PublicKey: publicKeyHex,
		Seq:       0,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO accounts (id, public_key, seq, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (public_key) DO NOTHING`,
		account.ID, account.PublicKey, account.Seq, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account for public key %s: %w", publicKeyHex, err)
	}

	// Someone else may have won the insert race; re-read to get the
	// authoritative row either way.
	return d.GetAccountByPublicKey(ctx, publicKeyHex)
}

// GetAccountByPublicKey looks up an account by its hex-encoded public
// key. Returns sql.ErrNoRows if not found.
func (d *Database) GetAccountByPublicKey(ctx context.Context, publicKeyHex string) (*Account, error) {
	account := &Account{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, public_key, seq, created_at, updated_at FROM accounts WHERE public_key = $1`,
		publicKeyHex,
	).Scan(&account.ID, &account.PublicKey, &account.Seq, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by public key %s: %w", publicKeyHex, err)
	}
	return account, nil
}

// GetAccount looks up an account by its id. Returns sql.ErrNoRows if
// not found.
func (d *Database) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	account := &Account{}
	err := d.db.QueryRowContext(ctx,
		`SELECT id, public_key, seq, created_at, updated_at FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&account.ID, &account.PublicKey, &account.Seq, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	return account, nil
}
