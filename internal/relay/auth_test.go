package relay

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/events"
	"github.com/consortium/relay/internal/router"
)

func newTestServiceWithTokens(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	database := db.NewDatabaseForTesting(mockDB)
	publisher := events.NewPublisher(events.Config{}, "test-node")
	tokens := auth.NewTokenService(auth.TokenConfig{MasterSecret: "a-very-long-test-master-secret-value"}, nil)

	svc := New(database, nil, tokens, router.NewHub(), publisher, nil)
	return svc, mock, func() { mockDB.Close() }
}

func TestAuthenticate_CreatesAccountAndToken(t *testing.T) {
	svc, mock, cleanup := newTestServiceWithTokens(t)
	defer cleanup()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	challenge := []byte("challenge-bytes")
	sig := ed25519.Sign(priv, challenge)
	pubHex := hex.EncodeToString(pub)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, public_key, seq, created_at, updated_at FROM accounts WHERE public_key = \$1`).
		WithArgs(pubHex).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT id, public_key, seq, created_at, updated_at FROM accounts WHERE public_key = \$1`).
		WithArgs(pubHex).
		WillReturnRows(sqlmock.NewRows([]string{"id", "public_key", "seq", "created_at", "updated_at"}).
			AddRow("acct1", pubHex, int64(0), now, now))

	token, account, err := svc.Authenticate(context.Background(),
		base64.StdEncoding.EncodeToString(pub),
		base64.StdEncoding.EncodeToString(challenge),
		base64.StdEncoding.EncodeToString(sig),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "acct1", account.ID)
}

func TestAuthenticate_RejectsBadSignature(t *testing.T) {
	svc, _, cleanup := newTestServiceWithTokens(t)
	defer cleanup()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_ = otherPub
	challenge := []byte("challenge-bytes")
	sig := ed25519.Sign(otherPriv, challenge)

	_, _, err = svc.Authenticate(context.Background(),
		base64.StdEncoding.EncodeToString(pub),
		base64.StdEncoding.EncodeToString(challenge),
		base64.StdEncoding.EncodeToString(sig),
	)
	assert.Error(t, err)
}

func TestRequestPairing_NotYetAuthorized(t *testing.T) {
	svc, mock, cleanup := newTestServiceWithTokens(t)
	defer cleanup()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(pub)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, public_key, response, response_account_id, created_at, updated_at`).
		WithArgs(pubHex).
		WillReturnRows(sqlmock.NewRows([]string{"id", "public_key", "response", "response_account_id", "created_at", "updated_at"}).
			AddRow("req1", pubHex, nil, nil, now, now))

	state, err := svc.RequestPairing(context.Background(), base64.StdEncoding.EncodeToString(pub))
	require.NoError(t, err)
	assert.Equal(t, "requested", state.State)
}

func TestRequestPairing_Authorized(t *testing.T) {
	svc, mock, cleanup := newTestServiceWithTokens(t)
	defer cleanup()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(pub)
	now := time.Now()
	response := "wrapped-secret"
	accountID := "acct1"

	mock.ExpectQuery(`SELECT id, public_key, response, response_account_id, created_at, updated_at`).
		WithArgs(pubHex).
		WillReturnRows(sqlmock.NewRows([]string{"id", "public_key", "response", "response_account_id", "created_at", "updated_at"}).
			AddRow("req1", pubHex, &response, &accountID, now, now))

	state, err := svc.RequestPairing(context.Background(), base64.StdEncoding.EncodeToString(pub))
	require.NoError(t, err)
	assert.Equal(t, "authorized", state.State)
	assert.Equal(t, "wrapped-secret", state.Response)
	assert.NotEmpty(t, state.Token)
}

func TestRespondPairing_WritesResponse(t *testing.T) {
	svc, mock, cleanup := newTestServiceWithTokens(t)
	defer cleanup()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(pub)

	mock.ExpectExec(`UPDATE account_auth_requests`).
		WithArgs("wrapped-key-material", "acct1", pubHex).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = svc.RespondPairing(context.Background(), "acct1", base64.StdEncoding.EncodeToString(pub), "wrapped-key-material")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
