package httpapi

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_RejectsBadSignature(t *testing.T) {
	handler, _, cleanup := setupSessionsTest(t)
	defer cleanup()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, wrongPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	challenge := []byte("challenge-bytes")
	sig := ed25519.Sign(wrongPriv, challenge)

	body, _ := json.Marshal(map[string]string{
		"publicKey": base64.StdEncoding.EncodeToString(pub),
		"challenge": base64.StdEncoding.EncodeToString(challenge),
		"signature": base64.StdEncoding.EncodeToString(sig),
	})
	w, c := authedContext(http.MethodPost, "/v1/auth", body)
	handler.Authenticate(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_RejectsMalformedBody(t *testing.T) {
	handler, _, cleanup := setupSessionsTest(t)
	defer cleanup()

	w, c := authedContext(http.MethodPost, "/v1/auth", []byte(`not-json`))
	handler.Authenticate(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestPairing_RejectsMalformedBody(t *testing.T) {
	handler, _, cleanup := setupSessionsTest(t)
	defer cleanup()

	w, c := authedContext(http.MethodPost, "/v1/auth/account/request", []byte(`not-json`))
	handler.RequestPairing(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondPairing_WritesResponse(t *testing.T) {
	handler, mock, cleanup := setupSessionsTest(t)
	defer cleanup()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE account_auth_requests`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(map[string]string{
		"publicKey": base64.StdEncoding.EncodeToString(pub),
		"response":  "wrapped-key-material",
	})
	w, c := authedContext(http.MethodPost, "/v1/auth/account/response", body)
	handler.RespondPairing(c)

	assert.Equal(t, http.StatusOK, w.Code)
}
