package wsapi

import (
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/events"
	"github.com/consortium/relay/internal/relay"
	"github.com/consortium/relay/internal/router"
	"github.com/consortium/relay/internal/rpc"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock, *auth.TokenService, func()) {
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	database := db.NewDatabaseForTesting(mockDB)
	publisher := events.NewPublisher(events.Config{}, "test-node")
	tokens := auth.NewTokenService(auth.TokenConfig{MasterSecret: "test-secret"}, nil)
	service := relay.New(database, nil, tokens, router.NewHub(), publisher, rpc.NewRegistry())

	return NewServer(service), mock, tokens, func() { mockDB.Close() }
}

func ginContextForQuery(query string) *gin.Context {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/v1/updates?"+query, nil)
	return c
}

func TestHandshake_ReportsSinceSeqPresence(t *testing.T) {
	s, _, tokens, cleanup := newTestServer(t)
	defer cleanup()

	token, err := tokens.Create("acct1", nil)
	require.NoError(t, err)

	c := ginContextForQuery("token=" + token + "&sinceSeq=5")
	client, connType, sinceSeq, err := s.handshake(c, nil)
	require.NoError(t, err)
	assert.Equal(t, "acct1", client.AccountID)
	assert.Equal(t, router.UserScoped, connType)
	assert.True(t, sinceSeq)
}

func TestHandshake_WithoutSinceSeq(t *testing.T) {
	s, _, tokens, cleanup := newTestServer(t)
	defer cleanup()

	token, err := tokens.Create("acct1", nil)
	require.NoError(t, err)

	c := ginContextForQuery("token=" + token)
	_, _, sinceSeq, err := s.handshake(c, nil)
	require.NoError(t, err)
	assert.False(t, sinceSeq)
}

func TestHandshake_MissingTokenFails(t *testing.T) {
	s, _, _, cleanup := newTestServer(t)
	defer cleanup()

	c := ginContextForQuery("")
	_, _, _, err := s.handshake(c, nil)
	assert.Equal(t, errMissingToken, err)
}
