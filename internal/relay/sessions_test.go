package relay

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/events"
	"github.com/consortium/relay/internal/router"
)

var sessionColumns = []string{
	"id", "account_id", "tag", "seq", "metadata", "metadata_version",
	"agent_state", "agent_state_version", "data_encryption_key", "active",
	"last_active_at", "created_at", "updated_at",
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	database := db.NewDatabaseForTesting(mockDB)
	publisher := events.NewPublisher(events.Config{}, "test-node")

	svc := New(database, nil, nil, router.NewHub(), publisher, nil)
	return svc, mock, func() { mockDB.Close() }
}

func TestCreateSession_TagIdempotent(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE account_id = \$1 AND tag = \$2`).
		WithArgs("acct1", "T1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("sess1", "acct1", "T1", int64(0), "m1", 1, nil, 0, nil, true, now, now, now))

	session, err := svc.CreateSession(context.Background(), "acct1", "T1", "m1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "sess1", session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession_NewSessionEmitsUpdate(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE account_id = \$1 AND tag = \$2`).
		WithArgs("acct1", "T1").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectExec(`INSERT INTO sessions`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery(`UPDATE accounts SET seq = seq \+ 1`).
		WithArgs("acct1").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(1)))

	session, err := svc.CreateSession(context.Background(), "acct1", "T1", "m1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "acct1", session.AccountID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSessionMetadata_VersionMismatch(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1 AND account_id = \$2`).
		WithArgs("sess1", "acct1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("sess1", "acct1", "T1", int64(0), "stored", 3, nil, 0, nil, true, now, now, now))

	result, err := svc.UpdateSessionMetadata(context.Background(), "acct1", "sess1", "new-metadata", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "version-mismatch", result.Result)
	assert.Equal(t, 3, result.Version)
	assert.Equal(t, "stored", result.Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSessionMetadata_Success(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1 AND account_id = \$2`).
		WithArgs("sess1", "acct1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("sess1", "acct1", "T1", int64(0), "old", 1, nil, 0, nil, true, now, now, now))

	mock.ExpectExec(`UPDATE sessions SET metadata`).
		WithArgs("new-metadata", 2, "sess1", "acct1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE id = \$1 AND account_id = \$2`).
		WithArgs("sess1", "acct1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("sess1", "acct1", "T1", int64(0), "new-metadata", 2, nil, 0, nil, true, now, now, now))

	mock.ExpectQuery(`UPDATE accounts SET seq = seq \+ 1`).
		WithArgs("acct1").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	result, err := svc.UpdateSessionMetadata(context.Background(), "acct1", "sess1", "new-metadata", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "success", result.Result)
	assert.Equal(t, 2, result.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHeartbeatSession_IgnoresStaleTime(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	staleTime := time.Now().Add(-20 * time.Minute).UnixMilli()
	err := svc.HeartbeatSession(context.Background(), "acct1", "sess1", true, staleTime, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
