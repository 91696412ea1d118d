package sweeper

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consortium/relay/internal/db"
)

func newTestSweeper(t *testing.T) (*Sweeper, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return New(db.NewDatabaseForTesting(mockDB)), mock, func() { mockDB.Close() }
}

func TestDeactivateStale_RunsBothQueries(t *testing.T) {
	s, mock, cleanup := newTestSweeper(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE sessions SET active = false`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE machines SET active = false`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.deactivateStale(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateStale_ToleratesSessionError(t *testing.T) {
	s, mock, cleanup := newTestSweeper(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE sessions SET active = false`).
		WillReturnError(assert.AnError)
	mock.ExpectExec(`UPDATE machines SET active = false`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NotPanics(t, func() { s.deactivateStale(context.Background()) })
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepPairingRequests(t *testing.T) {
	s, mock, cleanup := newTestSweeper(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM account_auth_requests`).
		WillReturnResult(sqlmock.NewResult(0, 5))

	s.sweepPairingRequests(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartRegistersJobsAndStopReturns(t *testing.T) {
	s, mock, cleanup := newTestSweeper(t)
	defer cleanup()

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	_ = mock
}
