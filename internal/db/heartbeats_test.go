package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeactivateStaleSessions(t *testing.T) {
	database, mock, cleanup := newTestDatabase(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE sessions SET active = false WHERE active = true AND last_active_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := database.DeactivateStaleSessions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestDeactivateStaleMachines(t *testing.T) {
	database, mock, cleanup := newTestDatabase(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE machines SET active = false WHERE active = true AND last_active_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := database.DeactivateStaleMachines(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
