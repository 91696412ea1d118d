package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messageColumns = []string{"id", "session_id", "seq", "content", "local_id", "created_at"}

func TestGetMessageByLocalID_Found(t *testing.T) {
	database, mock, cleanup := newTestDatabase(t)
	defer cleanup()

	now := time.Now()
	localID := "client-local-1"
	mock.ExpectQuery(`SELECT id, session_id, seq, content, local_id, created_at`).
		WithArgs("sess1", "client-local-1").
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("msg1", "sess1", int64(1), `{"t":"encrypted","c":"xyz"}`, &localID, now))

	msg, err := database.GetMessageByLocalID(context.Background(), "sess1", "client-local-1")
	require.NoError(t, err)
	assert.Equal(t, "msg1", msg.ID)
}

func TestGetMessageByLocalID_NotFound(t *testing.T) {
	database, mock, cleanup := newTestDatabase(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, session_id, seq, content, local_id, created_at`).
		WithArgs("sess1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := database.GetMessageByLocalID(context.Background(), "sess1", "missing")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestInsertMessage(t *testing.T) {
	database, mock, cleanup := newTestDatabase(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO session_messages`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	msg, err := database.InsertMessage(context.Background(), "sess1", 2, `{"t":"encrypted","c":"xyz"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesBySession(t *testing.T) {
	database, mock, cleanup := newTestDatabase(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, session_id, seq, content, local_id, created_at`).
		WithArgs("sess1").
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("msg2", "sess1", int64(2), "c2", nil, now).
			AddRow("msg1", "sess1", int64(1), "c1", nil, now))

	messages, err := database.ListMessagesBySession(context.Background(), "sess1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "msg2", messages[0].ID)
}
