package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var machineColumns = []string{
	"id", "account_id", "metadata", "metadata_version",
	"daemon_state", "daemon_state_version", "data_encryption_key", "active",
	"last_active_at", "created_at", "updated_at",
}

func TestListMachines(t *testing.T) {
	handler, mock, cleanup := setupSessionsTest(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`FROM machines WHERE account_id = \$1 ORDER BY created_at DESC`).
		WithArgs("acct1").
		WillReturnRows(sqlmock.NewRows(machineColumns).
			AddRow("mach1", "acct1", "m1", 1, nil, 0, nil, true, now, now, now))

	w, c := authedContext(http.MethodGet, "/v1/machines", nil)
	handler.ListMachines(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["machines"].([]interface{}), 1)
}

func TestGetMachine_NotFoundIsMasked(t *testing.T) {
	handler, mock, cleanup := setupSessionsTest(t)
	defer cleanup()

	mock.ExpectQuery(`FROM machines WHERE account_id = \$1 AND id = \$2`).
		WithArgs("acct1", "mach1").
		WillReturnError(sql.ErrNoRows)

	w, c := authedContext(http.MethodGet, "/v1/machines/mach1", nil)
	c.Params = []gin.Param{{Key: "id", Value: "mach1"}}
	handler.GetMachine(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpsertMachine_RejectsMalformedBody(t *testing.T) {
	handler, _, cleanup := setupSessionsTest(t)
	defer cleanup()

	w, c := authedContext(http.MethodPost, "/v1/machines", []byte(`not-json`))
	handler.UpsertMachine(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpsertMachine_CreatesMachine(t *testing.T) {
	handler, mock, cleanup := setupSessionsTest(t)
	defer cleanup()

	mock.ExpectQuery(`FROM machines WHERE account_id = \$1 AND id = \$2`).
		WithArgs("acct1", "mach1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO machines`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`FROM machines WHERE account_id = \$1 AND id = \$2`).
		WithArgs("acct1", "mach1").
		WillReturnRows(sqlmock.NewRows(machineColumns).
			AddRow("mach1", "acct1", "m1", 1, nil, 0, nil, true, time.Now(), time.Now(), time.Now()))
	mock.ExpectQuery(`UPDATE accounts SET seq = seq \+ 1`).
		WithArgs("acct1").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(1)))
	mock.ExpectQuery(`UPDATE accounts SET seq = seq \+ 1`).
		WithArgs("acct1").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(2)))

	body, _ := json.Marshal(map[string]string{"id": "mach1", "metadata": "m1"})
	w, c := authedContext(http.MethodPost, "/v1/machines", body)
	handler.UpsertMachine(c)

	assert.Equal(t, http.StatusOK, w.Code)
}
