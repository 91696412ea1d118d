package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Machine is a registered agent host, keyed by (accountId, id) (§3).
type Machine struct {
	ID                 string    `json:"id"`
	AccountID          string    `json:"accountId"`
	Metadata           string    `json:"metadata"`
	MetadataVersion    int       `json:"metadataVersion"`
	DaemonState        *string   `json:"daemonState"`
	DaemonStateVersion int       `json:"daemonStateVersion"`
	DataEncryptionKey  *string   `json:"dataEncryptionKey"`
	Active             bool      `json:"active"`
	LastActiveAt       time.Time `json:"lastActiveAt"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

const machineColumns = `id, account_id, metadata, metadata_version,
	daemon_state, daemon_state_version, data_encryption_key, active,
	last_active_at, created_at, updated_at`

func scanMachine(row interface{ Scan(...interface{}) error }) (*Machine, error) {
	m := &Machine{}
	err := row.Scan(
		&m.ID, &m.AccountID, &m.Metadata, &m.MetadataVersion,
		&m.DaemonState, &m.DaemonStateVersion, &m.DataEncryptionKey, &m.Active,
		&m.LastActiveAt, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

// GetMachine returns a machine by (accountID, id).
func (d *Database) GetMachine(ctx context.Context, accountID, machineID string) (*Machine, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE account_id = $1 AND id = $2`,
		accountID, machineID,
	)
	m, err := scanMachine(row)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get machine %s/%s: %w", accountID, machineID, err)
	}
	return m, nil
}

// ListMachinesByAccount returns all machines registered to an account.
func (d *Database) ListMachinesByAccount(ctx context.Context, accountID string) ([]*Machine, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var machines []*Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine row: %w", err)
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// UpsertMachine inserts a machine, or returns the existing row
// unchanged if (accountID, id) already exists (§4.4 POST /v1/machines:
// "idempotent on (accountId, id)"). The bool return reports whether
// this call created the row.
func (d *Database) UpsertMachine(ctx context.Context, accountID, machineID, metadata string, daemonState, dataEncryptionKey *string) (*Machine, bool, error) {
	existing, err := d.GetMachine(ctx, accountID, machineID)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	now := time.Now()
	m := &Machine{
		ID:                machineID,
		AccountID:         accountID,
		Metadata:          metadata,
		MetadataVersion:   1,
		DaemonState:       daemonState,
		DataEncryptionKey: dataEncryptionKey,
		Active:            true,
		LastActiveAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if daemonState != nil {
		m.DaemonStateVersion = 1
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO machines (
			id, account_id, metadata, metadata_version,
			daemon_state, daemon_state_version, data_encryption_key, active,
			last_active_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (account_id, id) DO NOTHING`,
		m.ID, m.AccountID, m.Metadata, m.MetadataVersion,
		m.DaemonState, m.DaemonStateVersion, m.DataEncryptionKey, m.Active,
		m.LastActiveAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create machine %s/%s: %w", accountID, machineID, err)
	}

	created, err := d.GetMachine(ctx, accountID, machineID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// UpdateMachineMetadata performs the conditional write for
// machine-update-metadata (§4.5).
func (d *Database) UpdateMachineMetadata(ctx context.Context, accountID, machineID, metadata string, expectedVersion int) (*Machine, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE machines SET metadata = $1, metadata_version = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $3 AND account_id = $4 AND metadata_version = $5`,
		metadata, expectedVersion+1, machineID, accountID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update machine metadata %s: %w", machineID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, sql.ErrNoRows
	}
	return d.GetMachine(ctx, accountID, machineID)
}

// UpdateMachineDaemonState performs the conditional write for
// machine-update-state (§4.5).
func (d *Database) UpdateMachineDaemonState(ctx context.Context, accountID, machineID, daemonState string, expectedVersion int) (*Machine, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE machines SET daemon_state = $1, daemon_state_version = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $3 AND account_id = $4 AND daemon_state_version = $5`,
		daemonState, expectedVersion+1, machineID, accountID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update machine daemon state %s: %w", machineID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, sql.ErrNoRows
	}
	return d.GetMachine(ctx, accountID, machineID)
}

// SetMachineActive updates the active flag for machine-alive (§4.5).
func (d *Database) SetMachineActive(ctx context.Context, accountID, machineID string, active bool, activeAt time.Time) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE machines SET active = $1, last_active_at = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE account_id = $3 AND id = $4`,
		active, activeAt, accountID, machineID,
	)
	if err != nil {
		return fmt.Errorf("failed to set machine active=%v for %s: %w", active, machineID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
