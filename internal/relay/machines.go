package relay

import (
	"context"

	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/router"
)

// ListMachines returns every machine registered to the account (§4.4
// GET /v1/machines).
func (s *Service) ListMachines(ctx context.Context, accountID string) ([]*db.Machine, error) {
	return s.Store.ListMachinesByAccount(ctx, accountID)
}

// GetMachine returns a single machine the account owns (§4.4 GET
// /v1/machines/:id).
func (s *Service) GetMachine(ctx context.Context, accountID, machineID string) (*db.Machine, error) {
	m, err := s.Store.GetMachine(ctx, accountID, machineID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return m, nil
}

// UpsertMachine implements POST /v1/machines (§4.4): idempotent on
// (accountId, id). On first creation, emits new-machine to the
// account's user-scoped connections, then update-machine to that
// machine's own connections, "so the daemon that just registered
// receives its own initial metadata".
func (s *Service) UpsertMachine(ctx context.Context, accountID, machineID, metadata string, daemonState, dataEncryptionKey *string) (*db.Machine, error) {
	machine, created, err := s.Store.UpsertMachine(ctx, accountID, machineID, metadata, daemonState, dataEncryptionKey)
	if err != nil {
		return nil, err
	}
	if !created {
		return machine, nil
	}

	if err := s.emitUpdate(ctx, accountID, "update", "new-machine", map[string]interface{}{
		"machine": machine,
	}, router.ToUserScope(), ""); err != nil {
		return nil, err
	}
	if err := s.emitUpdate(ctx, accountID, "update", "update-machine", map[string]interface{}{
		"machineId": machineID,
		"value":     metadata,
		"version":   machine.MetadataVersion,
	}, router.ToMachine(machineID), ""); err != nil {
		return nil, err
	}

	return machine, nil
}

// UpdateMachineMetadata mirrors UpdateSessionMetadata for machines
// (§4.5 machine-update-metadata).
func (s *Service) UpdateMachineMetadata(ctx context.Context, accountID, machineID, metadata string, expectedVersion int, skipConnID string) (*UpdateResult, error) {
	machine, err := s.Store.GetMachine(ctx, accountID, machineID)
	if err != nil {
		return &UpdateResult{Result: "error"}, nil
	}
	if machine.MetadataVersion != expectedVersion {
		return &UpdateResult{Result: "version-mismatch", Version: machine.MetadataVersion, Metadata: machine.Metadata}, nil
	}

	updated, err := s.Store.UpdateMachineMetadata(ctx, accountID, machineID, metadata, expectedVersion)
	if err != nil {
		latest, rerr := s.Store.GetMachine(ctx, accountID, machineID)
		if rerr != nil {
			return &UpdateResult{Result: "error"}, nil
		}
		return &UpdateResult{Result: "version-mismatch", Version: latest.MetadataVersion, Metadata: latest.Metadata}, nil
	}

	if err := s.emitUpdate(ctx, accountID, "update", "update-machine", map[string]interface{}{
		"machineId": machineID,
		"value":     metadata,
		"version":   updated.MetadataVersion,
	}, router.ToMachine(machineID), skipConnID); err != nil {
		return nil, err
	}

	return &UpdateResult{Result: "success", Version: updated.MetadataVersion, Metadata: metadata}, nil
}

// UpdateMachineDaemonState mirrors UpdateSessionAgentState for machines
// (§4.5 machine-update-state).
func (s *Service) UpdateMachineDaemonState(ctx context.Context, accountID, machineID, daemonState string, expectedVersion int, skipConnID string) (*UpdateResult, error) {
	machine, err := s.Store.GetMachine(ctx, accountID, machineID)
	if err != nil {
		return &UpdateResult{Result: "error"}, nil
	}
	if machine.DaemonStateVersion != expectedVersion {
		stored := ""
		if machine.DaemonState != nil {
			stored = *machine.DaemonState
		}
		return &UpdateResult{Result: "version-mismatch", Version: machine.DaemonStateVersion, DaemonState: stored}, nil
	}

	updated, err := s.Store.UpdateMachineDaemonState(ctx, accountID, machineID, daemonState, expectedVersion)
	if err != nil {
		latest, rerr := s.Store.GetMachine(ctx, accountID, machineID)
		if rerr != nil {
			return &UpdateResult{Result: "error"}, nil
		}
		stored := ""
		if latest.DaemonState != nil {
			stored = *latest.DaemonState
		}
		return &UpdateResult{Result: "version-mismatch", Version: latest.DaemonStateVersion, DaemonState: stored}, nil
	}

	if err := s.emitUpdate(ctx, accountID, "update", "update-machine", map[string]interface{}{
		"machineId": machineID,
		"value":     daemonState,
		"version":   updated.DaemonStateVersion,
	}, router.ToMachine(machineID), skipConnID); err != nil {
		return nil, err
	}

	return &UpdateResult{Result: "success", Version: updated.DaemonStateVersion, DaemonState: daemonState}, nil
}

// HeartbeatMachine implements machine-alive (§4.5).
func (s *Service) HeartbeatMachine(ctx context.Context, accountID, machineID string, active bool, clientTime int64) error {
	activeAt, ok := clampHeartbeatTime(clientTime)
	if !ok {
		return nil
	}

	if err := s.Store.SetMachineActive(ctx, accountID, machineID, active, msToTime(activeAt)); err != nil {
		return wrapStoreErr(err)
	}

	s.emit(accountID, "ephemeral", struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Active   bool   `json:"active"`
		ActiveAt int64  `json:"activeAt"`
	}{Type: "machine-activity", ID: machineID, Active: active, ActiveAt: activeAt}, router.ToUserScope(), "")
	return nil
}
