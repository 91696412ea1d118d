package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/consortium/relay/internal/cache"
	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/router"
)

// sessionListCacheTTL and sessionMessagesCacheTTL bound how long the
// advisory session/message read caches serve a stale page before
// falling through to the store again (§5, §8: "cache is advisory,
// store remains source of truth" — these are short enough that a miss
// on invalidation failure still self-heals quickly).
const (
	sessionListCacheTTL     = 30 * time.Second
	sessionMessagesCacheTTL = 30 * time.Second
)

// ListSessions returns the account's 150 most-recently-updated sessions
// (§4.4 GET /v1/sessions). Results are served from the advisory session-
// list cache when one is configured (§5, §8).
func (s *Service) ListSessions(ctx context.Context, accountID string) ([]*db.Session, error) {
	if s.Cache != nil && s.Cache.IsEnabled() {
		var cached []*db.Session
		if err := s.Cache.Get(ctx, cache.AccountSessionsKey(accountID), &cached); err == nil {
			return cached, nil
		}
	}

	sessions, err := s.Store.ListSessionsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil && s.Cache.IsEnabled() {
		_ = s.Cache.Set(ctx, cache.AccountSessionsKey(accountID), sessions, sessionListCacheTTL)
	}
	return sessions, nil
}

// AccountSeq returns the account's current event sequence number, used
// to annotate a `sinceSeq` reconnect hint on GET /v1/sessions and the
// WebSocket handshake (§5: "a client reconnecting... the sequence is
// designed to support this").
func (s *Service) AccountSeq(ctx context.Context, accountID string) (int64, error) {
	account, err := s.Store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return account.Seq, nil
}

// CreateSession implements the idempotent session-creation algorithm
// (§4.4 POST /v1/sessions, §8 scenario 1): an existing (accountId, tag)
// is returned unchanged; otherwise a session is created and a
// new-session update is emitted to the account's user-scoped
// connections.
func (s *Service) CreateSession(ctx context.Context, accountID, tag, metadata string, agentState, dataEncryptionKey *string) (*db.Session, error) {
	existing, err := s.Store.GetSessionByTag(ctx, accountID, tag)
	if err == nil {
		return existing, nil
	}

	session, err := s.Store.CreateSession(ctx, accountID, tag, metadata, agentState, dataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.emitUpdate(ctx, accountID, "update", "new-session", map[string]interface{}{
		"session": session,
	}, router.ToUserScope(), ""); err != nil {
		return nil, err
	}

	s.invalidateAccountSessionsCache(ctx, accountID)
	return session, nil
}

// ListMessages returns the 150 most recent messages for a session the
// account owns (§4.4 GET /v1/sessions/:id/messages), served from the
// advisory message-list cache when one is configured.
func (s *Service) ListMessages(ctx context.Context, accountID, sessionID string) ([]*db.SessionMessage, error) {
	if _, err := s.Store.GetSession(ctx, accountID, sessionID); err != nil {
		return nil, wrapStoreErr(err)
	}

	key := cache.SessionMessagesKey(sessionID, 0)
	if s.Cache != nil && s.Cache.IsEnabled() {
		var cached []*db.SessionMessage
		if err := s.Cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	messages, err := s.Store.ListMessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil && s.Cache.IsEnabled() {
		_ = s.Cache.Set(ctx, key, messages, sessionMessagesCacheTTL)
	}
	return messages, nil
}

// DeleteSession deletes a session and its messages, then emits a
// delete-session update (§4.4 DELETE /v1/sessions/:id, §8 scenario 6).
//
// Per §9's open question, this does not clear any RPC registrations
// scoped to the deleted session's id; those expire only on client
// disconnect.
func (s *Service) DeleteSession(ctx context.Context, accountID, sessionID string) error {
	if err := s.Store.DeleteSession(ctx, accountID, sessionID); err != nil {
		return wrapStoreErr(err)
	}

	if err := s.emitUpdate(ctx, accountID, "update", "delete-session", map[string]interface{}{
		"sessionId": sessionID,
	}, router.ToUserScope(), ""); err != nil {
		return err
	}

	s.invalidateAccountSessionsCache(ctx, accountID)
	s.invalidateSessionCache(ctx, sessionID)
	return nil
}

// invalidateAccountSessionsCache drops the account's cached session
// listing after a mutation that changes its membership.
func (s *Service) invalidateAccountSessionsCache(ctx context.Context, accountID string) {
	if s.Cache != nil && s.Cache.IsEnabled() {
		_ = s.Cache.DeletePattern(ctx, cache.AccountSessionsPattern(accountID))
	}
}

// invalidateSessionCache drops a session's own cached metadata and
// message pages after a mutation to that session.
func (s *Service) invalidateSessionCache(ctx context.Context, sessionID string) {
	if s.Cache != nil && s.Cache.IsEnabled() {
		_ = s.Cache.DeletePattern(ctx, cache.SessionPattern(sessionID))
	}
}

// UpdateResult is the callback payload for update-metadata/update-state
// and their machine equivalents (§4.5). Only one of Metadata/AgentState/
// DaemonState is ever populated, matching which field the call updated
// (§4.5 step 2: "or the corresponding state field").
type UpdateResult struct {
	Result      string `json:"result"`
	Version     int    `json:"version,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	AgentState  string `json:"agentState,omitempty"`
	DaemonState string `json:"daemonState,omitempty"`
}

// UpdateSessionMetadata implements the optimistic-concurrency algorithm
// for update-metadata (§4.5 steps 1-4, §8 invariant 1, scenario 2).
func (s *Service) UpdateSessionMetadata(ctx context.Context, accountID, sessionID, metadata string, expectedVersion int, skipConnID string) (*UpdateResult, error) {
	session, err := s.Store.GetSession(ctx, accountID, sessionID)
	if err != nil {
		return &UpdateResult{Result: "error"}, nil
	}
	if session.MetadataVersion != expectedVersion {
		return &UpdateResult{Result: "version-mismatch", Version: session.MetadataVersion, Metadata: session.Metadata}, nil
	}

	updated, err := s.Store.UpdateSessionMetadata(ctx, accountID, sessionID, metadata, expectedVersion)
	if err != nil {
		latest, rerr := s.Store.GetSession(ctx, accountID, sessionID)
		if rerr != nil {
			return &UpdateResult{Result: "error"}, nil
		}
		return &UpdateResult{Result: "version-mismatch", Version: latest.MetadataVersion, Metadata: latest.Metadata}, nil
	}

	if err := s.emitUpdate(ctx, accountID, "update", "update-session", map[string]interface{}{
		"sessionId": sessionID,
		"value":     metadata,
		"version":   updated.MetadataVersion,
	}, router.ToSession(sessionID), skipConnID); err != nil {
		return nil, err
	}

	s.invalidateSessionCache(ctx, sessionID)
	s.invalidateAccountSessionsCache(ctx, accountID)
	return &UpdateResult{Result: "success", Version: updated.MetadataVersion, Metadata: metadata}, nil
}

// UpdateSessionAgentState mirrors UpdateSessionMetadata for
// update-state (§4.5).
func (s *Service) UpdateSessionAgentState(ctx context.Context, accountID, sessionID, agentState string, expectedVersion int, skipConnID string) (*UpdateResult, error) {
	session, err := s.Store.GetSession(ctx, accountID, sessionID)
	if err != nil {
		return &UpdateResult{Result: "error"}, nil
	}
	if session.AgentStateVersion != expectedVersion {
		stored := ""
		if session.AgentState != nil {
			stored = *session.AgentState
		}
		return &UpdateResult{Result: "version-mismatch", Version: session.AgentStateVersion, AgentState: stored}, nil
	}

	updated, err := s.Store.UpdateSessionAgentState(ctx, accountID, sessionID, agentState, expectedVersion)
	if err != nil {
		latest, rerr := s.Store.GetSession(ctx, accountID, sessionID)
		if rerr != nil {
			return &UpdateResult{Result: "error"}, nil
		}
		stored := ""
		if latest.AgentState != nil {
			stored = *latest.AgentState
		}
		return &UpdateResult{Result: "version-mismatch", Version: latest.AgentStateVersion, AgentState: stored}, nil
	}

	if err := s.emitUpdate(ctx, accountID, "update", "update-session", map[string]interface{}{
		"sessionId": sessionID,
		"value":     agentState,
		"version":   updated.AgentStateVersion,
	}, router.ToSession(sessionID), skipConnID); err != nil {
		return nil, err
	}

	s.invalidateSessionCache(ctx, sessionID)
	s.invalidateAccountSessionsCache(ctx, accountID)
	return &UpdateResult{Result: "success", Version: updated.AgentStateVersion, AgentState: agentState}, nil
}

// HeartbeatSession implements session-alive/session-end (§4.5): within
// the ±10 minute window, updates active state and emits an activity
// ephemeral; outside it, the heartbeat is silently ignored (§8
// invariant 8).
func (s *Service) HeartbeatSession(ctx context.Context, accountID, sessionID string, active bool, clientTime int64, thinking bool) error {
	activeAt, ok := clampHeartbeatTime(clientTime)
	if !ok {
		return nil
	}

	if err := s.Store.SetSessionActive(ctx, accountID, sessionID, active, msToTime(activeAt)); err != nil {
		return wrapStoreErr(err)
	}

	s.emit(accountID, "ephemeral", Ephemeral{
		Type:     "activity",
		ID:       sessionID,
		Active:   active,
		ActiveAt: activeAt,
		Thinking: thinking,
	}, router.ToUserScope(), "")
	return nil
}
