package relay

import (
	"context"
	"fmt"

	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/router"
)

// encryptedEnvelope wraps a raw client payload as the opaque wire shape
// messages are persisted under (§3: "content (opaque wrapped ciphertext
// of shape {t:\"encrypted\", c:<base64>})").
type encryptedEnvelope struct {
	T string `json:"t"`
	C string `json:"c"`
}

// PostMessage implements the `message` WebSocket frame (§4.5): verifies
// session ownership, drops same-localId re-sends, allocates account and
// session sequence numbers, persists the message, and emits a
// new-message update to everyone interested in the session except the
// sender (§8 invariants 3, 4, 6).
func (s *Service) PostMessage(ctx context.Context, accountID, sessionID, message string, localID *string, skipConnID string) (*db.SessionMessage, error) {
	if _, err := s.Store.GetSession(ctx, accountID, sessionID); err != nil {
		return nil, wrapStoreErr(err)
	}

	if localID != nil {
		if existing, err := s.Store.GetMessageByLocalID(ctx, sessionID, *localID); err == nil {
			return existing, nil
		}
	}

	seq, err := s.Store.AllocateSessionSeq(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate session seq: %w", err)
	}

	content, err := marshalEncryptedEnvelope(message)
	if err != nil {
		return nil, err
	}

	msg, err := s.Store.InsertMessage(ctx, sessionID, seq, content, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := s.emitUpdate(ctx, accountID, "update", "new-message", map[string]interface{}{
		"sessionId": sessionID,
		"message":   msg,
	}, router.ToSession(sessionID), skipConnID); err != nil {
		return nil, err
	}

	s.invalidateSessionCache(ctx, sessionID)
	return msg, nil
}
