package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/errors"
)

// sessionResponse adds the derived activeAt millisecond field GET
// /v1/sessions carries alongside the stored session fields (§4.4).
type sessionResponse struct {
	*db.Session
	ActiveAt int64 `json:"activeAt"`
}

func toSessionResponse(s *db.Session) sessionResponse {
	return sessionResponse{Session: s, ActiveAt: s.LastActiveAt.UnixMilli()}
}

// ListSessions implements GET /v1/sessions (§4.4). An optional
// `sinceSeq` query parameter asks the response to also carry the
// account's current seq, a reconnect hint a client can use to notice
// it missed events (§5).
func (h *Handler) ListSessions(c *gin.Context) {
	accountID := auth.AccountID(c)
	sessions, err := h.service.ListSessions(c.Request.Context(), accountID)
	if err != nil {
		errors.AbortWithError(c, errors.StoreError(err))
		return
	}

	resp := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		resp[i] = toSessionResponse(s)
	}

	body := gin.H{"sessions": resp}
	if c.Query("sinceSeq") != "" {
		if seq, err := h.service.AccountSeq(c.Request.Context(), accountID); err == nil {
			body["accountSeq"] = seq
		}
	}
	c.JSON(http.StatusOK, body)
}

type createSessionRequest struct {
	Tag               string  `json:"tag" binding:"required"`
	Metadata          string  `json:"metadata" binding:"required"`
	AgentState        *string `json:"agentState"`
	DataEncryptionKey *string `json:"dataEncryptionKey"`
}

// CreateSession implements POST /v1/sessions (§4.4, §8 scenario 1).
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithError(c, errors.BadRequest("invalid request body"))
		return
	}

	accountID := auth.AccountID(c)
	session, err := h.service.CreateSession(c.Request.Context(), accountID, req.Tag, req.Metadata, req.AgentState, req.DataEncryptionKey)
	if err != nil {
		errors.AbortWithError(c, errors.StoreError(err))
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(session))
}

// ListMessages implements GET /v1/sessions/:id/messages (§4.4).
func (h *Handler) ListMessages(c *gin.Context) {
	accountID := auth.AccountID(c)
	sessionID := c.Param("id")

	messages, err := h.service.ListMessages(c.Request.Context(), accountID, sessionID)
	if err != nil {
		errors.AbortWithError(c, appErrorFor("session", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// DeleteSession implements DELETE /v1/sessions/:id (§4.4, §8 scenario 6).
func (h *Handler) DeleteSession(c *gin.Context) {
	accountID := auth.AccountID(c)
	sessionID := c.Param("id")

	if err := h.service.DeleteSession(c.Request.Context(), accountID, sessionID); err != nil {
		errors.AbortWithError(c, appErrorFor("session", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
