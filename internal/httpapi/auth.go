package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/errors"
)

type authRequest struct {
	PublicKey string `json:"publicKey" binding:"required"`
	Challenge string `json:"challenge" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// Authenticate implements POST /v1/auth (§4.4).
func (h *Handler) Authenticate(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithError(c, errors.BadRequest("invalid request body"))
		return
	}

	token, _, err := h.service.Authenticate(c.Request.Context(), req.PublicKey, req.Challenge, req.Signature)
	if err != nil {
		errors.AbortWithError(c, errors.Unauthorized("invalid signature"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

type pairingRequestBody struct {
	PublicKey string `json:"publicKey" binding:"required"`
}

// RequestPairing implements POST /v1/auth/account/request (§4.4).
func (h *Handler) RequestPairing(c *gin.Context) {
	var req pairingRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithError(c, errors.BadRequest("invalid request body"))
		return
	}

	state, err := h.service.RequestPairing(c.Request.Context(), req.PublicKey)
	if err != nil {
		errors.AbortWithError(c, errors.BadRequest(err.Error()))
		return
	}

	c.JSON(http.StatusOK, state)
}

type pairingResponseBody struct {
	PublicKey string `json:"publicKey" binding:"required"`
	Response  string `json:"response" binding:"required"`
}

// RespondPairing implements POST /v1/auth/account/response (§4.4).
func (h *Handler) RespondPairing(c *gin.Context) {
	var req pairingResponseBody
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithError(c, errors.BadRequest("invalid request body"))
		return
	}

	accountID := auth.AccountID(c)
	if err := h.service.RespondPairing(c.Request.Context(), accountID, req.PublicKey, req.Response); err != nil {
		errors.AbortWithError(c, errors.BadRequest(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
