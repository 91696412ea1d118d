package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/errors"
)

// ListMachines implements GET /v1/machines (§4.4).
func (h *Handler) ListMachines(c *gin.Context) {
	accountID := auth.AccountID(c)
	machines, err := h.service.ListMachines(c.Request.Context(), accountID)
	if err != nil {
		errors.AbortWithError(c, errors.StoreError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"machines": machines})
}

// GetMachine implements GET /v1/machines/:id (§4.4).
func (h *Handler) GetMachine(c *gin.Context) {
	accountID := auth.AccountID(c)
	machineID := c.Param("id")

	machine, err := h.service.GetMachine(c.Request.Context(), accountID, machineID)
	if err != nil {
		errors.AbortWithError(c, appErrorFor("machine", err))
		return
	}
	c.JSON(http.StatusOK, machine)
}

type upsertMachineRequest struct {
	ID                string  `json:"id" binding:"required"`
	Metadata          string  `json:"metadata" binding:"required"`
	DaemonState       *string `json:"daemonState"`
	DataEncryptionKey *string `json:"dataEncryptionKey"`
}

// UpsertMachine implements POST /v1/machines (§4.4).
func (h *Handler) UpsertMachine(c *gin.Context) {
	var req upsertMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithError(c, errors.BadRequest("invalid request body"))
		return
	}

	accountID := auth.AccountID(c)
	machine, err := h.service.UpsertMachine(c.Request.Context(), accountID, req.ID, req.Metadata, req.DaemonState, req.DataEncryptionKey)
	if err != nil {
		errors.AbortWithError(c, errors.StoreError(err))
		return
	}

	c.JSON(http.StatusOK, machine)
}
