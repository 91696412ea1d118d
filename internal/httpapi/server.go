// Package httpapi implements the relay's REST surface: pairing,
// sessions, messages, and machines (§4.4). Every handler delegates its
// business logic to internal/relay.Service so the same rules apply
// whether a client reaches the relay over HTTP or WebSocket.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/consortium/relay/internal/auth"
	"github.com/consortium/relay/internal/errors"
	"github.com/consortium/relay/internal/relay"
)

// Handler holds the dependencies every REST endpoint needs.
type Handler struct {
	service *relay.Service
	tokens  *auth.TokenService
}

// NewHandler constructs a Handler bound to service.
func NewHandler(service *relay.Service, tokens *auth.TokenService) *Handler {
	return &Handler{service: service, tokens: tokens}
}

// Register mounts every §4.4 route onto router. Account auth and the
// pairing request poll are unauthenticated; everything else, including
// the pairing response, requires a bearer token.
func (h *Handler) Register(router gin.IRouter) {
	router.POST("/v1/auth", h.Authenticate)
	router.POST("/v1/auth/account/request", h.RequestPairing)

	authed := router.Group("/")
	authed.Use(auth.Middleware(h.tokens))
	{
		authed.POST("/v1/auth/account/response", h.RespondPairing)

		authed.GET("/v1/sessions", h.ListSessions)
		authed.POST("/v1/sessions", h.CreateSession)
		authed.GET("/v1/sessions/:id/messages", h.ListMessages)
		authed.DELETE("/v1/sessions/:id", h.DeleteSession)

		authed.GET("/v1/machines", h.ListMachines)
		authed.POST("/v1/machines", h.UpsertMachine)
		authed.GET("/v1/machines/:id", h.GetMachine)
	}
}

// appErrorFor maps a relay-layer error to the AppError §7 expects:
// relay.ErrNotFound always renders as a generic 404, masking whether
// the resource never existed or simply isn't owned by the caller.
func appErrorFor(resource string, err error) *errors.AppError {
	if err == relay.ErrNotFound {
		return errors.NotFound(resource)
	}
	return errors.StoreError(err)
}
