package wsapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/consortium/relay/internal/logger"
	"github.com/consortium/relay/internal/relay"
	"github.com/consortium/relay/internal/router"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// CORS is allow-any-origin across the relay's surface (§6); the
	// WebSocket upgrade follows the same policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server serves the /v1/updates WebSocket endpoint (§6).
type Server struct {
	service *relay.Service
}

// NewServer constructs a wsapi.Server bound to service.
func NewServer(service *relay.Service) *Server {
	return &Server{service: service}
}

// Handle upgrades the connection and runs the handshake described in
// §4.5: verify the token, validate scope-specific handshake fields,
// register with the event router, and start the read/write pumps.
func (s *Server) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WebSocket().Debug().Err(err).Msg("failed to upgrade connection")
		return
	}

	client, connType, sinceSeq, err := s.handshake(c, conn)
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, errorFrame(err.Error()))
		conn.Close()
		return
	}

	routerConn := router.NewConnection(client.AccountID, connType, client)
	s.service.Hub.Register(routerConn)

	if connType == router.MachineScoped {
		s.service.HeartbeatMachine(c.Request.Context(), client.AccountID, client.MachineID, true, nowMs())
	}

	if sinceSeq {
		if seq, err := s.service.AccountSeq(c.Request.Context(), client.AccountID); err == nil {
			client.Send(connectedFrame(seq))
		}
	}

	go client.writePump()
	s.readPump(c, client, routerConn)
}

// handshake verifies the token, validates scope-specific fields, and
// reports whether the caller sent a `sinceSeq` reconnect hint (§5) —
// the hint's value itself doesn't matter, only its presence, since the
// response carries the account's *current* seq rather than a delta.
func (s *Server) handshake(c *gin.Context, conn *websocket.Conn) (*Client, router.ConnectionType, bool, error) {
	token := c.Query("token")
	clientType := c.Query("clientType")
	sessionID := c.Query("sessionId")
	machineID := c.Query("machineId")
	_, sinceSeq := c.GetQuery("sinceSeq")

	if token == "" {
		return nil, 0, false, errMissingToken
	}
	claims, err := s.service.Tokens.Verify(c.Request.Context(), token)
	if err != nil {
		return nil, 0, false, errInvalidToken
	}

	var connType router.ConnectionType
	switch clientType {
	case "session":
		if sessionID == "" {
			return nil, 0, false, errMissingSessionID
		}
		if _, err := s.service.Store.GetSession(c.Request.Context(), claims.AccountID, sessionID); err != nil {
			return nil, 0, false, errUnknownSession
		}
		connType = router.SessionScoped
	case "machine":
		if machineID == "" {
			return nil, 0, false, errMissingMachineID
		}
		connType = router.MachineScoped
	case "user", "":
		connType = router.UserScoped
	default:
		return nil, 0, false, errUnknownClientType
	}

	return newClient(conn, claims.AccountID, connType, sessionID, machineID), connType, sinceSeq, nil
}

// readPump reads frames off the socket until it closes, dispatching
// each to its handler, and unwinds registrations on exit (§4.5
// "Disconnect").
func (s *Server) readPump(c *gin.Context, client *Client, conn *router.Connection) {
	defer func() {
		s.service.Hub.Unregister(conn)
		s.service.RPC.RemoveConnection(client.AccountID, conn.ID)
		if client.Type == router.MachineScoped {
			s.service.HeartbeatMachine(c.Request.Context(), client.AccountID, client.MachineID, false, nowMs())
		}
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(timeNow().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(timeNow().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WebSocket().Debug().Err(err).Str("accountId", client.AccountID).Msg("websocket read error")
			}
			return
		}
		client.conn.SetReadDeadline(timeNow().Add(pongWait))

		dispatch(s.service, client, conn, data)
	}
}
