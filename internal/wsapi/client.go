// Package wsapi implements the relay's real-time WebSocket protocol
// layer: handshake, disconnect, message framing, the optimistic-
// concurrency update handshake, and the RPC bridge wire format (§4.5).
package wsapi

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/consortium/relay/internal/router"
	"github.com/consortium/relay/internal/rpc"
)

// sendBufferSize bounds how many outbound frames a connection can have
// queued; once it is full, further frames for that connection are dropped
// until the queue drains, and the connection stays registered (§8: "a
// slow or dead connection never blocks delivery to other recipients").
const sendBufferSize = 256

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client wraps one WebSocket connection. It implements router.Sender
// (for Hub fan-out) and rpc.Dispatcher (for RPC call delivery).
type Client struct {
	conn *websocket.Conn
	send chan []byte

	AccountID string
	Type      router.ConnectionType
	SessionID string
	MachineID string
}

// newClient constructs a Client around a live WebSocket connection.
func newClient(conn *websocket.Conn, accountID string, connType router.ConnectionType, sessionID, machineID string) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		AccountID: accountID,
		Type:      connType,
		SessionID: sessionID,
		MachineID: machineID,
	}
}

// Send implements router.Sender: a non-blocking enqueue, dropping the
// frame if the client's buffer is full rather than blocking the caller
// (§4.3, §8).
func (c *Client) Send(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Dispatch implements rpc.Dispatcher: delivers an rpc-request frame to
// this client carrying the call id as the frame's ack correlation id
// (§4.5, §9: "embed a correlation id and respond on a reply channel").
func (c *Client) Dispatch(_ rpc.Target, callID, method string, params json.RawMessage) error {
	frame, err := json.Marshal(Frame{
		Event: "rpc-request",
		AckID: callID,
		Data:  mustMarshal(rpcRequestData{Method: method, Params: params}),
	})
	if err != nil {
		return err
	}
	return c.Send(frame)
}

type rpcRequestData struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

// writePump drains c.send to the socket, closing the connection if the
// hub closes the channel or a write fails. Mirrors the ping-to-keep-
// alive pattern used throughout the relay's transport layer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var errSendBufferFull = errors.New("client send buffer full")
