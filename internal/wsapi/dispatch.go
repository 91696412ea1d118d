package wsapi

import (
	"context"
	"encoding/json"

	"github.com/consortium/relay/internal/logger"
	"github.com/consortium/relay/internal/relay"
	"github.com/consortium/relay/internal/router"
	"github.com/consortium/relay/internal/rpc"
)

// dispatch handles one inbound frame. Every handler is wrapped so a
// panic or unexpected error degrades to a safe response instead of
// crashing the connection (§4.6).
func dispatch(service *relay.Service, client *Client, conn *router.Connection, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.WebSocket().Error().Interface("panic", r).Str("accountId", client.AccountID).
				Msg("recovered from panic handling frame")
		}
	}()

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		client.Send(errorFrame("malformed frame"))
		return
	}

	ctx := context.Background()

	switch frame.Event {
	case "message":
		handleMessage(ctx, service, client, conn, frame)
	case "session-alive":
		handleSessionAlive(ctx, service, client, frame, true)
	case "session-end":
		handleSessionAlive(ctx, service, client, frame, false)
	case "machine-alive":
		handleMachineAlive(ctx, service, client, frame)
	case "update-metadata":
		handleUpdateMetadata(ctx, service, client, conn, frame)
	case "update-state":
		handleUpdateState(ctx, service, client, conn, frame)
	case "machine-update-metadata":
		handleMachineUpdateMetadata(ctx, service, client, conn, frame)
	case "machine-update-state":
		handleMachineUpdateState(ctx, service, client, conn, frame)
	case "rpc-register":
		handleRPCRegister(service, client, conn, frame)
	case "rpc-unregister":
		handleRPCUnregister(service, client, conn, frame)
	case "rpc-call":
		go handleRPCCall(ctx, service, client, conn, frame)
	case "ack":
		handleAck(service, frame)
	case "ping":
		client.Send(ackFrame(frame.AckID, map[string]interface{}{}))
	default:
		logger.WebSocket().Debug().Str("event", frame.Event).Msg("unknown frame event")
	}
}

type messageData struct {
	SID     string  `json:"sid"`
	Message string  `json:"message"`
	LocalID *string `json:"localId,omitempty"`
}

func handleMessage(ctx context.Context, service *relay.Service, client *Client, conn *router.Connection, frame Frame) {
	var data messageData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return
	}
	if _, err := service.PostMessage(ctx, client.AccountID, data.SID, data.Message, data.LocalID, conn.ID); err != nil {
		logger.WebSocket().Debug().Err(err).Str("sid", data.SID).Msg("failed to post message")
	}
}

type aliveData struct {
	SID      string `json:"sid"`
	Time     int64  `json:"time"`
	Thinking bool   `json:"thinking,omitempty"`
}

func handleSessionAlive(ctx context.Context, service *relay.Service, client *Client, frame Frame, active bool) {
	var data aliveData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return
	}
	if err := service.HeartbeatSession(ctx, client.AccountID, data.SID, active, data.Time, data.Thinking); err != nil {
		logger.WebSocket().Debug().Err(err).Str("sid", data.SID).Msg("failed to record session heartbeat")
	}
}

type machineAliveData struct {
	MachineID string `json:"machineId"`
	Time      int64  `json:"time"`
}

func handleMachineAlive(ctx context.Context, service *relay.Service, client *Client, frame Frame) {
	var data machineAliveData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return
	}
	if err := service.HeartbeatMachine(ctx, client.AccountID, data.MachineID, true, data.Time); err != nil {
		logger.WebSocket().Debug().Err(err).Str("machineId", data.MachineID).Msg("failed to record machine heartbeat")
	}
}

type updateData struct {
	SID             string `json:"sid"`
	MachineID       string `json:"machineId"`
	Metadata        string `json:"metadata"`
	AgentState      string `json:"agentState"`
	ExpectedVersion int    `json:"expectedVersion"`
}

func handleUpdateMetadata(ctx context.Context, service *relay.Service, client *Client, conn *router.Connection, frame Frame) {
	var data updateData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		client.Send(ackFrame(frame.AckID, &relay.UpdateResult{Result: "error"}))
		return
	}
	result, err := service.UpdateSessionMetadata(ctx, client.AccountID, data.SID, data.Metadata, data.ExpectedVersion, conn.ID)
	if err != nil {
		result = &relay.UpdateResult{Result: "error"}
	}
	client.Send(ackFrame(frame.AckID, result))
}

func handleUpdateState(ctx context.Context, service *relay.Service, client *Client, conn *router.Connection, frame Frame) {
	var data updateData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		client.Send(ackFrame(frame.AckID, &relay.UpdateResult{Result: "error"}))
		return
	}
	result, err := service.UpdateSessionAgentState(ctx, client.AccountID, data.SID, data.AgentState, data.ExpectedVersion, conn.ID)
	if err != nil {
		result = &relay.UpdateResult{Result: "error"}
	}
	client.Send(ackFrame(frame.AckID, result))
}

func handleMachineUpdateMetadata(ctx context.Context, service *relay.Service, client *Client, conn *router.Connection, frame Frame) {
	var data updateData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		client.Send(ackFrame(frame.AckID, &relay.UpdateResult{Result: "error"}))
		return
	}
	result, err := service.UpdateMachineMetadata(ctx, client.AccountID, data.MachineID, data.Metadata, data.ExpectedVersion, conn.ID)
	if err != nil {
		result = &relay.UpdateResult{Result: "error"}
	}
	client.Send(ackFrame(frame.AckID, result))
}

func handleMachineUpdateState(ctx context.Context, service *relay.Service, client *Client, conn *router.Connection, frame Frame) {
	var data updateData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		client.Send(ackFrame(frame.AckID, &relay.UpdateResult{Result: "error"}))
		return
	}
	result, err := service.UpdateMachineDaemonState(ctx, client.AccountID, data.MachineID, data.AgentState, data.ExpectedVersion, conn.ID)
	if err != nil {
		result = &relay.UpdateResult{Result: "error"}
	}
	client.Send(ackFrame(frame.AckID, result))
}

type rpcRegisterData struct {
	Method string `json:"method"`
}

func handleRPCRegister(service *relay.Service, client *Client, conn *router.Connection, frame Frame) {
	var data rpcRegisterData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return
	}
	service.RPC.Register(client.AccountID, data.Method, conn.ID, client)
	client.Send(mustFrame("rpc-registered", map[string]string{"method": data.Method}))
}

func handleRPCUnregister(service *relay.Service, client *Client, conn *router.Connection, frame Frame) {
	var data rpcRegisterData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return
	}
	service.RPC.Unregister(client.AccountID, data.Method, conn.ID)
	client.Send(mustFrame("rpc-unregistered", map[string]string{"method": data.Method}))
}

type rpcCallData struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// rpcCallResult is the callback payload for rpc-call (§4.5).
type rpcCallResult struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func handleRPCCall(ctx context.Context, service *relay.Service, client *Client, conn *router.Connection, frame Frame) {
	var data rpcCallData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		client.Send(ackFrame(frame.AckID, rpcCallResult{OK: false, Error: "Internal error"}))
		return
	}

	result, err := service.RPC.Call(ctx, client.AccountID, conn.ID, data.Method, data.Params)
	if err != nil {
		switch err {
		case rpc.ErrNotRegistered:
			client.Send(ackFrame(frame.AckID, rpcCallResult{OK: false, Error: "RPC method not available"}))
		case rpc.ErrSameSocket:
			client.Send(ackFrame(frame.AckID, rpcCallResult{OK: false, Error: "Cannot call RPC on the same socket"}))
		case rpc.ErrAckTimeout:
			client.Send(ackFrame(frame.AckID, rpcCallResult{OK: false, Error: "RPC call timed out"}))
		default:
			client.Send(ackFrame(frame.AckID, rpcCallResult{OK: false, Error: err.Error()}))
		}
		return
	}
	client.Send(ackFrame(frame.AckID, rpcCallResult{OK: true, Result: result}))
}

// handleAck resolves a pending RPC call when the registering connection
// acks the rpc-request frame it was sent, correlated by ackId (§4.5:
// "On target ack, callback {ok:true, result:<ack payload>}"). The
// relay never inspects the ack payload's contents.
func handleAck(service *relay.Service, frame Frame) {
	if frame.AckID == "" {
		return
	}
	service.RPC.Resolve(frame.AckID, frame.Data, "")
}

func mustFrame(event string, data interface{}) []byte {
	frame, err := json.Marshal(Frame{Event: event, Data: mustMarshal(data)})
	if err != nil {
		return errorFrame("internal error")
	}
	return frame
}
