package wsapi

import "encoding/json"

// Frame is the wire envelope for every WebSocket message in both
// directions, a Socket.IO-style {event, data, ackId} shape (§9: "embed
// a correlation id and respond on a reply channel"). ackId round-trips
// a client's request-reply frame (update-metadata, rpc-call, ping) to
// its callback.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId,omitempty"`
}

// errorFrame is the {event:"error"} shape sent on handshake or
// protocol failure before the socket is closed (§4.5, §6).
func errorFrame(message string) []byte {
	data, _ := json.Marshal(map[string]string{"message": message})
	frame, _ := json.Marshal(Frame{Event: "error", Data: data})
	return frame
}

func ackFrame(ackID string, payload interface{}) []byte {
	data := mustMarshal(payload)
	frame, _ := json.Marshal(Frame{Event: "ack", AckID: ackID, Data: data})
	return frame
}

// connectedFrame answers a handshake's `sinceSeq` reconnect hint with
// the account's current seq, sent once right after registration (§5).
func connectedFrame(accountSeq int64) []byte {
	data, _ := json.Marshal(map[string]int64{"accountSeq": accountSeq})
	frame, _ := json.Marshal(Frame{Event: "connected", Data: data})
	return frame
}
