package wsapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consortium/relay/internal/router"
	"github.com/consortium/relay/internal/rpc"
)

func TestClient_SendEnqueuesFrame(t *testing.T) {
	c := newClient(nil, "acct1", router.UserScoped, "", "")
	require.NoError(t, c.Send([]byte("hello")))
	assert.Equal(t, []byte("hello"), <-c.send)
}

func TestClient_SendDropsWhenBufferFull(t *testing.T) {
	c := newClient(nil, "acct1", router.UserScoped, "", "")
	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}
	assert.Equal(t, errSendBufferFull, c.Send([]byte("overflow")))
}

func TestClient_DispatchBuildsRPCRequestFrame(t *testing.T) {
	c := newClient(nil, "acct1", router.SessionScoped, "sess1", "")

	err := c.Dispatch(rpc.Target{AccountID: "acct1", ConnID: "conn1"}, "call-1", "doThing", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)

	raw := <-c.send
	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "rpc-request", frame.Event)
	assert.Equal(t, "call-1", frame.AckID)

	var data rpcRequestData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	assert.Equal(t, "doThing", data.Method)
	assert.JSONEq(t, `{"x":1}`, string(data.Params))
}
