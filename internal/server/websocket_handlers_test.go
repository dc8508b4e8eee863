package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWebSocketConn records written messages.
type mockWebSocketConn struct {
	sentMessages []sentMessage
}

type sentMessage struct {
	messageType int
	data        []byte
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	m.sentMessages = append(m.sentMessages, sentMessage{messageType: messageType, data: data})
	return nil
}

func (m *mockWebSocketConn) responses(t *testing.T) []WebSocketResponse {
	t.Helper()
	out := make([]WebSocketResponse, len(m.sentMessages))
	for i, msg := range m.sentMessages {
		assert.Equal(t, websocket.TextMessage, msg.messageType)
		require.NoError(t, json.Unmarshal(msg.data, &out[i]))
	}
	return out
}

func TestServer_HandleWebSocketMessage(t *testing.T) {
	env := newTestEnv(t, passingResult())
	ctx := context.Background()

	t.Run("invalid json", func(t *testing.T) {
		conn := &mockWebSocketConn{}
		env.server.handleWebSocketMessage(ctx, conn, []byte("{not json"))
		resp := conn.responses(t)
		require.Len(t, resp, 1)
		assert.Equal(t, "error", resp[0].Type)
		assert.Equal(t, "invalid_request", resp[0].ErrorType)
	})

	t.Run("ping", func(t *testing.T) {
		conn := &mockWebSocketConn{}
		env.server.handleWebSocketMessage(ctx, conn, []byte(`{"type":"ping"}`))
		resp := conn.responses(t)
		require.Len(t, resp, 1)
		assert.Equal(t, "pong", resp[0].Type)
	})

	t.Run("unknown type", func(t *testing.T) {
		conn := &mockWebSocketConn{}
		env.server.handleWebSocketMessage(ctx, conn, []byte(`{"type":"print"}`))
		resp := conn.responses(t)
		require.Len(t, resp, 1)
		assert.Contains(t, resp[0].Error, "Unsupported request type")
	})

	t.Run("missing image", func(t *testing.T) {
		conn := &mockWebSocketConn{}
		env.server.handleWebSocketMessage(ctx, conn, []byte(`{"type":"validate"}`))
		resp := conn.responses(t)
		require.Len(t, resp, 1)
		assert.Equal(t, "No image data provided", resp[0].Error)
	})

	t.Run("invalid order id", func(t *testing.T) {
		conn := &mockWebSocketConn{}
		env.server.handleWebSocketImage(ctx, conn, smallPNG(t), "../x")
		resp := conn.responses(t)
		require.Len(t, resp, 1)
		assert.Equal(t, "Invalid orderId", resp[0].Error)
	})

	t.Run("validate", func(t *testing.T) {
		conn := &mockWebSocketConn{}
		req, err := json.Marshal(WebSocketRequest{Type: "validate", Image: smallPNG(t)})
		require.NoError(t, err)
		env.server.handleWebSocketMessage(ctx, conn, req)

		resp := conn.responses(t)
		require.Len(t, resp, 2)
		assert.Equal(t, "progress", resp[0].Type)
		assert.Equal(t, "received", resp[0].Stage)
		assert.Equal(t, "result", resp[1].Type)
		assert.Equal(t, "completed", resp[1].Status)
		require.NotNil(t, resp[1].Result)
		assert.True(t, resp[1].Result.Success)
		assert.Equal(t, resp[0].RequestID, resp[1].RequestID)
	})
}

func dialWebSocket(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/validate"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilDone reads messages until a result or error arrives.
func readUntilDone(t *testing.T, conn *websocket.Conn) []WebSocketResponse {
	t.Helper()
	var out []WebSocketResponse
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
		var resp WebSocketResponse
		require.NoError(t, conn.ReadJSON(&resp))
		out = append(out, resp)
		if resp.Type == "result" || resp.Type == "error" {
			return out
		}
	}
}

func TestServer_WebSocketBinaryFrame(t *testing.T) {
	env := newTestEnv(t, passingResult())
	conn := dialWebSocket(t, env)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, smallPNG(t)))
	msgs := readUntilDone(t, conn)

	last := msgs[len(msgs)-1]
	assert.Equal(t, "result", last.Type)
	require.NotNil(t, last.Result)
	assert.True(t, last.Result.Success)
	assert.Empty(t, last.Result.OrderID)
	assert.EqualValues(t, 1, env.checker.calls.Load())
}

func TestServer_WebSocketStoresOrder(t *testing.T) {
	env := newTestEnv(t, passingResult())
	conn := dialWebSocket(t, env)

	id := storage.NewOrderID()
	require.NoError(t, conn.WriteJSON(WebSocketRequest{Type: "validate", Image: smallPNG(t), OrderID: id}))
	msgs := readUntilDone(t, conn)

	stages := make([]string, 0, len(msgs))
	for _, m := range msgs {
		stages = append(stages, m.Stage)
	}
	assert.Equal(t, []string{"received", "storing", "done"}, stages)

	last := msgs[len(msgs)-1]
	require.NotNil(t, last.Result)
	assert.Equal(t, id, last.Result.OrderID)
	assert.NotEmpty(t, last.Result.ValidatedURL)
	assert.FileExists(t, filepath.Join(env.dir, id, storage.ValidatedName))

	// The connection stays open for further requests.
	require.NoError(t, conn.WriteJSON(WebSocketRequest{Type: "ping"}))
	var pong WebSocketResponse
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong.Type)
}

func TestServer_WebSocketRejected(t *testing.T) {
	env := newTestEnv(t, rejectedResult())
	conn := dialWebSocket(t, env)

	id := storage.NewOrderID()
	require.NoError(t, conn.WriteJSON(WebSocketRequest{Image: smallPNG(t), OrderID: id}))
	msgs := readUntilDone(t, conn)

	last := msgs[len(msgs)-1]
	require.NotNil(t, last.Result)
	assert.False(t, last.Result.Success)
	assert.Equal(t, "NO_FACE_DETECTED", string(last.Result.ReasonCode))
	assert.NoDirExists(t, filepath.Join(env.dir, id))
}
