package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/netthinne/internal/onnx"
)

// recordingConn collects messages written by the handler.
type recordingConn struct {
	messages []WebSocketDetectResponse
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	var msg WebSocketDetectResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.messages = append(c.messages, msg)
	return nil
}

func imageRequest(t *testing.T, data []byte) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"type":  "image",
		"image": base64.StdEncoding.EncodeToString(data),
	})
	require.NoError(t, err)
	return raw
}

func TestHandleWebSocketMessage_Completed(t *testing.T) {
	server := newTestServer(&mockPipeline{})
	conn := &recordingConn{}

	server.handleWebSocketMessage(t.Context(), conn, imageRequest(t, pngBytes(t)))

	require.Len(t, conn.messages, 3)
	assert.Equal(t, "processing", conn.messages[0].Status)
	assert.InDelta(t, 0.5, conn.messages[1].Progress, 1e-9)
	last := conn.messages[2]
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, conn.messages[0].RequestID, last.RequestID)

	result, ok := last.Result.(map[string]interface{})
	require.True(t, ok)
	objects, ok := result["objects"].([]interface{})
	require.True(t, ok)
	assert.Len(t, objects, 1)
}

func TestHandleWebSocketMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		pl      pipelineInterface
		payload func(t *testing.T) []byte
		errType string
	}{
		{"bad json", &mockPipeline{}, func(*testing.T) []byte { return []byte("{") }, "invalid_request"},
		{"wrong type", &mockPipeline{}, func(*testing.T) []byte { return []byte(`{"type":"pdf"}`) }, "invalid_request"},
		{"no image", &mockPipeline{}, func(*testing.T) []byte { return []byte(`{"type":"image"}`) }, "invalid_request"},
		{"bad image", &mockPipeline{}, func(t *testing.T) []byte { return imageRequest(t, []byte("nope")) }, "invalid_request"},
		{
			"model unavailable",
			&mockPipeline{err: fmt.Errorf("%w: classifier", onnx.ErrModelUnavailable)},
			func(t *testing.T) []byte { return imageRequest(t, pngBytes(t)) },
			"model_unavailable",
		},
		{
			"processing error",
			&mockPipeline{err: assert.AnError},
			func(t *testing.T) []byte { return imageRequest(t, pngBytes(t)) },
			"processing_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(tt.pl)
			conn := &recordingConn{}
			server.handleWebSocketMessage(t.Context(), conn, tt.payload(t))

			require.NotEmpty(t, conn.messages)
			last := conn.messages[len(conn.messages)-1]
			assert.Equal(t, "error", last.Status)
			assert.Equal(t, tt.errType, last.ErrorType)
		})
	}
}

func TestDetectWebSocketHandler_RoundTrip(t *testing.T) {
	server := newTestServer(&mockPipeline{})
	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, imageRequest(t, pngBytes(t))))

	var msg WebSocketDetectResponse
	for msg.Status != "completed" && msg.Status != "error" {
		require.NoError(t, conn.ReadJSON(&msg))
	}
	assert.Equal(t, "completed", msg.Status)
}

func TestAdmitWebSocketMessage(t *testing.T) {
	server := newServer(Config{
		MaxUploadMB: 1,
		TimeoutSec:  5,
		RateLimit:   RateLimitConfig{Enabled: true, RequestsPerDay: 2, BytesPerDay: 1000},
	}, &mockPipeline{})

	assert.Equal(t, int64(1<<20*4/3+4096), server.wsReadLimit())

	require.NoError(t, server.admitWebSocketMessage("a", 600))

	var qe *QuotaExceededError
	require.ErrorAs(t, server.admitWebSocketMessage("a", 600), &qe)
	assert.Equal(t, "bytes", qe.Type)

	require.ErrorAs(t, server.admitWebSocketMessage("a", 10), &qe)
	assert.Equal(t, "requests", qe.Type)

	assert.NoError(t, server.admitWebSocketMessage("b", 10))
}

func TestDetectWebSocketHandler_OversizedMessageCloses(t *testing.T) {
	server := newTestServer(&mockPipeline{})
	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	big := make([]byte, server.wsReadLimit()+1)
	for i := range big {
		big[i] = 'a'
	}
	_ = conn.WriteMessage(websocket.TextMessage, big)

	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
