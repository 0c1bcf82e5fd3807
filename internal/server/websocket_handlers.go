package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/netthinne/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketDetectRequest is a detect request sent over WebSocket. Image holds
// the encoded image bytes; in JSON it is a base64 string.
type WebSocketDetectRequest struct {
	Type  string `json:"type"` // "image"
	Image []byte `json:"image,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketDetectResponse is a progress, result or error message.
type WebSocketDetectResponse struct {
	Type      string      `json:"type"`
	Status    string      `json:"status"` // "processing", "completed", "error"
	Progress  float64     `json:"progress,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorType string      `json:"error_type,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// detectWebSocketHandler upgrades the connection and serves detect requests
// until the client goes away.
func (s *Server) detectWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn, s.rateLimiter.clientID(r))
}

// wsReadLimit is the largest accepted message: a base64 image of the upload
// limit plus room for the JSON envelope.
func (s *Server) wsReadLimit() int64 {
	return s.maxUploadMB*1024*1024*4/3 + 4096
}

func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn, client string) {
	conn.SetReadLimit(s.wsReadLimit())
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType != websocket.TextMessage {
			continue
		}
		if err := s.admitWebSocketMessage(client, len(data)); err != nil {
			recordRateLimitHit(err)
			s.sendWebSocketError(conn, "rate_limited", err.Error())
			continue
		}
		s.handleWebSocketMessage(ctx, conn, data)
	}
}

// admitWebSocketMessage counts one detect request of size bytes against the
// client's budget.
func (s *Server) admitWebSocketMessage(client string, size int) error {
	if err := s.rateLimiter.Allow(client); err != nil {
		return err
	}
	if err := s.rateLimiter.Consume(client, int64(size)); err != nil {
		return err
	}
	return nil
}

// handleWebSocketMessage decodes one request and answers with progress,
// result or error messages on conn.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketDetectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.Type != "image" {
		s.sendWebSocketError(conn, "invalid_request", "Unsupported request type: "+req.Type)
		return
	}
	if len(req.Image) == 0 {
		s.sendWebSocketError(conn, "invalid_request", "No image data provided")
		return
	}

	requestID := strconv.FormatInt(time.Now().UnixNano(), 10)
	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "processing",
		RequestID: requestID,
	})

	img, _, err := utils.DecodeImageBytes(req.Image)
	if err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to decode image: %v", err))
		return
	}

	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "processing",
		Progress:  0.5,
		RequestID: requestID,
	})

	res, err := s.process(ctx, "websocket", img)
	if err != nil {
		errType := "processing_error"
		if statusFor(err) == http.StatusServiceUnavailable {
			errType = "model_unavailable"
		}
		s.sendWebSocketError(conn, errType, fmt.Sprintf("Detection failed: %v", err))
		return
	}

	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "detect_response",
		Status:    "completed",
		Progress:  1.0,
		Result:    res,
		RequestID: requestID,
	})
}

func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketDetectResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketDetectResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
	})
}
