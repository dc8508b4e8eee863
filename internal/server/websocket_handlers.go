package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketRequest is a JSON validation request. Binary frames carry the
// image bytes directly and need no envelope.
type WebSocketRequest struct {
	Type    string `json:"type"` // "validate" or "ping"
	Image   []byte `json:"image,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

// WebSocketConnWriter is the write side of a websocket connection.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketResponse is every message the server sends.
type WebSocketResponse struct {
	Type      string            `json:"type"`   // "progress", "result", "error", "pong"
	Status    string            `json:"status"` // "processing", "completed", "error"
	Stage     string            `json:"stage,omitempty"`
	Progress  float64           `json:"progress,omitempty"`
	Result    *ValidateResponse `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorType string            `json:"error_type,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// websocketHandler streams progress and reports for photos sent over a
// websocket connection.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Allow(getClientIP(r), 0); err != nil {
			s.handleRateLimitError(w, err)
			return
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	s.serveWebSocket(r.Context(), conn)
}

func (s *Server) serveWebSocket(ctx context.Context, conn *websocket.Conn) {
	limit := s.maxUploadMB << 20
	conn.SetReadLimit(limit + limit/3 + 1024)
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

	w := &deadlineWriter{conn: conn}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch messageType {
		case websocket.BinaryMessage:
			s.handleWebSocketImage(ctx, w, data, "")
		case websocket.TextMessage:
			s.handleWebSocketMessage(ctx, w, data)
		}
	}
}

// deadlineWriter bounds every write with wsWriteTimeout. Pings go through
// WriteControl, which may run concurrently with WriteMessage.
type deadlineWriter struct {
	conn *websocket.Conn
}

func (l *deadlineWriter) WriteMessage(messageType int, data []byte) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return l.conn.WriteMessage(messageType, data)
}

func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	switch req.Type {
	case "ping":
		s.sendWebSocketResponse(conn, WebSocketResponse{Type: "pong", Status: "completed"})
	case "validate", "":
		s.handleWebSocketImage(ctx, conn, req.Image, req.OrderID)
	default:
		s.sendWebSocketError(conn, "", "invalid_request", "Unsupported request type: "+req.Type)
	}
}

// handleWebSocketImage runs one check and reports progress along the way.
func (s *Server) handleWebSocketImage(ctx context.Context, conn WebSocketConnWriter, image []byte, orderID string) {
	requestID := uuid.NewString()
	if len(image) == 0 {
		s.sendWebSocketError(conn, requestID, "invalid_request", "No image data provided")
		return
	}
	if int64(len(image)) > s.maxUploadMB<<20 {
		s.sendWebSocketError(conn, requestID, "invalid_request", "File too large")
		return
	}
	if orderID != "" {
		if s.orders == nil {
			s.sendWebSocketError(conn, requestID, "unavailable", "Storage unavailable")
			return
		}
		if err := storage.ValidateOrderID(orderID); err != nil {
			s.sendWebSocketError(conn, requestID, "invalid_request", "Invalid orderId")
			return
		}
	}
	uploadSizeBytes.Observe(float64(len(image)))

	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type: "progress", Status: "processing", Stage: "received", Progress: 0.1, RequestID: requestID,
	})

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res := s.runCheck(ctx, sourceWebSocket, func(ctx context.Context) *pipeline.Result {
		return s.checker.CheckBytes(ctx, image)
	})
	resp := &ValidateResponse{Result: res, OrderID: orderID}

	if orderID != "" && res.Success {
		s.sendWebSocketResponse(conn, WebSocketResponse{
			Type: "progress", Status: "processing", Stage: "storing", Progress: 0.8, RequestID: requestID,
		})
		err := s.saveOriginal(ctx, orderID, image)
		if err == nil {
			err = s.storeValidated(ctx, resp)
		}
		if err != nil {
			slog.Error("Storage error", "order_id", orderID, "request_id", requestID, "error", err)
			s.sendWebSocketError(conn, requestID, "storage_error", "Storage failed")
			return
		}
	}

	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type: "result", Status: "completed", Stage: "done", Progress: 1, Result: resp, RequestID: requestID,
	})
}

func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketResponse) {
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

func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
