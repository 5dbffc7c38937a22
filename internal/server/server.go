// Package server exposes the WebSocket endpoint clients use to run voice
// sessions, plus the operational HTTP surface (/metrics, /healthz, /readyz).
//
// Each WebSocket connection gets a generated client ID and may hold at most
// one live session; outbound messages for that session are written back on
// the same connection. Closing the connection stops the client's session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/resonate/internal/broker"
	"github.com/MrWong99/resonate/internal/engine"
	"github.com/MrWong99/resonate/internal/health"
	"github.com/MrWong99/resonate/internal/observe"
	"github.com/MrWong99/resonate/pkg/audio"
)

// writeTimeout bounds a single outbound WebSocket write. A client that stops
// reading must not wedge its session's event path.
const writeTimeout = 5 * time.Second

// Client message types.
const (
	msgRealtimeStart = "realtime_start"
	msgRealtimeAudio = "realtime_audio"
	msgRealtimeStop  = "realtime_stop"
)

// clientMessage is the inbound JSON shape. Fields are populated depending on
// Type.
type clientMessage struct {
	Type string `json:"type"`

	// realtime_start fields.
	ConversationMode  string  `json:"conversation_mode,omitempty"`
	Voice             string  `json:"voice,omitempty"`
	Speed             float64 `json:"speed,omitempty"`
	Instructions      string  `json:"instructions,omitempty"`
	MaxResponseTokens int     `json:"max_response_tokens,omitempty"`

	// realtime_audio and realtime_stop fields.
	SessionID string `json:"session_id,omitempty"`
	AudioData string `json:"audio_data,omitempty"`
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the server's logger. The default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithHealth sets the health handler registered on the HTTP mux.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics overrides the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server terminates client WebSocket connections and routes their messages
// into the session registry.
type Server struct {
	registry *broker.Registry
	health   *health.Handler
	metrics  *observe.Metrics
	log      *slog.Logger
}

// New constructs a Server on top of the given session registry.
func New(registry *broker.Registry, opts ...Option) *Server {
	s := &Server{registry: registry}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Handler returns the server's HTTP handler: the WebSocket endpoint at /ws,
// Prometheus metrics at /metrics, and the health probes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// handleWS upgrades the connection and runs the per-client message loop until
// the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Browser clients connect from app origins unknown at deploy time;
		// auth is handled upstream.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}

	clientID := uuid.NewString()
	log := s.log.With("client_id", clientID)
	log.Info("client connected", "remote_addr", r.RemoteAddr)

	sink := &wsSink{conn: conn}
	defer func() {
		// The registry stop delivers the final status through the sink, so
		// stop before closing the socket.
		_ = s.registry.StopClient(clientID)
		conn.Close(websocket.StatusNormalClosure, "")
		log.Info("client disconnected")
	}()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return
			}
			log.Debug("websocket read failed", "err", err)
			return
		}
		if typ != websocket.MessageText {
			sink.sendError("", "binary frames are not supported")
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sink.sendError("", "malformed message: "+err.Error())
			continue
		}

		s.dispatch(ctx, clientID, sink, msg, log)
	}
}

// dispatch routes one parsed client message.
func (s *Server) dispatch(ctx context.Context, clientID string, sink *wsSink, msg clientMessage, log *slog.Logger) {
	switch msg.Type {
	case msgRealtimeStart:
		opts := broker.Options{
			Mode:              engine.Mode(msg.ConversationMode),
			Voice:             msg.Voice,
			Speed:             msg.Speed,
			Instructions:      msg.Instructions,
			MaxResponseTokens: msg.MaxResponseTokens,
		}
		if _, err := s.registry.Create(ctx, clientID, sink, opts); err != nil {
			log.Error("session create failed", "err", err)
			sink.sendError("", "could not start session: "+err.Error())
		}

	case msgRealtimeAudio:
		clip, err := audio.DecodeEnvelope(msg.AudioData)
		if err != nil {
			sink.sendError(msg.SessionID, "invalid audio payload: "+err.Error())
			return
		}
		switch err := s.registry.Submit(msg.SessionID, clip); {
		case errors.Is(err, broker.ErrSessionNotFound):
			sink.sendStatus(msg.SessionID, broker.StatusNoSession)
		case errors.Is(err, broker.ErrQueueFull):
			sink.sendError(msg.SessionID, "audio queue full, chunk dropped")
		case err != nil:
			sink.sendError(msg.SessionID, err.Error())
		}

	case msgRealtimeStop:
		if _, ok := s.registry.Get(msg.SessionID); !ok {
			sink.sendStatus(msg.SessionID, broker.StatusNoSession)
			return
		}
		if err := s.registry.Stop(msg.SessionID); err != nil {
			sink.sendError(msg.SessionID, err.Error())
		}

	default:
		sink.sendError("", fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// Compile-time assertion that wsSink satisfies the broker.Sink interface.
var _ broker.Sink = (*wsSink)(nil)

// wsSink delivers broker messages to one WebSocket connection. Sessions send
// from multiple goroutines, so writes are serialised with a mutex.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Send implements [broker.Sink].
func (s *wsSink) Send(msg broker.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("server: marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("server: write message: %w", err)
	}
	return nil
}

func (s *wsSink) sendStatus(sessionID, status string) {
	_ = s.Send(broker.Message{
		Role:      "system",
		Type:      broker.TypeStatus,
		Status:    status,
		SessionID: sessionID,
	})
}

func (s *wsSink) sendError(sessionID, text string) {
	_ = s.Send(broker.Message{
		Role:      "system",
		Type:      broker.TypeError,
		Content:   text,
		SessionID: sessionID,
	})
}
