package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/tasklist/internal/config"
	"github.com/ent0n29/tasklist/internal/identity"
	"github.com/ent0n29/tasklist/internal/observability"
	"github.com/ent0n29/tasklist/internal/protocol"
	"github.com/ent0n29/tasklist/internal/todo"
)

// TokenIssuer mints and verifies bearer tokens for /v1/auth/token.
type TokenIssuer interface {
	IssueToken(uid string, ttl time.Duration) (string, error)
	VerifyToken(token string) (*identity.Claims, error)
}

// Deps are the collaborators a Server needs. NewClient builds one to-do
// client per websocket connection.
type Deps struct {
	NewClient      func() *todo.Client
	Issuer         TokenIssuer
	Metrics        *observability.Metrics
	StoreMode      string
	GenerationMode string
}

type Server struct {
	cfg      config.Config
	deps     Deps
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a user's list unless opted out.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/auth/token", s.handleIssueToken)
	r.Get("/v1/todos/ws", s.handleTodosWS)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	state := "ready"
	if s.deps.StoreMode == "" {
		status = http.StatusServiceUnavailable
		state = "store_not_configured"
	}
	respondJSON(w, status, map[string]any{
		"status":          state,
		"store_mode":      s.storeMode(),
		"generation_mode": s.deps.GenerationMode,
		"auth_tokens":     s.deps.Issuer != nil,
	})
}

func (s *Server) handleTodosWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.NewClient == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "to-do client not configured")
		return
	}
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(s.cfg.AuthInitialToken)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := s.deps.NewClient()
	defer client.Close()
	states, stopStates := client.Watch()
	defer stopStates()
	client.Start(ctx, token)

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case st, ok := <-states:
				if !ok {
					return
				}
				msg = protocol.NewStateEvent(st)
			case msg = <-outbound:
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			queue(outbound, protocol.NewErrorEvent("invalid_client_message", err.Error()))
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		s.dispatch(ctx, client, parsed, outbound)
	}

	cancel()
	<-writerDone
}

// dispatch applies one client message. Generation requests run in their own
// goroutine so the read loop keeps serving input while they are in flight.
func (s *Server) dispatch(ctx context.Context, client *todo.Client, msg any, outbound chan<- any) {
	switch m := msg.(type) {
	case protocol.SetInput:
		client.SetInput(m.Text)
	case protocol.AddTask:
		client.AddTask(m.Text)
	case protocol.ToggleTask:
		client.ToggleTask(m.TaskID)
	case protocol.DeleteTask:
		client.ClickDelete(m.TaskID)
	case protocol.Breakdown:
		go func() {
			if err := client.Breakdown(ctx, m.Text); errors.Is(err, todo.ErrBusy) {
				queue(outbound, protocol.NewErrorEvent("busy", err.Error()))
			}
		}()
	case protocol.Summarize:
		go func() {
			if err := client.Summarize(ctx); errors.Is(err, todo.ErrBusy) {
				queue(outbound, protocol.NewErrorEvent("busy", err.Error()))
			}
		}()
	}
}

// queue drops the message when the writer is saturated or gone so websocket
// writes stay single-threaded.
func queue(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		log.WithField("type", messageTypeName(msg)).Warn("outbound queue full, dropping message")
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) storeMode() string {
	if s.deps.StoreMode == "" {
		return "disabled"
	}
	return s.deps.StoreMode
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.SetInput:
		return m.Type, true
	case protocol.AddTask:
		return m.Type, true
	case protocol.ToggleTask:
		return m.Type, true
	case protocol.DeleteTask:
		return m.Type, true
	case protocol.Breakdown:
		return m.Type, true
	case protocol.Summarize:
		return m.Type, true
	case protocol.StateEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}

func messageTypeName(v any) string {
	t, _ := messageTypeOf(v)
	return string(t)
}
