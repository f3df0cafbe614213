package ws

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"command-deck-server-go/internal/platform/logging"
	"command-deck-server-go/internal/platform/observability"
)

// Identity carries the authenticated principal resolved during the handshake.
type Identity struct {
	UserID uint
	Email  string
}

// Authenticator verifies the bearer token presented with an upgrade request.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// AuthenticatorFunc adapts a plain function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, token string) (Identity, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// HandlerBuilder creates a session handler for an upgraded, authenticated connection.
type HandlerBuilder func(conn *Connection, req *http.Request, identity Identity) (SessionHandler, error)

// Router upgrades HTTP requests to websocket sessions after token verification.
type Router struct {
	hub    *Hub
	logger *logging.Logger
	auth   Authenticator

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	builder          atomic.Value // HandlerBuilder
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	Authenticator    Authenticator
}

// NewRouter constructs a websocket router.
func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin: opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Router{
		hub:              hub,
		logger:           logger,
		auth:             opts.Authenticator,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
	}
}

// SetHandlerBuilder registers the handler builder that will be invoked after a successful upgrade.
func (r *Router) SetHandlerBuilder(builder HandlerBuilder) {
	r.builder.Store(builder)
}

// Handle authenticates and upgrades the HTTP connection, then launches a new
// websocket session running the built handler.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil || r.auth == nil {
		http.Error(w, "websocket handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(HandlerBuilder)

	ctx := req.Context()
	handshakeCtx, cancel := context.WithTimeoutCause(ctx, r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	spanCtx, spanEnd := observability.StartSpan(handshakeCtx, "transport.websocket", "handle")
	var spanErr error
	defer func() {
		spanEnd(spanErr)
	}()

	identity, err := r.auth.Authenticate(handshakeCtx, resolveToken(req))
	if err != nil {
		spanErr = ErrUnauthorized
		observability.RecordMetric(
			spanCtx,
			"websocket.auth.rejected",
			1,
			map[string]string{
				"component": "transport.websocket",
			},
		)
		if r.logger != nil {
			r.logger.WarnTag("WebSocket", "handshake rejected", map[string]interface{}{
				"remote": req.RemoteAddr,
				"error":  err.Error(),
			})
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(
			spanCtx,
			"websocket.upgrade.error",
			1,
			map[string]string{
				"component": "transport.websocket",
			},
		)
		if r.logger != nil {
			r.logger.ErrorTag("WebSocket", "handshake failed", map[string]interface{}{
				"remote": req.RemoteAddr,
				"error":  err.Error(),
			})
		}
		return
	}

	sessionID := uuid.NewString()
	wsConn := NewConnection(sessionID, conn)
	if r.logger != nil {
		r.logger.InfoTag("WebSocket", "connection established", map[string]interface{}{
			"session_id": sessionID,
			"user_id":    identity.UserID,
		})
	}
	observability.RecordMetric(
		spanCtx,
		"websocket.upgrade.success",
		1,
		map[string]string{
			"component": "transport.websocket",
		},
	)

	handler, err := builder(wsConn, req, identity)
	if err != nil || handler == nil {
		spanErr = err
		observability.RecordMetric(
			spanCtx,
			"websocket.connection.error",
			1,
			map[string]string{
				"component": "transport.websocket",
				"reason":    "handler_creation_failed",
			},
		)
		if r.logger != nil {
			r.logger.ErrorTag("WebSocket", "session handler construction failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      err,
			})
		}
		_ = wsConn.Close()
		return
	}

	session := NewSession(spanCtx, handler, wsConn, identity, r.logger)
	r.hub.Register(session)

	observability.RecordMetric(
		spanCtx,
		"websocket.connection.opened",
		1,
		map[string]string{
			"component":  "transport.websocket",
			"session_id": sessionID,
		},
	)

	go session.Run(func(runErr error) {
		r.hub.Unregister(session.ID())
		if runErr != nil && r.logger != nil {
			r.logger.WarnTag("WebSocket", "session ended abnormally", map[string]interface{}{
				"session_id": session.ID(),
				"error":      runErr.Error(),
			})
		}
		observability.RecordLatency(
			session.Context(),
			"websocket.session.duration",
			session.StartedAt(),
			map[string]string{
				"component":  "transport.websocket",
				"session_id": sessionID,
			},
		)
		observability.RecordMetric(
			session.Context(),
			"websocket.connection.closed",
			1,
			map[string]string{
				"component":  "transport.websocket",
				"session_id": sessionID,
			},
		)
	})
}

// resolveToken extracts the bearer token from the query string or the
// Authorization header. Browser websocket clients cannot set headers, so the
// query parameter is checked first.
func resolveToken(req *http.Request) string {
	if token := req.URL.Query().Get("token"); token != "" {
		return token
	}

	header := req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
