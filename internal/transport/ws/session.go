package ws

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"command-deck-server-go/internal/platform/logging"
)

const defaultCloseTimeout = 5 * time.Second

// SessionHandler is the application-side driver of one websocket session.
// Handle runs the session's message loop and returns when the transport
// disconnects; Close asks a running handler to stop and must be idempotent.
type SessionHandler interface {
	Handle()
	Close()
	GetSessionID() string
}

// Session owns the lifecycle of one authenticated websocket connection: the
// context it runs under, the identity it was opened for, and the shutdown
// handshake between transport and handler.
type Session struct {
	id        string
	identity  Identity
	startedAt time.Time
	handler   SessionHandler
	conn      *Connection
	logger    *logging.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	closed atomic.Bool
}

// NewSession binds an upgraded connection, its handler and the authenticated
// identity into a managed session.
func NewSession(parent context.Context, handler SessionHandler, conn *Connection, identity Identity, logger *logging.Logger) *Session {
	sessionCtx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:        handler.GetSessionID(),
		identity:  identity,
		startedAt: time.Now(),
		handler:   handler,
		conn:      conn,
		logger:    logger,
		ctx:       sessionCtx,
		cancel:    cancel,
	}
}

// Context returns the session context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ID exposes the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Identity returns the principal the session was opened for.
func (s *Session) Identity() Identity {
	return s.identity
}

// StartedAt reports when the session began.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Run executes the session handler and invokes onDone once exiting. A
// panicking handler is recovered so one session cannot take down the server;
// the panic surfaces through onDone.
func (s *Session) Run(onDone func(error)) {
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("session handler panicked: %v", r)
		}
		s.Close(runErr)
		if onDone != nil {
			onDone(runErr)
		}
	}()

	s.handler.Handle()
}

// Close attempts to gracefully terminate the session. The handler gets a
// bounded window to flush and stop before the connection is torn down.
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	if s.cancel != nil {
		s.cancel(reason)
	}

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultCloseTimeout, reason)
	defer cancel()

	if s.handler != nil {
		done := make(chan struct{})
		go func() {
			s.handler.Close()
			close(done)
		}()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			if s.logger != nil {
				s.logger.Warn("session %s handler close timed out: %v", s.id, context.Cause(shutdownCtx))
			}
		}
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil && s.logger != nil {
			s.logger.Warn("session %s connection close failed: %v", s.id, err)
		}
	}

	if s.logger != nil {
		s.logger.InfoTag("Session", "closed", map[string]interface{}{
			"session_id": s.id,
			"user_id":    s.identity.UserID,
			"duration":   time.Since(s.startedAt).Round(time.Millisecond).String(),
		})
	}
}
