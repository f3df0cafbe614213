// Package webapi is the HTTP transport layer for the dashboard API: auth,
// account ledger, memory history, sandbox fleet, agent planning and system
// status endpoints.
package webapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"command-deck-server-go/internal/domain/agent"
	"command-deck-server-go/internal/domain/auth"
	"command-deck-server-go/internal/domain/eventbus/repository"
	"command-deck-server-go/internal/domain/ledger"
	"command-deck-server-go/internal/domain/memory"
	"command-deck-server-go/internal/domain/sandbox"
	"command-deck-server-go/internal/platform/config"
	"command-deck-server-go/internal/platform/errors"
	"command-deck-server-go/internal/platform/logging"
	httptransport "command-deck-server-go/internal/transport/http"
	"command-deck-server-go/internal/transport/ws"
)

// Context keys stamped by the auth middleware and read back by handlers.
const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
)

// SessionRegistry exposes the live websocket sessions. *ws.Server satisfies it.
type SessionRegistry interface {
	Count() int
	Sessions() []ws.SessionInfo
}

// TokenVerifier resolves a bearer token to the identity it was issued for.
// *auth.Manager satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// Dependencies collects the domain services the API fronts.
type Dependencies struct {
	Auth     *auth.Manager
	Ledger   *ledger.Service
	Memory   *memory.Service
	Sandbox  *sandbox.Service
	Agent    *agent.Service
	Sessions SessionRegistry
	Events   repository.EventRepository
}

// Service holds the handler state for the dashboard API.
type Service struct {
	logger    *logging.Logger
	config    *config.Config
	auth      *auth.Manager
	ledger    *ledger.Service
	memory    *memory.Service
	sandbox   *sandbox.Service
	agent     *agent.Service
	sessions  SessionRegistry
	events    repository.EventRepository
	startedAt time.Time
}

// NewService creates the web API service instance.
func NewService(cfg *config.Config, logger *logging.Logger, deps Dependencies) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "config is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "logger is required")
	}
	if deps.Auth == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "auth manager is required")
	}

	return &Service{
		logger:    logger,
		config:    cfg,
		auth:      deps.Auth,
		ledger:    deps.Ledger,
		memory:    deps.Memory,
		sandbox:   deps.Sandbox,
		agent:     deps.Agent,
		sessions:  deps.Sessions,
		events:    deps.Events,
		startedAt: time.Now(),
	}, nil
}

// Register mounts every route this service owns. Public routes land on the
// /api group, everything else behind the router's secured group. When no
// secured group exists (auth disabled) the protected routes fall back to
// the public group; bootstrap installs a static identity in that case.
func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	router.Engine.GET("/", s.handleBanner)

	public := router.API
	public.POST("/auth/register", s.handleRegister)
	public.POST("/auth/login", s.handleLogin)
	public.POST("/auth/google", s.handleGoogleLogin)
	public.GET("/system/status", s.handleSystemStatus)

	secured := router.Secured
	if secured == nil {
		secured = router.API
	}

	secured.GET("/auth/me", s.handleMe)
	secured.POST("/auth/logout", s.handleLogout)
	secured.GET("/system/sessions", s.handleSessionList)
	secured.GET("/system/events", s.handleEventLog)

	accounts := secured.Group("/accounts")
	{
		accounts.GET("", s.handleAccountList)
		accounts.POST("", s.handleAccountCreate)
		accounts.POST("/oauth", s.handleAccountCreateOAuth)
		accounts.GET("/status", s.handleAccountStatus)
		accounts.PUT("/:id/toggle", s.handleAccountToggle)
		accounts.DELETE("/:id", s.handleAccountDelete)
	}

	memoryGroup := secured.Group("/memory")
	{
		memoryGroup.GET("/history", s.handleHistory)
		memoryGroup.DELETE("/history", s.handleHistoryClear)
	}

	sandboxGroup := secured.Group("/sandbox")
	{
		sandboxGroup.GET("", s.handleSandboxList)
		sandboxGroup.POST("/connect", s.handleSandboxConnect)
		sandboxGroup.GET("/active", s.handleSandboxActive)
		sandboxGroup.POST("/:id/health", s.handleSandboxHealth)
		sandboxGroup.DELETE("/:id", s.handleSandboxDelete)
	}

	agentGroup := secured.Group("/agent")
	{
		agentGroup.POST("/plan", s.handleAgentPlan)
		agentGroup.GET("/plans", s.handleAgentPlans)
	}

	s.logger.InfoTag("HTTP", "web API routes registered")
	return nil
}

// AuthMiddleware guards a route group with bearer-token verification and
// stamps the resolved identity onto the request context.
func AuthMiddleware(verifier TokenVerifier, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(c, http.StatusUnauthorized, "Not authenticated")
			c.Abort()
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			if logger != nil {
				logger.DebugTag("HTTP", "token rejected", map[string]interface{}{
					"path":  c.Request.URL.Path,
					"error": err.Error(),
				})
			}
			respondError(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextEmail, identity.Email)
		c.Next()
	}
}

// StaticIdentityMiddleware stamps every request with a fixed identity. Used
// for single-user deployments that run with auth disabled.
func StaticIdentityMiddleware(userID uint, email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserID, userID)
		c.Set(ContextEmail, email)
		c.Next()
	}
}

// currentUser reads the identity stamped by the auth middleware.
func currentUser(c *gin.Context) (uint, bool) {
	value, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}

// requireUser resolves the authenticated user or writes the 401 itself.
func (s *Service) requireUser(c *gin.Context) (uint, bool) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
	}
	return userID, ok
}

// pathID parses the :id path parameter or writes the 400 itself.
func (s *Service) pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid id in path")
		return 0, false
	}
	return uint(id), true
}

func respondSuccess(c *gin.Context, statusCode int, data interface{}, message string) {
	httptransport.RespondSuccess(c, statusCode, data, message)
}

func respondError(c *gin.Context, statusCode int, message string) {
	httptransport.RespondError(c, statusCode, message, gin.H{"error": message})
}
