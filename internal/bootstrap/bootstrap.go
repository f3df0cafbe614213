// Package bootstrap wires configuration, storage, domain services and the
// two transports together and owns the process lifecycle from start to
// graceful shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"
	"golang.org/x/sync/errgroup"

	appservices "command-deck-server-go/internal/app/services"
	domainagent "command-deck-server-go/internal/domain/agent"
	domainauth "command-deck-server-go/internal/domain/auth"
	authstore "command-deck-server-go/internal/domain/auth/store"
	"command-deck-server-go/internal/domain/eventbus"
	eventbusinfra "command-deck-server-go/internal/domain/eventbus/infrastructure"
	eventbusrepo "command-deck-server-go/internal/domain/eventbus/repository"
	domaingen "command-deck-server-go/internal/domain/generation"
	domainledger "command-deck-server-go/internal/domain/ledger"
	domainmemory "command-deck-server-go/internal/domain/memory"
	domainsandbox "command-deck-server-go/internal/domain/sandbox"
	domainsecurity "command-deck-server-go/internal/domain/security"
	platformconfig "command-deck-server-go/internal/platform/config"
	platformerrors "command-deck-server-go/internal/platform/errors"
	platformlogging "command-deck-server-go/internal/platform/logging"
	platformobservability "command-deck-server-go/internal/platform/observability"
	platformstorage "command-deck-server-go/internal/platform/storage"
	httptransport "command-deck-server-go/internal/transport/http"
	httpwebapi "command-deck-server-go/internal/transport/http/webapi"
	wstransport "command-deck-server-go/internal/transport/ws"
)

// Identity stamped on every request when authentication is disabled.
const (
	defaultAdminUserID = 1
	defaultAdminEmail  = "admin@localhost"
)

// Audit rows mirror the log file retention window.
const (
	auditRetention      = 7 * 24 * time.Hour
	auditRetentionSweep = time.Hour
)

const scalarHTML = `<!DOCTYPE html>
<html lang="en">
	<head>
		<meta charset="utf-8" />
		<title>Command Deck API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/swagger/doc.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc

	ledgerService    *domainledger.Service
	generationClient *domaingen.RotatingClient
	memoryService    *domainmemory.Service
	riskFilter       *domainsecurity.Filter
	sandboxService   *domainsandbox.Service
	sandboxSweeper   *domainsandbox.Sweeper
	agentService     *domainagent.Service
	authManager      *domainauth.Manager
	eventRepository  eventbusrepo.EventRepository
}

// Run starts the whole service lifecycle: it executes the init graph, boots
// the websocket and HTTP servers and blocks until a shutdown signal.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.Wrap(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
			errors.New("config/logger not initialised"),
		)
	}

	authManager := state.authManager
	if authManager == nil {
		return platformerrors.Wrap(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"auth manager not initialised",
			errors.New("auth manager not initialised"),
		)
	}

	if state.generationClient == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"generation client not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("Boot", "observability did not shut down cleanly: %v", err)
			}
		}()
	}

	defer func() {
		if closeErr := authManager.Close(); closeErr != nil {
			logger.ErrorTag("Auth", "auth manager did not close cleanly: %v", closeErr)
		}
	}()

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := state.ledgerService.Close(closeCtx); closeErr != nil {
			logger.WarnTag("Ledger", "ledger store did not close cleanly: %v", closeErr)
		}
	}()

	defer eventbus.Shutdown()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("Boot", "shutdown complete")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("Boot", "init sequence")
	for _, step := range steps {
		logger.InfoTag("Boot", "%s (%s)", step.Title, step.ID)
	}
	logger.InfoTag("Boot", "starting services")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph returns the ordered initialisation steps. Dependencies are
// validated at execution time, so reordering a step below one of its
// dependencies fails fast instead of producing a half-built state.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "domain:init-services",
			Title:     "Initialise domain services",
			DependsOn: []string{"logging:init-provider", "storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initDomainServicesStep,
		},
		{
			ID:        "auth:init-manager",
			Title:     "Initialise auth manager",
			DependsOn: []string{"observability:setup-hooks", "storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAuthStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}

	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()
	platformlogging.DefaultLogger = logger

	logger.InfoTag(
		"Boot",
		"logging ready [%s] config source: %s",
		state.config.Log.Level,
		state.configPath,
	)

	eventbus.SetupEventHandlers()

	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindStorage,
			"storage:init-database",
			"config not loaded",
		)
	}

	if err := platformstorage.InitDatabase(state.config.Database.Path); err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialize database", err)
	}

	if state.logger != nil {
		state.logger.InfoTag("Storage", "database ready at %s", state.config.Database.Path)
	}
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	slogger := state.slogger
	if slogger == nil {
		slogger = state.logger.Slog()
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown

	return nil
}

func initDomainServicesStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"domain:init-services",
			"missing config/logger",
		)
	}

	config := state.config
	logger := state.logger
	db := platformstorage.GetDB()

	ledgerStore, err := buildLedgerStore(config, logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "domain:init-services", "failed to create ledger store", err)
	}
	state.ledgerService = domainledger.NewService(ledgerStore, logger)

	backend, err := buildGenerationBackend(config, logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "domain:init-services", "failed to create generation backend", err)
	}
	state.generationClient = domaingen.NewRotatingClient(
		backend,
		state.ledgerService,
		logger,
		config.Generation.MaxRetries,
	)

	state.memoryService = domainmemory.NewService(db, logger, config.Memory.RetrieveLimit)
	state.riskFilter = domainsecurity.NewFilter(config.Security.MaxPromptLength)
	state.sandboxService = domainsandbox.NewService(db, logger, config.Sandbox.ProbeTimeout)
	state.sandboxSweeper = domainsandbox.NewSweeper(state.sandboxService, logger, config.Sandbox.HealthInterval)
	state.agentService = domainagent.NewService(db, state.generationClient, state.memoryService, logger)

	state.eventRepository = eventbusinfra.NewEventRepository(db)
	if err := eventbus.SetupAuditTrail(state.eventRepository); err != nil {
		logger.WarnTag("Events", "event audit trail not enabled: %v", err)
	}

	logger.InfoTag("Boot", "domain services ready (backend=%s, ledger=%s)",
		config.Generation.Backend, config.Ledger.Driver)
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"auth:init-manager",
			"missing config/logger",
		)
	}

	authManager, err := initAuthManager(state.config, state.logger)
	if err != nil {
		return err
	}
	state.authManager = authManager
	return nil
}

// buildLedgerStore maps the ledger section of the configuration onto a
// concrete store. Unknown drivers fall back to the database-backed store
// with a warning rather than refusing to boot.
func buildLedgerStore(config *platformconfig.Config, logger *platformlogging.Logger) (domainledger.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(config.Ledger.Driver))
	if driver == "" || driver == "database" || driver == "sqlite" {
		driver = domainledger.DriverGorm
	}

	switch driver {
	case domainledger.DriverGorm, domainledger.DriverMemory:
	case domainledger.DriverRedis:
		if config.Ledger.Redis.Addr == "" {
			return nil, errors.New("redis ledger store addr is required")
		}
	default:
		logger.WarnTag("Ledger", "unsupported store driver %s, falling back to database", driver)
		driver = domainledger.DriverGorm
	}

	cfg := domainledger.Config{
		Driver: driver,
	}
	if driver == domainledger.DriverRedis {
		cfg.Redis = &domainledger.RedisConfig{
			Addr:     config.Ledger.Redis.Addr,
			Username: config.Ledger.Redis.Username,
			Password: config.Ledger.Redis.Password,
			DB:       config.Ledger.Redis.DB,
			Prefix:   config.Ledger.Redis.Prefix,
		}
	}

	deps := domainledger.Dependencies{}
	if driver == domainledger.DriverGorm {
		deps.DB = platformstorage.GetDB()
	}
	return domainledger.New(cfg, deps)
}

// buildGenerationBackend selects the text-generation adapter. "api" talks to
// an OpenAI-compatible HTTP endpoint, "cli" shells out to a local binary.
func buildGenerationBackend(config *platformconfig.Config, logger *platformlogging.Logger) (domaingen.Backend, error) {
	backend := strings.ToLower(strings.TrimSpace(config.Generation.Backend))
	switch backend {
	case "cli":
		return domaingen.NewCLIBackend(domaingen.CLIConfig{
			Command: config.Generation.CLICommand,
			Args:    config.Generation.CLIArgs,
		}, logger), nil
	case "", "api":
	default:
		logger.WarnTag("LLM", "unsupported generation backend %s, falling back to api", backend)
	}

	return domaingen.NewAPIBackend(domaingen.APIConfig{
		BaseURL:     config.Generation.BaseURL,
		Model:       config.Generation.ModelName,
		Temperature: float32(config.Generation.Temperature),
		MaxTokens:   config.Generation.MaxTokens,
	}, logger), nil
}

func initAuthManager(config *platformconfig.Config, logger *platformlogging.Logger) (*domainauth.Manager, error) {
	storeType := strings.ToLower(strings.TrimSpace(config.Auth.Store.Type))
	storeCfg := authstore.Config{
		Driver: storeType,
		TTL:    config.Auth.Store.Expiry,
	}

	if storeCfg.Driver == "" || storeCfg.Driver == "database" || storeCfg.Driver == "sqlite" {
		storeCfg.Driver = authstore.DriverSQLite
	}

	cleanupInterval := config.Auth.Store.Cleanup
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}

	switch storeCfg.Driver {
	case authstore.DriverMemory:
		if config.Auth.Store.Memory.Cleanup > 0 {
			cleanupInterval = config.Auth.Store.Memory.Cleanup
		}
		storeCfg.Memory = &authstore.MemoryConfig{
			GCInterval: cleanupInterval,
		}
	case authstore.DriverSQLite:
		storeCfg.SQLite = &authstore.SQLiteConfig{
			DSN: config.Auth.Store.SQLite.DSN,
		}
	case authstore.DriverRedis:
		storeCfg.Redis = &authstore.RedisConfig{
			Addr:     config.Auth.Store.Redis.Addr,
			Username: config.Auth.Store.Redis.Username,
			Password: config.Auth.Store.Redis.Password,
			DB:       config.Auth.Store.Redis.DB,
			Prefix:   config.Auth.Store.Redis.Prefix,
		}
		if storeCfg.Redis.Addr == "" {
			return nil, platformerrors.Wrap(
				platformerrors.KindBootstrap,
				"auth:init-manager",
				"redis store addr is required",
				errors.New("redis store addr is required"),
			)
		}
	default:
		logger.WarnTag("Auth", "unsupported session store type %s, falling back to memory", storeType)
		storeCfg.Driver = authstore.DriverMemory
		storeCfg.Memory = &authstore.MemoryConfig{GCInterval: cleanupInterval}
	}

	storeDeps := authstore.Dependencies{
		SQLiteDB: platformstorage.GetDB(),
	}
	sessionStore, err := authstore.New(storeCfg, storeDeps)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-manager", "failed to create session store", err)
	}

	opts := domainauth.Options{
		DB:              platformstorage.GetDB(),
		Store:           sessionStore,
		Logger:          logger,
		Token:           domainauth.NewTokenIssuer(config.Auth.JWTSecret, config.Auth.TokenTTL),
		Google:          domainauth.NewGoogleVerifier(config.Auth.GoogleUserinfoURL),
		CleanupInterval: cleanupInterval,
	}

	authManager, err := domainauth.NewManager(opts)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindBootstrap, "auth:init-manager", "failed to create auth manager", err)
	}

	return authManager, nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	state.sandboxSweeper.Start(groupCtx)
	g.Go(func() error {
		<-groupCtx.Done()
		state.sandboxSweeper.Stop()
		return nil
	})

	if state.eventRepository != nil {
		stopRetention := eventbus.StartAuditRetention(groupCtx, state.eventRepository, auditRetention, auditRetentionSweep)
		g.Go(func() error {
			<-groupCtx.Done()
			stopRetention()
			return nil
		})
	}

	wsServer, err := startWebSocketServer(state, g, groupCtx)
	if err != nil {
		return fmt.Errorf("failed to start websocket transport: %w", err)
	}

	if _, err := startHTTPServer(state, wsServer, g, groupCtx); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	return nil
}

func startWebSocketServer(
	state *appState,
	g *errgroup.Group,
	groupCtx context.Context,
) (*wstransport.Server, error) {
	config := state.config
	logger := state.logger

	var authenticator wstransport.Authenticator
	if config.Auth.Enabled {
		authManager := state.authManager
		authenticator = wstransport.AuthenticatorFunc(func(ctx context.Context, token string) (wstransport.Identity, error) {
			identity, err := authManager.Verify(ctx, token)
			if err != nil {
				return wstransport.Identity{}, err
			}
			return wstransport.Identity{UserID: identity.UserID, Email: identity.Email}, nil
		})
	} else {
		authenticator = wstransport.AuthenticatorFunc(func(context.Context, string) (wstransport.Identity, error) {
			return wstransport.Identity{UserID: defaultAdminUserID, Email: defaultAdminEmail}, nil
		})
	}

	hub := wstransport.NewHub(logger)
	router := wstransport.NewRouter(hub, logger, wstransport.RouterOptions{
		Authenticator: authenticator,
	})

	server := wstransport.NewServer(wstransport.ServerConfig{
		Addr: fmt.Sprintf("%s:%d", config.Server.IP, config.Server.Port),
	}, router, hub, logger)

	contextLimit := config.Memory.RetrieveLimit
	server.SetHandlerBuilder(func(conn *wstransport.Connection, _ *http.Request, identity wstransport.Identity) (wstransport.SessionHandler, error) {
		return appservices.NewChatService(&appservices.ChatConfig{
			SessionID:    conn.GetID(),
			UserID:       identity.UserID,
			Conn:         conn,
			Client:       state.generationClient,
			Memory:       state.memoryService,
			Filter:       state.riskFilter,
			Logger:       logger,
			ContextLimit: contextLimit,
		}), nil
	})

	g.Go(func() error {
		go func() {
			<-groupCtx.Done()
			logger.InfoTag("WebSocket", "shutdown signal received, stopping transport")
			if err := server.Stop(); err != nil {
				logger.ErrorTag("WebSocket", "transport did not stop cleanly: %v", err)
			} else {
				logger.InfoTag("WebSocket", "transport stopped")
			}
		}()

		if err := server.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			logger.ErrorTag("WebSocket", "transport server failed: %v", err)
			return err
		}
		return nil
	})

	return server, nil
}

func startHTTPServer(
	state *appState,
	wsServer *wstransport.Server,
	g *errgroup.Group,
	groupCtx context.Context,
) (*http.Server, error) {
	config := state.config
	logger := state.logger

	if !config.Web.Enabled {
		logger.InfoTag("HTTP", "web API disabled by configuration")
		return nil, nil
	}

	authMiddleware := httpwebapi.AuthMiddleware(state.authManager, logger)
	if !config.Auth.Enabled {
		logger.WarnTag("Auth", "authentication disabled, requests run as the default admin identity")
		authMiddleware = httpwebapi.StaticIdentityMiddleware(defaultAdminUserID, defaultAdminEmail)
	}

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:         config,
		Logger:         logger,
		AuthMiddleware: authMiddleware,
		StaticRoot:     config.Web.StaticDir,
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine

	webapiService, err := httpwebapi.NewService(config, logger, httpwebapi.Dependencies{
		Auth:     state.authManager,
		Ledger:   state.ledgerService,
		Memory:   state.memoryService,
		Sandbox:  state.sandboxService,
		Agent:    state.agentService,
		Sessions: wsServer,
		Events:   state.eventRepository,
	})
	if err != nil {
		logger.ErrorTag("HTTP", "web API service initialisation failed: %v", err)
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service", "failed to create webapi service", err)
	}

	if err := webapiService.Register(groupCtx, httpRouter); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:register", "failed to register webapi routes", err)
	}

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	router.GET("/swagger/doc.json", func(c *gin.Context) {
		doc, err := swag.ReadDoc()
		if err != nil {
			logger.ErrorTag("HTTP", "failed to generate openapi document: %v", err)
			c.JSON(http.StatusInternalServerError, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{"error": err.Error()},
				Message: "failed to generate openapi spec",
				Code:    http.StatusInternalServerError,
			})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	})

	router.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(scalarHTML))
	})

	g.Go(func() error {
		logger.InfoTag("HTTP", "server listening at http://localhost:%d", config.Web.Port)
		logger.InfoTag("HTTP", "API docs at http://localhost:%d/docs", config.Web.Port)
		logger.InfoTag("WebSocket", "chat endpoint at %s/ws", config.Web.Websocket)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("Boot", "received %v, cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Boot", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("Boot", "all services stopped")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("shutdown timed out")
		logger.ErrorTag("Boot", "shutdown timed out, forcing exit")
		return timeoutErr
	}
	return nil
}
