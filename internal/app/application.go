package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"simplepaes/internal/api"
	"simplepaes/internal/auth"
	"simplepaes/internal/config"
	"simplepaes/internal/events"
	"simplepaes/internal/hub"
	"simplepaes/internal/lifecycle"
	"simplepaes/internal/session"
	"simplepaes/internal/websocket"
	"simplepaes/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config         *config.Config
	logger         *zap.Logger
	store          interfaces.SessionStore
	sessionManager *session.Manager
	registry       *websocket.Registry
	bus            events.Bus
	eventHub       *hub.Hub
	limiter        *api.RateLimiter
	apiServer      *api.Server
	httpServer     *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Store → Engine → Session → Registry → Bus → Hub → API → HTTP
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lifecycleConfig := LifecycleConfig(cfg.Lifecycle)
	if err := lifecycleConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lifecycle configuration: %w", err)
	}

	// STEP 1: Session store (foundation layer)
	store, err := OpenStore(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	// STEP 2: Status engine and session manager
	engine := lifecycle.NewEngine(store, lifecycleConfig, logger)
	sessionManager := session.NewManager(store, engine, session.Options{
		IncludeEnded:        cfg.Lifecycle.IncludeEnded,
		RequireRegistration: cfg.Lifecycle.RequireRegistration,
	}, logger)

	// STEP 3: Subscriber registry
	registry := websocket.NewRegistry(logger)

	// STEP 4: Optional cross-instance bus
	var bus events.Bus
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisBus, err := events.NewRedisBus(ctx, cfg.Redis, logger)
		cancel()
		if err != nil {
			return nil, closeAfterFailure(store, err)
		}
		bus = redisBus
	}

	// STEP 5: Hub; the manager publishes through it from here on
	eventHub := hub.NewHub(registry, sessionManager, bus, cfg.Lifecycle.PollInterval, logger)
	sessionManager.SetPublisher(eventHub)

	// STEP 6: HTTP API and websocket feed
	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret)
	if !authenticator.TokenMode() {
		logger.Warn("no JWT secret configured, trusting identity headers")
	}
	limiter := api.NewRateLimiter(cfg.RateLimit.PerMinute)
	apiServer := api.NewServer(sessionManager, registry, authenticator, limiter, logger)
	wsHandler := websocket.NewHandler(registry, sessionManager, authenticator, cfg.WebSocket, logger)
	apiServer.HandleWebSocket("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		logger:         logger,
		store:          store,
		sessionManager: sessionManager,
		registry:       registry,
		bus:            bus,
		eventHub:       eventHub,
		limiter:        limiter,
		apiServer:      apiServer,
		httpServer:     httpServer,
	}, nil
}

// Start begins application execution
// Hub starts first to reconcile statuses, then the HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := app.eventHub.Start(runCtx); err != nil {
		cancel()
		listener.Close()
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	app.listener = listener
	app.cancel = cancel

	app.wg.Add(2)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	go func() {
		defer app.wg.Done()
		app.cleanupLimiter(runCtx)
	}()

	app.logger.Info("SimplePAES started",
		zap.String("addr", listener.Addr().String()),
		zap.String("driver", app.config.Database.Driver))
	return nil
}

// cleanupLimiter drops idle rate limit entries every minute
func (app *Application) cleanupLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			app.limiter.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → subscribers → Hub → Bus → Store
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.logger.Info("shutting down SimplePAES")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// Hijacked websocket connections are not tracked by Shutdown
	app.registry.CloseAll()

	if err := app.eventHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	if app.bus != nil {
		if err := app.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bus shutdown: %w", err))
		}
	}
	if err := app.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store shutdown: %w", err))
	}

	app.logger.Info("SimplePAES shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// SessionManager exposes the manager for in-process callers such as seeding
func (app *Application) SessionManager() *session.Manager {
	return app.sessionManager
}

// closeAfterFailure releases a resource opened before a startup step failed. The
// returned error carries cause and any close failure.
func closeAfterFailure(c io.Closer, cause error) error {
	if err := c.Close(); err != nil {
		return errors.Join(cause, fmt.Errorf("store shutdown: %w", err))
	}
	return cause
}
