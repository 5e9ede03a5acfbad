package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"licensegate/internal/config"
	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/middleware"
	"licensegate/internal/security"
	"licensegate/internal/storage"
	handlers "licensegate/internal/transport/http"
	"licensegate/internal/websocket"
)

// Application holds the wired components
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Store         storage.Store
	Gate          *license.Gate
	WebSocketHub  *websocket.Hub
	Router        *chi.Mux
	Server        *http.Server

	fingerprinter license.Fingerprinter
	openBrowser   func(ctx context.Context, url string) error
	openWindow    func(ctx context.Context, url string) (Window, error)

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
	stopOnce sync.Once
	stopErr  error
}

// Option customizes an Application
type Option func(*Application)

// WithLogger replaces the logger built from configuration
func WithLogger(logger *slog.Logger) Option {
	return func(a *Application) { a.Logger = logger }
}

// WithStore replaces the store built from configuration
func WithStore(store storage.Store) Option {
	return func(a *Application) { a.Store = store }
}

// WithFingerprinter replaces the host hardware fingerprinter
func WithFingerprinter(f license.Fingerprinter) Option {
	return func(a *Application) { a.fingerprinter = f }
}

// WithBrowserOpener replaces the function that shows the license page
func WithBrowserOpener(fn func(ctx context.Context, url string) error) Option {
	return func(a *Application) { a.openBrowser = fn }
}

// WithWindowOpener replaces the function that opens a native license
// window for the chromedp window backend
func WithWindowOpener(fn func(ctx context.Context, url string) (Window, error)) Option {
	return func(a *Application) { a.openWindow = fn }
}

// New wires the application from cfg. Nothing listens until Start.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	a := &Application{Config: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if a.Logger == nil {
		logger, err := infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.Logger = logger
	}
	if a.openBrowser == nil {
		a.openBrowser = func(ctx context.Context, url string) error {
			return openBrowser(ctx, a.Logger, url)
		}
	}
	if a.openWindow == nil {
		a.openWindow = func(ctx context.Context, url string) (Window, error) {
			return openChromeWindow(ctx, a.Logger, cfg.UI.ChromePath, url)
		}
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.OTelProviders = providers

	if err := a.initializeServices(); err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, err
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices builds the store, the hub and the gate
func (a *Application) initializeServices() error {
	cfg := a.Config

	if a.Store == nil {
		store, err := storage.Open(storage.Options{
			Backend:     cfg.Storage.Backend,
			Path:        cfg.Storage.Path,
			Passphrase:  cfg.License.EncryptionKey,
			FailureMode: cfg.Storage.FailureMode,
			Logger:      a.Logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open license store: %w", err)
		}
		a.Store = store
	}

	if a.fingerprinter == nil {
		a.fingerprinter = security.NewFingerprintManager(security.NewHostProbe(), a.Logger)
	}

	licenseMetrics, err := license.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}
	wsMetrics, err := websocket.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}

	a.WebSocketHub = websocket.NewHub(cfg.WebSocket, a.Logger, wsMetrics)

	client := license.NewHTTPClient(license.ClientConfig{
		ActivationURL:      cfg.License.ActivationURL,
		ValidationURL:      cfg.License.ValidationURL,
		Timeout:            cfg.License.RequestTimeout,
		InsecureSkipVerify: cfg.License.InsecureSkipVerify,
		Logger:             a.Logger,
	})

	gate, err := license.New(a.Store, client,
		license.WithLogger(a.Logger),
		license.WithFingerprinter(a.fingerprinter),
		license.WithActivationDatePolicy(cfg.License.ActivationDatePolicy),
		license.WithDefaultFeatures(cfg.Features),
		license.WithMetrics(licenseMetrics),
		license.WithTracer(a.OTelProviders.Tracer),
		license.WithSurfaceOpener(a),
	)
	if err != nil {
		return fmt.Errorf("failed to create license gate: %w", err)
	}
	a.Gate = gate
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	errorHandler := apperrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	// The websocket keeps only the minimal middleware so nothing wraps the
	// hijacked connection.
	r.Handle("/ws/license", a.WebSocketHub)
	r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, errorHandler))

	r.Group(func(r chi.Router) {
		if otelMiddleware, err := middleware.NewOTelMiddleware(a.OTelProviders); err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
		r.Use(middleware.StructuredLogger(a.Logger))
		r.Use(middleware.Recoverer(errorHandler))
		r.Use(middleware.SecurityHeaders)

		r.Get("/", handlers.RedirectToLicense)
		r.Get("/license", handlers.ServeLicensePage())

		r.Route("/api", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Use(chimiddleware.Timeout(a.Config.Server.WriteTimeout))

			health := handlers.NewHealthHandler(a.Gate)
			r.Get("/health", health.HealthCheck)
			r.Get("/version", health.Version)

			var limit func(http.Handler) http.Handler
			if a.Config.RateLimit.Enabled {
				limit = middleware.NewRateLimiter(
					a.Config.RateLimit.RPS,
					a.Config.RateLimit.Burst,
					a.Logger,
					errorHandler,
				).Handler
			}
			licenseHandler := handlers.NewLicenseHandler(a.Gate, errorHandler, a.Logger)
			r.Mount("/license", licenseHandler.Routes(limit))

			r.With(middleware.RequireJSON).Post("/logs", handlers.NewClientLogHandler(a.Logger, errorHandler).Handle)
		})
	})

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	a.Router = r
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the hub and the HTTP server
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener != nil {
		return errors.New("application already started")
	}

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln
	a.serveErr = make(chan error, 1)

	a.WebSocketHub.Start()

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serveErr <- err
		}
		close(a.serveErr)
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("address", "http://"+ln.Addr().String()),
		slog.String("storage_backend", a.Config.Storage.Backend),
		slog.String("license_state", a.Gate.State().String()))

	if a.Config.License.InsecureSkipVerify {
		a.Logger.WarnContext(ctx, "TLS certificate verification towards the license server is disabled")
	}
	return nil
}

// URL returns the base URL the server listens on. It is empty before Start.
func (a *Application) URL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return "http://" + a.listener.Addr().String()
}

// OpenSurface opens the license window: a websocket-backed surface plus,
// when enabled, the license page in a Chrome window or a browser tab. A
// Chrome window that cannot be started falls back to the browser tab.
func (a *Application) OpenSurface(ctx context.Context) (license.Surface, error) {
	base := a.URL()
	if base == "" {
		return nil, errors.New("server not started")
	}

	surface := websocket.NewSurface(a.WebSocketHub, websocket.SurfaceOptions{
		ConnectTimeout: a.Config.UI.WindowTimeout,
		Logger:         a.Logger,
	})

	pageURL := base + "/license"
	if !a.Config.UI.OpenBrowser {
		a.Logger.InfoContext(ctx, "License window ready", slog.String("url", pageURL))
		return surface, nil
	}

	if a.Config.UI.WindowBackend == config.WindowBackendChrome {
		win, err := a.openWindow(ctx, pageURL)
		if err == nil {
			bindWindow(surface, win)
			return surface, nil
		}
		a.Logger.WarnContext(ctx, "Chrome window unavailable, using the default browser",
			slog.String("error", err.Error()))
	}

	if err := a.openBrowser(ctx, pageURL); err != nil {
		a.Logger.WarnContext(ctx, "Failed to open browser",
			slog.String("error", err.Error()),
			slog.String("url", pageURL))
		fmt.Fprintf(os.Stderr, "\nOpen %s in your browser to activate your license.\n\n", pageURL)
	}
	return surface, nil
}

// Run starts the application and gates it on a valid license. Without one
// the license window is shown; closing it unlicensed stops the application
// with an error. A licensed application serves until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	status, err := a.awaitLicense(ctx)
	if err != nil {
		if stopErr := a.Stop(context.Background()); stopErr != nil {
			a.Logger.ErrorContext(ctx, "Shutdown failed", slog.String("error", stopErr.Error()))
		}
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	a.Logger.InfoContext(ctx, "License valid",
		slog.String("client", status.ClientName),
		slog.Time("expiration", status.Expiration.Time),
		slog.Any("features", a.Gate.AvailableFeatures(ctx)))

	select {
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Received shutdown signal")
	case err := <-a.serveErr:
		if err != nil {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			_ = a.Stop(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	return a.Stop(context.Background())
}

// awaitLicense returns the valid license, showing the license window when
// none is persisted
func (a *Application) awaitLicense(ctx context.Context) (*license.Status, error) {
	if status := a.Gate.CheckExistingLicense(ctx); status != nil {
		return status, nil
	}

	a.Logger.InfoContext(ctx, "No valid license, opening license window")
	if _, err := a.Gate.ShowLicenseWindow(ctx); err != nil {
		return nil, err
	}

	status := a.Gate.CheckExistingLicense(ctx)
	if status == nil {
		return nil, fmt.Errorf("license window closed: %w", apperrors.ErrLicenseNotActivated)
	}
	return status, nil
}

// Stop gracefully stops the application. Only the first call has an
// effect.
func (a *Application) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.stopErr = a.stop(ctx)
	})
	return a.stopErr
}

func (a *Application) stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	a.mu.Lock()
	started := a.listener != nil
	a.mu.Unlock()

	if started {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	a.WebSocketHub.Stop()

	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close error: %w", err))
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// Close releases the resources of an application that was never started
func (a *Application) Close() error {
	return a.Stop(context.Background())
}
