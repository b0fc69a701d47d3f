// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kwetu-labs/whatsdrip/internal/auth"
	"github.com/kwetu-labs/whatsdrip/internal/beem"
	"github.com/kwetu-labs/whatsdrip/internal/catalog"
	"github.com/kwetu-labs/whatsdrip/internal/config"
	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/drip"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/ctxlog"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/httputil"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/metrics"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/postgres"
	"github.com/kwetu-labs/whatsdrip/internal/sendy"
	"github.com/kwetu-labs/whatsdrip/internal/store"
	filestore "github.com/kwetu-labs/whatsdrip/internal/store/file"
	pgstore "github.com/kwetu-labs/whatsdrip/internal/store/postgres"
	"github.com/kwetu-labs/whatsdrip/internal/subscription"
	"github.com/kwetu-labs/whatsdrip/internal/version"
)

// Queue document names. Each queue family lives in its own durable document
// and is processed independently.
const (
	QueueDrip   = "drip_queue"
	QueueHybrid = "hybrid_queue"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *drip.Scheduler
	processors    map[string]*drip.Processor
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	docs, locker, db, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	if db != nil {
		go app.collectDBMetrics(metricsCtx)
	}

	router, err := app.setupRouter(docs, locker)
	if err != nil {
		if db != nil {
			db.Close()
		}
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// buildStore selects the durable store backend. The postgres pool is nil for
// the file backend.
func buildStore(cfg *config.Config) (store.Store, store.Locker, *pgxpool.Pool, error) {
	switch cfg.Store.Backend {
	case "file":
		st, err := filestore.New(cfg.Store.DataDir, filestore.WithLockTTL(cfg.Store.LockTTL))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return st, st, nil, nil

	case "postgres":
		connectCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		st := pgstore.NewStore(db)
		return st, st, db, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Run starts the HTTP servers and the queue scheduler.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start(context.Background())
	}

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the scheduler first so no pass is mid-flight when the store
	// goes away.
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Processors returns the queue processors keyed by queue family. Used by the
// one-shot processing command and in tests.
func (a *App) Processors() map[string]*drip.Processor {
	return a.processors
}

func (a *App) setupRouter(docs store.Store, locker store.Locker) (*chi.Mux, error) {
	beemClient, err := beem.NewClient(beem.Config{
		APIKey:         a.config.Beem.APIKey,
		SecretKey:      a.config.Beem.SecretKey,
		SenderNumber:   a.config.Beem.SenderNumber,
		APIBaseURL:     a.config.Beem.APIBaseURL,
		BroadcastURL:   a.config.Beem.BroadcastURL,
		TemplateUserID: a.config.Beem.TemplateUserID,
		Timeout:        a.config.Beem.Timeout,
		RateLimit:      a.config.Beem.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create whatsapp client: %w", err)
	}

	sendyClient, err := sendy.NewClient(sendy.Config{
		BaseURL:   a.config.Sendy.BaseURL,
		APIKey:    a.config.Sendy.APIKey,
		FromName:  a.config.Sendy.FromName,
		FromEmail: a.config.Sendy.FromEmail,
		Timeout:   a.config.Sendy.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create email client: %w", err)
	}

	whatsappSender := drip.NewWhatsAppSender(beemClient)
	emailSender := drip.NewEmailSender(sendyClient)

	// The drip queue carries WhatsApp-only sequences; the hybrid queue mixes
	// both channels.
	dripProcessor := drip.NewProcessor(drip.ProcessorConfig{
		QueueName:    QueueDrip,
		RetryBackoff: a.config.Queues.RetryBackoff,
		MaxAttempts:  a.config.Queues.MaxAttempts,
		Retention:    a.config.Queues.Retention,
	}, docs, locker, map[domain.Channel]drip.Sender{
		domain.ChannelWhatsApp: whatsappSender,
	})

	hybridProcessor := drip.NewProcessor(drip.ProcessorConfig{
		QueueName:    QueueHybrid,
		RetryBackoff: a.config.Queues.RetryBackoff,
		MaxAttempts:  a.config.Queues.MaxAttempts,
		Retention:    a.config.Queues.Retention,
	}, docs, locker, map[domain.Channel]drip.Sender{
		domain.ChannelWhatsApp: whatsappSender,
		domain.ChannelEmail:    emailSender,
	})

	a.processors = map[string]*drip.Processor{
		"drip":   dripProcessor,
		"hybrid": hybridProcessor,
	}

	if a.config.Scheduler.Enabled {
		a.scheduler = drip.NewScheduler(drip.SchedulerConfig{
			Interval:   a.config.Scheduler.Interval,
			RunOnStart: a.config.Scheduler.RunOnStart,
		}, dripProcessor, hybridProcessor)
	}

	mirrorHandler := subscription.NewMirrorHandler(docs, locker, beemClient)

	registry := subscription.NewRegistry(
		subscription.NewSingleMessageHandler(beemClient),
		subscription.NewDripSequenceHandler(dripProcessor),
		subscription.NewHybridDripHandler(hybridProcessor),
		mirrorHandler,
	)

	subscriptionService := subscription.NewService(docs, locker, registry)
	subscriptionHandler := subscription.NewHTTPHandler(
		subscriptionService,
		registry,
		mirrorHandler,
		a.config.Server.PublicURL,
		a.config.Webhooks.PhoneField,
	)

	catalogHandler := catalog.NewHandler(sendyClient, beemClient)
	queueHandler := drip.NewHandler(a.processors)

	authService, err := auth.NewService(auth.Config{
		AdminUser:         a.config.Auth.AdminUser,
		AdminPasswordHash: a.config.Auth.AdminPasswordHash,
		JWTSecret:         a.config.Auth.JWTSecret,
		TokenDuration:     a.config.Auth.TokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}
	authHandler := auth.NewHandler(authService)

	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	// Provider-facing webhooks live at the root so the URLs handed to the
	// email provider stay short. They authenticate by token in the path.
	subscriptionHandler.RegisterWebhookRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(authService))

			subscriptionHandler.RegisterAdminRoutes(r)
			queueHandler.RegisterRoutes(r)
			catalogHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
