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
	"github.com/redis/go-redis/v9"

	"github.com/bissquit/tourdesk/internal/config"
	eventsnats "github.com/bissquit/tourdesk/internal/events/nats"
	"github.com/bissquit/tourdesk/internal/identity/jwt"
	"github.com/bissquit/tourdesk/internal/notifications"
	"github.com/bissquit/tourdesk/internal/notifications/email"
	"github.com/bissquit/tourdesk/internal/notifications/inapp"
	notificationspostgres "github.com/bissquit/tourdesk/internal/notifications/postgres"
	"github.com/bissquit/tourdesk/internal/notifications/push"
	"github.com/bissquit/tourdesk/internal/notifications/sms"
	"github.com/bissquit/tourdesk/internal/pkg/ctxlog"
	"github.com/bissquit/tourdesk/internal/pkg/httputil"
	"github.com/bissquit/tourdesk/internal/pkg/postgres"
	"github.com/bissquit/tourdesk/internal/version"
	"github.com/bissquit/tourdesk/migrations"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	server        *http.Server
	metricsServer *http.Server

	dispatcher  *notifications.Dispatcher
	subscriber  *eventsnats.Subscriber
	maintenance *maintenance
}

// New creates a new application instance and starts its background workers.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	app := &App{
		config: cfg,
		logger: logger,
	}

	if err := app.connectStorage(); err != nil {
		app.closeStorage()
		return nil, err
	}

	router, err := app.setupRouter()
	if err != nil {
		_ = app.stopWorkers()
		app.closeStorage()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
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

func (a *App) connectStorage() error {
	cfg := a.config

	if cfg.Notifications.Storage == config.StoragePostgres {
		connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer connectCancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db

		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(migrations.FS, cfg.Database.URL); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}
	}

	if cfg.Notifications.Inbox == config.StorageRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
	}

	return nil
}

// stopWorkers stops event intake first, then the scheduler, then lets
// in-flight deliveries finish.
func (a *App) stopWorkers() error {
	var err error
	if a.subscriber != nil {
		a.subscriber.Stop()
	}
	if a.maintenance != nil {
		if stopErr := a.maintenance.Stop(); stopErr != nil {
			err = fmt.Errorf("stop scheduler: %w", stopErr)
		}
	}
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	return err
}

func (a *App) closeStorage() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
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

	if err := a.stopWorkers(); err != nil {
		errs = append(errs, err)
	}

	a.closeStorage()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Dispatcher returns the notification dispatcher. Used in tests.
func (a *App) Dispatcher() *notifications.Dispatcher {
	return a.dispatcher
}

func (a *App) messageStores() (notifications.MessageRepository, notifications.PreferenceRepository) {
	if a.db != nil {
		repo := notificationspostgres.NewRepository(a.db)
		return repo, repo
	}
	return notifications.NewMemoryMessageStore(), notifications.NewMemoryPreferenceStore()
}

func (a *App) inboxStore() inapp.Store {
	if a.redis != nil {
		return inapp.NewRedisStore(a.redis, inapp.RedisConfig{
			MaxEntries: a.config.Notifications.InboxMaxEntries,
			TTL:        a.config.Notifications.InboxTTL,
		})
	}
	return inapp.NewMemoryStore()
}

func (a *App) setupProviders() (*notifications.Registry, *inapp.Provider, error) {
	nc := a.config.Notifications

	emailSender, err := email.NewSender(email.Config{
		Enabled:      nc.Email.Enabled,
		SMTPHost:     nc.Email.SMTPHost,
		SMTPPort:     nc.Email.SMTPPort,
		SMTPUser:     nc.Email.SMTPUser,
		SMTPPassword: nc.Email.SMTPPassword,
		FromAddress:  nc.Email.FromAddress,
		TLSPolicy:    nc.Email.TLSPolicy,
		Timeout:      nc.Email.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create email sender: %w", err)
	}

	if !nc.Email.Enabled {
		slog.Warn("email sender is disabled: email deliveries will be simulated")
	}
	if nc.Push.GatewayURL == "" {
		slog.Warn("push gateway is not configured: push deliveries will be simulated")
	}

	pushSender := push.NewSender(push.Config{
		GatewayURL: nc.Push.GatewayURL,
		APIKey:     nc.Push.APIKey,
		Timeout:    nc.Push.Timeout,
	})
	smsSender := sms.NewSender(sms.Config{
		RatePerSecond: nc.SMS.RatePerSecond,
		Burst:         nc.SMS.Burst,
	})
	inbox := inapp.NewProvider(a.inboxStore())

	registry := notifications.NewRegistry(emailSender, pushSender, smsSender, inbox)
	return registry, inbox, nil
}

func (a *App) setupRouter() (*chi.Mux, error) {
	nc := a.config.Notifications

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

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	registry, inbox, err := a.setupProviders()
	if err != nil {
		return nil, err
	}

	messages, preferenceStore := a.messageStores()
	templates := notifications.NewTemplateRegistry(notifications.DefaultTemplates()...)
	preferences := notifications.NewPreferenceResolver(preferenceStore)

	slog.Info("notifications configured",
		"storage", nc.Storage,
		"inbox", nc.Inbox,
		"channels", registry.AvailableChannels(),
		"max_concurrency", nc.Queue.MaxConcurrency,
		"max_retries", nc.Queue.MaxRetries,
	)

	a.dispatcher = notifications.NewDispatcher(notifications.DispatcherConfig{
		Queue: notifications.QueueConfig{
			MaxConcurrency:    nc.Queue.MaxConcurrency,
			MaxRetries:        nc.Queue.MaxRetries,
			RetryDelay:        nc.Queue.RetryDelay,
			ProcessingTimeout: nc.Queue.ProcessingTimeout,
			PollInterval:      nc.Queue.PollInterval,
		},
		Retention: nc.Retention,
	}, templates, preferences, registry, messages)
	a.dispatcher.Start(context.Background())

	maint, err := newMaintenance(maintenanceConfig{
		CleanupInterval: nc.CleanupInterval,
		StatsInterval:   nc.StatsInterval,
	}, a.dispatcher, a.db, a.redis)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	maint.Start()
	a.maintenance = maint

	if a.config.NATS.URL != "" {
		subscriber := eventsnats.NewSubscriber(eventsnats.Config{
			URL:     a.config.NATS.URL,
			Subject: a.config.NATS.Subject,
			Queue:   a.config.NATS.Queue,
		}, notifications.NewNotifier(a.dispatcher))
		if err := subscriber.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("start event subscriber: %w", err)
		}
		a.subscriber = subscriber
	}

	tokens := jwt.NewValidator(jwt.Config{
		SecretKey: a.config.JWT.SecretKey,
		Issuer:    a.config.JWT.Issuer,
	})
	notificationsHandler := notifications.NewHandler(a.dispatcher, preferences, templates, registry, inbox)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(tokens))
		notificationsHandler.RegisterRoutes(r)
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}

	if a.subscriber != nil && !a.subscriber.IsConnected() {
		httputil.Text(w, http.StatusServiceUnavailable, "Event bus unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
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
