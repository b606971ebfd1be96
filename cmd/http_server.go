package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/auth"
	authPostgres "github.com/frahmantamala/project-access/internal/auth/postgres"
	"github.com/frahmantamala/project-access/internal/core/events"
	"github.com/frahmantamala/project-access/internal/directory"
	directoryPostgres "github.com/frahmantamala/project-access/internal/directory/postgres"
	"github.com/frahmantamala/project-access/internal/notification"
	"github.com/frahmantamala/project-access/internal/notification/webhook"
	"github.com/frahmantamala/project-access/internal/revocation"
	revocationPostgres "github.com/frahmantamala/project-access/internal/revocation/postgres"
	revocationRedis "github.com/frahmantamala/project-access/internal/revocation/redis"
	"github.com/frahmantamala/project-access/internal/transport/middleware"
	"github.com/frahmantamala/project-access/internal/transport/rest"
	"github.com/frahmantamala/project-access/pkg/logger"

	"github.com/go-chi/chi"
	goredis "github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Redis    *goredis.Client
	EventBus *events.EventBus
	Webhook  *webhook.Notifier
	Router   *chi.Mux
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		// let queued notifications finish before the process exits
		if err := deps.EventBus.Wait(ctx); err != nil {
			deps.Logger.Warn("Pending notifications abandoned", "error", err)
		}
		closeDependencies(deps)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	var (
		httpMetrics    *middleware.HTTPMetrics
		metricsHandler http.Handler
		authMetrics    *auth.Metrics
	)
	if cfg.Observability.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		authMetrics = auth.NewMetrics()
		if err := authMetrics.Register(reg); err != nil {
			return fmt.Errorf("register auth metrics: %w", err)
		}
		httpMetrics = middleware.NewHTTPMetrics()
		if err := httpMetrics.Register(reg); err != nil {
			return fmt.Errorf("register http metrics: %w", err)
		}
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	registry := revocation.NewRegistry(newRevocationStore(deps), lg)
	notifier := notification.NewDispatcher(deps.EventBus, newNotificationDelivery(deps), lg)

	users := authPostgres.NewRepository(deps.Gorm)
	authService := auth.NewService(auth.Dependencies{
		Users:       users,
		Permissions: users,
		Tokens: auth.NewJWTTokenGenerator(auth.TokenConfig{
			AccessSecret:  cfg.Security.AccessTokenSecret,
			RefreshSecret: cfg.Security.RefreshTokenSecret,
			Issuer:        cfg.Security.Issuer,
			Standard: auth.Lifetimes{
				Access:  cfg.Security.AccessTokenDuration,
				Refresh: cfg.Security.RefreshTokenDuration,
			},
			Remember: auth.Lifetimes{
				Access:  cfg.Security.RememberAccessTokenDuration,
				Refresh: cfg.Security.RememberRefreshTokenDuration,
			},
		}),
		Revocations:  registry,
		ResetTokens:  auth.NewResetTokenGenerator(cfg.Security.ResetTokenSecret, cfg.Security.ResetTokenDuration),
		Notifier:     notifier,
		Metrics:      authMetrics,
		Logger:       lg,
		ResetURL:     cfg.Security.PasswordResetURL,
		BCryptCost:   cfg.Security.BCryptCost,
		StoreTimeout: cfg.Server.StoreTimeout,
	})

	dirService := directory.NewService(
		directoryPostgres.NewRepository(deps.Gorm),
		notifier,
		lg,
		cfg.Security.BCryptCost,
		cfg.Server.StoreTimeout,
	)

	opts := rest.Options{
		DB:               deps.DB.DB,
		AuthHandler:      auth.NewHandler(authService, lg),
		DirectoryHandler: directory.NewHandler(dirService, lg),
		RBAC:             auth.NewRBACAuthorization(auth.NewPermissionChecker(), lg),
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		HTTPMetrics:      httpMetrics,
		MetricsHandler:   metricsHandler,
		MetricsPath:      cfg.Observability.Metrics.Path,
		Logger:           lg,
	}
	// a nil *Client must not become a non-nil interface
	if deps.Redis != nil {
		opts.Redis = deps.Redis
	}
	rest.RegisterAllRoutes(deps.Router, opts)
	return nil
}

// newNotificationDelivery posts to the configured webhook, or only logs when none is set.
func newNotificationDelivery(deps *Dependencies) notification.Notifier {
	nc := deps.Config.Notification
	if nc.WebhookURL == "" {
		return notification.NewLogNotifier(deps.Logger)
	}
	deps.Webhook = webhook.NewNotifier(webhook.Config{
		URL:         nc.WebhookURL,
		APIKey:      nc.APIKey,
		Timeout:     nc.Timeout,
		MaxWorkers:  nc.MaxWorkers,
		QueueSize:   nc.QueueSize,
		MaxAttempts: nc.MaxAttempts,
	}, deps.Logger)
	return deps.Webhook
}

func newRevocationStore(deps *Dependencies) revocation.Store {
	rc := deps.Config.Revocation
	if rc.Backend == internal.RevocationBackendRedis {
		return revocationRedis.NewRevocationStore(deps.Redis, rc.KeyPrefix, rc.DefaultTTL)
	}
	return revocationPostgres.NewRevocationStore(deps.DB)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db.DB)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	var rdb *goredis.Client
	if config.Revocation.Backend == internal.RevocationBackendRedis {
		rdb, err = initRedis(config.Redis)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
	}

	return &Dependencies{
		Config:   config,
		Logger:   lg,
		DB:       db,
		Gorm:     gormDB,
		Redis:    rdb,
		EventBus: events.NewEventBus(lg),
		Router:   chi.NewRouter(),
	}, nil
}

func closeDependencies(deps *Dependencies) {
	if deps.Webhook != nil {
		deps.Webhook.Shutdown()
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			deps.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("Database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx connection pool with gorm.
func initGorm(sqlDB *sql.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
}

func initRedis(cfg internal.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
