package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/cleanup"
	"github.com/clinicdesk/clinicdesk/internal/domain/cron"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
	"github.com/clinicdesk/clinicdesk/internal/domain/reminder"
	"github.com/clinicdesk/clinicdesk/internal/domain/sync"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/middleware"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/websocket"
)

// logEmailSender and logSMSSender stand in for real delivery providers. The
// clinic's SMS/email gateways are external services configured per
// deployment; until one is wired, outbound messages are logged so the rest
// of the dispatch pipeline (templates, records, reminder flags) is exercised
// end to end.
type logEmailSender struct {
	from   string
	logger zerolog.Logger
}

func (s *logEmailSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.logger.Info().Str("from", s.from).Str("to", to).Str("subject", subject).Msg("email dispatched")
	return nil
}

type logSMSSender struct {
	from   string
	logger zerolog.Logger
}

func (s *logSMSSender) SendSMS(_ context.Context, to, _ string) error {
	s.logger.Info().Str("from", s.from).Str("to", to).Msg("sms dispatched")
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic queue and appointment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator, logger zerolog.Logger) error {
				if err := m.Up(ctx); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				logger.Info().Msg("migrations up to date")
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator, _ zerolog.Logger) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%-40s %s\n", "VERSION", "STATUS")
				for _, s := range statuses {
					status := "pending"
					if s.Applied {
						status = "applied"
					}
					fmt.Printf("%-40s %s\n", s.Version, status)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(dir string, fn func(context.Context, *db.Migrator, zerolog.Logger) error) error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir, logger), logger)
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Staff auth. The cron and health endpoints are deliberately outside
	// this chain: cron has its own scheduler auth, health has none.
	var staffAuth echo.MiddlewareFunc
	if cfg.IsDev() {
		staffAuth = auth.DevAuthMiddleware()
	} else {
		staffAuth = auth.JWTMiddleware([]byte(cfg.JWTSecret))
	}

	apiV1 := e.Group("/api/v1", staffAuth, db.TenantMiddleware(cfg.DefaultTenant))
	wsGroup := e.Group("/ws", staffAuth, db.TenantMiddleware(cfg.DefaultTenant))
	cronGroup := e.Group("/cron", auth.CronAuth(cfg.CronTrustedHeader, cfg.CronSecret))

	e.GET("/health", db.HealthHandler(pool))

	// Repositories
	patientRepo := patient.NewRepoPG(pool)
	queueRepo := queue.NewRepoPG(pool)
	apptRepo := appointment.NewRepoPG(pool)

	// Real-time event hub
	hub := websocket.NewHub(logger)
	wsHandler := websocket.NewHandler(hub)
	wsHandler.RegisterRoutes(wsGroup)

	// Services
	patientSvc := patient.NewService(patientRepo)
	queueSvc := queue.NewService(queueRepo, logger)
	apptSvc := appointment.NewService(apptRepo, logger)
	queueSvc.SetEventPublisher(hub)
	apptSvc.SetEventPublisher(hub)

	// Status synchronizer, wired as both services' propagator. It writes
	// through the repositories, so its mirror writes never loop back.
	synchronizer := sync.New(queueRepo, apptRepo, logger)
	queueSvc.SetPropagator(synchronizer)
	apptSvc.SetPropagator(synchronizer)

	// Notifications
	templates := notification.NewTemplateEngine()
	notifyMgr := notification.NewManager(
		&logEmailSender{from: cfg.EmailFromAddress, logger: logger},
		&logSMSSender{from: cfg.SMSFromNumber, logger: logger},
		templates,
	)

	// Scheduled jobs
	closer := cleanup.NewCloser(queueRepo, apptRepo, logger)
	dispatcher := reminder.NewDispatcher(
		apptRepo, patientRepo, notifyMgr,
		time.Duration(cfg.ReminderLeadHours)*time.Hour,
		time.Duration(cfg.SendTimeoutSecs)*time.Second,
		logger,
	)

	// Handlers
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	queue.NewHandler(queueSvc).RegisterRoutes(apiV1)
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1)
	notification.NewHandler(notifyMgr).RegisterRoutes(apiV1)
	cron.NewHandler(closer, dispatcher, logger).RegisterRoutes(cronGroup)

	// Serve with graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
