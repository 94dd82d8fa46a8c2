package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/barangay172/portal/internal/config"
	"github.com/barangay172/portal/internal/domain/activity"
	"github.com/barangay172/portal/internal/domain/applications"
	"github.com/barangay172/portal/internal/domain/appointments"
	"github.com/barangay172/portal/internal/domain/concerns"
	"github.com/barangay172/portal/internal/domain/inbox"
	"github.com/barangay172/portal/internal/domain/patients"
	"github.com/barangay172/portal/internal/domain/records"
	"github.com/barangay172/portal/internal/domain/services"
	"github.com/barangay172/portal/internal/domain/settings"
	"github.com/barangay172/portal/internal/domain/users"
	"github.com/barangay172/portal/internal/platform/auth"
	"github.com/barangay172/portal/internal/platform/blobstore"
	"github.com/barangay172/portal/internal/platform/db"
	"github.com/barangay172/portal/internal/platform/middleware"
	"github.com/barangay172/portal/internal/platform/notification"
	"github.com/barangay172/portal/internal/platform/reporting"
)

const (
	version       = "1.0.0"
	tokenIssuer   = "barangay-portal"
	bodyLimit     = "12M"
	handlerBudget = 30 * time.Second
)

// auditSkip lists resources left out of the HTTP audit trail. Their services
// record activity rows themselves or the calls are personal bookkeeping.
var auditSkip = []string{
	"auth", "notifications", "badges",
	"users", "appointments", "patient-registrations", "medical-records",
	"health-services", "barangay-services", "settings", "applications", "concerns",
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "barangay-server",
		Short: "Barangay administrative portal API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(barangayCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(outboxCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openPool loads and validates config and connects to the database.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
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
		Short: "Apply pending migrations to a barangay schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("barangay")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := db.SchemaName(code)
			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("barangay", "172", "Barangay code")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("barangay")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := db.SchemaName(code)
			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format(reporting.DateTimeLayout)
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("barangay", "172", "Barangay code")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func barangayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "barangay",
		Short: "Manage barangay schemas",
	}

	createCmd := &cobra.Command{
		Use:   "create [code]",
		Short: "Create a barangay schema and run its migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			dir, _ := cmd.Flags().GetString("dir")
			if len(args) == 1 {
				code = args[0]
			}
			if code == "" {
				return fmt.Errorf("barangay code is required")
			}

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating barangay schema: %s\n", db.SchemaName(code))
			if err := db.CreateBarangaySchema(ctx, pool, code, dir); err != nil {
				return err
			}
			fmt.Println("Barangay created. Seed its administrator with: barangay-server admin seed --barangay", code)
			return nil
		},
	}
	createCmd.Flags().String("code", "", "Barangay code (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List barangay schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			codes, err := db.ListBarangays(ctx, pool)
			if err != nil {
				return err
			}
			for _, code := range codes {
				fmt.Println(code)
			}
			return nil
		},
	})

	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator account tasks",
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the first administrator and email its credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("barangay")
			email, _ := cmd.Flags().GetString("email")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if email == "" {
				email = cfg.AdminEmail
			}

			a, err := buildApp(cfg, pool, newLogger(cfg))
			if err != nil {
				return err
			}
			ctx, release, err := db.WithBarangayConn(ctx, pool, code)
			if err != nil {
				return err
			}
			defer release()

			result, err := a.users.SeedAdmin(ctx, email)
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Println("An administrator already exists; nothing to do.")
				return nil
			}
			fmt.Printf("Created administrator %s (%s); credentials email %s.\n",
				result.User.Username, result.User.Email, result.CredentialsDelivery)
			return nil
		},
	}
	seedCmd.Flags().String("barangay", "172", "Barangay code")
	seedCmd.Flags().String("email", "", "Administrator email (defaults to ADMIN_EMAIL)")
	cmd.AddCommand(seedCmd)

	return cmd
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Email outbox maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Retry due outbox messages in every barangay once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg)
			a, err := buildApp(cfg, pool, logger)
			if err != nil {
				return err
			}
			return notification.NewRetryWorker(pool, a.outbox, logger).RunOnce(ctx)
		},
	})
	return cmd
}

// app holds the services shared by the HTTP server and the CLI.
type app struct {
	outbox       *notification.Outbox
	activity     *activity.Service
	inbox        *inbox.Service
	users        *users.Service
	appointments *appointments.Service
	patients     *patients.Service
	records      *records.Service
	services     *services.Service
	settings     *settings.Service
	applications *applications.Service
	concerns     *concerns.Service
}

func newSender(cfg *config.Config) *notification.FallbackSender {
	var senders []notification.EmailSender
	if cfg.SMTPHost != "" && cfg.SMTPFromEmail != "" {
		senders = append(senders, notification.NewSMTPSender(notification.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.SMTPFromEmail,
			FromName:  cfg.SMTPFromName,
			StartTLS:  cfg.SMTPStartTLS,
		}))
	}
	if cfg.SendGridAPIKey != "" {
		senders = append(senders, notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.SMTPFromEmail, cfg.SMTPFromName))
	}
	return notification.NewFallbackSender(senders...)
}

func buildApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	key, err := cfg.OutboxKeyBytes()
	if err != nil {
		return nil, err
	}
	sealer, err := notification.NewSealer(key)
	if err != nil {
		return nil, err
	}
	tx := db.NewTxManager(pool)
	activitySvc := activity.NewService(activity.NewRepoPG(pool), logger)
	settingsSvc := settings.NewService(settings.NewRepoPG(pool), tx, activitySvc, logger)
	docs, err := blobstore.NewDiskBlobStore(cfg.UploadsDir)
	if err != nil {
		return nil, err
	}

	outbox := notification.NewOutbox(
		notification.NewOutboxRepoPG(pool),
		sealer,
		newSender(cfg),
		notification.NewTemplateEngine(),
		notification.OutboxConfig{
			Enabled:     cfg.EmailEnabled,
			Switch:      settings.EmailEnabled(settingsSvc),
			MaxAttempts: cfg.OutboxMaxAttempts,
			BatchSize:   cfg.OutboxBatchSize,
			Defaults: map[string]string{
				"system_name":   cfg.SMTPFromName,
				"barangay_name": cfg.BarangayName,
				"login_url":     cfg.SystemURL + "/login",
			},
		},
		logger,
	)

	inboxSvc := inbox.NewService(inbox.NewRepoPG(pool), logger)
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), tokenIssuer, cfg.TokenTTL)
	servicesSvc := services.NewService(services.NewRepoPG(pool), tx, activitySvc)

	return &app{
		outbox:       outbox,
		activity:     activitySvc,
		inbox:        inboxSvc,
		users:        users.NewService(users.NewRepoPG(pool), tx, outbox, activitySvc, tokens, docs, logger),
		appointments: appointments.NewService(appointments.NewRepoPG(pool), tx, activitySvc, inboxSvc),
		patients:     patients.NewService(patients.NewRepoPG(pool), tx, activitySvc, inboxSvc),
		records:      records.NewService(records.NewRepoPG(pool), tx, activitySvc),
		services:     servicesSvc,
		settings:     settingsSvc,
		applications: applications.NewService(applications.NewRepoPG(pool), tx, activitySvc, inboxSvc, outbox, servicesSvc, settingsSvc, logger),
		concerns:     concerns.NewService(concerns.NewRepoPG(pool), tx, activitySvc, inboxSvc),
	}, nil
}

// newServer builds the echo instance with the full middleware chain and
// every route registered.
func newServer(cfg *config.Config, pool *pgxpool.Pool, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", db.BarangayHeader},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(handlerBudget))
	apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     tokenIssuer,
		SigningKey: []byte(cfg.JWTSecret),
		Skipper:    auth.AuthSkipper,
	}))
	apiV1.Use(db.BarangayMiddleware(pool, cfg.DefaultBarangay))
	apiV1.Use(settings.MaintenanceGate(a.settings))
	apiV1.Use(settings.PageSize(a.settings))
	apiV1.Use(middleware.Audit(logger, activity.NewAuditRecorder(a.activity, auditSkip...)))

	users.NewHandler(a.users).RegisterRoutes(apiV1)
	appointments.NewHandler(a.appointments).RegisterRoutes(apiV1)
	patients.NewHandler(a.patients).RegisterRoutes(apiV1)
	records.NewHandler(a.records).RegisterRoutes(apiV1)
	services.NewHandler(a.services).RegisterRoutes(apiV1)
	settings.NewHandler(a.settings).RegisterRoutes(apiV1)
	applications.NewHandler(a.applications).RegisterRoutes(apiV1)
	concerns.NewHandler(a.concerns).RegisterRoutes(apiV1)
	activity.NewHandler(a.activity).RegisterRoutes(apiV1)
	inbox.NewHandler(a.inbox).RegisterRoutes(apiV1)
	notification.NewHandler(a.outbox).RegisterRoutes(apiV1)
	reporting.NewHandler(pool, logger).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
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

	a, err := buildApp(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}
	e := newServer(cfg, pool, a, logger)

	worker := notification.NewRetryWorker(pool, a.outbox, logger)
	if err := worker.Start(cfg.OutboxRetrySchedule); err != nil {
		logger.Fatal().Err(err).Msg("failed to start outbox worker")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("barangay", cfg.DefaultBarangay).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	worker.Stop(shutdownCtx)
	logger.Info().Msg("server stopped")
	return nil
}
