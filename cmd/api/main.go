package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kishan11111/GujaratClassified-sub001/internal/app"
	"github.com/kishan11111/GujaratClassified-sub001/internal/config"
	"github.com/kishan11111/GujaratClassified-sub001/internal/db"
)

func main() {
	// Env vars already set win over .env; server/.env covers runs from the repo root.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	rootCmd := &cobra.Command{
		Use:           "api",
		Short:         "Gujarat Classified identity and session API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(logger)
		},
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run migrations and start the HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(logger)
			},
		},
		migrateCmd(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("command failed")
	}
}

func loadConfig(logger *logrus.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return cfg, nil
}

func serve(logger *logrus.Logger) error {
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if cfg.DevMode {
		logger.Warn("DEV_MODE is on; generated OTPs are returned in responses")
	}

	ctx := context.Background()
	api, err := app.New(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer api.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited")
	return nil
}

func migrateCmd(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	// Migrations only need the database, not the JWT or OTP secrets.
	run := func(name, short string, op func(context.Context, *sql.DB) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dsn := os.Getenv("DATABASE_URL")
				if dsn == "" {
					return errors.New("DATABASE_URL environment variable is required")
				}
				database, err := db.Open(cmd.Context(), dsn, logger)
				if err != nil {
					return err
				}
				defer database.Close()
				if err := op(cmd.Context(), database); err != nil {
					return err
				}
				logger.WithField("command", name).Info("migrate finished")
				return nil
			},
		}
	}

	cmd.AddCommand(
		run("up", "Apply all pending migrations", db.MigrateUp),
		run("down", "Roll back the latest migration", db.MigrateDown),
		run("status", "Show applied and pending migrations", db.MigrationStatus),
	)
	return cmd
}
