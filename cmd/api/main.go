package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budget-tracker/internal/config"
	"budget-tracker/internal/infrastructure/database"
	"budget-tracker/internal/interfaces/router"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	setupLogger(cfg)

	if *migrateCmd != "" {
		handleMigration(cfg, *migrateCmd, *steps)
		return
	}

	app, db, rdb, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Postgres: get DB")
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Postgres connection failed")
	}
	log.Info().Msg("Postgres connected")
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	log.Info().Msg("Redis connected")

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Server running")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	_ = rdb.Close()
	_ = sqlDB.Close()
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func handleMigration(cfg *config.Config, command string, steps int) {
	m, err := database.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("migrator")
	}
	defer m.Close()

	msg, err := database.RunMigrations(m, command, steps)
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}
	log.Info().Str("command", command).Msg(msg)
}
