// Package main is the entry point for the hybrid VQE engine server.
//
// The server runs variational quantum eigensolver jobs against the built-in
// statevector backend, persists every run with its evaluation history, and
// exposes runs over HTTP with live websocket streams.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/hybrid/internal/config"
	"github.com/aristath/hybrid/internal/database"
	"github.com/aristath/hybrid/internal/events"
	"github.com/aristath/hybrid/internal/modules/deuteron"
	"github.com/aristath/hybrid/internal/modules/quantum"
	"github.com/aristath/hybrid/internal/modules/runs"
	"github.com/aristath/hybrid/internal/scheduler"
	"github.com/aristath/hybrid/internal/server"
	"github.com/aristath/hybrid/pkg/logger"
)

// main wires the process together:
//  1. Loads configuration from environment variables (.env supported)
//  2. Opens and migrates runs.db
//  3. Marks runs orphaned by a previous process as failed
//  4. Starts the maintenance scheduler and the HTTP server
//  5. On SIGINT/SIGTERM cancels in-flight runs and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Msg("Starting hybrid engine")

	runsDB, err := database.New(database.Config{
		Path:    cfg.RunsDBPath(),
		Profile: database.ProfileStandard,
		Name:    "runs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open runs database")
	}
	defer runsDB.Close()

	if err := runsDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate runs database")
	}

	backend, err := quantum.NewSimulator(quantum.Config{
		Shots: cfg.Backend.Shots,
		Seed:  cfg.Backend.Seed,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create statevector backend")
	}

	bus := events.NewBus(log)
	eventManager := events.NewManager(bus, log)

	runService := runs.NewService(
		runs.NewRepository(runsDB.Conn(), log),
		backend,
		cfg.OptimizerOptions(),
		eventManager,
		log,
	)
	if err := runService.Recover(); err != nil {
		log.Error().Err(err).Msg("Failed to recover interrupted runs")
	}

	sched := scheduler.New(log)
	pruneJob := scheduler.NewPruneRunsJob(runService, cfg.RunRetentionDays)
	pruneJob.SetLogger(log)
	walJob := scheduler.NewCheckWALCheckpointsJob(runsDB)
	walJob.SetLogger(log)
	for _, job := range []scheduler.Job{pruneJob, walJob} {
		if err := sched.AddJob(cfg.MaintenanceSchedule, job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to schedule job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:     log,
		RunsDB:  runsDB,
		Runs:    runService,
		Kernels: deuteron.Kernels(),
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Runs first so their streams see the final state before connections drop
	if err := runService.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Runs did not stop in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := runsDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final WAL checkpoint failed")
	}

	log.Info().Msg("Server stopped")
}
