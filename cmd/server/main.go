package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/constants"
	fxmodules "sc2-custom-tracker/internal/fx"
	"sc2-custom-tracker/internal/ingest"
	"sc2-custom-tracker/internal/middleware"
	"sc2-custom-tracker/internal/roster"
	"sc2-custom-tracker/internal/server"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runPipeline),
		fx.Invoke(runServer),
	).Run()
}

// runPipeline loads the roster and drives the orchestrator lifecycle: the
// scheduler starts once the roster is in place and drains its in-flight
// cycle on shutdown.
func runPipeline(
	lc fx.Lifecycle,
	rosterSvc *roster.Service,
	orch *ingest.Orchestrator,
	logger zerolog.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rosterSvc.InitializeCommunityData(ctx); err != nil {
				return fmt.Errorf("initialize community data: %w", err)
			}
			orch.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			orch.Stop()
			orch.Cleanup()
			return nil
		},
	})
}

func runServer(
	lc fx.Lifecycle,
	ingestionServer *server.IngestionServer,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(logger)
	handler := requestIDMiddleware(c.Handler(ingestionServer.Routes()))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      handler,
		// No WriteTimeout: a synchronous manual ingestion run can legitimately
		// outlast any fixed response deadline.
		ReadTimeout: constants.RequestTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
