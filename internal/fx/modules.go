package fx

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"sc2-custom-tracker/internal/api"
	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/database"
	"sc2-custom-tracker/internal/ingest"
	"sc2-custom-tracker/internal/logger"
	"sc2-custom-tracker/internal/repository"
	"sc2-custom-tracker/internal/roster"
	"sc2-custom-tracker/internal/server"
)

// ProvideConfig resolves configuration with a bootstrap logger; the injected
// logger honors the configured level and is built from the config afterwards.
func ProvideConfig() (*config.Config, error) {
	return config.Load(logger.New())
}

func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logger.FromConfigLevel(cfg.LogLevel)
}

func ProvideDiscovery(client *api.PulseClient, log zerolog.Logger) *ingest.Discovery {
	return ingest.NewDiscovery(client, log)
}

func ProvideFactorProvider() ingest.FactorProvider {
	return ingest.NewDefaultFactorProvider()
}

func ProvideScorer(cfg *config.Config) *ingest.Scorer {
	return ingest.NewScorer(ingest.ScorerConfigFrom(cfg))
}

func ProvideDeduplicator(repo *repository.DedupRepository, cfg *config.Config, log zerolog.Logger) *ingest.Deduplicator {
	return ingest.NewDeduplicator(repo, cfg.DBPath, log)
}

func ProvideStore(repo *repository.MatchStoreRepository, log zerolog.Logger) *ingest.Store {
	return ingest.NewStore(repo, "custom_matches", log)
}

func ProvideIngestionServer(orch *ingest.Orchestrator, rosterSvc *roster.Service, client *api.PulseClient, log zerolog.Logger) *server.IngestionServer {
	return server.NewIngestionServer(orch, rosterSvc, client, log)
}

var Module = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLogger),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewRosterRepository),
	fx.Provide(repository.NewDedupRepository),
	fx.Provide(repository.NewMatchStoreRepository),
	// api client
	fx.Provide(api.NewPulseClient),
	// roster
	fx.Provide(roster.NewService),
	// pipeline
	fx.Provide(ProvideDiscovery),
	fx.Provide(ProvideFactorProvider),
	fx.Provide(ProvideScorer),
	fx.Provide(ProvideDeduplicator),
	fx.Provide(ProvideStore),
	fx.Provide(ingest.NewOrchestrator),
	// server
	fx.Provide(ProvideIngestionServer),
)
