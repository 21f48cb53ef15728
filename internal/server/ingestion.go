package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/api"
	"sc2-custom-tracker/internal/ingest"
	"sc2-custom-tracker/internal/middleware"
	"sc2-custom-tracker/internal/roster"
)

// CharacterSource answers upstream character lookups. *api.PulseClient
// satisfies it.
type CharacterSource interface {
	GetCharacter(ctx context.Context, characterID int64) (*api.CharacterResponse, error)
}

// IngestionServer exposes the manual trigger and observability surface over
// JSON. It holds no pipeline state of its own.
type IngestionServer struct {
	orch       *ingest.Orchestrator
	roster     *roster.Service
	characters CharacterSource
	logger     zerolog.Logger
}

func NewIngestionServer(orch *ingest.Orchestrator, rosterSvc *roster.Service, characters CharacterSource, logger zerolog.Logger) *IngestionServer {
	return &IngestionServer{orch: orch, roster: rosterSvc, characters: characters, logger: logger}
}

// Routes mounts the control surface on a chi router.
func (s *IngestionServer) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/ingestion", func(r chi.Router) {
			r.Post("/run", s.RunIngestion)
			r.Post("/start", s.StartScheduler)
			r.Post("/stop", s.StopScheduler)
			r.Get("/status", s.GetStatus)
			r.Get("/stats", s.GetStats)
		})
		r.Get("/roster", s.GetRoster)
		r.Get("/players/{characterID}", s.GetPlayer)
	})

	return r
}

func (s *IngestionServer) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RunIngestion executes one cycle synchronously and returns its result.
// Stage failures appear in the result's errors list with HTTP 200; the run
// itself cannot fail.
func (s *IngestionServer) RunIngestion(w http.ResponseWriter, r *http.Request) {
	result := s.orch.RunManualIngestion(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (s *IngestionServer) StartScheduler(w http.ResponseWriter, r *http.Request) {
	s.orch.Start()
	writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *IngestionServer) StopScheduler(w http.ResponseWriter, r *http.Request) {
	s.orch.Stop()
	writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *IngestionServer) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *IngestionServer) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orch.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to aggregate stats")
		writeError(w, r, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetRoster lists the persisted roster. This is the database view, not the
// in-memory snapshot, so it includes players dropped from the file after an
// earlier load.
func (s *IngestionServer) GetRoster(w http.ResponseWriter, r *http.Request) {
	players, err := s.roster.Players(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list roster")
		writeError(w, r, http.StatusInternalServerError, "failed to list roster")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(players),
		"players": players,
	})
}

// GetPlayer proxies an upstream character lookup, mainly for checking a
// roster entry's id against the ladder service.
func (s *IngestionServer) GetPlayer(w http.ResponseWriter, r *http.Request) {
	characterID, err := strconv.ParseInt(chi.URLParam(r, "characterID"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid character id")
		return
	}

	character, err := s.characters.GetCharacter(r.Context(), characterID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("character_id", characterID).Msg("upstream character lookup failed")
		writeError(w, r, http.StatusBadGateway, "upstream character lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, character)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":     msg,
		"requestId": middleware.GetRequestID(r.Context()),
	})
}
