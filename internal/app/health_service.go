package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/denyslietnikov/tfiacd/internal/ac"
	"github.com/denyslietnikov/tfiacd/internal/config"
	"github.com/denyslietnikov/tfiacd/internal/ledger"
)

// HealthService provides HTTP health and status endpoints.
type HealthService struct {
	cfg     *config.Config
	devices []*DeviceService
	journal *ledger.Ledger
	server  *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, devices []*DeviceService, journal *ledger.Ledger) *HealthService {
	return &HealthService{
		cfg:     cfg,
		devices: devices,
		journal: journal,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

func (s *HealthService) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Current wire-shaped status of every managed device
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		statuses := make(map[string]ac.Status, len(s.devices))
		for _, d := range s.devices {
			statuses[d.Name] = d.State.ToApiStatus()
		}
		writeJSON(w, statuses)
	})

	// Recent journal entries for one device
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		device := r.URL.Query().Get("device")
		if device == "" {
			http.Error(w, `{"error":"device parameter required"}`, http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		states, err := s.journal.RecentStateChanges(device, limit)
		if err != nil {
			http.Error(w, `{"error":"journal read failed"}`, http.StatusInternalServerError)
			return
		}
		commands, err := s.journal.RecentCommandEvents(device, limit)
		if err != nil {
			http.Error(w, `{"error":"journal read failed"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"state_changes":  states,
			"command_events": commands,
		})
	})

	return mux
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
