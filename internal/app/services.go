package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/denyslietnikov/tfiacd/internal/ac"
	"github.com/denyslietnikov/tfiacd/internal/config"
	"github.com/denyslietnikov/tfiacd/internal/db"
	"github.com/denyslietnikov/tfiacd/internal/ledger"
	"github.com/denyslietnikov/tfiacd/internal/script"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Journal *ledger.Ledger

	// One bundle per configured air conditioner
	Devices []*DeviceService

	// Optional Lua automation
	Script *script.Runtime

	// Health/status HTTP surface
	Health *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database and journal
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Journal = ledger.New(database.DB)

	// Initialize devices
	for _, dc := range cfg.Devices {
		s.Devices = append(s.Devices, NewDeviceService(dc, cfg.Queue, cfg.Poll.Interval, s.Journal))
	}

	// Initialize optional automation runtime
	if cfg.Script != "" {
		devices := make(map[string]script.Device, len(s.Devices))
		for _, d := range s.Devices {
			devices[d.Name] = d
		}
		s.Script = script.New(devices)
		if err := s.Script.LoadScript(cfg.Script); err != nil {
			s.Close()
			return nil, err
		}
		for _, d := range s.Devices {
			name := d.Name
			d.State.Subscribe(func(snap ac.Snapshot) {
				s.Script.NotifyChange(name, snap)
			})
		}
	}

	// Initialize health/status server
	s.Health = NewHealthService(cfg, s.Devices, s.Journal)

	return s, nil
}

// Start starts all services.
func (s *Services) Start(ctx context.Context) error {
	if s.cfg.Retention > 0 {
		s.cleanupJournal()
		go s.runJournalCleanup(ctx)
	}

	for _, d := range s.Devices {
		d.Start(ctx)
		log.Info().Str("device", d.Name).Str("addr", d.Client.Addr()).Msg("Device managed")
	}

	if s.Script != nil {
		go func() {
			if err := s.Script.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Script runtime error")
			}
		}()
	}

	s.Health.Start(ctx)

	return nil
}

// runJournalCleanup prunes expired journal entries periodically.
func (s *Services) runJournalCleanup(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupJournal()
		}
	}
}

func (s *Services) cleanupJournal() {
	removed, err := s.Journal.Cleanup(s.cfg.Retention.Duration())
	if err != nil {
		log.Warn().Err(err).Msg("Journal cleanup failed")
		return
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("Pruned expired journal entries")
	}
}

// Stop releases resources not owned by the context.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Script != nil {
		s.Script.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
