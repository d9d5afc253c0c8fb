// Package poller keeps the state model in sync with the device by
// reading its status on a fixed interval.
package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

// StatusSource is what the poller needs from the transport layer.
type StatusSource interface {
	UpdateState(ctx context.Context, force bool) (ac.Status, error)
}

// Poller periodically feeds device reports into the state model.
type Poller struct {
	source   StatusSource
	state    *ac.State
	interval time.Duration
	trigger  chan struct{}
}

// New creates a poller (interval 0 = 30s default).
func New(source StatusSource, state *ac.State, interval time.Duration) *Poller {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		source:   source,
		state:    state,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Poke requests an immediate poll outside the regular interval.
func (p *Poller) Poke() {
	select {
	case p.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Run polls until the context is cancelled. An initial poll runs right
// away so the model does not sit on factory defaults until the first
// tick.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().
		Str("device", p.state.Name()).
		Dur("interval", p.interval).
		Msg("Poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("device", p.state.Name()).Msg("Poller stopping")
			return nil
		case <-p.trigger:
			p.poll(ctx)
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	st, err := p.source.UpdateState(ctx, false)
	if err != nil {
		log.Warn().Err(err).Str("device", p.state.Name()).Msg("Status poll failed")
		return
	}
	if p.state.UpdateFromDevice(st) {
		log.Debug().Str("device", p.state.Name()).Msg("Device report changed state")
	}
}
