package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/denyslietnikov/tfiacd/internal/ac"
	"github.com/denyslietnikov/tfiacd/internal/command"
	"github.com/denyslietnikov/tfiacd/internal/config"
	"github.com/denyslietnikov/tfiacd/internal/ledger"
	"github.com/denyslietnikov/tfiacd/internal/poller"
	"github.com/denyslietnikov/tfiacd/internal/tfiac"
)

// DeviceService bundles everything belonging to one air conditioner:
// protocol client, state model, command queue and poller.
type DeviceService struct {
	Name   string
	Client *tfiac.Client
	State  *ac.State
	Queue  *command.Queue
	Poller *poller.Poller
}

// NewDeviceService wires up one device from its config entry and hooks
// the journal into its state changes and command lifecycle events.
func NewDeviceService(dc config.DeviceConfig, qc config.QueueConfig, pollInterval config.Duration, journal *ledger.Ledger) *DeviceService {
	client := tfiac.NewClient(tfiac.Config{
		Host:     dc.Host,
		Port:     dc.Port,
		Timeout:  dc.Timeout.Duration(),
		CacheTTL: dc.CacheTTL.Duration(),
	})

	state := ac.NewState(dc.Name, 0)

	queue := command.New(client, state, command.Config{
		MergeWindow:  qc.MergeWindow.Duration(),
		MinInterval:  qc.MinInterval.Duration(),
		RetryBackoff: qc.RetryBackoff.Duration(),
		MaxAttempts:  qc.MaxAttempts,
		ResyncDelay:  qc.ResyncDelay.Duration(),
	})

	d := &DeviceService{
		Name:   dc.Name,
		Client: client,
		State:  state,
		Queue:  queue,
		Poller: poller.New(client, state, pollInterval.Duration()),
	}

	if journal != nil {
		state.Subscribe(func(snap ac.Snapshot) {
			if err := journal.AppendStateChange(dc.Name, snap); err != nil {
				log.Warn().Err(err).Str("device", dc.Name).Msg("Failed to journal state change")
			}
		})
		queue.Subscribe(func(ev command.Event) {
			errMsg := ""
			if ev.Err != nil {
				errMsg = ev.Err.Error()
			}
			if err := journal.AppendCommandEvent(dc.Name, ev.CommandID.String(), string(ev.Type), ev.Attempt, ev.Options, errMsg); err != nil {
				log.Warn().Err(err).Str("device", dc.Name).Msg("Failed to journal command event")
			}
		})
	}

	return d
}

// Start launches the device's background loops.
func (d *DeviceService) Start(ctx context.Context) {
	go func() {
		if err := d.Queue.Run(ctx); err != nil {
			log.Error().Err(err).Str("device", d.Name).Msg("Command queue error")
		}
	}()
	go func() {
		if err := d.Poller.Run(ctx); err != nil {
			log.Error().Err(err).Str("device", d.Name).Msg("Poller error")
		}
	}()
}

// Snapshot implements script.Device.
func (d *DeviceService) Snapshot() ac.Snapshot { return d.State.Snapshot() }

// Set implements script.Device.
func (d *DeviceService) Set(opts ac.Options) <-chan error { return d.Queue.Enqueue(opts) }
