// Package command serializes writes to the air conditioner. All outbound
// "change settings" intents flow through a single FIFO queue that merges
// rapid successive intents into one send, throttles the device, retries
// transient failures, and reconciles the optimistic local state with a
// delayed re-read of the device after every successful write.
package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

// DeviceAPI is what the queue needs from the transport layer.
type DeviceAPI interface {
	// SetDeviceOptions sends a partial settings change and returns once
	// the device acknowledged it.
	SetDeviceOptions(ctx context.Context, opts ac.Options) error
	// UpdateState fetches current device status. force bypasses any
	// internal caching.
	UpdateState(ctx context.Context, force bool) (ac.Status, error)
}

// Config tunes the queue. Zero values select the defaults.
type Config struct {
	MergeWindow  time.Duration // intents younger than this are merged (default 500ms)
	MinInterval  time.Duration // global floor between sends (default 1s)
	RetryBackoff time.Duration // wait between attempts (default 1s)
	MaxAttempts  int           // send attempts per command (default 3)
	ResyncDelay  time.Duration // delay before the post-command re-read (default 2s)
}

func (c Config) withDefaults() Config {
	if c.MergeWindow == 0 {
		c.MergeWindow = 500 * time.Millisecond
	}
	if c.MinInterval == 0 {
		c.MinInterval = time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.ResyncDelay == 0 {
		c.ResyncDelay = 2 * time.Second
	}
	return c
}

type pendingCommand struct {
	id        uuid.UUID
	opts      ac.Options
	createdAt time.Time
	attempt   int
	waiters   []chan error
}

// Queue is the per-device command pipeline. Create with New, start the
// dispatcher with Run, submit intents with Enqueue.
type Queue struct {
	api   DeviceAPI
	state *ac.State
	cfg   Config

	mu        sync.Mutex
	pending   []*pendingCommand
	listeners []func(Event)

	trigger chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
}

// New creates a queue bound to one device and its state model.
func New(api DeviceAPI, state *ac.State, cfg Config) *Queue {
	return &Queue{
		api:     api,
		state:   state,
		cfg:     cfg.withDefaults(),
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Subscribe registers a listener for command lifecycle events.
func (q *Queue) Subscribe(fn func(Event)) {
	q.mu.Lock()
	q.listeners = append(q.listeners, fn)
	q.mu.Unlock()
}

// Enqueue submits a settings change. It never blocks; the returned
// channel receives nil once the device accepted the (possibly merged)
// command, or the final error after retries are exhausted. If the
// youngest queued command is still inside the merge window the intent is
// folded into it, later fields winning, and both callers settle together.
func (q *Queue) Enqueue(opts ac.Options) <-chan error {
	done := make(chan error, 1)

	q.mu.Lock()
	if n := len(q.pending); n > 0 {
		last := q.pending[n-1]
		if q.now().Sub(last.createdAt) < q.cfg.MergeWindow {
			last.opts.Merge(opts)
			last.waiters = append(last.waiters, done)
			q.mu.Unlock()
			log.Debug().Str("command", last.id.String()).Msg("Merged intent into queued command")
			return done
		}
	}
	cmd := &pendingCommand{
		id:        uuid.New(),
		opts:      opts,
		createdAt: q.now(),
		waiters:   []chan error{done},
	}
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()

	q.wake()
	return done
}

// Run drives the dispatch loop until the context is cancelled. Commands
// are dispatched strictly in enqueue order; each head command first
// matures for the merge window, then waits for the global send throttle.
// Pending commands are settled with the context error on shutdown.
func (q *Queue) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(q.cfg.MinInterval), 1)

	for {
		head := q.peek()
		if head == nil {
			select {
			case <-ctx.Done():
				q.drain(ctx.Err())
				q.wg.Wait()
				return nil
			case <-q.trigger:
				continue
			}
		}

		// Let the head absorb temporally adjacent intents before it
		// becomes undispatchable by merge.
		if wait := head.createdAt.Add(q.cfg.MergeWindow).Sub(q.now()); wait > 0 {
			if !q.sleep(ctx, wait) {
				q.drain(ctx.Err())
				q.wg.Wait()
				return nil
			}
			continue
		}

		cmd := q.pop()
		if cmd == nil {
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			settle(cmd, err)
			q.drain(ctx.Err())
			q.wg.Wait()
			return nil
		}

		q.dispatch(ctx, cmd)
	}
}

// dispatch sends one command, retrying on failure with a fixed backoff
// until the attempt budget runs out. A successful send applies the
// options optimistically to the local state and schedules the delayed
// re-read; the command settles before that re-read runs.
func (q *Queue) dispatch(ctx context.Context, cmd *pendingCommand) {
	for {
		cmd.attempt++
		err := q.api.SetDeviceOptions(ctx, cmd.opts)
		if err == nil {
			q.state.Apply(cmd.opts)
			q.emit(Event{Type: EventExecuted, CommandID: cmd.id, Options: cmd.opts, Attempt: cmd.attempt})
			settle(cmd, nil)
			q.scheduleResync(ctx)
			return
		}

		if cmd.attempt >= q.cfg.MaxAttempts {
			log.Warn().
				Str("command", cmd.id.String()).
				Int("attempts", cmd.attempt).
				Err(err).
				Msg("Dropping command, retries exhausted")
			q.emit(Event{Type: EventMaxRetriesReached, CommandID: cmd.id, Options: cmd.opts, Attempt: cmd.attempt, Err: err})
			settle(cmd, fmt.Errorf("command failed after %d attempts: %w", cmd.attempt, err))
			return
		}

		q.emit(Event{Type: EventRetry, CommandID: cmd.id, Options: cmd.opts, Attempt: cmd.attempt, Err: err})
		if !q.sleep(ctx, q.cfg.RetryBackoff) {
			settle(cmd, ctx.Err())
			return
		}
	}
}

// scheduleResync re-reads the device after a short delay and feeds the
// result into the state model, reconciling the optimistic update with
// ground truth.
func (q *Queue) scheduleResync(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if !q.sleep(ctx, q.cfg.ResyncDelay) {
			return
		}
		st, err := q.api.UpdateState(ctx, true)
		if err != nil {
			log.Warn().Err(err).Msg("Post-command state refresh failed")
			return
		}
		q.state.UpdateFromDevice(st)
	}()
}

func (q *Queue) peek() *pendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0]
}

func (q *Queue) pop() *pendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	cmd := q.pending[0]
	q.pending = q.pending[1:]
	return cmd
}

// drain settles everything still queued, so no waiter is left hanging
// after shutdown.
func (q *Queue) drain(err error) {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, cmd := range pending {
		settle(cmd, err)
	}
}

func (q *Queue) wake() {
	select {
	case q.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func (q *Queue) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (q *Queue) emit(ev Event) {
	q.mu.Lock()
	listeners := make([]func(Event), len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func settle(cmd *pendingCommand, err error) {
	for _, w := range cmd.waiters {
		w <- err
	}
}
