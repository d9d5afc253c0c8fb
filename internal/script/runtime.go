// Package script embeds a Lua automation runtime. A user script can read
// device state, enqueue settings changes, and register callbacks that run
// whenever a device's state changes.
package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

// ErrRuntimeClosed is returned when work is posted after shutdown.
var ErrRuntimeClosed = fmt.Errorf("script runtime closed")

// Device is the surface a script gets per configured unit.
type Device interface {
	Snapshot() ac.Snapshot
	// Set enqueues a settings change; the channel settles like any other
	// queued command.
	Set(opts ac.Options) <-chan error
}

// Runtime owns a single Lua VM. The VM is single-threaded: all execution
// goes through the work queue processed by Run, so state-change callbacks
// never re-enter the interpreter concurrently.
type Runtime struct {
	L       *lua.LState
	devices map[string]Device

	// Registered ac.on_change callbacks, touched only on the VM
	// goroutine (or before Run starts).
	onChange []*lua.LFunction

	workQueue chan func()

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a runtime exposing the given devices, keyed by name.
func New(devices map[string]Device) *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		devices:   devices,
		workQueue: make(chan func(), 100),
		closing:   make(chan struct{}),
	}

	r.L.PreloadModule("log", logLoader)
	r.L.PreloadModule("ac", r.acLoader)

	return r
}

// LoadScript executes the script file. Must be called before Run; the
// script's top level typically registers on_change handlers.
func (r *Runtime) LoadScript(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load script %s: %w", path, err)
	}
	log.Info().Str("script", path).Msg("Automation script loaded")
	return nil
}

// NotifyChange posts a state-change callback invocation. Non-blocking:
// work is dropped with a warning if the queue is full or the runtime is
// closing.
func (r *Runtime) NotifyChange(device string, snap ac.Snapshot) {
	work := func() {
		tbl := snapshotToTable(r.L, snap)
		for _, fn := range r.onChange {
			if err := r.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true},
				lua.LString(device), tbl); err != nil {
				log.Error().Err(err).Str("device", device).Msg("Script on_change handler failed")
			}
		}
	}

	select {
	case <-r.closing:
	case r.workQueue <- work:
	default:
		log.Warn().Str("device", device).Msg("Script work queue full, dropping state change")
	}
}

// Run processes queued work until the context is cancelled, then closes
// the VM.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.L.Close()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case work := <-r.workQueue:
			work()
		}
	}
}

// Close stops accepting new work.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
}
