package script

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

type fakeDevice struct {
	mu   sync.Mutex
	snap ac.Snapshot
	sets []ac.Options
}

func (f *fakeDevice) Snapshot() ac.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeDevice) Set(opts ac.Options) <-chan error {
	f.mu.Lock()
	f.sets = append(f.sets, opts)
	f.mu.Unlock()
	done := make(chan error, 1)
	done <- nil
	return done
}

func (f *fakeDevice) lastSet() (ac.Options, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sets) == 0 {
		return ac.Options{}, false
	}
	return f.sets[len(f.sets)-1], true
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lua")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestRuntime(t *testing.T, devices map[string]Device) *Runtime {
	t.Helper()
	r := New(devices)
	t.Cleanup(func() { r.L.Close() })
	return r
}

func TestScriptReadsStatus(t *testing.T) {
	outdoor := 10.0
	dev := &fakeDevice{snap: ac.Snapshot{
		Power:       ac.PowerOn,
		Mode:        ac.ModeCool,
		TargetTemp:  21,
		CurrentTemp: 24,
		OutdoorTemp: &outdoor,
		FanSpeed:    ac.FanHigh,
		Swing:       ac.SwingVertical,
		Turbo:       ac.PowerOff,
		Sleep:       ac.SleepOn,
	}}

	r := newTestRuntime(t, map[string]Device{"living-room": dev})
	err := r.LoadScript(writeScript(t, `
		local ac = require("ac")
		local st = ac.status("living-room")
		assert(st.power == true, "power")
		assert(st.mode == "cool", "mode")
		assert(st.target_temp == 21, "target")
		assert(st.current_temp == 24, "current")
		assert(st.outdoor_temp == 10, "outdoor")
		assert(st.fan == "High", "fan")
		assert(st.swing == "Vertical", "swing")
		assert(st.turbo == false, "turbo")
		assert(st.sleep == true, "sleep")
	`))
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func TestScriptStatusUnknownDevice(t *testing.T) {
	r := newTestRuntime(t, map[string]Device{})
	err := r.LoadScript(writeScript(t, `
		local ac = require("ac")
		local st, err = ac.status("nope")
		assert(st == nil, "status should be nil")
		assert(err ~= nil, "error expected")
	`))
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func TestScriptListsDevices(t *testing.T) {
	r := newTestRuntime(t, map[string]Device{
		"a": &fakeDevice{},
		"b": &fakeDevice{},
	})
	err := r.LoadScript(writeScript(t, `
		local ac = require("ac")
		local names = ac.devices()
		assert(#names == 2, "want two devices")
	`))
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func TestScriptSetEnqueuesOptions(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRuntime(t, map[string]Device{"ac": dev})
	err := r.LoadScript(writeScript(t, `
		local ac = require("ac")
		local ok = ac.set("ac", { power = true, mode = "heat", target_temp = 23.5, turbo = false })
		assert(ok == true, "set should succeed")
	`))
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}

	opts, ok := dev.lastSet()
	if !ok {
		t.Fatal("no Set call recorded")
	}
	if opts.Power == nil || *opts.Power != ac.PowerOn {
		t.Errorf("power = %v, want on", opts.Power)
	}
	if opts.Mode == nil || *opts.Mode != ac.ModeHeat {
		t.Errorf("mode = %v, want heat", opts.Mode)
	}
	if opts.TargetTemp == nil || *opts.TargetTemp != 23.5 {
		t.Errorf("target = %v, want 23.5", opts.TargetTemp)
	}
	if opts.Turbo == nil || *opts.Turbo != ac.PowerOff {
		t.Errorf("turbo = %v, want off", opts.Turbo)
	}
}

func TestScriptSetRejectsEmptyTable(t *testing.T) {
	dev := &fakeDevice{}
	r := newTestRuntime(t, map[string]Device{"ac": dev})
	err := r.LoadScript(writeScript(t, `
		local ac = require("ac")
		local ok, err = ac.set("ac", { unknown_key = 1 })
		assert(ok == false, "set should fail")
		assert(err ~= nil, "error expected")
	`))
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	if _, ok := dev.lastSet(); ok {
		t.Error("Set should not have been called")
	}
}

func TestOnChangeCallbackRuns(t *testing.T) {
	dev := &fakeDevice{}
	r := New(map[string]Device{"ac": dev})

	err := r.LoadScript(writeScript(t, `
		local ac = require("ac")
		seen = nil
		ac.on_change(function(device, st)
			seen = device .. "/" .. st.mode
			if st.power then
				ac.set("ac", { eco = true })
			end
		end)
	`))
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	r.NotifyChange("ac", ac.Snapshot{Power: ac.PowerOn, Mode: ac.ModeCool})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := dev.lastSet(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("on_change handler never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	opts, _ := dev.lastSet()
	if opts.Eco == nil || *opts.Eco != ac.PowerOn {
		t.Errorf("eco = %v, want on (set from handler)", opts.Eco)
	}
}

func TestNotifyAfterCloseIsDropped(t *testing.T) {
	r := newTestRuntime(t, map[string]Device{})
	r.Close()
	// Must not block or panic.
	r.NotifyChange("ac", ac.Snapshot{})
}
