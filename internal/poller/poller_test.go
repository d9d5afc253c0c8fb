package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

type fakeSource struct {
	mu     sync.Mutex
	calls  int
	status ac.Status
	err    error
}

func (f *fakeSource) UpdateState(_ context.Context, _ bool) (ac.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.status, f.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func strPtr(s string) *string { return &s }

func startPoller(t *testing.T, src StatusSource, state *ac.State, interval time.Duration) *Poller {
	t.Helper()
	p := New(src, state, interval)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("poller did not stop")
		}
	})
	return p
}

func TestInitialPollFeedsState(t *testing.T) {
	src := &fakeSource{status: ac.Status{
		IsOn:          strPtr("on"),
		OperationMode: strPtr("heat"),
	}}
	state := ac.NewState("ac", 0)

	startPoller(t, src, state, time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for state.Power() != ac.PowerOn {
		if time.Now().After(deadline) {
			t.Fatal("initial poll never reached the state model")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := state.OperationMode(); got != ac.ModeHeat {
		t.Errorf("mode = %q, want heat", got)
	}
	if got := src.callCount(); got != 1 {
		t.Errorf("source polled %d times, want 1 (interval far away)", got)
	}
}

func TestPokeTriggersImmediatePoll(t *testing.T) {
	src := &fakeSource{}
	state := ac.NewState("ac", 0)

	p := startPoller(t, src, state, time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for src.callCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("initial poll missing")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Poke()
	deadline = time.Now().Add(2 * time.Second)
	for src.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("poke did not trigger a poll")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTickerPollsOnInterval(t *testing.T) {
	src := &fakeSource{}
	state := ac.NewState("ac", 0)

	startPoller(t, src, state, 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for src.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d polls, want ticker-driven repeats", src.callCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPollErrorLeavesStateUntouched(t *testing.T) {
	src := &fakeSource{err: errors.New("timeout")}
	state := ac.NewState("ac", 0)
	state.SetPower(ac.PowerOn)

	startPoller(t, src, state, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for src.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("poller stopped polling after an error")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := state.Power(); got != ac.PowerOn {
		t.Errorf("power = %q after failed polls, want on", got)
	}
}
