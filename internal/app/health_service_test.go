package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/denyslietnikov/tfiacd/internal/ac"
	"github.com/denyslietnikov/tfiacd/internal/config"
	"github.com/denyslietnikov/tfiacd/internal/db"
	"github.com/denyslietnikov/tfiacd/internal/ledger"
)

func testHealthService(t *testing.T) (*HealthService, *DeviceService) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	journal := ledger.New(database.DB)

	cfg := &config.Config{}
	dev := NewDeviceService(config.DeviceConfig{
		Name: "living-room",
		Host: "127.0.0.1",
	}, config.QueueConfig{}, 0, journal)

	return NewHealthService(cfg, []*DeviceService{dev}, journal), dev
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testHealthService(t)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, dev := testHealthService(t)
	dev.State.SetPower(ac.PowerOn)
	dev.State.SetOperationMode(ac.ModeCool)

	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]ac.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	st, ok := body["living-room"]
	if !ok {
		t.Fatalf("device missing from status map: %v", body)
	}
	if st.IsOn == nil || *st.IsOn != "on" {
		t.Errorf("is_on = %v, want on", st.IsOn)
	}
	if st.OperationMode == nil || *st.OperationMode != "cool" {
		t.Errorf("operation_mode = %v, want cool", st.OperationMode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	s, dev := testHealthService(t)
	// The journal subscription records this change.
	dev.State.SetPower(ac.PowerOn)

	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/history?device=living-room")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		StateChanges  []ledger.StateChange  `json:"state_changes"`
		CommandEvents []ledger.CommandEvent `json:"command_events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.StateChanges) != 1 {
		t.Errorf("state_changes = %d, want 1", len(body.StateChanges))
	}
}

func TestHistoryRequiresDevice(t *testing.T) {
	s, _ := testHealthService(t)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/history")
	if err != nil {
		t.Fatalf("GET /history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
