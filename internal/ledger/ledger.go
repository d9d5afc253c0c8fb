// Package ledger provides an append-only journal of command outcomes and
// state changes, for auditing and the history endpoint.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CommandEvent is one journaled command lifecycle transition.
type CommandEvent struct {
	ID        int64           `json:"id"`
	Device    string          `json:"device"`
	CommandID string          `json:"command_id"`
	EventType string          `json:"event_type"`
	Attempt   int             `json:"attempt"`
	Options   json.RawMessage `json:"options,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StateChange is one journaled state snapshot.
type StateChange struct {
	ID        int64           `json:"id"`
	Device    string          `json:"device"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Timestamp time.Time       `json:"timestamp"`
}

// Ledger provides append-only journaling
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// AppendCommandEvent journals a command lifecycle transition. options may
// be nil; errMsg is empty for successful events.
func (l *Ledger) AppendCommandEvent(device, commandID, eventType string, attempt int, options any, errMsg string) error {
	var optsJSON []byte
	var err error

	if options != nil {
		optsJSON, err = json.Marshal(options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
	}

	now := time.Now().UTC().Unix()

	_, err = l.db.Exec(`
		INSERT INTO command_events (device, command_id, event_type, attempt, options, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, device, commandID, eventType, attempt, string(optsJSON), errMsg, now)

	return err
}

// AppendStateChange journals a full state snapshot after a net change.
func (l *Ledger) AppendStateChange(device string, snapshot any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	now := time.Now().UTC().Unix()

	_, err = l.db.Exec(`
		INSERT INTO state_changes (device, snapshot, timestamp)
		VALUES (?, ?, ?)
	`, device, string(data), now)

	return err
}

// RecentStateChanges returns the newest state changes for a device,
// newest first.
func (l *Ledger) RecentStateChanges(device string, limit int) ([]StateChange, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.Query(`
		SELECT id, device, snapshot, timestamp
		FROM state_changes
		WHERE device = ?
		ORDER BY id DESC
		LIMIT ?
	`, device, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []StateChange
	for rows.Next() {
		var c StateChange
		var snapshot string
		var ts int64

		if err := rows.Scan(&c.ID, &c.Device, &snapshot, &ts); err != nil {
			return nil, err
		}
		c.Snapshot = json.RawMessage(snapshot)
		c.Timestamp = time.Unix(ts, 0).UTC()
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

// RecentCommandEvents returns the newest command events for a device,
// newest first.
func (l *Ledger) RecentCommandEvents(device string, limit int) ([]CommandEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.Query(`
		SELECT id, device, command_id, event_type, attempt, options, error, timestamp
		FROM command_events
		WHERE device = ?
		ORDER BY id DESC
		LIMIT ?
	`, device, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CommandEvent
	for rows.Next() {
		var e CommandEvent
		var options, errMsg string
		var ts int64

		if err := rows.Scan(&e.ID, &e.Device, &e.CommandID, &e.EventType, &e.Attempt, &options, &errMsg, &ts); err != nil {
			return nil, err
		}
		if options != "" {
			e.Options = json.RawMessage(options)
		}
		e.Error = errMsg
		e.Timestamp = time.Unix(ts, 0).UTC()
		events = append(events, e)
	}

	return events, rows.Err()
}

// Cleanup removes journal entries older than the retention period.
func (l *Ledger) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Unix()

	var total int64
	for _, table := range []string{"command_events", "state_changes"} {
		res, err := l.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, table), cutoff)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
