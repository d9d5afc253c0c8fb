// Package tfiac implements the vendor UDP/XML protocol the unit speaks.
// The device listens on UDP 7777 and answers single-datagram requests: a
// SyncStatusReq yields a statusUpdateMsg, a SetMessage (which must carry
// the complete settings) is acknowledged with an echo of the new status.
package tfiac

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/denyslietnikov/tfiacd/internal/ac"
)

// DefaultPort is the UDP port the firmware listens on.
const DefaultPort = 7777

// Config holds connection settings for one unit.
type Config struct {
	Host     string
	Port     int           // 0 = DefaultPort
	Timeout  time.Duration // per round-trip (0 = 5s)
	CacheTTL time.Duration // status cache lifetime for unforced reads (0 = 5s)
}

// Client talks to a single unit. Status reads are cached briefly so
// rapid consumers do not flood the device; a forced read always hits the
// network. Safe for concurrent use.
type Client struct {
	addr    string
	timeout time.Duration
	ttl     time.Duration

	seq atomic.Uint64

	mu        sync.Mutex
	last      ac.Status
	fetchedAt time.Time
}

// NewClient creates a client for the configured unit.
func NewClient(cfg Config) *Client {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 5 * time.Second
	}

	c := &Client{
		addr:    net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port)),
		timeout: timeout,
		ttl:     ttl,
	}
	c.seq.Store(uint64(time.Now().Unix()))
	return c
}

// UpdateState fetches the current device status. Unless force is set, a
// fresh enough cached status is returned without touching the network.
func (c *Client) UpdateState(ctx context.Context, force bool) (ac.Status, error) {
	c.mu.Lock()
	if !force && !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		st := c.last
		c.mu.Unlock()
		return st, nil
	}
	c.mu.Unlock()

	payload, err := encodeMessage(message{
		MsgID: "SyncStatusReq",
		Type:  "Control",
		Seq:   c.seq.Add(1),
		Sync:  &syncStatusReq{},
	})
	if err != nil {
		return ac.Status{}, err
	}

	resp, err := c.roundTrip(ctx, payload)
	if err != nil {
		return ac.Status{}, fmt.Errorf("status request failed: %w", err)
	}
	if resp.Status == nil {
		return ac.Status{}, fmt.Errorf("unexpected reply %q to status request", resp.MsgID)
	}

	st := statusToAPI(*resp.Status)
	c.storeStatus(st)
	return st, nil
}

// SetDeviceOptions sends a settings change. The protocol requires the
// complete settings in every SetMessage, so the partial options are
// overlaid on the last known status (fetched first when none is cached).
func (c *Client) SetDeviceOptions(ctx context.Context, opts ac.Options) error {
	base := c.cachedStatus()
	if base.IsEmpty() {
		st, err := c.UpdateState(ctx, false)
		if err != nil {
			log.Debug().Err(err).Str("device", c.addr).
				Msg("No status to base SetMessage on, using factory defaults")
		} else {
			base = st
		}
	}

	body := buildSetMessage(base, opts)
	payload, err := encodeMessage(message{
		MsgID: "SetMessage",
		Type:  "Control",
		Seq:   c.seq.Add(1),
		Set:   &body,
	})
	if err != nil {
		return err
	}

	resp, err := c.roundTrip(ctx, payload)
	if err != nil {
		return fmt.Errorf("set request failed: %w", err)
	}

	// Most firmwares acknowledge a set with the resulting status; stash
	// it so the next unforced read and the next set base are current.
	if resp.Status != nil {
		c.storeStatus(statusToAPI(*resp.Status))
	}
	return nil
}

// Invalidate drops the cached status, forcing the next read to hit the
// network.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.last = ac.Status{}
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// Addr returns the host:port the client targets.
func (c *Client) Addr() string { return c.addr }

func (c *Client) cachedStatus() ac.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Client) storeStatus(st ac.Status) {
	c.mu.Lock()
	c.last = st
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

// roundTrip sends one datagram and waits for one reply, bounded by the
// configured timeout and the context deadline.
func (c *Client) roundTrip(ctx context.Context, payload []byte) (*message, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to send datagram: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("no reply from %s: %w", c.addr, err)
	}

	return decodeMessage(buf[:n])
}
