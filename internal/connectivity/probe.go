package connectivity

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/m4mayz/MauNgekos-sub000/internal/log"
)

// ProbeConfig configures a ProbeMonitor.
type ProbeConfig struct {
	// Address is dialed over TCP, e.g. "8.8.8.8:53" or the Firestore host.
	Address string
	Timeout time.Duration
	// PollInterval controls how often transitions are detected.
	PollInterval time.Duration
}

// DialFunc opens a connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ProbeMonitor decides reachability by dialing a TCP address. IsOnline
// always dials; the polling loop only drives notifications.
type ProbeMonitor struct {
	cfg    ProbeConfig
	dial   DialFunc
	logger *slog.Logger
	b      broadcaster

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Monitor = (*ProbeMonitor)(nil)

// NewProbeMonitor creates a monitor. A nil dial uses net.Dialer.
func NewProbeMonitor(cfg ProbeConfig, dial DialFunc, logger *slog.Logger) *ProbeMonitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}
	return &ProbeMonitor{cfg: cfg, dial: dial, logger: log.OrDefault(logger)}
}

// IsOnline implements Monitor. It blocks for at most the probe timeout.
func (m *ProbeMonitor) IsOnline() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()

	conn, err := m.dial(ctx, "tcp", m.cfg.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Subscribe implements Monitor. Notifications flow only while Start is active.
func (m *ProbeMonitor) Subscribe(fn func(online bool)) func() {
	return m.b.subscribe(fn)
}

// Start begins polling. Calling Start while running is a no-op.
func (m *ProbeMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.poll(ctx, m.done)
}

// Stop ends polling and waits for the loop to exit. Safe to call when not running.
func (m *ProbeMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *ProbeMonitor) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	last := m.IsOnline()
	m.logger.Debug("connectivity probe started", "address", m.cfg.Address, "online", last)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := m.IsOnline()
			if online == last {
				continue
			}
			last = online
			m.logger.Info("connectivity changed", "online", online)
			m.b.publish(online)
		}
	}
}
