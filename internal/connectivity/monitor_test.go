package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitch(t *testing.T) {
	s := NewSwitch(false)
	assert.False(t, s.IsOnline())

	var mu sync.Mutex
	var events []bool
	unsubscribe := s.Subscribe(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, online)
	})
	assert.Equal(t, 1, s.Subscribers())

	s.Set(true)
	s.Set(true)
	assert.True(t, s.IsOnline())

	unsubscribe()
	unsubscribe()
	s.Set(false)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, true}, events)
	assert.Equal(t, 0, s.Subscribers())
}

// fakeDialer succeeds while up is true.
type fakeDialer struct {
	up    atomic.Bool
	dials atomic.Int32
}

func (f *fakeDialer) dial(ctx context.Context, network, address string) (net.Conn, error) {
	f.dials.Add(1)
	if !f.up.Load() {
		return nil, errors.New("network unreachable")
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func TestProbeMonitor_IsOnline(t *testing.T) {
	d := &fakeDialer{}
	m := NewProbeMonitor(ProbeConfig{Address: "example:53"}, d.dial, nil)

	assert.False(t, m.IsOnline())
	d.up.Store(true)
	assert.True(t, m.IsOnline())
	assert.Equal(t, int32(2), d.dials.Load(), "every check dials")
}

func TestProbeMonitor_Timeout(t *testing.T) {
	slow := func(ctx context.Context, network, address string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := NewProbeMonitor(ProbeConfig{Address: "x:1", Timeout: 20 * time.Millisecond}, slow, nil)

	start := time.Now()
	assert.False(t, m.IsOnline())
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeMonitor_Notifications(t *testing.T) {
	d := &fakeDialer{}
	m := NewProbeMonitor(ProbeConfig{Address: "x:1", PollInterval: 5 * time.Millisecond}, d.dial, nil)

	events := make(chan bool, 4)
	defer m.Subscribe(func(online bool) { events <- online })()

	m.Start(context.Background())
	m.Start(context.Background())
	defer m.Stop()

	time.Sleep(20 * time.Millisecond)
	d.up.Store(true)

	select {
	case online := <-events:
		assert.True(t, online)
	case <-time.After(2 * time.Second):
		t.Fatal("no transition event")
	}

	d.up.Store(false)
	select {
	case online := <-events:
		assert.False(t, online)
	case <-time.After(2 * time.Second):
		t.Fatal("no transition event")
	}
}

func TestProbeMonitor_StopIdempotent(t *testing.T) {
	d := &fakeDialer{}
	m := NewProbeMonitor(ProbeConfig{Address: "x:1", PollInterval: time.Millisecond}, d.dial, nil)

	m.Stop()
	m.Start(context.Background())
	m.Stop()
	m.Stop()

	// Restart after stop works.
	m.Start(context.Background())
	m.Stop()
	require.True(t, d.dials.Load() >= 1)
}
