// Package connectivity tracks whether the remote authority is reachable.
// Two signals are combined: a passive link up/down input (authoritative on
// down, only a hint on up) and an active bounded-timeout health probe. The
// verified state drives the sync engine's automatic trigger.
package connectivity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/safetrack/fieldsign/internal/logging"
)

const (
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Prober is the reachability check against the remote authority.
type Prober interface {
	Health(ctx context.Context) error
}

// Options tunes the monitor.
type Options struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	Logger        logging.Logger
}

// Monitor combines the passive link signal with periodic active probes and
// exposes a one-shot reconnected transition.
type Monitor struct {
	prober   Prober
	logger   logging.Logger
	interval time.Duration
	timeout  time.Duration

	// group coalesces concurrent probe triggers into one in-flight request.
	group singleflight.Group

	mu          sync.Mutex
	linkUp      bool
	connected   bool
	lastCheck   time.Time
	checking    bool
	wasOffline  bool
	everOffline bool

	reconnected chan struct{}
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewMonitor builds a Monitor. The link is assumed up until a passive down
// event says otherwise; reachability starts unverified until the first probe.
func NewMonitor(p Prober, opts Options) *Monitor {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	return &Monitor{
		prober:      p,
		logger:      opts.Logger,
		interval:    opts.ProbeInterval,
		timeout:     opts.ProbeTimeout,
		linkUp:      true,
		reconnected: make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
}

// Start launches the periodic probe loop. It probes once immediately so the
// connected state settles soon after startup.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.Check(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Check(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the probe loop and waits for it.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// Check runs one active probe and returns the verified reachability. If a
// probe is already in flight the call joins it instead of starting a second
// concurrent request.
func (m *Monitor) Check(ctx context.Context) bool {
	v, _, _ := m.group.Do("probe", func() (any, error) {
		m.mu.Lock()
		m.checking = true
		m.mu.Unlock()

		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := m.prober.Health(pctx)
		cancel()

		m.mu.Lock()
		defer m.mu.Unlock()
		m.checking = false
		m.lastCheck = time.Now()
		m.setConnectedLocked(err == nil)
		return m.connected, nil
	})
	ok, _ := v.(bool)
	return ok
}

// SetLinkUp feeds the passive OS/runtime network signal. A down event is
// authoritative and marks the remote unreachable immediately; an up event is
// only a hint and triggers a verification probe.
func (m *Monitor) SetLinkUp(up bool) {
	m.mu.Lock()
	m.linkUp = up
	if !up {
		m.setConnectedLocked(false)
	}
	m.mu.Unlock()

	if up {
		go m.Check(context.Background())
	}
}

// setConnectedLocked updates verified reachability and arms the one-shot
// reconnect signal on an offline-to-online transition. The first successful
// probe after startup does not count as a reconnect.
func (m *Monitor) setConnectedLocked(ok bool) {
	if ok && !m.connected && m.everOffline {
		m.wasOffline = true
		select {
		case m.reconnected <- struct{}{}:
		default:
		}
		if m.logger != nil {
			m.logger.Info(context.Background(), "connectivity restored")
		}
	}
	if !ok {
		if m.connected && m.logger != nil {
			m.logger.Warn(context.Background(), "connectivity lost")
		}
		m.everOffline = true
	}
	m.connected = ok
}

// IsOnline reports the passive link state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkUp
}

// IsConnected reports verified reachability of the remote authority.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// LastCheck returns when the last probe finished.
func (m *Monitor) LastCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}

// Checking reports whether a probe is currently in flight.
func (m *Monitor) Checking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checking
}

// WasOffline reports the pending one-shot reconnect transition.
func (m *Monitor) WasOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wasOffline
}

// ClearWasOffline consumes the reconnect transition. The next real reconnect
// re-arms it.
func (m *Monitor) ClearWasOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wasOffline = false
}

// Reconnected exposes the reconnect transition as a channel for the sync
// engine's automatic trigger. The channel has capacity one, so a flapping
// connection coalesces into a single pending signal.
func (m *Monitor) Reconnected() <-chan struct{} {
	return m.reconnected
}
