package guide

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidOptions is returned when required manager options are missing.
var ErrInvalidOptions = errors.New("guide: invalid manager options")

// defaultRefreshInterval is how often guide data is refreshed when the
// config does not say otherwise.
const defaultRefreshInterval = 15 * time.Minute

// RefreshFunc pulls fresh guide data (channels, groups, timers) from the
// fleet. Invoked periodically by the manager; bounded by ctx.
type RefreshFunc func(ctx context.Context) error

// Logger is the logging surface the manager needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Manager.
type Options struct {
	// Refresh is the fleet-wide guide data pull. Required.
	Refresh RefreshFunc

	// Interval between background refreshes. Defaults to 15m.
	Interval time.Duration

	Logger Logger
}

// Manager owns the guide data subsystem: the periodic background refresh and
// the per-client data sessions (an in-flight refresh attributed to one
// client).
//
// The registry pauses the manager while fleet membership is in flux so a
// refresh never observes clients mid-create or mid-destroy. Pause is
// re-entrant: the manager stays paused until every Pause has been matched by
// a Resume.
type Manager struct {
	refresh  RefreshFunc
	interval time.Duration
	log      Logger

	mu       sync.Mutex
	pauses   int
	sessions map[int]context.CancelFunc

	// refreshMu is read-held for the duration of one refresh; Pause takes
	// the write side, so it returns only once no refresh is in flight.
	refreshMu sync.RWMutex

	quit     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewManager creates a guide manager. Call Start to begin background refresh.
func NewManager(opts Options) (*Manager, error) {
	if opts.Refresh == nil {
		return nil, fmt.Errorf("%w: refresh func is required", ErrInvalidOptions)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Manager{
		refresh:  opts.Refresh,
		interval: interval,
		log:      logger,
		sessions: make(map[int]context.CancelFunc),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop halts the background refresh and cancels every active session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		started := m.started
		for id, cancel := range m.sessions {
			cancel()
			delete(m.sessions, id)
		}
		m.mu.Unlock()

		close(m.quit)
		if started {
			<-m.done
		}
	})
}

// Pause suspends background refresh and blocks until any refresh already in
// flight has drained: once Pause returns, no refresh is executing and none
// will start. Safe to call when already paused; each Pause must be matched
// by a Resume.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.pauses++
	m.mu.Unlock()

	// Drain: a refresh holds the read side for its whole run, so acquiring
	// the write side cannot complete while one is executing.
	m.refreshMu.Lock()
	m.refreshMu.Unlock() //nolint:staticcheck // Lock/Unlock pair is the drain barrier

	m.log.Debug("guide refresh paused")
}

// Resume lifts one Pause. Refresh restarts once all pauses are lifted.
func (m *Manager) Resume() {
	m.mu.Lock()
	if m.pauses > 0 {
		m.pauses--
	}
	resumed := m.pauses == 0
	m.mu.Unlock()
	if resumed {
		m.log.Debug("guide refresh resumed")
	}
}

// Paused reports whether background refresh is currently suspended.
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauses > 0
}

// StopActiveSession cancels the data session attributed to one client, if
// any. Called before that client is recreated or destroyed so the session
// never outlives the handle it reads from.
func (m *Manager) StopActiveSession(clientID int) {
	m.mu.Lock()
	cancel, ok := m.sessions[clientID]
	delete(m.sessions, clientID)
	m.mu.Unlock()

	if ok {
		cancel()
		m.log.Debug("guide session stopped", "client_id", clientID)
	}
}

// BeginSession registers a cancellable data session for one client and
// returns its context. The caller must call the returned release func when
// the session ends.
func (m *Manager) BeginSession(ctx context.Context, clientID int) (context.Context, func()) {
	sessionCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if prev, ok := m.sessions[clientID]; ok {
		prev()
	}
	m.sessions[clientID] = cancel
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.sessions, clientID)
		m.mu.Unlock()
		cancel()
	}
	return sessionCtx, release
}

// ActiveSessions returns the number of in-flight data sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.quit:
			return
		case <-ticker.C:
			m.runRefresh(ctx)
		}
	}
}

// runRefresh executes one refresh under the read side of refreshMu. The
// paused check happens after the lock is held so a Pause that raced the tick
// either drains this refresh or suppresses it, never overlaps it.
func (m *Manager) runRefresh(ctx context.Context) {
	m.refreshMu.RLock()
	defer m.refreshMu.RUnlock()

	if m.Paused() {
		m.log.Debug("guide refresh skipped while paused")
		return
	}
	if err := m.refresh(ctx); err != nil {
		m.log.Warn("guide refresh failed", "error", err)
	}
}
