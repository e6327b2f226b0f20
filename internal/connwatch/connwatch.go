// Package connwatch keeps track of whether the upstreams Wren depends on,
// chiefly the LLM provider, are reachable. A watcher probes its service
// on a schedule: exponential backoff while the service is down, a
// steady poll interval while it is up.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Schedule controls probe timing.
type Schedule struct {
	InitialDelay time.Duration // first retry after a failure
	MaxDelay     time.Duration // backoff ceiling
	PollInterval time.Duration // interval while healthy
	ProbeTimeout time.Duration // per-probe limit
}

// DefaultSchedule retries after 2s, doubling to at most 60s, and polls
// a healthy service every 60s.
func DefaultSchedule() Schedule {
	return Schedule{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

func (s Schedule) withDefaults() Schedule {
	d := DefaultSchedule()
	if s.InitialDelay <= 0 {
		s.InitialDelay = d.InitialDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = d.MaxDelay
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = d.ProbeTimeout
	}
	return s
}

// ServiceStatus is the health of one watched service as reported by
// the /health endpoint.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"lastCheck,omitzero"`
	LastError string    `json:"lastError,omitempty"`
}

// Watcher probes one service until stopped.
type Watcher struct {
	name     string
	probe    ProbeFunc
	schedule Schedule
	onChange func(ready bool, err error)
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	ready     bool
	checked   bool
	lastErr   error
	lastCheck time.Time
}

// Status returns the current health.
func (w *Watcher) Status() ServiceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := ServiceStatus{Name: w.name, Ready: w.ready, LastCheck: w.lastCheck}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Ready reports whether the last probe succeeded.
func (w *Watcher) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Stop ends the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.schedule.InitialDelay
	for {
		err := w.check(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := w.schedule.PollInterval
		if err != nil {
			wait = delay
			delay = min(delay*2, w.schedule.MaxDelay)
		} else {
			delay = w.schedule.InitialDelay
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// check runs one probe and records the result, logging transitions.
func (w *Watcher) check(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.schedule.ProbeTimeout)
	err := w.probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	w.mu.Lock()
	first := !w.checked
	changed := first || w.ready != (err == nil)
	w.checked = true
	w.ready = err == nil
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()

	switch {
	case !changed:
		if err != nil {
			w.logger.Debug("service still unreachable", "service", w.name, "error", err)
		}
		return err
	case err == nil:
		w.logger.Info("service reachable", "service", w.name)
	default:
		w.logger.Warn("service unreachable", "service", w.name, "error", err)
	}
	if w.onChange != nil {
		w.onChange(err == nil, err)
	}
	return err
}

// Manager owns the watchers for a process.
type Manager struct {
	mu       sync.Mutex
	watchers map[string]*Watcher
	logger   *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		watchers: make(map[string]*Watcher),
		logger:   logger.With("component", "connwatch"),
	}
}

// Watch starts probing a service in the background until ctx ends or
// Stop is called. onChange, if non-nil, is called from the watcher's
// goroutine on the first probe and on every change of reachability.
// Zero schedule fields take their defaults.
func (m *Manager) Watch(ctx context.Context, name string, probe ProbeFunc, schedule Schedule, onChange func(ready bool, err error)) *Watcher {
	if name == "" || probe == nil {
		panic("connwatch: Watch needs a name and a probe")
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		name:     name,
		probe:    probe,
		schedule: schedule.withDefaults(),
		onChange: onChange,
		logger:   m.logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	if old, ok := m.watchers[name]; ok {
		old.cancel()
	}
	m.watchers[name] = w
	m.mu.Unlock()

	go w.run(ctx)
	return w
}

// Status returns the health of every watched service, keyed by name.
func (m *Manager) Status() map[string]ServiceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ServiceStatus, len(m.watchers))
	for name, w := range m.watchers {
		out[name] = w.Status()
	}
	return out
}

// Stop ends every watcher and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	watchers := make([]*Watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
