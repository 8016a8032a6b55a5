package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager hands out one breaker per remote service name.
type Manager struct {
	defaults Config
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex
	logger   *logrus.Logger
}

func NewManager(defaults Config, logger *logrus.Logger) *Manager {
	return &Manager{
		defaults: defaults,
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// For returns the breaker for name, creating it from the manager defaults
// and isFailure on first use.
func (m *Manager) For(name string, isFailure func(error) bool) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	cfg := m.defaults
	cfg.Name = name
	if isFailure != nil {
		cfg.IsFailure = isFailure
	}
	cb := New(cfg, m.logger)
	m.breakers[name] = cb

	m.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"max_failures":    cb.cfg.MaxFailures,
		"open_timeout":    cb.cfg.OpenTimeout.String(),
	}).Info("Circuit breaker created")

	return cb
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

// Snapshots returns every breaker's state sorted by name.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.breakers))
	for _, cb := range m.breakers {
		out = append(out, cb.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cb := range m.breakers {
		cb.Reset()
	}
	m.logger.Info("All circuit breakers reset")
}
