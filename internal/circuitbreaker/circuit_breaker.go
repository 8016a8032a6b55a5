package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

const (
	defaultMaxFailures    = 5
	defaultOpenTimeout    = 30 * time.Second
	defaultHalfOpenProbes = 1
	callbackTimeout       = 5 * time.Second
)

type Config struct {
	Name string
	// MaxFailures consecutive failures trip the breaker.
	MaxFailures int
	// OpenTimeout is how long the breaker rejects calls before probing.
	OpenTimeout time.Duration
	// HalfOpenProbes is the number of calls let through while half-open.
	HalfOpenProbes int
	// IsFailure decides which errors count against the remote service.
	// Nil counts every error.
	IsFailure     func(error) bool
	OnStateChange func(name string, from State, to State)
}

// Snapshot is a point-in-time view of a breaker for health reporting.
type Snapshot struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalSuccesses  int64     `json:"total_successes"`
	TotalCancelled  int64     `json:"total_cancelled"`
	TotalRejected   int64     `json:"total_rejected"`
	StateChanges    int64     `json:"state_changes"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	LastStateChange time.Time `json:"last_state_change,omitempty"`
}

// CircuitBreaker guards calls to one remote service. Calls run on the
// caller's goroutine; the mutex is never held while fn executes.
type CircuitBreaker struct {
	cfg    Config
	logger *logrus.Logger

	mu             sync.Mutex
	state          State
	failures       int
	probes         int
	openedAt       time.Time
	lastFailure    time.Time
	lastChange     time.Time
	totalCalls     int64
	totalFailures  int64
	totalSuccess   int64
	totalCancelled int64
	totalRejected  int64
	stateChanges   int64

	now func() time.Time
}

func New(cfg Config, logger *logrus.Logger) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "unnamed"
	}
	if cfg.MaxFailures <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": cfg.Name,
			"invalid_value":   cfg.MaxFailures,
		}).Warn("Invalid MaxFailures, using default")
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.OpenTimeout <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": cfg.Name,
			"invalid_value":   cfg.OpenTimeout,
		}).Warn("Invalid OpenTimeout, using default")
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = defaultHalfOpenProbes
	}
	if cfg.MaxFailures > 1000 {
		cfg.MaxFailures = 1000
	}
	if cfg.OpenTimeout > 10*time.Minute {
		cfg.OpenTimeout = 10 * time.Minute
	}

	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Execute runs fn unless the breaker is open. A rejected call returns
// ErrOpen without invoking fn. Context cancellation by the caller is not
// counted as a remote failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && callerCancelled(ctx, err) {
		// The remote service never answered, so a half-open breaker only
		// gives the probe slot back.
		cb.totalCancelled++
		if cb.state == StateHalfOpen && cb.probes > 0 {
			cb.probes--
		}
		return err
	}

	if err != nil && cb.counts(err) {
		cb.totalFailures++
		cb.onFailure()
		return err
	}

	cb.totalSuccess++
	cb.onSuccess()
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.OpenTimeout {
			cb.totalRejected++
			return fmt.Errorf("%s: %w", cb.cfg.Name, ErrOpen)
		}
		cb.setState(StateHalfOpen)
		cb.probes = 0
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenProbes {
			cb.totalRejected++
			return fmt.Errorf("%s: %w", cb.cfg.Name, ErrOpen)
		}
		cb.probes++
	}

	cb.totalCalls++
	return nil
}

func callerCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

func (cb *CircuitBreaker) counts(err error) bool {
	if cb.cfg.IsFailure == nil {
		return true
	}
	return cb.cfg.IsFailure(err)
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.probes = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.setState(StateOpen)
	cb.openedAt = cb.now()
	cb.probes = 0
}

func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.stateChanges++
	cb.lastChange = cb.now()

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.cfg.Name,
		"from_state":      prev.String(),
		"to_state":        next.String(),
	}).Info("Circuit breaker state changed")

	if cb.cfg.OnStateChange != nil {
		go cb.notify(prev, next)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				cb.logger.WithFields(logrus.Fields{
					"circuit_breaker": cb.cfg.Name,
					"panic":           r,
				}).Error("Circuit breaker state change callback panicked")
			}
			close(done)
		}()
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}()

	select {
	case <-done:
	case <-time.After(callbackTimeout):
		cb.logger.WithField("circuit_breaker", cb.cfg.Name).Warn("Circuit breaker state change callback timed out")
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:            cb.cfg.Name,
		State:           cb.state.String(),
		Failures:        cb.failures,
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccess,
		TotalCancelled:  cb.totalCancelled,
		TotalRejected:   cb.totalRejected,
		StateChanges:    cb.stateChanges,
		LastFailure:     cb.lastFailure,
		LastStateChange: cb.lastChange,
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failures = 0
	cb.probes = 0
	cb.lastFailure = time.Time{}
}

func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.cfg.Name, cb.state, cb.failures, cb.cfg.MaxFailures)
}
