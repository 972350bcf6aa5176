package modelclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitBreakerOpen is returned by CircuitBreaker.Call while the
// circuit is open or its half-open trial slots are exhausted.
var ErrCircuitBreakerOpen = errors.New("modelclient: circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit breaker is operational - all
	// requests pass through.
	StateClosed CircuitBreakerState = iota
	// StateOpen means the circuit breaker is open - requests fail
	// fast without calling the model.
	StateOpen
	// StateHalfOpen means the circuit breaker is testing if the
	// service recovered - limited requests allowed.
	StateHalfOpen
)

// String returns the human-readable state name.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type callResult struct {
	timestamp time.Time
	success   bool
	duration  time.Duration
	slow      bool
}

// CircuitBreaker prevents hammering a rate-limited or down model
// endpoint across the many Complete calls a single run can make (one
// for grouping, one per group member on every fix attempt). Thread-safe.
type CircuitBreaker struct {
	maxFailures      int
	resetTimeout     time.Duration
	failureThreshold float64
	timeWindow       time.Duration
	slowCallDuration time.Duration
	halfOpenMaxCalls int

	mu                   sync.RWMutex
	state                CircuitBreakerState
	failureCount         int
	successCount         int
	consecutiveFailures  int
	consecutiveSuccesses int
	lastStateChange      time.Time
	lastFailure          time.Time
	lastSuccess          time.Time
	halfOpenCalls        int

	callResults []callResult

	logger *slog.Logger
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	MaxFailures      int
	ResetTimeout     time.Duration
	FailureThreshold float64
	TimeWindow       time.Duration
	SlowCallDuration time.Duration
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns sane defaults for a model
// client making a handful of calls per upgrade run.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:      5,
		ResetTimeout:     30 * time.Second,
		FailureThreshold: 0.5,
		TimeWindow:       60 * time.Second,
		SlowCallDuration: 20 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Validate checks that the configuration is usable.
func (c CircuitBreakerConfig) Validate() error {
	if c.MaxFailures <= 0 {
		return errors.New("max failures must be positive")
	}
	if c.ResetTimeout <= 0 {
		return errors.New("reset timeout must be positive")
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		return errors.New("failure threshold must be between 0 and 1")
	}
	if c.TimeWindow <= 0 {
		return errors.New("time window must be positive")
	}
	if c.SlowCallDuration <= 0 {
		return errors.New("slow call duration must be positive")
	}
	if c.HalfOpenMaxCalls <= 0 {
		return errors.New("half open max calls must be positive")
	}
	return nil
}

// NewCircuitBreaker creates a circuit breaker with the given
// configuration.
func NewCircuitBreaker(config CircuitBreakerConfig, logger *slog.Logger) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CircuitBreaker{
		maxFailures:      config.MaxFailures,
		resetTimeout:     config.ResetTimeout,
		failureThreshold: config.FailureThreshold,
		timeWindow:       config.TimeWindow,
		slowCallDuration: config.SlowCallDuration,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		state:            StateClosed,
		lastStateChange:  time.Now(),
		callResults:      make([]callResult, 0, 32),
		logger:           logger,
	}, nil
}

// Call executes operation through the circuit breaker, returning
// ErrCircuitBreakerOpen without calling operation if the circuit is
// open.
func (cb *CircuitBreaker) Call(ctx context.Context, operation func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	start := time.Now()
	err := operation(ctx)
	cb.afterCall(err, time.Since(start))
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.resetTimeout {
			cb.transitionToHalfOpenUnsafe()
			return nil
		}
		cb.logger.Debug("circuit breaker open, request blocked",
			"time_since_open", time.Since(cb.lastStateChange))
		return ErrCircuitBreakerOpen

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return ErrCircuitBreakerOpen
		}
		cb.halfOpenCalls++
		return nil

	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error, duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	isSlow := duration >= cb.slowCallDuration
	isSuccess := err == nil && !isSlow

	now := time.Now()
	cb.callResults = append(cb.callResults, callResult{timestamp: now, success: isSuccess, duration: duration, slow: isSlow})
	cb.cleanOldResultsUnsafe()

	if isSuccess {
		cb.successCount++
		cb.consecutiveSuccesses++
		cb.consecutiveFailures = 0
		cb.lastSuccess = now
	} else {
		cb.failureCount++
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
		cb.lastFailure = now
		cb.logger.Warn("model call recorded failure", "error", err, "duration", duration, "slow", isSlow)
	}

	switch cb.state {
	case StateClosed:
		if cb.shouldOpenUnsafe() {
			cb.transitionToOpenUnsafe()
		}
	case StateHalfOpen:
		if isSuccess {
			cb.transitionToClosedUnsafe()
		} else {
			cb.transitionToOpenUnsafe()
		}
	}
}

func (cb *CircuitBreaker) shouldOpenUnsafe() bool {
	if len(cb.callResults) < cb.maxFailures {
		return false
	}
	if cb.consecutiveFailures >= cb.maxFailures {
		return true
	}

	failures := 0
	for _, r := range cb.callResults {
		if !r.success {
			failures++
		}
	}
	return float64(failures)/float64(len(cb.callResults)) >= cb.failureThreshold
}

func (cb *CircuitBreaker) transitionToOpenUnsafe() {
	cb.state = StateOpen
	cb.lastStateChange = time.Now()
	cb.halfOpenCalls = 0
	cb.logger.Warn("circuit breaker opened", "consecutive_failures", cb.consecutiveFailures, "reset_timeout", cb.resetTimeout)
}

func (cb *CircuitBreaker) transitionToHalfOpenUnsafe() {
	cb.state = StateHalfOpen
	cb.lastStateChange = time.Now()
	cb.halfOpenCalls = 0
	cb.logger.Info("circuit breaker entering half-open state")
}

func (cb *CircuitBreaker) transitionToClosedUnsafe() {
	cb.state = StateClosed
	cb.lastStateChange = time.Now()
	cb.halfOpenCalls = 0
	cb.failureCount = 0
	cb.consecutiveFailures = 0
	cb.callResults = make([]callResult, 0, 32)
	cb.logger.Info("circuit breaker closed")
}

func (cb *CircuitBreaker) cleanOldResultsUnsafe() {
	cutoff := time.Now().Add(-cb.timeWindow)
	firstValid := 0
	for i, r := range cb.callResults {
		if r.timestamp.After(cutoff) {
			firstValid = i
			break
		}
		cb.callResults[i] = callResult{}
	}
	if firstValid > 0 {
		cb.callResults = cb.callResults[firstValid:]
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	State                CircuitBreakerState
	FailureCount         int
	SuccessCount         int
	ConsecutiveFailures  int
	LastFailure          time.Time
	LastSuccess          time.Time
	NextRetryAt          time.Time
}

// GetStats returns the current statistics.
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	var nextRetryAt time.Time
	if cb.state == StateOpen {
		nextRetryAt = cb.lastStateChange.Add(cb.resetTimeout)
	}

	return CircuitBreakerStats{
		State:               cb.state,
		FailureCount:        cb.failureCount,
		SuccessCount:        cb.successCount,
		ConsecutiveFailures: cb.consecutiveFailures,
		LastFailure:         cb.lastFailure,
		LastSuccess:         cb.lastSuccess,
		NextRetryAt:         nextRetryAt,
	}
}

// Reset forces the circuit breaker back to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenCalls = 0
	cb.callResults = make([]callResult, 0, 32)
	cb.lastStateChange = time.Now()
}
