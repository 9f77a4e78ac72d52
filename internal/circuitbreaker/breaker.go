// Package circuitbreaker implements the three-state circuit breaker of
// spec §4.C, adapted from the teacher's internal/infra/circuit.go. The
// state machine is narrowed to match the source's semantics: a single
// successful probe closes a HALF_OPEN breaker, and a breaker only trips
// once it has seen a minimum number of calls (so a single cold-start
// error never opens it).
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// ErrOpen is returned by Call when the breaker is currently blocking calls.
var ErrOpen = errors.New("circuit breaker is open")

// OpenError carries the retry-after hint named in spec §4.C's snapshot.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return "circuit breaker '" + e.Name + "' is open"
}

func (e *OpenError) Unwrap() error { return ErrOpen }

// Config tunes a single breaker.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int
	MinimumCalls     int
}

// DefaultConfig returns spec §4.C's default parameters.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 2,
		MinimumCalls:     3,
	}
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 2
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = 3
	}
	return c
}

// Breaker is a single named circuit breaker.
type Breaker struct {
	name   string
	config Config

	mu              sync.Mutex
	state           State
	failureCount    int
	callCount       int
	halfOpenInflight int
	openedAt        time.Time
	now             func() time.Time
}

// New creates a breaker in the CLOSED state.
func New(name string, config Config) *Breaker {
	return &Breaker{
		name:   name,
		config: config.withDefaults(),
		state:  Closed,
		now:    time.Now,
	}
}

// Snapshot is the diagnostic view exposed per spec §4.C.
type Snapshot struct {
	Name         string
	State        State
	FailureCount int
	CallCount    int
	ElapsedOpenS float64
	Config       Config
}

// Snapshot returns the breaker's current diagnostic state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	var elapsed float64
	if b.state == Open {
		elapsed = b.now().Sub(b.openedAt).Seconds()
	}
	return Snapshot{
		Name:         b.name,
		State:        b.state,
		FailureCount: b.failureCount,
		CallCount:    b.callCount,
		ElapsedOpenS: elapsed,
		Config:       b.config,
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs fn through the breaker: admission check under the guard,
// then fn outside it, then result recording under the guard again.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

// CallWithResult is the value-returning form of Call.
func CallWithResult[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.before(); err != nil {
		return zero, err
	}
	result, err := fn(ctx)
	b.after(err)
	return result, err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		elapsed := b.now().Sub(b.openedAt)
		if elapsed >= b.config.RecoveryTimeout {
			b.transitionToHalfOpen()
		} else {
			return &OpenError{Name: b.name, RetryAfter: b.config.RecoveryTimeout - elapsed}
		}
	}

	if b.state == HalfOpen {
		if b.halfOpenInflight >= b.config.HalfOpenMaxCalls {
			return &OpenError{Name: b.name, RetryAfter: 0}
		}
		b.halfOpenInflight++
	}

	b.callCount++
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailure()
		return
	}
	b.recordSuccess()
}

func (b *Breaker) recordSuccess() {
	if b.state == HalfOpen {
		b.transitionToClosed()
		return
	}
	b.failureCount = 0
}

func (b *Breaker) recordFailure() {
	b.failureCount++
	if b.state == HalfOpen {
		b.transitionToOpen()
		return
	}
	if b.callCount >= b.config.MinimumCalls && b.failureCount >= b.config.FailureThreshold {
		b.transitionToOpen()
	}
}

func (b *Breaker) transitionToOpen() {
	b.state = Open
	b.openedAt = b.now()
	b.halfOpenInflight = 0
}

func (b *Breaker) transitionToHalfOpen() {
	b.state = HalfOpen
	b.halfOpenInflight = 0
}

func (b *Breaker) transitionToClosed() {
	b.state = Closed
	b.failureCount = 0
	b.callCount = 0
	b.halfOpenInflight = 0
}

// Reset forces the breaker back to CLOSED, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionToClosed()
}
