// Package awaiter provides a re-armable wait for a matching push event.
//
// An Awaiter is armed with an expected value before a remote command is
// issued; push events are then fed to it until one matches. Each wait
// resolves exactly once: with the match result, with ErrTimeout, or with
// ErrCancelled when its context is cancelled or the awaiter is re-armed.
package awaiter

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/infra/metrics"
)

var (
	ErrTimeout      = errors.New("wait timed out")
	ErrCancelled    = errors.New("wait cancelled")
	ErrInvalidState = errors.New("awaiter is not armed")
)

// MatchFunc decides whether event satisfies expected and, if so,
// what the wait resolves with.
type MatchFunc[E, V, R any] func(event E, expected V) (R, bool)

// Equal is a MatchFunc for waits on a specific value.
func Equal[T comparable](event, expected T) (T, bool) {
	return event, event == expected
}

// Option configures an Awaiter.
type Option func(*options)

type options struct {
	clock clockwork.Clock
	name  string
}

// WithClock sets the clock used for timeouts.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithName sets the name used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Awaiter waits for events of type E matching an expected value V and
// resolves with R.
type Awaiter[E, V, R any] struct {
	match MatchFunc[E, V, R]
	clock clockwork.Clock
	name  string

	mu       sync.Mutex
	gen      uint64
	expected V
	current  *Pending[R]
}

// New creates an Awaiter using match as its predicate.
func New[E, V, R any](match MatchFunc[E, V, R], opts ...Option) *Awaiter[E, V, R] {
	o := options{clock: clockwork.NewRealClock(), name: "awaiter"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Awaiter[E, V, R]{
		match: match,
		clock: o.clock,
		name:  o.name,
	}
}

// Pending is a single armed wait.
type Pending[R any] struct {
	gen  uint64
	done chan struct{}

	// Guarded by the owning Awaiter's mutex until done is closed.
	resolved bool
	result   R
	err      error
	timer    clockwork.Timer
	stopCtx  func() bool
}

// Generation returns the arm generation of the wait.
func (p *Pending[R]) Generation() uint64 {
	return p.gen
}

// Done is closed once the wait is resolved.
func (p *Pending[R]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the wait is resolved.
func (p *Pending[R]) Wait() (R, error) {
	<-p.done
	return p.result, p.err
}

// Arm starts a new wait for expected. An unresolved previous wait is
// resolved with ErrCancelled. A timeout <= 0 disables the deadline;
// cancellation of ctx resolves the wait with ErrCancelled.
func (a *Awaiter[E, V, R]) Arm(ctx context.Context, expected V, timeout time.Duration) *Pending[R] {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		a.resolveLocked(a.current, *new(R), ErrCancelled)
	}

	a.gen++
	gen := a.gen
	p := &Pending[R]{gen: gen, done: make(chan struct{})}
	a.expected = expected
	a.current = p

	if timeout > 0 {
		p.timer = a.clock.AfterFunc(timeout, func() {
			if a.resolveGen(gen, *new(R), ErrTimeout) {
				metrics.AwaiterTimeouts.WithLabelValues(a.name).Inc()
				zlog.Debug().Msgf("awaiter timed out: name=%s, gen=%d, timeout=%v", a.name, gen, timeout)
			}
		})
	}
	if ctx != nil && ctx.Done() != nil {
		p.stopCtx = context.AfterFunc(ctx, func() {
			a.resolveGen(gen, *new(R), ErrCancelled)
		})
	}
	return p
}

// OnEvent feeds event to the current wait. It reports whether the
// event resolved it.
func (a *Awaiter[E, V, R]) OnEvent(event E) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onEventLocked(event)
}

// OnEventAt feeds event only if gen is still the current generation.
// Callers pass the generation observed when the event was received, so
// an event received before a later Arm never resolves that wait.
func (a *Awaiter[E, V, R]) OnEventAt(gen uint64, event E) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return false
	}
	return a.onEventLocked(event)
}

func (a *Awaiter[E, V, R]) onEventLocked(event E) bool {
	p := a.current
	if p == nil || p.resolved {
		return false
	}
	result, ok := a.match(event, a.expected)
	if !ok {
		return false
	}
	return a.resolveLocked(p, result, nil)
}

// Resolve resolves the current wait with value.
func (a *Awaiter[E, V, R]) Resolve(value R) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return false
	}
	return a.resolveLocked(a.current, value, nil)
}

// Cancel resolves the current wait with ErrCancelled.
func (a *Awaiter[E, V, R]) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return false
	}
	return a.resolveLocked(a.current, *new(R), ErrCancelled)
}

// ResolveAt resolves the wait of generation gen with value. A wait armed
// since then is left alone.
func (a *Awaiter[E, V, R]) ResolveAt(gen uint64, value R) bool {
	return a.resolveGen(gen, value, nil)
}

// CancelAt resolves the wait of generation gen with ErrCancelled.
func (a *Awaiter[E, V, R]) CancelAt(gen uint64) bool {
	return a.resolveGen(gen, *new(R), ErrCancelled)
}

// Wait blocks until the current wait is resolved.
func (a *Awaiter[E, V, R]) Wait() (R, error) {
	a.mu.Lock()
	p := a.current
	a.mu.Unlock()
	if p == nil {
		return *new(R), ErrInvalidState
	}
	return p.Wait()
}

// Generation returns the current arm generation (0 if never armed).
func (a *Awaiter[E, V, R]) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

// Armed reports whether a wait is in progress.
func (a *Awaiter[E, V, R]) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current != nil && !a.current.resolved
}

func (a *Awaiter[E, V, R]) resolveGen(gen uint64, value R, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || a.current.gen != gen {
		return false
	}
	return a.resolveLocked(a.current, value, err)
}

func (a *Awaiter[E, V, R]) resolveLocked(p *Pending[R], value R, err error) bool {
	if p.resolved {
		return false
	}
	p.resolved = true
	p.result = value
	p.err = err
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.stopCtx != nil {
		p.stopCtx()
	}
	close(p.done)
	return true
}
