// Package scene provides the scene sequencer: intro and outro scene
// transitions with confirmed scene switches and stage fan-out.
package scene

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"github.com/osa030/obsflow/internal/infra/metrics"
)

// Stage is a point in the intro/outro scene sequence.
type Stage int

const (
	StageResting       Stage = 0   // Not in a sequence
	StageIntroStarted  Stage = 1   // Start scene is showing
	StageGame          Stage = 3   // Game scene is showing
	StageOutroStarted  Stage = 4   // End scene is showing
	StageOutroFinished Stage = 5   // End scene duration elapsed
	StageAborted       Stage = 100 // Sequence failed or was cancelled
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageResting:
		return "resting"
	case StageIntroStarted:
		return "intro_started"
	case StageGame:
		return "game"
	case StageOutroStarted:
		return "outro_started"
	case StageOutroFinished:
		return "outro_finished"
	case StageAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// StageEvent is passed to stage handlers. Handlers may register work
// with Go; the sequencer waits for all of it before it continues.
type StageEvent struct {
	Stage Stage

	ctx    context.Context
	mu     sync.Mutex
	jobs   []func(context.Context) error
	closed bool
}

// Handler is notified of stage changes. It runs synchronously on the
// sequencer and should hand longer work to ev.Go.
type Handler func(ev *StageEvent)

// Context returns the context of the running sequence.
func (e *StageEvent) Context() context.Context {
	return e.ctx
}

// Go registers work to be awaited before the sequence proceeds.
// Work registered after the handlers returned is ignored.
func (e *StageEvent) Go(fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		zlog.Warn().Msgf("stage callback registered too late, ignored: stage=%s", e.Stage)
		return
	}
	e.jobs = append(e.jobs, fn)
}

func (e *StageEvent) take() []func(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	jobs := e.jobs
	e.jobs = nil
	return jobs
}

// dispatch invokes every handler in order, then runs the registered work
// in parallel and waits for it. Failures are logged one by one and never
// stop the delivery or the sequence.
func dispatch(ctx context.Context, stage Stage, handlers []Handler) {
	ev := &StageEvent{Stage: stage, ctx: ctx}
	for i, h := range handlers {
		if err := invoke(h, ev); err != nil {
			metrics.StageHandlerFailures.Inc()
			zlog.Error().Err(err).Msgf("stage handler failed: stage=%s, handler=%d", stage, i)
		}
	}

	jobs := ev.take()
	if len(jobs) == 0 {
		return
	}

	p := pool.New().WithErrors()
	for _, job := range jobs {
		p.Go(func() error { return runJob(ctx, job) })
	}
	errs := p.Wait()
	if errs == nil {
		return
	}
	failures := flattenErrors(errs)
	zlog.Error().Msgf("stage callbacks failed: stage=%s, failures=%d", stage, len(failures))
	for _, err := range failures {
		metrics.StageHandlerFailures.Inc()
		zlog.Error().Err(err).Msgf("stage callback error: stage=%s", stage)
	}
}

// flattenErrors lists the errors of a combined error. The pool joins
// errors pairwise, so combined errors nest.
func flattenErrors(err error) []error {
	var out []error
	for _, e := range multierr.Errors(err) {
		if _, ok := e.(interface{ Unwrap() []error }); ok {
			out = append(out, flattenErrors(e)...)
			continue
		}
		out = append(out, e)
	}
	return out
}

func invoke(h Handler, ev *StageEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	h(ev)
	return nil
}

func runJob(ctx context.Context, job func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return job(ctx)
}
