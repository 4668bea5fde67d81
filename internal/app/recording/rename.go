package recording

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/obsflow/internal/app/scope"
	"github.com/osa030/obsflow/internal/infra/metrics"
)

const (
	defaultRenameAttempts = 5
	defaultRenameBackoff  = 2 * time.Second
)

var (
	// ErrFileInUse marks a rename failure caused by another process holding the file.
	ErrFileInUse = errors.New("file is in use")
	// ErrTargetExists is returned when the rename target already exists.
	ErrTargetExists = errors.New("rename target already exists")
)

// IsFileInUse reports whether err means the file is temporarily locked.
func IsFileInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrFileInUse) || isPlatformFileInUse(err)
}

// Renamer renames finished recordings, retrying while the file is in use.
type Renamer struct {
	clock    clockwork.Clock
	rename   func(oldpath, newpath string) error
	attempts int
	backoff  time.Duration
}

// RenamerOption configures a Renamer.
type RenamerOption func(*Renamer)

// WithRenameFunc replaces os.Rename.
func WithRenameFunc(fn func(oldpath, newpath string) error) RenamerOption {
	return func(r *Renamer) { r.rename = fn }
}

// WithRetry sets the attempt count and the backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) RenamerOption {
	return func(r *Renamer) {
		if attempts > 0 {
			r.attempts = attempts
		}
		r.backoff = backoff
	}
}

// NewRenamer creates a Renamer: 5 attempts with a 2 second backoff.
func NewRenamer(clock clockwork.Clock, opts ...RenamerOption) *Renamer {
	r := &Renamer{
		clock:    clock,
		rename:   os.Rename,
		attempts: defaultRenameAttempts,
		backoff:  defaultRenameBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rename moves src to dst. Only "file in use" failures are retried; any
// other failure ends the attempt chain. src is never removed on failure.
func (r *Renamer) Rename(ctx context.Context, src, dst string) error {
	if src == dst {
		return nil
	}
	if _, err := os.Lstat(dst); err == nil {
		metrics.RenameAttempts.WithLabelValues("failed").Inc()
		zlog.Warn().Msgf("rename skipped, target exists: src=%s, dst=%s", src, dst)
		return errors.Wrapf(ErrTargetExists, "rename %s", dst)
	}

	for attempt := 1; ; attempt++ {
		err := r.rename(src, dst)
		if err == nil {
			metrics.RenameAttempts.WithLabelValues("ok").Inc()
			zlog.Info().Msgf("recording renamed: src=%s, dst=%s, attempt=%d", src, dst, attempt)
			return nil
		}

		if !IsFileInUse(err) {
			metrics.RenameAttempts.WithLabelValues("failed").Inc()
			zlog.Warn().Err(err).Msgf("rename failed: src=%s, dst=%s", src, dst)
			return errors.Wrap(err, "failed to rename recording")
		}
		if attempt >= r.attempts {
			metrics.RenameAttempts.WithLabelValues("failed").Inc()
			zlog.Warn().Err(err).Msgf("rename failed, giving up: src=%s, dst=%s, attempts=%d", src, dst, attempt)
			return errors.Wrap(err, "failed to rename recording, file still in use")
		}

		metrics.RenameAttempts.WithLabelValues("retry").Inc()
		zlog.Info().Msgf("rename deferred, file in use: src=%s, attempt=%d/%d, retry_in=%v", src, attempt, r.attempts, r.backoff)
		if err := scope.Sleep(ctx, r.clock, r.backoff); err != nil {
			return errors.Wrap(err, "rename cancelled")
		}
	}
}

