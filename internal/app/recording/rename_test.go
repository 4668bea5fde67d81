package recording

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// lockedRename fails with ErrFileInUse for the first busy calls.
type lockedRename struct {
	mu    sync.Mutex
	busy  int
	calls int
}

func (l *lockedRename) rename(oldpath, newpath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.busy {
		return errors.Wrapf(ErrFileInUse, "rename %s", oldpath)
	}
	return nil
}

func (l *lockedRename) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestRenamer_RetriesWhileFileInUse(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	locked := &lockedRename{busy: 2}
	r := NewRenamer(clock, WithRenameFunc(locked.rename))

	done := make(chan error, 1)
	go func() {
		done <- r.Rename(context.Background(), filepath.Join(dir, "a.mkv"), filepath.Join(dir, "b.mkv"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// First backoff.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, locked.count())
	clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, 1, locked.count())
	clock.Advance(time.Millisecond)

	// Second backoff.
	require.Eventually(t, func() bool { return locked.count() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, 3, locked.count())
}

func TestRenamer_GivesUp(t *testing.T) {
	dir := t.TempDir()
	locked := &lockedRename{busy: 10}
	r := NewRenamer(clockwork.NewFakeClock(), WithRenameFunc(locked.rename), WithRetry(3, 0))

	err := r.Rename(context.Background(), filepath.Join(dir, "a.mkv"), filepath.Join(dir, "b.mkv"))

	require.Error(t, err)
	assert.True(t, IsFileInUse(err))
	assert.Equal(t, 3, locked.count())
}

func TestRenamer_TerminalFailure(t *testing.T) {
	dir := t.TempDir()
	calls := 0
	r := NewRenamer(clockwork.NewFakeClock(), WithRenameFunc(func(oldpath, newpath string) error {
		calls++
		return os.ErrPermission
	}))

	err := r.Rename(context.Background(), filepath.Join(dir, "a.mkv"), filepath.Join(dir, "b.mkv"))

	require.Error(t, err)
	assert.False(t, IsFileInUse(err))
	assert.Equal(t, 1, calls)
}

func TestRenamer_TargetExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mkv")
	dst := filepath.Join(dir, "b.mkv")
	require.NoError(t, os.WriteFile(src, []byte("src"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("dst"), 0o644))

	r := NewRenamer(clockwork.NewFakeClock())
	err := r.Rename(context.Background(), src, dst)

	assert.True(t, errors.Is(err, ErrTargetExists))
	data, readErr := os.ReadFile(src)
	require.NoError(t, readErr)
	assert.Equal(t, "src", string(data))
}

func TestRenamer_RenamesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mkv")
	dst := filepath.Join(dir, "b.mkv")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0o644))

	r := NewRenamer(clockwork.NewFakeClock())
	require.NoError(t, r.Rename(context.Background(), src, dst))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))
}

func TestRenamer_CancelledDuringBackoff(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	locked := &lockedRename{busy: 10}
	r := NewRenamer(clock, WithRenameFunc(locked.rename))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Rename(ctx, filepath.Join(dir, "a.mkv"), filepath.Join(dir, "b.mkv"))
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, locked.count())
}
