package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	l, err := Acquire(path)
	require.NoError(t, err)

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, l.Release(), "release is idempotent")
}

func TestAcquireHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	first, err := Acquire(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = Acquire(path)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	var held *HeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, os.Getpid(), held.PID)

	_, err = os.Stat(path)
	assert.NoError(t, err, "the holder's lock is left alone")
}

func TestAcquireReclaimsStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o600))

	l, err := Acquire(path)
	require.NoError(t, err)
	defer l.Release()

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireReclaimsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid, and longer than the old pid was"), 0o600))

	l, err := Acquire(path)
	require.NoError(t, err)
	defer l.Release()

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireConcurrentStartersOnStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o600))

	const starters = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		locks []*Lock
		errs  []error
		start = make(chan struct{})
	)
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := Acquire(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			locks = append(locks, l)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, locks, 1, "exactly one starter may win")
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrAlreadyRunning)
	}

	running, pid, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
	require.NoError(t, locks[0].Release())
}

func TestReleaseKeepsReplacedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	l, err := Acquire(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte("4242"), 0o600))
	require.NoError(t, l.Release())

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestIsRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	running, pid, err := IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)

	require.NoError(t, os.WriteFile(path, []byte("99"), 0o600))
	running, _, err = IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running, "a PID file without a holder is stale")

	l, err := Acquire(path)
	require.NoError(t, err)
	running, pid, err = IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Release())
	running, _, err = IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)
}
