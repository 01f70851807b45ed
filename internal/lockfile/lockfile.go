// Package lockfile enforces a single running daemon per data directory.
//
// The lock is an advisory flock on a PID file. The kernel drops the flock
// when its holder exits, so a file left by a crashed daemon is simply locked
// again; the PID inside is informational.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/timvw/pane-tracker/internal/logging"
)

var log = logging.ForComponent(logging.CompDaemon)

// ErrAlreadyRunning matches a *HeldError with errors.Is.
var ErrAlreadyRunning = errors.New("daemon already running")

// HeldError reports the process that holds the lock. PID is 0 when the
// holder has not written it yet.
type HeldError struct {
	Path string
	PID  int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("daemon already running with PID %d (lock %s)", e.PID, e.Path)
}

func (e *HeldError) Is(target error) bool { return target == ErrAlreadyRunning }

// Lock is a held lock file.
type Lock struct {
	path string

	mu sync.Mutex
	f  *os.File
}

const maxAttempts = 3

// Acquire locks the file at path and writes the current PID into it. It
// fails with a *HeldError while another process holds the lock.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			f.Close() //nolint:errcheck
			if errors.Is(err, syscall.EWOULDBLOCK) {
				pid, _ := Read(path)
				return nil, &HeldError{Path: path, PID: pid}
			}
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}

		// A releasing holder unlinks the file before unlocking it. If that
		// happened between our open and flock we hold a lock on a file
		// nobody else can see; start over on the new one.
		if !isCurrent(f, path) {
			f.Close() //nolint:errcheck
			continue
		}

		if prev, err := readPID(f); err == nil && prev != 0 {
			log.Info("reclaiming stale lock", "path", path, "pid", prev)
		}
		if err := writePID(f, os.Getpid()); err != nil {
			_ = os.Remove(path)
			f.Close() //nolint:errcheck
			return nil, fmt.Errorf("write lock file: %w", err)
		}
		return &Lock{path: path, f: f}, nil
	}
	return nil, fmt.Errorf("acquire lock %s: lost race with another process", path)
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file and drops the lock. A file that has been
// replaced since Acquire is left alone. Release is idempotent.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil

	var rmErr error
	if isCurrent(f, l.path) {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			rmErr = fmt.Errorf("remove lock file: %w", err)
		}
	}
	unlockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return errors.Join(rmErr, unlockErr, f.Close())
}

// Read returns the PID stored in the lock file.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return parsePID(path, content)
}

// IsRunning reports whether some process holds the lock at path, and the
// PID it recorded.
func IsRunning(path string) (bool, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer f.Close()

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB)
	switch {
	case errors.Is(err, syscall.EWOULDBLOCK):
		pid, perr := readPID(f)
		if perr != nil {
			return true, 0, nil
		}
		return true, pid, nil
	case err != nil:
		return false, 0, fmt.Errorf("check lock %s: %w", path, err)
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false, 0, nil
}

// isCurrent reports whether f is still the file linked at path.
func isCurrent(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	linked, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, linked)
}

func readPID(f *os.File) (int, error) {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return parsePID(f.Name(), buf[:n])
}

func writePID(f *os.File, pid int) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0)
	return err
}

func parsePID(path string, content []byte) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("parse lock file %s: %w", path, err)
	}
	return pid, nil
}
