// Package lock implements the store-wide advisory lock from spec.md §4.3:
// a single minibeads.lock file in the store root, holding the owning
// process's pid. Acquisition retries with exponential backoff; stale
// locks (dead pid) are reclaimed; release is idempotent.
package lock

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rrnewton/minibeads/internal/types"
	"golang.org/x/sys/unix"
)

const (
	lockFileName   = "minibeads.lock"
	initialBackoff = 10 * time.Millisecond
	totalBudget    = 5 * time.Second
)

// Lock represents a held advisory lock on one store root. The zero value
// is not usable; construct via Acquire.
type Lock struct {
	path string
	log  *slog.Logger
}

// Acquire blocks (via exponential backoff, starting at 10ms, doubling,
// capped so total wait is <=5s) until the lock is obtained or the budget
// is exhausted, in which case it fails with LockBusy.
func Acquire(root string, log *slog.Logger) (*Lock, error) {
	if log == nil {
		log = slog.Default()
	}
	path := filepath.Join(root, lockFileName)
	backoff := initialBackoff
	deadline := time.Now().Add(totalBudget)

	for {
		if err := tryAcquire(path, log); err == nil {
			return &Lock{path: path, log: log}, nil
		} else if !isBusy(err) {
			return nil, err
		}

		if time.Now().Add(backoff).After(deadline) {
			return nil, types.NewError(types.ErrLockBusy, "lock.Acquire", "", fmt.Errorf("store root %s", root))
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

type busyErr struct{ err error }

func (b *busyErr) Error() string { return b.err.Error() }
func isBusy(err error) bool      { _, ok := err.(*busyErr); return ok }

// tryAcquire makes one attempt: write our pid exclusively, or reclaim a
// stale lock and retry once.
func tryAcquire(path string, log *slog.Logger) error {
	pid := os.Getpid()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err == nil {
		_, werr := fmt.Fprintf(f, "%d\n", pid)
		cerr := f.Close()
		if werr != nil {
			return werr
		}
		if cerr != nil {
			return cerr
		}
		return nil
	}
	if !os.IsExist(err) {
		return types.NewError(types.ErrIoError, "lock.tryAcquire", "", err)
	}

	// Lock file exists. Check whether its owner is alive.
	holder, rerr := readPid(path)
	if rerr != nil {
		// Unreadable/empty lock file: treat as stale and reclaim.
		if removeStale(path, log, 0, "unreadable lock file") {
			return tryAcquire(path, log)
		}
		return &busyErr{fmt.Errorf("lock file %s unreadable: %w", path, rerr)}
	}

	if processAlive(holder) {
		return &busyErr{fmt.Errorf("lock held by live pid %d", holder)}
	}

	if removeStale(path, log, holder, "dead holder pid") {
		return tryAcquire(path, log)
	}
	return &busyErr{fmt.Errorf("lock file %s contended", path)}
}

func removeStale(path string, log *slog.Logger, pid int, reason string) bool {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false
	}
	log.Warn("reclaimed stale lock", "path", path, "held_by_pid", pid, "reason", reason)
	return true
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, fmt.Errorf("empty lock file")
	}
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("malformed pid %q: %w", s, err)
	}
	return pid, nil
}

// processAlive reports whether pid refers to a live process, probed via
// a signal-0 kill (no actual signal delivered).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	if err == unix.ESRCH {
		return false
	}
	// EPERM means the process exists but we can't signal it: still alive.
	return err == unix.EPERM
}

// Release deletes the lock file. Idempotent: releasing an already-released
// lock is not an error.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return types.NewError(types.ErrIoError, "lock.Release", "", err)
	}
	return nil
}
