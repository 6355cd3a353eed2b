package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestAcquireReleaseRoundtrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, lockFileName)); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, lockFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed, stat err = %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	dir := t.TempDir()
	l, err := Acquire(dir, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	// A pid that almost certainly does not exist.
	deadPid := 1 << 30
	path := filepath.Join(dir, lockFileName)
	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPid)), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	l, err := Acquire(dir, nil)
	if err != nil {
		t.Fatalf("Acquire should reclaim stale lock: %v", err)
	}
	_ = l.Release()
}

func TestAcquireFailsBusyUnderLiveHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, lockFileName)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	start := time.Now()
	_, err := Acquire(dir, nil)
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected LockBusy since our own pid is always 'alive'")
	}
	if elapsed > 6*time.Second {
		t.Errorf("backoff budget exceeded: %v", elapsed)
	}
	_ = os.Remove(path)
}
