package filelock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFileLock(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "test.lock")

	lock := NewFileLock(lockPath)
	if lock == nil {
		t.Fatal("NewFileLock should not return nil")
	}

	if lock.Path() != lockPath {
		t.Errorf("Expected lock path %s, got %s", lockPath, lock.Path())
	}
}

func TestLockUnlock(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "test.lock")

	lock := NewFileLock(lockPath)

	if err := lock.Lock(); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
}

func TestTryLockContention(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, "test.lock")

	first := NewFileLock(lockPath)
	if err := first.Lock(); err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer first.Unlock()

	second := NewFileLock(lockPath)
	acquired, err := second.TryLock()
	if err != nil {
		t.Fatalf("TryLock returned error: %v", err)
	}
	if acquired {
		t.Error("TryLock should not acquire a lock held by another handle")
	}
}

func TestPlanLease(t *testing.T) {
	tmpDir := t.TempDir()
	leaseDir := filepath.Join(tmpDir, "leases")

	lease, err := PlanLease(leaseDir, "plan-123")
	if err != nil {
		t.Fatalf("PlanLease failed: %v", err)
	}

	want := filepath.Join(leaseDir, "plan-123.lease")
	if lease.Path() != want {
		t.Errorf("Expected lease path %s, got %s", want, lease.Path())
	}

	if err := lease.Lock(); err != nil {
		t.Fatalf("Failed to acquire lease: %v", err)
	}
	defer lease.Unlock()

	// Separate plans must never contend.
	other, err := PlanLease(leaseDir, "plan-456")
	if err != nil {
		t.Fatalf("PlanLease failed: %v", err)
	}
	acquired, err := other.TryLock()
	if err != nil {
		t.Fatalf("TryLock returned error: %v", err)
	}
	if !acquired {
		t.Error("Lease for a different plan should be acquirable")
	}
	other.Unlock()
}

func TestPlanLeaseRequiresPlanID(t *testing.T) {
	if _, err := PlanLease(t.TempDir(), ""); err == nil {
		t.Error("Expected error for empty plan id")
	}
}

func TestAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "nested", "out.json")

	if err := AtomicWrite(target, []byte("first")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	if err := AtomicWrite(target, []byte("second")); err != nil {
		t.Fatalf("AtomicWrite overwrite failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read target: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Expected content %q, got %q", "second", string(data))
	}

	// No temp files should survive a successful write.
	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the target file, found %d entries", len(entries))
	}
}
