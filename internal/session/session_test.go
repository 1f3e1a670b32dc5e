package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// newTestManager returns a manager with a controllable clock.
func newTestManager(ttl time.Duration, singleUse bool) (*Manager, *time.Time) {
	m := NewManager(ttl, singleUse)
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestManager_PrepareInsert(t *testing.T) {
	m, _ := newTestManager(10*time.Minute, false)

	sess, err := m.PrepareInsert("user-1", "machine-1")
	if err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}
	if sess.UserID != "user-1" || sess.MachineID != "machine-1" {
		t.Errorf("session = %+v", sess)
	}
	if want := sess.CreatedAt.Add(10 * time.Minute); !sess.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", sess.ExpiresAt, want)
	}

	if !m.IsActive("user-1") {
		t.Error("session should be active after PrepareInsert")
	}
	if user, ok := m.ActiveUserForMachine("machine-1"); !ok || user != "user-1" {
		t.Errorf("ActiveUserForMachine() = %q, %v", user, ok)
	}
}

func TestManager_PrepareInsert_IdempotentRepeat(t *testing.T) {
	m, now := newTestManager(10*time.Minute, false)

	first, err := m.PrepareInsert("user-1", "machine-1")
	if err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}

	*now = now.Add(3 * time.Minute)
	second, err := m.PrepareInsert("user-1", "machine-1")
	if err != nil {
		t.Fatalf("repeat PrepareInsert() error: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("repeat prepare should keep the original session")
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Error("repeat prepare must not extend the expiry")
	}
}

func TestManager_PrepareInsert_MachineBusy(t *testing.T) {
	m, _ := newTestManager(10*time.Minute, false)

	if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}

	_, err := m.PrepareInsert("user-2", "machine-1")
	if !errors.Is(err, ErrMachineBusy) {
		t.Errorf("PrepareInsert() error = %v, want ErrMachineBusy", err)
	}
}

func TestManager_PrepareInsert_ReclaimsExpiredBinding(t *testing.T) {
	m, now := newTestManager(10*time.Minute, false)

	if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}

	*now = now.Add(11 * time.Minute)
	if _, err := m.PrepareInsert("user-2", "machine-1"); err != nil {
		t.Errorf("machine should be free after holder expired: %v", err)
	}
	if user, ok := m.ActiveUserForMachine("machine-1"); !ok || user != "user-2" {
		t.Errorf("ActiveUserForMachine() = %q, %v", user, ok)
	}
}

func TestManager_PrepareInsert_MovingMachinesReleasesOldBinding(t *testing.T) {
	m, _ := newTestManager(10*time.Minute, false)

	if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}
	if _, err := m.PrepareInsert("user-1", "machine-2"); err != nil {
		t.Fatalf("PrepareInsert() on second machine error: %v", err)
	}

	if _, ok := m.ActiveUserForMachine("machine-1"); ok {
		t.Error("old machine binding should be released")
	}
	if user, ok := m.ActiveUserForMachine("machine-2"); !ok || user != "user-1" {
		t.Errorf("ActiveUserForMachine(machine-2) = %q, %v", user, ok)
	}
}

func TestManager_LazyExpiry(t *testing.T) {
	m, now := newTestManager(10*time.Minute, false)

	if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}

	*now = now.Add(10 * time.Minute)
	if m.IsActive("user-1") {
		t.Error("session should be expired at exactly TTL")
	}
	if _, ok := m.ActiveUserForMachine("machine-1"); ok {
		t.Error("machine binding should expire with the session")
	}
	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManager_End(t *testing.T) {
	m, _ := newTestManager(10*time.Minute, false)

	// Ending an absent session is a no-op.
	m.End("user-1")

	if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}
	m.End("user-1")

	if m.IsActive("user-1") {
		t.Error("session should be gone after End")
	}
	if _, ok := m.ActiveUserForMachine("machine-1"); ok {
		t.Error("machine binding should be gone after End")
	}
}

func TestManager_CompleteDetection(t *testing.T) {
	t.Run("single use ends session", func(t *testing.T) {
		m, _ := newTestManager(10*time.Minute, true)
		if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
			t.Fatalf("PrepareInsert() error: %v", err)
		}
		m.CompleteDetection("user-1")
		if m.IsActive("user-1") {
			t.Error("single-use session should end after detection")
		}
	})

	t.Run("persistent session survives", func(t *testing.T) {
		m, _ := newTestManager(10*time.Minute, false)
		if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
			t.Fatalf("PrepareInsert() error: %v", err)
		}
		m.CompleteDetection("user-1")
		if !m.IsActive("user-1") {
			t.Error("persistent session should survive a detection")
		}
	})
}

func TestManager_ConcurrentPrepareInsert(t *testing.T) {
	m := NewManager(10*time.Minute, false)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent PrepareInsert() error: %v", err)
	}
	if m.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", m.ActiveCount())
	}
}

func TestManager_LiveReadsSkipMachineIndexLock(t *testing.T) {
	m, _ := newTestManager(10*time.Minute, false)

	if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}

	// A reader holding a live session must be answered from its shard
	// alone, even while the machine index lock is held elsewhere.
	m.machineMu.Lock()
	defer m.machineMu.Unlock()

	done := make(chan bool, 1)
	go func() {
		_, ok := m.Get("user-1")
		done <- ok
	}()

	select {
	case ok := <-done:
		if !ok {
			t.Error("Get() = false, want active session")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Get() blocked on the machine index lock")
	}
}

func TestManager_ExpiredGetReleasesBinding(t *testing.T) {
	m, now := newTestManager(10*time.Minute, false)

	if _, err := m.PrepareInsert("user-1", "machine-1"); err != nil {
		t.Fatalf("PrepareInsert() error: %v", err)
	}

	*now = now.Add(10 * time.Minute)
	if _, ok := m.Get("user-1"); ok {
		t.Fatal("session should be expired")
	}

	m.machineMu.Lock()
	_, bound := m.machines["machine-1"]
	m.machineMu.Unlock()
	if bound {
		t.Error("expired session's machine binding should be released")
	}

	if _, err := m.PrepareInsert("user-2", "machine-1"); err != nil {
		t.Errorf("machine should be free for the next user: %v", err)
	}
}

func TestManager_ConcurrentMixedUsers(t *testing.T) {
	m := NewManager(10*time.Minute, false)

	users := []string{"user-a", "user-b", "user-c", "user-d"}
	var wg sync.WaitGroup
	for i, u := range users {
		u := u
		machine := fmt.Sprintf("machine-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := m.PrepareInsert(u, machine); err != nil {
					t.Errorf("PrepareInsert(%s) error: %v", u, err)
					return
				}
				m.IsActive(u)
				m.ActiveUserForMachine(machine)
				m.End(u)
			}
		}()
	}
	wg.Wait()

	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestNewManager_DefaultTTL(t *testing.T) {
	m := NewManager(0, false)
	if m.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", m.ttl, DefaultTTL)
	}
}
