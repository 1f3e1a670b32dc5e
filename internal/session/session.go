// Package session tracks active deposit sessions.
//
// A session binds one user to one machine for a bounded window. The QR
// scan at the kiosk creates the session; the machine then resolves "who
// is standing here" through the binding when an item is inserted. Expiry
// is lazy: nothing sweeps the maps, a session is simply treated as gone
// once its deadline has passed and is removed on the next lookup.
package session

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// ErrMachineBusy is returned when a machine is already bound to a
// different user's active session.
var ErrMachineBusy = errors.New("session: machine in use by another user")

// DefaultTTL is the session lifetime applied when none is configured.
const DefaultTTL = 10 * time.Minute

// sessionShards spreads per-user locks so unrelated users never contend.
// Must be a power of two.
const sessionShards = 32

// Session is one user's active deposit window at a machine.
type Session struct {
	UserID    string    `json:"user_id"`
	MachineID string    `json:"machine_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager tracks active sessions and the machine-to-user bindings they
// create.
//
// Sessions are sharded by user ID so unrelated users never contend.
// The machine index is a single small map under its own lock, touched
// only where a binding is created, consulted, or released; per-user
// reads of a live session stay on the user's shard alone. When both
// locks are held at once, the machine lock is acquired first.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	ttl       time.Duration
	singleUse bool
	now       func() time.Time

	shards [sessionShards]sessionShard

	machineMu sync.Mutex
	machines  map[string]string // machine ID -> user ID
}

type sessionShard struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewManager creates a session manager. A TTL of zero or below falls
// back to DefaultTTL. When singleUse is set, a session ends as soon as
// one detection completes for its user.
func NewManager(ttl time.Duration, singleUse bool) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		ttl:       ttl,
		singleUse: singleUse,
		now:       time.Now,
		machines:  make(map[string]string),
	}
	for i := range m.shards {
		m.shards[i].sessions = make(map[string]Session)
	}
	return m
}

// shard returns the shard responsible for the given user.
func (m *Manager) shard(userID string) *sessionShard {
	h := fnv.New32a()
	h.Write([]byte(userID)) //nolint:errcheck // fnv Write never fails
	return &m.shards[h.Sum32()&(sessionShards-1)]
}

// PrepareInsert starts a session binding the user to the machine.
// Preparing again for the same user and machine is idempotent: the
// existing descriptor is returned unchanged, expiry included.
//
// Returns ErrMachineBusy when the machine is bound to a different user
// whose session has not expired.
func (m *Manager) PrepareInsert(userID, machineID string) (Session, error) {
	now := m.now()

	m.machineMu.Lock()
	defer m.machineMu.Unlock()

	if holder, ok := m.machines[machineID]; ok && holder != userID {
		if m.activeLocked(holder, now) {
			return Session{}, ErrMachineBusy
		}
		// Stale binding from an expired session; reclaim it.
		delete(m.machines, machineID)
	}

	s := m.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	// A retry while the session is live returns the existing descriptor
	// unchanged; expiry is fixed at creation and never extended.
	sess, ok := s.sessions[userID]
	if ok && now.Before(sess.ExpiresAt) && sess.MachineID == machineID {
		return sess, nil
	}

	// A user moving to a new machine abandons their old binding.
	if ok && sess.MachineID != machineID {
		if holder, bound := m.machines[sess.MachineID]; bound && holder == userID {
			delete(m.machines, sess.MachineID)
		}
	}

	sess = Session{
		UserID:    userID,
		MachineID: machineID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	s.sessions[userID] = sess
	m.machines[machineID] = userID
	return sess, nil
}

// activeLocked reports whether the user holds an unexpired session,
// removing it when expired. Caller must hold machineMu.
func (m *Manager) activeLocked(userID string, now time.Time) bool {
	s := m.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if !now.Before(sess.ExpiresAt) {
		delete(s.sessions, userID)
		return false
	}
	return true
}

// boundLocked reports whether the user's live session still claims the
// machine. Caller must hold machineMu.
func (m *Manager) boundLocked(userID, machineID string, now time.Time) bool {
	s := m.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	return ok && now.Before(sess.ExpiresAt) && sess.MachineID == machineID
}

// releaseBinding drops the machine's binding to the user unless the
// user's live session still claims that machine. Called after the
// user's shard lock has been released; re-checking under machineMu
// closes the window against a concurrent PrepareInsert rebinding the
// same machine.
func (m *Manager) releaseBinding(userID, machineID string, now time.Time) {
	m.machineMu.Lock()
	defer m.machineMu.Unlock()

	if holder, ok := m.machines[machineID]; !ok || holder != userID {
		return
	}
	if m.boundLocked(userID, machineID, now) {
		return
	}
	delete(m.machines, machineID)
}

// Get returns the user's session if it is still active, expiring it
// lazily otherwise. A live session is answered from the user's shard
// alone; the machine index lock is taken only to release the binding
// of an expired session.
func (m *Manager) Get(userID string) (Session, bool) {
	now := m.now()

	s := m.shard(userID)
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok && now.Before(sess.ExpiresAt) {
		s.mu.Unlock()
		return sess, true
	}
	if ok {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()

	if ok {
		m.releaseBinding(userID, sess.MachineID, now)
	}
	return Session{}, false
}

// IsActive reports whether the user holds an unexpired session.
func (m *Manager) IsActive(userID string) bool {
	_, ok := m.Get(userID)
	return ok
}

// ActiveUserForMachine returns the user bound to the machine, if that
// user's session is still active.
func (m *Manager) ActiveUserForMachine(machineID string) (string, bool) {
	now := m.now()

	m.machineMu.Lock()
	userID, ok := m.machines[machineID]
	m.machineMu.Unlock()
	if !ok {
		return "", false
	}

	if sess, active := m.Get(userID); active && sess.MachineID == machineID {
		return userID, true
	}
	m.releaseBinding(userID, machineID, now)
	return "", false
}

// End terminates the user's session. Ending an absent or already
// expired session is a no-op.
func (m *Manager) End(userID string) {
	s := m.shard(userID)
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if ok {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()

	if ok {
		m.releaseBinding(userID, sess.MachineID, m.now())
	}
}

// CompleteDetection is called after each detection finishes for a user.
// Under single-use policy the session ends immediately; otherwise it
// runs until its TTL or an explicit End.
func (m *Manager) CompleteDetection(userID string) {
	if m.singleUse {
		m.End(userID)
	}
}

// ActiveCount returns the number of unexpired sessions. Used by the
// health endpoint; expired entries still awaiting lazy removal are not
// counted.
func (m *Manager) ActiveCount() int {
	now := m.now()
	count := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for _, sess := range s.sessions {
			if now.Before(sess.ExpiresAt) {
				count++
			}
		}
		s.mu.Unlock()
	}
	return count
}
