package detection

import (
	"hash/fnv"
	"sync"
)

// History limits.
const (
	// DefaultHistoryCap is how many recent detections are kept per user.
	DefaultHistoryCap = 5

	// historyShards spreads per-user locks so unrelated users never
	// contend. Must be a power of two.
	historyShards = 32
)

// History is a bounded, newest-first, per-user log of detection outcomes.
//
// Entries never outlive the process. The map is sharded by user ID so
// concurrent appends for different users don't serialise on one lock.
//
// Thread Safety: all methods are safe for concurrent use.
type History struct {
	cap    int
	shards [historyShards]historyShard
}

type historyShard struct {
	mu      sync.RWMutex
	entries map[string][]HistoryEntry
}

// NewHistory creates a history store keeping at most cap entries per user.
// A cap of zero or below falls back to DefaultHistoryCap.
func NewHistory(cap int) *History {
	if cap <= 0 {
		cap = DefaultHistoryCap
	}
	h := &History{cap: cap}
	for i := range h.shards {
		h.shards[i].entries = make(map[string][]HistoryEntry)
	}
	return h
}

// shard returns the shard responsible for the given user.
func (h *History) shard(userID string) *historyShard {
	hash := fnv.New32a()
	hash.Write([]byte(userID)) //nolint:errcheck // fnv Write never fails
	return &h.shards[hash.Sum32()&(historyShards-1)]
}

// Append records an entry as the user's most recent detection, evicting
// the oldest entry once the cap is exceeded.
func (h *History) Append(userID string, entry HistoryEntry) {
	s := h.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.entries[userID]
	// Newest first; re-slice before append to avoid sharing backing arrays
	// between the stored slice and returned copies.
	updated := make([]HistoryEntry, 0, len(entries)+1)
	updated = append(updated, entry)
	updated = append(updated, entries...)
	if len(updated) > h.cap {
		updated = updated[:h.cap]
	}
	s.entries[userID] = updated
}

// Recent returns the user's detection history, newest first.
// The returned slice is a copy and safe to retain.
func (h *History) Recent(userID string) []HistoryEntry {
	s := h.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[userID]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// Clear removes the user's history. Used when an operator resets a kiosk
// display; detection records in the ledger are unaffected.
func (h *History) Clear(userID string) {
	s := h.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}
