package streaming

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Registry is the concurrency-safe record of session snapshots used for
// status reporting. It never hands out *Session values; the scheduler stays
// the only owner of live sessions.
type Registry interface {
	// Track records a newly admitted session in the queued state.
	Track(info SessionInfo)

	// Update replaces the snapshot of a tracked session. Moving to a
	// terminal state stamps RetiredAt; later updates are ignored. Unknown
	// IDs return ErrSessionNotFound.
	Update(info SessionInfo) error

	// Get returns the snapshot for id.
	Get(id SessionID) (SessionInfo, bool)

	// List returns all snapshots ordered by admission time.
	List() []SessionInfo

	// Counts returns the number of sessions in each state.
	Counts() map[State]int
}

// ErrSessionNotFound is returned for IDs the registry does not know.
var ErrSessionNotFound = errors.New("session not found")

// DefaultRetainRetired is how many retired sessions a registry keeps.
const DefaultRetainRetired = 256

// InMemoryRegistry is a concurrency-safe Registry backed by a Store. Finished
// sessions beyond the retention limit are evicted oldest first.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	store   Store
	retain  int
	retired []SessionID
}

// NewInMemoryRegistry constructs a registry with a default in-memory store.
func NewInMemoryRegistry() *InMemoryRegistry {
	return NewInMemoryRegistryWithStore(NewInMemoryStore(), DefaultRetainRetired)
}

// NewInMemoryRegistryWithStore constructs a registry on the given Store.
// retain <= 0 uses DefaultRetainRetired.
func NewInMemoryRegistryWithStore(store Store, retain int) *InMemoryRegistry {
	if retain <= 0 {
		retain = DefaultRetainRetired
	}
	return &InMemoryRegistry{store: store, retain: retain}
}

// Track implements Registry.Track.
func (r *InMemoryRegistry) Track(info SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info.State = StateQueued
	r.store.SetSession(info)
}

// Update implements Registry.Update.
func (r *InMemoryRegistry) Update(info SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.store.GetSession(info.ID)
	if !ok {
		return ErrSessionNotFound
	}
	if prev.State.Terminal() {
		return nil
	}

	if info.State.Terminal() {
		if info.RetiredAt.IsZero() {
			info.RetiredAt = time.Now().UTC()
		}
		r.retired = append(r.retired, info.ID)
	}
	r.store.SetSession(info)
	r.evictLocked()
	return nil
}

// Get implements Registry.Get.
func (r *InMemoryRegistry) Get(id SessionID) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetSession(id)
}

// List implements Registry.List.
func (r *InMemoryRegistry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.ListSessionIDs()
	out := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := r.store.GetSession(id); ok {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AdmittedAt.Equal(out[j].AdmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AdmittedAt.Before(out[j].AdmittedAt)
	})
	return out
}

// Counts implements Registry.Counts.
func (r *InMemoryRegistry) Counts() map[State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[State]int{StateQueued: 0, StateDispatching: 0, StateRetired: 0, StateAborted: 0}
	for _, id := range r.store.ListSessionIDs() {
		if info, ok := r.store.GetSession(id); ok {
			counts[info.State]++
		}
	}
	return counts
}

// evictLocked drops the oldest retired sessions over the retention limit.
// Caller must hold r.mu in write mode.
func (r *InMemoryRegistry) evictLocked() {
	for len(r.retired) > r.retain {
		r.store.DeleteSession(r.retired[0])
		r.retired = r.retired[1:]
	}
}
