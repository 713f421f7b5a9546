package streaming

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestInMemoryRegistry_lifecycle(t *testing.T) {
	reg := NewInMemoryRegistry()
	s := NewTCPSession(nil, "480p")

	reg.Track(s.info(StateDispatching))
	got, ok := reg.Get(s.ID)
	if !ok || got.State != StateQueued {
		t.Fatalf("Track: ok=%v state=%s, want queued", ok, got.State)
	}

	s.Sent = 50
	if err := reg.Update(s.info(StateRetired)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = reg.Get(s.ID)
	if got.State != StateRetired || got.Sent != 50 || got.RetiredAt.IsZero() {
		t.Errorf("after retire: %+v", got)
	}

	if err := reg.Update(s.info(StateQueued)); err != nil {
		t.Fatalf("Update after retire: %v", err)
	}
	if got, _ := reg.Get(s.ID); got.State != StateRetired {
		t.Errorf("retired session moved to %s", got.State)
	}
}

func TestInMemoryRegistry_update_unknown(t *testing.T) {
	reg := NewInMemoryRegistry()
	err := reg.Update(SessionInfo{ID: "nope", State: StateDispatching})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
}

func TestInMemoryRegistry_list_and_counts(t *testing.T) {
	reg := NewInMemoryRegistry()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []SessionID{"c", "a", "b"} {
		reg.Track(SessionInfo{ID: id, AdmittedAt: base.Add(time.Duration(i) * time.Second)})
	}
	_ = reg.Update(SessionInfo{ID: "a", State: StateDispatching, AdmittedAt: base.Add(time.Second)})
	_ = reg.Update(SessionInfo{ID: "b", State: StateAborted, AdmittedAt: base.Add(2 * time.Second)})

	list := reg.List()
	var order []SessionID
	for _, info := range list {
		order = append(order, info.ID)
	}
	if fmt.Sprint(order) != "[c a b]" {
		t.Errorf("List order = %v, want [c a b]", order)
	}

	counts := reg.Counts()
	want := map[State]int{StateQueued: 1, StateDispatching: 1, StateRetired: 0, StateAborted: 1}
	for state, n := range want {
		if counts[state] != n {
			t.Errorf("Counts[%s] = %d, want %d", state, counts[state], n)
		}
	}
}

func TestInMemoryRegistry_evicts_oldest_finished(t *testing.T) {
	reg := NewInMemoryRegistryWithStore(NewInMemoryStore(), 2)
	for i := range 3 {
		id := SessionID(fmt.Sprintf("s%d", i))
		reg.Track(SessionInfo{ID: id})
		if err := reg.Update(SessionInfo{ID: id, State: StateRetired}); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := reg.Get("s0"); ok {
		t.Error("oldest retired session should have been evicted")
	}
	for _, id := range []SessionID{"s1", "s2"} {
		if _, ok := reg.Get(id); !ok {
			t.Errorf("%s evicted too early", id)
		}
	}
}
