package streaming

import (
	"slices"
	"testing"
)

func TestInMemoryStore_GetSetSession(t *testing.T) {
	store := NewInMemoryStore()

	if _, ok := store.GetSession("s1"); ok {
		t.Error("expected not found for empty store")
	}

	store.SetSession(SessionInfo{ID: "s1", Sent: 1})
	store.SetSession(SessionInfo{ID: "s1", Sent: 2})

	got, ok := store.GetSession("s1")
	if !ok || got.Sent != 2 {
		t.Errorf("GetSession: ok=%v sent=%d, want replaced snapshot", ok, got.Sent)
	}
}

func TestInMemoryStore_DeleteAndList(t *testing.T) {
	store := NewInMemoryStore()
	store.SetSession(SessionInfo{ID: "a"})
	store.SetSession(SessionInfo{ID: "b"})
	store.DeleteSession("a")
	store.DeleteSession("missing")

	ids := store.ListSessionIDs()
	if len(ids) != 1 || !slices.Contains(ids, SessionID("b")) {
		t.Errorf("ListSessionIDs = %v, want [b]", ids)
	}
}
