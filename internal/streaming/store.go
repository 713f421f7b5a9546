package streaming

// Store is the persistence abstraction for session snapshots.
// The Registry serializes access; a Store need not be safe for concurrent use.
type Store interface {
	GetSession(id SessionID) (SessionInfo, bool)
	SetSession(info SessionInfo)
	DeleteSession(id SessionID)
	ListSessionIDs() []SessionID
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	sessions map[SessionID]SessionInfo
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[SessionID]SessionInfo),
	}
}

// GetSession implements Store.GetSession.
func (s *InMemoryStore) GetSession(id SessionID) (SessionInfo, bool) {
	info, ok := s.sessions[id]
	return info, ok
}

// SetSession implements Store.SetSession.
func (s *InMemoryStore) SetSession(info SessionInfo) {
	s.sessions[info.ID] = info
}

// DeleteSession implements Store.DeleteSession.
func (s *InMemoryStore) DeleteSession(id SessionID) {
	delete(s.sessions, id)
}

// ListSessionIDs implements Store.ListSessionIDs.
func (s *InMemoryStore) ListSessionIDs() []SessionID {
	ids := make([]SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
