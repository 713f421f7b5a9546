package streaming

// Summary aggregates the registry for the status endpoint.
type Summary struct {
	Policy   Policy        `json:"policy"`
	Quantum  int           `json:"quantum,omitempty"`
	Queued   int           `json:"queue_length"`
	Counts   map[State]int `json:"counts"`
	Sessions []SessionInfo `json:"sessions"`
}

// Service answers status queries about admitted sessions. It only reads
// snapshots and never touches live sessions.
type Service struct {
	registry Registry
	queue    *Queue
	cfg      SchedulerConfig
}

// NewService returns a Service reading from registry and queue.
func NewService(registry Registry, queue *Queue, cfg SchedulerConfig) *Service {
	return &Service{registry: registry, queue: queue, cfg: cfg}
}

// Summary returns every tracked session plus per-state counts.
func (s *Service) Summary() Summary {
	sum := Summary{
		Policy:   s.cfg.Policy,
		Counts:   s.registry.Counts(),
		Sessions: s.registry.List(),
	}
	if s.cfg.Policy == PolicyRR {
		sum.Quantum = s.cfg.Quantum
	}
	if s.queue != nil {
		sum.Queued = s.queue.Len()
	}
	return sum
}

// Session returns the snapshot for id.
func (s *Service) Session(id SessionID) (SessionInfo, error) {
	info, ok := s.registry.Get(id)
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return info, nil
}

// QueueLength returns the number of sessions waiting for dispatch.
func (s *Service) QueueLength() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}

// ActiveSessions returns the number of sessions not yet retired or aborted.
func (s *Service) ActiveSessions() int {
	c := s.registry.Counts()
	return c[StateQueued] + c[StateDispatching]
}
