package syncer

// Status is a point-in-time view of the synchronizer.
type Status struct {
	Stage      Stage   `json:"stage"`
	TaskID     string  `json:"taskId,omitempty"`
	Cycles     int     `json:"cycles"`
	LastError  string  `json:"lastError,omitempty"`
	LastReport *Report `json:"lastReport,omitempty"`
}

// Status returns a copy of the current status.
func (s *Synchronizer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.LastReport != nil {
		r := *st.LastReport
		st.LastReport = &r
	}
	return st
}

func (s *Synchronizer) setStage(stage Stage) {
	s.mu.Lock()
	s.status.Stage = stage
	s.mu.Unlock()
}
