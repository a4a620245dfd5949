package sweep

// Stats is the aggregate outcome of one sweep.
type Stats struct {
	// Total counts every key under the cycle namespace, parseable or not.
	Total        int `json:"total"`
	DueOrOverdue int `json:"dueOrOverdue"`
	Eligible     int `json:"eligible"`
	Sent         int `json:"sent"`
	Emailed      int `json:"emailed"`
	MissingSub   int `json:"missingSub"`
	// Errors counts failed push sends, email sends and record writes.
	Errors int `json:"errors"`
}

func (s *Stats) add(o Stats) {
	s.Total += o.Total
	s.DueOrOverdue += o.DueOrOverdue
	s.Eligible += o.Eligible
	s.Sent += o.Sent
	s.Emailed += o.Emailed
	s.MissingSub += o.MissingSub
	s.Errors += o.Errors
}
