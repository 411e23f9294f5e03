package domain

import "time"

// Statistics are owned by the store; everything else only asks for increments.
type Statistics struct {
	TotalBlocked uint64            `json:"totalBlocked"`
	SitesBlocked map[string]uint64 `json:"sitesBlocked"`
	InstallDate  time.Time         `json:"installDate"`
}

// NewStatistics returns zeroed statistics stamped with the install time.
func NewStatistics(installed time.Time) Statistics {
	return Statistics{SitesBlocked: map[string]uint64{}, InstallDate: installed}
}

// Record counts one blocked navigation for host.
func (s *Statistics) Record(host string) {
	if s.SitesBlocked == nil {
		s.SitesBlocked = map[string]uint64{}
	}
	s.TotalBlocked++
	s.SitesBlocked[host]++
}

// Clone returns a deep copy safe to hand to callers.
func (s Statistics) Clone() Statistics {
	out := s
	out.SitesBlocked = make(map[string]uint64, len(s.SitesBlocked))
	for k, v := range s.SitesBlocked {
		out.SitesBlocked[k] = v
	}
	return out
}
