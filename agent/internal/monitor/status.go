package monitor

import (
	"time"

	"github.com/focustrack/focustrack/pkg/types"
)

// Status is a point-in-time view of the Monitor for the control API.
type Status struct {
	State     string            `json:"state"`
	SessionID string            `json:"session_id,omitempty"`
	Subject   *types.SubjectRef `json:"subject,omitempty"`
	StartedAt *time.Time        `json:"started_at,omitempty"`

	ElapsedSec    int        `json:"elapsed_sec"`
	Ticks         int        `json:"ticks"`
	SkippedTicks  int        `json:"skipped_ticks"`
	LastScore     *float64   `json:"last_score,omitempty"`
	LowSince      *time.Time `json:"low_since,omitempty"`
	KeptIntervals int        `json:"kept_intervals"`

	Policy     PolicyStatus         `json:"policy"`
	LastReport *types.SessionReport `json:"last_report,omitempty"`
}

// PolicyStatus is Policy in JSON-friendly units.
type PolicyStatus struct {
	SamplingIntervalSec float64 `json:"sampling_interval_sec"`
	Threshold           float64 `json:"threshold"`
	MinSaveSec          float64 `json:"min_save_sec"`
}

func policyStatus(p Policy) PolicyStatus {
	return PolicyStatus{
		SamplingIntervalSec: p.SamplingInterval.Seconds(),
		Threshold:           p.Threshold,
		MinSaveSec:          p.MinSave.Seconds(),
	}
}

// Status returns the current state. For an idle Monitor Policy is the one
// the next session will use and LastReport is the previous session's report.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.state.String(), LastReport: m.last}
	s := m.cur
	if m.state == StateIdle || s == nil {
		st.Policy = policyStatus(m.policy)
		return st
	}

	subject := s.subject
	started := s.startedAt
	st.SessionID = s.id
	st.Subject = &subject
	st.StartedAt = &started
	st.ElapsedSec = int(m.now().Sub(s.startedAt).Seconds())
	st.Ticks = s.ticks
	st.SkippedTicks = s.skipped
	st.KeptIntervals = s.kept
	st.Policy = policyStatus(s.policy)
	if s.lastScore != nil {
		v := *s.lastScore
		st.LastScore = &v
	}
	if s.lowSince != nil {
		v := *s.lowSince
		st.LowSince = &v
	}
	return st
}
