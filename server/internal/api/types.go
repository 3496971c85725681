package api

import "github.com/focustrack/focustrack/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	ReportCount int    `json:"report_count"`
	Clients     int    `json:"stream_clients"`
}

// IntervalPayload is one interval in POST /api/v1/focus/intervals.
// A missing End falls back to Start.
type IntervalPayload struct {
	Start       int64   `json:"start"`
	End         *int64  `json:"end"`
	DurationSec int     `json:"durationSec"`
	AvgScore    float64 `json:"avgScore"`
}

// SessionPayload is the body of POST /api/v1/focus/intervals.
type SessionPayload struct {
	SessionID        string            `json:"sessionId,omitempty"`
	UserID           string            `json:"userId"`
	ClassID          int64             `json:"classId"`
	CourseID         int64             `json:"courseId"`
	StartedAt        *int64            `json:"startedAt"`
	EndedAt          *int64            `json:"endedAt"`
	TotalDurationSec int               `json:"totalDurationSec"`
	Intervals        []IntervalPayload `json:"intervals"`
}

// SaveResponse is returned by POST /api/v1/focus/intervals.
type SaveResponse struct {
	AnalyticsID int64  `json:"analyticsId"`
	SessionID   string `json:"sessionId"`
}

// SessionResponse is one entry of GET /api/v1/focus/sessions.
type SessionResponse struct {
	*types.SessionReport
	StoredAt     string    `json:"storedAt"` // RFC3339
	UnfocusedSec int       `json:"unfocusedSec"`
	Insights     []Insight `json:"insights"`
}

// OverlapRequest is the body of POST /api/v1/focus/overlaps. Cues are in
// session-relative milliseconds.
type OverlapRequest struct {
	Learner  string        `json:"learner"`
	ClassID  int64         `json:"class_id"`
	CourseID int64         `json:"course_id"`
	Cues     []types.Range `json:"cues"`
}

// OverlapResponse flags each cue that overlaps an unfocused range of the
// subject's latest session. Flags[i] belongs to the i-th cue.
type OverlapResponse struct {
	Ranges []types.Range `json:"ranges"`
	Flags  []bool        `json:"flags"`
}

// errorResponse is the JSON body for error responses.
type errorResponse struct {
	Error string `json:"error"`
}
