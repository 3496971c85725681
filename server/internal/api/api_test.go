package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/focustrack/focustrack/pkg/types"
	"github.com/focustrack/focustrack/server/internal/api"
	"github.com/focustrack/focustrack/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

const subjectQuery = "learner=ana&class_id=1&course_id=2"

var subject = types.SubjectRef{Learner: "ana", ClassID: 1, CourseID: 2}

type fakeStream struct {
	mu     sync.Mutex
	events []string
}

func (s *fakeStream) Publish(event string, _ interface{}) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *fakeStream) Count() int { return 2 }

type brokenStore struct{}

func (brokenStore) Submit(context.Context, *types.SessionReport) (*store.Record, error) {
	return nil, errors.New("disk full")
}
func (brokenStore) Latest(context.Context, types.SubjectRef) (*store.Record, error) {
	return nil, errors.New("disk full")
}
func (brokenStore) List(context.Context, types.SubjectRef, int) ([]*store.Record, error) {
	return nil, errors.New("disk full")
}
func (brokenStore) Count(context.Context) (int, error) { return 0, errors.New("disk full") }

func newStore(t *testing.T, reports ...*types.SessionReport) *store.Store {
	t.Helper()
	st, err := store.Open(store.MemoryPath, 0)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	for _, r := range reports {
		if _, err := st.Submit(context.Background(), r); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	return st
}

func report(id string, startedAt int64, ivs ...types.IntervalSummary) *types.SessionReport {
	return &types.SessionReport{
		SessionID:        id,
		Subject:          subject,
		StartedAtMs:      startedAt,
		EndedAtMs:        startedAt + 600_000,
		TotalDurationSec: 600,
		Intervals:        ivs,
	}
}

func iv(start, end int64, avg float64) types.IntervalSummary {
	return types.IntervalSummary{Start: start, End: end, DurationSec: int((end - start) / 1000), AvgScore: avg}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	h := api.New(newStore(t, report("s-1", 1_000_000)), &fakeStream{})
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.ReportCount != 1 || resp.Clients != 2 {
		t.Errorf("health: got %+v", resp)
	}
}

func TestHealth_StoreDown(t *testing.T) {
	rr := get(t, api.New(brokenStore{}, nil), "/api/v1/health")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}
}

// --- POST /api/v1/focus/intervals -------------------------------------------

func TestSaveIntervals(t *testing.T) {
	st := newStore(t)
	stream := &fakeStream{}
	h := api.New(st, stream)

	body := `{"classId":1,"courseId":2,"userId":"ana","startedAt":1000000,"endedAt":1043000,
		"totalDurationSec":43,"intervals":[{"start":1005000,"end":1020000,"durationSec":15,"avgScore":0.41},
		{"start":1030000,"durationSec":0,"avgScore":0.5}]}`
	rr := post(t, h, "/api/v1/focus/intervals", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var resp api.SaveResponse
	decode(t, rr, &resp)
	if resp.AnalyticsID == 0 || resp.SessionID == "" {
		t.Errorf("save response: got %+v", resp)
	}

	rec, err := st.Latest(context.Background(), subject)
	if err != nil || rec == nil {
		t.Fatalf("Latest: %v, %v", rec, err)
	}
	if len(rec.Report.Intervals) != 2 {
		t.Fatalf("intervals: got %d, want 2", len(rec.Report.Intervals))
	}
	if got := rec.Report.Intervals[1]; got.End != got.Start {
		t.Errorf("missing end should fall back to start, got %+v", got)
	}
	if len(stream.events) != 1 || stream.events[0] != "report.stored" {
		t.Errorf("published: got %v", stream.events)
	}
}

func TestSaveIntervals_MissingEndedAt(t *testing.T) {
	st := newStore(t)
	h := api.New(st, nil)

	rr := post(t, h, "/api/v1/focus/intervals",
		`{"classId":1,"courseId":2,"userId":"ana","startedAt":1000,"intervals":[{"start":5000,"end":20000,"durationSec":15,"avgScore":0.4}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	rec, _ := st.Latest(context.Background(), subject)
	if rec.Report.EndedAtMs != 20000 {
		t.Errorf("endedAt: got %d, want 20000", rec.Report.EndedAtMs)
	}
}

func TestSaveIntervals_BadRequests(t *testing.T) {
	h := api.New(newStore(t), nil)
	cases := map[string]string{
		"bad json":          `{`,
		"missing class":     `{"courseId":2,"userId":"ana","startedAt":1,"endedAt":2}`,
		"missing user":      `{"classId":1,"courseId":2,"startedAt":1,"endedAt":2}`,
		"inverted window":   `{"classId":1,"courseId":2,"userId":"ana","startedAt":5,"endedAt":2}`,
		"inverted interval": `{"classId":1,"courseId":2,"userId":"ana","startedAt":1,"endedAt":90,"intervals":[{"start":50,"end":10}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if rr := post(t, h, "/api/v1/focus/intervals", body); rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}

func TestSaveIntervals_StoreFailure(t *testing.T) {
	rr := post(t, api.New(brokenStore{}, nil), "/api/v1/focus/intervals",
		`{"classId":1,"courseId":2,"userId":"ana","startedAt":1,"endedAt":2}`)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
}

// --- GET /api/v1/focus/intervals/latest -------------------------------------

func TestLatest(t *testing.T) {
	st := newStore(t,
		report("old", 1_000_000, iv(1_005_000, 1_020_000, 0.4)),
		report("new", 2_000_000, iv(2_030_000, 2_050_000, 0.3)),
	)
	rr := get(t, api.New(st, nil), "/api/v1/focus/intervals/latest?"+subjectQuery)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var got types.SessionReport
	decode(t, rr, &got)
	if got.SessionID != "new" || got.StartedAtMs != 2_000_000 {
		t.Errorf("latest: got %s startedAt %d", got.SessionID, got.StartedAtMs)
	}
}

func TestLatest_StartedAtFallback(t *testing.T) {
	r := report("s-1", 0, iv(7_000, 9_000, 0.4), iv(3_000, 5_000, 0.2))
	r.EndedAtMs = 10_000
	rr := get(t, api.New(newStore(t, r), nil), "/api/v1/focus/intervals/latest?"+subjectQuery)

	var got types.SessionReport
	decode(t, rr, &got)
	if got.StartedAtMs != 3_000 {
		t.Errorf("startedAt: got %d, want earliest interval start 3000", got.StartedAtMs)
	}
}

func TestLatest_NoContent(t *testing.T) {
	cases := map[string]*store.Store{
		"no report":           newStore(t),
		"report no intervals": newStore(t, report("s-1", 1_000_000)),
	}
	for name, st := range cases {
		t.Run(name, func(t *testing.T) {
			rr := get(t, api.New(st, nil), "/api/v1/focus/intervals/latest?"+subjectQuery)
			if rr.Code != http.StatusNoContent {
				t.Errorf("status: got %d, want 204", rr.Code)
			}
			if rr.Body.Len() != 0 {
				t.Errorf("body: got %q, want empty", rr.Body.String())
			}
		})
	}
}

func TestLatest_BadSubject(t *testing.T) {
	h := api.New(newStore(t), nil)
	for _, q := range []string{"", "learner=ana&class_id=x&course_id=2", "learner=ana&class_id=1"} {
		if rr := get(t, h, "/api/v1/focus/intervals/latest?"+q); rr.Code != http.StatusBadRequest {
			t.Errorf("query %q: got %d, want 400", q, rr.Code)
		}
	}
}

// --- GET /api/v1/focus/sessions ---------------------------------------------

func TestSessions(t *testing.T) {
	st := newStore(t,
		report("calm", 1_000_000),
		report("rough", 2_000_000,
			iv(2_010_000, 2_160_000, 0.1), // 150s
			iv(2_200_000, 2_400_000, 0.4), // 200s
		),
	)
	rr := get(t, api.New(st, nil), "/api/v1/focus/sessions?"+subjectQuery)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var got []api.SessionResponse
	decode(t, rr, &got)
	if len(got) != 2 {
		t.Fatalf("sessions: got %d, want 2", len(got))
	}
	if got[0].SessionID != "rough" || got[1].SessionID != "calm" {
		t.Errorf("order: got %s, %s", got[0].SessionID, got[1].SessionID)
	}
	if got[0].UnfocusedSec != 350 {
		t.Errorf("unfocusedSec: got %d, want 350", got[0].UnfocusedSec)
	}

	keys := map[string]string{}
	for _, in := range got[0].Insights {
		keys[in.Key] = in.Level
	}
	if keys["mostly_unfocused"] != "critical" || keys["long_lapse"] != "warning" || keys["very_low_attention"] != "info" {
		t.Errorf("insights: got %v", keys)
	}
	if got[0].Insights[0].Level != "critical" {
		t.Errorf("insights should be ordered critical first, got %+v", got[0].Insights)
	}
	if len(got[1].Insights) != 1 || got[1].Insights[0].Key != "focused_throughout" {
		t.Errorf("calm session insights: got %+v", got[1].Insights)
	}
}

func TestSessions_Limit(t *testing.T) {
	st := newStore(t, report("a", 1_000), report("b", 2_000), report("c", 3_000))
	h := api.New(st, nil)

	var got []api.SessionResponse
	decode(t, get(t, h, "/api/v1/focus/sessions?"+subjectQuery+"&limit=2"), &got)
	if len(got) != 2 {
		t.Errorf("limit=2: got %d sessions", len(got))
	}
	if rr := get(t, h, "/api/v1/focus/sessions?"+subjectQuery+"&limit=-1"); rr.Code != http.StatusBadRequest {
		t.Errorf("negative limit: got %d, want 400", rr.Code)
	}
}

func TestSessions_Empty(t *testing.T) {
	rr := get(t, api.New(newStore(t), nil), "/api/v1/focus/sessions?"+subjectQuery)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body: got %q, want []", rr.Body.String())
	}
}

// --- POST /api/v1/focus/overlaps --------------------------------------------

func TestOverlaps(t *testing.T) {
	st := newStore(t, report("s-1", 1_000_000,
		iv(1_005_000, 1_020_000, 0.4),
		iv(1_020_001, 1_025_000, 0.3), // merges with the previous one
		iv(1_060_000, 1_070_000, 0.2),
	))
	body := `{"learner":"ana","class_id":1,"course_id":2,"cues":[
		{"start":0,"end":4000},{"start":3000,"end":6000},{"start":30000,"end":50000},{"start":70000,"end":60000}]}`
	rr := post(t, api.New(st, nil), "/api/v1/focus/overlaps", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}

	var got api.OverlapResponse
	decode(t, rr, &got)
	wantRanges := []types.Range{{Start: 5_000, End: 25_000}, {Start: 60_000, End: 70_000}}
	if len(got.Ranges) != len(wantRanges) {
		t.Fatalf("ranges: got %+v, want %+v", got.Ranges, wantRanges)
	}
	for i := range wantRanges {
		if got.Ranges[i] != wantRanges[i] {
			t.Errorf("ranges[%d]: got %+v, want %+v", i, got.Ranges[i], wantRanges[i])
		}
	}
	wantFlags := []bool{false, true, false, true}
	for i, f := range wantFlags {
		if got.Flags[i] != f {
			t.Errorf("flags[%d]: got %v, want %v", i, got.Flags[i], f)
		}
	}
}

func TestOverlaps_NoPriorSession(t *testing.T) {
	body := `{"learner":"ana","class_id":1,"course_id":2,"cues":[{"start":0,"end":1000}]}`
	for name, st := range map[string]api.Store{"empty": newStore(t), "store down": brokenStore{}} {
		t.Run(name, func(t *testing.T) {
			rr := post(t, api.New(st, nil), "/api/v1/focus/overlaps", body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d, want 200", rr.Code)
			}
			var got api.OverlapResponse
			decode(t, rr, &got)
			if len(got.Ranges) != 0 || len(got.Flags) != 1 || got.Flags[0] {
				t.Errorf("got %+v, want no ranges and one false flag", got)
			}
		})
	}
}

func TestOverlaps_BadSubject(t *testing.T) {
	rr := post(t, api.New(newStore(t), nil), "/api/v1/focus/overlaps", `{"learner":"","cues":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

// --- method checks ----------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	h := api.New(newStore(t), nil)
	cases := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/health"},
		{http.MethodGet, "/api/v1/focus/intervals"},
		{http.MethodPost, "/api/v1/focus/intervals/latest"},
		{http.MethodDelete, "/api/v1/focus/sessions"},
		{http.MethodGet, "/api/v1/focus/overlaps"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: got %d, want 405", tc.method, tc.path, rr.Code)
		}
	}
}
