package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/focustrack/focustrack/pkg/intervals"
	"github.com/focustrack/focustrack/pkg/types"
	"github.com/focustrack/focustrack/server/internal/store"
	"github.com/focustrack/focustrack/server/internal/ws"
)

const maxBodyBytes = 1 << 20

// Store is the report persistence the API reads from and writes to.
type Store interface {
	Submit(ctx context.Context, r *types.SessionReport) (*store.Record, error)
	Latest(ctx context.Context, subject types.SubjectRef) (*store.Record, error)
	List(ctx context.Context, subject types.SubjectRef, limit int) ([]*store.Record, error)
	Count(ctx context.Context) (int, error)
}

// Stream is the push channel stored reports are published to.
type Stream interface {
	Publish(event string, data interface{})
	Count() int
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store  Store
	stream Stream
	mux    *http.ServeMux
}

// New creates a Handler wired to the given report store and registers all
// routes. stream may be nil.
func New(st Store, stream Stream) http.Handler {
	h := &Handler{store: st, stream: stream, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/focus/intervals", h.saveIntervals)
	h.mux.HandleFunc("/api/v1/focus/intervals/latest", h.latest)
	h.mux.HandleFunc("/api/v1/focus/sessions", h.sessions)
	h.mux.HandleFunc("/api/v1/focus/overlaps", h.overlaps)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, err := h.store.Count(r.Context())
	if err != nil {
		slog.Error("api: count reports", "err", err)
		jsonResp(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	resp := HealthResponse{Status: "ok", ReportCount: n}
	if h.stream != nil {
		resp.Clients = h.stream.Count()
	}
	jsonResp(w, http.StatusOK, resp)
}

// saveIntervals handles POST /api/v1/focus/intervals.
func (h *Handler) saveIntervals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var p SessionPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&p); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	rec, err := h.store.Submit(r.Context(), fromPayload(p))
	if err != nil {
		if errors.Is(err, store.ErrInvalidReport) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("api: store report", "err", err)
		jsonErr(w, http.StatusInternalServerError, "store report failed")
		return
	}
	if h.stream != nil {
		h.stream.Publish(ws.EventReportStored, rec.Report)
	}
	jsonResp(w, http.StatusOK, SaveResponse{AnalyticsID: rec.ID, SessionID: rec.Report.SessionID})
}

// latest handles GET /api/v1/focus/intervals/latest. It answers 204 when
// the subject has no report or its latest report has no intervals.
func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	subject, err := types.SubjectFromQuery(r.URL.Query())
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.store.Latest(r.Context(), subject)
	if err != nil {
		slog.Error("api: load latest report", "subject", subject.Key(), "err", err)
		jsonErr(w, http.StatusInternalServerError, "load latest report failed")
		return
	}
	if rec == nil || len(rec.Report.Intervals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	view := *rec.Report
	view.StartedAtMs = intervals.SessionStart(rec.Report)
	jsonResp(w, http.StatusOK, view)
}

// sessions handles GET /api/v1/focus/sessions, the subject's report history
// with insights, most recently started first.
func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	subject, err := types.SubjectFromQuery(q)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	recs, err := h.store.List(r.Context(), subject, limit)
	if err != nil {
		slog.Error("api: list reports", "subject", subject.Key(), "err", err)
		jsonErr(w, http.StatusInternalServerError, "list reports failed")
		return
	}
	out := make([]SessionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, SessionResponse{
			SessionReport: rec.Report,
			StoredAt:      rec.StoredAt.UTC().Format(time.RFC3339),
			UnfocusedSec:  unfocusedSec(rec.Report),
			Insights:      computeInsights(rec.Report),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// overlaps handles POST /api/v1/focus/overlaps: each cue is flagged when it
// overlaps a merged unfocused range of the subject's latest session.
func (h *Handler) overlaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req OverlapRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	subject := types.SubjectRef{Learner: req.Learner, ClassID: req.ClassID, CourseID: req.CourseID}
	if err := subject.Validate(); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	set := intervals.LatestMerged(r.Context(), reportLoader{h.store}, subject)
	jsonResp(w, http.StatusOK, OverlapResponse{
		Ranges: []types.Range(set),
		Flags:  intervals.Classify(req.Cues, set),
	})
}

// --- helpers ----------------------------------------------------------------

// reportLoader adapts Store to intervals.Loader.
type reportLoader struct{ st Store }

func (l reportLoader) Latest(ctx context.Context, subject types.SubjectRef) (*types.SessionReport, error) {
	rec, err := l.st.Latest(ctx, subject)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Report, nil
}

// fromPayload maps the REST payload to a report. A missing endedAt falls
// back to the latest interval end (or startedAt), a missing interval end to
// its start.
func fromPayload(p SessionPayload) *types.SessionReport {
	r := &types.SessionReport{
		SessionID:        p.SessionID,
		Subject:          types.SubjectRef{Learner: p.UserID, ClassID: p.ClassID, CourseID: p.CourseID},
		TotalDurationSec: p.TotalDurationSec,
		Intervals:        make([]types.IntervalSummary, 0, len(p.Intervals)),
	}
	if p.StartedAt != nil {
		r.StartedAtMs = *p.StartedAt
	}

	var lastEnd int64
	for _, iv := range p.Intervals {
		end := iv.Start
		if iv.End != nil {
			end = *iv.End
		}
		if end > lastEnd {
			lastEnd = end
		}
		r.Intervals = append(r.Intervals, types.IntervalSummary{
			Start:       iv.Start,
			End:         end,
			DurationSec: iv.DurationSec,
			AvgScore:    iv.AvgScore,
		})
	}

	switch {
	case p.EndedAt != nil:
		r.EndedAtMs = *p.EndedAt
	case lastEnd > r.StartedAtMs:
		r.EndedAtMs = lastEnd
	default:
		r.EndedAtMs = r.StartedAtMs
	}
	return r
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
