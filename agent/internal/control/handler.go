package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/focustrack/focustrack/agent/internal/alerts"
	"github.com/focustrack/focustrack/agent/internal/monitor"
	"github.com/focustrack/focustrack/agent/internal/security"
	"github.com/focustrack/focustrack/pkg/types"
)

// Sessions is the part of the monitor the API drives.
type Sessions interface {
	Start(ctx context.Context, subject types.SubjectRef) error
	Stop(ctx context.Context) (*types.SessionReport, error)
	Status() monitor.Status
}

// AlertLister lists current alerts.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Options configures the handler.
type Options struct {
	Sessions Sessions

	// SessionContext bounds sessions started through the API. It must outlive
	// the request; typically the process context.
	SessionContext context.Context

	// DefaultSubject is used when a start request has no body.
	DefaultSubject types.SubjectRef

	Alerts    AlertLister
	Metrics   http.Handler
	Endpoints []security.Endpoint
}

// Handler is the HTTP handler for the control API.
type Handler struct {
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	if opts.SessionContext == nil {
		opts.SessionContext = context.Background()
	}
	h := &Handler{opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/session", h.status)
	h.mux.HandleFunc("/api/v1/session/start", h.start)
	h.mux.HandleFunc("/api/v1/session/stop", h.stop)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/certs", h.certs)
	if opts.Metrics != nil {
		h.mux.Handle("/metrics", opts.Metrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// StopResponse is the payload for POST /api/v1/session/stop.
type StopResponse struct {
	Stopped bool                 `json:"stopped"`
	Report  *types.SessionReport `json:"report,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type startRequest struct {
	Learner  string `json:"learner"`
	ClassID  int64  `json:"class_id"`
	CourseID int64  `json:"course_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": h.opts.Sessions.Status().State,
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.opts.Sessions.Status())
}

// start handles POST /api/v1/session/start. An empty body uses the
// configured default subject.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	subject := h.opts.DefaultSubject
	var req startRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req != (startRequest{}) {
		subject = types.SubjectRef{Learner: req.Learner, ClassID: req.ClassID, CourseID: req.CourseID}
	}
	if err := subject.Validate(); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.opts.Sessions.Start(h.opts.SessionContext, subject)
	switch {
	case errors.Is(err, monitor.ErrAlreadyRunning):
		jsonErr(w, http.StatusConflict, err.Error())
	case err != nil:
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
	default:
		jsonResp(w, http.StatusCreated, h.opts.Sessions.Status())
	}
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, err := h.opts.Sessions.Stop(r.Context())
	resp := StopResponse{Stopped: report != nil, Report: report}
	if err != nil {
		resp.Error = err.Error()
		code := http.StatusInternalServerError
		if errors.Is(err, monitor.ErrSubmit) {
			code = http.StatusBadGateway
		}
		jsonResp(w, code, resp)
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.opts.Alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.opts.Alerts.Active())
}

func (h *Handler) certs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, security.CheckAll(r.Context(), h.opts.Endpoints))
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
