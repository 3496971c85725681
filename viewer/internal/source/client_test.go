package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/focustrack/focustrack/pkg/intervals"
	"github.com/focustrack/focustrack/pkg/types"
)

var subject = types.SubjectRef{Learner: "ana", ClassID: 1, CourseID: 2}

func newClient(t *testing.T, h http.HandlerFunc, key string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, Key: key, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestLatest(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/focus/intervals/latest" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("learner") != "ana" || q.Get("class_id") != "1" || q.Get("course_id") != "2" {
			t.Errorf("query: got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(types.SessionReport{ //nolint:errcheck
			SessionID:   "s-1",
			Subject:     subject,
			StartedAtMs: 1_000_000,
			Intervals:   []types.IntervalSummary{{Start: 1_005_000, End: 1_020_000, DurationSec: 15}},
		})
	}, "")

	r, err := c.Latest(context.Background(), subject)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if r == nil || r.SessionID != "s-1" || len(r.Intervals) != 1 {
		t.Errorf("Latest: got %+v", r)
	}
}

func TestLatest_NoContent(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, "")

	r, err := c.Latest(context.Background(), subject)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if r != nil {
		t.Errorf("Latest: got %+v, want nil", r)
	}
}

func TestLatest_ErrorStatus(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`)) //nolint:errcheck
	}, "")

	_, err := c.Latest(context.Background(), subject)
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("err: got %v, want invalid api key", err)
	}
}

func TestLatest_MalformedBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"intervals": "nope"`)) //nolint:errcheck
	}, "")
	if _, err := c.Latest(context.Background(), subject); err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

func TestAPIKeyHeader(t *testing.T) {
	var got string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusNoContent)
	}, "secret")

	c.Latest(context.Background(), subject) //nolint:errcheck
	if got != "secret" {
		t.Errorf("x-api-key: got %q, want secret", got)
	}
}

func TestSessions(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("limit: got %q, want 5", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`[{"sessionId":"b","startedAt":2,"unfocusedSec":30,"storedAt":"2026-01-01T00:00:00Z"},{"sessionId":"a","startedAt":1}]`)) //nolint:errcheck
	}, "")

	got, err := c.Sessions(context.Background(), subject, 5)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "b" || got[0].UnfocusedSec != 30 {
		t.Errorf("Sessions: got %+v", got)
	}
}

func TestClient_AsLoader(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, "")

	// A failing store reads as "no prior session".
	set := intervals.LatestMerged(context.Background(), c, subject)
	if len(set) != 0 {
		t.Errorf("set: got %+v, want empty", set)
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "ftp://host", "http://"} {
		if _, err := New(Options{BaseURL: u}); err == nil {
			t.Errorf("New(%q): expected error", u)
		}
	}
}
