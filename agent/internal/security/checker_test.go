package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheck_NonTLSEndpoint(t *testing.T) {
	for _, u := range []string{"http://camera.local/snap.jpg", "ws://scorer:8000/ws/realtime", "store:50051", "::bad"} {
		if cs := Check(context.Background(), Endpoint{URL: u}); cs != nil {
			t.Errorf("Check(%q) = %+v, want nil", u, cs)
		}
	}
}

func TestCheck_TLSServer(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer ts.Close()

	cs := Check(context.Background(), Endpoint{Name: "scorer", URL: ts.URL, Insecure: true})
	if cs == nil {
		t.Fatal("Check returned nil for https endpoint")
	}
	if cs.Name != "scorer" || cs.AuthType != "none" {
		t.Errorf("status = %+v", cs)
	}
	// httptest certificates are valid for years.
	if cs.Status != "valid" || cs.DaysLeft <= 30 {
		t.Errorf("Status = %q DaysLeft = %d, want valid", cs.Status, cs.DaysLeft)
	}
}

func TestCheck_ExpiryClassification(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer ts.Close()
	notAfter := ts.Certificate().NotAfter

	cases := []struct {
		now  time.Time
		want string
	}{
		{notAfter.Add(-90 * 24 * time.Hour), "valid"},
		{notAfter.Add(-10 * 24 * time.Hour), "expiring"},
		{notAfter.Add(time.Hour), "expired"},
	}
	for _, tc := range cases {
		cs := check(context.Background(), Endpoint{URL: ts.URL, Insecure: true}, tc.now)
		if cs.Status != tc.want {
			t.Errorf("at %v: Status = %q, want %q", tc.now, cs.Status, tc.want)
		}
	}
}

func TestCheck_Unreachable(t *testing.T) {
	cs := Check(context.Background(), Endpoint{URL: "https://127.0.0.1:1"})
	if cs == nil || cs.Status != "unreachable" {
		t.Errorf("Check = %+v, want unreachable", cs)
	}
}

func TestCheckAll_SkipsPlainEndpoints(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer ts.Close()

	got := CheckAll(context.Background(), []Endpoint{
		{Name: "capture", URL: "http://camera.local"},
		{Name: "scorer", URL: ts.URL, Insecure: true},
	})
	if len(got) != 1 || got[0].Name != "scorer" {
		t.Errorf("CheckAll = %+v, want scorer only", got)
	}
}
