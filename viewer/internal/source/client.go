package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/focustrack/focustrack/pkg/types"
)

const maxBody = 4 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the server's HTTP root, e.g. http://localhost:8080.
	BaseURL string
	// Header and Key authenticate requests when Key is non-empty.
	Header  string
	Key     string
	Timeout time.Duration
}

// Client is a REST client for the report endpoints.
type Client struct {
	base   string
	header string
	key    string
	http   *http.Client
}

// New returns a Client for opts.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("source: base url %q must be http(s)://host[:port]", opts.BaseURL)
	}
	header := opts.Header
	if header == "" {
		header = "x-api-key"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		header: header,
		key:    opts.Key,
		http:   &http.Client{Timeout: timeout},
	}, nil
}

// Latest returns the subject's latest report, or nil when the server
// answers 204.
func (c *Client) Latest(ctx context.Context, subject types.SubjectRef) (*types.SessionReport, error) {
	var r types.SessionReport
	found, err := c.get(ctx, "/api/v1/focus/intervals/latest", subjectQuery(subject), &r)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// Session is one history entry.
type Session struct {
	types.SessionReport
	StoredAt     string `json:"storedAt"`
	UnfocusedSec int    `json:"unfocusedSec"`
}

// Sessions returns up to limit reports for subject, most recent first.
func (c *Client) Sessions(ctx context.Context, subject types.SubjectRef, limit int) ([]Session, error) {
	q := subjectQuery(subject)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Session
	if _, err := c.get(ctx, "/api/v1/focus/sessions", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// get decodes a 200 response into v. It returns found == false for 204.
func (c *Client) get(ctx context.Context, path string, q url.Values, v interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set(c.header, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("source: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return false, nil
	case http.StatusOK:
	default:
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&e) //nolint:errcheck
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return false, fmt.Errorf("source: GET %s: %d %s", path, resp.StatusCode, e.Error)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v); err != nil {
		return false, fmt.Errorf("source: decode %s: %w", path, err)
	}
	return true, nil
}

func subjectQuery(s types.SubjectRef) url.Values {
	q := url.Values{}
	q.Set("learner", s.Learner)
	q.Set("class_id", strconv.FormatInt(s.ClassID, 10))
	q.Set("course_id", strconv.FormatInt(s.CourseID, 10))
	return q
}
