package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// maxFrameBytes caps a single snapshot response.
const maxFrameBytes = 8 << 20

// httpDevice fetches frames from a snapshot URL.
type httpDevice struct {
	endpoint string
	client   *http.Client
	now      func() time.Time

	mu   sync.Mutex
	open bool
}

// Open probes the endpoint once so an unreachable camera fails the session
// start instead of every tick.
func (d *httpDevice) Open(ctx context.Context) error {
	if _, err := d.fetch(ctx); err != nil {
		return fmt.Errorf("capture: open %s: %w", d.endpoint, err)
	}
	d.mu.Lock()
	d.open = true
	d.mu.Unlock()
	return nil
}

func (d *httpDevice) Capture(ctx context.Context) (Frame, error) {
	d.mu.Lock()
	open := d.open
	d.mu.Unlock()
	if !open {
		return Frame{}, ErrClosed
	}
	return d.fetch(ctx)
}

func (d *httpDevice) Close() error {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
	d.client.CloseIdleConnections()
	return nil
}

func (d *httpDevice) fetch(ctx context.Context) (Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png;q=0.9, image/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "image/") {
		return Frame{}, fmt.Errorf("unexpected content type %q", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes+1))
	if err != nil {
		return Frame{}, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("empty frame")
	}
	if len(data) > maxFrameBytes {
		return Frame{}, fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	}
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return Frame{CapturedAt: d.now(), ContentType: ct, Data: data}, nil
}
