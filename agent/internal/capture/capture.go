package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/focustrack/focustrack/agent/internal/config"
)

// ErrClosed is returned by Capture on a device that is not open.
var ErrClosed = errors.New("capture: device not open")

// Frame is one captured image.
type Frame struct {
	CapturedAt  time.Time
	ContentType string
	Data        []byte
}

// DataURL returns the frame as a data: URL, the form the scorer accepts.
func (f Frame) DataURL() string {
	ct := f.ContentType
	if ct == "" {
		ct = "image/jpeg"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Device is an exclusively-owned frame source.
type Device interface {
	// Open acquires the device. It fails if the device is unavailable.
	Open(ctx context.Context) error
	// Capture grabs one frame.
	Capture(ctx context.Context) (Frame, error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// New returns the Device selected by cfg.Type.
func New(cfg config.CaptureConfig) (Device, error) {
	switch cfg.Type {
	case "http":
		client, err := HTTPClient(cfg.Auth, cfg.TLS, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("capture: build http client: %w", err)
		}
		return &httpDevice{endpoint: cfg.Endpoint, client: client, now: time.Now}, nil
	case "dir":
		return &dirDevice{dir: cfg.Dir, now: time.Now}, nil
	default:
		return nil, fmt.Errorf("capture: unsupported type %q", cfg.Type)
	}
}
