package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focustrack/focustrack/agent/internal/capture"
	"github.com/focustrack/focustrack/agent/internal/config"
)

// maxSkippedMessages bounds how many unrelated messages (connection
// greetings, score pushes) are read while waiting for an analysis result.
const maxSkippedMessages = 8

type wsScorer struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	header  http.Header

	mu   sync.Mutex
	conn *websocket.Conn
}

type frameMessage struct {
	Type        string `json:"type"`
	Base64Image string `json:"base64_image"`
}

type wsMessage struct {
	Type           string `json:"type"`
	RealtimeScores struct {
		RealtimeScores Result `json:"realtime_scores"`
	} `json:"realtime_scores"`
}

func newWSScorer(cfg config.ScorerConfig, clientID string) (*wsScorer, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("scorer: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(clientID)

	tlsCfg, err := capture.TLSConfig(cfg.Auth, cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("scorer: tls: %w", err)
	}

	header := http.Header{}
	switch cfg.Auth.Mode {
	case "apikey":
		header.Set(cfg.Auth.EffectiveHeader(), cfg.Auth.Key())
	case "bearer":
		header.Set("Authorization", "Bearer "+cfg.Auth.Token())
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultScorerTimeout
	}

	return &wsScorer{
		url:     u.String(),
		timeout: timeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
			TLSClientConfig:  tlsCfg,
		},
		header: header,
	}, nil
}

// Score sends one frame and waits for its analysis result. Any error drops
// the connection; the next call dials again.
func (s *wsScorer) Score(ctx context.Context, f capture.Frame) (*float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
		if err != nil {
			return nil, fmt.Errorf("scorer: dial %s: %w", s.url, err)
		}
		slog.Info("scorer: websocket connected", "url", s.url)
		s.conn = conn
	}

	score, err := s.exchange(ctx, f)
	if err != nil {
		s.dropLocked()
		return nil, err
	}
	return score, nil
}

func (s *wsScorer) exchange(ctx context.Context, f capture.Frame) (*float64, error) {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.SetReadDeadline(deadline)

	// Unblock reads when ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := s.conn.WriteJSON(frameMessage{Type: "frame", Base64Image: f.DataURL()}); err != nil {
		return nil, fmt.Errorf("scorer: write frame: %w", err)
	}

	for i := 0; i <= maxSkippedMessages; i++ {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("scorer: read: %w", err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("scorer: decode message: %w", err)
		}
		if msg.Type != "analysis_result" {
			slog.Debug("scorer: skipping message", "type", msg.Type)
			continue
		}
		res := msg.RealtimeScores.RealtimeScores
		slog.Debug("scorer: result", "final", res.FinalScore, "grade", res.Grade)
		return res.FinalScore, nil
	}
	return nil, fmt.Errorf("scorer: no analysis_result after %d messages", maxSkippedMessages+1)
}

func (s *wsScorer) dropLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *wsScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.dropLocked()
	return nil
}
