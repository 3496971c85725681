package scorer

import (
	"context"
	"fmt"

	"github.com/focustrack/focustrack/agent/internal/capture"
	"github.com/focustrack/focustrack/agent/internal/config"
)

// Scorer returns a raw attention score for one frame.
type Scorer interface {
	Score(ctx context.Context, f capture.Frame) (*float64, error)
	Close() error
}

// Result is the scorer's answer. Only FinalScore feeds the interval builder;
// the component scores are logged at debug level.
type Result struct {
	FinalScore   *float64 `json:"final_score"`
	EmotionScore *float64 `json:"emotion_score,omitempty"`
	GazeScore    *float64 `json:"gaze_score,omitempty"`
	Grade        string   `json:"grade,omitempty"`
}

// New returns the Scorer selected by cfg.Mode. clientID names this agent on
// the websocket endpoint.
func New(cfg config.ScorerConfig, clientID string) (Scorer, error) {
	switch cfg.Mode {
	case "http", "":
		client, err := capture.HTTPClient(cfg.Auth, cfg.TLS, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("scorer: build http client: %w", err)
		}
		return &httpScorer{endpoint: cfg.Endpoint, client: client}, nil
	case "websocket":
		return newWSScorer(cfg, clientID)
	default:
		return nil, fmt.Errorf("scorer: unsupported mode %q", cfg.Mode)
	}
}
