package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/focustrack/focustrack/agent/internal/capture"
)

type httpScorer struct {
	endpoint string
	client   *http.Client
}

type imageRequest struct {
	Base64Image string `json:"base64_image"`
	Timestamp   int64  `json:"timestamp"`
}

func (s *httpScorer) Score(ctx context.Context, f capture.Frame) (*float64, error) {
	body, err := json.Marshal(imageRequest{Base64Image: f.DataURL(), Timestamp: f.CapturedAt.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("scorer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("scorer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scorer: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scorer: unexpected status %d", resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return nil, fmt.Errorf("scorer: decode response: %w", err)
	}
	slog.Debug("scorer: result", "final", res.FinalScore, "emotion", res.EmotionScore,
		"gaze", res.GazeScore, "grade", res.Grade)
	return res.FinalScore, nil
}

func (s *httpScorer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
