package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event names carried by the generic http payload.
const (
	EventFiring   = "focus.alert.firing"
	EventResolved = "focus.alert.resolved"
)

// payloadFuncs render an alert for each supported webhook type.
var payloadFuncs = map[string]func(*Alert) interface{}{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  httpPayload,
}

// deliver posts a to every configured target within ctx. Failures are logged
// and never reach the monitor.
func (e *Engine) deliver(ctx context.Context, a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		render, ok := payloadFuncs[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		log := slog.With("type", wh.Type, "rule", a.RuleName, "session", a.Session, "state", a.State)
		if err := e.post(ctx, url, render(a)); err != nil {
			log.Error("alerts: webhook delivery failed", "err", err)
			continue
		}
		log.Debug("alerts: webhook delivered")
	}
}

func (e *Engine) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// firingMessage describes the sample that fired a rule.
func firingMessage(o Observation, condition string) string {
	msg := fmt.Sprintf("%s attention at %.2f in session %s (%s)", o.Subject, o.Score, o.Session, condition)
	if o.LowFor > 0 {
		msg += fmt.Sprintf(", low for %s", o.LowFor.Truncate(time.Second))
	}
	return msg
}

// headline is the one-line summary used by the chat payloads.
func headline(a *Alert) string {
	if a.State != "resolved" {
		return fmt.Sprintf("%s %s is losing focus", stateLabel(a), a.Subject)
	}
	if a.RecoveredScore != nil {
		return fmt.Sprintf("%s %s is back at %.2f", stateLabel(a), a.Subject, *a.RecoveredScore)
	}
	return fmt.Sprintf("%s %s session ended", stateLabel(a), a.Subject)
}

type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// facts lists the session details shown by the chat payloads.
func facts(a *Alert) []fact {
	out := []fact{
		{"Learner", a.Subject},
		{"Session", a.Session},
		{"Rule", fmt.Sprintf("%s (%s)", a.RuleName, a.Condition)},
		{"Score", fmt.Sprintf("%.2f", a.Score)},
	}
	if a.LowForSec > 0 {
		out = append(out, fact{"Low for", (time.Duration(a.LowForSec) * time.Second).String()})
	}
	if a.ResolvedAt != nil {
		out = append(out, fact{"Lasted", a.ResolvedAt.Sub(a.FiredAt).Truncate(time.Second).String()})
	}
	return out
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Ts     int64        `json:"ts"`
}

func slackPayload(a *Alert) interface{} {
	fs := facts(a)
	fields := make([]slackField, len(fs))
	for i, f := range fs {
		fields[i] = slackField{Title: f.Name, Value: f.Value, Short: true}
	}
	return struct {
		Text        string            `json:"text"`
		Attachments []slackAttachment `json:"attachments"`
	}{
		Text:        headline(a),
		Attachments: []slackAttachment{{Color: "#" + color(a), Fields: fields, Ts: a.FiredAt.Unix()}},
	}
}

func teamsPayload(a *Alert) interface{} {
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color(a),
		"summary":    headline(a),
		"title":      headline(a),
		"sections": []map[string]interface{}{
			{"activityTitle": a.Message, "facts": facts(a)},
		},
	}
}

// httpPayload is the alert itself under an event name, for custom receivers.
func httpPayload(a *Alert) interface{} {
	event := EventFiring
	if a.State == "resolved" {
		event = EventResolved
	}
	return struct {
		Event string `json:"event"`
		Alert *Alert `json:"alert"`
	}{event, a}
}

func stateLabel(a *Alert) string {
	if a.State == "resolved" {
		return "[RESOLVED]"
	}
	switch a.Severity {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	}
	return "[INFO]"
}

func color(a *Alert) string {
	if a.State == "resolved" {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	}
	return "00D4FF"
}
