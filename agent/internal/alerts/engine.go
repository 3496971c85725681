package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/focustrack/focustrack/agent/internal/config"
)

const (
	defaultCooldown = 30 * time.Second
	deliverTimeout  = 10 * time.Second
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// DefaultRules are used when the configuration lists none.
var DefaultRules = []config.AlertRule{
	{Name: "focus-low", Condition: "score < 0.3", Severity: "warning", Cooldown: defaultCooldown},
	{Name: "focus-critical", Condition: "score < 0.15", Severity: "critical", Cooldown: defaultCooldown},
}

// Observation is one scored sample of a running session.
type Observation struct {
	Session string
	Subject string
	At      time.Time

	// Score is the normalized score in [0,1].
	Score float64

	// State is the interval builder state after the sample: "low" or "neutral".
	State string

	// LowFor is how long the open low-attention interval has lasted.
	LowFor time.Duration
}

// Alert represents a single alert event produced by the rule engine.
// Value is the field the condition tested; Score and LowForSec describe the
// sample that fired it. RecoveredScore is the score that resolved it, if any.
type Alert struct {
	ID             string     `json:"id"`
	RuleName       string     `json:"rule_name"`
	Condition      string     `json:"condition"`
	Session        string     `json:"session"`
	Subject        string     `json:"subject"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	Value          float64    `json:"value"`
	Score          float64    `json:"score"`
	LowForSec      int        `json:"low_for_sec"`
	RecoveredScore *float64   `json:"recovered_score,omitempty"`
	FiredAt        time.Time  `json:"fired_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	State          string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against observations and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:session"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	inflight sync.WaitGroup

	// deliveries are bounded by deliverTimeout and cancelled by Shutdown.
	base   context.Context
	cancel context.CancelFunc
}

// New creates an Engine from the alerts configuration. Rules with an
// unparseable condition are rejected.
func New(cfg config.AlertsConfig) (*Engine, error) {
	rules := cfg.Rules
	if cfg.Disabled {
		rules = nil
	} else if len(rules) == 0 {
		rules = DefaultRules
	}
	for _, r := range rules {
		if err := validCondition(r.Condition); err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Engine{
		base:     base,
		cancel:   cancel,
		rules:    rules,
		webhooks: cfg.Webhooks,
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{},
	}, nil
}

// Evaluate tests all rules against o. Alerts that fire are stored and webhook
// delivery is triggered asynchronously. Alerts that were firing but whose
// condition is now false are resolved.
func (e *Engine) Evaluate(o Observation) {
	if len(e.rules) == 0 {
		return
	}

	now := o.At
	if now.IsZero() {
		now = e.now()
	}
	for _, rule := range e.rules {
		key := rule.Name + ":" + o.Session
		fires, value := evalCondition(rule.Condition, o)

		if fires {
			e.fire(key, rule, o, value, now)
		} else {
			e.resolve(key, now, &o)
		}
	}
}

// EndSession resolves every alert still firing for session.
func (e *Engine) EndSession(session string) {
	now := e.now()
	for _, rule := range e.rules {
		e.resolve(rule.Name+":"+session, now, nil)
	}
	e.mu.Lock()
	for _, rule := range e.rules {
		delete(e.lastFire, rule.Name+":"+session)
	}
	e.mu.Unlock()
}

func (e *Engine) fire(key string, rule config.AlertRule, o Observation, value float64, now time.Time) {
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	e.mu.Lock()
	if _, firing := e.active[key]; firing {
		e.lastFire[key] = now
		e.mu.Unlock()
		return
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
		e.mu.Unlock()
		return
	}
	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:        fmt.Sprintf("%s:%s:%d", rule.Name, o.Session, now.UnixNano()),
		RuleName:  rule.Name,
		Condition: rule.Condition,
		Session:   o.Session,
		Subject:   o.Subject,
		Severity:  sev,
		Value:     value,
		Score:     o.Score,
		LowForSec: int(o.LowFor.Seconds()),
		Message:   firingMessage(o, rule.Condition),
		FiredAt:   now,
		State:     "firing",
	}
	e.active[key] = a
	e.lastFire[key] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alerts: fired",
		"rule", rule.Name,
		"session", o.Session,
		"value", value,
		"severity", sev,
	)
	e.goDeliver(&alertCopy)
}

// resolve clears the alert at key. o is the sample that cleared it, or nil
// when the session ended.
func (e *Engine) resolve(key string, now time.Time, o *Observation) {
	e.mu.Lock()
	a, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	if o != nil {
		score := o.Score
		a.RecoveredScore = &score
	}
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alerts: resolved", "rule", a.RuleName, "session", a.Session)
	e.goDeliver(&alertCopy)
}

func (e *Engine) goDeliver(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(e.base, deliverTimeout)
		defer cancel()
		e.deliver(ctx, a)
	}()
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() { e.inflight.Wait() }

// Shutdown waits for in-flight webhook deliveries until ctx is done, then
// cancels the rest and waits for them to return.
func (e *Engine) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-ctx.Done():
	}
	e.cancel()
	<-done
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
