package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/focustrack/focustrack/agent/internal/alerts"
	"github.com/focustrack/focustrack/agent/internal/capture"
	"github.com/focustrack/focustrack/agent/internal/compute"
	"github.com/focustrack/focustrack/agent/internal/metrics"
	"github.com/focustrack/focustrack/pkg/intervals"
	"github.com/focustrack/focustrack/pkg/types"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is running.
	ErrAlreadyRunning = errors.New("monitor: session already running")

	// ErrSubmit wraps a session store failure returned by Stop. The session
	// has ended and the device is released when it is returned.
	ErrSubmit = errors.New("monitor: submit report")
)

// State is the lifecycle state of a Monitor. A session is Interrupted when
// the context passed to Start ended its loop before Stop was called; the
// device is released but the report is still pending until Stop (or the
// next Start) finalizes it.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateInterrupted:
		return "interrupted"
	}
	return "idle"
}

// Policy is the per-session sampling and classification policy.
type Policy struct {
	SamplingInterval time.Duration
	Threshold        float64
	MinSave          time.Duration
}

// DefaultPolicy returns the 5s / 0.7 / 10s policy.
func DefaultPolicy() Policy {
	return Policy{
		SamplingInterval: 5 * time.Second,
		Threshold:        compute.DefaultThreshold,
		MinSave:          compute.DefaultMinSave,
	}
}

func (p Policy) validate() error {
	if p.SamplingInterval <= 0 {
		return fmt.Errorf("monitor: sampling interval must be positive")
	}
	if p.Threshold <= 0 || p.Threshold > 1 {
		return fmt.Errorf("monitor: threshold %v must be in (0, 1]", p.Threshold)
	}
	if p.MinSave < 0 {
		return fmt.Errorf("monitor: min save must not be negative")
	}
	if p.MinSave%time.Second != 0 {
		return fmt.Errorf("monitor: min save %s must be a whole number of seconds", p.MinSave)
	}
	return nil
}

// Store persists finished session reports.
type Store interface {
	Submit(ctx context.Context, r *types.SessionReport) error
}

// Scorer returns a raw attention score for a frame; nil means no observation.
type Scorer interface {
	Score(ctx context.Context, f capture.Frame) (*float64, error)
}

// AlertEvaluator receives every scored sample of a running session.
type AlertEvaluator interface {
	Evaluate(o alerts.Observation)
	EndSession(session string)
}

// Options wires a Monitor to its collaborators. Device, Scorer and Store are
// required; Alerts and Metrics are optional.
type Options struct {
	Device  capture.Device
	Scorer  Scorer
	Store   Store
	Policy  Policy
	Alerts  AlertEvaluator
	Metrics *metrics.Metrics
}

// Monitor owns the capture device and the interval engine between Start and
// Stop. All methods are safe for concurrent use.
type Monitor struct {
	device  capture.Device
	scorer  Scorer
	store   Store
	alerts  AlertEvaluator
	metrics *metrics.Metrics

	now       func() time.Time
	newTicker func(time.Duration) (<-chan time.Time, func())
	newID     func() string

	// lifecycle serializes Start and Stop; mu guards the fields below and is
	// never held across a blocking call.
	lifecycle sync.Mutex
	mu        sync.Mutex
	policy    Policy
	state     State
	cur       *session
	last      *types.SessionReport
}

// session is the state of one running session. engine is touched only by the
// loop goroutine until done is closed, and by Stop afterwards.
type session struct {
	id        string
	subject   types.SubjectRef
	startedAt time.Time
	policy    Policy
	engine    *compute.Engine
	cancel    context.CancelFunc
	done      chan struct{}

	// guarded by Monitor.mu
	stopping  bool
	ticks     int
	skipped   int
	lastScore *float64
	lowSince  *time.Time
	kept      int
}

// New returns an idle Monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Device == nil || opts.Scorer == nil || opts.Store == nil {
		return nil, errors.New("monitor: device, scorer and store are required")
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if err := opts.Policy.validate(); err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Monitor{
		device:    opts.Device,
		scorer:    opts.Scorer,
		store:     opts.Store,
		alerts:    opts.Alerts,
		metrics:   opts.Metrics,
		now:       time.Now,
		newTicker: realTicker,
		newID:     uuid.NewString,
		policy:    opts.Policy,
	}, nil
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// SetPolicy replaces the policy used by the next Start. A running session
// keeps the policy it started with.
func (m *Monitor) SetPolicy(p Policy) error {
	if err := p.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.policy = p
	m.mu.Unlock()
	slog.Info("monitor: policy updated",
		"sampling_interval", p.SamplingInterval, "threshold", p.Threshold, "min_save", p.MinSave)
	return nil
}

// Policy returns the policy the next session will use.
func (m *Monitor) Policy() Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// Start begins a session for subject. ctx bounds the session's lifetime, not
// just the call: cancelling it stops sampling and releases the device.
func (m *Monitor) Start(ctx context.Context, subject types.SubjectRef) error {
	if err := subject.Validate(); err != nil {
		return fmt.Errorf("monitor: start: %w", err)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	state, prev := m.state, m.cur
	if state == StateRunning {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	policy := m.policy
	m.mu.Unlock()

	if state == StateInterrupted && prev != nil {
		if _, err := m.stopLocked(ctx, prev); err != nil {
			slog.Warn("monitor: interrupted session not stored", "session", prev.id, "err", err)
		}
	}

	if err := m.device.Open(ctx); err != nil {
		return fmt.Errorf("monitor: start: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s := &session{
		id:        m.newID(),
		subject:   subject,
		startedAt: m.now(),
		policy:    policy,
		engine:    compute.NewEngine(compute.Policy{Threshold: policy.Threshold, MinSave: policy.MinSave}),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.state = StateRunning
	m.cur = s
	m.mu.Unlock()

	m.metrics.SessionStarted()
	slog.Info("monitor: session started",
		"session", s.id, "subject", subject.Key(),
		"sampling_interval", policy.SamplingInterval, "threshold", policy.Threshold)

	go m.run(loopCtx, s)
	return nil
}

// Stop ends the running or interrupted session and returns its report. It
// is a no-op returning (nil, nil) when idle. When the report has intervals it
// is submitted; a submission failure is returned wrapped in ErrSubmit
// together with the report.
func (m *Monitor) Stop(ctx context.Context) (*types.SessionReport, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	s := m.cur
	if m.state == StateIdle || s == nil {
		m.mu.Unlock()
		return nil, nil
	}
	m.mu.Unlock()

	return m.stopLocked(ctx, s)
}

// stopLocked finalizes s. The caller holds m.lifecycle.
func (m *Monitor) stopLocked(ctx context.Context, s *session) (*types.SessionReport, error) {
	m.mu.Lock()
	s.stopping = true
	m.mu.Unlock()

	s.cancel()
	<-s.done

	now := m.now()
	m.record(s, s.engine.Finalize(now.UnixMilli()))

	merged := intervals.MergeSummaries(s.engine.Summaries())
	if merged == nil {
		merged = []types.IntervalSummary{}
	}
	report := &types.SessionReport{
		SessionID:        s.id,
		Subject:          s.subject,
		StartedAtMs:      s.startedAt.UnixMilli(),
		EndedAtMs:        now.UnixMilli(),
		TotalDurationSec: int(math.Round(now.Sub(s.startedAt).Seconds())),
		Intervals:        merged,
	}
	if report.TotalDurationSec < 0 {
		report.TotalDurationSec = 0
	}
	if report.EndedAtMs < report.StartedAtMs {
		report.EndedAtMs = report.StartedAtMs
	}

	m.mu.Lock()
	m.state = StateIdle
	m.cur = nil
	m.last = report
	m.mu.Unlock()

	if m.alerts != nil {
		m.alerts.EndSession(s.id)
	}

	log := slog.With("session", s.id, "subject", s.subject.Key())
	if len(merged) == 0 {
		m.metrics.SessionStopped(false, false)
		log.Info("monitor: session stopped, nothing to submit",
			"total_duration_sec", report.TotalDurationSec)
		return report, nil
	}

	if err := m.store.Submit(ctx, report); err != nil {
		m.metrics.SessionStopped(false, true)
		log.Error("monitor: submit failed", "intervals", len(merged), "err", err)
		return report, fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	m.metrics.SessionStopped(true, false)
	log.Info("monitor: session stopped",
		"intervals", len(merged), "total_duration_sec", report.TotalDurationSec)
	return report, nil
}

// run is the sampling loop. It owns device release.
func (m *Monitor) run(ctx context.Context, s *session) {
	defer close(s.done)
	defer m.markInterrupted(s)
	defer func() {
		if err := m.device.Close(); err != nil {
			slog.Warn("monitor: device close failed", "session", s.id, "err", err)
		}
	}()

	ticks, stop := m.newTicker(s.policy.SamplingInterval)
	defer stop()

	m.tick(ctx, s)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			m.tick(ctx, s)
		}
	}
}

// markInterrupted records that s's loop ended without Stop.
func (m *Monitor) markInterrupted(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != s || m.state != StateRunning || s.stopping {
		return
	}
	m.state = StateInterrupted
	slog.Warn("monitor: session interrupted, waiting for stop", "session", s.id)
}

// tick captures, scores and classifies one frame.
func (m *Monitor) tick(ctx context.Context, s *session) {
	m.metrics.Tick()

	frame, err := m.device.Capture(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.skip(s, metrics.SkipCapture, err)
		return
	}
	at := frame.CapturedAt
	if at.IsZero() {
		at = m.now()
	}

	raw, err := m.scorer.Score(ctx, frame)
	if ctx.Err() != nil {
		slog.Debug("monitor: in-flight score discarded", "session", s.id)
		return
	}
	if err != nil {
		m.skip(s, metrics.SkipScorer, err)
		return
	}

	ev := s.engine.Process(types.Sample{CapturedAt: at, RawScore: raw})
	if ev.Kind == compute.EventSkipped {
		m.skip(s, metrics.SkipNoScore, nil)
		return
	}
	m.metrics.Score(ev.Score)
	m.record(s, ev)

	m.mu.Lock()
	s.ticks++
	score := ev.Score
	s.lastScore = &score
	var lowFor time.Duration
	if open, ok := s.engine.Open(); ok {
		since := time.UnixMilli(open.StartMs)
		s.lowSince = &since
		lowFor = at.Sub(since)
	} else {
		s.lowSince = nil
	}
	m.mu.Unlock()

	if m.alerts != nil {
		m.alerts.Evaluate(alerts.Observation{
			Session: s.id,
			Subject: s.subject.Key(),
			At:      at,
			Score:   ev.Score,
			State:   s.engine.State().String(),
			LowFor:  lowFor,
		})
	}
}

func (m *Monitor) skip(s *session, reason string, err error) {
	m.metrics.TickSkipped(reason)
	m.mu.Lock()
	s.ticks++
	s.skipped++
	m.mu.Unlock()
	if err != nil {
		slog.Warn("monitor: tick skipped", "session", s.id, "reason", reason, "err", err)
	} else {
		slog.Debug("monitor: tick skipped", "session", s.id, "reason", reason)
	}
}

// record updates counters for interval close events.
func (m *Monitor) record(s *session, ev compute.Event) {
	switch ev.Kind {
	case compute.EventKept:
		m.metrics.IntervalKept()
		m.mu.Lock()
		s.kept++
		m.mu.Unlock()
		slog.Debug("monitor: interval kept", "session", s.id,
			"start", ev.Summary.Start, "end", ev.Summary.End, "avg_score", ev.Summary.AvgScore)
	case compute.EventDiscarded:
		m.metrics.IntervalDiscarded()
	}
}
