// Package metrics keeps the agent's counters and renders them in the
// Prometheus text exposition format for GET /metrics.
package metrics

import (
	"io"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "focustrack_agent_"

// Skip reasons recorded by TickSkipped.
const (
	SkipCapture = "capture"
	SkipScorer  = "scorer"
	SkipNoScore = "no_score"
)

// Metrics is safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	sessionsStarted    float64
	sessionsSubmitted  float64
	submitErrors       float64
	ticks              float64
	skipped            map[string]float64
	intervalsKept      float64
	intervalsDiscarded float64
	running            float64
	lastScore          float64
	hasScore           bool
}

// New returns zeroed metrics.
func New() *Metrics {
	return &Metrics{skipped: map[string]float64{
		SkipCapture: 0,
		SkipScorer:  0,
		SkipNoScore: 0,
	}}
}

func (m *Metrics) SessionStarted() {
	m.mu.Lock()
	m.sessionsStarted++
	m.running = 1
	m.hasScore = false
	m.mu.Unlock()
}

// SessionStopped records the end of a session. submitted means the report
// was stored; failed means the submission was attempted and returned an error.
func (m *Metrics) SessionStopped(submitted, failed bool) {
	m.mu.Lock()
	m.running = 0
	if submitted {
		m.sessionsSubmitted++
	}
	if failed {
		m.submitErrors++
	}
	m.mu.Unlock()
}

func (m *Metrics) Tick() {
	m.mu.Lock()
	m.ticks++
	m.mu.Unlock()
}

func (m *Metrics) TickSkipped(reason string) {
	m.mu.Lock()
	m.skipped[reason]++
	m.mu.Unlock()
}

func (m *Metrics) Score(v float64) {
	m.mu.Lock()
	m.lastScore, m.hasScore = v, true
	m.mu.Unlock()
}

func (m *Metrics) IntervalKept() {
	m.mu.Lock()
	m.intervalsKept++
	m.mu.Unlock()
}

func (m *Metrics) IntervalDiscarded() {
	m.mu.Lock()
	m.intervalsDiscarded++
	m.mu.Unlock()
}

// Families returns a snapshot of all metric families, sorted by name.
func (m *Metrics) Families() []*dto.MetricFamily {
	m.mu.Lock()
	defer m.mu.Unlock()

	fams := []*dto.MetricFamily{
		counter("sessions_started_total", "Sessions started.", m.sessionsStarted),
		counter("sessions_submitted_total", "Session reports stored by the session store.", m.sessionsSubmitted),
		counter("submit_errors_total", "Session report submissions that failed.", m.submitErrors),
		counter("ticks_total", "Sampling ticks executed.", m.ticks),
		counter("intervals_kept_total", "Low-attention intervals kept.", m.intervalsKept),
		counter("intervals_discarded_total", "Low-attention intervals discarded as too short.", m.intervalsDiscarded),
		gauge("session_running", "1 while a session is running.", m.running),
	}

	reasons := make([]string, 0, len(m.skipped))
	for r := range m.skipped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	skipped := &dto.MetricFamily{
		Name: ptr(namespace + "skipped_ticks_total"),
		Help: ptr("Sampling ticks that produced no observation, by reason."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, r := range reasons {
		skipped.Metric = append(skipped.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: ptr("reason"), Value: ptr(r)}},
			Counter: &dto.Counter{Value: ptr(m.skipped[r])},
		})
	}
	fams = append(fams, skipped)

	if m.hasScore {
		fams = append(fams, gauge("last_score", "Most recent normalized attention score.", m.lastScore))
	}

	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// WriteText encodes all families in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range m.Families() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the text exposition.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		_ = m.WriteText(w)
	})
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(namespace + name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: ptr(v)}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(namespace + name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(v)}}},
	}
}

func ptr[T any](v T) *T { return &v }
