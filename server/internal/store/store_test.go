package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/focustrack/focustrack/pkg/types"
)

var (
	ana = types.SubjectRef{Learner: "ana", ClassID: 1, CourseID: 10}
	bo  = types.SubjectRef{Learner: "bo", ClassID: 1, CourseID: 10}
)

func newStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	st, err := Open(MemoryPath, retention)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func report(id string, subject types.SubjectRef, startedAt int64) *types.SessionReport {
	return &types.SessionReport{
		SessionID:        id,
		Subject:          subject,
		StartedAtMs:      startedAt,
		EndedAtMs:        startedAt + 60_000,
		TotalDurationSec: 60,
		Intervals: []types.IntervalSummary{
			{Start: startedAt + 5_000, End: startedAt + 20_000, DurationSec: 15, AvgScore: 0.41, Samples: 4},
		},
	}
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestSubmitAndLatest(t *testing.T) {
	st := newStore(t, 0)
	ctx := context.Background()

	rec, err := st.Submit(ctx, report("s-1", ana, 1_000))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.ID == 0 {
		t.Error("Submit: expected a row id")
	}

	got, err := st.Latest(ctx, ana)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil {
		t.Fatal("Latest: expected a record, got nil")
	}
	if got.Report.SessionID != "s-1" {
		t.Errorf("SessionID: got %q, want s-1", got.Report.SessionID)
	}
	if len(got.Report.Intervals) != 1 {
		t.Fatalf("Intervals: got %d, want 1", len(got.Report.Intervals))
	}
	iv := got.Report.Intervals[0]
	if iv.Start != 6_000 || iv.End != 21_000 || iv.DurationSec != 15 || iv.AvgScore != 0.41 || iv.Samples != 4 {
		t.Errorf("interval round trip: got %+v", iv)
	}
}

func TestLatest_None(t *testing.T) {
	st := newStore(t, 0)
	got, err := st.Latest(context.Background(), ana)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got != nil {
		t.Errorf("Latest on empty store: got %+v, want nil", got)
	}
}

func TestLatest_MostRecentlyStarted(t *testing.T) {
	st := newStore(t, 0)
	ctx := context.Background()

	// Submission order differs from start order.
	for _, r := range []*types.SessionReport{
		report("mid", ana, 2_000_000),
		report("new", ana, 3_000_000),
		report("old", ana, 1_000_000),
		report("other", bo, 9_000_000),
	} {
		if _, err := st.Submit(ctx, r); err != nil {
			t.Fatalf("Submit %s: %v", r.SessionID, err)
		}
	}

	got, err := st.Latest(ctx, ana)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.Report.SessionID != "new" {
		t.Errorf("Latest: got %q, want new", got.Report.SessionID)
	}
}

func TestLatest_ScopedBySubject(t *testing.T) {
	st := newStore(t, 0)
	ctx := context.Background()
	st.Submit(ctx, report("s-ana", ana, 1_000)) //nolint:errcheck

	other := types.SubjectRef{Learner: "ana", ClassID: 1, CourseID: 11}
	got, err := st.Latest(ctx, other)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got != nil {
		t.Errorf("different course should have no report, got %s", got.Report.SessionID)
	}
}

func TestSubmit_AssignsSessionID(t *testing.T) {
	st := newStore(t, 0)
	r := report("", ana, 1_000)

	rec, err := st.Submit(context.Background(), r)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Report.SessionID == "" {
		t.Error("Submit should assign a session id")
	}
	if r.SessionID != "" {
		t.Error("Submit must not modify the caller's report")
	}
}

func TestSubmit_ReplacesSameSession(t *testing.T) {
	st := newStore(t, 0)
	ctx := context.Background()

	first, err := st.Submit(ctx, report("s-1", ana, 1_000))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	updated := report("s-1", ana, 1_000)
	updated.Intervals = nil
	second, err := st.Submit(ctx, updated)
	if err != nil {
		t.Fatalf("Submit again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("resubmission id: got %d, want %d", second.ID, first.ID)
	}

	n, _ := st.Count(ctx)
	if n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
	got, _ := st.Latest(ctx, ana)
	if got.Report.Intervals == nil || len(got.Report.Intervals) != 0 {
		t.Errorf("intervals: got %#v, want empty non-nil slice", got.Report.Intervals)
	}
}

func TestSubmit_Invalid(t *testing.T) {
	st := newStore(t, 0)

	cases := map[string]func(r *types.SessionReport){
		"missing learner":    func(r *types.SessionReport) { r.Subject.Learner = "" },
		"ended before start": func(r *types.SessionReport) { r.EndedAtMs = r.StartedAtMs - 1 },
		"interval inverted":  func(r *types.SessionReport) { r.Intervals[0].End = r.Intervals[0].Start - 1 },
		"negative duration":  func(r *types.SessionReport) { r.Intervals[0].DurationSec = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := report("bad", ana, 1_000)
			mutate(r)
			_, err := st.Submit(context.Background(), r)
			if !errors.Is(err, ErrInvalidReport) {
				t.Errorf("err: got %v, want ErrInvalidReport", err)
			}
		})
	}

	if _, err := st.Submit(context.Background(), nil); !errors.Is(err, ErrInvalidReport) {
		t.Errorf("nil report: got %v, want ErrInvalidReport", err)
	}
}

func TestList_OrderAndLimit(t *testing.T) {
	st := newStore(t, 0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		st.Submit(ctx, report(fmt.Sprintf("s-%d", i), ana, int64(i+1)*100_000)) //nolint:errcheck
	}

	recs, err := st.List(ctx, ana, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("List: got %d records, want 3", len(recs))
	}
	want := []string{"s-4", "s-3", "s-2"}
	for i, rec := range recs {
		if rec.Report.SessionID != want[i] {
			t.Errorf("recs[%d]: got %s, want %s", i, rec.Report.SessionID, want[i])
		}
	}

	all, _ := st.List(ctx, ana, 0)
	if len(all) != 5 {
		t.Errorf("List with default limit: got %d, want 5", len(all))
	}
}

func TestEvict_RemovesExpired(t *testing.T) {
	base := time.Now()
	st := newStore(t, 24*time.Hour)
	ctx := context.Background()

	st.now = fixedClock(base.Add(-48 * time.Hour))
	st.Submit(ctx, report("old1", ana, 1_000)) //nolint:errcheck
	st.Submit(ctx, report("old2", ana, 2_000)) //nolint:errcheck

	st.now = fixedClock(base)
	st.Submit(ctx, report("live", ana, 3_000)) //nolint:errcheck

	removed, err := st.Evict(ctx, base)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if removed != 2 {
		t.Errorf("Evict: removed %d, want 2", removed)
	}
	if n, _ := st.Count(ctx); n != 1 {
		t.Errorf("Count after evict: got %d, want 1", n)
	}
}

func TestEvict_ZeroRetentionKeepsAll(t *testing.T) {
	st := newStore(t, 0)
	ctx := context.Background()
	st.now = fixedClock(time.Unix(0, 0))
	st.Submit(ctx, report("ancient", ana, 1_000)) //nolint:errcheck

	removed, err := st.Evict(ctx, time.Now())
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if removed != 0 {
		t.Errorf("Evict with zero retention: removed %d, want 0", removed)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := newStore(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports.db")
	st, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	st.Submit(ctx, report("s-1", ana, 1_000)) //nolint:errcheck
	st.Close()

	reopened, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Latest(ctx, ana)
	if err != nil || got == nil {
		t.Fatalf("Latest after reopen: %v, %v", got, err)
	}
}

func TestConcurrentSubmits(t *testing.T) {
	st := newStore(t, 0)
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			if _, err := st.Submit(ctx, report(fmt.Sprintf("c-%d", n), ana, int64(n)*1000)); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := st.Latest(ctx, ana); err != nil {
				t.Errorf("Latest: %v", err)
			}
		}()
	}
	wg.Wait()

	if n, _ := st.Count(ctx); n != 50 {
		t.Errorf("Count: got %d, want 50", n)
	}
}
