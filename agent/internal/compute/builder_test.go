package compute

import (
	"math/rand"
	"testing"

	"github.com/focustrack/focustrack/pkg/types"
)

func TestStep_Transitions(t *testing.T) {
	const th = 0.7
	var b BuilderState

	b, closed, tr := Step(b, th, 1000, 0.9)
	if tr != TransitionNone || closed != nil || b.State() != StateNeutral {
		t.Fatalf("attentive in neutral: tr=%v closed=%v state=%v", tr, closed, b.State())
	}

	b, _, tr = Step(b, th, 2000, 0.3)
	if tr != TransitionOpened || b.State() != StateLow {
		t.Fatalf("low in neutral: tr=%v state=%v", tr, b.State())
	}

	b, _, tr = Step(b, th, 3000, 0.2)
	if tr != TransitionExtended {
		t.Fatalf("low in low: tr=%v", tr)
	}

	b, closed, tr = Step(b, th, 4000, 0.7)
	if tr != TransitionClosed || closed == nil {
		t.Fatalf("attentive in low: tr=%v closed=%v", tr, closed)
	}
	if closed.StartMs != 2000 || closed.EndMs == nil || *closed.EndMs != 4000 {
		t.Errorf("closed = %+v, want [2000,4000]", closed)
	}
	if len(closed.Samples) != 2 {
		t.Errorf("samples = %v, want 2 entries", closed.Samples)
	}
	if b.State() != StateNeutral {
		t.Errorf("state after close = %v, want neutral", b.State())
	}
}

func TestStep_DoesNotMutateInput(t *testing.T) {
	b1, _, _ := Step(BuilderState{}, 0.7, 0, 0.1)
	b2, _, _ := Step(b1, 0.7, 5000, 0.2)
	b3, _, _ := Step(b1, 0.7, 5000, 0.3)

	open1, _ := b1.Open()
	open2, _ := b2.Open()
	open3, _ := b3.Open()
	if len(open1.Samples) != 1 {
		t.Errorf("b1 samples = %v, want 1 entry", open1.Samples)
	}
	if open2.Samples[1] != 0.2 || open3.Samples[1] != 0.3 {
		t.Errorf("branches share samples: b2=%v b3=%v", open2.Samples, open3.Samples)
	}
}

func TestFinish_Idempotent(t *testing.T) {
	b, _, _ := Step(BuilderState{}, 0.7, 1000, 0.1)

	b, closed := Finish(b, 9000)
	if closed == nil || *closed.EndMs != 9000 {
		t.Fatalf("first Finish closed = %+v, want end 9000", closed)
	}
	b, closed = Finish(b, 12000)
	if closed != nil {
		t.Errorf("second Finish closed = %+v, want nil", closed)
	}
	if b.State() != StateNeutral {
		t.Errorf("state = %v, want neutral", b.State())
	}
}

func TestFinish_ClockBackwardsClampsEnd(t *testing.T) {
	b, _, _ := Step(BuilderState{}, 0.7, 5000, 0.1)
	_, closed := Finish(b, 1000)
	if *closed.EndMs != closed.StartMs {
		t.Errorf("end = %d, want clamped to start %d", *closed.EndMs, closed.StartMs)
	}
}

// At most one interval is open, and every closed interval's samples are all
// below threshold with end >= start.
func TestStep_RandomSequences(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	const th = 0.7
	for run := 0; run < 200; run++ {
		var b BuilderState
		var at int64
		var lows int
		for i := 0; i < 50; i++ {
			at += 5000
			s := r.Float64()
			var closed *types.Interval
			var tr Transition
			b, closed, tr = Step(b, th, at, s)
			if s < th {
				lows++
			}
			if tr == TransitionClosed {
				if *closed.EndMs < closed.StartMs {
					t.Fatalf("run %d: end %d < start %d", run, *closed.EndMs, closed.StartMs)
				}
				for _, v := range closed.Samples {
					if v >= th {
						t.Fatalf("run %d: closed interval holds attentive sample %v", run, v)
					}
				}
				lows -= len(closed.Samples)
			}
		}
		open, ok := b.Open()
		if ok {
			lows -= len(open.Samples)
		}
		if lows != 0 {
			t.Fatalf("run %d: %d low samples unaccounted for", run, lows)
		}
	}
}
