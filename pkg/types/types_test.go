package types

import (
	"net/url"
	"testing"
)

func TestSubjectRef_Key(t *testing.T) {
	s := SubjectRef{Learner: "alice", ClassID: 3, CourseID: 12}
	if got := s.Key(); got != "alice/3/12" {
		t.Errorf("Key() = %q, want %q", got, "alice/3/12")
	}
}

func TestSubjectRef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		subject SubjectRef
		wantErr bool
	}{
		{"complete", SubjectRef{Learner: "a", ClassID: 1, CourseID: 2}, false},
		{"no learner", SubjectRef{ClassID: 1, CourseID: 2}, true},
		{"no class", SubjectRef{Learner: "a", CourseID: 2}, true},
		{"no course", SubjectRef{Learner: "a", ClassID: 1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.subject.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSubjectFromQuery(t *testing.T) {
	tests := []struct {
		query   string
		want    SubjectRef
		wantErr bool
	}{
		{"learner=a&class_id=1&course_id=2", SubjectRef{Learner: "a", ClassID: 1, CourseID: 2}, false},
		{"learner=a&class_id=x&course_id=2", SubjectRef{}, true},
		{"learner=a&class_id=1&course_id=2.5", SubjectRef{}, true},
		{"class_id=1&course_id=2", SubjectRef{}, true},
		{"", SubjectRef{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tc.query)
			got, err := SubjectFromQuery(q)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSessionReport_Validate(t *testing.T) {
	valid := func() *SessionReport {
		return &SessionReport{
			SessionID:        "s-1",
			Subject:          SubjectRef{Learner: "a", ClassID: 1, CourseID: 1},
			StartedAtMs:      1000,
			EndedAtMs:        61000,
			TotalDurationSec: 60,
			Intervals: []IntervalSummary{
				{Start: 5000, End: 20000, DurationSec: 15, AvgScore: 0.4},
			},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid report: unexpected error %v", err)
	}

	r := valid()
	r.EndedAtMs = 0
	if err := r.Validate(); err == nil {
		t.Error("endedAt before startedAt: expected error")
	}

	r = valid()
	r.Intervals[0].End = 1000
	if err := r.Validate(); err == nil {
		t.Error("inverted interval: expected error")
	}

	var nilReport *SessionReport
	if err := nilReport.Validate(); err == nil {
		t.Error("nil report: expected error")
	}
}

func TestRange_Normalized(t *testing.T) {
	if got := (Range{Start: 10, End: 2}).Normalized(); got != (Range{Start: 2, End: 10}) {
		t.Errorf("Normalized() = %+v", got)
	}
	if got := (Range{Start: 2, End: 10}).Normalized(); got != (Range{Start: 2, End: 10}) {
		t.Errorf("Normalized() changed an ordered range: %+v", got)
	}
}
