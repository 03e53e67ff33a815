package grading

import (
	"errors"
	"testing"
)

func TestValidateAward(t *testing.T) {
	cases := []struct {
		name  string
		award float64
		max   float64
		want  error
	}{
		{"zero", 0, 5, nil},
		{"full", 5, 5, nil},
		{"partial", 2.5, 5, nil},
		{"fractional max", 1.5, 1.5, nil},
		{"negative", -0.5, 5, ErrNegativeAward},
		{"over max", 5.01, 5, ErrExceedsMaximum},
		{"over zero max", 0.1, 0, ErrExceedsMaximum},
		{"zero on zero max", 0, 0, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := ValidateAward(c.award, c.max); !errors.Is(err, c.want) {
				t.Fatalf("ValidateAward(%v, %v) = %v, want %v", c.award, c.max, err, c.want)
			}
		})
	}
}

func fp(v float64) *float64 { return &v }

func TestSummarizeAllGraded(t *testing.T) {
	total, full := Summarize([]AnswerState{
		{PointsAwarded: fp(3), Graded: true},
		{PointsAwarded: fp(0), Graded: true},
		{PointsAwarded: fp(2.5), Graded: true},
	})
	if total != 5.5 {
		t.Fatalf("total = %v, want 5.5", total)
	}
	if !full {
		t.Fatal("expected fully graded")
	}
}

func TestSummarizeUngradedContributeZero(t *testing.T) {
	total, full := Summarize([]AnswerState{
		{PointsAwarded: fp(4), Graded: true},
		{PointsAwarded: nil, Graded: false},
	})
	if total != 4 {
		t.Fatalf("total = %v, want 4", total)
	}
	if full {
		t.Fatal("attempt with an ungraded answer must not report fully graded")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	total, full := Summarize(nil)
	if total != 0 || !full {
		t.Fatalf("Summarize(nil) = (%v, %v), want (0, true)", total, full)
	}
}

func TestSummarizeZeroAwardCountsAsGraded(t *testing.T) {
	_, full := Summarize([]AnswerState{{PointsAwarded: fp(0), Graded: true}})
	if !full {
		t.Fatal("an explicit zero award is a graded answer")
	}
}
