package grading

import "errors"

var (
	ErrNegativeAward  = errors.New("points awarded must be non-negative")
	ErrExceedsMaximum = errors.New("points awarded exceed question maximum")
)

// ValidateAward enforces the award ceiling: 0 <= award <= max. The ceiling is
// a hard reject, never a clamp.
func ValidateAward(award, max float64) error {
	if award < 0 {
		return ErrNegativeAward
	}
	if award > max {
		return ErrExceedsMaximum
	}
	return nil
}

// AnswerState is the minimal per-answer view the aggregator needs.
type AnswerState struct {
	PointsAwarded *float64
	Graded        bool
}

// Summarize recomputes an attempt's earned total and whether every answer has
// been graded. Ungraded answers contribute zero, not their nominal maximum.
func Summarize(answers []AnswerState) (total float64, fullyGraded bool) {
	fullyGraded = true
	for _, a := range answers {
		if !a.Graded || a.PointsAwarded == nil {
			fullyGraded = false
			continue
		}
		total += *a.PointsAwarded
	}
	return total, fullyGraded
}
