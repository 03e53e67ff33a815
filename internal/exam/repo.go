package exam

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by stores. Handlers map these to the closed set of
// HTTP error bodies; raw driver errors never reach the client.
var (
	ErrTestNotFound        = errors.New("test not found")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAnswerNotFound      = errors.New("answer does not belong to attempt")
	ErrPointsExceedMaximum = errors.New("points awarded exceed question maximum")
	ErrNegativePoints      = errors.New("points awarded must be non-negative")
	ErrAlreadySubmitted    = errors.New("attempt already submitted")
)

type TestListOpts struct {
	TournamentID string
	EventID      string
	Limit        int
	Offset       int
}

type AttemptListOpts struct {
	TestID string // filter by test
	UserID string // filter by student
	Status string // optional: IN_PROGRESS|SUBMITTED|GRADED
	Limit  int
	Offset int
}

type Store interface {
	PutTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)      // student-safe (keys and correctness stripped)
	GetTestAdmin(ctx context.Context, id string) (Test, error) // full test, for supervisors
	ListTests(ctx context.Context, opts TestListOpts) ([]TestSummary, error)

	NewAttempt(ctx context.Context, testID, userID string) (Attempt, error)
	SaveResponses(ctx context.Context, attemptID string, resp map[string]interface{}) (Attempt, error)
	Submit(ctx context.Context, attemptID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	// Grading surface. GetAttemptItems feeds the grader view; ApplyGrades is
	// all-or-nothing: any invalid entry rolls back the whole batch.
	GetAttemptItems(ctx context.Context, attemptID string) ([]AttemptItem, error)
	ApplyGrades(ctx context.Context, attemptID string, grades []GradeInput, gradedBy string) (Attempt, error)
	GetAttemptDetail(ctx context.Context, attemptID string) (AttemptDetail, error)
}
