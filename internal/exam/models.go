package exam

// Attempt status values. The set is closed: grading moves an attempt from
// SUBMITTED to GRADED and never backward.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusSubmitted  = "SUBMITTED"
	StatusGraded     = "GRADED"
)

// Question types.
const (
	TypeMCQSingle   = "mcq_single"
	TypeMCQMulti    = "mcq_multi"
	TypeTrueFalse   = "true_false"
	TypeShortAnswer = "short_answer"
	TypeNumeric     = "numeric"
	TypeFRQ         = "frq"
)

type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text,omitempty"`
	Correct bool   `json:"correct,omitempty"`
}

type Question struct {
	ID      string   `json:"id"`
	Ord     int      `json:"ord"`
	Type    string   `json:"type"` // mcq_single, mcq_multi, true_false, short_answer, numeric, frq
	Prompt  string   `json:"prompt,omitempty"`
	Points  float64  `json:"points"`
	Options []Option `json:"options,omitempty"`
	// AnswerKey holds accepted answers for short_answer/numeric types; for
	// MCQ types the key is derived from option correctness flags.
	AnswerKey []string `json:"answer_key,omitempty"`
}

// Key returns the effective answer key for auto-grading.
func (q Question) Key() []string {
	if len(q.AnswerKey) > 0 {
		return q.AnswerKey
	}
	var key []string
	for _, o := range q.Options {
		if o.Correct {
			key = append(key, o.ID)
		}
	}
	return key
}

// Test belongs to a tournament and either to a catalog event (EventID set) or
// to a named trial event (EventID nil).
type Test struct {
	ID             string     `json:"id"`
	TournamentID   string     `json:"tournament_id"`
	EventID        *string    `json:"event_id,omitempty"`
	TrialEventName *string    `json:"trial_event_name,omitempty"`
	Division       string     `json:"division,omitempty"`
	Title          string     `json:"title"`
	Status         string     `json:"status"` // DRAFT|PUBLISHED
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      int64      `json:"created_at,omitempty"`
	Questions      []Question `json:"questions"`
}

type Attempt struct {
	ID          string  `json:"id"`
	TestID      string  `json:"test_id"`
	UserID      string  `json:"user_id"`
	Status      string  `json:"status"`
	Score       float64 `json:"score"`
	StartedAt   int64   `json:"started_at,omitempty"`
	SubmittedAt *int64  `json:"submitted_at,omitempty"`
}

// Answer carries one response to one question. Grading is atomic per answer:
// GradedAt is null exactly when PointsAwarded is null.
type Answer struct {
	ID            string      `json:"id"`
	AttemptID     string      `json:"attempt_id"`
	QuestionID    string      `json:"question_id"`
	Response      interface{} `json:"response"`
	PointsAwarded *float64    `json:"points_awarded,omitempty"`
	GraderNote    *string     `json:"grader_note,omitempty"`
	GradedAt      *int64      `json:"graded_at,omitempty"`
	GradedBy      *string     `json:"graded_by,omitempty"`
}

func (a Answer) Graded() bool { return a.GradedAt != nil }

// AttemptItem pairs an answer with its full parent question (keys included)
// for the grader view.
type AttemptItem struct {
	Answer   Answer   `json:"answer"`
	Question Question `json:"question"`
}

// AttemptDetail is the response shape for graded-attempt reloads: the attempt
// plus every answer nested with question and option detail.
type AttemptDetail struct {
	Attempt
	Answers []AttemptItem `json:"answers"`
}

// GradeInput is one per-answer grade in a submission batch.
type GradeInput struct {
	AnswerID      string
	PointsAwarded float64
	GraderNote    *string
}

type TestSummary struct {
	ID             string  `json:"id"`
	TournamentID   string  `json:"tournament_id"`
	EventID        *string `json:"event_id,omitempty"`
	TrialEventName *string `json:"trial_event_name,omitempty"`
	Division       string  `json:"division,omitempty"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	QuestionCount  int     `json:"question_count"`
}
