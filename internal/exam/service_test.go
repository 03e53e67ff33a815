package exam

import (
	"context"
	"errors"
	"testing"
)

func sp(s string) *string { return &s }

func seedTest(t *testing.T, store Store) Test {
	t.Helper()
	test := Test{
		ID:           "test-1",
		TournamentID: "t1",
		EventID:      sp("ev-anat"),
		Title:        "Anatomy and Physiology",
		Status:       "PUBLISHED",
		Questions: []Question{
			{ID: "q1", Type: TypeMCQSingle, Points: 2,
				Options: []Option{{ID: "a"}, {ID: "b", Correct: true}}},
			{ID: "q2", Type: TypeShortAnswer, Points: 3, AnswerKey: []string{"femur"}},
			{ID: "q3", Type: TypeFRQ, Points: 10},
		},
	}
	if err := store.PutTest(context.Background(), test); err != nil {
		t.Fatalf("put test: %v", err)
	}
	return test
}

func startSubmitted(t *testing.T, store Store) (Attempt, []AttemptItem) {
	t.Helper()
	ctx := context.Background()
	a, err := store.NewAttempt(ctx, "test-1", "student-1")
	if err != nil {
		t.Fatalf("new attempt: %v", err)
	}
	_, err = store.SaveResponses(ctx, a.ID, map[string]interface{}{
		"q1": "b",
		"q2": "femur",
		"q3": "the femur articulates with the acetabulum",
	})
	if err != nil {
		t.Fatalf("save responses: %v", err)
	}
	a, err = store.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	items, err := store.GetAttemptItems(ctx, a.ID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	return a, items
}

func itemByQuestion(t *testing.T, items []AttemptItem, qid string) AttemptItem {
	t.Helper()
	for _, it := range items {
		if it.Question.ID == qid {
			return it
		}
	}
	t.Fatalf("no item for question %s", qid)
	return AttemptItem{}
}

func TestGetTestStripsKeys(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)

	got, err := store.GetTest(context.Background(), "test-1")
	if err != nil {
		t.Fatalf("get test: %v", err)
	}
	for _, q := range got.Questions {
		if len(q.AnswerKey) != 0 {
			t.Fatalf("question %s leaked answer key", q.ID)
		}
		for _, o := range q.Options {
			if o.Correct {
				t.Fatalf("question %s leaked correct option", q.ID)
			}
		}
	}

	admin, err := store.GetTestAdmin(context.Background(), "test-1")
	if err != nil {
		t.Fatalf("get test admin: %v", err)
	}
	if len(admin.Questions[1].AnswerKey) == 0 {
		t.Fatal("admin view must keep answer keys")
	}
}

func TestNewAttemptUnknownTest(t *testing.T) {
	store := NewInMemoryStore()
	if _, err := store.NewAttempt(context.Background(), "nope", "s1"); !errors.Is(err, ErrTestNotFound) {
		t.Fatalf("got %v, want ErrTestNotFound", err)
	}
}

func TestSubmitAutoGradesObjectiveLeavesFRQ(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	a, items := startSubmitted(t, store)

	if a.Status != StatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", a.Status)
	}
	// mcq and short answer auto-graded, 2 + 3
	if a.Score != 5 {
		t.Fatalf("score = %v, want 5", a.Score)
	}

	frq := itemByQuestion(t, items, "q3")
	if frq.Answer.Graded() || frq.Answer.PointsAwarded != nil {
		t.Fatal("free response must remain ungraded after submit")
	}
	mcq := itemByQuestion(t, items, "q1")
	if !mcq.Answer.Graded() || mcq.Answer.PointsAwarded == nil || *mcq.Answer.PointsAwarded != 2 {
		t.Fatalf("mcq answer not auto-graded: %+v", mcq.Answer)
	}
}

func TestSaveAfterSubmitRejected(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	a, _ := startSubmitted(t, store)

	_, err := store.SaveResponses(context.Background(), a.ID, map[string]interface{}{"q1": "a"})
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("got %v, want ErrAlreadySubmitted", err)
	}
}

func TestApplyGradesCompletesAttempt(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	a, items := startSubmitted(t, store)
	frq := itemByQuestion(t, items, "q3")

	note := "thorough answer"
	updated, err := store.ApplyGrades(context.Background(), a.ID, []GradeInput{
		{AnswerID: frq.Answer.ID, PointsAwarded: 7.5, GraderNote: &note},
	}, "grader-1")
	if err != nil {
		t.Fatalf("apply grades: %v", err)
	}
	if updated.Status != StatusGraded {
		t.Fatalf("status = %s, want GRADED once every answer is graded", updated.Status)
	}
	if updated.Score != 12.5 {
		t.Fatalf("score = %v, want 12.5", updated.Score)
	}

	detail, err := store.GetAttemptDetail(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	g := itemByQuestion(t, detail.Answers, "q3").Answer
	if g.PointsAwarded == nil || *g.PointsAwarded != 7.5 {
		t.Fatalf("points = %v", g.PointsAwarded)
	}
	if g.GradedAt == nil || g.GradedBy == nil || *g.GradedBy != "grader-1" {
		t.Fatalf("grading metadata missing: %+v", g)
	}
	if g.GraderNote == nil || *g.GraderNote != note {
		t.Fatalf("note = %v", g.GraderNote)
	}
}

func TestApplyGradesPartialKeepsSubmitted(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	a, items := startSubmitted(t, store)
	mcq := itemByQuestion(t, items, "q1")

	// re-grade an already graded answer; FRQ stays ungraded
	updated, err := store.ApplyGrades(context.Background(), a.ID, []GradeInput{
		{AnswerID: mcq.Answer.ID, PointsAwarded: 1},
	}, "grader-1")
	if err != nil {
		t.Fatalf("apply grades: %v", err)
	}
	if updated.Status != StatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED while any answer is ungraded", updated.Status)
	}
	// ungraded FRQ contributes zero: 1 + 3 + 0
	if updated.Score != 4 {
		t.Fatalf("score = %v, want 4", updated.Score)
	}
}

func TestApplyGradesRejectsOverMaximum(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	a, items := startSubmitted(t, store)
	frq := itemByQuestion(t, items, "q3")

	_, err := store.ApplyGrades(context.Background(), a.ID, []GradeInput{
		{AnswerID: frq.Answer.ID, PointsAwarded: 10.5},
	}, "grader-1")
	if !errors.Is(err, ErrPointsExceedMaximum) {
		t.Fatalf("got %v, want ErrPointsExceedMaximum", err)
	}
}

func TestApplyGradesRejectsNegative(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	a, items := startSubmitted(t, store)
	frq := itemByQuestion(t, items, "q3")

	_, err := store.ApplyGrades(context.Background(), a.ID, []GradeInput{
		{AnswerID: frq.Answer.ID, PointsAwarded: -1},
	}, "grader-1")
	if !errors.Is(err, ErrNegativePoints) {
		t.Fatalf("got %v, want ErrNegativePoints", err)
	}
}

func TestApplyGradesBatchIsAtomic(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	a, items := startSubmitted(t, store)
	frq := itemByQuestion(t, items, "q3")

	_, err := store.ApplyGrades(context.Background(), a.ID, []GradeInput{
		{AnswerID: frq.Answer.ID, PointsAwarded: 5},
		{AnswerID: "not-an-answer", PointsAwarded: 1},
	}, "grader-1")
	if !errors.Is(err, ErrAnswerNotFound) {
		t.Fatalf("got %v, want ErrAnswerNotFound", err)
	}

	// the valid entry in the failed batch must not have been applied
	detail, err := store.GetAttemptDetail(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	g := itemByQuestion(t, detail.Answers, "q3").Answer
	if g.PointsAwarded != nil || g.GradedAt != nil {
		t.Fatalf("failed batch leaked a write: %+v", g)
	}
	if got, _ := store.GetAttempt(context.Background(), a.ID); got.Status != StatusSubmitted || got.Score != a.Score {
		t.Fatalf("attempt changed by failed batch: %+v", got)
	}
}

func TestApplyGradesUnknownAttempt(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	_, err := store.ApplyGrades(context.Background(), "nope", []GradeInput{
		{AnswerID: "x", PointsAwarded: 1},
	}, "grader-1")
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("got %v, want ErrAttemptNotFound", err)
	}
}

func TestApplyGradesIdempotentReplay(t *testing.T) {
	store := NewInMemoryStore()
	seedTest(t, store)
	a, items := startSubmitted(t, store)
	frq := itemByQuestion(t, items, "q3")

	batch := []GradeInput{{AnswerID: frq.Answer.ID, PointsAwarded: 6}}
	first, err := store.ApplyGrades(context.Background(), a.ID, batch, "grader-1")
	if err != nil {
		t.Fatalf("apply grades: %v", err)
	}
	second, err := store.ApplyGrades(context.Background(), a.ID, batch, "grader-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Score != first.Score || second.Status != first.Status {
		t.Fatalf("replay changed outcome: %+v vs %+v", first, second)
	}
}
