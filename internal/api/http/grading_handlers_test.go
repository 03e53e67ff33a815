package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	authmw "github.com/scioly/teamy/internal/auth/middleware"
	"github.com/scioly/teamy/internal/exam"
	"github.com/scioly/teamy/internal/rbac"
	"github.com/scioly/teamy/internal/tournament"
)

type fakeAuthz struct {
	grade  map[string]bool // userID -> allowed
	manage map[string]bool
	err    error
}

func (f *fakeAuthz) CanGradeTest(_ context.Context, ident tournament.Identity, _ string) (bool, error) {
	return f.grade[ident.UserID], f.err
}

func (f *fakeAuthz) CanManageTournament(_ context.Context, ident tournament.Identity, _ string) (bool, error) {
	return f.manage[ident.UserID], f.err
}

func seedAttempt(t *testing.T, store exam.Store) (exam.Attempt, map[string]string) {
	t.Helper()
	ctx := context.Background()
	ev := "ev-anat"
	err := store.PutTest(ctx, exam.Test{
		ID:           "test-1",
		TournamentID: "t1",
		EventID:      &ev,
		Title:        "Anatomy",
		Status:       "PUBLISHED",
		Questions: []exam.Question{
			{ID: "q1", Type: exam.TypeMCQSingle, Points: 2,
				Options: []exam.Option{{ID: "a"}, {ID: "b", Correct: true}}},
			{ID: "q2", Type: exam.TypeFRQ, Points: 10},
		},
	})
	if err != nil {
		t.Fatalf("put test: %v", err)
	}
	a, err := store.NewAttempt(ctx, "test-1", "student-1")
	if err != nil {
		t.Fatalf("new attempt: %v", err)
	}
	if _, err := store.SaveResponses(ctx, a.ID, map[string]interface{}{"q1": "b", "q2": "essay"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	a, err = store.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	items, err := store.GetAttemptItems(ctx, a.ID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	byQuestion := map[string]string{}
	for _, it := range items {
		byQuestion[it.Question.ID] = it.Answer.ID
	}
	return a, byQuestion
}

// doGrade issues the grade request through a chi router with identity in context.
func doGrade(h http.HandlerFunc, testID, attemptID, userID, email, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Patch("/api/es/tests/{testID}/attempts/{attemptID}/grade", h)

	req := httptest.NewRequest(http.MethodPatch,
		"/api/es/tests/"+testID+"/attempts/"+attemptID+"/grade",
		strings.NewReader(body))
	ctx := req.Context()
	if userID != "" {
		ctx = authmw.WithSubject(ctx, userID)
	}
	if email != "" {
		ctx = authmw.WithEmail(ctx, email)
	}
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) errResp {
	t.Helper()
	var e errResp
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestGradeAttemptSuccess(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, answers := seedAttempt(t, store)
	authz := &fakeAuthz{grade: map[string]bool{"es-1": true}}
	h := GradeAttemptHandler(store, authz, nil)

	body := fmt.Sprintf(`{"grades":[{"answerId":%q,"pointsAwarded":8,"graderNote":"solid"}]}`, answers["q2"])
	rec := doGrade(h, "test-1", a.ID, "es-1", "es@x.org", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp gradeResp
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success true")
	}
	if resp.Attempt.Status != exam.StatusGraded {
		t.Fatalf("attempt status = %s, want GRADED", resp.Attempt.Status)
	}
	if resp.Attempt.Score != 10 {
		t.Fatalf("score = %v, want 10", resp.Attempt.Score)
	}
	if len(resp.Attempt.Answers) != 2 {
		t.Fatalf("answers = %d, want 2", len(resp.Attempt.Answers))
	}
}

func TestGradeAttemptMissingIdentity(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, answers := seedAttempt(t, store)
	h := GradeAttemptHandler(store, &fakeAuthz{}, nil)

	body := fmt.Sprintf(`{"grades":[{"answerId":%q,"pointsAwarded":1}]}`, answers["q2"])
	for _, tc := range []struct{ user, email string }{
		{"", "es@x.org"},
		{"es-1", ""},
	} {
		rec := doGrade(h, "test-1", a.ID, tc.user, tc.email, body)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("(%q,%q) status = %d, want 401", tc.user, tc.email, rec.Code)
		}
		if e := decodeErr(t, rec); e.Error != "Unauthorized" {
			t.Fatalf("error = %q", e.Error)
		}
	}
}

func TestGradeAttemptForbidden(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, answers := seedAttempt(t, store)
	h := GradeAttemptHandler(store, &fakeAuthz{}, nil)

	body := fmt.Sprintf(`{"grades":[{"answerId":%q,"pointsAwarded":1}]}`, answers["q2"])
	rec := doGrade(h, "test-1", a.ID, "stranger", "s@x.org", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if e := decodeErr(t, rec); e.Error != "Not authorized to grade test attempts" {
		t.Fatalf("error = %q", e.Error)
	}
}

func TestGradeAttemptInvalidInput(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, _ := seedAttempt(t, store)
	h := GradeAttemptHandler(store, &fakeAuthz{grade: map[string]bool{"es-1": true}}, nil)

	for name, body := range map[string]string{
		"not json":        `{"grades":`,
		"empty batch":     `{"grades":[]}`,
		"missing points":  `{"grades":[{"answerId":"x"}]}`,
		"negative points": `{"grades":[{"answerId":"x","pointsAwarded":-2}]}`,
	} {
		rec := doGrade(h, "test-1", a.ID, "es-1", "es@x.org", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", name, rec.Code)
		}
		if e := decodeErr(t, rec); e.Error != "Invalid input" {
			t.Fatalf("%s: error = %q", name, e.Error)
		}
	}
}

func TestGradeAttemptNotFound(t *testing.T) {
	store := exam.NewInMemoryStore()
	seedAttempt(t, store)
	h := GradeAttemptHandler(store, &fakeAuthz{grade: map[string]bool{"es-1": true}}, nil)

	rec := doGrade(h, "test-1", "no-such-attempt", "es-1", "es@x.org",
		`{"grades":[{"answerId":"x","pointsAwarded":1}]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if e := decodeErr(t, rec); e.Error != "Attempt not found" {
		t.Fatalf("error = %q", e.Error)
	}
}

func TestGradeAttemptWrongTest(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, answers := seedAttempt(t, store)
	h := GradeAttemptHandler(store, &fakeAuthz{grade: map[string]bool{"es-1": true}}, nil)

	body := fmt.Sprintf(`{"grades":[{"answerId":%q,"pointsAwarded":1}]}`, answers["q2"])
	rec := doGrade(h, "other-test", a.ID, "es-1", "es@x.org", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeErr(t, rec); e.Error != "Attempt does not belong to this test" {
		t.Fatalf("error = %q", e.Error)
	}
}

func TestGradeAttemptOverMaximumRejectsBatch(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, answers := seedAttempt(t, store)
	h := GradeAttemptHandler(store, &fakeAuthz{grade: map[string]bool{"es-1": true}}, nil)

	// q2 max is 10; the whole batch must be rejected, including the valid entry
	body := fmt.Sprintf(`{"grades":[{"answerId":%q,"pointsAwarded":11}]}`, answers["q2"])
	rec := doGrade(h, "test-1", a.ID, "es-1", "es@x.org", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	detail, err := store.GetAttemptDetail(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	for _, it := range detail.Answers {
		if it.Question.ID == "q2" && it.Answer.PointsAwarded != nil {
			t.Fatal("rejected batch wrote an award")
		}
	}
}

func TestGradeAttemptUnknownAnswerID(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, _ := seedAttempt(t, store)
	h := GradeAttemptHandler(store, &fakeAuthz{grade: map[string]bool{"es-1": true}}, nil)

	rec := doGrade(h, "test-1", a.ID, "es-1", "es@x.org",
		`{"grades":[{"answerId":"bogus","pointsAwarded":1}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeErr(t, rec); !strings.Contains(e.Error, "does not belong") {
		t.Fatalf("error = %q", e.Error)
	}
}

// staffAccessStore backs a real Authorizer with one accepted staff assignment.
type staffAccessStore struct {
	ref   tournament.TestRef
	staff []tournament.StaffAssignment
}

func (s *staffAccessStore) GetTestRef(_ context.Context, testID string) (tournament.TestRef, error) {
	if testID != s.ref.TestID {
		return tournament.TestRef{}, tournament.ErrTestNotFound
	}
	return s.ref, nil
}

func (s *staffAccessStore) GetTournament(_ context.Context, id string) (tournament.Tournament, error) {
	return tournament.Tournament{ID: id, CreatorID: "creator"}, nil
}

func (s *staffAccessStore) IsAdmin(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *staffAccessStore) HasApprovedDirector(context.Context, string, string) (bool, error) {
	return false, nil
}

func (s *staffAccessStore) ListAcceptedStaffFor(_ context.Context, _ string, ident tournament.Identity) ([]tournament.StaffAssignment, error) {
	var out []tournament.StaffAssignment
	for _, sa := range s.staff {
		if sa.Status != tournament.StaffAccepted {
			continue
		}
		if (sa.UserID != nil && *sa.UserID == ident.UserID) || strings.EqualFold(sa.Email, ident.Email) {
			out = append(out, sa)
		}
	}
	return out, nil
}

// An accepted staff member whose account role is plain student must be able to
// grade their assigned event's attempts: the grade routes carry no coarse role
// gate, the Authorizer is the only access check.
func TestGradeAttemptAcceptedStaffWithStudentRole(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, answers := seedAttempt(t, store)

	ev := "ev-anat"
	uid := "staff-1"
	authz := tournament.NewAuthorizer(&staffAccessStore{
		ref: tournament.TestRef{TestID: "test-1", TournamentID: "t1", EventID: &ev},
		staff: []tournament.StaffAssignment{
			{ID: "s1", TournamentID: "t1", UserID: &uid, Email: "staff@x.org",
				Status: tournament.StaffAccepted, EventIDs: []string{ev}},
		},
	})

	// routes mounted exactly as the server mounts them
	r := chi.NewRouter()
	r.Patch("/api/es/tests/{testID}/attempts/{attemptID}/grade", GradeAttemptHandler(store, authz, nil))

	body := fmt.Sprintf(`{"grades":[{"answerId":%q,"pointsAwarded":9}]}`, answers["q2"])
	req := httptest.NewRequest(http.MethodPatch,
		"/api/es/tests/test-1/attempts/"+a.ID+"/grade", strings.NewReader(body))
	ctx := authmw.WithSubject(req.Context(), uid)
	ctx = authmw.WithEmail(ctx, "staff@x.org")
	ctx = rbac.WithRole(ctx, "student")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp gradeResp
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Attempt.Status != exam.StatusGraded {
		t.Fatalf("grade not applied: %+v", resp.Attempt)
	}
}

func TestGetAttemptGrading(t *testing.T) {
	store := exam.NewInMemoryStore()
	a, _ := seedAttempt(t, store)
	authz := &fakeAuthz{grade: map[string]bool{"es-1": true}}

	r := chi.NewRouter()
	r.Get("/api/es/tests/{testID}/attempts/{attemptID}/grading", GetAttemptGradingHandler(store, authz))

	req := httptest.NewRequest(http.MethodGet, "/api/es/tests/test-1/attempts/"+a.ID+"/grading", nil)
	ctx := authmw.WithSubject(req.Context(), "es-1")
	ctx = authmw.WithEmail(ctx, "es@x.org")
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var items []exam.AttemptItem
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	// grader view includes answer keys
	keyed := false
	for _, it := range items {
		if len(it.Question.AnswerKey) > 0 {
			keyed = true
		}
		for _, o := range it.Question.Options {
			if o.Correct {
				keyed = true
			}
		}
	}
	if !keyed {
		t.Fatal("grader view must include answer keys")
	}
}
