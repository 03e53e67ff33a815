package exam

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scioly/teamy/internal/grading"
)

// memoryStore is the offline/dev implementation of Store. It mirrors the SQL
// store's semantics, including the all-or-nothing grade batch.
type memoryStore struct {
	mu       sync.RWMutex
	tests    map[string]Test
	attempts map[string]Attempt
	answers  map[string][]Answer // attemptID -> answers in question order
	grader   grading.Grader
}

func NewInMemoryStore() Store {
	return &memoryStore{
		tests:    map[string]Test{},
		attempts: map[string]Attempt{},
		answers:  map[string][]Answer{},
		grader:   grading.NewDefaultGrader(),
	}
}

func (m *memoryStore) PutTest(_ context.Context, t Test) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	for i := range t.Questions {
		if t.Questions[i].ID == "" {
			t.Questions[i].ID = uuid.NewString()
		}
		t.Questions[i].Ord = i
	}
	m.tests[t.ID] = t
	return nil
}

func (m *memoryStore) GetTest(ctx context.Context, id string) (Test, error) {
	t, err := m.GetTestAdmin(ctx, id)
	if err != nil {
		return Test{}, err
	}
	for i := range t.Questions {
		t.Questions[i].AnswerKey = nil
		for j := range t.Questions[i].Options {
			t.Questions[i].Options[j].Correct = false
		}
	}
	return t, nil
}

func (m *memoryStore) GetTestAdmin(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, ErrTestNotFound
	}
	// copy questions so callers can strip keys without mutating the store
	qs := make([]Question, len(t.Questions))
	copy(qs, t.Questions)
	for i := range qs {
		opts := make([]Option, len(t.Questions[i].Options))
		copy(opts, t.Questions[i].Options)
		qs[i].Options = opts
	}
	t.Questions = qs
	return t, nil
}

func (m *memoryStore) ListTests(_ context.Context, opts TestListOpts) ([]TestSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TestSummary
	for _, t := range m.tests {
		if opts.TournamentID != "" && t.TournamentID != opts.TournamentID {
			continue
		}
		if opts.EventID != "" && (t.EventID == nil || *t.EventID != opts.EventID) {
			continue
		}
		out = append(out, TestSummary{
			ID: t.ID, TournamentID: t.TournamentID, EventID: t.EventID,
			TrialEventName: t.TrialEventName, Division: t.Division,
			Title: t.Title, Status: t.Status, QuestionCount: len(t.Questions),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) NewAttempt(_ context.Context, testID, userID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[testID]
	if !ok {
		return Attempt{}, ErrTestNotFound
	}
	a := Attempt{
		ID:        uuid.NewString(),
		TestID:    testID,
		UserID:    userID,
		Status:    StatusInProgress,
		StartedAt: time.Now().Unix(),
	}
	answers := make([]Answer, 0, len(t.Questions))
	for _, q := range t.Questions {
		answers = append(answers, Answer{
			ID:         uuid.NewString(),
			AttemptID:  a.ID,
			QuestionID: q.ID,
		})
	}
	m.attempts[a.ID] = a
	m.answers[a.ID] = answers
	return a, nil
}

func (m *memoryStore) SaveResponses(_ context.Context, attemptID string, resp map[string]interface{}) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrAlreadySubmitted
	}
	answers := m.answers[attemptID]
	for qid, v := range resp {
		for i := range answers {
			if answers[i].QuestionID == qid {
				answers[i].Response = v
			}
		}
	}
	m.answers[attemptID] = answers
	return a, nil
}

func (m *memoryStore) Submit(ctx context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return a, nil
	}
	t := m.tests[a.TestID]
	byID := map[string]Question{}
	for _, q := range t.Questions {
		byID[q.ID] = q
	}

	now := time.Now().Unix()
	answers := m.answers[attemptID]
	score := 0.0
	for i := range answers {
		q := byID[answers[i].QuestionID]
		if q.Type == TypeFRQ {
			continue
		}
		pts := 0.0
		if answers[i].Response != nil {
			gq := grading.Q{Type: q.Type, Points: q.Points, AnswerKey: q.Key()}
			res, err := m.grader.Grade(ctx, gq, answers[i].Response)
			if err == nil && !res.NeedsManual {
				pts = res.AutoPoints
			}
		}
		p := pts
		ts := now
		answers[i].PointsAwarded = &p
		answers[i].GradedAt = &ts
		score += pts
	}
	m.answers[attemptID] = answers

	a.Status = StatusSubmitted
	a.Score = score
	a.SubmittedAt = &now
	m.attempts[attemptID] = a
	return a, nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, a := range m.attempts {
		if opts.TestID != "" && a.TestID != opts.TestID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out, nil
}

func (m *memoryStore) GetAttemptItems(_ context.Context, attemptID string) ([]AttemptItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attemptItemsLocked(attemptID)
}

func (m *memoryStore) attemptItemsLocked(attemptID string) ([]AttemptItem, error) {
	a, ok := m.attempts[attemptID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	t := m.tests[a.TestID]
	byID := map[string]Question{}
	for _, q := range t.Questions {
		byID[q.ID] = q
	}
	answers := m.answers[attemptID]
	out := make([]AttemptItem, 0, len(answers))
	for _, ans := range answers {
		out = append(out, AttemptItem{Answer: ans, Question: byID[ans.QuestionID]})
	}
	return out, nil
}

func (m *memoryStore) ApplyGrades(_ context.Context, attemptID string, grades []GradeInput, gradedBy string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	t := m.tests[a.TestID]
	maxByQuestion := map[string]float64{}
	for _, q := range t.Questions {
		maxByQuestion[q.ID] = q.Points
	}

	answers := m.answers[attemptID]
	idx := map[string]int{}
	for i, ans := range answers {
		idx[ans.ID] = i
	}

	// validate the whole batch before touching any answer
	for _, g := range grades {
		i, ok := idx[g.AnswerID]
		if !ok {
			return Attempt{}, ErrAnswerNotFound
		}
		if err := grading.ValidateAward(g.PointsAwarded, maxByQuestion[answers[i].QuestionID]); err != nil {
			if g.PointsAwarded < 0 {
				return Attempt{}, ErrNegativePoints
			}
			return Attempt{}, ErrPointsExceedMaximum
		}
	}

	now := time.Now().Unix()
	for _, g := range grades {
		i := idx[g.AnswerID]
		pts := g.PointsAwarded
		ts := now
		by := gradedBy
		answers[i].PointsAwarded = &pts
		answers[i].GradedAt = &ts
		answers[i].GradedBy = &by
		if g.GraderNote != nil && *g.GraderNote != "" {
			note := *g.GraderNote
			answers[i].GraderNote = &note
		} else {
			answers[i].GraderNote = nil
		}
	}
	m.answers[attemptID] = answers

	states := make([]grading.AnswerState, 0, len(answers))
	for _, ans := range answers {
		states = append(states, grading.AnswerState{PointsAwarded: ans.PointsAwarded, Graded: ans.GradedAt != nil})
	}
	total, fullyGraded := grading.Summarize(states)
	a.Score = total
	if fullyGraded {
		a.Status = StatusGraded
	} else {
		a.Status = StatusSubmitted
	}
	m.attempts[attemptID] = a
	return a, nil
}

func (m *memoryStore) GetAttemptDetail(_ context.Context, attemptID string) (AttemptDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return AttemptDetail{}, ErrAttemptNotFound
	}
	items, err := m.attemptItemsLocked(attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	return AttemptDetail{Attempt: a, Answers: items}, nil
}
