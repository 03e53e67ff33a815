package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/scioly/teamy/internal/grading"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	grader grading.Grader
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, grader: grading.NewDefaultGrader()}
}

// gradeTxOpts picks the isolation level for the grade transaction. The
// aggregation step reads every answer of the attempt, so two concurrent
// graders need at least snapshot isolation; on Postgres we ask for
// SERIALIZABLE and let conflict detection fail one of the two. sqlite
// serializes writers on its own.
func (s *SQLStore) gradeTxOpts() *sql.TxOptions {
	if s.driver == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

func (s *SQLStore) PutTest(ctx context.Context, t Test) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO tests (id,tournament_id,event_id,trial_event_name,division,title,status,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET event_id=EXCLUDED.event_id, trial_event_name=EXCLUDED.trial_event_name,
			division=EXCLUDED.division, title=EXCLUDED.title, status=EXCLUDED.status`,
		t.ID, t.TournamentID, t.EventID, t.TrialEventName, t.Division, t.Title, t.Status, t.CreatedBy, t.CreatedAt)
	if err != nil {
		return err
	}

	// authoring replaces the question list wholesale
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE test_id=$1`, t.ID); err != nil {
		return err
	}
	for i, q := range t.Questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		oj, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		kj, err := json.Marshal(q.AnswerKey)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,test_id,ord,type,prompt,points,options_json,answer_key_json)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			q.ID, t.ID, i, q.Type, q.Prompt, q.Points, string(oj), string(kj)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	t, err := s.GetTestAdmin(ctx, id)
	if err != nil {
		return Test{}, err
	}
	// strip keys and correctness flags when serving to students
	for i := range t.Questions {
		t.Questions[i].AnswerKey = nil
		for j := range t.Questions[i].Options {
			t.Questions[i].Options[j].Correct = false
		}
	}
	return t, nil
}

func (s *SQLStore) GetTestAdmin(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,tournament_id,event_id,trial_event_name,division,title,status,created_by,created_at
		FROM tests WHERE id=$1`, id)
	var t Test
	var eventID, trialName sql.NullString
	if err := row.Scan(&t.ID, &t.TournamentID, &eventID, &trialName, &t.Division, &t.Title, &t.Status, &t.CreatedBy, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, ErrTestNotFound
		}
		return Test{}, err
	}
	if eventID.Valid {
		t.EventID = &eventID.String
	}
	if trialName.Valid {
		t.TrialEventName = &trialName.String
	}
	qs, err := s.questionsForTest(ctx, id)
	if err != nil {
		return Test{}, err
	}
	t.Questions = qs
	return t, nil
}

func (s *SQLStore) questionsForTest(ctx context.Context, testID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,ord,type,prompt,points,options_json,answer_key_json
		FROM questions WHERE test_id=$1 ORDER BY ord`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		var oj, kj string
		if err := rows.Scan(&q.ID, &q.Ord, &q.Type, &q.Prompt, &q.Points, &oj, &kj); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(oj), &q.Options); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(kj), &q.AnswerKey); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListTests(ctx context.Context, opts TestListOpts) ([]TestSummary, error) {
	q := `SELECT t.id,t.tournament_id,t.event_id,t.trial_event_name,t.division,t.title,t.status,
			(SELECT COUNT(*) FROM questions q WHERE q.test_id=t.id)
		FROM tests t WHERE 1=1`
	args := []interface{}{}
	if opts.TournamentID != "" {
		args = append(args, opts.TournamentID)
		q += ` AND t.tournament_id=` + placeholder(len(args))
	}
	if opts.EventID != "" {
		args = append(args, opts.EventID)
		q += ` AND t.event_id=` + placeholder(len(args))
	}
	q += ` ORDER BY t.created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += ` LIMIT ` + placeholder(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += ` OFFSET ` + placeholder(len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TestSummary
	for rows.Next() {
		var ts TestSummary
		var eventID, trialName sql.NullString
		if err := rows.Scan(&ts.ID, &ts.TournamentID, &eventID, &trialName, &ts.Division, &ts.Title, &ts.Status, &ts.QuestionCount); err != nil {
			return nil, err
		}
		if eventID.Valid {
			ts.EventID = &eventID.String
		}
		if trialName.Valid {
			ts.TrialEventName = &trialName.String
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func (s *SQLStore) NewAttempt(ctx context.Context, testID, userID string) (Attempt, error) {
	var exist int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tests WHERE id=$1`, testID).Scan(&exist); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrTestNotFound
		}
		return Attempt{}, err
	}
	qs, err := s.questionsForTest(ctx, testID)
	if err != nil {
		return Attempt{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	a := Attempt{
		ID:        uuid.NewString(),
		TestID:    testID,
		UserID:    userID,
		Status:    StatusInProgress,
		StartedAt: time.Now().Unix(),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO attempts (id,test_id,user_id,status,score,started_at)
		VALUES ($1,$2,$3,$4,0,$5)`, a.ID, a.TestID, a.UserID, a.Status, a.StartedAt); err != nil {
		return Attempt{}, err
	}
	// one answer row per question, blank and ungraded
	for _, q := range qs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO answers (id,attempt_id,question_id,response_json)
			VALUES ($1,$2,$3,'null')`, uuid.NewString(), a.ID, q.ID); err != nil {
			return Attempt{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) SaveResponses(ctx context.Context, attemptID string, resp map[string]interface{}) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		return Attempt{}, ErrAlreadySubmitted
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()
	for qid, v := range resp {
		buf, err := json.Marshal(v)
		if err != nil {
			return Attempt{}, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE answers SET response_json=$1 WHERE attempt_id=$2 AND question_id=$3`,
			string(buf), attemptID, qid); err != nil {
			return Attempt{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

// Submit auto-grades objective answers and freezes the attempt at SUBMITTED.
// FRQ answers stay ungraded until an event supervisor applies grades; the
// GRADED transition belongs to ApplyGrades alone.
func (s *SQLStore) Submit(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != StatusInProgress {
		return a, nil
	}

	items, err := s.GetAttemptItems(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}

	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	score := 0.0
	for _, it := range items {
		q := it.Question
		if q.Type == TypeFRQ {
			continue
		}
		pts := 0.0
		if it.Answer.Response != nil {
			gq := grading.Q{Type: q.Type, Points: q.Points, AnswerKey: q.Key()}
			res, err := s.grader.Grade(ctx, gq, it.Answer.Response)
			if err == nil && !res.NeedsManual {
				pts = res.AutoPoints
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE answers SET points_awarded=$1, graded_at=$2 WHERE id=$3`,
			pts, now, it.Answer.ID); err != nil {
			return Attempt{}, err
		}
		score += pts
	}

	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET status=$1, score=$2, submitted_at=$3 WHERE id=$4`,
		StatusSubmitted, score, now, attemptID); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,test_id,user_id,status,score,started_at,submitted_at FROM attempts WHERE id=$1`, id)
	var a Attempt
	var submittedAt sql.NullInt64
	if err := row.Scan(&a.ID, &a.TestID, &a.UserID, &a.Status, &a.Score, &a.StartedAt, &submittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	if submittedAt.Valid {
		a.SubmittedAt = &submittedAt.Int64
	}
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	q := `SELECT id,test_id,user_id,status,score,started_at,submitted_at FROM attempts WHERE 1=1`
	args := []interface{}{}
	if opts.TestID != "" {
		args = append(args, opts.TestID)
		q += ` AND test_id=` + placeholder(len(args))
	}
	if opts.UserID != "" {
		args = append(args, opts.UserID)
		q += ` AND user_id=` + placeholder(len(args))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		q += ` AND status=` + placeholder(len(args))
	}
	q += ` ORDER BY started_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += ` LIMIT ` + placeholder(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += ` OFFSET ` + placeholder(len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var submittedAt sql.NullInt64
		if err := rows.Scan(&a.ID, &a.TestID, &a.UserID, &a.Status, &a.Score, &a.StartedAt, &submittedAt); err != nil {
			return nil, err
		}
		if submittedAt.Valid {
			a.SubmittedAt = &submittedAt.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetAttemptItems(ctx context.Context, attemptID string) ([]AttemptItem, error) {
	if _, err := s.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT a.id,a.attempt_id,a.question_id,a.response_json,a.points_awarded,a.grader_note,a.graded_at,a.graded_by,
			q.id,q.ord,q.type,q.prompt,q.points,q.options_json,q.answer_key_json
		FROM answers a JOIN questions q ON q.id=a.question_id
		WHERE a.attempt_id=$1 ORDER BY q.ord`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptItem
	for rows.Next() {
		it, err := scanAttemptItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanAttemptItem(rows *sql.Rows) (AttemptItem, error) {
	var it AttemptItem
	var respJSON, oj, kj string
	var pts sql.NullFloat64
	var note, gradedBy sql.NullString
	var gradedAt sql.NullInt64
	if err := rows.Scan(&it.Answer.ID, &it.Answer.AttemptID, &it.Answer.QuestionID, &respJSON, &pts, &note, &gradedAt, &gradedBy,
		&it.Question.ID, &it.Question.Ord, &it.Question.Type, &it.Question.Prompt, &it.Question.Points, &oj, &kj); err != nil {
		return AttemptItem{}, err
	}
	if err := json.Unmarshal([]byte(respJSON), &it.Answer.Response); err != nil {
		it.Answer.Response = nil
	}
	if pts.Valid {
		it.Answer.PointsAwarded = &pts.Float64
	}
	if note.Valid {
		it.Answer.GraderNote = &note.String
	}
	if gradedAt.Valid {
		it.Answer.GradedAt = &gradedAt.Int64
	}
	if gradedBy.Valid {
		it.Answer.GradedBy = &gradedBy.String
	}
	if err := json.Unmarshal([]byte(oj), &it.Question.Options); err != nil {
		return AttemptItem{}, err
	}
	if err := json.Unmarshal([]byte(kj), &it.Question.AnswerKey); err != nil {
		return AttemptItem{}, err
	}
	return it, nil
}

// ApplyGrades validates and persists a batch of per-answer grades in one
// all-or-nothing transaction, then recomputes the attempt's score and
// gradedness from the then-current state of every answer.
func (s *SQLStore) ApplyGrades(ctx context.Context, attemptID string, grades []GradeInput, gradedBy string) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, s.gradeTxOpts())
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	var a Attempt
	var submittedAt sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT id,test_id,user_id,status,score,started_at,submitted_at FROM attempts WHERE id=$1`, attemptID).
		Scan(&a.ID, &a.TestID, &a.UserID, &a.Status, &a.Score, &a.StartedAt, &submittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}

	// answer id -> question point ceiling, for this attempt only
	maxByAnswer := map[string]float64{}
	rows, err := tx.QueryContext(ctx, `SELECT a.id, q.points FROM answers a
		JOIN questions q ON q.id=a.question_id WHERE a.attempt_id=$1`, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	for rows.Next() {
		var id string
		var max float64
		if err := rows.Scan(&id, &max); err != nil {
			rows.Close()
			return Attempt{}, err
		}
		maxByAnswer[id] = max
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Attempt{}, err
	}

	now := time.Now().Unix()
	for _, g := range grades {
		max, ok := maxByAnswer[g.AnswerID]
		if !ok {
			return Attempt{}, ErrAnswerNotFound
		}
		if err := grading.ValidateAward(g.PointsAwarded, max); err != nil {
			switch {
			case errors.Is(err, grading.ErrNegativeAward):
				return Attempt{}, ErrNegativePoints
			default:
				return Attempt{}, ErrPointsExceedMaximum
			}
		}
		// absent note becomes explicit NULL, not left unchanged
		var note sql.NullString
		if g.GraderNote != nil && *g.GraderNote != "" {
			note = sql.NullString{String: *g.GraderNote, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE answers SET points_awarded=$1, grader_note=$2, graded_at=$3, graded_by=$4 WHERE id=$5`,
			g.PointsAwarded, note, now, gradedBy, g.AnswerID); err != nil {
			return Attempt{}, err
		}
	}

	// aggregate over every answer of the attempt, not just the batch
	var states []grading.AnswerState
	rows, err = tx.QueryContext(ctx, `SELECT points_awarded, graded_at FROM answers WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	for rows.Next() {
		var pts sql.NullFloat64
		var gradedAt sql.NullInt64
		if err := rows.Scan(&pts, &gradedAt); err != nil {
			rows.Close()
			return Attempt{}, err
		}
		st := grading.AnswerState{Graded: gradedAt.Valid}
		if pts.Valid {
			st.PointsAwarded = &pts.Float64
		}
		states = append(states, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Attempt{}, err
	}

	total, fullyGraded := grading.Summarize(states)
	status := StatusSubmitted
	if fullyGraded {
		status = StatusGraded
	}
	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET score=$1, status=$2 WHERE id=$3`,
		total, status, attemptID); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	// re-read after commit so the response reflects exactly what is durable
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) GetAttemptDetail(ctx context.Context, attemptID string) (AttemptDetail, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	items, err := s.GetAttemptItems(ctx, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	return AttemptDetail{Attempt: a, Answers: items}, nil
}

// placeholder returns the positional parameter marker for argument n. Both
// supported drivers accept the $N form.
func placeholder(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return "$" + digits[n:n+1]
	}
	return "$" + digits[n/10:n/10+1] + digits[n%10:n%10+1]
}
